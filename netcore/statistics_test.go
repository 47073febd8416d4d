package netcore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lambdanet/netcore/clock"
)

func TestStatisticsPacketLossRate(t *testing.T) {
	s := NewStatistics()
	assert.Zero(t, s.PacketLossRate())

	s.registerPacketSent(100, 0)
	s.registerPacketSent(100, 0)
	s.registerPacketSent(100, 0)
	s.registerPacketSent(100, 0)
	s.registerPacketLoss()

	assert.InDelta(t, 0.25, s.PacketLossRate(), 1e-9)
}

func TestStatisticsRegisterRTTConvergesTowardSample(t *testing.T) {
	s := NewStatistics()
	sample := clock.Duration(100_000_000) // 100ms, constant
	for i := 0; i < 200; i++ {
		s.registerRTT(sample)
	}
	assert.InDelta(t, float64(sample), float64(s.Ping()), float64(sample)*0.01)
}

func TestStatisticsResetClearsCountersButRerollsLocalSalt(t *testing.T) {
	s := NewStatistics()
	original := s.LocalSalt()
	s.registerPacketSent(100, 0)
	s.registerPacketLoss()
	s.setRemoteSalt(42)

	s.reset()

	assert.Zero(t, s.PacketsSent())
	assert.Zero(t, s.PacketsLost())
	assert.Zero(t, s.RemoteSalt())
	assert.NotEqual(t, original, s.LocalSalt())
}
