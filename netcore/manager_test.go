package netcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lambdanet/netcore/clock"
)

func newTestManager(t *testing.T) (*PacketManager, *PacketPool, *Statistics, *clock.Fake) {
	t.Helper()
	pool := NewPacketPool(64)
	stats := NewStatistics()
	fake := clock.NewFake()
	cfg := defaultConfig()
	return NewPacketManager(pool, stats, fake, cfg, nil), pool, stats, fake
}

func TestPacketManagerReorderBufferHoldsOutOfOrderMessages(t *testing.T) {
	m, pool, _, _ := newTestManager(t)

	mkReliable := func(reliableUID uint32, payload string) *NetworkPacket {
		pkt, err := pool.RequestFree()
		require.NoError(t, err)
		pkt.Type = FirstApplicationType
		pkt.ReliableUID = reliableUID
		pkt.Payload = append(pkt.Payload[:0], payload...)
		return pkt
	}

	// Reliable UIDs arrive out of order: 2 before 1.
	second := mkReliable(2, "second")
	delivered := m.QueryBegin([]*NetworkPacket{second})
	assert.Empty(t, delivered, "UID 2 must wait for UID 1")

	first := mkReliable(1, "first")
	delivered = m.QueryBegin([]*NetworkPacket{first})
	require.Len(t, delivered, 2, "receiving UID 1 should release both 1 and 2 in order")
	assert.Equal(t, "first", string(delivered[0].Payload))
	assert.Equal(t, "second", string(delivered[1].Payload))
	m.QueryEnd(delivered)
}

func TestPacketManagerQueryBeginDropsDuplicateReliable(t *testing.T) {
	m, pool, _, _ := newTestManager(t)

	pkt1, err := pool.RequestFree()
	require.NoError(t, err)
	pkt1.ReliableUID = 1
	delivered := m.QueryBegin([]*NetworkPacket{pkt1})
	require.Len(t, delivered, 1)
	m.QueryEnd(delivered)

	freeBefore := pool.FreeCount()
	dup, err := pool.RequestFree()
	require.NoError(t, err)
	dup.ReliableUID = 1
	delivered = m.QueryBegin([]*NetworkPacket{dup})
	assert.Empty(t, delivered, "duplicate of an already-delivered UID must not be redelivered")
	assert.Equal(t, freeBefore, pool.FreeCount(), "the duplicate packet is freed back immediately")
}

func TestPacketManagerTickResendsUnackedBundleThenGivesUp(t *testing.T) {
	m, _, stats, fake := newTestManager(t)
	m.cfg.maxRetries = 1

	uid, err := m.EnqueueReliable(FirstApplicationType, []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, uint32(1), uid)

	fakeSock := newFakeNetwork().newSocket("a")
	transceiver := NewTransceiver(fakeSock, fake, m.cfg)

	require.NoError(t, m.Flush(transceiver, fakeAddr("nowhere")))

	// Advance well past the resend timeout (RTT is 0, floored at 5ms), but
	// nowhere near the 1s bundle-aging sweep interval.
	fake.Advance(clock.Duration(10_000_000))
	gaveUp := m.Tick()
	assert.Empty(t, gaveUp, "first timeout should resend, not give up")
	assert.Equal(t, uint32(0), stats.PacketsLost(), "a resend alone is not counted as loss")

	// Re-flush the requeued message, then let it time out a second time.
	require.NoError(t, m.Flush(transceiver, fakeAddr("nowhere")))
	fake.Advance(clock.Duration(10_000_000))
	gaveUp = m.Tick()
	require.Len(t, gaveUp, 1, "exceeding maxRetries should give the message up")
	assert.Equal(t, "payload", string(gaveUp[0].Payload))
	assert.Equal(t, uint32(1), stats.PacketsLost(), "giving up on a message counts as one lost packet")
}

func TestPacketManagerTickAgesOutStaleBundleAfterOneSecond(t *testing.T) {
	m, pool, stats, fake := newTestManager(t)

	_, err := m.EnqueueReliable(FirstApplicationType, []byte("x"))
	require.NoError(t, err)

	fakeSock := newFakeNetwork().newSocket("a")
	transceiver := NewTransceiver(fakeSock, fake, m.cfg)
	require.NoError(t, m.Flush(transceiver, fakeAddr("nowhere")))

	// Well past resendTimeout but short of the 1s aging sweep: the
	// message resends, and the now-stale original bundle is still
	// sitting in inFlight, untouched.
	fake.Advance(clock.Duration(500_000_000))
	gaveUp := m.Tick()
	assert.Empty(t, gaveUp)
	assert.Equal(t, uint32(0), stats.PacketsLost())

	freeBefore := pool.FreeCount()
	fake.Advance(clock.Duration(600_000_000)) // crosses the 1s mark
	gaveUp = m.Tick()
	assert.Empty(t, gaveUp, "the message is resent a second time, still within maxRetries")
	assert.Equal(t, uint32(1), stats.PacketsLost(), "the aged-out original bundle counts as one lost packet")
	assert.Equal(t, freeBefore, pool.FreeCount(), "bundle aging only drops ack-demux bookkeeping, not the pending message itself")
}

func TestPacketManagerAckBundlesFreesInFlightMessages(t *testing.T) {
	m, pool, _, fake := newTestManager(t)
	_, err := m.EnqueueReliable(FirstApplicationType, []byte("x"))
	require.NoError(t, err)

	fakeSock := newFakeNetwork().newSocket("a")
	transceiver := NewTransceiver(fakeSock, fake, m.cfg)
	require.NoError(t, m.Flush(transceiver, fakeAddr("nowhere")))

	freeBefore := pool.FreeCount()
	m.AckBundles([]uint32{1}) // the first bundle transmitted has UID 1
	assert.Greater(t, pool.FreeCount(), freeBefore, "acking the bundle frees its message")
}
