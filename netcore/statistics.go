package netcore

import (
	"math/rand/v2"
	"sync/atomic"

	"github.com/lambdanet/netcore/clock"
)

// Statistics holds per-connection counters, salts, sequence windows and
// the smoothed RTT estimate. Every field is atomic, so the receiver and
// transmitter goroutines read and update it without holding a lock.
type Statistics struct {
	packetsSent    atomic.Uint32
	packetsReceived atomic.Uint32
	messagesSent   atomic.Uint32
	reliableMessagesSent atomic.Uint32
	messagesReceived atomic.Uint32
	bytesSent      atomic.Uint32
	bytesReceived  atomic.Uint32
	packetsLost    atomic.Uint32

	localSalt  atomic.Uint64
	remoteSalt atomic.Uint64

	lastReceivedSequenceNr  atomic.Uint32
	receivedSequenceBits    atomic.Uint32
	lastReceivedAckNr       atomic.Uint32
	receivedAckBits         atomic.Uint32
	lastReceivedReliableUID atomic.Uint32

	ping                 atomic.Int64 // clock.Timestamp
	timestampLastSent    atomic.Int64
	timestampLastReceived atomic.Int64
}

// NewStatistics creates a fresh Statistics block with a random local salt.
func NewStatistics() *Statistics {
	s := &Statistics{}
	s.localSalt.Store(rand.Uint64())
	return s
}

func (s *Statistics) PacketsSent() uint32          { return s.packetsSent.Load() }
func (s *Statistics) PacketsReceived() uint32      { return s.packetsReceived.Load() }
func (s *Statistics) MessagesSent() uint32         { return s.messagesSent.Load() }
func (s *Statistics) ReliableMessagesSent() uint32 { return s.reliableMessagesSent.Load() }
func (s *Statistics) MessagesReceived() uint32     { return s.messagesReceived.Load() }
func (s *Statistics) BytesSent() uint32            { return s.bytesSent.Load() }
func (s *Statistics) BytesReceived() uint32        { return s.bytesReceived.Load() }
func (s *Statistics) PacketsLost() uint32          { return s.packetsLost.Load() }

// PacketLossRate is PacketsLost / PacketsSent, or 0 before anything has
// been sent.
func (s *Statistics) PacketLossRate() float64 {
	sent := s.packetsSent.Load()
	if sent == 0 {
		return 0
	}
	return float64(s.packetsLost.Load()) / float64(sent)
}

func (s *Statistics) Ping() clock.Timestamp { return clock.Timestamp(s.ping.Load()) }
func (s *Statistics) LocalSalt() uint64     { return s.localSalt.Load() }
func (s *Statistics) RemoteSalt() uint64    { return s.remoteSalt.Load() }

func (s *Statistics) TimestampLastSent() clock.Timestamp {
	return clock.Timestamp(s.timestampLastSent.Load())
}
func (s *Statistics) TimestampLastReceived() clock.Timestamp {
	return clock.Timestamp(s.timestampLastReceived.Load())
}

func (s *Statistics) LastReceivedSequenceNr() uint32  { return s.lastReceivedSequenceNr.Load() }
func (s *Statistics) ReceivedSequenceBits() uint32    { return s.receivedSequenceBits.Load() }
func (s *Statistics) LastReceivedAckNr() uint32       { return s.lastReceivedAckNr.Load() }
func (s *Statistics) ReceivedAckBits() uint32         { return s.receivedAckBits.Load() }
func (s *Statistics) LastReceivedReliableUID() uint32 { return s.lastReceivedReliableUID.Load() }

// --- mutators, called without a lock from whichever goroutine enqueues,
// sends, receives or ticks; each update is atomic, so the read-side above
// stays lock-free. ---

func (s *Statistics) registerPacketSent(bytes int, now clock.Timestamp) uint32 {
	s.timestampLastSent.Store(int64(now))
	s.bytesSent.Add(uint32(bytes))
	return s.packetsSent.Add(1)
}

func (s *Statistics) registerMessageSent() uint32 {
	return s.messagesSent.Add(1)
}

func (s *Statistics) registerReliableMessageSent() uint32 {
	s.messagesSent.Add(1)
	return s.reliableMessagesSent.Add(1)
}

func (s *Statistics) registerPacketReceived(messages, bytes int, now clock.Timestamp) {
	s.timestampLastReceived.Store(int64(now))
	s.packetsReceived.Add(1)
	s.messagesReceived.Add(uint32(messages))
	s.bytesReceived.Add(uint32(bytes))
}

func (s *Statistics) registerReliableMessageReceived() {
	s.lastReceivedReliableUID.Add(1)
}

func (s *Statistics) registerPacketLoss() {
	s.packetsLost.Add(1)
}

func (s *Statistics) setRemoteSalt(salt uint64) {
	s.remoteSalt.Store(salt)
}

func (s *Statistics) setLastReceivedSequenceNr(v uint32) { s.lastReceivedSequenceNr.Store(v) }
func (s *Statistics) setReceivedSequenceBits(v uint32)   { s.receivedSequenceBits.Store(v) }
func (s *Statistics) setLastReceivedAckNr(v uint32)      { s.lastReceivedAckNr.Store(v) }
func (s *Statistics) setReceivedAckBits(v uint32)        { s.receivedAckBits.Store(v) }

// registerRTT folds one RTT sample into the EWMA ping estimate:
// ping <- 0.1*sample + 0.9*ping.
func (s *Statistics) registerRTT(sample clock.Timestamp) {
	const alpha = 0.1
	prev := s.ping.Load()
	next := int64(float64(sample)*alpha + float64(prev)*(1-alpha))
	s.ping.Store(next)
}

func (s *Statistics) reset() {
	s.packetsSent.Store(0)
	s.packetsReceived.Store(0)
	s.messagesSent.Store(0)
	s.reliableMessagesSent.Store(0)
	s.messagesReceived.Store(0)
	s.bytesSent.Store(0)
	s.bytesReceived.Store(0)
	s.packetsLost.Store(0)
	s.remoteSalt.Store(0)
	s.lastReceivedSequenceNr.Store(0)
	s.receivedSequenceBits.Store(0)
	s.lastReceivedAckNr.Store(0)
	s.receivedAckBits.Store(0)
	s.lastReceivedReliableUID.Store(0)
	s.ping.Store(0)
	s.timestampLastSent.Store(0)
	s.timestampLastReceived.Store(0)
	s.localSalt.Store(rand.Uint64())
}
