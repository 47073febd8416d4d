package netcore

import (
	"math/rand/v2"
	"net"

	"github.com/lambdanet/netcore/clock"
)

// Transceiver is the framing layer: it bundles queued messages into a
// single datagram carrying the sequence/ack header, and on the way in
// parses a datagram back into pool-borrowed packets plus the set of
// bundle UIDs the peer has acked.
//
// A Transceiver does not own its Socket exclusively — ServerUDP uses one
// Socket and one Transceiver for every remote, so bundle UIDs come from a
// single counter shared by all remotes, while each remote's receive
// window lives in its own Statistics.
type Transceiver struct {
	socket Socket
	clk    clock.Clock

	nextBundleUID uint32

	sendLossRatio    float64
	receiveLossRatio float64
}

// NewTransceiver creates a Transceiver writing to and reading from socket.
// Bundle UIDs start at 1: a peer that has received nothing yet sends
// lastReceivedSequence 0, and ackedUIDs always counts that value as
// acked, so no real bundle may carry UID 0.
func NewTransceiver(socket Socket, clk clock.Clock, cfg config) *Transceiver {
	return &Transceiver{
		socket:           socket,
		clk:              clk,
		nextBundleUID:    1,
		sendLossRatio:    cfg.simulateSendLoss,
		receiveLossRatio: cfg.simulateReceiveLoss,
	}
}

// SetSocket rebinds the Transceiver to a new Socket. ClientUDP does not
// call it: each connectVia builds a fresh Transceiver instead.
func (t *Transceiver) SetSocket(socket Socket) {
	t.socket = socket
}

// Transmit drains queue, writing as many messages as fit into one
// MaximumPacketSize datagram. It returns the bundle UID assigned and the
// packets that were encoded into it, so the caller (PacketManager) can
// decide what to do with each: free unreliable ones back to the pool,
// retain reliable ones for resend tracking until acked. Call Transmit
// repeatedly until queue.empty() to flush a queue larger than one
// datagram.
func (t *Transceiver) Transmit(pool *PacketPool, queue *packetQueue, endpoint net.Addr, stats *Statistics) (bundleUID uint32, encoded []*NetworkPacket, sent bool, err error) {
	if queue.empty() {
		return 0, nil, false, nil
	}

	buf := make([]byte, datagramHeaderSize, MaximumPacketSize)
	var messageCount uint16
	encoded = make([]*NetworkPacket, 0, 8)

	for !queue.empty() {
		pkt := queue.front()
		encodedLen := messageHeaderSize + len(pkt.Payload)
		if len(buf)+encodedLen > MaximumPacketSize && messageCount > 0 {
			break // doesn't fit alongside what's already staged; next datagram
		}

		queue.popFront()
		buf = encodeMessage(buf, pkt)
		messageCount++
		encoded = append(encoded, pkt)
	}

	bundleUID = t.nextBundleUID
	t.nextBundleUID++

	var saltXOR uint64
	if stats.RemoteSalt() != 0 {
		saltXOR = stats.LocalSalt() ^ stats.RemoteSalt()
	}

	encodeDatagramHeader(buf, datagramHeader{
		saltXOR:              saltXOR,
		bundleUID:            bundleUID,
		lastReceivedSequence: stats.LastReceivedSequenceNr(),
		receivedSequenceBits: stats.ReceivedSequenceBits(),
		messageCount:         messageCount,
	})

	if t.sendLossRatio > 0 && rand.Float64() < t.sendLossRatio {
		// Simulated drop: count it as sent for statistics purposes (a real
		// socket send would have no way to know either) but never put it
		// on the wire.
		stats.registerPacketSent(len(buf), t.clk.Now())
		return bundleUID, encoded, true, nil
	}

	if _, err := t.socket.SendTo(buf, endpoint); err != nil {
		return bundleUID, encoded, false, err
	}

	stats.registerPacketSent(len(buf), t.clk.Now())
	return bundleUID, encoded, true, nil
}

// ReceiveBegin performs one blocking read on the owned socket. Only
// meaningful for a Transceiver with an exclusive socket (ClientUDP); a
// ServerUDP drives its own read loop and calls Decode directly on the
// bytes it reads.
func (t *Transceiver) ReceiveBegin(buf []byte) (n int, from net.Addr, err error) {
	return t.socket.ReceiveFrom(buf)
}

// Decode parses one received datagram: it updates stats' received-
// sequence window, extracts the acks the peer piggybacked, and appends
// parsed messages (borrowed from pool) to out. Malformed datagrams are
// dropped (ErrMalformedDatagram) without being fatal to the caller.
func (t *Transceiver) Decode(raw []byte, pool *PacketPool, stats *Statistics, out *[]*NetworkPacket, acksOut *[]uint32) error {
	if t.receiveLossRatio > 0 && rand.Float64() < t.receiveLossRatio {
		return nil // simulated drop, not an error
	}

	c := newReadCursor(raw)
	hdr, err := decodeDatagramHeader(c)
	if err != nil {
		return err
	}

	updateReceivedSequenceWindow(stats, hdr.bundleUID)
	stats.setLastReceivedAckNr(hdr.lastReceivedSequence)
	stats.setReceivedAckBits(hdr.receivedSequenceBits)
	*acksOut = append(*acksOut, ackedUIDs(hdr.lastReceivedSequence, hdr.receivedSequenceBits)...)

	for i := uint16(0); i < hdr.messageCount; i++ {
		pkt, err := pool.RequestFree()
		if err != nil {
			return err
		}
		if err := decodeMessage(c, pkt); err != nil {
			pool.Free([]*NetworkPacket{pkt})
			return err
		}
		*out = append(*out, pkt)
	}

	stats.registerPacketReceived(int(hdr.messageCount), len(raw), t.clk.Now())
	return nil
}

// updateReceivedSequenceWindow folds a newly received bundleUID into the
// 32-bit sliding receive window, per spec §4.2's wraparound-safe
// comparison rules.
func updateReceivedSequenceWindow(stats *Statistics, bundleUID uint32) {
	last := stats.LastReceivedSequenceNr()
	bits := stats.ReceivedSequenceBits()

	if sequenceGreater(bundleUID, last) {
		shift := bundleUID - last
		if shift >= 32 {
			bits = 0
		} else {
			bits = (bits << shift) | (1 << (shift - 1))
		}
		stats.setLastReceivedSequenceNr(bundleUID)
		stats.setReceivedSequenceBits(bits)
		return
	}

	distance := last - bundleUID
	if distance >= 1 && distance <= 32 {
		bits |= 1 << (distance - 1)
		stats.setReceivedSequenceBits(bits)
	}
	// distance == 0 (re-receiving "last") or > 32 (too old): window unchanged.
}
