package netcore

import (
	"encoding/binary"
	"fmt"
)

// Wire layout constants (see spec §6). All integers are little-endian.
const (
	datagramHeaderSize = 24
	messageHeaderSize  = 12 // length(2) + type(2) + uid(4) + reliableUID(4)
)

// cursor is a small stateful byte reader, the same shape as the
// teacher's BitStream but rebuilt for this protocol's little-endian,
// fixed-layout wire format instead of RakNet's bit-packed one. It only
// reads; encodeDatagramHeader and encodeMessage write buffers directly.
type cursor struct {
	buf []byte
	pos int
}

func newReadCursor(buf []byte) *cursor {
	return &cursor{buf: buf}
}

func (c *cursor) remaining() int { return len(c.buf) - c.pos }

func (c *cursor) readBytes(n int) ([]byte, error) {
	if c.remaining() < n {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrMalformedDatagram, n, c.remaining())
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

func (c *cursor) readUint16() (uint16, error) {
	b, err := c.readBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (c *cursor) readUint32() (uint32, error) {
	b, err := c.readBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (c *cursor) readUint64() (uint64, error) {
	b, err := c.readBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// datagramHeader is the 24-byte framing header shared by every outbound
// UDP datagram.
type datagramHeader struct {
	saltXOR              uint64
	bundleUID            uint32
	lastReceivedSequence uint32
	receivedSequenceBits uint32
	messageCount         uint16
}

func encodeDatagramHeader(buf []byte, h datagramHeader) {
	binary.LittleEndian.PutUint64(buf[0:8], h.saltXOR)
	binary.LittleEndian.PutUint32(buf[8:12], h.bundleUID)
	binary.LittleEndian.PutUint32(buf[12:16], h.lastReceivedSequence)
	binary.LittleEndian.PutUint32(buf[16:20], h.receivedSequenceBits)
	binary.LittleEndian.PutUint16(buf[20:22], h.messageCount)
	binary.LittleEndian.PutUint16(buf[22:24], 0) // reserved
}

func decodeDatagramHeader(c *cursor) (datagramHeader, error) {
	var h datagramHeader
	raw, err := c.readBytes(datagramHeaderSize)
	if err != nil {
		return h, err
	}
	h.saltXOR = binary.LittleEndian.Uint64(raw[0:8])
	h.bundleUID = binary.LittleEndian.Uint32(raw[8:12])
	h.lastReceivedSequence = binary.LittleEndian.Uint32(raw[12:16])
	h.receivedSequenceBits = binary.LittleEndian.Uint32(raw[16:20])
	h.messageCount = binary.LittleEndian.Uint16(raw[20:22])
	return h, nil
}

// encodeMessage appends one length-prefixed message frame to buf and
// returns the extended slice.
func encodeMessage(buf []byte, p *NetworkPacket) []byte {
	totalLength := uint16(messageHeaderSize - 2 + len(p.Payload))
	var frame [messageHeaderSize]byte
	binary.LittleEndian.PutUint16(frame[0:2], totalLength)
	binary.LittleEndian.PutUint16(frame[2:4], p.Type)
	binary.LittleEndian.PutUint32(frame[4:8], p.UID)
	binary.LittleEndian.PutUint32(frame[8:12], p.ReliableUID)
	buf = append(buf, frame[:]...)
	buf = append(buf, p.Payload...)
	return buf
}

// decodeMessage reads one length-prefixed message frame into a
// pool-borrowed packet.
func decodeMessage(c *cursor, pkt *NetworkPacket) error {
	totalLength, err := c.readUint16()
	if err != nil {
		return err
	}
	if int(totalLength) < messageHeaderSize-2 {
		return fmt.Errorf("%w: message length %d shorter than header", ErrMalformedDatagram, totalLength)
	}
	msgType, err := c.readUint16()
	if err != nil {
		return err
	}
	uid, err := c.readUint32()
	if err != nil {
		return err
	}
	reliableUID, err := c.readUint32()
	if err != nil {
		return err
	}
	payloadLen := int(totalLength) - (messageHeaderSize - 2)
	payload, err := c.readBytes(payloadLen)
	if err != nil {
		return err
	}

	pkt.Type = msgType
	pkt.UID = uid
	pkt.ReliableUID = reliableUID
	pkt.Payload = append(pkt.Payload[:0], payload...)
	return nil
}

// --- ACK/NACK-free ack inference -------------------------------------
//
// This protocol infers acks from the (lastReceivedAckNr, receivedAckBits)
// pair carried on every datagram header rather than sending separate
// ACK/NACK packets: receivedSequenceBits covers the 32 bundle_uids that
// precede lastReceivedSequence, one bit per prior sequence number.

// ackedUIDs expands a (lastAckNr, ackBits) pair into the set of bundle
// UIDs the header claims as received, covering lastAckNr itself and the
// 32 bundle UIDs immediately preceding it.
func ackedUIDs(lastAckNr, ackBits uint32) []uint32 {
	acks := make([]uint32, 0, 33)
	acks = append(acks, lastAckNr)
	for bit := uint32(0); bit < 32; bit++ {
		if ackBits&(1<<bit) != 0 {
			acks = append(acks, lastAckNr-1-bit)
		}
	}
	return acks
}

// sequenceGreater reports whether a is "newer" than b under 32-bit
// wraparound, using the signed-difference comparison spec §4.2 requires.
func sequenceGreater(a, b uint32) bool {
	return int32(a-b) > 0
}
