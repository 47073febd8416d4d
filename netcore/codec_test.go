package netcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatagramHeaderRoundTrip(t *testing.T) {
	buf := make([]byte, datagramHeaderSize)
	want := datagramHeader{
		saltXOR:              0xdeadbeefcafef00d,
		bundleUID:            42,
		lastReceivedSequence: 7,
		receivedSequenceBits: 0b1011,
		messageCount:         3,
	}
	encodeDatagramHeader(buf, want)

	got, err := decodeDatagramHeader(newReadCursor(buf))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestMessageRoundTrip(t *testing.T) {
	pool := NewPacketPool(4)
	src, err := pool.RequestFree()
	require.NoError(t, err)
	src.Type = 1024
	src.UID = 5
	src.ReliableUID = 9
	src.Payload = append(src.Payload, []byte("hello")...)

	buf := make([]byte, datagramHeaderSize)
	buf = encodeMessage(buf, src)

	dst, err := pool.RequestFree()
	require.NoError(t, err)
	c := newReadCursor(buf)
	_, err = c.readBytes(datagramHeaderSize)
	require.NoError(t, err)
	require.NoError(t, decodeMessage(c, dst))

	assert.Equal(t, src.Type, dst.Type)
	assert.Equal(t, src.UID, dst.UID)
	assert.Equal(t, src.ReliableUID, dst.ReliableUID)
	assert.Equal(t, src.Payload, dst.Payload)
}

func TestDecodeMessageMalformedDatagramShortBuffer(t *testing.T) {
	pool := NewPacketPool(1)
	dst, err := pool.RequestFree()
	require.NoError(t, err)

	c := newReadCursor([]byte{0x10, 0x00}) // claims a 16-byte message, no body
	err = decodeMessage(c, dst)
	assert.ErrorIs(t, err, ErrMalformedDatagram)
}

func TestSequenceGreaterHandlesWraparound(t *testing.T) {
	assert.True(t, sequenceGreater(1, 0))
	assert.False(t, sequenceGreater(0, 1))
	assert.True(t, sequenceGreater(0, 0xFFFFFFFF)) // wraps forward past max uint32
	assert.False(t, sequenceGreater(0xFFFFFFFF, 0))
}

func TestAckedUIDsExpandsBitmask(t *testing.T) {
	// lastAckNr=100, bit 0 set (99 acked), bit 3 set (96 acked)
	acks := ackedUIDs(100, 0b1001)
	assert.Contains(t, acks, uint32(100))
	assert.Contains(t, acks, uint32(99))
	assert.Contains(t, acks, uint32(96))
	assert.Len(t, acks, 3)
}
