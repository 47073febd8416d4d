package netcore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketPoolRequestFreeExhaustion(t *testing.T) {
	pool := NewPacketPool(2)

	p1, err := pool.RequestFree()
	require.NoError(t, err)
	p2, err := pool.RequestFree()
	require.NoError(t, err)
	assert.NotSame(t, p1, p2)

	_, err = pool.RequestFree()
	assert.True(t, errors.Is(err, ErrOutOfPackets))
	assert.Equal(t, 0, pool.FreeCount())
}

func TestPacketPoolFreeReturnsSlotsForReuse(t *testing.T) {
	pool := NewPacketPool(1)

	p1, err := pool.RequestFree()
	require.NoError(t, err)
	p1.Type = TypeConnect
	p1.ReliableUID = 7
	p1.Payload = append(p1.Payload, 1, 2, 3)

	pool.Free([]*NetworkPacket{p1})
	assert.Equal(t, 1, pool.FreeCount())

	p2, err := pool.RequestFree()
	require.NoError(t, err)
	assert.Equal(t, uint16(0), p2.Type)
	assert.Equal(t, uint32(0), p2.ReliableUID)
	assert.Empty(t, p2.Payload)
}

func TestPacketPoolResetRebuildsFreeList(t *testing.T) {
	pool := NewPacketPool(4)
	_, err := pool.RequestFree()
	require.NoError(t, err)
	_, err = pool.RequestFree()
	require.NoError(t, err)
	assert.Equal(t, 2, pool.FreeCount())

	pool.Reset()
	assert.Equal(t, 4, pool.FreeCount())
}
