package netcore

import (
	"fmt"
	"sync"
)

// PacketPool is a bounded free list of preallocated NetworkPacket slots.
// RequestFree fails with ErrOutOfPackets once the list is empty; Free
// returns slots, resetting their bookkeeping but keeping their payload
// storage so repeated traffic doesn't keep re-allocating buffers.
type PacketPool struct {
	mu       sync.Mutex
	slots    []NetworkPacket
	freeList []int // indices into slots currently available
	capacity int
}

// NewPacketPool preallocates capacity packets, each with room for
// MaxPayload bytes, and marks them all free.
func NewPacketPool(capacity int) *PacketPool {
	p := &PacketPool{
		slots:    make([]NetworkPacket, capacity),
		freeList: make([]int, capacity),
		capacity: capacity,
	}
	for i := range p.slots {
		p.slots[i].poolIndex = i
		p.slots[i].Payload = make([]byte, 0, MaxPayload)
		p.freeList[i] = capacity - 1 - i // pop from the tail cheaply
	}
	return p
}

// RequestFree removes one slot from the free list and returns it, or
// ErrOutOfPackets if none remain.
func (p *PacketPool) RequestFree() (*NetworkPacket, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.freeList) == 0 {
		return nil, fmt.Errorf("%w: capacity %d", ErrOutOfPackets, p.capacity)
	}

	idx := p.freeList[len(p.freeList)-1]
	p.freeList = p.freeList[:len(p.freeList)-1]
	return &p.slots[idx], nil
}

// Free returns a batch of packets to the free list. Packets not owned by
// this pool (poolIndex out of range, defensive only) are ignored.
func (p *PacketPool) Free(batch []*NetworkPacket) {
	if len(batch) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, pkt := range batch {
		if pkt == nil || pkt.poolIndex < 0 || pkt.poolIndex >= len(p.slots) {
			continue
		}
		pkt.reset()
		p.freeList = append(p.freeList, pkt.poolIndex)
	}
}

// Reset returns every slot to the free list, discarding in-flight state.
// PacketManager.Reset does not call it (a server's pool is shared by all
// remotes); it frees its own packets one by one instead.
func (p *PacketPool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.freeList = p.freeList[:0]
	for i := range p.slots {
		p.slots[i].reset()
		p.freeList = append(p.freeList, i)
	}
}

// FreeCount returns the number of slots currently available. Used by the
// tests to check that packets come back to the pool.
func (p *PacketPool) FreeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.freeList)
}

// Capacity returns the pool's fixed size.
func (p *PacketPool) Capacity() int {
	return p.capacity
}
