// Package netcore implements the reliable message transport described by
// the engine's networking core: framing, acking, ordering, retries and the
// client/server connection lifecycle, all built on top of plain UDP
// datagrams.
package netcore

// Reserved application message types. Application-defined types must be
// >= FirstApplicationType.
const (
	TypeConnect        uint16 = 1
	TypeChallenge       uint16 = 2
	TypeAccepted        uint16 = 3
	TypeDisconnect      uint16 = 4
	TypeServerFull      uint16 = 5
	TypeNetworkAck      uint16 = 6

	FirstApplicationType uint16 = 1024
)

// MaximumPacketSize is the hard cap on one outbound datagram, chosen to
// stay under a typical safe UDP MTU once IP/UDP headers are subtracted.
const MaximumPacketSize = 1024

// MaxPayload is the largest application payload a single NetworkPacket may
// carry. It leaves room for the 24-byte datagram header plus one
// per-message frame header (12 bytes) within MaximumPacketSize.
const MaxPayload = MaximumPacketSize - datagramHeaderSize - messageHeaderSize

// NetworkPacket is one application-level message: either free-listed in a
// PacketPool, queued for send, in flight awaiting an ack, sitting in a
// receive reorder buffer, or handed to a handler callback — never more
// than one of those at a time.
type NetworkPacket struct {
	Type        uint16
	UID         uint32
	ReliableUID uint32
	RemoteSalt  uint64
	Payload     []byte

	// poolIndex locates this packet's slot for PacketPool.free; it is
	// meaningless to callers outside the pool.
	poolIndex int
	// retries counts how many times this reliable message has been
	// resent after its carrying bundle went unacked past the resend
	// timeout. Tracked per-message rather than per-bundle because a
	// resent message is re-bundled with whatever else is queued at the
	// time, so its bundle UID changes on every retry.
	retries int
}

// IsReliable reports whether this packet belongs to the reliable
// subsequence (i.e. it was enqueued via EnqueueReliable).
func (p *NetworkPacket) IsReliable() bool {
	return p.ReliableUID != 0
}

// reset clears all bookkeeping fields but keeps the Payload's backing
// array, so PacketPool.Free never discards allocated storage.
func (p *NetworkPacket) reset() {
	p.Type = 0
	p.UID = 0
	p.ReliableUID = 0
	p.RemoteSalt = 0
	p.Payload = p.Payload[:0]
	p.retries = 0
}
