package netcore

import "net"

// ClientHandler receives lifecycle and message callbacks for a ClientUDP.
// Inbound messages and handshake transitions are reported from the
// ClientUDP's receiver goroutine; OnPacketResent, OnPacketMaxTriesReached
// and the OnDisconnected that follows a give-up come from its transmitter
// goroutine; OnConnecting and OnDisconnecting run on the goroutine that
// calls Connect or Disconnect. Implementations must not block
// indefinitely or the loop that called them stalls behind them.
type ClientHandler interface {
	// OnConnecting fires once the 3-way handshake begins.
	OnConnecting()
	// OnConnected fires once the server has accepted the connection.
	OnConnected()
	// OnDisconnecting fires when a local or remote disconnect has been
	// initiated but the connection has not yet fully torn down.
	OnDisconnecting()
	// OnDisconnected fires once the connection is torn down, with the
	// reason (nil for a clean, locally-initiated disconnect).
	OnDisconnected(reason error)
	// OnPacketReceived delivers one application-layer message in the
	// order QueryBegin produced it.
	OnPacketReceived(pkt *NetworkPacket)
	// OnPacketDelivered fires once a reliable message's carrying bundle
	// has been acked. Every reliable message triggers exactly one of
	// OnPacketDelivered or OnPacketMaxTriesReached, never neither.
	OnPacketDelivered(pkt *NetworkPacket)
	// OnPacketResent fires each time a reliable message is requeued
	// after its resend timeout elapsed without an ack, with the retry
	// count reached so far.
	OnPacketResent(pkt *NetworkPacket, retries int)
	// OnPacketMaxTriesReached fires once a reliable message's retry
	// count exceeds cfg.maxRetries; the message is given up on and not
	// resent again.
	OnPacketMaxTriesReached(pkt *NetworkPacket, retries int)
	// OnServerFull fires if the server rejected the connection attempt
	// because it was at capacity.
	OnServerFull()
}

// ServerHandler receives lifecycle and message callbacks for a ServerUDP.
// Methods are invoked from the server's single receiver goroutine, except
// OnPacketResent, OnPacketMaxTriesReached and the disconnect callbacks of
// a remote released after a give-up, which come from its transmitter
// goroutine. The same non-blocking constraint as ClientHandler applies, and handler
// code must treat RemoteClient as valid only for the duration of the
// call (a concurrently disconnecting client may already be released).
type ServerHandler interface {
	// OnClientConnecting fires when a new endpoint sends its first
	// CONNECT message, before the handshake completes.
	OnClientConnecting(remote *RemoteClient)
	// OnClientConnected fires once a remote's handshake completes.
	OnClientConnected(remote *RemoteClient)
	// OnClientDisconnecting fires when a remote's disconnect has been
	// initiated (locally or by the peer) but it has not yet been
	// released from the accept table.
	OnClientDisconnecting(remote *RemoteClient)
	// OnClientDisconnected fires once a remote is released, with the
	// reason (nil for a clean, peer-initiated disconnect).
	OnClientDisconnected(remote *RemoteClient, reason error)
	// OnPacketReceived delivers one application-layer message from
	// remote, in the order its PacketManager produced it.
	OnPacketReceived(remote *RemoteClient, pkt *NetworkPacket)
	// OnPacketDelivered fires once a reliable message sent to remote has
	// been acked. Every reliable message triggers exactly one of
	// OnPacketDelivered or OnPacketMaxTriesReached, never neither.
	OnPacketDelivered(remote *RemoteClient, pkt *NetworkPacket)
	// OnPacketResent fires each time a reliable message sent to remote
	// is requeued after its resend timeout elapsed without an ack.
	OnPacketResent(remote *RemoteClient, pkt *NetworkPacket, retries int)
	// OnPacketMaxTriesReached fires once a reliable message sent to
	// remote exceeds cfg.maxRetries and is given up on.
	OnPacketMaxTriesReached(remote *RemoteClient, pkt *NetworkPacket, retries int)
}

// PacketListener is the PacketManager-facing notification sink for a
// reliable message's outcome, independent of whether the manager belongs
// to a ClientUDP or a per-remote server connection. ClientUDP implements
// it directly against its ClientHandler; RemoteClient implements it to
// forward to its owning ServerUDP's ServerHandler with itself as the
// remote argument.
type PacketListener interface {
	OnPacketDelivered(pkt *NetworkPacket)
	OnPacketResent(pkt *NetworkPacket, retries int)
	OnPacketMaxTriesReached(pkt *NetworkPacket, retries int)
}

// endpointKey canonicalizes a net.Addr for use as a map key. UDP
// addresses compare unreliably by identity, so every accept-table and
// routing lookup goes through the string form instead of trying to
// reconstruct the original C++ engine's bespoke IPEndPoint hash.
func endpointKey(addr net.Addr) string {
	return addr.String()
}
