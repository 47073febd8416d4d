package netcore

import "errors"

// Sentinel errors for the result-typed failure modes described by the
// transport's error-handling design. None of these are panics: callers
// are expected to check for them with errors.Is.
var (
	// ErrOutOfPackets is returned by PacketPool.RequestFree when the free
	// list is exhausted. Callers must drop the send attempt; the pool
	// should be sized >= max in-flight + reorder depth.
	ErrOutOfPackets = errors.New("netcore: packet pool exhausted")

	// ErrNotConnected is returned when a send is attempted outside the
	// Connected state.
	ErrNotConnected = errors.New("netcore: not connected")

	// ErrSocketBindFailed wraps a failure to bind the local UDP socket.
	ErrSocketBindFailed = errors.New("netcore: socket bind failed")

	// ErrSocketSendFailed wraps a failure to write a datagram.
	ErrSocketSendFailed = errors.New("netcore: socket send failed")

	// ErrSocketRecvFailed wraps a failure to read a datagram. Receive
	// failures are non-fatal: the receiver loop continues.
	ErrSocketRecvFailed = errors.New("netcore: socket receive failed")

	// ErrMaxRetriesReached is the reason passed to OnDisconnected /
	// OnClientDisconnected when a reliable message exhausts its retries
	// and the connection is torn down.
	ErrMaxRetriesReached = errors.New("netcore: max retries reached")

	// ErrMalformedDatagram marks a datagram that failed to parse. It is
	// never fatal: the datagram is dropped and the receive loop carries
	// on. No Statistics counter records malformed datagrams.
	ErrMalformedDatagram = errors.New("netcore: malformed datagram")

	// ErrCapacityReached names the server-at-capacity condition. ServerUDP
	// does not return it; it answers a datagram from a new endpoint with a
	// SERVER_FULL message once the accept table is full.
	ErrCapacityReached = errors.New("netcore: server at capacity")
)
