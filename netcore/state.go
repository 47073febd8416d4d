package netcore

// ClientState is the lifecycle state of one end of a connection, shared
// by ClientUDP (the connecting side) and RemoteClient (the accepting
// side's view of a peer).
type ClientState int32

const (
	// StateDisconnected: no handshake in progress, no session established.
	StateDisconnected ClientState = iota
	// StateConnecting: CONNECT sent (client) or received (server),
	// CHALLENGE exchange in progress.
	StateConnecting
	// StateConnected: handshake complete, application messages flow.
	StateConnected
	// StateDisconnecting: DISCONNECT sent or received, tearing down.
	StateDisconnecting
)

func (s ClientState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}
