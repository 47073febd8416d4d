package netcore

import (
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/lambdanet/netcore/clock"
)

// RemoteClient is the server's view of one accepted (or accepting) peer:
// its endpoint, its own PacketManager/Statistics, and handshake state.
// Grounded on ClientUDPRemote.h — the per-connection record a
// ServerUDP's accept table owns, minus the intrusive-list bookkeeping
// the C++ version used for its free/active lists (ServerUDP's accept
// table is a plain Go map instead). It implements PacketListener itself,
// forwarding every reliable-delivery outcome to the owning ServerUDP's
// ServerHandler with itself as the remote argument; this is also what
// gives CHALLENGE/ACCEPTED their resend and give-up watchdog for free,
// since they travel over the same PacketManager as application traffic
// instead of a second, hand-rolled handshake timer.
type RemoteClient struct {
	id      uuid.UUID
	addr    net.Addr
	handler ServerHandler

	pool    *PacketPool
	stats   *Statistics
	manager *PacketManager

	mu    sync.Mutex
	state ClientState
}

func newRemoteClient(addr net.Addr, pool *PacketPool, clk clock.Clock, cfg config, handler ServerHandler) *RemoteClient {
	stats := NewStatistics()
	r := &RemoteClient{
		id:      uuid.New(),
		addr:    addr,
		handler: handler,
		pool:    pool,
		stats:   stats,
		state:   StateConnecting,
	}
	r.manager = NewPacketManager(pool, stats, clk, cfg, r)
	return r
}

// ID returns the UUID this server uses to correlate this remote's log
// lines, stable across the connection's lifetime.
func (r *RemoteClient) ID() uuid.UUID { return r.id }

// Addr returns the remote's UDP endpoint.
func (r *RemoteClient) Addr() net.Addr { return r.addr }

// State returns the remote's current connection state.
func (r *RemoteClient) State() ClientState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Statistics exposes the live NetworkStatistics for this remote.
func (r *RemoteClient) Statistics() *Statistics { return r.stats }

// Manager exposes the remote's PacketManager so a ServerHandler can
// enqueue messages back to this peer (e.g. echoing or broadcasting).
func (r *RemoteClient) Manager() *PacketManager { return r.manager }

func (r *RemoteClient) setState(s ClientState) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// OnPacketDelivered implements PacketListener.
func (r *RemoteClient) OnPacketDelivered(pkt *NetworkPacket) {
	if r.handler != nil {
		r.handler.OnPacketDelivered(r, pkt)
	}
}

// OnPacketResent implements PacketListener.
func (r *RemoteClient) OnPacketResent(pkt *NetworkPacket, retries int) {
	if r.handler != nil {
		r.handler.OnPacketResent(r, pkt, retries)
	}
}

// OnPacketMaxTriesReached implements PacketListener. The actual watchdog
// decision (releasing the remote once a reliable send is given up on)
// lives in ServerUDP.transmitOnce, which already inspects Tick's gaveUp
// return value for the same remote; this forwards the notification only.
func (r *RemoteClient) OnPacketMaxTriesReached(pkt *NetworkPacket, retries int) {
	if r.handler != nil {
		r.handler.OnPacketMaxTriesReached(r, pkt, retries)
	}
}
