package netcore

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lambdanet/netcore/clock"
	"github.com/lambdanet/netcore/pkg/logger"
)

// ClientUDP is the connecting side of a reliable UDP connection: one
// socket, one PacketManager, one NetWorker running its receive and
// resend loops. The salted handshake (CONNECT → CHALLENGE(salt) →
// CHALLENGE(answer) → ACCEPTED) is carried entirely over
// PacketManager's reliable path: every handshake message is enqueued
// exactly once via EnqueueReliable and left to the manager's own
// resend/give-up timer, so a lost CHALLENGE simply causes the manager
// to resend the still-pending CONNECT or answer under its existing
// reliable_uid rather than needing a second, hand-rolled retry timer.
type ClientUDP struct {
	id      uuid.UUID
	cfg     config
	clk     clock.Clock
	handler ClientHandler
	log     *zap.SugaredLogger

	pool        *PacketPool
	stats       *Statistics
	manager     *PacketManager
	socket      Socket
	transceiver *Transceiver
	worker      *NetWorker

	serverAddr net.Addr

	mu    sync.Mutex
	state ClientState

	released atomic.Bool
}

// NewClient creates a ClientUDP ready to Connect. handler may be nil if
// the caller only needs SendReliable/SendUnreliable/QueryBegin-style
// polling rather than callbacks (not exposed at this layer; callbacks
// are the only delivery path, matching the teacher's event-driven style).
func NewClient(handler ClientHandler, opts ...Option) *ClientUDP {
	cfg := applyOptions(opts)
	clk := clock.NewSystem()
	pool := NewPacketPool(cfg.poolSize)
	stats := NewStatistics()
	id := uuid.New()
	c := &ClientUDP{
		id:      id,
		cfg:     cfg,
		clk:     clk,
		handler: handler,
		log:     logger.With("component", "client", "id", id),
		pool:    pool,
		stats:   stats,
		state:   StateDisconnected,
	}
	c.manager = NewPacketManager(pool, stats, clk, cfg, c)
	return c
}

// ID returns the UUID this client uses to correlate its own log lines,
// independent of whatever address it happens to be bound to.
func (c *ClientUDP) ID() uuid.UUID { return c.id }

// Statistics exposes the live NetworkStatistics for this connection.
func (c *ClientUDP) Statistics() *Statistics { return c.stats }

// State returns the current connection state.
func (c *ClientUDP) State() ClientState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect binds a local socket, sends the initial CONNECT, and starts
// the receive/transmit worker loops. It returns once the socket is
// bound and the loops are running; handshake completion is reported
// asynchronously through handler.OnConnected / OnServerFull.
func (c *ClientUDP) Connect(serverAddr string) error {
	addr, err := net.ResolveUDPAddr("udp", serverAddr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSocketBindFailed, err)
	}
	socket, err := BindUDP(":0")
	if err != nil {
		return err
	}
	return c.connectVia(socket, addr)
}

// connectVia is Connect with the socket and resolved server address
// supplied directly, so tests can substitute an in-memory Socket instead
// of binding a real UDP port.
func (c *ClientUDP) connectVia(socket Socket, addr net.Addr) error {
	c.mu.Lock()
	c.socket = socket
	c.serverAddr = addr
	c.transceiver = NewTransceiver(socket, c.clk, c.cfg)
	c.state = StateConnecting
	c.mu.Unlock()

	if c.handler != nil {
		c.handler.OnConnecting()
	}

	payload := make([]byte, 8)
	binary.LittleEndian.PutUint64(payload, c.stats.LocalSalt())
	if _, err := c.manager.EnqueueReliable(TypeConnect, payload); err != nil {
		c.log.Errorw("failed to enqueue CONNECT", "error", err)
	}

	c.worker = NewNetWorker(c.cfg.tickInterval, c.receiveOnce, c.transmitOnce, socket.Close)
	c.worker.Start()
	return nil
}

// SendReliable enqueues an application message for guaranteed, in-order
// (relative to other reliable messages) delivery.
func (c *ClientUDP) SendReliable(msgType uint16, payload []byte) (uint32, error) {
	if c.State() != StateConnected {
		return 0, ErrNotConnected
	}
	return c.manager.EnqueueReliable(msgType, payload)
}

// SendUnreliable enqueues an application message with no delivery or
// ordering guarantee.
func (c *ClientUDP) SendUnreliable(msgType uint16, payload []byte) (uint32, error) {
	if c.State() != StateConnected {
		return 0, ErrNotConnected
	}
	return c.manager.EnqueueUnreliable(msgType, payload)
}

// Disconnect sends a reliable DISCONNECT and transitions to
// StateDisconnecting; the connection finishes tearing down (transition
// to StateDisconnected, firing OnDisconnected) once that DISCONNECT is
// acked, via OnPacketDelivered below.
func (c *ClientUDP) Disconnect() {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	c.state = StateDisconnecting
	c.mu.Unlock()

	if c.handler != nil {
		c.handler.OnDisconnecting()
	}

	_, _ = c.manager.EnqueueReliable(TypeDisconnect, nil)
	_ = c.manager.Flush(c.transceiver, c.serverAddr)
}

// Release stops the worker loops, closes the socket, and resets the
// PacketManager/pool so this ClientUDP can Connect again. The socket is
// closed by the worker's abort callback as part of TerminateAndRelease,
// which is what unblocks the receiver goroutine's in-progress read —
// closing it again here would just race a second Close against that.
func (c *ClientUDP) Release() error {
	if !c.released.CompareAndSwap(false, true) {
		return nil
	}
	var err error
	if c.worker != nil {
		err = c.worker.TerminateAndRelease()
	}
	c.manager.Reset()
	c.stats.reset()

	c.mu.Lock()
	c.state = StateDisconnected
	c.mu.Unlock()

	c.released.Store(false)
	return err
}

func (c *ClientUDP) transmitOnce(ctx context.Context) error {
	if gaveUp := c.manager.Tick(); len(gaveUp) > 0 {
		c.pool.Free(gaveUp)
	}
	return c.manager.Flush(c.transceiver, c.serverAddr)
}

func (c *ClientUDP) receiveOnce(ctx context.Context) error {
	buf := make([]byte, MaximumPacketSize)
	n, from, err := c.transceiver.ReceiveBegin(buf)
	if err != nil {
		return err
	}
	if c.serverAddr != nil && from.String() != c.serverAddr.String() {
		return nil // spoofed/stray datagram from an unexpected source
	}

	var received []*NetworkPacket
	var acks []uint32
	if err := c.transceiver.Decode(buf[:n], c.pool, c.stats, &received, &acks); err != nil {
		return err
	}
	c.manager.AckBundles(acks)

	delivered := c.manager.QueryBegin(received)
	for _, pkt := range delivered {
		c.handleInbound(pkt)
	}
	c.manager.QueryEnd(delivered)
	return nil
}

func (c *ClientUDP) handleInbound(pkt *NetworkPacket) {
	switch pkt.Type {
	case TypeChallenge:
		if c.State() != StateConnecting {
			return
		}
		remoteSalt := binary.LittleEndian.Uint64(pkt.Payload)
		c.stats.setRemoteSalt(remoteSalt)
		answer := ComputeChallengeAnswer(c.stats.LocalSalt(), remoteSalt)
		payload := make([]byte, 8)
		binary.LittleEndian.PutUint64(payload, answer)
		if _, err := c.manager.EnqueueReliable(TypeChallenge, payload); err != nil {
			c.log.Errorw("failed to enqueue handshake answer", "error", err)
		}
	case TypeAccepted:
		c.mu.Lock()
		if c.state != StateConnecting {
			c.mu.Unlock()
			return
		}
		c.state = StateConnected
		c.mu.Unlock()
		if c.handler != nil {
			c.handler.OnConnected()
		}
	case TypeServerFull:
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		if c.handler != nil {
			c.handler.OnServerFull()
		}
	case TypeDisconnect:
		c.mu.Lock()
		c.state = StateDisconnecting
		c.mu.Unlock()
		if c.handler != nil {
			c.handler.OnDisconnecting()
		}
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		if c.handler != nil {
			c.handler.OnDisconnected(nil)
		}
	case TypeNetworkAck:
		// piggybacked solely on the datagram header; no payload handling.
	default:
		if c.handler != nil {
			c.handler.OnPacketReceived(pkt)
		}
	}
}

// OnPacketDelivered implements PacketListener. A delivered DISCONNECT
// completes the drain this client's own Disconnect started: only then
// does the connection actually finish tearing down.
func (c *ClientUDP) OnPacketDelivered(pkt *NetworkPacket) {
	if c.handler != nil {
		c.handler.OnPacketDelivered(pkt)
	}
	if pkt.Type != TypeDisconnect {
		return
	}
	c.mu.Lock()
	wasDisconnecting := c.state == StateDisconnecting
	if wasDisconnecting {
		c.state = StateDisconnected
	}
	c.mu.Unlock()
	if wasDisconnecting && c.handler != nil {
		c.handler.OnDisconnected(nil)
	}
}

// OnPacketResent implements PacketListener.
func (c *ClientUDP) OnPacketResent(pkt *NetworkPacket, retries int) {
	if c.handler != nil {
		c.handler.OnPacketResent(pkt, retries)
	}
}

// OnPacketMaxTriesReached implements PacketListener. Per the transport's
// watchdog rule, exceeding max_retries on any reliable send — handshake
// or application message — kills the connection rather than just
// dropping the one message.
func (c *ClientUDP) OnPacketMaxTriesReached(pkt *NetworkPacket, retries int) {
	if c.handler != nil {
		c.handler.OnPacketMaxTriesReached(pkt, retries)
	}
	c.mu.Lock()
	if c.state == StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.state = StateDisconnected
	c.mu.Unlock()
	if c.handler != nil {
		c.handler.OnDisconnected(ErrMaxRetriesReached)
	}
}
