package netcore

import (
	"context"
	"encoding/binary"
	"net"

	"go.uber.org/zap"

	"github.com/lambdanet/netcore/clock"
	"github.com/lambdanet/netcore/pkg/logger"
)

// ServerUDP is the accepting side: one shared socket, one accept table
// keyed by endpoint, one NetWorker driving a single receive loop that
// demuxes inbound datagrams to the right RemoteClient and a single
// transmit loop that flushes every remote's PacketManager in turn.
// Grounded on Server/Include/ClientUDPHandler.{cpp,h} for the
// accept/capacity/release flow, with the bespoke IPEndPoint hash
// replaced by net.Addr.String() keys (see SPEC_FULL.md open question
// resolution).
type ServerUDP struct {
	cfg     config
	clk     clock.Clock
	handler ServerHandler
	log     *zap.SugaredLogger

	pool        *PacketPool
	socket      Socket
	transceiver *Transceiver
	worker      *NetWorker

	remotes *registry
}

// NewServer creates a ServerUDP. The pool is shared across every
// accepted remote: a single oversubscribed connection can starve the
// whole server of packets (ErrOutOfPackets), which is the intended
// backpressure signal under the spec's shared-pool design.
func NewServer(handler ServerHandler, opts ...Option) *ServerUDP {
	cfg := applyOptions(opts)
	clk := clock.NewSystem()
	pool := NewPacketPool(cfg.poolSize)
	return &ServerUDP{
		cfg:     cfg,
		clk:     clk,
		handler: handler,
		log:     logger.With("component", "server"),
		pool:    pool,
		remotes: newRegistry(),
	}
}

// Listen binds localAddr and starts the receive/transmit worker loops.
func (s *ServerUDP) Listen(localAddr string) error {
	socket, err := BindUDP(localAddr)
	if err != nil {
		return err
	}
	return s.listenOn(socket)
}

// listenOn is Listen with the socket supplied directly, so tests can
// substitute an in-memory Socket instead of binding a real UDP port.
func (s *ServerUDP) listenOn(socket Socket) error {
	s.socket = socket
	s.transceiver = NewTransceiver(socket, s.clk, s.cfg)
	s.worker = NewNetWorker(s.cfg.tickInterval, s.receiveOnce, s.transmitOnce, socket.Close)
	s.worker.Start()
	return nil
}

// Close stops the worker loops and closes the socket. Accepted remotes
// are not individually notified; callers that want a clean DISCONNECT
// fan-out should iterate Remotes() and send TypeDisconnect first. The
// socket is closed by the worker's abort callback as part of
// TerminateAndRelease — that's what unblocks the receiver goroutine's
// in-progress read, so it must happen before/during wg.Wait(), not after.
func (s *ServerUDP) Close() error {
	var err error
	if s.worker != nil {
		err = s.worker.TerminateAndRelease()
	}
	return err
}

// Remotes returns a snapshot of every currently accepted remote.
func (s *ServerUDP) Remotes() []*RemoteClient {
	return s.remotes.snapshot()
}

// Count returns the number of currently accepted remotes.
func (s *ServerUDP) Count() int {
	return s.remotes.len()
}

// Disconnect sends a reliable DISCONNECT and releases remote immediately;
// the server owns the accept-table entry outright so it doesn't need to
// wait for the ack the way a ClientUDP waits to drain before finalizing.
func (s *ServerUDP) Disconnect(remote *RemoteClient) {
	_, _ = remote.manager.EnqueueReliable(TypeDisconnect, nil)
	_ = remote.manager.Flush(s.transceiver, remote.addr)
	s.releaseRemote(remote, nil)
}

// releaseRemote tears a remote out of the accept table, firing
// OnClientDisconnecting just before the state flips and OnClientDisconnected
// once it's fully gone.
func (s *ServerUDP) releaseRemote(remote *RemoteClient, reason error) {
	key := endpointKey(remote.addr)
	if _, ok := s.remotes.get(key); !ok {
		return
	}
	remote.setState(StateDisconnecting)
	if s.handler != nil {
		s.handler.OnClientDisconnecting(remote)
	}
	s.remotes.remove(key)
	remote.setState(StateDisconnected)
	remote.manager.Reset()
	if s.handler != nil {
		s.handler.OnClientDisconnected(remote, reason)
	}
}

func (s *ServerUDP) receiveOnce(ctx context.Context) error {
	buf := make([]byte, MaximumPacketSize)
	n, from, err := s.socket.ReceiveFrom(buf)
	if err != nil {
		return err
	}

	key := endpointKey(from)
	remote, known := s.remotes.get(key)
	if !known {
		if s.remotes.len() >= s.cfg.serverCapacity {
			s.sendServerFull(from)
			return nil
		}
		remote = newRemoteClient(from, s.pool, s.clk, s.cfg, s.handler)
	}

	var received []*NetworkPacket
	var acks []uint32
	if err := s.transceiver.Decode(buf[:n], s.pool, remote.stats, &received, &acks); err != nil {
		return err
	}
	if !known {
		// Only a CONNECT opens an accept-table entry for a new endpoint.
		isConnect := false
		for _, pkt := range received {
			isConnect = isConnect || pkt.Type == TypeConnect
		}
		if !isConnect {
			s.pool.Free(received)
			return nil
		}
		s.remotes.add(key, remote)
		if s.handler != nil {
			s.handler.OnClientConnecting(remote)
		}
	}
	remote.manager.AckBundles(acks)

	delivered := remote.manager.QueryBegin(received)
	for _, pkt := range delivered {
		s.handleInbound(remote, pkt)
	}
	remote.manager.QueryEnd(delivered)
	return nil
}

func (s *ServerUDP) sendServerFull(to net.Addr) {
	pkt, err := s.pool.RequestFree()
	if err != nil {
		return
	}
	pkt.Type = TypeServerFull
	buf := make([]byte, datagramHeaderSize)
	buf = encodeMessage(buf, pkt)
	encodeDatagramHeader(buf, datagramHeader{messageCount: 1})
	_, _ = s.socket.SendTo(buf, to)
	s.pool.Free([]*NetworkPacket{pkt})
}

func (s *ServerUDP) handleInbound(remote *RemoteClient, pkt *NetworkPacket) {
	switch pkt.Type {
	case TypeConnect:
		s.handleConnect(remote, pkt)
	case TypeChallenge:
		s.handleChallengeAnswer(remote, pkt)
	case TypeDisconnect:
		s.releaseRemote(remote, nil)
	default:
		if remote.State() != StateConnected {
			return
		}
		if s.handler != nil {
			s.handler.OnPacketReceived(remote, pkt)
		}
	}
}

// handleConnect handles phase 1 of the handshake only: the initiator's
// CONNECT, carrying its local salt. Because CONNECT travels reliably, a
// lost-ack retry of the same message is deduplicated by QueryBegin's
// reorder buffer before it ever reaches here — the old "is this message
// actually a re-send?" guesswork based on whether a salt had already been
// recorded is no longer needed, or possible to get wrong.
func (s *ServerUDP) handleConnect(remote *RemoteClient, pkt *NetworkPacket) {
	if remote.State() != StateConnecting {
		return // handshake already advanced past phase 1; stray/duplicate
	}
	if len(pkt.Payload) != 8 {
		return
	}
	clientSalt := binary.LittleEndian.Uint64(pkt.Payload)
	remote.stats.setRemoteSalt(clientSalt)
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint64(payload, remote.stats.LocalSalt())
	if _, err := remote.manager.EnqueueReliable(TypeChallenge, payload); err != nil {
		s.log.Errorw("failed to enqueue CHALLENGE", "remote", remote.id, "error", err)
	}
}

// handleChallengeAnswer handles phase 3: the initiator's answer, itself
// carried inside a reliable message of type TypeChallenge (not a second
// CONNECT) per the handshake's wire sequence.
func (s *ServerUDP) handleChallengeAnswer(remote *RemoteClient, pkt *NetworkPacket) {
	if remote.State() != StateConnecting {
		return
	}
	if len(pkt.Payload) != 8 {
		return
	}
	answer := binary.LittleEndian.Uint64(pkt.Payload)
	expected := ComputeChallengeAnswer(remote.stats.LocalSalt(), remote.stats.RemoteSalt())
	if answer != expected {
		s.releaseRemote(remote, ErrMalformedDatagram)
		return
	}
	remote.setState(StateConnected)
	if _, err := remote.manager.EnqueueReliable(TypeAccepted, nil); err != nil {
		s.log.Errorw("failed to enqueue ACCEPTED", "remote", remote.id, "error", err)
	}
	if s.handler != nil {
		s.handler.OnClientConnected(remote)
	}
}

func (s *ServerUDP) transmitOnce(ctx context.Context) error {
	for _, remote := range s.remotes.snapshot() {
		if gaveUp := remote.manager.Tick(); len(gaveUp) > 0 {
			s.pool.Free(gaveUp)
			// Watchdog: exceeding max_retries on any reliable send to this
			// remote — handshake or application message — means it can no
			// longer be reached, so the connection is released outright.
			s.releaseRemote(remote, ErrMaxRetriesReached)
			continue
		}
		if err := remote.manager.Flush(s.transceiver, remote.addr); err != nil {
			s.log.Warnw("flush failed", "remote", remote.id, "error", err)
		}
	}
	return nil
}
