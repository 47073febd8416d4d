package netcore

import (
	"net"
	"sync"

	"github.com/lambdanet/netcore/clock"
)

// packetQueue is a small FIFO of pool-borrowed packets awaiting
// transmission. Not safe for concurrent use; callers serialize access
// with their own lock (PacketManager.sendMu).
type packetQueue struct {
	items []*NetworkPacket
}

func newPacketQueue() *packetQueue {
	return &packetQueue{items: make([]*NetworkPacket, 0, 16)}
}

func (q *packetQueue) pushBack(p *NetworkPacket) { q.items = append(q.items, p) }
func (q *packetQueue) empty() bool               { return len(q.items) == 0 }
func (q *packetQueue) front() *NetworkPacket      { return q.items[0] }
func (q *packetQueue) popFront() {
	q.items[0] = nil
	q.items = q.items[1:]
}

// inFlightBundle is the ack-matching record for one transmitted datagram
// that carried at least one reliable message: which reliable UIDs it
// carried, and when it was sent. It exists purely so an incoming ack
// (keyed by bundle_uid) can be translated into the reliable UIDs it
// covers; the decision to resend or give up on a message lives
// separately, in pending, keyed by reliable_uid.
type inFlightBundle struct {
	uid          uint32
	reliableUIDs []uint32
	sentAt       clock.Timestamp
}

// pendingMessage is the per-message resend record for one outstanding
// reliable message: the packet itself (so it can be requeued or handed
// to a listener) and when it was last (re)sent.
type pendingMessage struct {
	pkt      *NetworkPacket
	lastSent clock.Timestamp
}

// bundleAgingFloor is the minimum bundle-aging window regardless of ping,
// so a freshly-opened connection with no RTT sample yet doesn't age out
// bundles after a handful of milliseconds.
const bundleAgingFloor = clock.Timestamp(100_000_000) // 100ms

// bundleAgingInterval is how often the bundle-aging sweep runs, distinct
// from and much coarser than the per-tick per-message resend check.
const bundleAgingInterval = clock.Timestamp(1_000_000_000) // 1s

// PacketManager owns one direction's worth of reliability bookkeeping
// for a single connection: the outbound send queue, in-flight reliable
// bundles awaiting ack, the per-message resend timer, and the inbound
// reorder buffer that restores in-order delivery for reliable messages.
// Grounded directly on the original PacketManager (queue → bundle → ack
// → resend pipeline), with the C++ raw pointer/intrusive-list
// bookkeeping replaced by Go maps and slices and the termination flag
// replaced by an explicit Reset.
type PacketManager struct {
	pool     *PacketPool
	stats    *Statistics
	clk      clock.Clock
	cfg      config
	listener PacketListener

	sendMu       sync.Mutex
	sendActive   *packetQueue
	sendDraining *packetQueue

	bundlesMu       sync.Mutex
	inFlight        map[uint32]*inFlightBundle
	pending         map[uint32]*pendingMessage
	nextMessageUID  uint32
	nextReliableUID uint32
	lastBundleSweep clock.Timestamp

	reorderMu       sync.Mutex
	reorderBuffer   map[uint32]*NetworkPacket
	nextExpectedUID uint32
	deliverable     []*NetworkPacket
}

// NewPacketManager creates a PacketManager drawing packets from pool.
// nextExpectedUID starts at 1: reliable UIDs are assigned starting at 1
// so that 0 can mean "not reliable" (NetworkPacket.IsReliable). listener
// may be nil, in which case delivery/resend/give-up notifications are
// simply not dispatched anywhere.
func NewPacketManager(pool *PacketPool, stats *Statistics, clk clock.Clock, cfg config, listener PacketListener) *PacketManager {
	return &PacketManager{
		pool:            pool,
		stats:           stats,
		clk:             clk,
		cfg:             cfg,
		listener:        listener,
		sendActive:      newPacketQueue(),
		sendDraining:    newPacketQueue(),
		inFlight:        make(map[uint32]*inFlightBundle),
		pending:         make(map[uint32]*pendingMessage),
		nextReliableUID: 1,
		reorderBuffer:   make(map[uint32]*NetworkPacket),
		nextExpectedUID: 1,
	}
}

// EnqueueReliable borrows a packet from the pool, copies payload into it,
// and appends it to the active send queue, returning the reliable UID
// the receiver uses to order and dedupe it (acks name bundle UIDs).
func (m *PacketManager) EnqueueReliable(msgType uint16, payload []byte) (uint32, error) {
	return m.enqueue(msgType, payload, true)
}

// EnqueueUnreliable is EnqueueReliable without ack tracking: the message
// may be dropped or delivered out of order and is never resent.
func (m *PacketManager) EnqueueUnreliable(msgType uint16, payload []byte) (uint32, error) {
	return m.enqueue(msgType, payload, false)
}

func (m *PacketManager) enqueue(msgType uint16, payload []byte, reliable bool) (uint32, error) {
	if len(payload) > MaxPayload {
		return 0, ErrMalformedDatagram
	}
	pkt, err := m.pool.RequestFree()
	if err != nil {
		return 0, err
	}

	m.bundlesMu.Lock()
	m.nextMessageUID++
	uid := m.nextMessageUID
	var reliableUID uint32
	if reliable {
		reliableUID = m.nextReliableUID
		m.nextReliableUID++
	}
	m.bundlesMu.Unlock()

	pkt.Type = msgType
	pkt.UID = uid
	pkt.ReliableUID = reliableUID
	pkt.Payload = append(pkt.Payload[:0], payload...)

	m.sendMu.Lock()
	m.sendActive.pushBack(pkt)
	m.sendMu.Unlock()

	if reliable {
		m.stats.registerReliableMessageSent()
		return reliableUID, nil
	}
	m.stats.registerMessageSent()
	return uid, nil
}

// Flush hands the queued messages to transceiver for transmission to
// endpoint, looping until everything queued at the time of the call has
// gone out (a queue can span more than one datagram). Flush never holds
// sendMu and bundlesMu at the same time (it swaps the queues under
// sendMu, then records sent bundles under bundlesMu); Tick, enqueue and
// Reset likewise take the two locks one after the other, so they cannot
// deadlock against each other.
func (m *PacketManager) Flush(transceiver *Transceiver, endpoint net.Addr) error {
	m.sendMu.Lock()
	draining := m.sendActive
	m.sendActive = m.sendDraining
	m.sendDraining = draining
	m.sendMu.Unlock()

	for !draining.empty() {
		bundleUID, encoded, sent, err := transceiver.Transmit(m.pool, draining, endpoint, m.stats)
		if err != nil {
			return err
		}
		if !sent {
			continue
		}
		m.settleSentBundle(bundleUID, encoded)
	}
	return nil
}

func (m *PacketManager) settleSentBundle(bundleUID uint32, encoded []*NetworkPacket) {
	now := m.clk.Now()

	var reliableUIDs []uint32
	var unreliable []*NetworkPacket
	for _, pkt := range encoded {
		if !pkt.IsReliable() {
			unreliable = append(unreliable, pkt)
			continue
		}
		reliableUIDs = append(reliableUIDs, pkt.ReliableUID)
	}
	if len(unreliable) > 0 {
		m.pool.Free(unreliable)
	}
	if len(reliableUIDs) == 0 {
		return
	}

	m.bundlesMu.Lock()
	m.inFlight[bundleUID] = &inFlightBundle{
		uid:          bundleUID,
		reliableUIDs: reliableUIDs,
		sentAt:       now,
	}
	for _, pkt := range encoded {
		if !pkt.IsReliable() {
			continue
		}
		if existing, ok := m.pending[pkt.ReliableUID]; ok {
			existing.lastSent = now
		} else {
			m.pending[pkt.ReliableUID] = &pendingMessage{pkt: pkt, lastSent: now}
		}
	}
	m.bundlesMu.Unlock()
}

// AckBundles translates every acked bundle UID into the reliable UIDs it
// carried, delivers each one exactly once (a message resent while its
// original bundle was still in flight may be named by more than one
// acked bundle), samples one RTT observation per acked bundle, and
// frees the delivered packets back to the pool. Called with the bundle
// UIDs a received datagram's header piggybacked.
func (m *PacketManager) AckBundles(acked []uint32) {
	if len(acked) == 0 {
		return
	}
	now := m.clk.Now()

	m.bundlesMu.Lock()
	var delivered []*NetworkPacket
	for _, uid := range acked {
		bundle, ok := m.inFlight[uid]
		if !ok {
			continue
		}
		delete(m.inFlight, uid)
		m.stats.registerRTT(now - bundle.sentAt)

		for _, rUID := range bundle.reliableUIDs {
			msg, ok := m.pending[rUID]
			if !ok {
				continue // already delivered via another bundle's ack
			}
			delete(m.pending, rUID)
			delivered = append(delivered, msg.pkt)
		}
	}
	m.bundlesMu.Unlock()

	if len(delivered) == 0 {
		return
	}
	if m.listener != nil {
		for _, pkt := range delivered {
			m.listener.OnPacketDelivered(pkt)
		}
	}
	m.pool.Free(delivered)
}

// resendTimeout derives the per-message retransmit deadline from the
// smoothed RTT, floored at 5ms so a near-zero ping on a loopback
// connection doesn't spin the resend loop.
func (m *PacketManager) resendTimeout(ping clock.Timestamp) clock.Timestamp {
	timeout := ping.Scale(m.cfg.resendRTTMultiplier)
	floor := clock.Duration(5_000_000) // 5ms
	if timeout < floor {
		return floor
	}
	return timeout
}

// bundleAgeLimit derives how long an unacked bundle is allowed to sit in
// inFlight before its aging sweep counts it as lost, floored at 100ms.
func bundleAgeLimit(ping clock.Timestamp) clock.Timestamp {
	limit := ping.Scale(100)
	if limit < bundleAgingFloor {
		return bundleAgingFloor
	}
	return limit
}

// Tick runs the two independent timers the transport relies on:
//
//  1. Every call, the per-message resend timer: any reliable message
//     whose last (re)send is older than resendTimeout(ping) is either
//     requeued (incrementing its retry count and firing
//     listener.OnPacketResent) or, once cfg.maxRetries is exhausted,
//     given up on (firing listener.OnPacketMaxTriesReached and returned
//     in gaveUp for the caller to free).
//  2. At most once per bundleAgingInterval, a coarse sweep of the
//     in-flight bundle map that drops bundles older than
//     bundleAgeLimit(ping), counting each as a lost packet. This is
//     pure bookkeeping hygiene — the bundle may already have had its
//     messages resent under a new bundle UID by timer (1); aging the
//     stale entry out just bounds the size of inFlight.
func (m *PacketManager) Tick() (gaveUp []*NetworkPacket) {
	now := m.clk.Now()
	ping := m.stats.Ping()
	resendDeadline := m.resendTimeout(ping)

	m.bundlesMu.Lock()
	var toResend []*NetworkPacket
	var toGiveUp []*NetworkPacket
	for rUID, msg := range m.pending {
		if now-msg.lastSent < resendDeadline {
			continue
		}
		pkt := msg.pkt
		pkt.retries++
		if pkt.retries > m.cfg.maxRetries {
			delete(m.pending, rUID)
			toGiveUp = append(toGiveUp, pkt)
			continue
		}
		msg.lastSent = now
		toResend = append(toResend, pkt)
	}

	var agedLoss int
	if now-m.lastBundleSweep >= bundleAgingInterval {
		m.lastBundleSweep = now
		ageLimit := bundleAgeLimit(ping)
		for uid, bundle := range m.inFlight {
			if now-bundle.sentAt < ageLimit {
				continue
			}
			delete(m.inFlight, uid)
			agedLoss++
		}
	}
	m.bundlesMu.Unlock()

	for i := 0; i < agedLoss; i++ {
		m.stats.registerPacketLoss()
	}

	if len(toResend) > 0 {
		m.sendMu.Lock()
		for _, pkt := range toResend {
			m.sendActive.pushBack(pkt)
		}
		m.sendMu.Unlock()
		if m.listener != nil {
			for _, pkt := range toResend {
				m.listener.OnPacketResent(pkt, pkt.retries)
			}
		}
	}

	if len(toGiveUp) > 0 {
		for range toGiveUp {
			m.stats.registerPacketLoss()
		}
		if m.listener != nil {
			for _, pkt := range toGiveUp {
				m.listener.OnPacketMaxTriesReached(pkt, pkt.retries)
			}
		}
		gaveUp = toGiveUp
	}
	return gaveUp
}

// QueryBegin folds newly received messages into the reorder buffer and
// returns every message now deliverable in order: unreliable messages
// pass straight through, reliable ones are held until every lower
// reliable UID has already been delivered.
func (m *PacketManager) QueryBegin(received []*NetworkPacket) []*NetworkPacket {
	m.reorderMu.Lock()
	defer m.reorderMu.Unlock()

	m.deliverable = m.deliverable[:0]
	for _, pkt := range received {
		if !pkt.IsReliable() {
			m.deliverable = append(m.deliverable, pkt)
			continue
		}
		if pkt.ReliableUID < m.nextExpectedUID {
			// duplicate of an already-delivered reliable message
			m.pool.Free([]*NetworkPacket{pkt})
			continue
		}
		m.reorderBuffer[pkt.ReliableUID] = pkt
	}

	for {
		pkt, ok := m.reorderBuffer[m.nextExpectedUID]
		if !ok {
			break
		}
		delete(m.reorderBuffer, m.nextExpectedUID)
		m.deliverable = append(m.deliverable, pkt)
		m.nextExpectedUID++
		m.stats.registerReliableMessageReceived()
	}

	return m.deliverable
}

// QueryEnd returns every packet QueryBegin handed out back to the pool.
// The caller must have finished reading their payloads first.
func (m *PacketManager) QueryEnd(delivered []*NetworkPacket) {
	m.pool.Free(delivered)
}

// Reset clears all bookkeeping, freeing every outstanding packet back to
// the pool. Used when a connection is released so its PacketManager can
// be reused for a later connection rather than reallocated.
func (m *PacketManager) Reset() {
	m.sendMu.Lock()
	for !m.sendActive.empty() {
		pkt := m.sendActive.front()
		m.sendActive.popFront()
		m.pool.Free([]*NetworkPacket{pkt})
	}
	for !m.sendDraining.empty() {
		pkt := m.sendDraining.front()
		m.sendDraining.popFront()
		m.pool.Free([]*NetworkPacket{pkt})
	}
	m.sendMu.Unlock()

	m.bundlesMu.Lock()
	for uid := range m.inFlight {
		delete(m.inFlight, uid)
	}
	for rUID, msg := range m.pending {
		m.pool.Free([]*NetworkPacket{msg.pkt})
		delete(m.pending, rUID)
	}
	m.nextMessageUID = 0
	m.nextReliableUID = 1
	m.lastBundleSweep = 0
	m.bundlesMu.Unlock()

	m.reorderMu.Lock()
	for uid, pkt := range m.reorderBuffer {
		m.pool.Free([]*NetworkPacket{pkt})
		delete(m.reorderBuffer, uid)
	}
	m.nextExpectedUID = 1
	m.reorderMu.Unlock()
}
