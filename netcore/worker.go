package netcore

import (
	"context"
	"sync"
	"time"

	"go.uber.org/multierr"
)

// NetWorker runs the two cooperating goroutines every connection needs:
// a receiver loop (blocks on socket reads) and a transmitter loop (wakes
// on a ticker to flush queued sends and run the resend pass). Replaces
// the original engine's raw termination-flag-plus-thread-join lifecycle
// with context cancellation and a WaitGroup, which also gives both
// loops a clean way to report the error that ended them.
type NetWorker struct {
	tickInterval time.Duration
	receiveOnce  func(ctx context.Context) error
	transmitOnce func(ctx context.Context) error
	abort        func() error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	errMu sync.Mutex
	err   error

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewNetWorker builds a NetWorker. receiveOnce should perform exactly one
// blocking receive-and-process cycle, returning when ctx is done;
// transmitOnce is called once per tickInterval and should perform one
// flush-and-resend cycle. abort is called once, as part of
// TerminateAndRelease, to unstick any in-progress blocking call inside
// receiveOnce (ctx cancellation alone cannot interrupt a blocking socket
// read); it is typically the connection's Socket.Close.
func NewNetWorker(tickInterval time.Duration, receiveOnce, transmitOnce func(ctx context.Context) error, abort func() error) *NetWorker {
	ctx, cancel := context.WithCancel(context.Background())
	return &NetWorker{
		tickInterval: tickInterval,
		receiveOnce:  receiveOnce,
		transmitOnce: transmitOnce,
		abort:        abort,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start launches the receiver and transmitter goroutines. Safe to call
// only once; later calls are no-ops.
func (w *NetWorker) Start() {
	w.startOnce.Do(func() {
		w.wg.Add(2)
		go w.runReceiver()
		go w.runTransmitter()
	})
}

func (w *NetWorker) runReceiver() {
	defer w.wg.Done()
	for {
		if w.ctx.Err() != nil {
			return
		}
		if err := w.receiveOnce(w.ctx); err != nil {
			if w.ctx.Err() != nil {
				return // termination requested mid-receive, not a real error
			}
			w.recordError(err)
		}
	}
}

func (w *NetWorker) runTransmitter() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			if err := w.transmitOnce(w.ctx); err != nil {
				w.recordError(err)
			}
		}
	}
}

func (w *NetWorker) recordError(err error) {
	w.errMu.Lock()
	w.err = multierr.Append(w.err, err)
	w.errMu.Unlock()
}

// TerminateAndRelease requests both loops stop, aborts any in-flight
// blocking I/O so the receiver loop actually observes the cancellation,
// waits for both loops to exit, and returns every non-termination error
// either loop (or abort itself) recorded.
func (w *NetWorker) TerminateAndRelease() error {
	var result error
	w.stopOnce.Do(func() {
		w.cancel()
		if w.abort != nil {
			if err := w.abort(); err != nil {
				w.recordError(err)
			}
		}
		w.wg.Wait()
		w.errMu.Lock()
		result = w.err
		w.errMu.Unlock()
	})
	return result
}
