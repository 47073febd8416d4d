package netcore

import "time"

// config collects the tunables shared by ClientUDP, ServerUDP and the
// PacketManager each of them owns. Built from functional options rather
// than a single hardcoded struct, so tests and demo binaries can each
// configure the stack without a hidden global default.
type config struct {
	poolSize             int
	maxRetries           int
	resendRTTMultiplier  float64
	tickInterval         time.Duration
	simulateSendLoss     float64
	simulateReceiveLoss  float64
	serverCapacity       int
}

func defaultConfig() config {
	return config{
		poolSize:            256,
		maxRetries:           10,
		resendRTTMultiplier:  2.0, // within the documented [1.5, 3.0] range
		tickInterval:         50 * time.Millisecond,
		serverCapacity:       64,
	}
}

// Option configures a ClientUDP, ServerUDP or standalone PacketManager.
type Option func(*config)

// WithPoolSize sets the PacketPool capacity. Must be >= the expected
// number of simultaneously in-flight reliable messages plus reorder
// depth, or sends will start failing with ErrOutOfPackets.
func WithPoolSize(n int) Option {
	return func(c *config) { c.poolSize = n }
}

// WithMaxRetries sets how many times a reliable message is resent before
// it is given up on (ErrMaxRetriesReached).
func WithMaxRetries(n int) Option {
	return func(c *config) { c.maxRetries = n }
}

// WithResendRTTMultiplier sets the factor applied to the smoothed ping to
// derive the resend timeout, floored at 5ms regardless of this value.
func WithResendRTTMultiplier(m float64) Option {
	return func(c *config) { c.resendRTTMultiplier = m }
}

// WithTickInterval sets how often the transmitter goroutine wakes up to
// flush queued messages.
func WithTickInterval(d time.Duration) Option {
	return func(c *config) { c.tickInterval = d }
}

// WithSimulatedSendLoss drops a fraction (0..1) of outbound datagrams
// before they reach the socket, for loss-resilience testing.
func WithSimulatedSendLoss(ratio float64) Option {
	return func(c *config) { c.simulateSendLoss = ratio }
}

// WithSimulatedReceiveLoss drops a fraction (0..1) of inbound datagrams
// after they're read from the socket, for loss-resilience testing.
func WithSimulatedReceiveLoss(ratio float64) Option {
	return func(c *config) { c.simulateReceiveLoss = ratio }
}

// WithServerCapacity sets the maximum number of simultaneously accepted
// remotes a ServerUDP will allow before replying SERVER_FULL.
func WithServerCapacity(n int) Option {
	return func(c *config) { c.serverCapacity = n }
}

func applyOptions(opts []Option) config {
	c := defaultConfig()
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
