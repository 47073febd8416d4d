package clock

import "sync/atomic"

// Fake is a Clock whose value is advanced explicitly, for deterministic
// tests of resend timers, RTT convergence and bundle aging.
type Fake struct {
	now atomic.Int64
}

// NewFake creates a Fake clock starting at Timestamp(0).
func NewFake() *Fake {
	return &Fake{}
}

func (f *Fake) Now() Timestamp {
	return Timestamp(f.now.Load())
}

// Advance moves the clock forward by d and returns the new value.
func (f *Fake) Advance(d Timestamp) Timestamp {
	return Timestamp(f.now.Add(int64(d)))
}

// Set pins the clock to an absolute value.
func (f *Fake) Set(t Timestamp) {
	f.now.Store(int64(t))
}
