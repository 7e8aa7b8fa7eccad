package testutil

import "sync"

// DeterministicClock is a thread-safe logical clock for tests.
//
// It implements rewrite.SeqSource and is passed to the pass through
// fusion.WithSeqSource. Unlike rewrite.NewClock it can be reset, so the
// same scenario run twice stamps identical seq values on its firings,
// which the harness relies on for its deterministic assertion.
//
// All methods are safe for concurrent use.
type DeterministicClock struct {
	mu  sync.Mutex
	seq int64
}

// NewDeterministicClock creates a clock starting at 0.
//
// The first call to Next() returns 1.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// Next returns the next sequence number. Values never decrease between
// resets.
func (c *DeterministicClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Current returns the current sequence number without incrementing.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Reset rewinds the clock so that the next call to Next returns 1.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}
