package rewrite

import "sync/atomic"

// SeqSource hands out strictly increasing sequence numbers for firings.
type SeqSource interface {
	Next() int64
}

// Clock is a monotonic logical clock. Firing records are ordered by its
// sequence numbers, never by wall-clock time.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0; the first Next returns 1.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last handed-out sequence number.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
