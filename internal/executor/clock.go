package executor

import "sync/atomic"

// Clock is the executor's logical clock.
//
// Every dispatch takes a seq when its entity is selected and another when
// its callback returns. Seqs are strictly increasing across all workers, so
// two dispatches ran concurrently exactly when their [Seq, EndSeq] intervals
// overlap.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock starting at a specific sequence number, e.g. to
// continue the numbering of an earlier run.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
