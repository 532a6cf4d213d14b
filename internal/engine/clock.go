package engine

import "sync/atomic"

// Clock is a monotonic logical clock for snapshot versions.
//
// Every published snapshot carries a strictly larger version than the one it
// replaced. The checkpointer compares versions to decide whether state changed.
//
// Thread-safety: Clock is safe for concurrent use. Only the goroutine holding
// the engine's write lock calls Next.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a new clock starting at a specific version.
// Used after restoring a checkpoint so versions keep increasing.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next version and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current version without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// advanceTo moves the clock forward to at least v.
func (c *Clock) advanceTo(v int64) {
	for {
		cur := c.seq.Load()
		if cur >= v || c.seq.CompareAndSwap(cur, v) {
			return
		}
	}
}
