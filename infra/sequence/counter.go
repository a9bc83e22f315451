package sequence

import "sync/atomic"

// Counter numbers inbound messages as they are written to the entry WAL.
type Counter struct {
	next atomic.Uint64
}

// NewCounter starts after the last sequence found in the WAL.
func NewCounter(start uint64) *Counter {
	c := &Counter{}
	c.next.Store(start)
	return c
}

func (c *Counter) Next() uint64 { return c.next.Add(1) }

// Current returns the last issued sequence.
func (c *Counter) Current() uint64 { return c.next.Load() }
