package sequence

import (
	"fmt"
	"sync/atomic"

	"matchd/domain/events"
)

// Sequencer hands out strictly monotonic numbers per event category.
// Numbers are peeked before persistence and only advanced once the state
// carrying them is durable, so a failed persist never leaves a gap.
type Sequencer struct {
	last [len(events.Categories)]atomic.Uint64
}

// New starts from the last numbers found in persisted state.
// On fresh start → zero value.
func New(start events.Sequence) *Sequencer {
	s := &Sequencer{}
	s.Reset(start)
	return s
}

// Peek returns the numbers a commit of d would use, without advancing.
func (s *Sequencer) Peek(d *events.ExecutionData) events.Sequence {
	var seq events.Sequence
	for _, c := range events.Categories {
		if d.Produced(c) {
			seq[c] = s.last[c].Load() + 1
		}
	}
	return seq
}

// Advance moves every category seq carries to its new number. It refuses
// numbers that do not directly follow the current ones.
func (s *Sequencer) Advance(seq events.Sequence) error {
	for _, c := range events.Categories {
		if seq[c] != 0 && seq[c] != s.last[c].Load()+1 {
			return fmt.Errorf("sequence: %s number %d does not follow %d", c, seq[c], s.last[c].Load())
		}
	}
	for _, c := range events.Categories {
		if seq[c] != 0 {
			s.last[c].Store(seq[c])
		}
	}
	return nil
}

// Current returns the last issued numbers.
func (s *Sequencer) Current() events.Sequence {
	var seq events.Sequence
	for _, c := range events.Categories {
		seq[c] = s.last[c].Load()
	}
	return seq
}

// Reset is ONLY used when restoring persisted state.
func (s *Sequencer) Reset(seq events.Sequence) {
	for _, c := range events.Categories {
		s.last[c].Store(seq[c])
	}
}
