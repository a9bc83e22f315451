package sequence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchd/domain/events"
	"matchd/domain/matching"
)

func TestPeekOnlyNumbersProducedCategories(t *testing.T) {
	s := New(events.Sequence{10, 4, 7, 2})

	seq := s.Peek(&events.ExecutionData{Trades: []matching.Trade{{}}})
	assert.Equal(t, events.Sequence{11, 5, 0, 0}, seq)
	assert.Equal(t, events.Sequence{10, 4, 7, 2}, s.Current(), "peek must not advance")
}

func TestAdvanceIsNotRepeatable(t *testing.T) {
	s := New(events.Sequence{})
	seq := s.Peek(&events.ExecutionData{Balances: []events.BalanceChange{{}}})

	require.NoError(t, s.Advance(seq))
	assert.Equal(t, events.Sequence{1, 0, 0, 1}, s.Current())

	require.Error(t, s.Advance(seq))
	assert.Equal(t, events.Sequence{1, 0, 0, 1}, s.Current(), "a repeated advance must not move the sequence")
}

func TestCounter(t *testing.T) {
	c := NewCounter(41)
	if got := c.Next(); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	if got := c.Current(); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
}
