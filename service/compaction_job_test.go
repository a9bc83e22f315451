package service

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"matchd/domain/events"
	"matchd/infra/sequence"
)

type fakeTruncater struct {
	calls []uint64
	err   error
}

func (f *fakeTruncater) TruncateBefore(seq uint64) error {
	f.calls = append(f.calls, seq)
	return f.err
}

type fakeOutbox struct {
	entrySeq uint64
	seqErr   error
	deleted  []uint64
}

func (f *fakeOutbox) LastEntrySeq() (uint64, error) { return f.entrySeq, f.seqErr }

func (f *fakeOutbox) DeleteAckedUpTo(seq uint64) (int, error) {
	f.deleted = append(f.deleted, seq)
	return 1, nil
}

func executionSeq(n uint64) events.Sequence {
	var s events.Sequence
	s[events.Execution] = n
	return s
}

func TestCompactTruncatesAndCollects(t *testing.T) {
	entries := &fakeTruncater{}
	store := &fakeOutbox{entrySeq: 42}
	c := NewCompactor(entries, store, sequence.New(executionSeq(7)), time.Minute, zaptest.NewLogger(t))

	c.Compact()

	assert.Equal(t, []uint64{42}, entries.calls)
	assert.Equal(t, []uint64{7}, store.deleted)
}

func TestCompactContinuesAfterTruncateFailure(t *testing.T) {
	entries := &fakeTruncater{err: errors.New("disk")}
	store := &fakeOutbox{entrySeq: 3}
	c := NewCompactor(entries, store, sequence.New(executionSeq(2)), time.Minute, zaptest.NewLogger(t))

	c.Compact()

	assert.Equal(t, []uint64{2}, store.deleted)
}

func TestCompactSkipsWhenEntrySeqUnreadable(t *testing.T) {
	entries := &fakeTruncater{}
	store := &fakeOutbox{seqErr: errors.New("closed")}
	c := NewCompactor(entries, store, sequence.New(events.Sequence{}), time.Minute, zaptest.NewLogger(t))

	c.Compact()

	assert.Empty(t, entries.calls)
	assert.Empty(t, store.deleted)
}

func TestCompactorRunStopsOnCancel(t *testing.T) {
	entries := &fakeTruncater{}
	store := &fakeOutbox{}
	c := NewCompactor(entries, store, sequence.New(events.Sequence{}), time.Hour, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, c.Run(ctx))
}
