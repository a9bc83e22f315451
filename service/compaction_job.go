package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"matchd/domain/events"
	"matchd/infra/sequence"
)

type EntryTruncater interface {
	TruncateBefore(seq uint64) error
}

// OutboxStore is the part of the persistent store compaction touches.
type OutboxStore interface {
	LastEntrySeq() (uint64, error)
	DeleteAckedUpTo(seq uint64) (int, error)
}

// Compactor drops entry WAL segments already covered by persisted state
// and outbox records already acknowledged by the broker.
type Compactor struct {
	entries  EntryTruncater
	store    OutboxStore
	seq      *sequence.Sequencer
	interval time.Duration
	log      *zap.Logger
}

func NewCompactor(entries EntryTruncater, store OutboxStore, seq *sequence.Sequencer, interval time.Duration, log *zap.Logger) *Compactor {
	return &Compactor{
		entries:  entries,
		store:    store,
		seq:      seq,
		interval: interval,
		log:      log.Named("compactor"),
	}
}

// Run compacts every interval until ctx is cancelled.
func (c *Compactor) Run(ctx context.Context) error {
	t := time.NewTicker(c.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			c.Compact()
		}
	}
}

// Compact runs one pass. Failures are logged and retried next pass.
func (c *Compactor) Compact() {
	entrySeq, err := c.store.LastEntrySeq()
	if err != nil {
		c.log.Warn("read last entry seq", zap.Error(err))
		return
	}

	// Truncate ENTRY WAL up to persisted state
	if err := c.entries.TruncateBefore(entrySeq); err != nil {
		c.log.Warn("truncate entry wal", zap.Uint64("entry_seq", entrySeq), zap.Error(err))
	}

	// GC outbox (acked only)
	upTo := c.seq.Current().Get(events.Execution)
	n, err := c.store.DeleteAckedUpTo(upTo)
	if err != nil {
		c.log.Warn("delete acked outbox records", zap.Uint64("up_to", upTo), zap.Error(err))
		return
	}
	if n > 0 {
		c.log.Debug("outbox compacted", zap.Int("deleted", n), zap.Uint64("up_to", upTo))
	}
}
