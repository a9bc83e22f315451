package service

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"matchd/domain/orderbook"
	"matchd/infra/sequence"
	"matchd/infra/wal/exit"
	entrywal "matchd/infra/wal/entry"
)

// StateLoader reads back the last persisted state.
type StateLoader interface {
	Load() (*exit.Snapshot, error)
}

// RestoreTarget is the in-memory state a restore fills.
type RestoreTarget struct {
	Books     *orderbook.Registry
	Balances  BalanceStore
	MidPrices MidPriceStore
	Sequencer *sequence.Sequencer
}

/*
Restore loads persisted state into memory and returns the last entry WAL
sequence it covers.

IMPORTANT:
- This MUST run before accepting traffic
- Registration sequences are kept, so time priority survives a restart
*/
func Restore(store StateLoader, t RestoreTarget) (uint64, error) {
	snap, err := store.Load()
	if err != nil {
		return 0, errors.Wrap(err, "load persisted state")
	}

	books := make(map[string]*orderbook.OrderBook)
	for _, o := range snap.Orders {
		b, ok := books[o.AssetPairID]
		if !ok {
			b = orderbook.New(o.AssetPairID)
			books[o.AssetPairID] = b
		}
		if err := b.Insert(o); err != nil {
			return 0, errors.Wrapf(err, "restore order %s", o.ID)
		}
	}
	stops := make(map[string]*orderbook.StopBook)
	for _, o := range snap.Stops {
		b, ok := stops[o.AssetPairID]
		if !ok {
			b = orderbook.NewStopBook(o.AssetPairID)
			stops[o.AssetPairID] = b
		}
		if err := b.Insert(o); err != nil {
			return 0, errors.Wrapf(err, "restore stop order %s", o.ID)
		}
	}
	for _, b := range books {
		t.Books.Publish(b)
	}
	for _, b := range stops {
		t.Books.PublishStops(b)
	}

	if len(snap.Balances) > 0 {
		t.Balances.Set(snap.Balances)
	}
	t.MidPrices.Add(snap.MidPrices...)
	t.Sequencer.Reset(snap.Sequence)
	return snap.EntrySeq, nil
}

// ReplayEntries re-runs every message logged after the given entry
// sequence. Message IDs and dates were fixed before logging, so the
// outcome is the one the lost run would have produced.
func ReplayEntries(ctx context.Context, dir string, after uint64, h Handler, log *zap.Logger) (uint64, error) {
	n := 0
	last, err := entrywal.Replay(dir, after, func(rec *entrywal.Record) error {
		req, err := DecodeRequest(rec.Data)
		if err != nil {
			return errors.Wrapf(err, "decode entry %d", rec.Seq)
		}
		req.EntrySeq = rec.Seq
		resp := h.Handle(ctx, req)
		if resp.Status == StatusRuntime {
			return errors.Errorf("replay entry %d: %s", rec.Seq, resp.Reason)
		}
		n++
		return nil
	})
	if err != nil {
		return last, err
	}
	log.Info("entry wal replayed", zap.Uint64("after", after), zap.Uint64("last_seq", last), zap.Int("messages", n))
	return last, nil
}
