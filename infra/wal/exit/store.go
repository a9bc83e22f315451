// Package exit is the durable side of a commit: a pebble store mirroring
// the canonical state, plus an outbox of committed messages still to be
// published. Everything one message changed is written in one batch.
package exit

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/pkg/errors"

	"matchd/domain/balance"
	"matchd/domain/events"
	"matchd/domain/order"
)

const (
	orderPrefix    = "state/order/"
	stopPrefix     = "state/stop/"
	balancePrefix  = "state/balance/"
	midPrefix      = "state/mid/"
	sequencePrefix = "meta/sequence/"
	entrySeqKey    = "meta/entry_seq"
	outboxPrefix   = "outbox/"
)

type Store struct {
	db *pebble.DB
}

func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "open pebble at %s", dir)
	}
	return &Store{db: db}, nil
}

// OpenInMemory keeps everything in memory. Used by tests.
func OpenInMemory() (*Store, error) {
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		return nil, errors.Wrap(err, "open in-memory pebble")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Persist writes the state changes of data, its sequence numbers and its
// outbox record in one synced batch.
func (s *Store) Persist(ctx context.Context, data *events.ExecutionData) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b := s.db.NewBatch()
	defer b.Close()

	for _, ch := range data.Orders {
		if err := putOrDelete(b, orderKey(ch.Order.AssetPairID, ch.Order.ID), ch.Order, ch.Removed); err != nil {
			return err
		}
	}
	for _, ch := range data.StopOrders {
		if err := putOrDelete(b, stopKey(ch.Order.AssetPairID, ch.Order.ID), ch.Order, ch.Removed); err != nil {
			return err
		}
	}
	for _, ch := range data.Balances {
		if err := putJSON(b, balanceKey(ch.ClientID, ch.AssetID), ch.After); err != nil {
			return err
		}
	}
	for _, mp := range data.MidPrices {
		if err := putJSON(b, []byte(midPrefix+mp.AssetPairID), mp); err != nil {
			return err
		}
	}
	for _, c := range events.Categories {
		if n := data.Sequence.Get(c); n != 0 {
			if err := b.Set([]byte(sequencePrefix+c.String()), u64(n), nil); err != nil {
				return err
			}
		}
	}
	if data.EntrySeq != 0 {
		if err := b.Set([]byte(entrySeqKey), u64(data.EntrySeq), nil); err != nil {
			return err
		}
	}

	rec, err := encodeRecord(OutboxRecord{State: StateNew, Data: data})
	if err != nil {
		return err
	}
	if err := b.Set(outboxKey(data.Sequence.Get(events.Execution)), rec, nil); err != nil {
		return err
	}

	return errors.Wrap(b.Commit(pebble.Sync), "commit batch")
}

// Snapshot is the canonical state found in the store.
type Snapshot struct {
	Orders    []*order.LimitOrder
	Stops     []*order.StopOrder
	Balances  map[balance.Key]balance.Balance
	MidPrices []events.MidPrice
	Sequence  events.Sequence
	EntrySeq  uint64
}

// Load reads back everything Persist wrote, except the outbox.
func (s *Store) Load() (*Snapshot, error) {
	snap := &Snapshot{Balances: make(map[balance.Key]balance.Balance)}

	err := s.scan(orderPrefix, func(_ string, v []byte) error {
		o := &order.LimitOrder{}
		if err := json.Unmarshal(v, o); err != nil {
			return err
		}
		snap.Orders = append(snap.Orders, o)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "load orders")
	}

	err = s.scan(stopPrefix, func(_ string, v []byte) error {
		o := &order.StopOrder{}
		if err := json.Unmarshal(v, o); err != nil {
			return err
		}
		snap.Stops = append(snap.Stops, o)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "load stop orders")
	}

	err = s.scan(balancePrefix, func(k string, v []byte) error {
		client, asset, ok := strings.Cut(k, "/")
		if !ok {
			return errors.Errorf("malformed balance key %q", k)
		}
		var bal balance.Balance
		if err := json.Unmarshal(v, &bal); err != nil {
			return err
		}
		snap.Balances[balance.Key{ClientID: client, AssetID: asset}] = bal
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "load balances")
	}

	err = s.scan(midPrefix, func(_ string, v []byte) error {
		var mp events.MidPrice
		if err := json.Unmarshal(v, &mp); err != nil {
			return err
		}
		snap.MidPrices = append(snap.MidPrices, mp)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "load mid prices")
	}

	for _, c := range events.Categories {
		n, err := s.getU64(sequencePrefix + c.String())
		if err != nil {
			return nil, err
		}
		snap.Sequence[c] = n
	}
	if snap.EntrySeq, err = s.getU64(entrySeqKey); err != nil {
		return nil, err
	}
	return snap, nil
}

// LastEntrySeq is the last entry WAL record covered by persisted state.
func (s *Store) LastEntrySeq() (uint64, error) {
	return s.getU64(entrySeqKey)
}

// -------------------- Helpers --------------------

func (s *Store) scan(prefix string, fn func(key string, val []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: prefixEnd(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(strings.TrimPrefix(string(iter.Key()), prefix), iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

func (s *Store) getU64(key string) (uint64, error) {
	val, closer, err := s.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "get %s", key)
	}
	defer closer.Close()
	if len(val) != 8 {
		return 0, errors.Errorf("malformed %s", key)
	}
	return binary.BigEndian.Uint64(val), nil
}

func putJSON(b *pebble.Batch, key []byte, v any) error {
	val, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "marshal %s", key)
	}
	return b.Set(key, val, nil)
}

func putOrDelete(b *pebble.Batch, key []byte, v any, remove bool) error {
	if remove {
		return b.Delete(key, nil)
	}
	return putJSON(b, key, v)
}

func u64(n uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n)
	return buf
}

func orderKey(pair, id string) []byte {
	return []byte(orderPrefix + pair + "/" + id)
}

func stopKey(pair, id string) []byte {
	return []byte(stopPrefix + pair + "/" + id)
}

func balanceKey(clientID, assetID string) []byte {
	return []byte(balancePrefix + clientID + "/" + assetID)
}

func outboxKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", outboxPrefix, seq))
}

func parseOutboxKey(b []byte) (uint64, error) {
	var seq uint64
	_, err := fmt.Sscanf(strings.TrimPrefix(string(b), outboxPrefix), "%d", &seq)
	return seq, errors.Wrapf(err, "parse outbox key %q", b)
}

// prefixEnd is the smallest key above every key starting with prefix.
func prefixEnd(prefix string) []byte {
	end := []byte(prefix)
	end[len(end)-1]++
	return end
}
