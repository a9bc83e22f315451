package exit

import (
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"

	"matchd/domain/events"
)

// -------------------- State --------------------

type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// -------------------- Record --------------------

// OutboxRecord is one committed message waiting to be published. Seq is
// its execution sequence number.
type OutboxRecord struct {
	Seq         uint64
	State       State
	Retries     uint32
	LastAttempt int64
	Data        *events.ExecutionData
}

// binary encoding: [state:1][retries:4][lastAttempt:8][payload json]
const recordHeader = 1 + 4 + 8

var ErrInvalidRecord = errors.New("exit: invalid outbox record")

func encodeRecord(r OutboxRecord) ([]byte, error) {
	payload, err := json.Marshal(r.Data)
	if err != nil {
		return nil, errors.Wrap(err, "marshal execution data")
	}
	buf := make([]byte, recordHeader+len(payload))
	putHeader(buf, r.State, r.Retries, r.LastAttempt)
	copy(buf[recordHeader:], payload)
	return buf, nil
}

func putHeader(buf []byte, s State, retries uint32, lastAttempt int64) {
	buf[0] = byte(s)
	binary.BigEndian.PutUint32(buf[1:5], retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(lastAttempt))
}

func decodeRecord(seq uint64, b []byte, withData bool) (OutboxRecord, error) {
	if len(b) < recordHeader {
		return OutboxRecord{}, ErrInvalidRecord
	}
	r := OutboxRecord{
		Seq:         seq,
		State:       State(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
	}
	if withData {
		r.Data = &events.ExecutionData{}
		if err := json.Unmarshal(b[recordHeader:], r.Data); err != nil {
			return OutboxRecord{}, errors.Wrap(err, "unmarshal execution data")
		}
	}
	return r, nil
}

// -------------------- API --------------------

// ScanPending calls fn for every record not yet acknowledged, oldest
// first, up to limit records (all when limit <= 0).
func (s *Store) ScanPending(limit int, fn func(OutboxRecord) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(outboxPrefix),
		UpperBound: prefixEnd(outboxPrefix),
	})
	if err != nil {
		return errors.Wrap(err, "outbox iterator")
	}
	defer iter.Close()

	n := 0
	for iter.First(); iter.Valid(); iter.Next() {
		val := iter.Value()
		if len(val) > 0 && State(val[0]) == StateAcked {
			continue
		}
		seq, err := parseOutboxKey(iter.Key())
		if err != nil {
			return err
		}
		rec, err := decodeRecord(seq, val, true)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
		n++
		if limit > 0 && n >= limit {
			break
		}
	}
	return iter.Error()
}

// Get returns the record stored under an execution sequence.
func (s *Store) Get(seq uint64) (OutboxRecord, error) {
	val, closer, err := s.db.Get(outboxKey(seq))
	if err != nil {
		return OutboxRecord{}, err
	}
	defer closer.Close()
	return decodeRecord(seq, val, true)
}

func (s *Store) MarkSent(seq uint64, retries uint32) error {
	return s.updateState(seq, StateSent, retries)
}

func (s *Store) MarkAcked(seq uint64) error {
	return s.updateState(seq, StateAcked, 0)
}

func (s *Store) MarkFailed(seq uint64, retries uint32) error {
	return s.updateState(seq, StateFailed, retries)
}

// updateState rewrites the header and keeps the payload.
func (s *Store) updateState(seq uint64, state State, retries uint32) error {
	key := outboxKey(seq)
	val, closer, err := s.db.Get(key)
	if err != nil {
		return errors.Wrapf(err, "outbox record %d", seq)
	}
	buf := append([]byte(nil), val...)
	_ = closer.Close()
	if len(buf) < recordHeader {
		return ErrInvalidRecord
	}
	putHeader(buf, state, retries, time.Now().UnixNano())
	return s.db.Set(key, buf, pebble.Sync)
}

// DeleteAckedUpTo removes acknowledged records with a sequence up to seq
// and returns how many were removed.
func (s *Store) DeleteAckedUpTo(seq uint64) (int, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(outboxPrefix),
		UpperBound: outboxKey(seq + 1),
	})
	if err != nil {
		return 0, errors.Wrap(err, "outbox iterator")
	}

	b := s.db.NewBatch()
	n := 0
	for iter.First(); iter.Valid(); iter.Next() {
		if val := iter.Value(); len(val) > 0 && State(val[0]) == StateAcked {
			if err := b.Delete(append([]byte(nil), iter.Key()...), nil); err != nil {
				_ = iter.Close()
				return 0, err
			}
			n++
		}
	}
	if err := iter.Close(); err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, b.Close()
	}
	return n, b.Commit(pebble.Sync)
}
