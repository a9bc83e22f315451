// Package entry is the inbound intent log. Every accepted message is
// appended here before it is processed, so a restart can replay what the
// persisted state does not cover yet.
package entry

import (
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"matchd/domain/events"
	"matchd/infra/sequence"
)

type Config struct {
	Dir             string
	SegmentSize     int64
	SegmentDuration time.Duration
	// SyncEveryWrite fsyncs each append before it returns.
	SyncEveryWrite bool
	Log            *zap.Logger
}

type WAL struct {
	mu sync.Mutex

	cfg        Config
	current    *segment
	segIndex   int
	lastRotate time.Time
	seq        *sequence.Counter
}

// Open continues the last segment of cfg.Dir, numbering after the last
// record found.
func Open(cfg Config) (*WAL, error) {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create wal dir")
	}

	files, err := segments(cfg.Dir)
	if err != nil {
		return nil, err
	}

	var (
		index   int
		lastSeq uint64
	)
	for _, path := range files {
		max, err := maxSeqInSegment(path)
		if err != nil {
			return nil, err
		}
		if max > lastSeq {
			lastSeq = max
		}
	}
	if len(files) > 0 {
		if index, err = segmentIndex(files[len(files)-1]); err != nil {
			return nil, errors.Wrap(err, "parse segment name")
		}
		// A torn tail must not be followed by new records.
		index++
	}

	seg, err := openSegment(cfg.Dir, index)
	if err != nil {
		return nil, err
	}

	return &WAL{
		cfg:        cfg,
		current:    seg,
		segIndex:   index,
		lastRotate: time.Now(),
		seq:        sequence.NewCounter(lastSeq),
	}, nil
}

// Append writes one record and returns its sequence. Once the record is
// written the append succeeds; a failed rotation is retried on the next one.
func (w *WAL) Append(t events.MessageType, payload []byte) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.current == nil {
		return 0, errors.New("entry wal: closed")
	}

	seq := w.seq.Current() + 1
	rec := &Record{Type: t, Seq: seq, Time: time.Now().UnixNano(), Data: payload}
	if err := w.current.append(rec.encode()); err != nil {
		return 0, errors.Wrap(err, "append record")
	}
	if w.cfg.SyncEveryWrite {
		if err := w.current.sync(); err != nil {
			return 0, errors.Wrap(err, "sync segment")
		}
	}
	w.seq.Next()

	if w.shouldRotate() {
		if err := w.rotate(); err != nil {
			w.cfg.Log.Warn("rotate entry wal segment", zap.Int("segment", w.segIndex), zap.Error(err))
		}
	}
	return seq, nil
}

// LastSeq is the sequence of the last appended record.
func (w *WAL) LastSeq() uint64 { return w.seq.Current() }

func (w *WAL) shouldRotate() bool {
	if w.cfg.SegmentSize > 0 && w.current.offset >= w.cfg.SegmentSize {
		return true
	}
	return w.cfg.SegmentDuration > 0 && time.Since(w.lastRotate) >= w.cfg.SegmentDuration
}

// rotate keeps the current segment open unless the next one is ready.
func (w *WAL) rotate() error {
	if err := w.current.sync(); err != nil {
		return errors.Wrap(err, "sync segment")
	}
	seg, err := openSegment(w.cfg.Dir, w.segIndex+1)
	if err != nil {
		return err
	}
	_ = w.current.close()
	w.segIndex++
	w.current = seg
	w.lastRotate = time.Now()
	return nil
}

func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current == nil {
		return nil
	}
	return w.current.sync()
}

func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current == nil {
		return nil
	}
	err := w.current.sync()
	if cerr := w.current.close(); err == nil {
		err = cerr
	}
	w.current = nil
	return err
}

// TruncateBefore removes closed segments whose records all have a sequence
// up to seq. The open segment is never removed.
func (w *WAL) TruncateBefore(seq uint64) error {
	w.mu.Lock()
	current := ""
	if w.current != nil {
		current = w.current.path
	}
	w.mu.Unlock()

	files, err := segments(w.cfg.Dir)
	if err != nil {
		return err
	}
	for _, path := range files {
		if path == current {
			continue
		}
		max, err := maxSeqInSegment(path)
		if err != nil {
			continue
		}
		if max <= seq {
			if err := os.Remove(path); err != nil {
				return errors.Wrapf(err, "remove segment %s", path)
			}
		}
	}
	return nil
}
