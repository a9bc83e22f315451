package entry

import (
	"github.com/pkg/errors"
)

type ReplayHandler func(*Record) error

// Replay calls fn for every record with a sequence above after, in order,
// and returns the last sequence found in the log.
func Replay(dir string, after uint64, fn ReplayHandler) (lastSeq uint64, err error) {
	files, err := segments(dir)
	if err != nil {
		return 0, err
	}

	for _, path := range files {
		err := scanSegment(path, func(rec *Record) error {
			if rec.Seq <= lastSeq {
				return errors.Errorf("entry wal: non-monotonic seq %d after %d", rec.Seq, lastSeq)
			}
			lastSeq = rec.Seq
			if rec.Seq <= after {
				return nil
			}
			return fn(rec)
		})
		if err != nil {
			return lastSeq, err
		}
	}
	return lastSeq, nil
}
