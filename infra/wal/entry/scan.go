package entry

import (
	"bufio"
	"encoding/binary"
	"hash/crc32"
	"io"
	"os"

	"github.com/pkg/errors"

	"matchd/domain/events"
)

var ErrCorrupt = errors.New("entry wal: corrupt record")

func readRecord(r io.Reader) (*Record, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(header[17:21])

	rest := make([]byte, n+4)
	if _, err := io.ReadFull(r, rest); err != nil {
		if err == io.EOF {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}

	payload := rest[:n]
	sum := binary.BigEndian.Uint32(rest[n:])
	h := crc32.New(crcTable)
	_, _ = h.Write(header)
	_, _ = h.Write(payload)
	if h.Sum32() != sum {
		return nil, ErrCorrupt
	}

	return &Record{
		Type: events.MessageType(header[0]),
		Seq:  binary.BigEndian.Uint64(header[1:9]),
		Time: int64(binary.BigEndian.Uint64(header[9:17])),
		Data: payload,
	}, nil
}

// scanSegment calls fn for every complete record of a segment. A record
// cut short by a crash ends the scan without error.
func scanSegment(path string, fn func(*Record) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open segment %s", path)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		rec, err := readRecord(r)
		switch {
		case err == io.EOF || err == io.ErrUnexpectedEOF:
			return nil
		case err != nil:
			return errors.Wrapf(err, "read segment %s", path)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}

// maxSeqInSegment returns the highest sequence stored in a segment.
// It is used ONLY for truncation and when reopening.
func maxSeqInSegment(path string) (uint64, error) {
	var max uint64
	err := scanSegment(path, func(rec *Record) error {
		if rec.Seq > max {
			max = rec.Seq
		}
		return nil
	})
	return max, err
}
