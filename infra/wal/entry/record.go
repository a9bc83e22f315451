package entry

import (
	"encoding/binary"
	"hash/crc32"

	"matchd/domain/events"
)

// Frame:
// [type:1][seq:8][time:8][len:4][payload][crc:4]
const headerSize = 1 + 8 + 8 + 4

var crcTable = crc32.MakeTable(crc32.Castagnoli)

type Record struct {
	Type events.MessageType
	Seq  uint64
	Time int64
	Data []byte
}

func (r *Record) encode() []byte {
	n := uint32(len(r.Data))
	buf := make([]byte, headerSize+n+4)

	buf[0] = byte(r.Type)
	binary.BigEndian.PutUint64(buf[1:9], r.Seq)
	binary.BigEndian.PutUint64(buf[9:17], uint64(r.Time))
	binary.BigEndian.PutUint32(buf[17:21], n)
	copy(buf[headerSize:], r.Data)

	sum := crc32.Checksum(buf[:headerSize+n], crcTable)
	binary.BigEndian.PutUint32(buf[headerSize+n:], sum)
	return buf
}
