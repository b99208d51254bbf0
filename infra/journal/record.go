package journal

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"
)

var ErrCorruptRecord = errors.New("journal: record failed CRC check")

// Record is one journal entry. Data is opaque to the journal.
type Record struct {
	Seq  uint64
	Time int64
	Data []byte
}

// frame: [len:4][seq:8][time:8][data][crc32:4], little endian. The CRC
// covers seq, time and data.
func encodeRecord(r *Record) []byte {
	body := make([]byte, 16+len(r.Data))
	binary.LittleEndian.PutUint64(body[0:8], r.Seq)
	binary.LittleEndian.PutUint64(body[8:16], uint64(r.Time))
	copy(body[16:], r.Data)

	buf := bytes.NewBuffer(make([]byte, 0, 8+len(body)))
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(body)))
	buf.Write(body)
	_ = binary.Write(buf, binary.LittleEndian, crc32.ChecksumIEEE(body))
	return buf.Bytes()
}

func decodeRecord(r io.Reader) (*Record, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	if n < 16 {
		return nil, ErrCorruptRecord
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	var sum uint32
	if err := binary.Read(r, binary.LittleEndian, &sum); err != nil {
		return nil, err
	}
	if crc32.ChecksumIEEE(body) != sum {
		return nil, ErrCorruptRecord
	}
	rec := &Record{
		Seq:  binary.LittleEndian.Uint64(body[0:8]),
		Time: int64(binary.LittleEndian.Uint64(body[8:16])),
	}
	if n > 16 {
		rec.Data = append([]byte(nil), body[16:]...)
	}
	return rec, nil
}
