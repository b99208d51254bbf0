package journal

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRoundTrip(t *testing.T) {
	rec := &Record{Seq: 42, Time: time.Now().UnixNano(), Data: []byte(`{"type":"TRADE_EXECUTED"}`)}
	got, err := decodeRecord(bytes.NewReader(encodeRecord(rec)))
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestRecordEmptyData(t *testing.T) {
	rec := &Record{Seq: 1, Time: 7}
	got, err := decodeRecord(bytes.NewReader(encodeRecord(rec)))
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestRecordDetectsCorruption(t *testing.T) {
	data := encodeRecord(&Record{Seq: 1, Time: 2, Data: []byte("payload")})
	data[10] ^= 0xFF
	_, err := decodeRecord(bytes.NewReader(data))
	assert.ErrorIs(t, err, ErrCorruptRecord)
}

func TestAppendAndReplay(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(Config{Dir: dir})
	require.NoError(t, err)

	for i := uint64(1); i <= 5; i++ {
		require.NoError(t, j.Append(&Record{Seq: i, Time: int64(i), Data: []byte{byte(i)}}))
	}
	require.NoError(t, j.Close())

	// Reopen and read back in order.
	j, err = Open(Config{Dir: dir})
	require.NoError(t, err)
	defer j.Close()

	var seqs []uint64
	require.NoError(t, j.Replay(func(r *Record) error {
		seqs = append(seqs, r.Seq)
		return nil
	}))
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, seqs)
}

func TestReplaySpansSegments(t *testing.T) {
	dir := t.TempDir()
	// Tiny segment size forces a rotation on every append.
	j, err := Open(Config{Dir: dir, SegmentSize: 1})
	require.NoError(t, err)
	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, j.Append(&Record{Seq: i, Time: int64(i)}))
	}
	require.NoError(t, j.Close())

	files, err := filepath.Glob(filepath.Join(dir, "segment-*.log"))
	require.NoError(t, err)
	assert.Greater(t, len(files), 1)

	j, err = Open(Config{Dir: dir})
	require.NoError(t, err)
	defer j.Close()
	var seqs []uint64
	require.NoError(t, j.Replay(func(r *Record) error {
		seqs = append(seqs, r.Seq)
		return nil
	}))
	assert.Equal(t, []uint64{1, 2, 3}, seqs)
}

func TestReplayStopsAtTornTail(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(Config{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, j.Append(&Record{Seq: 1, Time: 1, Data: []byte("first")}))
	require.NoError(t, j.Append(&Record{Seq: 2, Time: 2, Data: []byte("second")}))
	require.NoError(t, j.Close())

	// Simulate a crash mid-write: chop bytes off the last record.
	files, err := filepath.Glob(filepath.Join(dir, "segment-*.log"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	info, err := os.Stat(files[0])
	require.NoError(t, err)
	require.NoError(t, os.Truncate(files[0], info.Size()-3))

	j, err = Open(Config{Dir: dir})
	require.NoError(t, err)
	defer j.Close()
	var seqs []uint64
	require.NoError(t, j.Replay(func(r *Record) error {
		seqs = append(seqs, r.Seq)
		return nil
	}))
	assert.Equal(t, []uint64{1}, seqs)
}

func TestReplayCallbackErrorPropagates(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(Config{Dir: dir})
	require.NoError(t, err)
	defer j.Close()
	require.NoError(t, j.Append(&Record{Seq: 1, Time: 1}))

	wantErr := fmt.Errorf("stop here")
	err = j.Replay(func(*Record) error { return wantErr })
	assert.ErrorIs(t, err, wantErr)
}
