package journal

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

type Config struct {
	Dir             string
	SegmentSize     int64
	SegmentDuration time.Duration
}

// Journal is an append-only log of framed records with CRC32 integrity and
// size/age segment rotation. The host wraps the matching core with it to
// get a durable ordered event stream.
type Journal struct {
	mu           sync.Mutex
	cfg          Config
	current      *os.File
	bytes        int64
	nextIndex    int
	lastRotation time.Time
}

func Open(cfg Config) (*Journal, error) {
	if cfg.SegmentSize <= 0 {
		cfg.SegmentSize = 64 << 20
	}
	if cfg.SegmentDuration <= 0 {
		cfg.SegmentDuration = time.Hour
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}
	j := &Journal{cfg: cfg, lastRotation: time.Now()}
	existing, err := j.segments()
	if err != nil {
		return nil, err
	}
	j.nextIndex = len(existing)
	if err := j.openSegment(); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *Journal) Append(rec *Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	data := encodeRecord(rec)
	n, err := j.current.Write(data)
	if err != nil {
		return err
	}
	j.bytes += int64(n)
	if j.bytes >= j.cfg.SegmentSize || time.Since(j.lastRotation) > j.cfg.SegmentDuration {
		return j.rotate()
	}
	return nil
}

// Sync flushes the current segment to stable storage.
func (j *Journal) Sync() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.current.Sync()
}

// Replay visits every record across all segments in write order. It stops
// at the first torn or corrupt tail record, which is the crash-recovery
// boundary.
func (j *Journal) Replay(fn func(*Record) error) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	files, err := j.segments()
	if err != nil {
		return err
	}
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		for {
			rec, err := decodeRecord(f)
			if err == io.EOF || err == io.ErrUnexpectedEOF || err == ErrCorruptRecord {
				break
			}
			if err != nil {
				f.Close()
				return err
			}
			if err := fn(rec); err != nil {
				f.Close()
				return err
			}
		}
		f.Close()
	}
	return nil
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.current.Sync(); err != nil {
		return err
	}
	return j.current.Close()
}

func (j *Journal) segments() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(j.cfg.Dir, "segment-*.log"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func (j *Journal) openSegment() error {
	path := filepath.Join(j.cfg.Dir, fmt.Sprintf("segment-%06d.log", j.nextIndex))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	j.current = f
	j.bytes = 0
	j.nextIndex++
	return nil
}

func (j *Journal) rotate() error {
	if err := j.current.Sync(); err != nil {
		return err
	}
	if err := j.current.Close(); err != nil {
		return err
	}
	j.lastRotation = time.Now()
	return j.openSegment()
}
