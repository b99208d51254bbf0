package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	log "github.com/sirupsen/logrus"

	"vela/events"
)

type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	default:
		return "UNKNOWN"
	}
}

var keyPrefix = []byte("ev/")

// Outbox keeps emitted events durable until the broker acknowledges them.
// Records move NEW -> SENT -> ACKED; acked records are pruned. Keys are a
// process-wide monotonic sequence, so the broadcaster replays in emit order.
type Outbox struct {
	db  *pebble.DB
	seq atomic.Uint64
}

// Entry is one stored event awaiting broadcast.
type Entry struct {
	Seq     uint64
	State   State
	Payload []byte
}

func Open(dir string) (*Outbox, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	o := &Outbox{db: db}
	// Resume the key sequence past anything already stored.
	iter, err := db.NewIter(&pebble.IterOptions{LowerBound: keyPrefix, UpperBound: upperBound()})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if iter.Last() && iter.Valid() {
		if seq, err := parseKey(iter.Key()); err == nil {
			o.seq.Store(seq)
		}
	}
	if err := iter.Close(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return o, nil
}

func (o *Outbox) Close() error { return o.db.Close() }

// Publish implements events.Sink: the event is recorded NEW before the
// placing call returns, so a crash cannot lose an emitted event.
func (o *Outbox) Publish(ev events.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.WithError(err).Error("outbox: event marshal failed")
		return
	}
	seq := o.seq.Add(1)
	if err := o.db.Set(keyFor(seq), encodeEntry(StateNew, data), pebble.Sync); err != nil {
		log.WithError(err).WithField("pair", ev.Pair).Error("outbox: write failed")
	}
}

// MarkSent flags an entry as handed to the broker.
func (o *Outbox) MarkSent(seq uint64) error { return o.setState(seq, StateSent) }

// MarkAcked removes an entry the broker confirmed.
func (o *Outbox) MarkAcked(seq uint64) error {
	return o.db.Delete(keyFor(seq), pebble.Sync)
}

// ScanPending visits NEW and SENT entries in sequence order. SENT entries
// are retries from an earlier run that never got acked.
func (o *Outbox) ScanPending(fn func(e Entry) error) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{LowerBound: keyPrefix, UpperBound: upperBound()})
	if err != nil {
		return err
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		seq, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		state, payload, err := decodeEntry(iter.Value())
		if err != nil {
			return err
		}
		if state == StateAcked {
			continue
		}
		e := Entry{Seq: seq, State: state, Payload: append([]byte(nil), payload...)}
		if err := fn(e); err != nil {
			return err
		}
	}
	return iter.Error()
}

// Pending counts entries not yet acked.
func (o *Outbox) Pending() (int, error) {
	n := 0
	err := o.ScanPending(func(Entry) error { n++; return nil })
	return n, err
}

func (o *Outbox) setState(seq uint64, state State) error {
	key := keyFor(seq)
	val, closer, err := o.db.Get(key)
	if err != nil {
		return err
	}
	_, payload, err := decodeEntry(val)
	if err != nil {
		closer.Close()
		return err
	}
	entry := encodeEntry(state, payload)
	closer.Close()
	return o.db.Set(key, entry, pebble.Sync)
}

// value layout: [state:1][payload].
func encodeEntry(state State, payload []byte) []byte {
	out := make([]byte, 1+len(payload))
	out[0] = byte(state)
	copy(out[1:], payload)
	return out
}

func decodeEntry(b []byte) (State, []byte, error) {
	if len(b) < 1 {
		return 0, nil, errors.New("outbox: short entry")
	}
	return State(b[0]), b[1:], nil
}

func keyFor(seq uint64) []byte {
	return []byte(fmt.Sprintf("ev/%020d", seq))
}

func upperBound() []byte { return []byte("ev/~") }

func parseKey(key []byte) (uint64, error) {
	var seq uint64
	_, err := fmt.Sscanf(string(key), "ev/%d", &seq)
	return seq, err
}
