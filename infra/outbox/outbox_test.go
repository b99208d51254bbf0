package outbox

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vela/events"
)

func testEvent(seq uint64) events.Event {
	return events.Event{
		Seq:  seq,
		Type: events.TradeExecuted,
		Pair: "BTC/USDT",
		Time: time.Now().UTC(),
	}
}

func TestPublishAndScan(t *testing.T) {
	o, err := Open(t.TempDir())
	require.NoError(t, err)
	defer o.Close()

	o.Publish(testEvent(1))
	o.Publish(testEvent(2))
	o.Publish(testEvent(3))

	var entries []Entry
	require.NoError(t, o.ScanPending(func(e Entry) error {
		entries = append(entries, e)
		return nil
	}))
	require.Len(t, entries, 3)
	for i, e := range entries {
		assert.Equal(t, uint64(i+1), e.Seq)
		assert.Equal(t, StateNew, e.State)
		var ev events.Event
		require.NoError(t, json.Unmarshal(e.Payload, &ev))
		assert.Equal(t, "BTC/USDT", ev.Pair)
	}
}

func TestStateTransitions(t *testing.T) {
	o, err := Open(t.TempDir())
	require.NoError(t, err)
	defer o.Close()

	o.Publish(testEvent(1))
	o.Publish(testEvent(2))

	require.NoError(t, o.MarkSent(1))
	require.NoError(t, o.MarkAcked(2))

	var got []Entry
	require.NoError(t, o.ScanPending(func(e Entry) error {
		got = append(got, e)
		return nil
	}))
	// Acked entries are pruned, sent entries stay pending for retry.
	require.Len(t, got, 1)
	assert.Equal(t, uint64(1), got[0].Seq)
	assert.Equal(t, StateSent, got[0].State)

	n, err := o.Pending()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSequenceResumesAfterReopen(t *testing.T) {
	dir := t.TempDir()
	o, err := Open(dir)
	require.NoError(t, err)
	o.Publish(testEvent(1))
	o.Publish(testEvent(2))
	require.NoError(t, o.Close())

	o, err = Open(dir)
	require.NoError(t, err)
	defer o.Close()
	o.Publish(testEvent(3))

	var seqs []uint64
	require.NoError(t, o.ScanPending(func(e Entry) error {
		seqs = append(seqs, e.Seq)
		return nil
	}))
	// The new entry must sort after the survivors, never collide.
	assert.Equal(t, []uint64{1, 2, 3}, seqs)
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "NEW", StateNew.String())
	assert.Equal(t, "SENT", StateSent.String())
	assert.Equal(t, "ACKED", StateAcked.String())
}
