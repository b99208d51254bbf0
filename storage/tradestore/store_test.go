package tradestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vela/events"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "trades.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testTrade(pair string, seq uint64) *events.Trade {
	return &events.Trade{
		ID:           uuid.NewString(),
		Pair:         pair,
		Price:        100 + int64(seq),
		Quantity:     int64(seq),
		TakerOrderID: seq,
		MakerOrderID: seq + 1000,
		TakerUserID:  "taker",
		MakerUserID:  "maker",
		TakerSide:    "BID",
		Seq:          seq,
		Time:         time.Unix(0, int64(seq)*1e9).UTC(),
	}
}

func TestSaveAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := uint64(1); i <= 5; i++ {
		require.NoError(t, s.Save(ctx, testTrade("BTC/USDT", i)))
	}
	require.NoError(t, s.Save(ctx, testTrade("ETH/USDT", 1)))

	got, err := s.Recent(ctx, "BTC/USDT", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	// Most recent three, in chronological order.
	assert.Equal(t, uint64(3), got[0].Seq)
	assert.Equal(t, uint64(5), got[2].Seq)
	assert.Equal(t, "BTC/USDT", got[1].Pair)
	assert.Equal(t, int64(104), got[1].Price)
	assert.Equal(t, time.Unix(0, 4e9).UTC(), got[1].Time)
}

func TestSaveIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tr := testTrade("BTC/USDT", 1)
	require.NoError(t, s.Save(ctx, tr))
	require.NoError(t, s.Save(ctx, tr))

	got, err := s.Recent(ctx, "BTC/USDT", 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestRecentEmptyPair(t *testing.T) {
	s := openTestStore(t)
	got, err := s.Recent(context.Background(), "NOPE/USDT", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSinkPersistsTrades(t *testing.T) {
	s := openTestStore(t)
	sink := NewSink(s, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sink.Run(ctx)

	tr := testTrade("BTC/USDT", 7)
	sink.Publish(events.Event{Type: events.TradeExecuted, Pair: tr.Pair, Trade: tr})
	// Non-trade events are ignored.
	sink.Publish(events.Event{Type: events.OrderAccepted, Pair: tr.Pair})

	require.Eventually(t, func() bool {
		got, err := s.Recent(context.Background(), "BTC/USDT", 10)
		return err == nil && len(got) == 1
	}, 2*time.Second, 10*time.Millisecond)
}
