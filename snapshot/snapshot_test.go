package snapshot

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vela/domain/ledger"
	"vela/domain/orderbook"
	"vela/engine"
	"vela/exchange"
)

func buildWorld(t *testing.T) (*exchange.Gateway, *ledger.Ledger) {
	t.Helper()
	reg := exchange.NewRegistry()
	require.NoError(t, reg.AddAsset(exchange.AssetSpec{Symbol: "BTC", Decimals: 8}))
	require.NoError(t, reg.AddAsset(exchange.AssetSpec{Symbol: "USDT", Decimals: 6}))
	require.NoError(t, reg.Add(exchange.PairSpec{
		Symbol: "BTC/USDT", Base: "BTC", Quote: "USDT",
		TickSize: decimal.RequireFromString("0.01"),
		LotSize:  decimal.RequireFromString("0.001"),
		Enabled:  true,
	}))
	led := ledger.New()
	return exchange.NewGateway(reg, led, nil), led
}

func TestWriteLoadRestoreRoundTrip(t *testing.T) {
	gw, led := buildWorld(t)
	require.NoError(t, led.Deposit("alice", "USDT", 100_000_000))
	require.NoError(t, led.Deposit("bob", "BTC", 1_000_000_000))

	// A resting bid, a resting ask at a non-crossing price and one trade.
	_, _, err := gw.PlaceOrder("BTC/USDT", engine.PlaceRequest{
		UserID: "alice", Side: orderbook.Bid, Kind: orderbook.Limit, Price: 9000, Quantity: 10,
	})
	require.NoError(t, err)
	_, _, err = gw.PlaceOrder("BTC/USDT", engine.PlaceRequest{
		UserID: "bob", Side: orderbook.Ask, Kind: orderbook.Limit, Price: 9500, Quantity: 4,
	})
	require.NoError(t, err)
	_, trades, err := gw.PlaceOrder("BTC/USDT", engine.PlaceRequest{
		UserID: "alice", Side: orderbook.Bid, Kind: orderbook.Limit, Price: 9500, Quantity: 4,
	})
	require.NoError(t, err)
	require.Len(t, trades, 1)

	dir := t.TempDir()
	w := &Writer{Dir: dir}
	require.NoError(t, w.Write(gw, led))

	state, err := Load(dir)
	require.NoError(t, err)
	require.NotNil(t, state)
	require.Contains(t, state.Pairs, "BTC/USDT")
	assert.Len(t, state.Pairs["BTC/USDT"].Orders, 1)

	// Rebuild from scratch and restore.
	gw2, led2 := buildWorld(t)
	require.NoError(t, Restore(state, led2, gw2))

	assert.Equal(t, led.Entries(), led2.Entries())

	snap, err := gw2.OrderBookSnapshot("BTC/USDT", 10)
	require.NoError(t, err)
	require.Len(t, snap.Bids, 1)
	assert.Equal(t, int64(9000), snap.Bids[0].Price)
	assert.Equal(t, int64(10), snap.Bids[0].Qty)
	assert.Empty(t, snap.Asks)

	// The restored book must keep trading correctly: fill the restored bid.
	_, trades, err = gw2.PlaceOrder("BTC/USDT", engine.PlaceRequest{
		UserID: "bob", Side: orderbook.Ask, Kind: orderbook.Limit, Price: 9000, Quantity: 10,
	})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, int64(9000), trades[0].Price)
	assert.Equal(t, int64(0), led2.Balance("alice", "USDT").Locked)
}

func TestLoadMissingSnapshot(t *testing.T) {
	state, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestRestoreNilState(t *testing.T) {
	gw, led := buildWorld(t)
	assert.NoError(t, Restore(nil, led, gw))
}

func TestRestoreSkipsUnknownPairs(t *testing.T) {
	gw, led := buildWorld(t)
	state := &State{
		Pairs: map[string]PairState{
			"GONE/USDT": {Seq: 9, Orders: []OrderEntry{{ID: 1, UserID: "x", Price: 1, Quantity: 1, Remaining: 1}}},
		},
		Balances: map[string]map[string]Balance{},
	}
	assert.NoError(t, Restore(state, led, gw))
}

func TestSequenceContinuesAfterRestore(t *testing.T) {
	gw, led := buildWorld(t)
	require.NoError(t, led.Deposit("alice", "USDT", 100_000_000))
	_, _, err := gw.PlaceOrder("BTC/USDT", engine.PlaceRequest{
		UserID: "alice", Side: orderbook.Bid, Kind: orderbook.Limit, Price: 9000, Quantity: 10,
	})
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, (&Writer{Dir: dir}).Write(gw, led))
	state, err := Load(dir)
	require.NoError(t, err)

	gw2, led2 := buildWorld(t)
	require.NoError(t, Restore(state, led2, gw2))

	before, err := gw2.OrderBookSnapshot("BTC/USDT", 1)
	require.NoError(t, err)
	_, _, err = gw2.PlaceOrder("BTC/USDT", engine.PlaceRequest{
		UserID: "alice", Side: orderbook.Bid, Kind: orderbook.Limit, Price: 8900, Quantity: 1,
	})
	require.NoError(t, err)
	after, err := gw2.OrderBookSnapshot("BTC/USDT", 1)
	require.NoError(t, err)
	assert.Greater(t, after.Seq, before.Seq)
}
