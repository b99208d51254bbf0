package snapshot

import "time"

// State is a point-in-time capture of everything needed for a fast restart:
// resting orders per pair and all ledger balances. Trades are not included;
// they live in the trade store and the event journal.
type State struct {
	Created time.Time
	Pairs   map[string]PairState
	// Balances is keyed by asset, then user.
	Balances map[string]map[string]Balance
}

type PairState struct {
	Seq    uint64
	Orders []OrderEntry
}

type OrderEntry struct {
	ID        uint64
	UserID    string
	Side      uint8
	Price     int64
	Quantity  int64
	Remaining int64
	Seq       uint64
}

type Balance struct {
	Available int64
	Locked    int64
}
