package snapshot

import (
	"encoding/gob"
	"os"
	"path/filepath"

	"vela/domain/ledger"
	"vela/domain/orderbook"
	"vela/exchange"
)

// Load reads a snapshot from dir. A missing snapshot is not an error; the
// system simply starts empty.
func Load(dir string) (*State, error) {
	f, err := os.Open(filepath.Join(dir, fileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var s State
	if err := gob.NewDecoder(f).Decode(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Restore replays a snapshot into a freshly built ledger and gateway.
// Balances first, then resting orders, so reservations line up with locked
// funds.
func Restore(s *State, led *ledger.Ledger, gw *exchange.Gateway) error {
	if s == nil {
		return nil
	}
	for asset, users := range s.Balances {
		for user, b := range users {
			led.RestoreEntry(user, asset, ledger.Entry{Available: b.Available, Locked: b.Locked})
		}
	}
	for pair, ps := range s.Pairs {
		eng, ok := gw.Engines()[pair]
		if !ok {
			continue
		}
		for _, oe := range ps.Orders {
			o := &orderbook.Order{
				ID:        oe.ID,
				UserID:    oe.UserID,
				Pair:      pair,
				Side:      orderbook.Side(oe.Side),
				Kind:      orderbook.Limit,
				Price:     oe.Price,
				Quantity:  oe.Quantity,
				Remaining: oe.Remaining,
				Seq:       oe.Seq,
				Status:    orderbook.Open,
			}
			if oe.Remaining < oe.Quantity {
				o.Status = orderbook.PartiallyFilled
			}
			if err := eng.Restore(o); err != nil {
				return err
			}
		}
		eng.BumpSeq(ps.Seq)
	}
	return nil
}
