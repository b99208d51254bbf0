package snapshot

import (
	"encoding/gob"
	"os"
	"path/filepath"
	"time"

	"vela/domain/ledger"
	"vela/exchange"
)

const fileName = "snapshot.bin"

type Writer struct {
	Dir string
}

// Write captures the gateway's books and the ledger and persists them
// atomically (temp file + rename).
func (w *Writer) Write(gw *exchange.Gateway, led *ledger.Ledger) error {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return err
	}

	s := State{
		Created:  time.Now().UTC(),
		Pairs:    make(map[string]PairState),
		Balances: make(map[string]map[string]Balance),
	}
	for pair, eng := range gw.Engines() {
		orders, seq := eng.RestingOrders()
		ps := PairState{Seq: seq, Orders: make([]OrderEntry, 0, len(orders))}
		for _, o := range orders {
			ps.Orders = append(ps.Orders, OrderEntry{
				ID:        o.ID,
				UserID:    o.UserID,
				Side:      uint8(o.Side),
				Price:     o.Price,
				Quantity:  o.Quantity,
				Remaining: o.Remaining,
				Seq:       o.Seq,
			})
		}
		s.Pairs[pair] = ps
	}
	for asset, users := range led.Entries() {
		m := make(map[string]Balance, len(users))
		for user, e := range users {
			m[user] = Balance{Available: e.Available, Locked: e.Locked}
		}
		s.Balances[asset] = m
	}

	tmp := filepath.Join(w.Dir, fileName+".tmp")
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(f).Encode(&s); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(w.Dir, fileName))
}
