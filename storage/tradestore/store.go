package tradestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"vela/events"
)

// Store persists executed trades in SQLite. It is the durable side of trade
// history; the engine's in-memory ring serves the hot path.
type Store struct {
	db *sql.DB
}

func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("set pragma %s: %w", pragma, err)
		}
	}
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS trades (
			id             TEXT PRIMARY KEY,
			pair           TEXT NOT NULL,
			price          INTEGER NOT NULL,
			quantity       INTEGER NOT NULL,
			taker_order_id INTEGER NOT NULL,
			maker_order_id INTEGER NOT NULL,
			taker_user_id  TEXT NOT NULL,
			maker_user_id  TEXT NOT NULL,
			taker_side     TEXT NOT NULL,
			seq            INTEGER NOT NULL,
			ts             INTEGER NOT NULL
		);
	`)
	if err != nil {
		return nil, fmt.Errorf("create trades table: %w", err)
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_trades_pair_seq ON trades(pair, seq);`)
	if err != nil {
		return nil, fmt.Errorf("create trades index: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Save appends one trade. Trades are immutable; conflicts on ID mean a
// replayed event and are ignored.
func (s *Store) Save(ctx context.Context, t *events.Trade) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades
			(id, pair, price, quantity, taker_order_id, maker_order_id,
			 taker_user_id, maker_user_id, taker_side, seq, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		t.ID, t.Pair, t.Price, t.Quantity, t.TakerOrderID, t.MakerOrderID,
		t.TakerUserID, t.MakerUserID, t.TakerSide, t.Seq, t.Time.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// Recent returns up to limit trades for a pair, oldest first.
func (s *Store) Recent(ctx context.Context, pair string, limit int) ([]*events.Trade, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, pair, price, quantity, taker_order_id, maker_order_id,
		       taker_user_id, maker_user_id, taker_side, seq, ts
		FROM trades WHERE pair = ?
		ORDER BY seq DESC LIMIT ?`, pair, limit)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var out []*events.Trade
	for rows.Next() {
		var t events.Trade
		var ts int64
		if err := rows.Scan(&t.ID, &t.Pair, &t.Price, &t.Quantity,
			&t.TakerOrderID, &t.MakerOrderID, &t.TakerUserID, &t.MakerUserID,
			&t.TakerSide, &t.Seq, &ts); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.Time = time.Unix(0, ts).UTC()
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Reverse into chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
