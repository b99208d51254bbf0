package ledger

import (
	"errors"
	"fmt"
	"sync"
)

// FeeAccount collects trading fees inside the ledger so that settlement
// conserves total holdings per asset.
const FeeAccount = "@fees"

var (
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
	ErrInvalidAmount     = errors.New("ledger: amount must be positive")
)

// InvariantError reports a balance-consistency breach. It is an engine bug,
// never a user error, and callers treat it as fatal for the operation.
type InvariantError struct {
	Op     string
	UserID string
	Asset  string
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("ledger invariant violated in %s for user=%s asset=%s: %s",
		e.Op, e.UserID, e.Asset, e.Detail)
}

// Entry is the balance of one user in one asset.
type Entry struct {
	Available int64
	Locked    int64
}

type assetBook struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

func (ab *assetBook) entry(userID string) *Entry {
	e, ok := ab.entries[userID]
	if !ok {
		e = &Entry{}
		ab.entries[userID] = e
	}
	return e
}

// Ledger holds available and locked balances per (user, asset). Each asset
// has its own lock; operations touching two assets always acquire them in
// lexicographic asset order so concurrent settlements cannot deadlock.
type Ledger struct {
	mu     sync.RWMutex
	assets map[string]*assetBook
}

func New() *Ledger {
	return &Ledger{assets: make(map[string]*assetBook)}
}

func (l *Ledger) book(asset string) *assetBook {
	l.mu.RLock()
	ab, ok := l.assets[asset]
	l.mu.RUnlock()
	if ok {
		return ab
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if ab, ok = l.assets[asset]; ok {
		return ab
	}
	ab = &assetBook{entries: make(map[string]*Entry)}
	l.assets[asset] = ab
	return ab
}

// Entries returns a copy of every entry, keyed by asset then user. Each
// asset is copied under its own lock; the result is consistent per asset.
func (l *Ledger) Entries() map[string]map[string]Entry {
	l.mu.RLock()
	assets := make(map[string]*assetBook, len(l.assets))
	for name, ab := range l.assets {
		assets[name] = ab
	}
	l.mu.RUnlock()

	out := make(map[string]map[string]Entry, len(assets))
	for name, ab := range assets {
		ab.mu.Lock()
		m := make(map[string]Entry, len(ab.entries))
		for user, e := range ab.entries {
			m[user] = *e
		}
		ab.mu.Unlock()
		out[name] = m
	}
	return out
}

// RestoreEntry overwrites one entry from a snapshot. Only for startup
// restore, before the gateway accepts commands.
func (l *Ledger) RestoreEntry(userID, asset string, e Entry) {
	ab := l.book(asset)
	ab.mu.Lock()
	*ab.entry(userID) = e
	ab.mu.Unlock()
}

// Balance returns a copy of the user's entry for asset.
func (l *Ledger) Balance(userID, asset string) Entry {
	ab := l.book(asset)
	ab.mu.Lock()
	defer ab.mu.Unlock()
	if e, ok := ab.entries[userID]; ok {
		return *e
	}
	return Entry{}
}

// Deposit credits available funds. External entry point, not used by the
// matching path.
func (l *Ledger) Deposit(userID, asset string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	ab := l.book(asset)
	ab.mu.Lock()
	defer ab.mu.Unlock()
	ab.entry(userID).Available += amount
	return nil
}

// Withdraw debits available funds.
func (l *Ledger) Withdraw(userID, asset string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	ab := l.book(asset)
	ab.mu.Lock()
	defer ab.mu.Unlock()
	e := ab.entry(userID)
	if e.Available < amount {
		return ErrInsufficientFunds
	}
	e.Available -= amount
	return nil
}

// Reserve moves amount from available to locked. No side effects on failure.
func (l *Ledger) Reserve(userID, asset string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	ab := l.book(asset)
	ab.mu.Lock()
	defer ab.mu.Unlock()
	e := ab.entry(userID)
	if e.Available < amount {
		return ErrInsufficientFunds
	}
	e.Available -= amount
	e.Locked += amount
	return nil
}

// Release moves amount from locked back to available. Releasing more than is
// locked means a reservation was lost or double-spent; that is an invariant
// breach, not a recoverable error.
func (l *Ledger) Release(userID, asset string, amount int64) error {
	if amount == 0 {
		return nil
	}
	if amount < 0 {
		return ErrInvalidAmount
	}
	ab := l.book(asset)
	ab.mu.Lock()
	defer ab.mu.Unlock()
	e := ab.entry(userID)
	if e.Locked < amount {
		return &InvariantError{Op: "release", UserID: userID, Asset: asset,
			Detail: fmt.Sprintf("locked=%d release=%d", e.Locked, amount)}
	}
	e.Locked -= amount
	e.Available += amount
	return nil
}

// Settle moves one executed trade's funds between the two counterparties:
// baseAmt of base from the seller's locked balance to the buyer, and
// quoteAmt of quote from the buyer's locked balance to the seller. The
// engine computes both amounts from the trade's quantity and maker price.
// Fees are deducted from each side's credit and parked on FeeAccount.
// All four mutations apply together or not at all.
func (l *Ledger) Settle(buyer, seller, base, quote string, baseAmt, quoteAmt, buyerFee, sellerFee int64) error {
	if baseAmt <= 0 || quoteAmt <= 0 {
		return ErrInvalidAmount
	}
	if buyerFee < 0 || sellerFee < 0 || buyerFee > baseAmt || sellerFee > quoteAmt {
		return ErrInvalidAmount
	}

	baseBook, quoteBook := l.book(base), l.book(quote)
	lockPair(base, baseBook, quote, quoteBook)
	defer unlockPair(baseBook, quoteBook)

	sellerBase := baseBook.entry(seller)
	buyerQuote := quoteBook.entry(buyer)

	// Validate both debits before mutating anything.
	if sellerBase.Locked < baseAmt {
		return &InvariantError{Op: "settle", UserID: seller, Asset: base,
			Detail: fmt.Sprintf("locked=%d debit=%d", sellerBase.Locked, baseAmt)}
	}
	if buyerQuote.Locked < quoteAmt {
		return &InvariantError{Op: "settle", UserID: buyer, Asset: quote,
			Detail: fmt.Sprintf("locked=%d debit=%d", buyerQuote.Locked, quoteAmt)}
	}

	sellerBase.Locked -= baseAmt
	baseBook.entry(buyer).Available += baseAmt - buyerFee
	buyerQuote.Locked -= quoteAmt
	quoteBook.entry(seller).Available += quoteAmt - sellerFee
	if buyerFee > 0 {
		baseBook.entry(FeeAccount).Available += buyerFee
	}
	if sellerFee > 0 {
		quoteBook.entry(FeeAccount).Available += sellerFee
	}
	return nil
}

func lockPair(nameA string, a *assetBook, nameB string, b *assetBook) {
	if a == b {
		a.mu.Lock()
		return
	}
	if nameA < nameB {
		a.mu.Lock()
		b.mu.Lock()
	} else {
		b.mu.Lock()
		a.mu.Lock()
	}
}

func unlockPair(a, b *assetBook) {
	a.mu.Unlock()
	if b != a {
		b.mu.Unlock()
	}
}
