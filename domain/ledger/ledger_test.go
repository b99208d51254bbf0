package ledger

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDepositWithdraw(t *testing.T) {
	l := New()
	require.NoError(t, l.Deposit("alice", "USDT", 1000))
	require.NoError(t, l.Withdraw("alice", "USDT", 400))

	e := l.Balance("alice", "USDT")
	assert.Equal(t, int64(600), e.Available)
	assert.Equal(t, int64(0), e.Locked)

	assert.ErrorIs(t, l.Withdraw("alice", "USDT", 601), ErrInsufficientFunds)
	assert.ErrorIs(t, l.Deposit("alice", "USDT", 0), ErrInvalidAmount)
	assert.ErrorIs(t, l.Deposit("alice", "USDT", -5), ErrInvalidAmount)
}

func TestReserveRelease(t *testing.T) {
	l := New()
	require.NoError(t, l.Deposit("alice", "USDT", 1000))

	require.NoError(t, l.Reserve("alice", "USDT", 700))
	e := l.Balance("alice", "USDT")
	assert.Equal(t, int64(300), e.Available)
	assert.Equal(t, int64(700), e.Locked)

	// Over-reserving fails with no side effects.
	assert.ErrorIs(t, l.Reserve("alice", "USDT", 301), ErrInsufficientFunds)
	assert.Equal(t, e, l.Balance("alice", "USDT"))

	require.NoError(t, l.Release("alice", "USDT", 700))
	e = l.Balance("alice", "USDT")
	assert.Equal(t, int64(1000), e.Available)
	assert.Equal(t, int64(0), e.Locked)
}

func TestReleaseMoreThanLockedIsInvariantBreach(t *testing.T) {
	l := New()
	require.NoError(t, l.Deposit("alice", "USDT", 100))
	require.NoError(t, l.Reserve("alice", "USDT", 50))

	err := l.Release("alice", "USDT", 60)
	var ierr *InvariantError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, "release", ierr.Op)
}

func TestSettleMovesLockedFunds(t *testing.T) {
	l := New()
	// Seller locked 5 BTC, buyer locked 500 USDT.
	require.NoError(t, l.Deposit("seller", "BTC", 5))
	require.NoError(t, l.Reserve("seller", "BTC", 5))
	require.NoError(t, l.Deposit("buyer", "USDT", 500))
	require.NoError(t, l.Reserve("buyer", "USDT", 500))

	require.NoError(t, l.Settle("buyer", "seller", "BTC", "USDT", 5, 500, 0, 0))

	assert.Equal(t, Entry{Available: 5}, l.Balance("buyer", "BTC"))
	assert.Equal(t, Entry{}, l.Balance("seller", "BTC"))
	assert.Equal(t, Entry{Available: 500}, l.Balance("seller", "USDT"))
	assert.Equal(t, Entry{}, l.Balance("buyer", "USDT"))
}

func TestSettleFees(t *testing.T) {
	l := New()
	require.NoError(t, l.Deposit("seller", "BTC", 10))
	require.NoError(t, l.Reserve("seller", "BTC", 10))
	require.NoError(t, l.Deposit("buyer", "USDT", 1000))
	require.NoError(t, l.Reserve("buyer", "USDT", 1000))

	require.NoError(t, l.Settle("buyer", "seller", "BTC", "USDT", 10, 1000, 1, 3))

	assert.Equal(t, int64(9), l.Balance("buyer", "BTC").Available)
	assert.Equal(t, int64(997), l.Balance("seller", "USDT").Available)
	assert.Equal(t, int64(1), l.Balance(FeeAccount, "BTC").Available)
	assert.Equal(t, int64(3), l.Balance(FeeAccount, "USDT").Available)
}

func TestSettleValidatesBeforeMutating(t *testing.T) {
	l := New()
	require.NoError(t, l.Deposit("seller", "BTC", 5))
	require.NoError(t, l.Reserve("seller", "BTC", 5))
	// Buyer has nothing locked: the settle must fail without touching the
	// seller's funds.
	err := l.Settle("buyer", "seller", "BTC", "USDT", 5, 500, 0, 0)
	var ierr *InvariantError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, "settle", ierr.Op)
	assert.Equal(t, Entry{Locked: 5}, l.Balance("seller", "BTC"))
}

func TestSettleSelfTrade(t *testing.T) {
	l := New()
	require.NoError(t, l.Deposit("alice", "BTC", 5))
	require.NoError(t, l.Reserve("alice", "BTC", 5))
	require.NoError(t, l.Deposit("alice", "USDT", 500))
	require.NoError(t, l.Reserve("alice", "USDT", 500))

	require.NoError(t, l.Settle("alice", "alice", "BTC", "USDT", 5, 500, 0, 0))

	assert.Equal(t, Entry{Available: 5}, l.Balance("alice", "BTC"))
	assert.Equal(t, Entry{Available: 500}, l.Balance("alice", "USDT"))
}

func TestSettleRejectsBadAmounts(t *testing.T) {
	l := New()
	assert.ErrorIs(t, l.Settle("b", "s", "BTC", "USDT", 0, 10, 0, 0), ErrInvalidAmount)
	assert.ErrorIs(t, l.Settle("b", "s", "BTC", "USDT", 10, -1, 0, 0), ErrInvalidAmount)
	assert.ErrorIs(t, l.Settle("b", "s", "BTC", "USDT", 10, 10, 11, 0), ErrInvalidAmount)
}

// Concurrent settlements in both lexicographic directions must not deadlock
// and must conserve per-asset totals.
func TestConcurrentSettleConservesTotals(t *testing.T) {
	l := New()
	const rounds = 200
	require.NoError(t, l.Deposit("alice", "AAA", rounds))
	require.NoError(t, l.Reserve("alice", "AAA", rounds))
	require.NoError(t, l.Deposit("alice", "ZZZ", rounds))
	require.NoError(t, l.Reserve("alice", "ZZZ", rounds))
	require.NoError(t, l.Deposit("bob", "AAA", rounds))
	require.NoError(t, l.Reserve("bob", "AAA", rounds))
	require.NoError(t, l.Deposit("bob", "ZZZ", rounds))
	require.NoError(t, l.Reserve("bob", "ZZZ", rounds))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			if err := l.Settle("alice", "bob", "AAA", "ZZZ", 1, 1, 0, 0); err != nil {
				t.Error(err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			if err := l.Settle("bob", "alice", "ZZZ", "AAA", 1, 1, 0, 0); err != nil {
				t.Error(err)
				return
			}
		}
	}()
	wg.Wait()

	for _, asset := range []string{"AAA", "ZZZ"} {
		var total int64
		for _, users := range []string{"alice", "bob"} {
			e := l.Balance(users, asset)
			total += e.Available + e.Locked
		}
		assert.Equal(t, int64(2*rounds), total, "asset %s", asset)
	}
}

func TestEntriesSnapshot(t *testing.T) {
	l := New()
	require.NoError(t, l.Deposit("alice", "BTC", 7))
	require.NoError(t, l.Reserve("alice", "BTC", 3))

	all := l.Entries()
	require.Contains(t, all, "BTC")
	assert.Equal(t, Entry{Available: 4, Locked: 3}, all["BTC"]["alice"])

	// The snapshot is a copy.
	all["BTC"]["alice"] = Entry{}
	assert.Equal(t, Entry{Available: 4, Locked: 3}, l.Balance("alice", "BTC"))
}

func TestRestoreEntry(t *testing.T) {
	l := New()
	l.RestoreEntry("alice", "BTC", Entry{Available: 12, Locked: 8})
	assert.Equal(t, Entry{Available: 12, Locked: 8}, l.Balance("alice", "BTC"))
}

func TestInvariantErrorMessage(t *testing.T) {
	err := &InvariantError{Op: "settle", UserID: "u1", Asset: "BTC", Detail: "locked=1 debit=2"}
	assert.Contains(t, err.Error(), "settle")
	assert.Contains(t, err.Error(), "BTC")
	var target *InvariantError
	assert.True(t, errors.As(err, &target))
}
