// Package snapshot persists and restores the live state of the exchange:
// resting orders per pair plus ledger balances, gob-encoded, written
// atomically. Snapshots bound journal replay time on restart.
package snapshot
