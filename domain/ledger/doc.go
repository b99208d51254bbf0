// Package ledger tracks per-user, per-asset balances split into available
// and locked buckets. Reservations back resting orders; settlement moves
// locked funds between the counterparties of a trade atomically.
package ledger
