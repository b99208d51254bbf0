// Package orderbook implements the per-pair resting order book: two
// red-black trees of price levels (bids descending, asks ascending) with a
// FIFO queue per level. Price priority comes from tree order, time priority
// from queue order. The book is not safe for concurrent use; the owning
// engine serializes access.
package orderbook
