// Package engine implements price-time priority matching for one trading
// pair: validation, worst-case fund reservation, the match loop with
// per-fill atomic settlement, resting of limit remainders and rejection of
// market remainders, and race-tolerant cancellation. One mutex per pair
// covers a full match loop, which is the unit of atomicity the rest of the
// system relies on.
package engine
