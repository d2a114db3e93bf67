package types

import "time"

// PriceQuote is a point-in-time view of one side of a market's book.
// Quotes are immutable; newer quotes replace older ones in the snapshot
// store, they are never mutated in place.
type PriceQuote struct {
	Venue     Venue
	MarketID  string
	Side      Side
	BestBid   float64
	BidSize   float64
	BestAsk   float64
	AskSize   float64
	Timestamp time.Time
}

// Stale reports whether the quote is older than the given bound at now.
func (q *PriceQuote) Stale(now time.Time, bound time.Duration) bool {
	return now.Sub(q.Timestamp) > bound
}

// HasAsk reports whether the quote carries a usable ask level.
func (q *PriceQuote) HasAsk() bool {
	return q.BestAsk > 0 && q.AskSize > 0
}
