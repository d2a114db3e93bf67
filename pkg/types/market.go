package types

import (
	"fmt"
	"time"
)

// Venue identifies one of the connected trading venues.
type Venue string

const (
	VenuePolymarket Venue = "polymarket"
	VenueKalshi     Venue = "kalshi"
)

// Side is one of the two outcomes of a binary market.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// Opposite returns the complementary side.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// MarketStatus is the lifecycle state of a market. Transitions are
// monotonic: Open -> Closed -> Resolved.
type MarketStatus int

const (
	MarketOpen MarketStatus = iota
	MarketClosed
	MarketResolved
)

// String returns a human-readable status name.
func (s MarketStatus) String() string {
	switch s {
	case MarketOpen:
		return "open"
	case MarketClosed:
		return "closed"
	case MarketResolved:
		return "resolved"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// CanTransitionTo reports whether moving to next respects the monotonic
// Open -> Closed -> Resolved ordering. Same-state transitions are allowed.
func (s MarketStatus) CanTransitionTo(next MarketStatus) bool {
	return next >= s
}

// Market is a normalized binary-outcome market on a single venue.
// All fields except Status and Outcome are immutable after discovery.
type Market struct {
	Venue     Venue
	ID        string
	Question  string
	Slug      string
	TickSize  float64
	ExpiresAt time.Time
	Status    MarketStatus
	Outcome   Side    // winning side, valid only when Status == MarketResolved
	Liquidity float64 // venue-reported liquidity in USD, used for filtering
}

// Tradable reports whether orders can still be placed on the market.
func (m *Market) Tradable() bool {
	return m.Status == MarketOpen
}

// Expired reports whether the market has reached its resolution time.
func (m *Market) Expired(now time.Time) bool {
	return !m.ExpiresAt.IsZero() && !now.Before(m.ExpiresAt)
}

// Resolution is a venue's answer to "how did this market resolve".
// Resolved is false while the venue has not yet published an outcome.
type Resolution struct {
	MarketID string
	Resolved bool
	Winner   Side
}
