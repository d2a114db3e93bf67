// Package positions tracks open capital across both strategies and
// enforces the engine-wide capital ceiling.
package positions

import (
	"time"

	"github.com/predarb/crossvenue-arb/pkg/types"
)

// LegState is the lifecycle state of one submitted order leg.
type LegState string

const (
	LegSubmitted       LegState = "submitted"
	LegFilled          LegState = "filled"
	LegPartiallyFilled LegState = "partially_filled"
	LegRejected        LegState = "rejected"
	LegTimedOut        LegState = "timed_out"
)

// Terminal reports whether the leg can no longer change state.
func (s LegState) Terminal() bool {
	return s != LegSubmitted
}

// Leg is one order of a position as the engine last observed it.
type Leg struct {
	Venue           types.Venue `json:"venue"`
	MarketID        string      `json:"market_id"`
	Side            types.Side  `json:"side"`
	OrderID         string      `json:"order_id"`
	LimitPrice      float64     `json:"limit_price"`
	Contracts       float64     `json:"contracts"`
	FilledContracts float64     `json:"filled_contracts"`
	AvgFillPrice    float64     `json:"avg_fill_price"`
	State           LegState    `json:"state"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// Cost returns the capital the leg actually consumed.
func (l *Leg) Cost() float64 {
	return l.FilledContracts * l.AvgFillPrice
}

// PositionState is the lifecycle state of a position.
type PositionState string

const (
	// PositionOpen means both legs filled and the hedge is held.
	PositionOpen PositionState = "open"

	// PositionAwaitingSettlement means the underlying markets closed and
	// the engine is waiting for venue resolution.
	PositionAwaitingSettlement PositionState = "awaiting_settlement"

	// PositionSettled means payouts were collected.
	PositionSettled PositionState = "settled"

	// PositionAbandoned means the position was unwound or written off
	// before settlement.
	PositionAbandoned PositionState = "abandoned"
)

// canTransitionTo enforces the forward-only position lifecycle.
func (s PositionState) canTransitionTo(next PositionState) bool {
	switch s {
	case PositionOpen:
		return next == PositionAwaitingSettlement || next == PositionSettled || next == PositionAbandoned
	case PositionAwaitingSettlement:
		return next == PositionSettled || next == PositionAbandoned
	default:
		return false
	}
}

// Position is a hedged (or, after a partial failure, possibly unhedged)
// pair of legs held to settlement.
type Position struct {
	ID       string `json:"id"`
	Strategy string `json:"strategy"`
	DedupKey string `json:"dedup_key"`

	Legs [2]Leg `json:"legs"`

	// Cost is the total capital committed at fill time, in USD.
	Cost float64 `json:"cost"`

	// ExpectedPayout is Contracts * 1.0 for a fully hedged position.
	ExpectedPayout float64 `json:"expected_payout"`

	State PositionState `json:"state"`

	// Unhedged marks a position whose legs do not cover both outcomes.
	// It is surfaced until the position reaches a terminal state.
	Unhedged bool `json:"unhedged"`

	AbandonReason string  `json:"abandon_reason,omitempty"`
	Payout        float64 `json:"payout"`
	PnL           float64 `json:"pnl"`

	OpenedAt  time.Time `json:"opened_at"`
	SettledAt time.Time `json:"settled_at,omitempty"`
}

// Terminal reports whether the position's capital has been released.
func (p *Position) Terminal() bool {
	return p.State == PositionSettled || p.State == PositionAbandoned
}
