package detector

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/predarb/crossvenue-arb/pkg/types"
)

// Kind distinguishes the two strategies the engine trades.
type Kind string

const (
	// KindCrossVenue pairs complementary sides of the same event on two
	// different venues.
	KindCrossVenue Kind = "cross_venue"

	// KindSinglePlatform pairs YES and NO of one market on one venue.
	KindSinglePlatform Kind = "single_platform"
)

// LegPlan is one planned order of an opportunity.
type LegPlan struct {
	Venue      types.Venue
	MarketID   string
	Side       types.Side
	LimitPrice float64 // the quoted ask this plan was built from
	Contracts  float64
	QuotedAt   time.Time
}

// Opportunity is a priced, sized arbitrage candidate. Both legs pay out
// 1.0 per contract on the covered outcome, so any total cost below 1.0
// net of fees and buffer locks in profit regardless of resolution.
type Opportunity struct {
	ID         string
	Kind       Kind
	DedupKey   string
	Legs       [2]LegPlan
	TotalCost  float64 // per-contract cost of both legs including fees
	Buffer     float64
	Margin     float64 // 1.0 - TotalCost - Buffer
	NetProfit  float64 // Margin * Contracts
	ProfitBPS  float64
	DetectedAt time.Time
}

// newOpportunity prices a two-leg candidate. Returns nil when the margin
// after fees and buffer is not positive.
func newOpportunity(kind Kind, dedupKey string, legA, legB LegPlan, feeA, feeB, buffer float64) *Opportunity {
	cost := legA.LimitPrice*(1+feeA) + legB.LimitPrice*(1+feeB)
	margin := 1.0 - cost - buffer
	if margin <= 0 {
		return nil
	}

	contracts := legA.Contracts
	if legB.Contracts < contracts {
		contracts = legB.Contracts
	}
	legA.Contracts = contracts
	legB.Contracts = contracts

	return &Opportunity{
		ID:         uuid.New().String(),
		Kind:       kind,
		DedupKey:   dedupKey,
		Legs:       [2]LegPlan{legA, legB},
		TotalCost:  cost,
		Buffer:     buffer,
		Margin:     margin,
		NetProfit:  margin * contracts,
		ProfitBPS:  margin * 10000,
		DetectedAt: time.Now(),
	}
}

// Contracts returns the shared size of both legs.
func (o *Opportunity) Contracts() float64 {
	return o.Legs[0].Contracts
}

// String renders a compact one-line summary for logs.
func (o *Opportunity) String() string {
	return fmt.Sprintf("%s %s/%s %s@%.3f + %s/%s %s@%.3f cost=%.4f margin=%.4f size=%.1f",
		o.Kind,
		o.Legs[0].Venue, o.Legs[0].MarketID, o.Legs[0].Side, o.Legs[0].LimitPrice,
		o.Legs[1].Venue, o.Legs[1].MarketID, o.Legs[1].Side, o.Legs[1].LimitPrice,
		o.TotalCost, o.Margin, o.Contracts())
}
