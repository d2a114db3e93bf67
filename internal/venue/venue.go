// Package venue defines the contract every venue adapter implements.
// Adapters translate venue-specific protocols into these calls; the engine
// core never depends on a concrete venue.
package venue

import (
	"context"
	"time"

	"github.com/predarb/crossvenue-arb/pkg/types"
)

// OrderRequest describes one order to place on a venue.
type OrderRequest struct {
	MarketID string
	Side     types.Side
	Price    float64 // limit price per contract, in [0, 1]
	Size     float64 // number of contracts to trade
	Sell     bool    // true for unwind (sell) orders
}

// OrderStatus is a venue's view of a previously submitted order.
type OrderStatus struct {
	OrderID      string
	Status       string // venue-native status string
	Size         float64
	SizeFilled   float64
	AvgFillPrice float64
	UpdatedAt    time.Time
}

// FullyFilled reports whether the order is completely filled, with a small
// tolerance for floating point size accounting.
func (s *OrderStatus) FullyFilled() bool {
	const tolerance = 0.001
	return s.SizeFilled >= s.Size-tolerance
}

// Adapter is the per-venue connectivity contract.
//
// ListMarkets and GetQuote may fail with a transient-vs-fatal distinction
// (types.VenueError). SubmitOrder fails with types.RejectedOrderError on
// venue-side refusal. All calls honor ctx cancellation and deadlines.
type Adapter interface {
	// Name returns the venue identity.
	Name() types.Venue

	// ListMarkets returns currently listed binary markets.
	ListMarkets(ctx context.Context) ([]types.Market, error)

	// GetQuote returns the current best bid/ask for one side of a market.
	GetQuote(ctx context.Context, marketID string, side types.Side) (*types.PriceQuote, error)

	// SubmitOrder places an order and returns the venue order id.
	SubmitOrder(ctx context.Context, req OrderRequest) (string, error)

	// GetOrderStatus returns the venue's fill state for an order.
	GetOrderStatus(ctx context.Context, orderID string) (*OrderStatus, error)

	// CancelOrder cancels the unfilled remainder of an order. Canceling
	// an already terminal order is not an error.
	CancelOrder(ctx context.Context, orderID string) error

	// GetBalance returns the available trading balance in USD.
	GetBalance(ctx context.Context) (float64, error)

	// GetResolution returns the resolution state of a market. The returned
	// Resolution has Resolved == false while the venue has not published an
	// outcome; that is not an error.
	GetResolution(ctx context.Context, marketID string) (*types.Resolution, error)
}
