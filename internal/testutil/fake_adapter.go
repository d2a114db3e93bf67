// Package testutil provides shared test doubles for the engine packages.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/predarb/crossvenue-arb/internal/venue"
	"github.com/predarb/crossvenue-arb/pkg/types"
)

// FakeAdapter is a scripted in-memory venue.Adapter. Tests preload
// markets, quotes and order behavior, then assert on recorded calls.
// All methods are safe for concurrent use and honor context
// cancellation the way the HTTP adapters do.
type FakeAdapter struct {
	VenueName types.Venue

	mu          sync.Mutex
	markets     []types.Market
	quotes      map[string]*types.PriceQuote // keyed by marketID|side
	resolutions map[string]*types.Resolution
	balance     float64

	// Scripted failures. When set, the corresponding call returns the
	// error once and clears it.
	listErr   error
	quoteErr  error
	submitErr error
	statusErr error

	// rejectNext forces the next SubmitOrder to fail with a venue
	// rejection instead of a transient error.
	rejectNext bool

	// fillScript maps order id to the statuses returned by successive
	// GetOrderStatus calls; the last entry repeats.
	fillScript map[string][]venue.OrderStatus
	statusHits map[string]int

	orderSeq  int
	Submitted []venue.OrderRequest
	Canceled  []string
}

// NewFakeAdapter creates an empty fake for the given venue.
func NewFakeAdapter(v types.Venue) *FakeAdapter {
	return &FakeAdapter{
		VenueName:   v,
		quotes:      make(map[string]*types.PriceQuote),
		resolutions: make(map[string]*types.Resolution),
		fillScript:  make(map[string][]venue.OrderStatus),
		statusHits:  make(map[string]int),
		balance:     100000,
	}
}

func quoteKey(marketID string, side types.Side) string {
	return marketID + "|" + string(side)
}

// ctxErr mirrors how the HTTP adapters surface a dead context.
func (f *FakeAdapter) ctxErr(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return types.NewTransientVenueError(f.VenueName, op, err)
	}
	return nil
}

// SetMarkets replaces the listed markets.
func (f *FakeAdapter) SetMarkets(markets ...types.Market) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markets = markets
}

// SetQuote scripts the quote returned for one market side.
func (f *FakeAdapter) SetQuote(q *types.PriceQuote) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes[quoteKey(q.MarketID, q.Side)] = q
}

// SetResolution scripts the resolution state for a market.
func (f *FakeAdapter) SetResolution(r *types.Resolution) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolutions[r.MarketID] = r
}

// SetBalance scripts the available balance.
func (f *FakeAdapter) SetBalance(b float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balance = b
}

// FailNextList makes the next ListMarkets call return err.
func (f *FakeAdapter) FailNextList(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr = err
}

// FailNextQuote makes the next GetQuote call return err.
func (f *FakeAdapter) FailNextQuote(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quoteErr = err
}

// FailNextSubmit makes the next SubmitOrder call return err.
func (f *FakeAdapter) FailNextSubmit(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitErr = err
}

// RejectNextSubmit makes the next SubmitOrder fail with a rejection.
func (f *FakeAdapter) RejectNextSubmit() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejectNext = true
}

// ScriptFills sets the sequence of statuses GetOrderStatus returns for
// the order id that the n-th SubmitOrder call will produce.
func (f *FakeAdapter) ScriptFills(orderID string, statuses ...venue.OrderStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fillScript[orderID] = statuses
}

// NextOrderID returns the id the next SubmitOrder call will assign,
// letting tests script fills before submitting.
func (f *FakeAdapter) NextOrderID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fmt.Sprintf("%s-order-%d", f.VenueName, f.orderSeq+1)
}

// Name implements venue.Adapter.
func (f *FakeAdapter) Name() types.Venue { return f.VenueName }

// ListMarkets implements venue.Adapter.
func (f *FakeAdapter) ListMarkets(ctx context.Context) ([]types.Market, error) {
	if err := f.ctxErr(ctx, "list-markets"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		err := f.listErr
		f.listErr = nil
		return nil, err
	}
	out := make([]types.Market, len(f.markets))
	copy(out, f.markets)
	return out, nil
}

// GetQuote implements venue.Adapter.
func (f *FakeAdapter) GetQuote(ctx context.Context, marketID string, side types.Side) (*types.PriceQuote, error) {
	if err := f.ctxErr(ctx, "get-quote"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.quoteErr != nil {
		err := f.quoteErr
		f.quoteErr = nil
		return nil, err
	}
	q, ok := f.quotes[quoteKey(marketID, side)]
	if !ok {
		return nil, types.NewTransientVenueError(f.VenueName, "get-quote",
			fmt.Errorf("no quote for %s %s", marketID, side))
	}
	cp := *q
	return &cp, nil
}

// SubmitOrder implements venue.Adapter.
func (f *FakeAdapter) SubmitOrder(ctx context.Context, req venue.OrderRequest) (string, error) {
	if err := f.ctxErr(ctx, "submit-order"); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		err := f.submitErr
		f.submitErr = nil
		return "", err
	}
	if f.rejectNext {
		f.rejectNext = false
		return "", &types.RejectedOrderError{
			Venue:    f.VenueName,
			MarketID: req.MarketID,
			Side:     req.Side,
			Code:     "rejected",
			Message:  "order rejected by venue",
		}
	}
	f.orderSeq++
	orderID := fmt.Sprintf("%s-order-%d", f.VenueName, f.orderSeq)
	f.Submitted = append(f.Submitted, req)

	// Default: instant full fill at the limit price.
	if _, scripted := f.fillScript[orderID]; !scripted {
		f.fillScript[orderID] = []venue.OrderStatus{{
			OrderID:      orderID,
			Status:       "filled",
			Size:         req.Size,
			SizeFilled:   req.Size,
			AvgFillPrice: req.Price,
		}}
	}
	return orderID, nil
}

// GetOrderStatus implements venue.Adapter.
func (f *FakeAdapter) GetOrderStatus(ctx context.Context, orderID string) (*venue.OrderStatus, error) {
	if err := f.ctxErr(ctx, "get-order-status"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		err := f.statusErr
		f.statusErr = nil
		return nil, err
	}
	script, ok := f.fillScript[orderID]
	if !ok {
		return nil, types.NewTransientVenueError(f.VenueName, "get-order-status",
			fmt.Errorf("unknown order %s", orderID))
	}
	idx := f.statusHits[orderID]
	if idx >= len(script) {
		idx = len(script) - 1
	}
	f.statusHits[orderID]++
	st := script[idx]
	st.OrderID = orderID
	return &st, nil
}

// CancelOrder implements venue.Adapter. The unfilled remainder of the
// scripted order stops filling; already terminal orders are untouched.
func (f *FakeAdapter) CancelOrder(ctx context.Context, orderID string) error {
	if err := f.ctxErr(ctx, "cancel-order"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Canceled = append(f.Canceled, orderID)
	return nil
}

// GetBalance implements venue.Adapter.
func (f *FakeAdapter) GetBalance(ctx context.Context) (float64, error) {
	if err := f.ctxErr(ctx, "get-balance"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance, nil
}

// GetResolution implements venue.Adapter.
func (f *FakeAdapter) GetResolution(ctx context.Context, marketID string) (*types.Resolution, error) {
	if err := f.ctxErr(ctx, "get-resolution"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.resolutions[marketID]
	if !ok {
		return &types.Resolution{MarketID: marketID, Resolved: false}, nil
	}
	cp := *r
	return &cp, nil
}

// SubmittedOrders returns a copy of all recorded order requests.
func (f *FakeAdapter) SubmittedOrders() []venue.OrderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]venue.OrderRequest, len(f.Submitted))
	copy(out, f.Submitted)
	return out
}
