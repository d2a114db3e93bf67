package executor

import (
	"context"
	"testing"
	"time"

	"github.com/predarb/crossvenue-arb/internal/detector"
	"github.com/predarb/crossvenue-arb/internal/positions"
	"github.com/predarb/crossvenue-arb/internal/quotes"
	"github.com/predarb/crossvenue-arb/internal/testutil"
	"github.com/predarb/crossvenue-arb/internal/venue"
	"github.com/predarb/crossvenue-arb/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type harness struct {
	executor *Executor
	detector *detector.Detector
	store    *quotes.Store
	tracker  *positions.Tracker
	storage  *testutil.MemoryStorage
	poly     *testutil.FakeAdapter
	kalshi   *testutil.FakeAdapter
}

func newHarness(t *testing.T, mode Mode, ceiling float64) *harness {
	t.Helper()

	store := quotes.New(quotes.Config{
		StalenessMax:     10 * time.Second,
		UpdateBufferSize: 64,
		Logger:           zap.NewNop(),
	})
	det := detector.New(detector.Config{
		ProfitBuffer:          0.02,
		MinContracts:          1,
		MaxContracts:          500,
		OpportunityBufferSize: 16,
		Logger:                zap.NewNop(),
	}, store)
	tracker := positions.NewTracker(positions.Config{
		CapitalCeiling: ceiling,
		Logger:         zap.NewNop(),
	})
	st := testutil.NewMemoryStorage()
	poly := testutil.NewFakeAdapter(types.VenuePolymarket)
	kalshi := testutil.NewFakeAdapter(types.VenueKalshi)

	exec := New(Config{
		Mode:               mode,
		LegTimeout:         100 * time.Millisecond,
		FillInitialBackoff: 5 * time.Millisecond,
		FillMaxBackoff:     20 * time.Millisecond,
		FillBackoffMult:    2.0,
		Logger:             zap.NewNop(),
	}, det, store, tracker, st, poly, kalshi)

	return &harness{
		executor: exec,
		detector: det,
		store:    store,
		tracker:  tracker,
		storage:  st,
		poly:     poly,
		kalshi:   kalshi,
	}
}

// seedQuotes loads fresh quotes matching the standard test opportunity.
func (h *harness) seedQuotes() {
	now := time.Now()
	h.store.Update(types.PriceQuote{
		Venue: types.VenuePolymarket, MarketID: "p1", Side: types.SideYes,
		BestBid: 0.38, BidSize: 200, BestAsk: 0.40, AskSize: 200, Timestamp: now,
	})
	h.store.Update(types.PriceQuote{
		Venue: types.VenueKalshi, MarketID: "k1", Side: types.SideNo,
		BestBid: 0.53, BidSize: 200, BestAsk: 0.55, AskSize: 200, Timestamp: now,
	})
}

func testOpportunity() *detector.Opportunity {
	return &detector.Opportunity{
		ID:       "opp-1",
		Kind:     detector.KindCrossVenue,
		DedupKey: "polymarket:p1|kalshi:k1",
		Legs: [2]detector.LegPlan{
			{Venue: types.VenuePolymarket, MarketID: "p1", Side: types.SideYes, LimitPrice: 0.40, Contracts: 100},
			{Venue: types.VenueKalshi, MarketID: "k1", Side: types.SideNo, LimitPrice: 0.55, Contracts: 100},
		},
		TotalCost:  0.95,
		Buffer:     0.02,
		Margin:     0.03,
		NetProfit:  3.0,
		ProfitBPS:  300,
		DetectedAt: time.Now(),
	}
}

func TestExecutePaperMode(t *testing.T) {
	h := newHarness(t, ModePaper, 1000)
	h.seedQuotes()

	h.executor.Execute(context.Background(), testOpportunity())

	active := h.tracker.Active()
	require.Len(t, active, 1)
	p := active[0]
	assert.Equal(t, positions.PositionOpen, p.State)
	assert.False(t, p.Unhedged)
	assert.InDelta(t, 95, p.Cost, 1e-9)
	assert.InDelta(t, 100, p.ExpectedPayout, 1e-9)
	assert.InDelta(t, 95, h.tracker.Committed(), 1e-9)

	// Nothing hits the venues in paper mode.
	assert.Empty(t, h.poly.SubmittedOrders())
	assert.Empty(t, h.kalshi.SubmittedOrders())
	assert.Len(t, h.storage.Positions(), 1)
}

func TestExecuteLiveBothLegsFill(t *testing.T) {
	h := newHarness(t, ModeLive, 1000)
	h.seedQuotes()

	h.executor.Execute(context.Background(), testOpportunity())

	active := h.tracker.Active()
	require.Len(t, active, 1)
	assert.Equal(t, positions.PositionOpen, active[0].State)
	assert.False(t, active[0].Unhedged)

	polyOrders := h.poly.SubmittedOrders()
	kalshiOrders := h.kalshi.SubmittedOrders()
	require.Len(t, polyOrders, 1)
	require.Len(t, kalshiOrders, 1)
	assert.Equal(t, types.SideYes, polyOrders[0].Side)
	assert.Equal(t, types.SideNo, kalshiOrders[0].Side)
	assert.False(t, polyOrders[0].Sell)
}

func TestExecuteRejectedLegUnwound(t *testing.T) {
	h := newHarness(t, ModeLive, 1000)
	h.seedQuotes()
	h.kalshi.RejectNextSubmit()

	h.executor.Execute(context.Background(), testOpportunity())

	list := h.tracker.List()
	require.Len(t, list, 1)
	p := list[0]
	assert.Equal(t, positions.PositionAbandoned, p.State)
	assert.Equal(t, "one-sided fill unwound", p.AbandonReason)
	// Bought 100 at 0.40, sold back at the 0.38 bid.
	assert.InDelta(t, -2, p.PnL, 1e-9)

	// Capital freed after the write-off.
	assert.Equal(t, 0.0, h.tracker.Committed())

	// The filled leg was unwound with a sell order.
	polyOrders := h.poly.SubmittedOrders()
	require.Len(t, polyOrders, 2)
	assert.True(t, polyOrders[1].Sell)
	assert.InDelta(t, 100, polyOrders[1].Size, 1e-9)
}

func TestExecuteUnwindFailureFlagsUnhedged(t *testing.T) {
	h := newHarness(t, ModeLive, 1000)
	h.seedQuotes()
	h.kalshi.RejectNextSubmit()

	// The buy fills instantly; the unwind sell never fills.
	h.poly.ScriptFills("polymarket-order-2", venue.OrderStatus{
		Status: "open", Size: 100, SizeFilled: 0,
	})

	h.executor.Execute(context.Background(), testOpportunity())

	active := h.tracker.Active()
	require.Len(t, active, 1)
	p := active[0]
	assert.Equal(t, positions.PositionOpen, p.State)
	assert.True(t, p.Unhedged)

	stats := h.tracker.Stats()
	assert.Equal(t, 1, stats.Unhedged)

	// The stuck unwind order was canceled.
	assert.Contains(t, h.poly.Canceled, "polymarket-order-2")
}

func TestExecutePartialFillsHedgeIntersection(t *testing.T) {
	h := newHarness(t, ModeLive, 1000)
	h.seedQuotes()

	// The polymarket buy sticks at 40 of 100 contracts.
	h.poly.ScriptFills("polymarket-order-1", venue.OrderStatus{
		Status: "open", Size: 100, SizeFilled: 40, AvgFillPrice: 0.40,
	})

	h.executor.Execute(context.Background(), testOpportunity())

	active := h.tracker.Active()
	require.Len(t, active, 1)
	p := active[0]
	assert.Equal(t, positions.PositionOpen, p.State)
	assert.False(t, p.Unhedged)
	assert.InDelta(t, 40, p.ExpectedPayout, 1e-9)

	// The 60 excess kalshi contracts were sold back at the 0.53 bid.
	kalshiOrders := h.kalshi.SubmittedOrders()
	require.Len(t, kalshiOrders, 2)
	assert.True(t, kalshiOrders[1].Sell)
	assert.InDelta(t, 60, kalshiOrders[1].Size, 1e-9)

	// Net cost: 40*0.40 + 100*0.55 - 60*0.53.
	assert.InDelta(t, 16+55-31.8, p.Cost, 1e-9)
}

func TestExecuteShutdownStillDrainsUnwind(t *testing.T) {
	h := newHarness(t, ModeLive, 1000)
	h.seedQuotes()

	// The kalshi leg sticks unfilled while the run context dies, as a
	// shutdown mid-execution would.
	h.kalshi.ScriptFills("kalshi-order-1", venue.OrderStatus{
		Status: "open", Size: 100, SizeFilled: 0,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	h.executor.Execute(ctx, testOpportunity())

	// The stuck order was canceled and the filled side sold back even
	// though the run context was already dead: compensation runs on a
	// detached context.
	assert.Contains(t, h.kalshi.Canceled, "kalshi-order-1")

	polyOrders := h.poly.SubmittedOrders()
	require.Len(t, polyOrders, 2)
	assert.True(t, polyOrders[1].Sell)
	assert.InDelta(t, 100, polyOrders[1].Size, 1e-9)

	list := h.tracker.List()
	require.Len(t, list, 1)
	p := list[0]
	assert.Equal(t, positions.PositionAbandoned, p.State)
	assert.False(t, p.Unhedged)
	assert.Equal(t, 0.0, h.tracker.Committed())
}

func TestExecuteBothLegsFailReleasesCapital(t *testing.T) {
	h := newHarness(t, ModeLive, 1000)
	h.seedQuotes()
	h.poly.RejectNextSubmit()
	h.kalshi.RejectNextSubmit()

	h.executor.Execute(context.Background(), testOpportunity())

	assert.Empty(t, h.tracker.List())
	assert.Equal(t, 0.0, h.tracker.Committed())
}

func TestExecuteCapacityRefused(t *testing.T) {
	h := newHarness(t, ModeLive, 50)
	h.seedQuotes()

	h.executor.Execute(context.Background(), testOpportunity())

	// Planned cost 95 exceeds the 50 ceiling: refused before submission.
	assert.Empty(t, h.poly.SubmittedOrders())
	assert.Empty(t, h.kalshi.SubmittedOrders())
	assert.Empty(t, h.tracker.List())
	assert.Equal(t, 0.0, h.tracker.Committed())
}

func TestExecuteRevalidationFailure(t *testing.T) {
	h := newHarness(t, ModeLive, 1000)

	// The YES ask moved above the planned limit since detection.
	now := time.Now()
	h.store.Update(types.PriceQuote{
		Venue: types.VenuePolymarket, MarketID: "p1", Side: types.SideYes,
		BestBid: 0.42, BidSize: 200, BestAsk: 0.45, AskSize: 200, Timestamp: now,
	})
	h.store.Update(types.PriceQuote{
		Venue: types.VenueKalshi, MarketID: "k1", Side: types.SideNo,
		BestBid: 0.53, BidSize: 200, BestAsk: 0.55, AskSize: 200, Timestamp: now,
	})

	h.executor.Execute(context.Background(), testOpportunity())

	assert.Empty(t, h.poly.SubmittedOrders())
	assert.Empty(t, h.kalshi.SubmittedOrders())
	assert.Empty(t, h.tracker.List())
}

func TestExecuteStaleQuoteBlocksExecution(t *testing.T) {
	h := newHarness(t, ModeLive, 1000)
	// No quotes seeded: revalidation must fail rather than trade blind.

	h.executor.Execute(context.Background(), testOpportunity())

	assert.Empty(t, h.poly.SubmittedOrders())
	assert.Empty(t, h.kalshi.SubmittedOrders())
}

func TestLockRegistry(t *testing.T) {
	r := newLockRegistry()

	require.True(t, r.tryAcquire("a", "b"))
	assert.False(t, r.tryAcquire("b", "c"))
	assert.True(t, r.tryAcquire("c"))

	r.release("a", "b")
	assert.True(t, r.tryAcquire("b"))
}
