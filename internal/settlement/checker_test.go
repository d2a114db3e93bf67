package settlement

import (
	"context"
	"testing"
	"time"

	"github.com/predarb/crossvenue-arb/internal/catalog"
	"github.com/predarb/crossvenue-arb/internal/positions"
	"github.com/predarb/crossvenue-arb/internal/testutil"
	"github.com/predarb/crossvenue-arb/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type harness struct {
	checker *Checker
	catalog *catalog.Catalog
	tracker *positions.Tracker
	storage *testutil.MemoryStorage
	poly    *testutil.FakeAdapter
	kalshi  *testutil.FakeAdapter
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	poly := testutil.NewFakeAdapter(types.VenuePolymarket)
	kalshi := testutil.NewFakeAdapter(types.VenueKalshi)
	cat := catalog.New(catalog.Config{
		RefreshInterval: time.Minute,
		Logger:          zap.NewNop(),
	}, poly, kalshi)
	tracker := positions.NewTracker(positions.Config{
		CapitalCeiling: 10000,
		Logger:         zap.NewNop(),
	})
	st := testutil.NewMemoryStorage()
	checker := New(Config{
		Interval: time.Minute,
		Logger:   zap.NewNop(),
	}, cat, tracker, st)

	return &harness{
		checker: checker,
		catalog: cat,
		tracker: tracker,
		storage: st,
		poly:    poly,
		kalshi:  kalshi,
	}
}

func hedgedPosition(id string) *positions.Position {
	return &positions.Position{
		ID:       id,
		Strategy: "cross_venue",
		Legs: [2]positions.Leg{
			{
				Venue:           types.VenuePolymarket,
				MarketID:        "p1",
				Side:            types.SideYes,
				Contracts:       100,
				FilledContracts: 100,
				AvgFillPrice:    0.40,
				State:           positions.LegFilled,
			},
			{
				Venue:           types.VenueKalshi,
				MarketID:        "k1",
				Side:            types.SideNo,
				Contracts:       100,
				FilledContracts: 100,
				AvgFillPrice:    0.55,
				State:           positions.LegFilled,
			},
		},
		Cost:           95,
		ExpectedPayout: 100,
		State:          positions.PositionOpen,
		OpenedAt:       time.Now(),
	}
}

func TestSettleHedgedPosition(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.tracker.Open(hedgedPosition("pos1"), 0))

	// YES wins on polymarket, so NO loses on kalshi: exactly one leg
	// pays out regardless of outcome.
	h.poly.SetResolution(&types.Resolution{MarketID: "p1", Resolved: true, Winner: types.SideYes})
	h.kalshi.SetResolution(&types.Resolution{MarketID: "k1", Resolved: true, Winner: types.SideYes})

	h.checker.CheckOnce(context.Background())

	got, ok := h.tracker.Get("pos1")
	require.True(t, ok)
	assert.Equal(t, positions.PositionSettled, got.State)
	assert.InDelta(t, 100, got.Payout, 1e-9)
	assert.InDelta(t, 5, got.PnL, 1e-9)
	assert.Len(t, h.storage.Positions(), 1)
}

func TestSettlementWaitsForAllLegs(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.tracker.Open(hedgedPosition("pos1"), 0))

	// Only one venue has resolved so far.
	h.poly.SetResolution(&types.Resolution{MarketID: "p1", Resolved: true, Winner: types.SideYes})

	h.checker.CheckOnce(context.Background())

	got, _ := h.tracker.Get("pos1")
	assert.Equal(t, positions.PositionOpen, got.State)

	// The second venue resolves: the next pass settles.
	h.kalshi.SetResolution(&types.Resolution{MarketID: "k1", Resolved: true, Winner: types.SideYes})
	h.checker.CheckOnce(context.Background())

	got, _ = h.tracker.Get("pos1")
	assert.Equal(t, positions.PositionSettled, got.State)
}

func TestSettlementIdempotentAcrossPasses(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.tracker.Open(hedgedPosition("pos1"), 0))

	h.poly.SetResolution(&types.Resolution{MarketID: "p1", Resolved: true, Winner: types.SideYes})
	h.kalshi.SetResolution(&types.Resolution{MarketID: "k1", Resolved: true, Winner: types.SideYes})

	h.checker.CheckOnce(context.Background())
	h.checker.CheckOnce(context.Background())
	h.checker.CheckOnce(context.Background())

	got, _ := h.tracker.Get("pos1")
	assert.Equal(t, positions.PositionSettled, got.State)
	assert.InDelta(t, 100, got.Payout, 1e-9)

	stats := h.tracker.Stats()
	assert.Equal(t, 1, stats.Settled)
}

func TestUnresolvedMarketRetriesNextPass(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.tracker.Open(hedgedPosition("pos1"), 0))

	h.poly.SetResolution(&types.Resolution{MarketID: "p1", Resolved: true, Winner: types.SideYes})
	h.kalshi.SetResolution(&types.Resolution{MarketID: "k1", Resolved: false})
	h.checker.CheckOnce(context.Background())

	got, _ := h.tracker.Get("pos1")
	assert.Equal(t, positions.PositionOpen, got.State)

	h.kalshi.SetResolution(&types.Resolution{MarketID: "k1", Resolved: true, Winner: types.SideYes})
	h.checker.CheckOnce(context.Background())

	got, _ = h.tracker.Get("pos1")
	assert.Equal(t, positions.PositionSettled, got.State)
}

func TestUnhedgedPositionSettlesOnFilledLeg(t *testing.T) {
	h := newHarness(t)

	p := hedgedPosition("pos1")
	p.Legs[1].FilledContracts = 0
	p.Legs[1].State = positions.LegRejected
	p.Cost = 40
	p.Unhedged = true
	require.NoError(t, h.tracker.Open(p, 0))

	// Only the filled leg's market matters; it loses.
	h.poly.SetResolution(&types.Resolution{MarketID: "p1", Resolved: true, Winner: types.SideNo})

	h.checker.CheckOnce(context.Background())

	got, _ := h.tracker.Get("pos1")
	assert.Equal(t, positions.PositionSettled, got.State)
	assert.InDelta(t, 0, got.Payout, 1e-9)
	assert.InDelta(t, -40, got.PnL, 1e-9)
}

func TestAwaitingSettlementOnClosedMarket(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.tracker.Open(hedgedPosition("pos1"), 0))

	// The polymarket market is closed but not yet resolved.
	h.poly.SetMarkets(types.Market{
		Venue:     types.VenuePolymarket,
		ID:        "p1",
		Question:  "Will it happen?",
		ExpiresAt: time.Now().Add(time.Hour),
		Status:    types.MarketClosed,
		Liquidity: 10000,
	})
	h.catalog.RefreshAll(context.Background())

	h.checker.CheckOnce(context.Background())

	got, _ := h.tracker.Get("pos1")
	assert.Equal(t, positions.PositionAwaitingSettlement, got.State)
}
