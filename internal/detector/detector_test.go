package detector

import (
	"testing"
	"time"

	"github.com/predarb/crossvenue-arb/internal/matcher"
	"github.com/predarb/crossvenue-arb/internal/quotes"
	"github.com/predarb/crossvenue-arb/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testPair(inverted bool) matcher.MatchedPair {
	expiry := time.Now().Add(48 * time.Hour)
	return matcher.MatchedPair{
		First: types.Market{
			Venue:     types.VenuePolymarket,
			ID:        "p1",
			Question:  "Will the Fed cut rates in September 2026?",
			ExpiresAt: expiry,
			Status:    types.MarketOpen,
		},
		Second: types.Market{
			Venue:     types.VenueKalshi,
			ID:        "k1",
			Question:  "Will the Fed cut rates in September 2026?",
			ExpiresAt: expiry,
			Status:    types.MarketOpen,
		},
		Score:    1.0,
		Inverted: inverted,
	}
}

func testDetector(t *testing.T) (*Detector, *quotes.Store) {
	t.Helper()
	store := quotes.New(quotes.Config{
		StalenessMax:     10 * time.Second,
		UpdateBufferSize: 64,
		Logger:           zap.NewNop(),
	})
	d := New(Config{
		ProfitBuffer:          0.02,
		TakerFees:             map[types.Venue]float64{},
		MinContracts:          1,
		MaxContracts:          500,
		OpportunityBufferSize: 16,
		Logger:                zap.NewNop(),
	}, store)
	return d, store
}

func quote(v types.Venue, marketID string, side types.Side, ask float64) types.PriceQuote {
	return types.PriceQuote{
		Venue:     v,
		MarketID:  marketID,
		Side:      side,
		BestBid:   ask - 0.02,
		BidSize:   200,
		BestAsk:   ask,
		AskSize:   200,
		Timestamp: time.Now(),
	}
}

func drainOne(t *testing.T, d *Detector) *Opportunity {
	t.Helper()
	select {
	case opp := <-d.Opportunities():
		return opp
	default:
		t.Fatal("expected an opportunity")
		return nil
	}
}

func assertNone(t *testing.T, d *Detector) {
	t.Helper()
	select {
	case opp := <-d.Opportunities():
		t.Fatalf("unexpected opportunity: %s", opp)
	default:
	}
}

func TestCrossVenueDetection(t *testing.T) {
	tests := []struct {
		name            string
		yesAsk          float64 // polymarket YES
		noAsk           float64 // kalshi NO
		expectOpp       bool
		expectProfitBPS float64
	}{
		{
			name:            "combined cost below one emits opportunity",
			yesAsk:          0.40,
			noAsk:           0.55,
			expectOpp:       true,
			expectProfitBPS: 300, // 1 - 0.95 - 0.02 buffer
		},
		{
			name:      "combined cost above one emits nothing",
			yesAsk:    0.52,
			noAsk:     0.51,
			expectOpp: false,
		},
		{
			name:      "profitable before buffer but not after",
			yesAsk:    0.50,
			noAsk:     0.49,
			expectOpp: false,
		},
		{
			name:      "margin exactly zero is not viable",
			yesAsk:    0.49,
			noAsk:     0.49,
			expectOpp: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, store := testDetector(t)
			d.SetPairs([]matcher.MatchedPair{testPair(false)})

			store.Update(quote(types.VenuePolymarket, "p1", types.SideYes, tt.yesAsk))
			store.Update(quote(types.VenuePolymarket, "p1", types.SideNo, 0.99))
			store.Update(quote(types.VenueKalshi, "k1", types.SideYes, 0.99))
			store.Update(quote(types.VenueKalshi, "k1", types.SideNo, tt.noAsk))

			d.evaluate(quote(types.VenueKalshi, "k1", types.SideNo, tt.noAsk))

			if !tt.expectOpp {
				assertNone(t, d)
				return
			}
			opp := drainOne(t, d)
			assert.Equal(t, KindCrossVenue, opp.Kind)
			assert.InDelta(t, tt.expectProfitBPS, opp.ProfitBPS, 0.01)
			assert.Equal(t, types.SideYes, opp.Legs[0].Side)
			assert.Equal(t, types.SideNo, opp.Legs[1].Side)
		})
	}
}

func TestCrossVenueInvertedPair(t *testing.T) {
	d, store := testDetector(t)
	d.SetPairs([]matcher.MatchedPair{testPair(true)})

	// Polarity is inverted: YES on p1 hedges with YES on k1.
	store.Update(quote(types.VenuePolymarket, "p1", types.SideYes, 0.40))
	store.Update(quote(types.VenuePolymarket, "p1", types.SideNo, 0.99))
	store.Update(quote(types.VenueKalshi, "k1", types.SideYes, 0.55))
	store.Update(quote(types.VenueKalshi, "k1", types.SideNo, 0.99))

	d.evaluate(quote(types.VenueKalshi, "k1", types.SideYes, 0.55))

	opp := drainOne(t, d)
	assert.Equal(t, types.SideYes, opp.Legs[0].Side)
	assert.Equal(t, types.SideYes, opp.Legs[1].Side)
}

func TestCrossVenueMirroredCombo(t *testing.T) {
	d, store := testDetector(t)
	d.SetPairs([]matcher.MatchedPair{testPair(false)})

	// The profitable combination is NO on p1 plus YES on k1.
	store.Update(quote(types.VenuePolymarket, "p1", types.SideYes, 0.99))
	store.Update(quote(types.VenuePolymarket, "p1", types.SideNo, 0.40))
	store.Update(quote(types.VenueKalshi, "k1", types.SideYes, 0.50))
	store.Update(quote(types.VenueKalshi, "k1", types.SideNo, 0.99))

	d.evaluate(quote(types.VenueKalshi, "k1", types.SideYes, 0.50))

	opp := drainOne(t, d)
	assert.Equal(t, types.SideNo, opp.Legs[0].Side)
	assert.Equal(t, types.SideYes, opp.Legs[1].Side)
	assert.InDelta(t, 0.08, opp.Margin, 1e-9)
}

func TestSinglePlatformDetection(t *testing.T) {
	d, store := testDetector(t)
	d.EnableSingleMarket(types.VenuePolymarket, "p1")

	store.Update(quote(types.VenuePolymarket, "p1", types.SideYes, 0.44))
	store.Update(quote(types.VenuePolymarket, "p1", types.SideNo, 0.52))

	d.evaluate(quote(types.VenuePolymarket, "p1", types.SideNo, 0.52))

	opp := drainOne(t, d)
	assert.Equal(t, KindSinglePlatform, opp.Kind)
	assert.Equal(t, opp.Legs[0].Venue, opp.Legs[1].Venue)
	assert.Equal(t, opp.Legs[0].MarketID, opp.Legs[1].MarketID)
	assert.InDelta(t, 0.02, opp.Margin, 1e-9)
}

func TestTakerFeesEraseMargin(t *testing.T) {
	store := quotes.New(quotes.Config{
		StalenessMax:     10 * time.Second,
		UpdateBufferSize: 64,
		Logger:           zap.NewNop(),
	})
	d := New(Config{
		ProfitBuffer: 0.02,
		TakerFees: map[types.Venue]float64{
			types.VenuePolymarket: 0.02,
			types.VenueKalshi:     0.02,
		},
		MinContracts:          1,
		MaxContracts:          500,
		OpportunityBufferSize: 16,
		Logger:                zap.NewNop(),
	}, store)
	d.SetPairs([]matcher.MatchedPair{testPair(false)})

	// Fee-free margin would be 0.03; two 2% taker fees erase it.
	store.Update(quote(types.VenuePolymarket, "p1", types.SideYes, 0.40))
	store.Update(quote(types.VenueKalshi, "k1", types.SideNo, 0.55))

	d.evaluate(quote(types.VenueKalshi, "k1", types.SideNo, 0.55))
	assertNone(t, d)
}

func TestStaleQuoteBlocksDetection(t *testing.T) {
	d, store := testDetector(t)
	d.SetPairs([]matcher.MatchedPair{testPair(false)})

	stale := quote(types.VenuePolymarket, "p1", types.SideYes, 0.40)
	stale.Timestamp = time.Now().Add(-time.Minute)
	store.Update(stale)
	store.Update(quote(types.VenueKalshi, "k1", types.SideNo, 0.55))

	d.evaluate(quote(types.VenueKalshi, "k1", types.SideNo, 0.55))
	assertNone(t, d)
}

func TestDedupOneOutstandingPerPair(t *testing.T) {
	d, store := testDetector(t)
	d.SetPairs([]matcher.MatchedPair{testPair(false)})

	store.Update(quote(types.VenuePolymarket, "p1", types.SideYes, 0.40))
	store.Update(quote(types.VenueKalshi, "k1", types.SideNo, 0.55))

	d.evaluate(quote(types.VenueKalshi, "k1", types.SideNo, 0.55))
	first := drainOne(t, d)

	// Another update on the same pair while the first is in flight.
	next := quote(types.VenueKalshi, "k1", types.SideNo, 0.54)
	next.Timestamp = time.Now().Add(time.Second)
	store.Update(next)
	d.evaluate(next)
	assertNone(t, d)

	// After release the pair can be detected again.
	d.Release(first.DedupKey)
	again := quote(types.VenueKalshi, "k1", types.SideNo, 0.53)
	again.Timestamp = time.Now().Add(2 * time.Second)
	store.Update(again)
	d.evaluate(again)

	second := drainOne(t, d)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.DedupKey, second.DedupKey)
}

func TestSizingFollowsQuotedDepth(t *testing.T) {
	d, store := testDetector(t)
	d.SetPairs([]matcher.MatchedPair{testPair(false)})

	yes := quote(types.VenuePolymarket, "p1", types.SideYes, 0.40)
	yes.AskSize = 80
	no := quote(types.VenueKalshi, "k1", types.SideNo, 0.55)
	no.AskSize = 120
	store.Update(yes)
	store.Update(no)

	d.evaluate(no)

	opp := drainOne(t, d)
	// Both legs share the size of the thinner book.
	assert.Equal(t, 80.0, opp.Legs[0].Contracts)
	assert.Equal(t, 80.0, opp.Legs[1].Contracts)
	require.InDelta(t, 0.03*80, opp.NetProfit, 1e-9)
}

func TestBelowMinContractsRejected(t *testing.T) {
	d, store := testDetector(t)
	d.SetPairs([]matcher.MatchedPair{testPair(false)})

	yes := quote(types.VenuePolymarket, "p1", types.SideYes, 0.40)
	yes.AskSize = 0.5
	store.Update(yes)
	store.Update(quote(types.VenueKalshi, "k1", types.SideNo, 0.55))

	d.evaluate(quote(types.VenueKalshi, "k1", types.SideNo, 0.55))
	assertNone(t, d)
}
