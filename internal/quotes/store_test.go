package quotes

import (
	"testing"
	"time"

	"github.com/predarb/crossvenue-arb/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testStore() *Store {
	return New(Config{
		StalenessMax:     10 * time.Second,
		UpdateBufferSize: 8,
		Logger:           zap.NewNop(),
	})
}

func quoteAt(ts time.Time, ask float64) types.PriceQuote {
	return types.PriceQuote{
		Venue:     types.VenuePolymarket,
		MarketID:  "m1",
		Side:      types.SideYes,
		BestBid:   ask - 0.02,
		BidSize:   100,
		BestAsk:   ask,
		AskSize:   100,
		Timestamp: ts,
	}
}

func TestUpdateAndLatest(t *testing.T) {
	s := testStore()
	now := time.Now()

	require.True(t, s.Update(quoteAt(now, 0.40)))

	got, err := s.Latest(types.VenuePolymarket, "m1", types.SideYes)
	require.NoError(t, err)
	assert.Equal(t, 0.40, got.BestAsk)
}

func TestUpdateDiscardsOutOfOrder(t *testing.T) {
	s := testStore()
	now := time.Now()

	require.True(t, s.Update(quoteAt(now, 0.40)))
	assert.False(t, s.Update(quoteAt(now.Add(-time.Second), 0.35)))
	assert.False(t, s.Update(quoteAt(now, 0.38)))

	got, err := s.Latest(types.VenuePolymarket, "m1", types.SideYes)
	require.NoError(t, err)
	assert.Equal(t, 0.40, got.BestAsk)
}

func TestLatestStaleData(t *testing.T) {
	s := testStore()

	_, err := s.Latest(types.VenuePolymarket, "m1", types.SideYes)
	assert.ErrorIs(t, err, types.ErrStaleData)

	s.Update(quoteAt(time.Now().Add(-time.Minute), 0.40))
	_, err = s.Latest(types.VenuePolymarket, "m1", types.SideYes)
	assert.ErrorIs(t, err, types.ErrStaleData)
}

func TestUpdatesFanOut(t *testing.T) {
	s := testStore()
	now := time.Now()

	s.Update(quoteAt(now, 0.40))

	select {
	case q := <-s.Updates():
		assert.Equal(t, "m1", q.MarketID)
	default:
		t.Fatal("expected an update on the channel")
	}
}

func TestUpdateFullChannelStillStores(t *testing.T) {
	s := New(Config{
		StalenessMax:     10 * time.Second,
		UpdateBufferSize: 1,
		Logger:           zap.NewNop(),
	})
	now := time.Now()

	require.True(t, s.Update(quoteAt(now, 0.40)))
	// Channel is full; the store must still accept the newer quote.
	require.True(t, s.Update(quoteAt(now.Add(time.Second), 0.42)))

	got, err := s.Latest(types.VenuePolymarket, "m1", types.SideYes)
	require.NoError(t, err)
	assert.Equal(t, 0.42, got.BestAsk)
}

func TestSidesTrackedIndependently(t *testing.T) {
	s := testStore()
	now := time.Now()

	yes := quoteAt(now, 0.40)
	no := quoteAt(now, 0.55)
	no.Side = types.SideNo

	s.Update(yes)
	s.Update(no)

	assert.Equal(t, 2, s.Size())

	gotYes, err := s.Latest(types.VenuePolymarket, "m1", types.SideYes)
	require.NoError(t, err)
	gotNo, err := s.Latest(types.VenuePolymarket, "m1", types.SideNo)
	require.NoError(t, err)
	assert.Equal(t, 0.40, gotYes.BestAsk)
	assert.Equal(t, 0.55, gotNo.BestAsk)
}
