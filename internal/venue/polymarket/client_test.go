package polymarket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/predarb/crossvenue-arb/internal/venue"
	"github.com/predarb/crossvenue-arb/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func gammaMarketJSON(id, question string, closed bool, outcomePrices string) map[string]interface{} {
	return map[string]interface{}{
		"id":                    id,
		"question":              question,
		"slug":                  id + "-slug",
		"endDate":               "2026-12-31T12:00:00Z",
		"active":                true,
		"closed":                closed,
		"liquidityNum":          50000.0,
		"orderPriceMinTickSize": 0.01,
		"clobTokenIds":          `["` + id + `-yes", "` + id + `-no"]`,
		"outcomes":              `["Yes", "No"]`,
		"outcomePrices":         outcomePrices,
	}
}

func testPolymarketClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := New(Config{
		GammaURL:    server.URL,
		CLOBURL:     server.URL,
		MarketLimit: 500,
		Logger:      zap.NewNop(),
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c, server
}

func TestListMarketsRegistersTokenPairs(t *testing.T) {
	c, _ := testPolymarketClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/markets", r.URL.Path)
		assert.Equal(t, "false", r.URL.Query().Get("closed"))
		assert.Equal(t, "volume24hr", r.URL.Query().Get("order"))

		json.NewEncoder(w).Encode([]map[string]interface{}{
			gammaMarketJSON("m1", "Will X happen?", false, `["0.4", "0.6"]`),
			// No parseable token pair: skipped.
			{
				"id":           "broken",
				"question":     "Malformed market",
				"endDate":      "2026-12-31T12:00:00Z",
				"active":       true,
				"clobTokenIds": `["only-one"]`,
			},
		})
	}))

	markets, err := c.ListMarkets(context.Background())
	require.NoError(t, err)
	require.Len(t, markets, 1)

	m := markets[0]
	assert.Equal(t, types.VenuePolymarket, m.Venue)
	assert.Equal(t, "m1", m.ID)
	assert.Equal(t, types.MarketOpen, m.Status)
	assert.Equal(t, 50000.0, m.Liquidity)
	assert.Equal(t, time.Date(2026, 12, 31, 12, 0, 0, 0, time.UTC), m.ExpiresAt)

	yes, no, ok := c.TokensFor("m1")
	require.True(t, ok)
	assert.Equal(t, "m1-yes", yes)
	assert.Equal(t, "m1-no", no)
}

func TestListMarketsClosedStatus(t *testing.T) {
	c, _ := testPolymarketClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]interface{}{
			gammaMarketJSON("m1", "Closed market", true, `["1", "0"]`),
		})
	}))

	markets, err := c.ListMarkets(context.Background())
	require.NoError(t, err)
	require.Len(t, markets, 1)
	assert.Equal(t, types.MarketClosed, markets[0].Status)
}

func TestListMarketsTransientOnServerError(t *testing.T) {
	c, _ := testPolymarketClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	_, err := c.ListMarkets(context.Background())
	require.Error(t, err)
	assert.True(t, types.IsTransient(err))
}

func TestGetQuoteReadsBook(t *testing.T) {
	c, _ := testPolymarketClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/markets":
			json.NewEncoder(w).Encode([]map[string]interface{}{
				gammaMarketJSON("m1", "Will X happen?", false, `["0.4", "0.6"]`),
			})
		case "/book":
			assert.Equal(t, "m1-yes", r.URL.Query().Get("token_id"))
			json.NewEncoder(w).Encode(map[string]interface{}{
				"bids": []map[string]string{
					{"price": "0.38", "size": "500"},
					{"price": "0.39", "size": "120"},
				},
				"asks": []map[string]string{
					{"price": "0.42", "size": "80"},
					{"price": "0.40", "size": "200"},
				},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	// Registers the token pair first.
	_, err := c.ListMarkets(context.Background())
	require.NoError(t, err)

	q, err := c.GetQuote(context.Background(), "m1", types.SideYes)
	require.NoError(t, err)
	assert.Equal(t, 0.39, q.BestBid)
	assert.Equal(t, 120.0, q.BidSize)
	assert.Equal(t, 0.40, q.BestAsk)
	assert.Equal(t, 200.0, q.AskSize)
}

func TestGetQuoteUnknownMarket(t *testing.T) {
	c, _ := testPolymarketClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not reach the venue")
	}))

	_, err := c.GetQuote(context.Background(), "never-listed", types.SideYes)
	require.Error(t, err)
	assert.False(t, types.IsTransient(err))
}

func TestGetResolution(t *testing.T) {
	tests := []struct {
		name       string
		closed     bool
		prices     string
		resolved   bool
		wantWinner types.Side
	}{
		{"yes won", true, `["1", "0"]`, true, types.SideYes},
		{"no won", true, `["0", "1"]`, true, types.SideNo},
		{"closed but unsettled", true, `["0.7", "0.3"]`, false, ""},
		{"still open", false, `["0.4", "0.6"]`, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := testPolymarketClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/markets/m1", r.URL.Path)
				json.NewEncoder(w).Encode(gammaMarketJSON("m1", "Will X happen?", tt.closed, tt.prices))
			}))

			res, err := c.GetResolution(context.Background(), "m1")
			require.NoError(t, err)
			assert.Equal(t, tt.resolved, res.Resolved)
			if tt.resolved {
				assert.Equal(t, tt.wantWinner, res.Winner)
			}
		})
	}
}

func TestGetResolutionCachesSettledOutcome(t *testing.T) {
	requests := 0
	c, _ := testPolymarketClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		json.NewEncoder(w).Encode(gammaMarketJSON("m1", "Will X happen?", true, `["1", "0"]`))
	}))

	first, err := c.GetResolution(context.Background(), "m1")
	require.NoError(t, err)
	require.True(t, first.Resolved)
	require.Equal(t, 1, requests)

	// Ristretto admits entries asynchronously.
	admitted := false
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := c.resolved.Get("resolution:m1"); ok {
			admitted = true
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.True(t, admitted)

	cached, err := c.GetResolution(context.Background(), "m1")
	require.NoError(t, err)
	assert.True(t, cached.Resolved)
	assert.Equal(t, types.SideYes, cached.Winner)
	assert.Equal(t, 1, requests)
}

func TestSubmitOrderWithoutSigner(t *testing.T) {
	c, _ := testPolymarketClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not reach the venue")
	}))

	_, err := c.SubmitOrder(context.Background(), venue.OrderRequest{
		MarketID: "m1",
		Side:     types.SideYes,
		Price:    0.40,
		Size:     100,
	})
	require.Error(t, err)
	assert.False(t, types.IsTransient(err))
}

func TestGetBalanceWithoutWallet(t *testing.T) {
	c, _ := testPolymarketClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not reach the venue")
	}))

	_, err := c.GetBalance(context.Background())
	require.Error(t, err)
}

func TestBookBestLevels(t *testing.T) {
	book := bookResponse{
		Bids: []bookLevel{{Price: "0.30", Size: "10"}, {Price: "0.35", Size: "20"}},
		Asks: []bookLevel{{Price: "0.50", Size: "5"}, {Price: "0.45", Size: "15"}},
	}

	bid, bidSize := book.bestBid()
	assert.Equal(t, 0.35, bid)
	assert.Equal(t, 20.0, bidSize)

	ask, askSize := book.bestAsk()
	assert.Equal(t, 0.45, ask)
	assert.Equal(t, 15.0, askSize)
}

func TestRawAmountSixDecimals(t *testing.T) {
	assert.Equal(t, "400000", rawAmount(0.40))
	assert.Equal(t, "40000000", rawAmount(0.40*100))
	assert.Equal(t, "100000000", rawAmount(100))

	// 0.58*16.57 is 9.610599999999998 in float64; truncation would lose
	// a micro-unit and understate the maker amount.
	assert.Equal(t, "9610600", rawAmount(0.58*16.57))
}
