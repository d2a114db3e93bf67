package polymarket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/predarb/crossvenue-arb/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// wsTestServer accepts websocket connections, records inbound
// subscription messages and lets tests push event frames.
type wsTestServer struct {
	server *httptest.Server

	mu    sync.Mutex
	conns chan *websocket.Conn
	subs  chan map[string]interface{}
}

func newWSTestServer(t *testing.T) *wsTestServer {
	t.Helper()

	ws := &wsTestServer{
		conns: make(chan *websocket.Conn, 4),
		subs:  make(chan map[string]interface{}, 16),
	}

	upgrader := websocket.Upgrader{}
	ws.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ws.conns <- conn

		for {
			var msg map[string]interface{}
			err := conn.ReadJSON(&msg)
			if err != nil {
				return
			}
			ws.subs <- msg
		}
	}))
	t.Cleanup(ws.server.Close)
	return ws
}

func (ws *wsTestServer) url() string {
	return "ws" + strings.TrimPrefix(ws.server.URL, "http")
}

func (ws *wsTestServer) awaitConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-ws.conns:
		return conn
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for websocket connection")
		return nil
	}
}

func (ws *wsTestServer) awaitSubscription(t *testing.T) map[string]interface{} {
	t.Helper()
	select {
	case msg := <-ws.subs:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for subscription message")
		return nil
	}
}

func (ws *wsTestServer) pushEvents(t *testing.T, conn *websocket.Conn, events []map[string]interface{}) {
	t.Helper()
	ws.mu.Lock()
	defer ws.mu.Unlock()
	require.NoError(t, conn.WriteJSON(events))
}

// streamClient builds a Client with m1-yes/m1-no registered in the token
// registry, as the catalog refresh would.
func streamClient(t *testing.T) *Client {
	t.Helper()
	c, _ := testPolymarketClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]interface{}{
			gammaMarketJSON("m1", "Will X happen?", false, `["0.4", "0.6"]`),
		})
	}))
	_, err := c.ListMarkets(context.Background())
	require.NoError(t, err)
	return c
}

func testStream(t *testing.T, url string) *Stream {
	t.Helper()
	return NewStream(StreamConfig{
		URL:                   url,
		DialTimeout:           2 * time.Second,
		PingInterval:          50 * time.Millisecond,
		ReconnectInitialDelay: 10 * time.Millisecond,
		ReconnectMaxDelay:     100 * time.Millisecond,
		ReconnectBackoffMult:  2.0,
		QuoteBufferSize:       16,
		Logger:                zap.NewNop(),
	}, streamClient(t))
}

func awaitStreamQuote(t *testing.T, s *Stream) types.PriceQuote {
	t.Helper()
	select {
	case q := <-s.Quotes():
		return q
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for quote")
		return types.PriceQuote{}
	}
}

func bookEvent(assetID string) map[string]interface{} {
	return map[string]interface{}{
		"event_type": "book",
		"asset_id":   assetID,
		"market":     "m1",
		"timestamp":  "1750000000000",
		"bids":       []map[string]string{{"price": "0.39", "size": "120"}},
		"asks":       []map[string]string{{"price": "0.41", "size": "200"}},
	}
}

func TestStreamTranslatesBookEvents(t *testing.T) {
	ws := newWSTestServer(t)
	s := testStream(t, ws.url())
	require.NoError(t, s.Start())
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.Subscribe([]string{"m1-yes"}))
	sub := ws.awaitSubscription(t)
	assert.Contains(t, sub["assets_ids"], "m1-yes")

	conn := ws.awaitConn(t)
	ws.pushEvents(t, conn, []map[string]interface{}{bookEvent("m1-yes")})

	q := awaitStreamQuote(t, s)
	assert.Equal(t, types.VenuePolymarket, q.Venue)
	assert.Equal(t, "m1", q.MarketID)
	assert.Equal(t, types.SideYes, q.Side)
	assert.InDelta(t, 0.39, q.BestBid, 1e-9)
	assert.InDelta(t, 120.0, q.BidSize, 1e-9)
	assert.InDelta(t, 0.41, q.BestAsk, 1e-9)
	assert.InDelta(t, 200.0, q.AskSize, 1e-9)
	assert.Equal(t, time.UnixMilli(1750000000000), q.Timestamp)
}

func TestStreamFiltersEvents(t *testing.T) {
	// handleEvent runs synchronously, so this test drives it directly
	// rather than through a connection.
	s := NewStream(StreamConfig{
		QuoteBufferSize:       1,
		ReconnectInitialDelay: 10 * time.Millisecond,
		Logger:                zap.NewNop(),
	}, streamClient(t))

	// Non-book events and unknown tokens never become quotes.
	s.handleEvent(&streamMessage{EventType: "price_change", AssetID: "m1-yes"})
	s.handleEvent(&streamMessage{EventType: "book", AssetID: "never-registered"})
	assert.Empty(t, s.quotes)

	book := streamMessage{
		EventType: "book",
		AssetID:   "m1-no",
		Bids:      []bookLevel{{Price: "0.58", Size: "50"}},
		Asks:      []bookLevel{{Price: "0.62", Size: "75"}},
	}
	s.handleEvent(&book)
	require.Len(t, s.quotes, 1)

	// A full buffer drops the update instead of blocking the read loop.
	s.handleEvent(&book)
	assert.Len(t, s.quotes, 1)

	q := <-s.quotes
	assert.Equal(t, "m1", q.MarketID)
	assert.Equal(t, types.SideNo, q.Side)
	assert.InDelta(t, 0.62, q.BestAsk, 1e-9)
}

func TestStreamReconnectsAndResubscribes(t *testing.T) {
	ws := newWSTestServer(t)
	s := testStream(t, ws.url())
	require.NoError(t, s.Start())
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.Subscribe([]string{"m1-yes", "m1-no"}))
	ws.awaitSubscription(t)

	// Drop the connection server-side; the stream must redial and
	// restore the full subscription on its own.
	first := ws.awaitConn(t)
	first.Close()

	second := ws.awaitConn(t)
	resub := ws.awaitSubscription(t)
	assert.Contains(t, resub["assets_ids"], "m1-yes")
	assert.Contains(t, resub["assets_ids"], "m1-no")

	// The new connection delivers quotes end to end.
	ws.pushEvents(t, second, []map[string]interface{}{bookEvent("m1-yes")})
	q := awaitStreamQuote(t, s)
	assert.Equal(t, "m1", q.MarketID)
	assert.Equal(t, types.SideYes, q.Side)
}
