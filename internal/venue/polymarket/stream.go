package polymarket

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/predarb/crossvenue-arb/pkg/types"
	"go.uber.org/zap"
)

// StreamConfig holds market data stream configuration.
type StreamConfig struct {
	URL                   string
	DialTimeout           time.Duration
	PingInterval          time.Duration
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
	ReconnectBackoffMult  float64
	QuoteBufferSize       int
	Logger                *zap.Logger
}

// Stream maintains a websocket subscription to the CLOB market channel
// and translates book events into quotes. The REST poll remains the
// fallback; the stream just gets the same data there faster.
type Stream struct {
	cfg    StreamConfig
	client *Client
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.RWMutex
	conn       *websocket.Conn
	subscribed map[string]bool
	connected  atomic.Bool

	backoffMu sync.Mutex
	backoff   time.Duration

	quotes chan types.PriceQuote
}

// NewStream creates a Stream bound to the adapter's token registry.
func NewStream(cfg StreamConfig, client *Client) *Stream {
	ctx, cancel := context.WithCancel(context.Background())
	if cfg.QuoteBufferSize <= 0 {
		cfg.QuoteBufferSize = 1000
	}
	return &Stream{
		cfg:        cfg,
		client:     client,
		logger:     cfg.Logger,
		ctx:        ctx,
		cancel:     cancel,
		subscribed: make(map[string]bool),
		backoff:    cfg.ReconnectInitialDelay,
		quotes:     make(chan types.PriceQuote, cfg.QuoteBufferSize),
	}
}

// Start connects and launches the read, ping and reconnect loops.
func (s *Stream) Start() error {
	s.logger.Info("polymarket-stream-starting", zap.String("url", s.cfg.URL))

	err := s.connect(s.ctx)
	if err != nil {
		return fmt.Errorf("initial connection: %w", err)
	}

	s.wg.Add(3)
	go s.readLoop()
	go s.pingLoop()
	go s.reconnectLoop()

	return nil
}

// Quotes exposes translated top-of-book updates.
func (s *Stream) Quotes() <-chan types.PriceQuote {
	return s.quotes
}

// Subscribe adds CLOB token ids to the market channel subscription.
func (s *Stream) Subscribe(tokenIDs []string) error {
	if len(tokenIDs) == 0 {
		return nil
	}

	s.mu.Lock()
	newTokens := make([]string, 0, len(tokenIDs))
	for _, id := range tokenIDs {
		if !s.subscribed[id] {
			newTokens = append(newTokens, id)
			s.subscribed[id] = true
		}
	}
	if len(newTokens) == 0 {
		s.mu.Unlock()
		return nil
	}

	msg := map[string]interface{}{
		"assets_ids": newTokens,
		"type":       "market",
	}
	if len(s.subscribed) != len(newTokens) {
		msg = map[string]interface{}{
			"assets_ids": newTokens,
			"operation":  "subscribe",
		}
	}
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("not connected")
	}

	err := conn.WriteJSON(msg)
	if err != nil {
		s.mu.Lock()
		for _, id := range newTokens {
			delete(s.subscribed, id)
		}
		s.mu.Unlock()
		return fmt.Errorf("write subscribe message: %w", err)
	}

	s.logger.Info("polymarket-stream-subscribed",
		zap.Int("new-tokens", len(newTokens)))
	return nil
}

// connect dials the websocket.
func (s *Stream) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: s.cfg.DialTimeout}

	conn, _, err := dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.connected.Store(true)

	s.logger.Info("polymarket-stream-connected")
	return nil
}

// readLoop reads and translates events until the connection drops.
func (s *Stream) readLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()
		if conn == nil {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			s.logger.Warn("polymarket-stream-read-error", zap.Error(err))
			s.connected.Store(false)
			return
		}

		// The server sends arrays of events; anything else is a control
		// message or heartbeat.
		var events []streamMessage
		err = json.Unmarshal(message, &events)
		if err != nil {
			continue
		}

		for i := range events {
			s.handleEvent(&events[i])
		}
	}
}

// handleEvent translates one book event into a quote for its token.
func (s *Stream) handleEvent(ev *streamMessage) {
	if ev.EventType != "book" {
		return
	}

	ref, ok := s.client.assetFor(ev.AssetID)
	if !ok {
		return
	}

	book := bookResponse{Bids: ev.Bids, Asks: ev.Asks}
	bid, bidSize := book.bestBid()
	ask, askSize := book.bestAsk()

	ts := time.Now()
	if ms, err := strconv.ParseInt(ev.Timestamp, 10, 64); err == nil && ms > 0 {
		ts = time.UnixMilli(ms)
	}

	q := types.PriceQuote{
		Venue:     types.VenuePolymarket,
		MarketID:  ref.marketID,
		Side:      ref.side,
		BestBid:   bid,
		BidSize:   bidSize,
		BestAsk:   ask,
		AskSize:   askSize,
		Timestamp: ts,
	}

	select {
	case s.quotes <- q:
	default:
		s.logger.Warn("polymarket-stream-quote-dropped",
			zap.String("market-id", ref.marketID))
	}
}

// pingLoop keeps the connection alive.
func (s *Stream) pingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if !s.connected.Load() {
				continue
			}
			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()
			if conn == nil {
				continue
			}
			err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(time.Second))
			if err != nil {
				s.logger.Warn("polymarket-stream-ping-error", zap.Error(err))
			}
		}
	}
}

// reconnectLoop re-dials with jittered exponential backoff after a drop
// and restores the subscription.
func (s *Stream) reconnectLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		if s.connected.Load() {
			time.Sleep(time.Second)
			continue
		}

		delay := s.nextBackoff()
		s.logger.Warn("polymarket-stream-reconnecting", zap.Duration("backoff", delay))

		select {
		case <-s.ctx.Done():
			return
		case <-time.After(delay):
		}

		err := s.connect(s.ctx)
		if err != nil {
			s.logger.Warn("polymarket-stream-reconnect-failed", zap.Error(err))
			s.growBackoff()
			continue
		}
		s.resetBackoff()

		err = s.resubscribe()
		if err != nil {
			s.logger.Error("polymarket-stream-resubscribe-failed", zap.Error(err))
			s.connected.Store(false)
			continue
		}

		s.wg.Add(1)
		go s.readLoop()
	}
}

// resubscribe restores the full subscription after a reconnect.
func (s *Stream) resubscribe() error {
	s.mu.RLock()
	tokenIDs := make([]string, 0, len(s.subscribed))
	for id := range s.subscribed {
		tokenIDs = append(tokenIDs, id)
	}
	conn := s.conn
	s.mu.RUnlock()

	if len(tokenIDs) == 0 {
		return nil
	}

	err := conn.WriteJSON(map[string]interface{}{
		"assets_ids": tokenIDs,
		"type":       "market",
	})
	if err != nil {
		return fmt.Errorf("write resubscribe message: %w", err)
	}

	s.logger.Info("polymarket-stream-resubscribed", zap.Int("tokens", len(tokenIDs)))
	return nil
}

func (s *Stream) nextBackoff() time.Duration {
	s.backoffMu.Lock()
	defer s.backoffMu.Unlock()
	jitter := 1.0 + rand.Float64()*0.2
	return time.Duration(float64(s.backoff) * jitter)
}

func (s *Stream) growBackoff() {
	s.backoffMu.Lock()
	defer s.backoffMu.Unlock()
	next := time.Duration(float64(s.backoff) * s.cfg.ReconnectBackoffMult)
	if next > s.cfg.ReconnectMaxDelay {
		next = s.cfg.ReconnectMaxDelay
	}
	s.backoff = next
}

func (s *Stream) resetBackoff() {
	s.backoffMu.Lock()
	defer s.backoffMu.Unlock()
	s.backoff = s.cfg.ReconnectInitialDelay
}

// Close shuts the stream down and waits for its goroutines.
func (s *Stream) Close() error {
	s.logger.Info("polymarket-stream-closing")
	s.cancel()

	s.mu.RLock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.mu.RUnlock()

	s.wg.Wait()
	close(s.quotes)

	s.logger.Info("polymarket-stream-closed")
	return nil
}
