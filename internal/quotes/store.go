// Package quotes holds the latest observed top-of-book per market side
// and fans updates out to the detection pipeline.
package quotes

import (
	"sync"
	"time"

	"github.com/predarb/crossvenue-arb/pkg/types"
	"go.uber.org/zap"
)

// Config holds quote store configuration.
type Config struct {
	// StalenessMax bounds how old a snapshot may be before reads treat
	// it as absent.
	StalenessMax time.Duration

	// UpdateBufferSize is the capacity of the update fan-out channel.
	UpdateBufferSize int

	Logger *zap.Logger
}

// Store keeps the most recent PriceQuote per (venue, market, side).
type Store struct {
	cfg    Config
	logger *zap.Logger

	mu     sync.RWMutex
	latest map[string]types.PriceQuote

	updates chan types.PriceQuote
}

// New creates an empty quote store.
func New(cfg Config) *Store {
	if cfg.UpdateBufferSize <= 0 {
		cfg.UpdateBufferSize = 1000
	}
	return &Store{
		cfg:     cfg,
		logger:  cfg.Logger,
		latest:  make(map[string]types.PriceQuote),
		updates: make(chan types.PriceQuote, cfg.UpdateBufferSize),
	}
}

func key(v types.Venue, marketID string, side types.Side) string {
	return string(v) + "|" + marketID + "|" + string(side)
}

// Update records a quote if it is newer than the stored snapshot for the
// same key. Out-of-order updates are discarded. Accepted updates are
// forwarded on the Updates channel; when the channel is full the update
// is still stored but the notification is dropped.
func (s *Store) Update(q types.PriceQuote) bool {
	k := key(q.Venue, q.MarketID, q.Side)

	s.mu.Lock()
	prev, ok := s.latest[k]
	if ok && !q.Timestamp.After(prev.Timestamp) {
		s.mu.Unlock()
		UpdatesDiscardedTotal.WithLabelValues(string(q.Venue)).Inc()
		return false
	}
	s.latest[k] = q
	s.mu.Unlock()

	UpdatesTotal.WithLabelValues(string(q.Venue)).Inc()

	select {
	case s.updates <- q:
	default:
		UpdatesDroppedTotal.WithLabelValues(string(q.Venue)).Inc()
		s.logger.Warn("quote-update-channel-full",
			zap.String("venue", string(q.Venue)),
			zap.String("market-id", q.MarketID))
	}
	return true
}

// Latest returns the stored quote for one market side. It fails with
// types.ErrStaleData when no quote exists or the stored one is older
// than the staleness bound.
func (s *Store) Latest(v types.Venue, marketID string, side types.Side) (types.PriceQuote, error) {
	s.mu.RLock()
	q, ok := s.latest[key(v, marketID, side)]
	s.mu.RUnlock()

	if !ok || q.Stale(time.Now(), s.cfg.StalenessMax) {
		return types.PriceQuote{}, types.ErrStaleData
	}
	return q, nil
}

// Updates exposes the stream of accepted quote updates.
func (s *Store) Updates() <-chan types.PriceQuote {
	return s.updates
}

// Size returns the number of distinct market sides tracked.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.latest)
}
