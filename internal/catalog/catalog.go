// Package catalog maintains the normalized, continuously refreshed view of
// tradable binary markets per venue. The catalog owns Market records
// exclusively; other components hold market ids and re-resolve here.
package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/predarb/crossvenue-arb/internal/venue"
	"github.com/predarb/crossvenue-arb/pkg/types"
	"go.uber.org/zap"
)

// Config holds catalog configuration.
type Config struct {
	RefreshInterval time.Duration
	MinLiquidity    float64
	MinTimeToExpiry time.Duration
	MaxTimeToExpiry time.Duration
	Logger          *zap.Logger
}

// Catalog is the authoritative market registry for all venues.
type Catalog struct {
	adapters map[types.Venue]venue.Adapter
	cfg      Config
	logger   *zap.Logger

	mu      sync.RWMutex
	markets map[types.Venue]map[string]types.Market

	refreshed chan struct{}
}

// New creates a catalog over the given venue adapters.
func New(cfg Config, adapters ...venue.Adapter) *Catalog {
	byVenue := make(map[types.Venue]venue.Adapter, len(adapters))
	for _, a := range adapters {
		byVenue[a.Name()] = a
	}

	markets := make(map[types.Venue]map[string]types.Market, len(adapters))
	for v := range byVenue {
		markets[v] = make(map[string]types.Market)
	}

	return &Catalog{
		adapters:  byVenue,
		cfg:       cfg,
		logger:    cfg.Logger,
		markets:   markets,
		refreshed: make(chan struct{}, 1),
	}
}

// Run refreshes the catalog on the configured interval until ctx is done.
// A failed refresh for one venue does not block the others; errors are
// logged and retried on the next cycle.
func (c *Catalog) Run(ctx context.Context) error {
	// Populate before the first tick so dependents start with data.
	c.RefreshAll(ctx)

	ticker := time.NewTicker(c.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("catalog-stopping")
			return ctx.Err()
		case <-ticker.C:
			c.RefreshAll(ctx)
		}
	}
}

// RefreshAll refreshes every venue once and signals dependents.
func (c *Catalog) RefreshAll(ctx context.Context) {
	for v, adapter := range c.adapters {
		err := c.refreshVenue(ctx, v, adapter)
		if err != nil {
			RefreshErrorsTotal.WithLabelValues(string(v)).Inc()
			c.logger.Warn("catalog-refresh-failed",
				zap.String("venue", string(v)),
				zap.Error(err))
		}
	}

	// Non-blocking: a pending notification already covers this refresh.
	select {
	case c.refreshed <- struct{}{}:
	default:
	}
}

// refreshVenue merges a fresh market listing for one venue into the store.
func (c *Catalog) refreshVenue(ctx context.Context, v types.Venue, adapter venue.Adapter) error {
	listed, err := adapter.ListMarkets(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	kept := 0

	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[string]bool, len(listed))
	store := c.markets[v]

	for _, m := range listed {
		if !c.passesFilters(&m, now) {
			continue
		}
		seen[m.ID] = true
		kept++

		existing, ok := store[m.ID]
		if ok && !existing.Status.CanTransitionTo(m.Status) {
			// Venue briefly reported a regressed status; the
			// monotonic Open -> Closed -> Resolved order wins.
			c.logger.Warn("catalog-status-regression-ignored",
				zap.String("venue", string(v)),
				zap.String("market-id", m.ID),
				zap.String("stored", existing.Status.String()),
				zap.String("reported", m.Status.String()))
			continue
		}
		store[m.ID] = m
	}

	// Markets that vanish from the listing are no longer tradable. Keep
	// the record so open positions can still resolve against it.
	for id, m := range store {
		if !seen[id] && m.Status == types.MarketOpen {
			m.Status = types.MarketClosed
			store[id] = m
		}
	}

	MarketsTracked.WithLabelValues(string(v)).Set(float64(len(store)))
	c.logger.Debug("catalog-refreshed",
		zap.String("venue", string(v)),
		zap.Int("listed", len(listed)),
		zap.Int("kept", kept))

	return nil
}

// passesFilters applies the liquidity floor and expiry window from the
// configured filters. Zero-valued bounds disable the corresponding check.
func (c *Catalog) passesFilters(m *types.Market, now time.Time) bool {
	if c.cfg.MinLiquidity > 0 && m.Liquidity < c.cfg.MinLiquidity {
		return false
	}
	if m.ExpiresAt.IsZero() {
		return false
	}
	untilExpiry := m.ExpiresAt.Sub(now)
	if c.cfg.MinTimeToExpiry > 0 && untilExpiry < c.cfg.MinTimeToExpiry {
		return false
	}
	if c.cfg.MaxTimeToExpiry > 0 && untilExpiry > c.cfg.MaxTimeToExpiry {
		return false
	}
	return true
}

// Snapshot returns a copy of all tracked markets for one venue.
func (c *Catalog) Snapshot(v types.Venue) []types.Market {
	c.mu.RLock()
	defer c.mu.RUnlock()

	store := c.markets[v]
	out := make([]types.Market, 0, len(store))
	for _, m := range store {
		out = append(out, m)
	}
	return out
}

// Resolve looks up one market by venue and id.
func (c *Catalog) Resolve(v types.Venue, marketID string) (types.Market, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	m, ok := c.markets[v][marketID]
	return m, ok
}

// MarkResolved records a market's resolved outcome. The transition is
// monotonic: an already-resolved market is never re-resolved.
func (c *Catalog) MarkResolved(v types.Venue, marketID string, winner types.Side) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.markets[v][marketID]
	if !ok || m.Status == types.MarketResolved {
		return
	}
	m.Status = types.MarketResolved
	m.Outcome = winner
	c.markets[v][marketID] = m
}

// Refreshed exposes a signal that fires after each refresh pass, used by
// the scheduler to trigger match re-validation.
func (c *Catalog) Refreshed() <-chan struct{} {
	return c.refreshed
}

// Adapter returns the adapter registered for a venue.
func (c *Catalog) Adapter(v types.Venue) (venue.Adapter, bool) {
	a, ok := c.adapters[v]
	return a, ok
}
