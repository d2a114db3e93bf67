// Package scheduler coordinates the periodic work of the engine: it
// re-matches markets after every catalog refresh and polls quotes for
// the markets under watch. Each cycle runs on its own goroutine so a
// slow or failing venue never stalls the others.
package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/predarb/crossvenue-arb/internal/catalog"
	"github.com/predarb/crossvenue-arb/internal/detector"
	"github.com/predarb/crossvenue-arb/internal/matcher"
	"github.com/predarb/crossvenue-arb/internal/quotes"
	"github.com/predarb/crossvenue-arb/pkg/types"
	"go.uber.org/zap"
)

// Config holds scheduler configuration.
type Config struct {
	// QuotePollInterval is the REST polling cadence for watched markets.
	QuotePollInterval time.Duration

	// SingleMarketLimit bounds how many unpaired markets per venue join
	// the same-venue hedging watchlist, picked by descending liquidity.
	SingleMarketLimit int

	// Venues lists the venues to match across, in match order.
	Venues [2]types.Venue

	Logger *zap.Logger
}

// watchKey identifies one market under quote watch.
type watchKey struct {
	venue    types.Venue
	marketID string
}

// Scheduler owns the match and poll cycles.
type Scheduler struct {
	cfg     Config
	catalog *catalog.Catalog
	matcher *matcher.Matcher
	det     *detector.Detector
	store   *quotes.Store
	logger  *zap.Logger

	mu      sync.Mutex
	watched []watchKey

	wg sync.WaitGroup
}

// New creates a Scheduler.
func New(cfg Config, cat *catalog.Catalog, m *matcher.Matcher, det *detector.Detector, store *quotes.Store) *Scheduler {
	if cfg.SingleMarketLimit <= 0 {
		cfg.SingleMarketLimit = 50
	}
	return &Scheduler{
		cfg:     cfg,
		catalog: cat,
		matcher: m,
		det:     det,
		store:   store,
		logger:  cfg.Logger,
	}
}

// Start launches the match and poll loops.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(2)

	go func() {
		defer s.wg.Done()
		s.matchLoop(ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.pollLoop(ctx)
	}()
}

// Wait blocks until both loops have exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// matchLoop re-matches after every catalog refresh.
func (s *Scheduler) matchLoop(ctx context.Context) {
	s.logger.Info("scheduler-match-loop-started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler-match-loop-stopping")
			return
		case <-s.catalog.Refreshed():
			s.MatchPass()
		}
	}
}

// MatchPass runs one matching pass over the current catalog and rebuilds
// the detector's pair index and the quote watchlist.
func (s *Scheduler) MatchPass() {
	started := time.Now()

	first := s.catalog.Snapshot(s.cfg.Venues[0])
	second := s.catalog.Snapshot(s.cfg.Venues[1])

	pairs := s.matcher.Match(first, second)
	s.det.SetPairs(pairs)

	watched := make(map[watchKey]bool)
	for _, p := range pairs {
		watched[watchKey{p.First.Venue, p.First.ID}] = true
		watched[watchKey{p.Second.Venue, p.Second.ID}] = true
	}

	// Unpaired markets still qualify for the same-venue strategy; watch
	// the most liquid ones per venue.
	for _, snap := range [][]types.Market{first, second} {
		sort.Slice(snap, func(i, j int) bool {
			return snap[i].Liquidity > snap[j].Liquidity
		})
		added := 0
		for _, m := range snap {
			if added >= s.cfg.SingleMarketLimit {
				break
			}
			k := watchKey{m.Venue, m.ID}
			if watched[k] || !m.Tradable() {
				continue
			}
			watched[k] = true
			s.det.EnableSingleMarket(m.Venue, m.ID)
			added++
		}
	}

	keys := make([]watchKey, 0, len(watched))
	for k := range watched {
		keys = append(keys, k)
	}

	s.mu.Lock()
	s.watched = keys
	s.mu.Unlock()

	MatchPassesTotal.Inc()
	WatchedMarkets.Set(float64(len(keys)))
	s.logger.Info("match-pass-complete",
		zap.Int("pairs", len(pairs)),
		zap.Int("watched-markets", len(keys)),
		zap.Duration("elapsed", time.Since(started)))
}

// pollLoop refreshes quotes for every watched market side on the
// configured interval.
func (s *Scheduler) pollLoop(ctx context.Context) {
	s.logger.Info("scheduler-poll-loop-started",
		zap.Duration("interval", s.cfg.QuotePollInterval))

	ticker := time.NewTicker(s.cfg.QuotePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler-poll-loop-stopping")
			return
		case <-ticker.C:
			s.PollOnce(ctx)
		}
	}
}

// PollOnce fetches both sides of every watched market, one goroutine per
// venue so venues degrade independently.
func (s *Scheduler) PollOnce(ctx context.Context) {
	s.mu.Lock()
	keys := make([]watchKey, len(s.watched))
	copy(keys, s.watched)
	s.mu.Unlock()

	byVenue := make(map[types.Venue][]watchKey)
	for _, k := range keys {
		byVenue[k.venue] = append(byVenue[k.venue], k)
	}

	var wg sync.WaitGroup
	for v, vkeys := range byVenue {
		wg.Add(1)
		go func(v types.Venue, vkeys []watchKey) {
			defer wg.Done()
			s.pollVenue(ctx, v, vkeys)
		}(v, vkeys)
	}
	wg.Wait()
}

func (s *Scheduler) pollVenue(ctx context.Context, v types.Venue, keys []watchKey) {
	adapter, ok := s.catalog.Adapter(v)
	if !ok {
		return
	}

	for _, k := range keys {
		for _, side := range []types.Side{types.SideYes, types.SideNo} {
			q, err := adapter.GetQuote(ctx, k.marketID, side)
			if err != nil {
				PollErrorsTotal.WithLabelValues(string(v)).Inc()
				s.logger.Debug("quote-poll-failed",
					zap.String("venue", string(v)),
					zap.String("market-id", k.marketID),
					zap.String("side", string(side)),
					zap.Error(err))
				continue
			}
			s.store.Update(*q)
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}
