// Package settlement polls venue resolutions for held positions and
// collects payouts. Resolution can lag market close by hours; the
// checker retries every interval until each position settles.
package settlement

import (
	"context"
	"sync"
	"time"

	"github.com/predarb/crossvenue-arb/internal/catalog"
	"github.com/predarb/crossvenue-arb/internal/positions"
	"github.com/predarb/crossvenue-arb/internal/storage"
	"github.com/predarb/crossvenue-arb/pkg/types"
	"go.uber.org/zap"
)

// Config holds settlement checker configuration.
type Config struct {
	Interval time.Duration
	Logger   *zap.Logger
}

// Checker drives positions from open to settled.
type Checker struct {
	cfg     Config
	catalog *catalog.Catalog
	tracker *positions.Tracker
	storage storage.Storage
	logger  *zap.Logger

	wg sync.WaitGroup
}

// New creates a Checker.
func New(cfg Config, cat *catalog.Catalog, tracker *positions.Tracker, st storage.Storage) *Checker {
	return &Checker{
		cfg:     cfg,
		catalog: cat,
		tracker: tracker,
		storage: st,
		logger:  cfg.Logger,
	}
}

// Start launches the settlement loop.
func (c *Checker) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.logger.Info("settlement-checker-started", zap.Duration("interval", c.cfg.Interval))

		ticker := time.NewTicker(c.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				c.logger.Info("settlement-checker-stopping")
				return
			case <-ticker.C:
				c.CheckOnce(ctx)
			}
		}
	}()
}

// Wait blocks until the settlement loop has exited.
func (c *Checker) Wait() {
	c.wg.Wait()
}

// CheckOnce runs one settlement pass over all non-terminal positions.
// Each pass is idempotent: a position settles exactly once no matter how
// many passes observe its resolution.
func (c *Checker) CheckOnce(ctx context.Context) {
	ChecksTotal.Inc()

	for _, p := range c.tracker.Active() {
		c.checkPosition(ctx, p)
	}
}

// checkPosition queries resolution for each filled leg. The position
// settles once every filled leg's market has resolved; a transient venue
// failure leaves it untouched for the next pass.
func (c *Checker) checkPosition(ctx context.Context, p positions.Position) {
	payout := 0.0
	allResolved := true
	anyClosed := false

	for _, leg := range p.Legs {
		if leg.FilledContracts <= 0 {
			continue
		}

		adapter, ok := c.catalog.Adapter(leg.Venue)
		if !ok {
			c.logger.Error("no-adapter-for-venue", zap.String("venue", string(leg.Venue)))
			return
		}

		res, err := adapter.GetResolution(ctx, leg.MarketID)
		if err != nil {
			c.logger.Warn("resolution-check-failed",
				zap.String("position-id", p.ID),
				zap.String("venue", string(leg.Venue)),
				zap.String("market-id", leg.MarketID),
				zap.Error(err))
			return
		}

		if !res.Resolved {
			allResolved = false
			if m, found := c.catalog.Resolve(leg.Venue, leg.MarketID); found && m.Status != types.MarketOpen {
				anyClosed = true
			}
			continue
		}

		c.catalog.MarkResolved(leg.Venue, leg.MarketID, res.Winner)
		if res.Winner == leg.Side {
			payout += leg.FilledContracts
		}
	}

	if !allResolved {
		if anyClosed && p.State == positions.PositionOpen {
			err := c.tracker.MarkAwaitingSettlement(p.ID)
			if err != nil {
				c.logger.Warn("awaiting-settlement-transition-failed",
					zap.String("position-id", p.ID), zap.Error(err))
			}
		}
		return
	}

	err := c.tracker.Settle(p.ID, payout)
	if err != nil {
		c.logger.Error("settle-failed", zap.String("position-id", p.ID), zap.Error(err))
		return
	}
	SettledTotal.Inc()

	final, ok := c.tracker.Get(p.ID)
	if ok {
		err = c.storage.SavePosition(ctx, final)
		if err != nil {
			c.logger.Warn("position-store-failed", zap.String("position-id", p.ID), zap.Error(err))
		}
	}
}
