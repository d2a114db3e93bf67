// Package executor turns detected opportunities into hedged positions.
// Both strategies share one execution protocol: claim the markets,
// revalidate prices, reserve capital, submit both legs concurrently,
// await fills with a bounded timeout, then resolve the fill matrix by
// holding, unwinding or surfacing unhedged exposure.
package executor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/predarb/crossvenue-arb/internal/detector"
	"github.com/predarb/crossvenue-arb/internal/positions"
	"github.com/predarb/crossvenue-arb/internal/quotes"
	"github.com/predarb/crossvenue-arb/internal/storage"
	"github.com/predarb/crossvenue-arb/internal/venue"
	"github.com/predarb/crossvenue-arb/pkg/types"
	"go.uber.org/zap"
)

// Mode selects paper or live trading.
type Mode string

const (
	// ModePaper simulates fills at the planned limit prices.
	ModePaper Mode = "paper"

	// ModeLive submits real orders through the venue adapters.
	ModeLive Mode = "live"
)

// fillTolerance absorbs floating point noise when comparing fill sizes.
const fillTolerance = 0.001

// compensationGrace bounds how long cancels and unwinds may run past the
// leg timeout once the run context is gone.
const compensationGrace = 5 * time.Second

// Config holds execution parameters.
type Config struct {
	Mode Mode

	// LegTimeout bounds how long a submitted leg may wait for its fill.
	LegTimeout time.Duration

	// Fill polling backoff.
	FillInitialBackoff time.Duration
	FillMaxBackoff     time.Duration
	FillBackoffMult    float64

	Logger *zap.Logger
}

// Executor consumes opportunities and manages their execution lifecycle.
type Executor struct {
	cfg      Config
	detector *detector.Detector
	store    *quotes.Store
	tracker  *positions.Tracker
	storage  storage.Storage
	adapters map[types.Venue]venue.Adapter
	locks    *lockRegistry
	logger   *zap.Logger

	wg sync.WaitGroup
}

// New creates an Executor.
func New(cfg Config, det *detector.Detector, store *quotes.Store, tracker *positions.Tracker, st storage.Storage, adapters ...venue.Adapter) *Executor {
	byVenue := make(map[types.Venue]venue.Adapter, len(adapters))
	for _, a := range adapters {
		byVenue[a.Name()] = a
	}
	return &Executor{
		cfg:      cfg,
		detector: det,
		store:    store,
		tracker:  tracker,
		storage:  st,
		adapters: byVenue,
		locks:    newLockRegistry(),
		logger:   cfg.Logger,
	}
}

// Start launches the dispatch loop. Each opportunity executes on its own
// goroutine; per-market claims keep overlapping executions apart.
func (e *Executor) Start(ctx context.Context) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.logger.Info("executor-started", zap.String("mode", string(e.cfg.Mode)))
		for {
			select {
			case <-ctx.Done():
				e.logger.Info("executor-stopping")
				return
			case opp := <-e.detector.Opportunities():
				e.wg.Add(1)
				go func() {
					defer e.wg.Done()
					e.Execute(ctx, opp)
				}()
			}
		}
	}()
}

// Wait blocks until the dispatch loop and all in-flight executions have
// finished. Call after canceling the Start context so partially executed
// positions resolve before shutdown.
func (e *Executor) Wait() {
	e.wg.Wait()
}

// Execute runs the shared execution protocol for one opportunity.
func (e *Executor) Execute(ctx context.Context, opp *detector.Opportunity) {
	defer e.detector.Release(opp.DedupKey)

	err := e.storage.SaveOpportunity(ctx, opp)
	if err != nil {
		e.logger.Warn("opportunity-store-failed", zap.String("id", opp.ID), zap.Error(err))
	}

	keys := lockKeys(opp)
	if !e.locks.tryAcquire(keys...) {
		SkipsTotal.WithLabelValues("market_locked").Inc()
		e.logger.Debug("execution-skipped-market-locked", zap.String("id", opp.ID))
		return
	}
	defer e.locks.release(keys...)

	if !e.revalidate(opp) {
		SkipsTotal.WithLabelValues("revalidation_failed").Inc()
		e.logger.Info("execution-skipped-revalidation",
			zap.String("id", opp.ID),
			zap.String("summary", opp.String()))
		return
	}

	reserved := plannedCost(opp)
	err = e.tracker.Reserve(reserved)
	if err != nil {
		var capErr *types.CapacityError
		if errors.As(err, &capErr) {
			SkipsTotal.WithLabelValues("capacity").Inc()
			e.logger.Warn("execution-refused-capacity",
				zap.String("id", opp.ID),
				zap.Float64("requested", capErr.Requested),
				zap.Float64("committed", capErr.Committed),
				zap.Float64("ceiling", capErr.Ceiling))
		} else {
			e.logger.Error("capital-reserve-failed", zap.String("id", opp.ID), zap.Error(err))
		}
		return
	}

	var legs [2]positions.Leg
	if e.cfg.Mode == ModePaper {
		legs = e.simulateLegs(opp)
	} else {
		legs = e.submitLegs(ctx, opp)
	}

	e.resolveOutcome(ctx, opp, reserved, legs)
}

// lockKeys returns the market claims an opportunity needs. The single
// platform strategy trades one market, so both legs share a key.
func lockKeys(opp *detector.Opportunity) []string {
	k0 := string(opp.Legs[0].Venue) + "|" + opp.Legs[0].MarketID
	k1 := string(opp.Legs[1].Venue) + "|" + opp.Legs[1].MarketID
	if k0 == k1 {
		return []string{k0}
	}
	return []string{k0, k1}
}

// plannedCost is the capital the opportunity needs at its limit prices.
func plannedCost(opp *detector.Opportunity) float64 {
	return opp.Legs[0].LimitPrice*opp.Legs[0].Contracts +
		opp.Legs[1].LimitPrice*opp.Legs[1].Contracts
}

// revalidate re-reads the freshest quotes under the market claim. The
// opportunity stands only while every leg is still quoted at or below
// its planned limit.
func (e *Executor) revalidate(opp *detector.Opportunity) bool {
	for _, leg := range opp.Legs {
		q, err := e.store.Latest(leg.Venue, leg.MarketID, leg.Side)
		if err != nil {
			return false
		}
		if !q.HasAsk() || q.BestAsk > leg.LimitPrice {
			return false
		}
	}
	return true
}

// simulateLegs produces instant full fills at the planned prices.
func (e *Executor) simulateLegs(opp *detector.Opportunity) [2]positions.Leg {
	var legs [2]positions.Leg
	now := time.Now()
	for i, plan := range opp.Legs {
		legs[i] = positions.Leg{
			Venue:           plan.Venue,
			MarketID:        plan.MarketID,
			Side:            plan.Side,
			OrderID:         "paper-" + uuid.New().String(),
			LimitPrice:      plan.LimitPrice,
			Contracts:       plan.Contracts,
			FilledContracts: plan.Contracts,
			AvgFillPrice:    plan.LimitPrice,
			State:           positions.LegFilled,
			UpdatedAt:       now,
		}
	}
	return legs
}

// submitLegs places both orders concurrently and waits for both to reach
// a terminal leg state.
func (e *Executor) submitLegs(ctx context.Context, opp *detector.Opportunity) [2]positions.Leg {
	var legs [2]positions.Leg
	var wg sync.WaitGroup
	for i := range opp.Legs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			legs[i] = e.runLeg(ctx, opp.Legs[i])
		}(i)
	}
	wg.Wait()
	return legs
}

// runLeg submits one order and tracks it to a terminal state.
func (e *Executor) runLeg(ctx context.Context, plan detector.LegPlan) positions.Leg {
	leg := positions.Leg{
		Venue:      plan.Venue,
		MarketID:   plan.MarketID,
		Side:       plan.Side,
		LimitPrice: plan.LimitPrice,
		Contracts:  plan.Contracts,
		State:      positions.LegSubmitted,
		UpdatedAt:  time.Now(),
	}

	adapter, ok := e.adapters[plan.Venue]
	if !ok {
		leg.State = positions.LegRejected
		e.logger.Error("no-adapter-for-venue", zap.String("venue", string(plan.Venue)))
		return leg
	}

	orderID, err := adapter.SubmitOrder(ctx, venue.OrderRequest{
		MarketID: plan.MarketID,
		Side:     plan.Side,
		Price:    plan.LimitPrice,
		Size:     plan.Contracts,
	})
	if err != nil {
		leg.State = positions.LegRejected
		leg.UpdatedAt = time.Now()
		LegFailuresTotal.WithLabelValues(string(plan.Venue), "submit").Inc()
		e.logger.Warn("leg-submit-failed",
			zap.String("venue", string(plan.Venue)),
			zap.String("market-id", plan.MarketID),
			zap.String("side", string(plan.Side)),
			zap.Error(err))
		return leg
	}
	leg.OrderID = orderID

	status, filled := e.awaitFill(ctx, adapter, orderID)
	if status != nil {
		leg.FilledContracts = status.SizeFilled
		leg.AvgFillPrice = status.AvgFillPrice
	}
	leg.UpdatedAt = time.Now()

	if filled {
		leg.State = positions.LegFilled
		return leg
	}

	// Stop the remainder from filling after we have given up on it. The
	// cancel runs detached so it still reaches the venue when the run
	// context died at shutdown.
	cancelCtx, release := e.compensationContext(ctx)
	cancelErr := adapter.CancelOrder(cancelCtx, orderID)
	release()
	if cancelErr != nil {
		e.logger.Warn("order-cancel-failed",
			zap.String("venue", string(plan.Venue)),
			zap.String("order-id", orderID),
			zap.Error(cancelErr))
	}

	if leg.FilledContracts > fillTolerance {
		leg.State = positions.LegPartiallyFilled
		LegFailuresTotal.WithLabelValues(string(plan.Venue), "partial_fill").Inc()
	} else {
		leg.State = positions.LegTimedOut
		LegFailuresTotal.WithLabelValues(string(plan.Venue), "timeout").Inc()
	}
	return leg
}

// resolveOutcome applies the fill matrix: hold a fully hedged position,
// unwind one-sided fills, or surface unhedged exposure when the unwind
// itself fails.
func (e *Executor) resolveOutcome(ctx context.Context, opp *detector.Opportunity, reserved float64, legs [2]positions.Leg) {
	// Compensation and persistence run detached from the run context: a
	// shutdown caught mid-execution still attempts the unwind instead of
	// failing it instantly and stranding the exposure.
	drainCtx, release := e.compensationContext(ctx)
	defer release()

	hedged := legs[0].FilledContracts
	if legs[1].FilledContracts < hedged {
		hedged = legs[1].FilledContracts
	}
	totalFilled := legs[0].FilledContracts + legs[1].FilledContracts

	// Nothing filled anywhere: return the reservation and move on.
	if totalFilled <= fillTolerance {
		e.tracker.Unreserve(reserved)
		ExecutionsTotal.WithLabelValues(string(opp.Kind), "failed").Inc()
		e.logger.Warn("execution-failed-no-fills",
			zap.String("id", opp.ID),
			zap.String("leg0-state", string(legs[0].State)),
			zap.String("leg1-state", string(legs[1].State)))
		return
	}

	// Unwind whatever one leg filled beyond the other.
	var excessIdx = -1
	excess := legs[0].FilledContracts - legs[1].FilledContracts
	if excess > fillTolerance {
		excessIdx = 0
	} else if -excess > fillTolerance {
		excessIdx = 1
		excess = -excess
	}

	recovered := 0.0
	unwindOK := true
	if excessIdx >= 0 {
		recovered, unwindOK = e.unwind(drainCtx, legs[excessIdx], excess)
	}

	cost := legs[0].Cost() + legs[1].Cost()
	if excessIdx >= 0 && unwindOK && hedged > fillTolerance {
		// A successful excess unwind returns part of the outlay, so the
		// surviving hedged position carries only the net cost.
		cost -= recovered
	}
	p := &positions.Position{
		ID:             uuid.New().String(),
		Strategy:       string(opp.Kind),
		DedupKey:       opp.DedupKey,
		Legs:           legs,
		Cost:           cost,
		ExpectedPayout: hedged,
		State:          positions.PositionOpen,
		OpenedAt:       time.Now(),
	}

	err := e.tracker.Open(p, reserved)
	if err != nil {
		e.logger.Error("position-track-failed", zap.String("position-id", p.ID), zap.Error(err))
	}

	switch {
	case hedged <= fillTolerance && unwindOK:
		// One-sided fills, fully unwound: write the position off with
		// whatever the unwind recovered.
		err = e.tracker.Abandon(p.ID, "one-sided fill unwound", recovered)
		if err != nil {
			e.logger.Error("position-abandon-failed", zap.String("position-id", p.ID), zap.Error(err))
		}
		ExecutionsTotal.WithLabelValues(string(opp.Kind), "unwound").Inc()

	case !unwindOK:
		// Exposure remains on one side. Keep the position and surface it
		// until an operator or a later unwind resolves it.
		_ = e.tracker.FlagUnhedged(p.ID)
		ExecutionsTotal.WithLabelValues(string(opp.Kind), "unhedged").Inc()
		exposure := &types.UnhedgedExposureError{
			PositionID: p.ID,
			Venue:      legs[excessIdx].Venue,
			MarketID:   legs[excessIdx].MarketID,
			Side:       legs[excessIdx].Side,
			Size:       excess,
		}
		e.logger.Error("unhedged-exposure", zap.String("position-id", p.ID), zap.Error(exposure))

	default:
		ExecutionsTotal.WithLabelValues(string(opp.Kind), "hedged").Inc()
		e.logger.Info("execution-complete",
			zap.String("id", opp.ID),
			zap.String("position-id", p.ID),
			zap.Float64("hedged-contracts", hedged),
			zap.Float64("cost", p.Cost),
			zap.Float64("expected-payout", p.ExpectedPayout))
	}

	final, ok := e.tracker.Get(p.ID)
	if ok {
		err = e.storage.SavePosition(drainCtx, final)
		if err != nil {
			e.logger.Warn("position-store-failed", zap.String("position-id", p.ID), zap.Error(err))
		}
	}
}

// compensationContext detaches from the run context so shutdown-time
// cancels and unwinds still reach the venue, bounded so a dead venue
// cannot stall exit.
func (e *Executor) compensationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), e.cfg.LegTimeout+compensationGrace)
}

// unwind sells excess contracts back into the market at the current bid.
// Returns the recovered proceeds and whether the exposure was closed.
func (e *Executor) unwind(ctx context.Context, leg positions.Leg, contracts float64) (float64, bool) {
	adapter, ok := e.adapters[leg.Venue]
	if !ok {
		return 0, false
	}

	price := leg.AvgFillPrice
	q, err := e.store.Latest(leg.Venue, leg.MarketID, leg.Side)
	if err == nil && q.BestBid > 0 {
		price = q.BestBid
	}

	if e.cfg.Mode == ModePaper {
		UnwindsTotal.WithLabelValues("success").Inc()
		return price * contracts, true
	}

	orderID, err := adapter.SubmitOrder(ctx, venue.OrderRequest{
		MarketID: leg.MarketID,
		Side:     leg.Side,
		Price:    price,
		Size:     contracts,
		Sell:     true,
	})
	if err != nil {
		UnwindsTotal.WithLabelValues("failed").Inc()
		e.logger.Error("unwind-submit-failed",
			zap.String("venue", string(leg.Venue)),
			zap.String("market-id", leg.MarketID),
			zap.Error(err))
		return 0, false
	}

	status, filled := e.awaitFill(ctx, adapter, orderID)
	if !filled {
		_ = adapter.CancelOrder(ctx, orderID)
		UnwindsTotal.WithLabelValues("failed").Inc()
		recovered := 0.0
		if status != nil {
			recovered = status.SizeFilled * status.AvgFillPrice
		}
		return recovered, false
	}

	UnwindsTotal.WithLabelValues("success").Inc()
	return status.SizeFilled * status.AvgFillPrice, true
}
