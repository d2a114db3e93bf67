// Package detector evaluates quote updates against matched market pairs
// and emits priced opportunities for both trading strategies.
package detector

import (
	"context"
	"sort"
	"sync"

	"github.com/predarb/crossvenue-arb/internal/matcher"
	"github.com/predarb/crossvenue-arb/internal/quotes"
	"github.com/predarb/crossvenue-arb/pkg/types"
	"go.uber.org/zap"
)

// Config holds detection parameters.
type Config struct {
	// ProfitBuffer is the minimum per-contract margin, in price units,
	// required before an opportunity is emitted.
	ProfitBuffer float64

	// TakerFees maps each venue to its taker fee rate applied on cost.
	TakerFees map[types.Venue]float64

	// MinContracts rejects opportunities too small to be worth the fees.
	MinContracts float64

	// MaxContracts caps position size per opportunity.
	MaxContracts float64

	// OpportunityBufferSize is the capacity of the emission channel.
	OpportunityBufferSize int

	Logger *zap.Logger
}

// Detector consumes quote updates and emits opportunities. Detection is
// event driven: each accepted quote update re-evaluates only the pairs
// and market touched by that update.
type Detector struct {
	cfg    Config
	store  *quotes.Store
	logger *zap.Logger

	mu           sync.Mutex
	pairsByMkt   map[string][]matcher.MatchedPair // venue|marketID -> pairs touching it
	singleByMkt  map[string]bool                  // venue|marketID eligible for same-venue hedging
	outstanding  map[string]bool                  // dedup keys with an opportunity in flight
	opportunities chan *Opportunity

	wg sync.WaitGroup
}

// New creates a Detector reading from the given quote store.
func New(cfg Config, store *quotes.Store) *Detector {
	if cfg.OpportunityBufferSize <= 0 {
		cfg.OpportunityBufferSize = 100
	}
	return &Detector{
		cfg:           cfg,
		store:         store,
		logger:        cfg.Logger,
		pairsByMkt:    make(map[string][]matcher.MatchedPair),
		singleByMkt:   make(map[string]bool),
		outstanding:   make(map[string]bool),
		opportunities: make(chan *Opportunity, cfg.OpportunityBufferSize),
	}
}

func marketKey(v types.Venue, marketID string) string {
	return string(v) + "|" + marketID
}

// SetPairs replaces the matched-pair index after a matching pass.
// Outstanding dedup keys survive so in-flight executions keep their
// claim on a pair.
func (d *Detector) SetPairs(pairs []matcher.MatchedPair) {
	byMkt := make(map[string][]matcher.MatchedPair)
	single := make(map[string]bool)
	for _, p := range pairs {
		kf := marketKey(p.First.Venue, p.First.ID)
		ks := marketKey(p.Second.Venue, p.Second.ID)
		byMkt[kf] = append(byMkt[kf], p)
		byMkt[ks] = append(byMkt[ks], p)
		single[kf] = true
		single[ks] = true
	}

	d.mu.Lock()
	d.pairsByMkt = byMkt
	d.singleByMkt = single
	d.mu.Unlock()

	d.logger.Info("detector-pairs-updated", zap.Int("pairs", len(pairs)))
}

// EnableSingleMarket registers a market for same-venue YES/NO hedging
// even when it has no cross-venue pair.
func (d *Detector) EnableSingleMarket(v types.Venue, marketID string) {
	d.mu.Lock()
	d.singleByMkt[marketKey(v, marketID)] = true
	d.mu.Unlock()
}

// Start launches the detection loop. It returns when ctx is done.
func (d *Detector) Start(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.logger.Info("detector-started")
		for {
			select {
			case <-ctx.Done():
				d.logger.Info("detector-stopping")
				return
			case q := <-d.store.Updates():
				d.evaluate(q)
			}
		}
	}()
}

// Wait blocks until the detection loop has exited.
func (d *Detector) Wait() {
	d.wg.Wait()
}

// Opportunities exposes emitted opportunities, best margin first within
// each evaluation batch.
func (d *Detector) Opportunities() <-chan *Opportunity {
	return d.opportunities
}

// Release frees a dedup key once execution of its opportunity finished,
// allowing the pair or market to be re-detected.
func (d *Detector) Release(dedupKey string) {
	d.mu.Lock()
	delete(d.outstanding, dedupKey)
	d.mu.Unlock()
}

// evaluate re-prices everything the updated quote touches and emits any
// viable opportunities in descending margin order.
func (d *Detector) evaluate(q types.PriceQuote) {
	mk := marketKey(q.Venue, q.MarketID)

	d.mu.Lock()
	pairs := d.pairsByMkt[mk]
	single := d.singleByMkt[mk]
	d.mu.Unlock()

	var found []*Opportunity
	for _, p := range pairs {
		if opp := d.evaluatePair(p); opp != nil {
			found = append(found, opp)
		}
	}
	if single {
		if opp := d.evaluateSingle(q.Venue, q.MarketID); opp != nil {
			found = append(found, opp)
		}
	}
	if len(found) == 0 {
		return
	}

	sort.Slice(found, func(i, j int) bool {
		return found[i].Margin > found[j].Margin
	})

	for _, opp := range found {
		d.emit(opp)
	}
}

// evaluatePair prices both complementary leg combinations for a matched
// pair and returns the better one, if either is viable.
func (d *Detector) evaluatePair(p matcher.MatchedPair) *Opportunity {
	secondForYes := types.SideNo
	if p.Inverted {
		secondForYes = types.SideYes
	}

	a := d.priceCombo(p, types.SideYes, secondForYes)
	b := d.priceCombo(p, types.SideNo, secondForYes.Opposite())
	if a == nil {
		return b
	}
	if b != nil && b.Margin > a.Margin {
		return b
	}
	return a
}

// priceCombo builds a cross-venue opportunity from one side combination.
func (d *Detector) priceCombo(p matcher.MatchedPair, firstSide, secondSide types.Side) *Opportunity {
	legA, ok := d.legFromQuote(p.First.Venue, p.First.ID, firstSide)
	if !ok {
		return nil
	}
	legB, ok := d.legFromQuote(p.Second.Venue, p.Second.ID, secondSide)
	if !ok {
		return nil
	}

	opp := newOpportunity(KindCrossVenue, p.Key(), legA, legB,
		d.cfg.TakerFees[p.First.Venue], d.cfg.TakerFees[p.Second.Venue],
		d.cfg.ProfitBuffer)
	if opp == nil || opp.Contracts() < d.cfg.MinContracts {
		return nil
	}
	return opp
}

// evaluateSingle prices the same-venue YES/NO hedge on one market.
func (d *Detector) evaluateSingle(v types.Venue, marketID string) *Opportunity {
	legYes, ok := d.legFromQuote(v, marketID, types.SideYes)
	if !ok {
		return nil
	}
	legNo, ok := d.legFromQuote(v, marketID, types.SideNo)
	if !ok {
		return nil
	}

	fee := d.cfg.TakerFees[v]
	opp := newOpportunity(KindSinglePlatform, marketKey(v, marketID),
		legYes, legNo, fee, fee, d.cfg.ProfitBuffer)
	if opp == nil || opp.Contracts() < d.cfg.MinContracts {
		return nil
	}
	return opp
}

// legFromQuote turns the freshest stored quote into a leg plan. Stale or
// missing quotes disqualify the leg rather than erroring up the stack.
func (d *Detector) legFromQuote(v types.Venue, marketID string, side types.Side) (LegPlan, bool) {
	q, err := d.store.Latest(v, marketID, side)
	if err != nil || !q.HasAsk() {
		return LegPlan{}, false
	}
	contracts := q.AskSize
	if contracts > d.cfg.MaxContracts {
		contracts = d.cfg.MaxContracts
	}
	return LegPlan{
		Venue:      v,
		MarketID:   marketID,
		Side:       side,
		LimitPrice: q.BestAsk,
		Contracts:  contracts,
		QuotedAt:   q.Timestamp,
	}, true
}

// emit forwards an opportunity unless one is already outstanding for the
// same pair or market. A full channel releases the claim so the next
// quote update can retry.
func (d *Detector) emit(opp *Opportunity) {
	d.mu.Lock()
	if d.outstanding[opp.DedupKey] {
		d.mu.Unlock()
		DuplicatesSuppressedTotal.Inc()
		return
	}
	d.outstanding[opp.DedupKey] = true
	d.mu.Unlock()

	select {
	case d.opportunities <- opp:
		OpportunitiesTotal.WithLabelValues(string(opp.Kind)).Inc()
		d.logger.Info("opportunity-detected",
			zap.String("id", opp.ID),
			zap.String("kind", string(opp.Kind)),
			zap.Float64("margin", opp.Margin),
			zap.Float64("profit-bps", opp.ProfitBPS),
			zap.Float64("contracts", opp.Contracts()),
			zap.String("summary", opp.String()))
	default:
		d.Release(opp.DedupKey)
		OpportunitiesDroppedTotal.Inc()
		d.logger.Warn("opportunity-channel-full", zap.String("id", opp.ID))
	}
}
