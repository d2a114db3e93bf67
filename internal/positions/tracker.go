package positions

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/predarb/crossvenue-arb/pkg/types"
	"go.uber.org/zap"
)

// Config holds tracker configuration.
type Config struct {
	// CapitalCeiling is the maximum USD committed across non-terminal
	// positions. Opens beyond the ceiling are refused, never queued.
	CapitalCeiling float64

	Logger *zap.Logger
}

// Statistics is a point-in-time summary of tracked positions.
type Statistics struct {
	Open               int     `json:"open"`
	AwaitingSettlement int     `json:"awaiting_settlement"`
	Settled            int     `json:"settled"`
	Abandoned          int     `json:"abandoned"`
	Unhedged           int     `json:"unhedged"`
	Committed          float64 `json:"committed"`
	RealizedPnL        float64 `json:"realized_pnl"`
}

// Tracker is the in-memory position book. It is the single authority on
// committed capital; executors must reserve through it before filling.
type Tracker struct {
	cfg    Config
	logger *zap.Logger

	mu        sync.Mutex
	positions map[string]*Position
	committed float64
	reserved  float64
}

// NewTracker creates an empty tracker.
func NewTracker(cfg Config) *Tracker {
	return &Tracker{
		cfg:       cfg,
		logger:    cfg.Logger,
		positions: make(map[string]*Position),
	}
}

// Reserve claims capital ahead of order submission so concurrent
// executions cannot jointly breach the ceiling. The claim must be
// settled with either Open (converting it) or Unreserve (returning it).
func (t *Tracker) Reserve(amount float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.committed+t.reserved+amount > t.cfg.CapitalCeiling {
		CapacityRefusalsTotal.Inc()
		return &types.CapacityError{
			Committed: t.committed + t.reserved,
			Requested: amount,
			Ceiling:   t.cfg.CapitalCeiling,
		}
	}
	t.reserved += amount
	t.updateGauges()
	return nil
}

// Unreserve returns a reservation that did not become a position.
func (t *Tracker) Unreserve(amount float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reserved -= amount
	if t.reserved < 0 {
		t.reserved = 0
	}
	t.updateGauges()
}

// Open converts a reservation into a tracked position. reservedAmount is
// the amount previously passed to Reserve; the position's actual fill
// cost replaces it.
func (t *Tracker) Open(p *Position, reservedAmount float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.positions[p.ID]; exists {
		return fmt.Errorf("position %s already tracked", p.ID)
	}

	t.reserved -= reservedAmount
	if t.reserved < 0 {
		t.reserved = 0
	}
	t.committed += p.Cost
	t.positions[p.ID] = p
	t.updateGauges()

	t.logger.Info("position-opened",
		zap.String("position-id", p.ID),
		zap.String("strategy", p.Strategy),
		zap.Float64("cost", p.Cost),
		zap.Float64("expected-payout", p.ExpectedPayout),
		zap.Bool("unhedged", p.Unhedged))
	return nil
}

// Get returns a copy of one position.
func (t *Tracker) Get(id string) (Position, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.positions[id]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// List returns copies of all positions, newest first.
func (t *Tracker) List() []Position {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Position, 0, len(t.positions))
	for _, p := range t.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].OpenedAt.After(out[j].OpenedAt)
	})
	return out
}

// Active returns copies of all non-terminal positions.
func (t *Tracker) Active() []Position {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Position
	for _, p := range t.positions {
		if !p.Terminal() {
			out = append(out, *p)
		}
	}
	return out
}

// MarkAwaitingSettlement transitions an open position once its markets
// have closed.
func (t *Tracker) MarkAwaitingSettlement(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.positions[id]
	if !ok {
		return fmt.Errorf("unknown position %s", id)
	}
	if p.State == PositionAwaitingSettlement {
		return nil
	}
	if !p.State.canTransitionTo(PositionAwaitingSettlement) {
		return fmt.Errorf("position %s is %s, cannot await settlement", id, p.State)
	}
	p.State = PositionAwaitingSettlement
	return nil
}

// Settle records the payout for a position and releases its capital.
// Settling an already settled position is a no-op.
func (t *Tracker) Settle(id string, payout float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.positions[id]
	if !ok {
		return fmt.Errorf("unknown position %s", id)
	}
	if p.State == PositionSettled {
		return nil
	}
	if !p.State.canTransitionTo(PositionSettled) {
		return fmt.Errorf("position %s is %s, cannot settle", id, p.State)
	}

	p.State = PositionSettled
	p.Payout = payout
	p.PnL = payout - p.Cost
	p.SettledAt = time.Now()
	p.Unhedged = false
	t.committed -= p.Cost
	if t.committed < 0 {
		t.committed = 0
	}
	t.updateGauges()
	RealizedPnLTotal.Add(p.PnL)

	t.logger.Info("position-settled",
		zap.String("position-id", id),
		zap.Float64("payout", payout),
		zap.Float64("pnl", p.PnL))
	return nil
}

// Abandon writes a position off before settlement, recording whatever
// was recovered by unwinding. Abandoning a terminal position fails.
func (t *Tracker) Abandon(id, reason string, recovered float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.positions[id]
	if !ok {
		return fmt.Errorf("unknown position %s", id)
	}
	if !p.State.canTransitionTo(PositionAbandoned) {
		return fmt.Errorf("position %s is %s, cannot abandon", id, p.State)
	}

	p.State = PositionAbandoned
	p.AbandonReason = reason
	p.Payout = recovered
	p.PnL = recovered - p.Cost
	p.SettledAt = time.Now()
	p.Unhedged = false
	t.committed -= p.Cost
	if t.committed < 0 {
		t.committed = 0
	}
	t.updateGauges()
	RealizedPnLTotal.Add(p.PnL)

	t.logger.Warn("position-abandoned",
		zap.String("position-id", id),
		zap.String("reason", reason),
		zap.Float64("recovered", recovered),
		zap.Float64("pnl", p.PnL))
	return nil
}

// FlagUnhedged marks a non-terminal position as carrying one-sided risk.
func (t *Tracker) FlagUnhedged(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.positions[id]
	if !ok {
		return fmt.Errorf("unknown position %s", id)
	}
	if p.Terminal() {
		return fmt.Errorf("position %s is %s, cannot flag unhedged", id, p.State)
	}
	p.Unhedged = true
	t.updateGauges()
	return nil
}

// Committed returns capital locked in non-terminal positions plus
// outstanding reservations.
func (t *Tracker) Committed() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.committed + t.reserved
}

// Stats summarizes the book.
func (t *Tracker) Stats() Statistics {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Statistics{Committed: t.committed + t.reserved}
	for _, p := range t.positions {
		switch p.State {
		case PositionOpen:
			s.Open++
		case PositionAwaitingSettlement:
			s.AwaitingSettlement++
		case PositionSettled:
			s.Settled++
			s.RealizedPnL += p.PnL
		case PositionAbandoned:
			s.Abandoned++
			s.RealizedPnL += p.PnL
		}
		if p.Unhedged && !p.Terminal() {
			s.Unhedged++
		}
	}
	return s
}

// updateGauges refreshes the capital gauges. Caller holds t.mu.
func (t *Tracker) updateGauges() {
	CommittedCapital.Set(t.committed + t.reserved)

	unhedged := 0
	for _, p := range t.positions {
		if p.Unhedged && !p.Terminal() {
			unhedged++
		}
	}
	UnhedgedPositions.Set(float64(unhedged))
}
