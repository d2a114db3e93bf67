package executor

import (
	"context"
	"time"

	"github.com/predarb/crossvenue-arb/internal/venue"
	"go.uber.org/zap"
)

// awaitFill polls an order until it fully fills or the timeout elapses,
// backing off exponentially between polls. It returns the last observed
// status either way; a timed-out order may still be partially filled.
func (e *Executor) awaitFill(ctx context.Context, adapter venue.Adapter, orderID string) (*venue.OrderStatus, bool) {
	deadline := time.NewTimer(e.cfg.LegTimeout)
	defer deadline.Stop()

	backoff := e.cfg.FillInitialBackoff
	var last *venue.OrderStatus

	for {
		status, err := adapter.GetOrderStatus(ctx, orderID)
		if err != nil {
			e.logger.Warn("fill-check-failed",
				zap.String("venue", string(adapter.Name())),
				zap.String("order-id", orderID),
				zap.Error(err))
		} else {
			last = status
			if status.FullyFilled() {
				return last, true
			}
		}

		select {
		case <-ctx.Done():
			return last, false
		case <-deadline.C:
			e.logger.Warn("fill-await-timeout",
				zap.String("venue", string(adapter.Name())),
				zap.String("order-id", orderID),
				zap.Duration("timeout", e.cfg.LegTimeout))
			return last, false
		case <-time.After(backoff):
		}

		backoff = time.Duration(float64(backoff) * e.cfg.FillBackoffMult)
		if backoff > e.cfg.FillMaxBackoff {
			backoff = e.cfg.FillMaxBackoff
		}
	}
}
