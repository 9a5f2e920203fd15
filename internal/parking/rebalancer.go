package parking

import (
	"context"
	"errors"
	"time"

	"parking-lot/internal/logging"
)

// Rebalancer is anything that can be asked to even out the lot.
type Rebalancer interface {
	Rebalance(ctx context.Context) (RebalanceResult, error)
}

// AutoRebalancer periodically asks the optimizer to even out the lot.
// Calls inside the cooldown are simply skipped by the optimizer.
type AutoRebalancer struct {
	target   Rebalancer
	interval time.Duration
}

func NewAutoRebalancer(target Rebalancer, interval time.Duration) *AutoRebalancer {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &AutoRebalancer{
		target:   target,
		interval: interval,
	}
}

func (r *AutoRebalancer) Run(ctx context.Context) {
	t := time.NewTicker(r.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.runOnce(ctx)
		}
	}
}

func (r *AutoRebalancer) runOnce(ctx context.Context) {
	result, err := r.target.Rebalance(ctx)
	switch {
	case errors.Is(err, ErrRateLimited):
		logging.Debug(ctx, "auto rebalance skipped", "reason", result.Message)
	case err != nil:
		logging.Error(ctx, "auto rebalance failed", logging.Err(err))
	case result.Rebalanced:
		logging.Info(ctx, "auto rebalance moved vehicles", logging.Moved(result.Moved))
	default:
		logging.Debug(ctx, "auto rebalance found lot balanced", "imbalance", result.Imbalance)
	}
}
