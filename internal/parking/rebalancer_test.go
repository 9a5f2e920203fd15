package parking

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingRebalancer struct {
	calls atomic.Int32
	err   error
}

func (c *countingRebalancer) Rebalance(context.Context) (RebalanceResult, error) {
	c.calls.Add(1)
	return RebalanceResult{}, c.err
}

func TestAutoRebalancerRunsUntilCancelled(t *testing.T) {
	target := &countingRebalancer{}
	r := NewAutoRebalancer(target, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return target.calls.Load() >= 2 }, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("rebalancer did not stop after cancel")
	}
}

func TestAutoRebalancerToleratesRateLimit(t *testing.T) {
	target := &countingRebalancer{err: ErrRateLimited}
	r := NewAutoRebalancer(target, 0)

	assert.Equal(t, 30*time.Second, r.interval)

	r.runOnce(context.Background())
	assert.Equal(t, int32(1), target.calls.Load())
}

func TestAutoRebalancerFollowsRebuild(t *testing.T) {
	manager, _, _ := newTestManager(t, 4, 0, nil)
	ctx := context.Background()
	r := NewAutoRebalancer(manager, time.Minute)

	r.runOnce(ctx)
	_, err := manager.Rebuild(ctx, 4, 0)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	r.runOnce(ctx)

	_, err = manager.Rebalance(ctx)
	assert.ErrorIs(t, err, ErrRateLimited, "the pass after Rebuild should hit the new system")
}
