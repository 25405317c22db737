package memory

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/review-analyzer/internal/analysis"
)

// Janitor periodically evicts finished tasks older than a TTL.
type Janitor struct {
	store    *TaskStore
	clock    analysis.Clock
	interval time.Duration
	ttl      time.Duration
	logger   *zap.Logger
}

// NewJanitor constructs a Janitor. Non-positive durations disable eviction.
func NewJanitor(store *TaskStore, clock analysis.Clock, interval, ttl time.Duration, logger *zap.Logger) *Janitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = wallClock{}
	}
	return &Janitor{
		store:    store,
		clock:    clock,
		interval: interval,
		ttl:      ttl,
		logger:   logger,
	}
}

// Run blocks until ctx is done, sweeping on every tick.
func (j *Janitor) Run(ctx context.Context) {
	if j.interval <= 0 || j.ttl <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Sweep()
		}
	}
}

// Sweep performs a single eviction pass and returns the number of evicted tasks.
func (j *Janitor) Sweep() int {
	n := j.store.EvictExpired(j.clock.Now(), j.ttl)
	if n > 0 {
		j.logger.Debug("evicted expired analyses", zap.Int("count", n), zap.Int("remaining", j.store.Len()))
	}
	return n
}
