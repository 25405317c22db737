// Package dispatcher manages worker fan-out over the analysis queue.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/review-analyzer/internal/analysis"
	"github.com/JakeFAU/review-analyzer/internal/metrics"
)

const depthSampleInterval = time.Second

// Runner consumes jobs until its context ends.
type Runner interface {
	Run(ctx context.Context)
}

type depther interface {
	Depth() int
}

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue   analysis.Queue
	workers []Runner
}

// New creates a Dispatcher.
func New(queue analysis.Queue, workers []Runner) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		workers: workers,
	}
}

// Add registers more workers. It must be called before Run.
func (d *Dispatcher) Add(workers ...Runner) {
	d.workers = append(d.workers, workers...)
}

// Run starts all workers and blocks until the context finishes and every
// worker has returned.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(r Runner) {
			defer wg.Done()
			r.Run(ctx)
		}(w)
	}
	if q, ok := d.queue.(depther); ok {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sampleDepth(ctx, q)
		}()
	}
	<-ctx.Done()
	wg.Wait()
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, job analysis.Job) error {
	if err := d.queue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	if q, ok := d.queue.(depther); ok {
		metrics.SetQueueDepth(q.Depth())
	}
	return nil
}

func sampleDepth(ctx context.Context, q depther) {
	ticker := time.NewTicker(depthSampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.SetQueueDepth(q.Depth())
		}
	}
}
