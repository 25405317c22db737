package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/review-analyzer/internal/progress"
)

// PrometheusSink exports analysis progress via Prometheus collectors.
type PrometheusSink struct {
	started   *prometheus.CounterVec
	completed *prometheus.CounterVec
	running   prometheus.Gauge
	runtime   *prometheus.HistogramVec
	reviews   *prometheus.CounterVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analyzer_analyses_started_total",
			Help: "Total analyses picked up by a worker, by platform.",
		}, []string{"platform"}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analyzer_analyses_completed_total",
			Help: "Total analyses finished, partitioned by result.",
		}, []string{"result"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "analyzer_analyses_running",
			Help: "Current number of running analyses.",
		}),
		runtime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "analyzer_analysis_runtime_seconds",
			Help:    "Wall time per finished analysis.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
		}, []string{"result"}),
		reviews: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analyzer_reviews_collected_total",
			Help: "Reviews collected by completed analyses, by platform.",
		}, []string{"platform"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.started,
		s.completed,
		s.running,
		s.runtime,
		s.reviews,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageAnalysisStart:
			s.started.WithLabelValues(platformLabel(evt.Platform)).Inc()
			if s.tracker.start(evt.AnalysisID) {
				s.running.Inc()
			}
		case progress.StageAnalysisDone:
			s.finish(evt, "success")
			if evt.Reviews > 0 {
				s.reviews.WithLabelValues(platformLabel(evt.Platform)).Add(float64(evt.Reviews))
			}
		case progress.StageAnalysisError:
			s.finish(evt, "error")
		}
	}
	return nil
}

func (s *PrometheusSink) finish(evt progress.Event, result string) {
	s.completed.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.runtime.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	if s.tracker.complete(evt.AnalysisID) {
		s.running.Dec()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

func platformLabel(p string) string {
	if p == "" {
		return "unknown"
	}
	return p
}

type runTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[string]struct{})}
}

func (t *runTracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
