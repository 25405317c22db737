// Package orchestrator registers analyses, hands them to the worker pool and
// answers status, result and cancel requests against the task store.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/review-analyzer/internal/analysis"
	"github.com/JakeFAU/review-analyzer/internal/platform"
)

// Task messages set outside the worker pipeline.
const (
	PendingMessage  = "분석 준비 중..."
	CanceledMessage = analysis.FailurePrefix + "사용자에 의해 취소되었습니다"
)

// DefaultAnalysisType is applied when a request omits analysis_type.
const DefaultAnalysisType = "basic"

const defaultEnqueueTimeout = 5 * time.Second

// ErrInvalidRequest means the analysis request failed validation.
var ErrInvalidRequest = errors.New("invalid analysis request")

// Enqueuer hands jobs to the worker pool.
type Enqueuer interface {
	Enqueue(ctx context.Context, job analysis.Job) error
}

// Config holds request defaults.
type Config struct {
	MaxReviewsDefault int
	EnqueueTimeout    time.Duration
}

// StatusView is the polling response for one analysis.
type StatusView struct {
	ID            string          `json:"id"`
	Status        analysis.Status `json:"status"`
	Progress      int             `json:"progress"`
	Message       string          `json:"message"`
	EstimatedTime *int            `json:"estimated_time,omitempty"`
}

// Orchestrator owns the analysis lifecycle outside the worker pipeline.
type Orchestrator struct {
	store  analysis.TaskStore
	queue  Enqueuer
	ids    analysis.IDGenerator
	clock  analysis.Clock
	cfg    Config
	logger *zap.Logger

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// New constructs an Orchestrator.
func New(
	store analysis.TaskStore,
	queue Enqueuer,
	ids analysis.IDGenerator,
	clock analysis.Clock,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxReviewsDefault <= 0 {
		cfg.MaxReviewsDefault = 100
	}
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = defaultEnqueueTimeout
	}
	return &Orchestrator{
		store:   store,
		queue:   queue,
		ids:     ids,
		clock:   clock,
		cfg:     cfg,
		logger:  logger,
		running: make(map[string]context.CancelFunc),
	}
}

// Start registers a new analysis and queues it. It returns as soon as the job
// is queued; the pipeline outcome is observed through Status.
func (o *Orchestrator) Start(ctx context.Context, req analysis.Request) (string, error) {
	req, err := o.normalize(req)
	if err != nil {
		return "", err
	}
	id, err := o.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("generate analysis id: %w", err)
	}
	now := o.clock.Now()
	task := analysis.Task{
		ID:        id,
		Status:    analysis.StatusStarting,
		Message:   PendingMessage,
		Request:   req,
		CreatedAt: now,
	}
	if err := o.store.CreateTask(ctx, task); err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}

	queueCtx, cancel := context.WithTimeout(ctx, o.cfg.EnqueueTimeout)
	defer cancel()
	if err := o.queue.Enqueue(queueCtx, analysis.Job{AnalysisID: id, Request: req, Submitted: now}); err != nil {
		err = fmt.Errorf("enqueue analysis: %w", err)
		if ferr := o.store.FailTask(context.WithoutCancel(ctx), id, analysis.FailureMessage(err)); ferr != nil {
			o.logger.Warn("fail unqueued analysis", zap.String("analysis_id", id), zap.Error(ferr))
		}
		return "", err
	}
	o.logger.Info("analysis queued",
		zap.String("analysis_id", id),
		zap.String("url", req.URL),
		zap.Int("max_reviews", req.MaxReviews),
	)
	return id, nil
}

// Status reports the task state with a remaining-time estimate while running.
func (o *Orchestrator) Status(ctx context.Context, id string) (StatusView, error) {
	task, err := o.store.GetTask(ctx, id)
	if err != nil {
		return StatusView{}, err
	}
	return StatusView{
		ID:            task.ID,
		Status:        task.Status,
		Progress:      task.Progress,
		Message:       task.Message,
		EstimatedTime: task.EstimateRemaining(o.clock.Now()),
	}, nil
}

// Result returns the stored result of a completed analysis.
func (o *Orchestrator) Result(ctx context.Context, id string) (analysis.Result, error) {
	task, err := o.store.GetTask(ctx, id)
	if err != nil {
		return analysis.Result{}, err
	}
	if task.Status != analysis.StatusCompleted || task.Result == nil {
		return analysis.Result{}, fmt.Errorf("%w: %s is %s", analysis.ErrNotReady, id, task.Status)
	}
	return *task.Result, nil
}

// Cancel stops an analysis. A running pipeline is interrupted at its next
// stage boundary; a queued one is failed immediately.
func (o *Orchestrator) Cancel(ctx context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	task, err := o.store.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if task.Status.Terminal() {
		return fmt.Errorf("%w: %s", analysis.ErrAlreadyTerminal, id)
	}
	if cancel, ok := o.running[id]; ok {
		cancel()
		o.logger.Info("analysis cancel requested", zap.String("analysis_id", id))
		return nil
	}
	// Holding mu keeps a worker from registering until the task is failed.
	if err := o.store.FailTask(ctx, id, CanceledMessage); err != nil {
		return fmt.Errorf("cancel queued analysis: %w", err)
	}
	o.logger.Info("queued analysis canceled", zap.String("analysis_id", id))
	return nil
}

// Track records the cancel handle of a running analysis and returns its release func.
func (o *Orchestrator) Track(id string, cancel context.CancelFunc) func() {
	o.mu.Lock()
	o.running[id] = cancel
	o.mu.Unlock()
	return func() {
		o.mu.Lock()
		delete(o.running, id)
		o.mu.Unlock()
	}
}

// Running reports how many analyses currently hold a cancel handle.
func (o *Orchestrator) Running() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.running)
}

func (o *Orchestrator) normalize(req analysis.Request) (analysis.Request, error) {
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		return req, fmt.Errorf("%w: url is required", ErrInvalidRequest)
	}
	if req.MaxReviews < 0 {
		return req, fmt.Errorf("%w: max_reviews must be positive", ErrInvalidRequest)
	}
	if _, err := platform.Detect(req.URL); err != nil {
		return req, err
	}
	if req.MaxReviews == 0 {
		req.MaxReviews = o.cfg.MaxReviewsDefault
	}
	if req.AnalysisType == "" {
		req.AnalysisType = DefaultAnalysisType
	}
	return req, nil
}
