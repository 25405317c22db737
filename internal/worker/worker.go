// Package worker implements the analysis pipeline execution loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/review-analyzer/internal/analysis"
	"github.com/JakeFAU/review-analyzer/internal/analyzer"
	"github.com/JakeFAU/review-analyzer/internal/metrics"
	"github.com/JakeFAU/review-analyzer/internal/platform"
	"github.com/JakeFAU/review-analyzer/internal/progress"
)

// ScraperSource resolves the scraper for a product URL.
type ScraperSource interface {
	ForURL(rawURL string) (platform.Scraper, error)
}

// Tracker registers the cancel handle of a running analysis. The returned
// func unregisters it.
type Tracker interface {
	Track(analysisID string, cancel context.CancelFunc) (release func())
}

// Config controls Worker behavior.
type Config struct {
	TopKeywords int
}

// Worker consumes queue items and executes the analysis pipeline.
type Worker struct {
	queue    analysis.Queue
	store    analysis.TaskStore
	browser  analysis.Browser
	scrapers ScraperSource
	scorer   analyzer.Scorer
	clock    analysis.Clock
	tracker  Tracker
	events   progress.Emitter
	cfg      Config
	logger   *zap.Logger
}

// New constructs a Worker. tracker and events may be nil.
func New(
	queue analysis.Queue,
	store analysis.TaskStore,
	browser analysis.Browser,
	scrapers ScraperSource,
	scorer analyzer.Scorer,
	clock analysis.Clock,
	tracker Tracker,
	events progress.Emitter,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if events == nil {
		events = progress.Nop{}
	}
	if cfg.TopKeywords <= 0 {
		cfg.TopKeywords = analyzer.DefaultTopKeywords
	}
	return &Worker{
		queue:    queue,
		store:    store,
		browser:  browser,
		scrapers: scrapers,
		scorer:   scorer,
		clock:    clock,
		tracker:  tracker,
		events:   events,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run blocks, consuming queue items until the context finishes or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, analysis.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued analysis", zap.String("analysis_id", job.AnalysisID))
		w.Process(ctx, job)
	}
}

// Process runs one analysis to a terminal state. Failures are recorded on the
// task and never returned.
func (w *Worker) Process(ctx context.Context, job analysis.Job) {
	logger := w.logger.With(zap.String("analysis_id", job.AnalysisID))
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	// Register before the status check so a concurrent cancel either sees the
	// handle or has already failed the task.
	if w.tracker != nil {
		release := w.tracker.Track(job.AnalysisID, cancel)
		defer release()
	}
	task, err := w.store.GetTask(ctx, job.AnalysisID)
	if err != nil {
		logger.Warn("analysis task lookup failed", zap.Error(err))
		return
	}
	if task.Status.Terminal() {
		logger.Info("skipping finished analysis", zap.String("status", string(task.Status)))
		return
	}

	tag, _ := platform.Detect(job.Request.URL)
	start := w.clock.Now()
	w.emit(progress.Event{
		AnalysisID: job.AnalysisID,
		Stage:      progress.StageAnalysisStart,
		Platform:   string(tag),
		Status:     string(analysis.StatusStarting),
	})

	// Terminal writes must land even when the run context is gone.
	storeCtx := context.WithoutCancel(ctx)
	result, err := w.pipeline(runCtx, job, logger)
	if err != nil {
		if runCtx.Err() != nil && ctx.Err() == nil {
			err = fmt.Errorf("%w: %w", analysis.ErrCanceled, err)
		}
		w.fail(storeCtx, job, tag, start, err, logger)
		return
	}
	if err := w.store.CompleteTask(storeCtx, job.AnalysisID, result); err != nil {
		logger.Error("complete analysis failed", zap.Error(err))
		return
	}
	w.emit(progress.Event{
		AnalysisID: job.AnalysisID,
		Stage:      progress.StageAnalysisDone,
		Platform:   string(tag),
		Status:     string(analysis.StatusCompleted),
		Progress:   100,
		Reviews:    len(result.RawReviews),
		Dur:        w.clock.Now().Sub(start),
	})
	logger.Info("analysis completed",
		zap.Int("reviews", len(result.RawReviews)),
		zap.Int("keywords", len(result.Keywords)),
		zap.Float64("score", result.Sentiment.Score),
	)
}

func (w *Worker) pipeline(ctx context.Context, job analysis.Job, logger *zap.Logger) (result analysis.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("analysis panicked", zap.Any("panic", r), zap.Stack("stack"))
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	id := job.AnalysisID
	scraper, err := w.scrapers.ForURL(job.Request.URL)
	if err != nil {
		return result, err
	}
	w.report(ctx, id, analysis.StatusCrawling, 5, "크롤러 초기화 중...")

	page, err := w.browser.NewPage(ctx)
	if err != nil {
		return result, fmt.Errorf("open browser session: %w", err)
	}
	metrics.IncBrowserSessions()
	defer func() {
		if cerr := page.Close(); cerr != nil {
			logger.Warn("close browser session failed", zap.Error(cerr))
		}
		metrics.DecBrowserSessions()
	}()

	if err := page.Navigate(ctx, job.Request.URL); err != nil {
		return result, fmt.Errorf("load product page: %w", err)
	}
	if err := checkpoint(ctx); err != nil {
		return result, err
	}

	w.report(ctx, id, analysis.StatusCrawling, 10, "상품 정보 수집 중...")
	info, err := scraper.FetchProductInfo(ctx, page)
	if err != nil {
		if cerr := checkpoint(ctx); cerr != nil {
			return result, cerr
		}
		logger.Warn("product info unavailable; using placeholder", zap.Error(err))
		metrics.ObserveProductInfoFallback(string(scraper.Platform()))
		info = platform.PlaceholderProductInfo()
	}

	w.report(ctx, id, analysis.StatusCrawling, 20, "리뷰 크롤링 시작...")
	reviews, err := scraper.CrawlReviews(ctx, page, job.Request.MaxReviews, func(p int, msg string) {
		metrics.ObserveReviewPage(job.Request.URL)
		w.emit(progress.Event{
			AnalysisID: id,
			Stage:      progress.StageReviewPage,
			Platform:   string(scraper.Platform()),
			Status:     string(analysis.StatusCrawling),
			Progress:   p,
			Note:       msg,
		})
		w.update(ctx, id, analysis.StatusCrawling, p, msg)
	})
	if err != nil {
		return result, err
	}
	if len(reviews) == 0 {
		return result, analysis.ErrEmptyReviewSet
	}
	logger.Info("reviews collected", zap.Int("count", len(reviews)), zap.Int("target", job.Request.MaxReviews))
	if err := checkpoint(ctx); err != nil {
		return result, err
	}

	w.report(ctx, id, analysis.StatusAnalyzing, 75, "AI 분석 중...")
	sentiment := analyzer.AnalyzeSentiment(reviews, w.scorer, func(p int, msg string) {
		w.update(ctx, id, analysis.StatusAnalyzing, p, msg)
	})
	if err := checkpoint(ctx); err != nil {
		return result, err
	}

	w.report(ctx, id, analysis.StatusAnalyzing, 90, "키워드 분석 중...")
	keywords := analyzer.ExtractKeywords(reviews, w.scorer, w.cfg.TopKeywords)
	if err := checkpoint(ctx); err != nil {
		return result, err
	}

	w.report(ctx, id, analysis.StatusAnalyzing, 95, "통계 생성 중...")
	stats := analyzer.BuildStatistics(reviews)

	return analysis.Result{
		ID:          id,
		ProductInfo: info,
		Statistics:  stats,
		Sentiment:   sentiment,
		Keywords:    keywords,
		RawReviews:  reviews,
		GeneratedAt: w.clock.Now(),
	}, nil
}

// report records a stage milestone on the task and the event stream.
func (w *Worker) report(ctx context.Context, id string, status analysis.Status, p int, msg string) {
	w.update(ctx, id, status, p, msg)
	w.emit(progress.Event{
		AnalysisID: id,
		Stage:      progress.StageProgress,
		Status:     string(status),
		Progress:   p,
		Note:       msg,
	})
}

func (w *Worker) update(ctx context.Context, id string, status analysis.Status, p int, msg string) {
	if err := w.store.UpdateProgress(context.WithoutCancel(ctx), id, status, p, msg); err != nil {
		w.logger.Debug("progress update rejected",
			zap.String("analysis_id", id),
			zap.Int("progress", p),
			zap.Error(err),
		)
	}
}

func (w *Worker) fail(
	ctx context.Context,
	job analysis.Job,
	tag analysis.Platform,
	start time.Time,
	cause error,
	logger *zap.Logger,
) {
	msg := analysis.FailureMessage(cause)
	if errors.Is(cause, analysis.ErrCanceled) {
		logger.Info("analysis canceled")
	} else {
		logger.Error("analysis failed", zap.Error(cause))
	}
	if err := w.store.FailTask(ctx, job.AnalysisID, msg); err != nil {
		logger.Warn("fail analysis status update", zap.Error(err))
	}
	w.emit(progress.Event{
		AnalysisID: job.AnalysisID,
		Stage:      progress.StageAnalysisError,
		Platform:   string(tag),
		Status:     string(analysis.StatusError),
		Dur:        w.clock.Now().Sub(start),
		Note:       msg,
	})
}

func (w *Worker) emit(evt progress.Event) {
	if evt.TS.IsZero() {
		evt.TS = w.clock.Now().UTC()
	}
	w.events.Emit(evt)
}

func checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("stage boundary: %w", err)
	}
	return nil
}
