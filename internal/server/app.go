// Package server builds the analyzer's dependency graph and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/review-analyzer/internal/analyzer"
	"github.com/JakeFAU/review-analyzer/internal/api"
	"github.com/JakeFAU/review-analyzer/internal/browser"
	"github.com/JakeFAU/review-analyzer/internal/clock/system"
	"github.com/JakeFAU/review-analyzer/internal/config"
	"github.com/JakeFAU/review-analyzer/internal/dispatcher"
	"github.com/JakeFAU/review-analyzer/internal/hash/sha256"
	"github.com/JakeFAU/review-analyzer/internal/id/uuid"
	"github.com/JakeFAU/review-analyzer/internal/orchestrator"
	"github.com/JakeFAU/review-analyzer/internal/platform"
	"github.com/JakeFAU/review-analyzer/internal/policy/ratelimit"
	"github.com/JakeFAU/review-analyzer/internal/progress"
	progresssinks "github.com/JakeFAU/review-analyzer/internal/progress/sinks"
	queueMemory "github.com/JakeFAU/review-analyzer/internal/queue/memory"
	memoryStorage "github.com/JakeFAU/review-analyzer/internal/storage/memory"
	"github.com/JakeFAU/review-analyzer/internal/worker"
)

const shutdownTimeout = 10 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	store     *memoryStorage.TaskStore
	janitor   *memoryStorage.Janitor
	queue     *queueMemory.Queue
	browser   browser.Driver
	hub       *progress.Hub
	orch      *orchestrator.Orchestrator
	dispatch  *dispatcher.Dispatcher
	apiServer *api.Server
}

// Build creates the application's dependencies. A nil registerer selects the
// Prometheus default registry served on /metrics.
func Build(cfg config.Config, logger *zap.Logger, reg prometheus.Registerer) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.Int("workers", cfg.Analyzer.Workers),
		zap.String("browser_driver", cfg.Browser.Driver),
	)

	app := &App{cfg: cfg, logger: logger}
	clock := system.New()

	app.store = memoryStorage.NewTaskStore(clock)
	app.janitor = memoryStorage.NewJanitor(app.store, clock, cfg.JanitorInterval(), cfg.ResultTTL(), logger.Named("janitor"))
	app.queue = queueMemory.NewQueue(cfg.Analyzer.QueueDepth)

	drv, err := browser.New(browser.Config{
		Driver:            cfg.Browser.Driver,
		Headless:          cfg.Browser.Headless,
		UserAgent:         cfg.Browser.UserAgent,
		MaxParallel:       cfg.Browser.MaxParallel,
		NavigationTimeout: cfg.NavTimeout(),
	}, logger.Named("browser"))
	if err != nil {
		return nil, fmt.Errorf("browser init failed: %w", err)
	}
	app.browser = browser.Throttle(drv, ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Browser.RateLimitRPS,
		DefaultBurst: cfg.Browser.RateLimitBurst,
	}))

	scorer, err := buildScorer(cfg.Sentiment.LexiconPath, logger)
	if err != nil {
		drv.Close()
		return nil, err
	}

	app.hub, err = buildProgress(reg, logger)
	if err != nil {
		drv.Close()
		return nil, err
	}

	registry := platform.NewRegistry(platform.Options{
		WaitTimeout: cfg.WaitTimeout(),
		Settle:      cfg.Settle(),
		Hasher:      sha256.New(),
		Logger:      logger.Named("platform"),
	})

	app.dispatch = dispatcher.New(app.queue, nil)
	app.orch = orchestrator.New(
		app.store,
		app.dispatch,
		uuid.New(),
		clock,
		orchestrator.Config{MaxReviewsDefault: cfg.Analyzer.MaxReviewsDefault},
		logger.Named("orchestrator"),
	)
	for i := 0; i < cfg.Analyzer.Workers; i++ {
		app.dispatch.Add(worker.New(
			app.queue,
			app.store,
			app.browser,
			registry,
			scorer,
			clock,
			app.orch,
			app.hub,
			worker.Config{TopKeywords: cfg.Analyzer.TopKeywords},
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}

	app.apiServer = api.NewServer(app.orch, cfg, logger)
	return app, nil
}

func buildScorer(lexiconPath string, logger *zap.Logger) (analyzer.Scorer, error) {
	if lexiconPath == "" {
		return analyzer.NewLexiconScorer(analyzer.DefaultLexicon()), nil
	}
	lex, err := analyzer.LoadLexicon(lexiconPath)
	if err != nil {
		return nil, fmt.Errorf("lexicon init failed: %w", err)
	}
	logger.Info("using custom sentiment lexicon",
		zap.String("path", lexiconPath),
		zap.Int("terms", len(lex.Terms)),
	)
	return analyzer.NewLexiconScorer(lex), nil
}

func buildProgress(reg prometheus.Registerer, logger *zap.Logger) (*progress.Hub, error) {
	promSink, err := progresssinks.NewPrometheusSink(reg)
	if err != nil {
		return nil, fmt.Errorf("progress metrics init failed: %w", err)
	}
	hub := progress.NewHub(
		progress.Config{Logger: logger.Named("progress_hub")},
		progresssinks.NewLogSink(logger.Named("progress_log")),
		promSink,
	)
	return hub, nil
}

// Orchestrator exposes the analysis lifecycle for in-process callers.
func (a *App) Orchestrator() *orchestrator.Orchestrator {
	return a.orch
}

// Handler returns the HTTP handler tree.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// RunWorkers runs the worker pool and the janitor until ctx is done.
func (a *App) RunWorkers(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("dispatcher started", zap.Int("workers", a.cfg.Analyzer.Workers))
		a.dispatch.Run(gctx)
		return nil
	})
	g.Go(func() error {
		a.janitor.Run(gctx)
		return nil
	})
	_ = g.Wait()
}

// Serve runs the HTTP server alongside the worker pool and blocks until ctx
// is canceled or the listener fails.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.RunWorkers(gctx)
		return nil
	})
	g.Go(func() error {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("server shutdown error", zap.Error(err))
		}
		return nil
	})
	return g.Wait()
}

// Close releases the queue, the progress hub and the browser.
func (a *App) Close(ctx context.Context) error {
	a.queue.Close()
	var errs []error
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("progress hub close: %w", err))
		}
	}
	if a.browser != nil {
		a.browser.Close()
	}
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}
