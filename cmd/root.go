// Package cmd defines the CLI commands for the review analyzer executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/review-analyzer/internal/analysis"
	"github.com/JakeFAU/review-analyzer/internal/config"
	"github.com/JakeFAU/review-analyzer/internal/logging"
	"github.com/JakeFAU/review-analyzer/internal/orchestrator"
	"github.com/JakeFAU/review-analyzer/internal/server"
)

const closeTimeout = 10 * time.Second

// Analyses is the lifecycle surface the analyze command drives.
type Analyses interface {
	Start(ctx context.Context, req analysis.Request) (string, error)
	Status(ctx context.Context, id string) (orchestrator.StatusView, error)
	Result(ctx context.Context, id string) (analysis.Result, error)
}

// App defines the application interface that commands will use.
// Tests inject a fake through newApp.
type App interface {
	Serve(ctx context.Context) error
	RunWorkers(ctx context.Context)
	Analyses() Analyses
	Logger() *zap.Logger
	Close(ctx context.Context) error
}

type appKeyType string

const appKey appKeyType = "app"

type serverApp struct {
	*server.App
	logger *zap.Logger
}

func (a serverApp) Analyses() Analyses {
	return a.Orchestrator()
}

func (a serverApp) Logger() *zap.Logger {
	return a.logger
}

// newApp is the application factory. It is a variable so tests can replace it.
var newApp = func(_ context.Context, cfgPath string, overrides func(*config.Config)) (App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if overrides != nil {
		overrides(&cfg)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)

	app, err := server.Build(cfg, logger, nil)
	if err != nil {
		return nil, err
	}
	return serverApp{App: app, logger: logger}, nil
}

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	var cfgFile string
	var port int

	cmd := &cobra.Command{
		Use:   "review-analyzer",
		Short: "Collects and analyzes marketplace product reviews.",
		Long: `review-analyzer walks the review listing of a product page with a
browser session, scores every review for sentiment, ranks Korean keywords
and builds rating statistics. Run it as an HTTP service or analyze a single
URL from the command line.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			overrides := func(cfg *config.Config) {
				if cmd.Flags().Changed("port") {
					cfg.Server.Port = port
				}
			}
			appInstance, err := newApp(cmd.Context(), cfgFile, overrides)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, JSON or TOML)")
	cmd.PersistentFlags().IntVar(&port, "port", 0, "HTTP port, overrides server.port")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newAnalyzeCmd())
	return cmd
}

// withApp runs fn against the application built by the root command and
// closes the application afterwards, whether fn fails or not.
func withApp(cmd *cobra.Command, fn func(App) error) error {
	appInstance, ok := cmd.Context().Value(appKey).(App)
	if !ok || appInstance == nil {
		return errors.New("application services not initialized")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), closeTimeout)
		defer cancel()
		if err := appInstance.Close(ctx); err != nil {
			appInstance.Logger().Warn("close application", zap.Error(err))
		}
	}()
	return fn(appInstance)
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
