package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/review-analyzer/internal/analysis"
)

const defaultPollInterval = 500 * time.Millisecond

type analyzeOptions struct {
	maxReviews   int
	analysisType string
	interval     time.Duration
	output       string
}

func newAnalyzeCmd() *cobra.Command {
	opts := &analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze <product-url>",
		Short: "Analyzes the reviews of one product and prints the result",
		Long: `Runs a single analysis in-process, reports progress on stderr and
writes the result as JSON to stdout or the file named by --output.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(appInstance App) error {
				return runAnalyzeCommand(cmd, appInstance, args[0], opts)
			})
		},
	}
	cmd.Flags().IntVarP(&opts.maxReviews, "max-reviews", "n", 0, "number of reviews to collect (default from config)")
	cmd.Flags().StringVar(&opts.analysisType, "type", "", "analysis type label")
	cmd.Flags().DurationVar(&opts.interval, "interval", defaultPollInterval, "status polling interval")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "write the result to this file instead of stdout")
	return cmd
}

func runAnalyzeCommand(cmd *cobra.Command, appInstance App, rawURL string, opts *analyzeOptions) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		appInstance.RunWorkers(ctx)
	}()
	defer func() {
		cancel()
		<-workersDone
	}()

	svc := appInstance.Analyses()
	id, err := svc.Start(ctx, analysis.Request{
		URL:          rawURL,
		MaxReviews:   opts.maxReviews,
		AnalysisType: opts.analysisType,
	})
	if err != nil {
		return fmt.Errorf("start analysis: %w", err)
	}
	appInstance.Logger().Info("analysis started", zap.String("analysis_id", id), zap.String("url", rawURL))

	if err := waitForAnalysis(ctx, svc, id, opts.interval, cmd); err != nil {
		return err
	}
	result, err := svc.Result(ctx, id)
	if err != nil {
		return fmt.Errorf("fetch result: %w", err)
	}
	return writeResult(cmd, opts.output, result)
}

func waitForAnalysis(ctx context.Context, svc Analyses, id string, interval time.Duration, cmd *cobra.Command) error {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	lastProgress := -1
	for {
		view, err := svc.Status(ctx, id)
		if err != nil {
			return fmt.Errorf("poll status: %w", err)
		}
		if view.Progress != lastProgress {
			fmt.Fprintf(cmd.ErrOrStderr(), "[%3d%%] %s\n", view.Progress, view.Message)
			lastProgress = view.Progress
		}
		switch view.Status {
		case analysis.StatusCompleted:
			return nil
		case analysis.StatusError:
			return errors.New(view.Message)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for analysis: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func writeResult(cmd *cobra.Command, path string, result analysis.Result) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	data = append(data, '\n')
	if path == "" {
		if _, err := cmd.OutOrStdout().Write(data); err != nil {
			return fmt.Errorf("write result: %w", err)
		}
		return nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write result file: %w", err)
	}
	return nil
}
