package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/review-analyzer/internal/analysis"
	"github.com/JakeFAU/review-analyzer/internal/config"
)

func testConfig() config.Config {
	return config.Config{
		Server:   config.ServerConfig{Port: 0, RequestTimeoutSeconds: 5},
		Analyzer: config.AnalyzerConfig{Workers: 2, QueueDepth: 4, MaxReviewsDefault: 10, TopKeywords: 5},
		Browser: config.BrowserConfig{
			Driver:            config.DriverStatic,
			MaxParallel:       1,
			NavTimeoutSeconds: 1,
		},
	}
}

func TestBuildWiresHandlerAndOrchestrator(t *testing.T) {
	t.Parallel()

	app, err := Build(testConfig(), zap.NewNop(), prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, app.Close(context.Background())) })

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	_, err = app.Orchestrator().Start(context.Background(), analysis.Request{URL: "https://shop.example.com/p/1"})
	require.ErrorIs(t, err, analysis.ErrUnsupportedPlatform)

	id, err := app.Orchestrator().Start(context.Background(), analysis.Request{URL: "https://www.coupang.com/vp/products/1"})
	require.NoError(t, err)
	require.Contains(t, id, "analysis_")
}

func TestBuildRejectsUnknownDriver(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Browser.Driver = "firefox"
	_, err := Build(cfg, nil, prometheus.NewRegistry())
	require.ErrorContains(t, err, "browser init failed")
}

func TestBuildLoadsCustomLexicon(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	good := filepath.Join(dir, "lexicon.yaml")
	require.NoError(t, os.WriteFile(good, []byte("terms:\n  좋: 0.5\nnegators: [안]\n"), 0o600))

	cfg := testConfig()
	cfg.Sentiment.LexiconPath = good
	app, err := Build(cfg, zap.NewNop(), prometheus.NewRegistry())
	require.NoError(t, err)
	require.NoError(t, app.Close(context.Background()))

	cfg.Sentiment.LexiconPath = filepath.Join(dir, "missing.yaml")
	_, err = Build(cfg, zap.NewNop(), prometheus.NewRegistry())
	require.ErrorContains(t, err, "lexicon init failed")
}

func TestBuildFailsOnDuplicateMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	app, err := Build(testConfig(), zap.NewNop(), reg)
	require.NoError(t, err)
	defer func() { _ = app.Close(context.Background()) }()

	_, err = Build(testConfig(), zap.NewNop(), reg)
	require.ErrorContains(t, err, "progress metrics init failed")
}

func TestServeStopsOnCancel(t *testing.T) {
	t.Parallel()

	app, err := Build(testConfig(), zap.NewNop(), prometheus.NewRegistry())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
	require.NoError(t, app.Close(context.Background()))
}
