package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/review-analyzer/internal/analysis"
	"github.com/JakeFAU/review-analyzer/internal/analyzer"
	"github.com/JakeFAU/review-analyzer/internal/platform"
	"github.com/JakeFAU/review-analyzer/internal/progress"
	queuememory "github.com/JakeFAU/review-analyzer/internal/queue/memory"
	"github.com/JakeFAU/review-analyzer/internal/storage/memory"
)

const productURL = "https://www.coupang.com/vp/products/123"

func TestWorker_Process_SuccessFlow(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &fakeScraper{
		info:    analysis.ProductInfo{Title: "무선 마우스", Rating: 4.5, ReviewCount: 2, Price: "19,900원"},
		reviews: sampleReviews(),
	})
	h.worker.Process(context.Background(), h.job)

	task := h.task(t)
	require.Equal(t, analysis.StatusCompleted, task.Status)
	require.Equal(t, 100, task.Progress)
	require.Equal(t, memory.CompletedMessage, task.Message)
	require.NotNil(t, task.Result)
	require.Equal(t, h.job.AnalysisID, task.Result.ID)
	require.Equal(t, "무선 마우스", task.Result.ProductInfo.Title)
	require.Equal(t, 2, task.Result.Statistics.TotalReviews)
	require.Len(t, task.Result.RawReviews, 2)
	require.NotEmpty(t, task.Result.Keywords)
	require.Equal(t, h.clock.Now(), task.Result.GeneratedAt)

	require.Equal(t, 1, h.page.closeCount())
	require.Equal(t, productURL, h.page.navigated)
	require.True(t, h.store.monotonic(), "progress history %v", h.store.history())
	require.Equal(t, []int{5, 10, 20, 70, 75, 75, 80, 90, 95}, h.store.history())

	stages := h.events.stages()
	require.Equal(t, progress.StageAnalysisStart, stages[0])
	require.Equal(t, progress.StageAnalysisDone, stages[len(stages)-1])
	require.Contains(t, stages, progress.StageReviewPage)
	require.Equal(t, 2, h.events.last().Reviews)
}

func TestWorker_Process_ProductInfoFallsBackToPlaceholder(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &fakeScraper{
		infoErr: analysis.ErrFieldExtraction,
		reviews: sampleReviews(),
	})
	h.worker.Process(context.Background(), h.job)

	task := h.task(t)
	require.Equal(t, analysis.StatusCompleted, task.Status)
	require.Equal(t, platform.PlaceholderProductInfo(), task.Result.ProductInfo)
}

func TestWorker_Process_EmptyReviewSetFails(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &fakeScraper{})
	h.worker.Process(context.Background(), h.job)

	task := h.task(t)
	require.Equal(t, analysis.StatusError, task.Status)
	require.Zero(t, task.Progress)
	require.True(t, strings.HasPrefix(task.Message, analysis.FailurePrefix))
	require.Contains(t, task.Message, analysis.ErrEmptyReviewSet.Error())
	require.Nil(t, task.Result)
	require.Equal(t, 1, h.page.closeCount())
	require.Equal(t, progress.StageAnalysisError, h.events.last().Stage)
}

func TestWorker_Process_BrowserFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &fakeScraper{reviews: sampleReviews()})
	h.browser.err = errors.New("chrome not found")
	h.worker.Process(context.Background(), h.job)

	task := h.task(t)
	require.Equal(t, analysis.StatusError, task.Status)
	require.Contains(t, task.Message, "chrome not found")
	require.Zero(t, h.page.closeCount())
}

func TestWorker_Process_NavigationFailureReleasesPage(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &fakeScraper{reviews: sampleReviews()})
	h.page.navErr = analysis.ErrPageFetch
	h.worker.Process(context.Background(), h.job)

	task := h.task(t)
	require.Equal(t, analysis.StatusError, task.Status)
	require.Contains(t, task.Message, "load product page")
	require.Equal(t, 1, h.page.closeCount())
}

func TestWorker_Process_RecoversPanics(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &fakeScraper{panicOnCrawl: true})
	require.NotPanics(t, func() { h.worker.Process(context.Background(), h.job) })

	task := h.task(t)
	require.Equal(t, analysis.StatusError, task.Status)
	require.Contains(t, task.Message, "panic: selector exploded")
	require.Equal(t, 1, h.page.closeCount())
}

func TestWorker_Process_CancelViaTracker(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	h := newHarness(t, &fakeScraper{blockCrawl: started})

	done := make(chan struct{})
	go func() {
		h.worker.Process(context.Background(), h.job)
		close(done)
	}()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("crawl did not start")
	}
	require.True(t, h.tracker.cancel(h.job.AnalysisID))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}

	task := h.task(t)
	require.Equal(t, analysis.StatusError, task.Status)
	require.Contains(t, task.Message, analysis.ErrCanceled.Error())
	require.Equal(t, 1, h.page.closeCount())
	require.False(t, h.tracker.tracked(h.job.AnalysisID), "handle released")
}

func TestWorker_Process_SkipsTerminalTask(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &fakeScraper{reviews: sampleReviews()})
	require.NoError(t, h.store.FailTask(context.Background(), h.job.AnalysisID, "canceled"))

	h.worker.Process(context.Background(), h.job)

	require.Zero(t, h.browser.opened())
	task := h.task(t)
	require.Equal(t, "canceled", task.Message)
}

func TestWorker_RunConsumesQueueUntilClosed(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &fakeScraper{reviews: sampleReviews()})
	queue := queuememory.NewQueue(1)
	h.worker.queue = queue
	require.NoError(t, queue.Enqueue(context.Background(), h.job))

	done := make(chan struct{})
	go func() {
		h.worker.Run(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool {
		return h.task(t).Status == analysis.StatusCompleted
	}, time.Second, 10*time.Millisecond)

	queue.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after queue close")
	}
}

type harness struct {
	worker  *Worker
	store   *recordingStore
	browser *fakeBrowser
	page    *fakePage
	tracker *fakeTracker
	events  *recordingEmitter
	clock   *fakeClock
	job     analysis.Job
}

func newHarness(t *testing.T, scraper *fakeScraper) *harness {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	store := &recordingStore{TaskStore: memory.NewTaskStore(clock)}
	job := analysis.Job{
		AnalysisID: "analysis_test",
		Request:    analysis.Request{URL: productURL, MaxReviews: 2, AnalysisType: "basic"},
		Submitted:  clock.Now(),
	}
	require.NoError(t, store.CreateTask(context.Background(), analysis.Task{
		ID:      job.AnalysisID,
		Status:  analysis.StatusStarting,
		Message: "분석 준비 중...",
		Request: job.Request,
	}))
	page := &fakePage{}
	browser := &fakeBrowser{page: page}
	tracker := newFakeTracker()
	events := &recordingEmitter{}
	w := New(
		queuememory.NewQueue(1),
		store,
		browser,
		fakeSource{scraper: scraper},
		analyzer.NewLexiconScorer(analyzer.DefaultLexicon()),
		clock,
		tracker,
		events,
		Config{TopKeywords: 5},
		zap.NewNop(),
	)
	return &harness{
		worker:  w,
		store:   store,
		browser: browser,
		page:    page,
		tracker: tracker,
		events:  events,
		clock:   clock,
		job:     job,
	}
}

func (h *harness) task(t *testing.T) analysis.Task {
	t.Helper()
	task, err := h.store.GetTask(context.Background(), h.job.AnalysisID)
	require.NoError(t, err)
	return task
}

func sampleReviews() []analysis.Review {
	return []analysis.Review{
		{ID: "review_0", Rating: 5, Text: "배송 빠르고 좋아요", Date: "2024.01.01", Platform: analysis.PlatformCoupang},
		{ID: "review_1", Rating: 1, Text: "별로예요 불량", Date: "2024.01.02", Platform: analysis.PlatformCoupang},
	}
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type recordingStore struct {
	*memory.TaskStore
	mu       sync.Mutex
	progress []int
}

func (s *recordingStore) UpdateProgress(
	ctx context.Context,
	id string,
	status analysis.Status,
	p int,
	msg string,
) error {
	if err := s.TaskStore.UpdateProgress(ctx, id, status, p, msg); err != nil {
		return err
	}
	task, err := s.GetTask(ctx, id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.progress = append(s.progress, task.Progress)
	s.mu.Unlock()
	return nil
}

func (s *recordingStore) history() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.progress...)
}

func (s *recordingStore) monotonic() bool {
	h := s.history()
	for i := 1; i < len(h); i++ {
		if h[i] < h[i-1] {
			return false
		}
	}
	return true
}

type fakeBrowser struct {
	mu    sync.Mutex
	page  *fakePage
	err   error
	count int
}

func (b *fakeBrowser) NewPage(context.Context) (analysis.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	b.count++
	return b.page, nil
}

func (b *fakeBrowser) opened() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

type fakePage struct {
	mu        sync.Mutex
	navErr    error
	navigated string
	closes    int
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigated = url
	return p.navErr
}

func (p *fakePage) Snapshot(context.Context) (string, error) { return "<html></html>", nil }

func (p *fakePage) Click(context.Context, analysis.Locator) error { return nil }

func (p *fakePage) WaitClickable(context.Context, analysis.Locator, time.Duration) error {
	return nil
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closes++
	return nil
}

func (p *fakePage) closeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closes
}

type fakeScraper struct {
	info         analysis.ProductInfo
	infoErr      error
	reviews      []analysis.Review
	panicOnCrawl bool
	blockCrawl   chan struct{}
}

func (f *fakeScraper) Platform() analysis.Platform { return analysis.PlatformCoupang }

func (f *fakeScraper) FetchProductInfo(context.Context, analysis.Page) (analysis.ProductInfo, error) {
	return f.info, f.infoErr
}

func (f *fakeScraper) CrawlReviews(
	ctx context.Context,
	_ analysis.Page,
	maxReviews int,
	report analysis.ProgressFunc,
) ([]analysis.Review, error) {
	if f.panicOnCrawl {
		panic("selector exploded")
	}
	if f.blockCrawl != nil {
		close(f.blockCrawl)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if len(f.reviews) > 0 {
		report(70, "리뷰 수집 중... (2/2)")
	}
	return f.reviews[:min(len(f.reviews), maxReviews)], nil
}

type fakeSource struct {
	scraper platform.Scraper
}

func (f fakeSource) ForURL(string) (platform.Scraper, error) { return f.scraper, nil }

type fakeTracker struct {
	mu      sync.Mutex
	handles map[string]context.CancelFunc
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{handles: make(map[string]context.CancelFunc)}
}

func (f *fakeTracker) Track(id string, cancel context.CancelFunc) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handles[id] = cancel
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.handles, id)
	}
}

func (f *fakeTracker) cancel(id string) bool {
	f.mu.Lock()
	cancel, ok := f.handles[id]
	f.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (f *fakeTracker) tracked(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.handles[id]
	return ok
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) stages() []progress.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]progress.Stage, 0, len(r.events))
	for _, evt := range r.events {
		out = append(out, evt.Stage)
	}
	return out
}

func (r *recordingEmitter) last() progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}
