package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/review-analyzer/internal/analysis"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestTaskStoreLifecycle(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1000, 0)}
	store := NewTaskStore(clock)
	ctx := context.Background()
	task := analysis.Task{ID: "analysis-1", Status: analysis.StatusStarting, Message: "분석 준비 중..."}

	require.NoError(t, store.CreateTask(ctx, task))
	require.Error(t, store.CreateTask(ctx, task), "duplicate ids must be rejected")

	require.NoError(t, store.UpdateProgress(ctx, task.ID, analysis.StatusCrawling, 20, "리뷰 크롤링 시작..."))
	require.NoError(t, store.UpdateProgress(ctx, task.ID, analysis.StatusCrawling, 10, "stale"))
	got, err := store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, 20, got.Progress, "progress must not decrease")
	require.Equal(t, "stale", got.Message)

	err = store.UpdateProgress(ctx, task.ID, analysis.StatusStarting, 30, "backwards")
	require.ErrorIs(t, err, analysis.ErrInvalidTransition)

	require.NoError(t, store.UpdateProgress(ctx, task.ID, analysis.StatusAnalyzing, 75, "AI 분석 중..."))
	require.NoError(t, store.CompleteTask(ctx, task.ID, analysis.Result{ID: task.ID}))

	final, err := store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, analysis.StatusCompleted, final.Status)
	require.Equal(t, 100, final.Progress)
	require.Equal(t, CompletedMessage, final.Message)
	require.NotNil(t, final.Result)
	require.Equal(t, time.Unix(1000, 0), final.CreatedAt)

	require.ErrorIs(t, store.FailTask(ctx, task.ID, "late"), analysis.ErrAlreadyTerminal)
	require.ErrorIs(t,
		store.UpdateProgress(ctx, task.ID, analysis.StatusAnalyzing, 99, "late"),
		analysis.ErrAlreadyTerminal,
	)
}

func TestTaskStoreFailResetsProgress(t *testing.T) {
	t.Parallel()

	store := NewTaskStore(nil)
	ctx := context.Background()
	require.NoError(t, store.CreateTask(ctx, analysis.Task{ID: "a", Status: analysis.StatusStarting}))
	require.NoError(t, store.UpdateProgress(ctx, "a", analysis.StatusCrawling, 55, "page 3"))
	require.NoError(t, store.FailTask(ctx, "a", "분석 중 오류가 발생했습니다: boom"))

	got, err := store.GetTask(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, analysis.StatusError, got.Status)
	require.Zero(t, got.Progress)
	require.Nil(t, got.Result)
}

func TestTaskStoreNotFound(t *testing.T) {
	t.Parallel()

	store := NewTaskStore(nil)
	ctx := context.Background()
	_, err := store.GetTask(ctx, "missing")
	require.ErrorIs(t, err, analysis.ErrNotFound)
	require.ErrorIs(t, store.UpdateProgress(ctx, "missing", analysis.StatusCrawling, 5, ""), analysis.ErrNotFound)
	require.ErrorIs(t, store.CompleteTask(ctx, "missing", analysis.Result{}), analysis.ErrNotFound)
}

func TestTaskStoreClampsProgress(t *testing.T) {
	t.Parallel()

	store := NewTaskStore(nil)
	ctx := context.Background()
	require.NoError(t, store.CreateTask(ctx, analysis.Task{ID: "a", Status: analysis.StatusStarting}))
	require.NoError(t, store.UpdateProgress(ctx, "a", analysis.StatusCrawling, 250, "overflow"))
	got, err := store.GetTask(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, 100, got.Progress)
}

func TestJanitorEvictsOnlyExpiredTerminalTasks(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(0, 0)}
	store := NewTaskStore(clock)
	ctx := context.Background()
	require.NoError(t, store.CreateTask(ctx, analysis.Task{ID: "done", Status: analysis.StatusStarting}))
	require.NoError(t, store.CreateTask(ctx, analysis.Task{ID: "running", Status: analysis.StatusStarting}))
	require.NoError(t, store.FailTask(ctx, "done", "boom"))

	janitor := NewJanitor(store, clock, time.Minute, time.Hour, zap.NewNop())
	require.Zero(t, janitor.Sweep())

	clock.Advance(2 * time.Hour)
	require.Equal(t, 1, janitor.Sweep())

	_, err := store.GetTask(ctx, "done")
	require.ErrorIs(t, err, analysis.ErrNotFound)
	_, err = store.GetTask(ctx, "running")
	require.NoError(t, err)
	require.Equal(t, 1, store.Len())
}

func TestJanitorRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	janitor := NewJanitor(NewTaskStore(nil), nil, 0, 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		janitor.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
