package analysis

import (
	"context"
	"time"
)

// TaskStore persists analysis tasks. Implementations keep progress monotonic
// and refuse to move a task backwards through its lifecycle.
type TaskStore interface {
	CreateTask(ctx context.Context, task Task) error
	GetTask(ctx context.Context, id string) (Task, error)
	UpdateProgress(ctx context.Context, id string, status Status, progress int, message string) error
	CompleteTask(ctx context.Context, id string, result Result) error
	FailTask(ctx context.Context, id string, message string) error
}

// Queue provides enqueue/dequeue semantics for analysis jobs.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Dequeue(ctx context.Context) (Job, error)
}

// Browser opens isolated page sessions.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
}

// Page is a single browser session driven by the scrapers. Close releases the
// underlying resources and is safe to call more than once.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Snapshot(ctx context.Context) (string, error)
	Click(ctx context.Context, loc Locator) error
	WaitClickable(ctx context.Context, loc Locator, timeout time.Duration) error
	Close() error
}

// Hasher computes content digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces analysis IDs.
type IDGenerator interface {
	NewID() (string, error)
}
