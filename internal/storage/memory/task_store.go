// Package memory provides in-memory storage for analysis tasks.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/review-analyzer/internal/analysis"
)

// CompletedMessage is the final message recorded on a successful analysis.
const CompletedMessage = "분석 완료!"

// TaskStore provides an in-memory task registry guarded by a RWMutex.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[string]analysis.Task
	clock analysis.Clock
}

// NewTaskStore constructs a TaskStore. A nil clock falls back to wall time.
func NewTaskStore(clock analysis.Clock) *TaskStore {
	if clock == nil {
		clock = wallClock{}
	}
	return &TaskStore{
		tasks: make(map[string]analysis.Task),
		clock: clock,
	}
}

// CreateTask stores a new task.
func (s *TaskStore) CreateTask(_ context.Context, task analysis.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[task.ID]; exists {
		return errors.New("task already exists")
	}
	now := s.clock.Now()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now
	s.tasks[task.ID] = task
	return nil
}

// GetTask fetches a task by ID.
func (s *TaskStore) GetTask(_ context.Context, id string) (analysis.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return analysis.Task{}, fmt.Errorf("%w: %s", analysis.ErrNotFound, id)
	}
	return task, nil
}

// UpdateProgress records a stage update. Progress never decreases while a task
// is running; a lower value keeps the previous one and only the message changes.
func (s *TaskStore) UpdateProgress(
	_ context.Context,
	id string,
	status analysis.Status,
	progress int,
	message string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, err := s.running(id)
	if err != nil {
		return err
	}
	if status.Terminal() || !task.Status.CanAdvanceTo(status) {
		return fmt.Errorf("%w: %s -> %s", analysis.ErrInvalidTransition, task.Status, status)
	}
	task.Status = status
	task.Progress = max(task.Progress, clampProgress(progress))
	task.Message = message
	task.UpdatedAt = s.clock.Now()
	s.tasks[id] = task
	return nil
}

// CompleteTask attaches the result and marks the task completed at 100%.
func (s *TaskStore) CompleteTask(_ context.Context, id string, result analysis.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, err := s.running(id)
	if err != nil {
		return err
	}
	res := result
	task.Status = analysis.StatusCompleted
	task.Progress = 100
	task.Message = CompletedMessage
	task.Result = &res
	task.UpdatedAt = s.clock.Now()
	s.tasks[id] = task
	return nil
}

// FailTask marks the task failed. Progress resets to 0.
func (s *TaskStore) FailTask(_ context.Context, id string, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, err := s.running(id)
	if err != nil {
		return err
	}
	task.Status = analysis.StatusError
	task.Progress = 0
	task.Message = message
	task.UpdatedAt = s.clock.Now()
	s.tasks[id] = task
	return nil
}

// EvictExpired drops terminal tasks whose last update is older than ttl.
func (s *TaskStore) EvictExpired(now time.Time, ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for id, task := range s.tasks {
		if task.Status.Terminal() && now.Sub(task.UpdatedAt) > ttl {
			delete(s.tasks, id)
			evicted++
		}
	}
	return evicted
}

// Len reports the number of tracked tasks.
func (s *TaskStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// running returns the task if it exists and is not terminal. Callers hold mu.
func (s *TaskStore) running(id string) (analysis.Task, error) {
	task, ok := s.tasks[id]
	if !ok {
		return analysis.Task{}, fmt.Errorf("%w: %s", analysis.ErrNotFound, id)
	}
	if task.Status.Terminal() {
		return analysis.Task{}, fmt.Errorf("%w: %s", analysis.ErrAlreadyTerminal, id)
	}
	return task, nil
}

func clampProgress(p int) int {
	return min(max(p, 0), 100)
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now().UTC() }
