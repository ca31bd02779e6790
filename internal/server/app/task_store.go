package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"deepresearch/internal/server/ports"
)

// InMemoryTaskStore implements TaskStore with immutable in-memory snapshots.
// Writers clone the current snapshot, merge into the clone and swap it in, so
// a reader never observes a half-applied write.
type InMemoryTaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*ports.ResearchTask
	now   func() time.Time
}

// TaskStoreOption customizes a task store.
type TaskStoreOption func(*taskStoreOptions)

type taskStoreOptions struct {
	now func() time.Time
}

// WithStoreClock overrides the clock used to stamp updatedAt/completedAt.
func WithStoreClock(now func() time.Time) TaskStoreOption {
	return func(o *taskStoreOptions) {
		if now != nil {
			o.now = now
		}
	}
}

func resolveStoreOptions(opts []TaskStoreOption) taskStoreOptions {
	options := taskStoreOptions{now: time.Now}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// NewInMemoryTaskStore creates a new in-memory task store
func NewInMemoryTaskStore(opts ...TaskStoreOption) *InMemoryTaskStore {
	options := resolveStoreOptions(opts)
	return &InMemoryTaskStore{
		tasks: make(map[string]*ports.ResearchTask),
		now:   options.now,
	}
}

// Save inserts or replaces a snapshot.
func (s *InMemoryTaskStore) Save(_ context.Context, task *ports.ResearchTask) error {
	if err := validateSnapshot(task); err != nil {
		return err
	}
	snapshot := task.Clone()

	s.mu.Lock()
	s.tasks[snapshot.ID] = snapshot
	s.mu.Unlock()
	return nil
}

// Get retrieves a copy of the latest snapshot.
func (s *InMemoryTaskStore) Get(_ context.Context, taskID string) (*ports.ResearchTask, error) {
	s.mu.RLock()
	snapshot, exists := s.tasks[taskID]
	s.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ports.ErrTaskNotFound, taskID)
	}
	// Stored snapshots are never mutated in place, so cloning outside the lock is safe.
	return snapshot.Clone(), nil
}

// Update merges patch into the stored snapshot.
func (s *InMemoryTaskStore) Update(_ context.Context, taskID string, patch ports.TaskPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.tasks[taskID]
	if !exists {
		return nil
	}
	if patch.IsEmpty() {
		return nil
	}
	if current.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ports.ErrTaskFrozen, taskID, current.Status)
	}

	next := current.Clone()
	patch.Apply(next, s.now())
	s.tasks[taskID] = next
	return nil
}

// Delete removes a task.
func (s *InMemoryTaskStore) Delete(_ context.Context, taskID string) error {
	s.mu.Lock()
	delete(s.tasks, taskID)
	s.mu.Unlock()
	return nil
}

// List returns copies of every snapshot, newest first.
func (s *InMemoryTaskStore) List(_ context.Context) ([]*ports.ResearchTask, error) {
	s.mu.RLock()
	snapshots := make([]*ports.ResearchTask, 0, len(s.tasks))
	for _, task := range s.tasks {
		snapshots = append(snapshots, task)
	}
	s.mu.RUnlock()

	out := make([]*ports.ResearchTask, len(snapshots))
	for i, snapshot := range snapshots {
		out[i] = snapshot.Clone()
	}
	sortNewestFirst(out)
	return out, nil
}

func validateSnapshot(task *ports.ResearchTask) error {
	if task == nil {
		return fmt.Errorf("%w: task is nil", ports.ErrInvalidRequest)
	}
	if strings.TrimSpace(task.ID) == "" {
		return fmt.Errorf("%w: task id is required", ports.ErrInvalidRequest)
	}
	return nil
}

func sortNewestFirst(tasks []*ports.ResearchTask) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID > tasks[j].ID
		}
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
}
