package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"deepresearch/internal/async"
	"deepresearch/internal/logging"
	"deepresearch/internal/server/ports"
	id "deepresearch/internal/utils/id"
)

// TaskRunner executes the pipeline for a persisted task.
type TaskRunner interface {
	Run(ctx context.Context, taskID string) error
}

// ResearchService creates tasks, hands them to a detached runner and serves
// reads straight from the store.
type ResearchService struct {
	store  ports.TaskStore
	runner TaskRunner
	logger logging.Logger
	newID  func() string
	now    func() time.Time

	// cancelMu guards cancelFuncs and closing; wg.Add happens under it so
	// Shutdown never races a new run.
	cancelMu    sync.Mutex
	cancelFuncs map[string]context.CancelCauseFunc
	closing     bool
	wg          sync.WaitGroup
}

var _ ports.ResearchService = (*ResearchService)(nil)

// ServiceOption customizes the research service.
type ServiceOption func(*ResearchService)

// WithIDGenerator overrides task id generation.
func WithIDGenerator(gen func() string) ServiceOption {
	return func(s *ResearchService) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// WithServiceClock overrides the clock used for createdAt.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *ResearchService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewResearchService wires the service to its store and runner.
func NewResearchService(store ports.TaskStore, runner TaskRunner, opts ...ServiceOption) *ResearchService {
	s := &ResearchService{
		store:       store,
		runner:      runner,
		logger:      logging.NewComponentLogger("ResearchService"),
		newID:       id.NewTaskID,
		now:         time.Now,
		cancelFuncs: make(map[string]context.CancelCauseFunc),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateTask persists the initial snapshot and starts the pipeline in the
// background. It returns before any stage has completed.
func (s *ResearchService) CreateTask(ctx context.Context, goal string, mode ports.ResearchMode) (*ports.ResearchTask, error) {
	ctx, _ = id.EnsureLogID(ctx)
	logger := logging.FromContext(ctx, s.logger)

	if strings.TrimSpace(goal) == "" {
		return nil, fmt.Errorf("%w: goal is required", ports.ErrInvalidRequest)
	}
	mode, err := ports.ParseResearchMode(string(mode))
	if err != nil {
		return nil, err
	}

	if s.isClosing() {
		return nil, ports.ErrShuttingDown
	}

	taskID := s.newID()
	task := ports.NewResearchTask(taskID, goal, mode, s.now())
	if err := s.store.Save(ctx, task); err != nil {
		logger.Error("failed to save task %s: %v", taskID, err)
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	// Detached from the request so the task keeps running after the handler
	// returns; explicit cancellation flows through the stored cancel func.
	taskCtx, cancel := context.WithCancelCause(context.WithoutCancel(id.WithTaskID(ctx, taskID)))
	s.cancelMu.Lock()
	if s.closing {
		s.cancelMu.Unlock()
		cancel(ports.ErrTaskCancelled)
		s.recordFailure(taskID, ports.ErrTaskCancelled.Error())
		return nil, ports.ErrShuttingDown
	}
	s.cancelFuncs[taskID] = cancel
	s.wg.Add(1)
	s.cancelMu.Unlock()

	done := func() {
		s.release(taskID)
		s.wg.Done()
	}
	async.GoWithPanicHandler(logger, "research.run", func() {
		if err := s.runner.Run(taskCtx, taskID); err != nil {
			logger.Debug("task %s finished with error: %v", taskID, err)
		}
		done()
	}, func(perr *async.PanicError) {
		s.recordFailure(taskID, perr.Error())
		done()
	})

	logger.Info("task created: id=%s mode=%s", taskID, mode)
	return task, nil
}

// GetTask returns the latest snapshot.
func (s *ResearchService) GetTask(ctx context.Context, taskID string) (*ports.ResearchTask, error) {
	return s.store.Get(ctx, taskID)
}

// ListTasks returns summaries of every stored task, newest first.
func (s *ResearchService) ListTasks(ctx context.Context) ([]ports.TaskSummary, error) {
	tasks, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	summaries := make([]ports.TaskSummary, 0, len(tasks))
	for _, task := range tasks {
		summaries = append(summaries, ports.Summarize(task))
	}
	return summaries, nil
}

// DeleteTask stops a live run, if any, and removes the task.
func (s *ResearchService) DeleteTask(ctx context.Context, taskID string) error {
	if _, err := s.store.Get(ctx, taskID); err != nil {
		return err
	}
	s.cancelLive(taskID)
	return s.store.Delete(ctx, taskID)
}

// CancelTask asks a running task to stop. The pipeline notices between stages
// and questions and ends the task in status=error.
func (s *ResearchService) CancelTask(ctx context.Context, taskID string) error {
	task, err := s.store.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ports.ErrTaskFrozen, taskID, task.Status)
	}
	if s.cancelLive(taskID) {
		logging.FromContext(ctx, s.logger).Info("cancellation requested for %s", taskID)
		return nil
	}
	// No live run in this process, e.g. a task restored from a durable store.
	s.recordFailure(taskID, ports.ErrTaskCancelled.Error())
	return nil
}

// FailOrphanedTasks ends every running task that has no live run in this
// process. Used at startup with a durable store.
func (s *ResearchService) FailOrphanedTasks(ctx context.Context) (int, error) {
	tasks, err := s.store.List(ctx)
	if err != nil {
		return 0, err
	}
	failed := 0
	for _, task := range tasks {
		if task.Status.IsTerminal() || s.isLive(task.ID) {
			continue
		}
		s.recordFailure(task.ID, "research task interrupted by server restart")
		failed++
	}
	return failed, nil
}

// Shutdown cancels every live run and waits for them to record their final
// status, or for ctx to expire.
func (s *ResearchService) Shutdown(ctx context.Context) error {
	s.cancelMu.Lock()
	s.closing = true
	for _, cancel := range s.cancelFuncs {
		cancel(ports.ErrTaskCancelled)
	}
	s.cancelMu.Unlock()

	waited := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ResearchService) isClosing() bool {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	return s.closing
}

// Wait blocks until every background run has returned.
func (s *ResearchService) Wait() {
	s.wg.Wait()
}

func (s *ResearchService) cancelLive(taskID string) bool {
	s.cancelMu.Lock()
	cancel, ok := s.cancelFuncs[taskID]
	s.cancelMu.Unlock()
	if ok {
		cancel(ports.ErrTaskCancelled)
	}
	return ok
}

func (s *ResearchService) isLive(taskID string) bool {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	_, ok := s.cancelFuncs[taskID]
	return ok
}

func (s *ResearchService) release(taskID string) {
	s.cancelMu.Lock()
	cancel, ok := s.cancelFuncs[taskID]
	delete(s.cancelFuncs, taskID)
	s.cancelMu.Unlock()
	if ok {
		cancel(nil)
	}
}

func (s *ResearchService) recordFailure(taskID, message string) {
	err := s.store.Update(context.Background(), taskID, ports.TaskPatch{
		Status:       ports.StatusPtr(ports.TaskStatusError),
		ErrorMessage: ports.StringPtr(message),
	})
	if err != nil && !errors.Is(err, ports.ErrTaskFrozen) {
		s.logger.Error("failed to record failure for %s: %v", taskID, err)
	}
}
