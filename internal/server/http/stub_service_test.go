package http

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"deepresearch/internal/server/ports"
)

// stubService is a scripted ports.ResearchService.
type stubService struct {
	mu        sync.Mutex
	tasks     map[string]*ports.ResearchTask
	createErr error
	listErr   error
	reads     int
	created   []string
	cancelled []string
}

func newStubService(tasks ...*ports.ResearchTask) *stubService {
	s := &stubService{tasks: make(map[string]*ports.ResearchTask)}
	for _, task := range tasks {
		s.tasks[task.ID] = task
	}
	return s
}

func (s *stubService) CreateTask(_ context.Context, goal string, mode ports.ResearchMode) (*ports.ResearchTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return nil, s.createErr
	}
	if goal == "" {
		return nil, fmt.Errorf("%w: goal is required", ports.ErrInvalidRequest)
	}
	mode, err := ports.ParseResearchMode(string(mode))
	if err != nil {
		return nil, err
	}
	task := ports.NewResearchTask(fmt.Sprintf("research-%d", len(s.created)+1), goal, mode, time.Now())
	s.tasks[task.ID] = task
	s.created = append(s.created, task.ID)
	return task.Clone(), nil
}

func (s *stubService) GetTask(_ context.Context, taskID string) (*ports.ResearchTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	task, ok := s.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ports.ErrTaskNotFound, taskID)
	}
	return task.Clone(), nil
}

func (s *stubService) ListTasks(context.Context) ([]ports.TaskSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]ports.TaskSummary, 0, len(s.tasks))
	for _, task := range s.tasks {
		out = append(out, ports.Summarize(task))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *stubService) DeleteTask(_ context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[taskID]; !ok {
		return fmt.Errorf("%w: %s", ports.ErrTaskNotFound, taskID)
	}
	delete(s.tasks, taskID)
	return nil
}

func (s *stubService) CancelTask(_ context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", ports.ErrTaskNotFound, taskID)
	}
	if task.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ports.ErrTaskFrozen, taskID, task.Status)
	}
	s.cancelled = append(s.cancelled, taskID)
	return nil
}

// setStatus flips a stored task, as the pipeline would.
func (s *stubService) setStatus(taskID string, status ports.TaskStatus, step *ports.Step) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task := s.tasks[taskID]
	task.Status = status
	if step != nil {
		task.Steps = append(task.Steps, *step)
	}
}

func (s *stubService) readCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}
