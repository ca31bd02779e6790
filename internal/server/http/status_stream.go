package http

import (
	"context"
	"errors"
	"time"

	"deepresearch/internal/config"
	"deepresearch/internal/server/ports"
)

const (
	streamEventStatus   = "status"
	streamEventComplete = "complete"

	streamStatusNotFound = "not_found"
)

// StreamEvent is one message on the status stream. Both transports emit the
// same payloads.
type StreamEvent struct {
	Type      string      `json:"type"`
	Status    string      `json:"status"`
	Timestamp *time.Time  `json:"timestamp,omitempty"`
	Step      *ports.Step `json:"step,omitempty"`
}

// TaskNotifier hands out wake-ups for a task. *app.TaskEventHub satisfies it.
type TaskNotifier interface {
	Subscribe(taskID string) (<-chan struct{}, func())
}

// statusFeed drives a status stream: it re-reads the task on every tick or
// hub wake-up, emits a status event, and finishes with a complete event.
type statusFeed struct {
	service  ports.ResearchService
	notifier TaskNotifier
	interval time.Duration
	now      func() time.Time
}

func newStatusFeed(service ports.ResearchService, notifier TaskNotifier, interval time.Duration) *statusFeed {
	if interval <= 0 {
		interval = config.DefaultStreamInterval
	}
	return &statusFeed{service: service, notifier: notifier, interval: interval, now: time.Now}
}

// run emits events until the task is terminal, missing, ctx ends or emit
// fails. A terminal task gets a last status event before complete.
func (f *statusFeed) run(ctx context.Context, taskID string, emit func(StreamEvent) error) error {
	var wake <-chan struct{}
	if f.notifier != nil {
		ch, cancel := f.notifier.Subscribe(taskID)
		defer cancel()
		wake = ch
	}

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		task, err := f.service.GetTask(ctx, taskID)
		switch {
		case errors.Is(err, ports.ErrTaskNotFound):
			return emit(StreamEvent{Type: streamEventComplete, Status: streamStatusNotFound})
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		if err := emit(f.statusEvent(task)); err != nil {
			return err
		}
		if task.Status.IsTerminal() {
			return emit(StreamEvent{Type: streamEventComplete, Status: string(task.Status)})
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-wake:
		}
	}
}

func (f *statusFeed) statusEvent(task *ports.ResearchTask) StreamEvent {
	now := f.now().UTC()
	event := StreamEvent{Type: streamEventStatus, Status: string(task.Status), Timestamp: &now}
	if step, ok := task.LastStep(); ok {
		event.Step = &step
	}
	return event
}
