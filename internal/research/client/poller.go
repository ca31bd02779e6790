package client

import (
	"context"
	"time"

	"deepresearch/internal/server/ports"
)

// DefaultPollInterval is the wait between the end of one read and the next.
const DefaultPollInterval = time.Second

// TaskReader is the read side of the API used by the poller.
type TaskReader interface {
	GetTask(ctx context.Context, taskID string) (*ports.ResearchTask, error)
}

// Poller reads a task on a fixed interval until it reaches a terminal status.
type Poller struct {
	reader   TaskReader
	interval time.Duration
}

// NewPoller creates a poller; interval <= 0 uses DefaultPollInterval.
func NewPoller(reader TaskReader, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{reader: reader, interval: interval}
}

// Poll reads taskID until its status is terminal and returns that snapshot.
// onUpdate, when set, sees every snapshot including the last. The interval
// restarts after each response, so reads never overlap. A failed read ends
// polling with that error.
func (p *Poller) Poll(ctx context.Context, taskID string, onUpdate func(*ports.ResearchTask)) (*ports.ResearchTask, error) {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}

		task, err := p.reader.GetTask(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if onUpdate != nil {
			onUpdate(task)
		}
		if task.Status.IsTerminal() {
			return task, nil
		}
		timer.Reset(p.interval)
	}
}
