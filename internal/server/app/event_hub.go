package app

import (
	"sync"

	"deepresearch/internal/server/ports"
)

// TaskEventHub wakes status-stream subscribers whenever a step of their task
// is written. It carries no payload; subscribers re-read the store, which
// stays the single source of truth.
type TaskEventHub struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

// NewTaskEventHub creates an empty hub.
func NewTaskEventHub() *TaskEventHub {
	return &TaskEventHub{subs: make(map[string]map[chan struct{}]struct{})}
}

// Subscribe registers interest in taskID. The returned channel receives at
// most one pending wake-up at a time; cancel must be called to release it.
func (h *TaskEventHub) Subscribe(taskID string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	h.mu.Lock()
	set, ok := h.subs[taskID]
	if !ok {
		set = make(map[chan struct{}]struct{})
		h.subs[taskID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if set, ok := h.subs[taskID]; ok {
				delete(set, ch)
				if len(set) == 0 {
					delete(h.subs, taskID)
				}
			}
		})
	}
	return ch, cancel
}

// OnStep implements StepHook.
func (h *TaskEventHub) OnStep(taskID string, _ ports.Step) {
	h.Notify(taskID)
}

// Notify wakes every subscriber of taskID without blocking.
func (h *TaskEventHub) Notify(taskID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[taskID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Subscribers reports the number of live subscriptions for taskID.
func (h *TaskEventHub) Subscribers(taskID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[taskID])
}
