package app

import (
	"context"
	"sync"

	"deepresearch/internal/server/ports"
)

// HealthCheckerImpl aggregates health probes for all components
type HealthCheckerImpl struct {
	probes []ports.HealthProbe
	mu     sync.RWMutex
}

var _ ports.HealthChecker = (*HealthCheckerImpl)(nil)

// NewHealthChecker creates a new health checker
func NewHealthChecker() *HealthCheckerImpl {
	return &HealthCheckerImpl{
		probes: make([]ports.HealthProbe, 0),
	}
}

// RegisterProbe adds a health probe
func (h *HealthCheckerImpl) RegisterProbe(probe ports.HealthProbe) {
	if probe == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes = append(h.probes, probe)
}

// CheckAll returns health status for all components
func (h *HealthCheckerImpl) CheckAll(ctx context.Context) []ports.ComponentHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	results := make([]ports.ComponentHealth, 0, len(h.probes))
	for _, probe := range h.probes {
		results = append(results, probe.Check(ctx))
	}
	return results
}

// StoreProbe checks that the task store answers reads.
type StoreProbe struct {
	store  ports.TaskStore
	driver string
}

// NewStoreProbe creates a task store health probe.
func NewStoreProbe(store ports.TaskStore, driver string) *StoreProbe {
	return &StoreProbe{store: store, driver: driver}
}

// Check lists the stored tasks and reports the count.
func (p *StoreProbe) Check(ctx context.Context) ports.ComponentHealth {
	tasks, err := p.store.List(ctx)
	if err != nil {
		return ports.ComponentHealth{
			Name:    "task_store",
			Status:  ports.HealthStatusError,
			Message: err.Error(),
			Details: map[string]any{"driver": p.driver},
		}
	}
	running := 0
	for _, task := range tasks {
		if !task.Status.IsTerminal() {
			running++
		}
	}
	return ports.ComponentHealth{
		Name:    "task_store",
		Status:  ports.HealthStatusReady,
		Message: "task store reachable",
		Details: map[string]any{
			"driver":  p.driver,
			"tasks":   len(tasks),
			"running": running,
		},
	}
}

// AdapterProbe reports which capability backends the pipeline was wired with.
type AdapterProbe struct {
	name    string
	backend string
	offline bool
}

// NewAdapterProbe creates a probe for one adapter family.
func NewAdapterProbe(name, backend string, offline bool) *AdapterProbe {
	return &AdapterProbe{name: name, backend: backend, offline: offline}
}

// Check returns the wiring of the adapter. Remote APIs are not called here.
func (p *AdapterProbe) Check(context.Context) ports.ComponentHealth {
	if p.offline {
		return ports.ComponentHealth{
			Name:    p.name,
			Status:  ports.HealthStatusDisabled,
			Message: "offline adapters in use",
			Details: map[string]any{"backend": "offline"},
		}
	}
	return ports.ComponentHealth{
		Name:    p.name,
		Status:  ports.HealthStatusReady,
		Message: p.name + " configured",
		Details: map[string]any{"backend": p.backend},
	}
}
