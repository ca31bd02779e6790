package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deepresearch/internal/server/ports"
)

type mockHealthProbe struct {
	health ports.ComponentHealth
}

func (m *mockHealthProbe) Check(context.Context) ports.ComponentHealth {
	return m.health
}

type failingStore struct {
	ports.TaskStore
}

func (failingStore) List(context.Context) ([]*ports.ResearchTask, error) {
	return nil, errors.New("disk on fire")
}

func TestHealthChecker(t *testing.T) {
	t.Run("registers and checks probes", func(t *testing.T) {
		checker := NewHealthChecker()
		checker.RegisterProbe(&mockHealthProbe{
			health: ports.ComponentHealth{Name: "test_component", Status: ports.HealthStatusReady, Message: "All good"},
		})
		checker.RegisterProbe(nil)

		results := checker.CheckAll(context.Background())
		require.Len(t, results, 1)
		assert.Equal(t, "test_component", results[0].Name)
		assert.Equal(t, ports.HealthStatusReady, results[0].Status)
	})

	t.Run("handles multiple probes", func(t *testing.T) {
		checker := NewHealthChecker()
		checker.RegisterProbe(&mockHealthProbe{health: ports.ComponentHealth{Name: "component1", Status: ports.HealthStatusReady}})
		checker.RegisterProbe(&mockHealthProbe{health: ports.ComponentHealth{Name: "component2", Status: ports.HealthStatusDisabled}})

		results := checker.CheckAll(context.Background())
		assert.Len(t, results, 2)
	})
}

func TestStoreProbe(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryTaskStore()
	require.NoError(t, store.Save(ctx, ports.NewResearchTask("research-1", "goal", ports.ResearchModeQuick, time.Now())))

	health := NewStoreProbe(store, "memory").Check(ctx)
	assert.Equal(t, "task_store", health.Name)
	assert.Equal(t, ports.HealthStatusReady, health.Status)
	assert.Equal(t, 1, health.Details["tasks"])
	assert.Equal(t, 1, health.Details["running"])

	broken := NewStoreProbe(failingStore{}, "sqlite").Check(ctx)
	assert.Equal(t, ports.HealthStatusError, broken.Status)
	assert.Equal(t, "disk on fire", broken.Message)
}

func TestAdapterProbe(t *testing.T) {
	offline := NewAdapterProbe("llm", "gpt-4o-mini", true).Check(context.Background())
	assert.Equal(t, ports.HealthStatusDisabled, offline.Status)

	live := NewAdapterProbe("search", "tavily", false).Check(context.Background())
	assert.Equal(t, ports.HealthStatusReady, live.Status)
	assert.Equal(t, "tavily", live.Details["backend"])
}
