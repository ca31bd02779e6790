package offline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deepresearch/internal/server/app"
	"deepresearch/internal/server/ports"
)

func TestPlannerByMode(t *testing.T) {
	quick, err := Planner{}.Plan(context.Background(), "solar storage?", ports.ResearchModeQuick)
	require.NoError(t, err)
	require.Len(t, quick, 3)
	assert.Equal(t, ports.PlanQuestion{ID: "q1", Text: "What is solar storage?"}, quick[0])

	heavy, err := Planner{}.Plan(context.Background(), "solar storage", ports.ResearchModeHeavy)
	require.NoError(t, err)
	assert.Len(t, heavy, 6)
}

func TestSearcherIsDeterministic(t *testing.T) {
	s := Searcher{ResultsPerQuery: 2}
	first, err := s.Search(context.Background(), "What is solar storage?")
	require.NoError(t, err)
	second, err := s.Search(context.Background(), "What is solar storage?")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	require.Len(t, first, 2)
	assert.Contains(t, first[0].URL, "https://example.org/what-is-solar-storage/")
}

func TestAdaptersRespectCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Planner{}.Plan(ctx, "goal", ports.ResearchModeQuick)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = Searcher{}.Search(ctx, "q")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOfflinePipelineEndToEnd(t *testing.T) {
	ctx := context.Background()
	store := app.NewInMemoryTaskStore()
	orch := app.NewResearchOrchestrator(store, Capabilities(2))
	require.NoError(t, store.Save(ctx, ports.NewResearchTask("research-offline", "grid batteries", ports.ResearchModeHeavy, time.Now())))

	require.NoError(t, orch.Run(ctx, "research-offline"))

	task, err := store.Get(ctx, "research-offline")
	require.NoError(t, err)
	assert.Equal(t, ports.TaskStatusDone, task.Status)
	assert.Len(t, task.Plan, 6)
	assert.Len(t, task.Evidence, 12)
	assert.Len(t, task.Claims, 12)
	for _, claim := range task.Claims {
		for _, evID := range claim.SupportingEvidenceIDs {
			assert.True(t, task.HasEvidence(evID))
		}
	}
	assert.Len(t, task.Draft.Sections, 6)
	assert.Len(t, task.Draft.Bibliography, 12)
	assert.NotEmpty(t, task.Draft.ExecutiveSummary)
}
