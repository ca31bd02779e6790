package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"deepresearch/internal/server/ports"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type pipelineFixture struct {
	store     *InMemoryTaskStore
	planner   *fakePlanner
	searcher  *fakeSearcher
	extractor *fakeExtractor
	drafter   *fakeDrafter
	hook      *recordingHook
	orch      *ResearchOrchestrator
}

func newPipelineFixture(plan []ports.PlanQuestion, replies map[string]searchReply, opts ...OrchestratorOption) *pipelineFixture {
	f := &pipelineFixture{
		store:     NewInMemoryTaskStore(),
		planner:   &fakePlanner{questions: plan},
		searcher:  newFakeSearcher(replies),
		extractor: &fakeExtractor{},
		drafter:   &fakeDrafter{},
		hook:      &recordingHook{},
	}
	opts = append([]OrchestratorOption{WithStepHooks(f.hook)}, opts...)
	f.orch = NewResearchOrchestrator(f.store, ports.Capabilities{
		Planner:   f.planner,
		Searcher:  f.searcher,
		Extractor: f.extractor,
		Drafter:   f.drafter,
	}, opts...)
	return f
}

func (f *pipelineFixture) run(t *testing.T, mode ports.ResearchMode) (*ports.ResearchTask, error) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.Save(ctx, ports.NewResearchTask("research-1", "impact of X", mode, time.Now())))
	runErr := f.orch.Run(ctx, "research-1")
	task, err := f.store.Get(ctx, "research-1")
	require.NoError(t, err)
	return task, runErr
}

func TestOrchestrator_HappyPathQuick(t *testing.T) {
	f := newPipelineFixture(questions("What is X?", "Who uses X?"), map[string]searchReply{
		"What is X?":  {results: results("https://a.example/1", "https://a.example/2")},
		"Who uses X?": {results: results("https://b.example/1")},
	})

	task, err := f.run(t, ports.ResearchModeQuick)
	require.NoError(t, err)

	assert.Equal(t, ports.TaskStatusDone, task.Status)
	assert.NotNil(t, task.CompletedAt)
	assert.Empty(t, task.ErrorMessage)
	require.Len(t, task.Plan, 2)
	assert.True(t, task.Plan[0].Done)
	assert.True(t, task.Plan[1].Done)
	require.Len(t, task.Evidence, 3)
	assert.Equal(t, []string{"ev-1", "ev-2", "ev-3"}, []string{task.Evidence[0].ID, task.Evidence[1].ID, task.Evidence[2].ID})
	assert.Equal(t, "q2", task.Evidence[2].QuestionID)
	assert.Equal(t, "b.example", task.Evidence[2].Source)
	assert.Len(t, task.Claims, 3)
	assert.Equal(t, "summary of impact of X", task.Draft.ExecutiveSummary)
	require.NotNil(t, task.Coverage)
	assert.Equal(t, 1.0, *task.Coverage)

	for _, stepID := range []string{"planning", "search:q1", "search:q2", "gathering", "extracting", "drafting"} {
		step, count := findStep(task, stepID)
		assert.Equal(t, 1, count, stepID)
		assert.Equal(t, ports.StepStatusOK, step.Status, stepID)
		assert.NotNil(t, step.FinishedAt, stepID)
	}
	last, ok := task.LastStep()
	require.True(t, ok)
	assert.Equal(t, "drafting", last.ID)
}

func TestOrchestrator_ClaimEvidenceIDsAreSubsetOfEvidence(t *testing.T) {
	f := newPipelineFixture(questions("q"), map[string]searchReply{
		"q": {results: results("https://a.example/1", "https://a.example/2")},
	})
	f.extractor.claims = []ports.Claim{
		{ID: "c1", Text: "valid", SupportingEvidenceIDs: []string{"ev-1", "ev-2", "ev-1"}, Confidence: 1.4},
		{ID: "c2", Text: "unknown id", SupportingEvidenceIDs: []string{"ev-1", "ev-99"}},
		{ID: "c3", Text: "no support"},
		{Text: "missing id", SupportingEvidenceIDs: []string{"ev-2"}},
	}

	task, err := f.run(t, ports.ResearchModeQuick)
	require.NoError(t, err)

	require.Len(t, task.Claims, 2)
	for _, claim := range task.Claims {
		require.NotEmpty(t, claim.SupportingEvidenceIDs)
		for _, evID := range claim.SupportingEvidenceIDs {
			assert.True(t, task.HasEvidence(evID), evID)
		}
	}
	assert.Equal(t, []string{"ev-1", "ev-2"}, task.Claims[0].SupportingEvidenceIDs)
	assert.Equal(t, 1.0, task.Claims[0].Confidence)
	assert.NotEmpty(t, task.Claims[1].ID)
}

func TestOrchestrator_ClaimIDsAreUnique(t *testing.T) {
	f := newPipelineFixture(questions("q"), map[string]searchReply{
		"q": {results: results("https://a.example/1")},
	})
	f.extractor.claims = []ports.Claim{
		{ID: "c2", Text: "first", SupportingEvidenceIDs: []string{"ev-1"}},
		{Text: "second", SupportingEvidenceIDs: []string{"ev-1"}},
		{ID: " c2 ", Text: "third", SupportingEvidenceIDs: []string{"ev-1"}},
	}

	task, err := f.run(t, ports.ResearchModeQuick)
	require.NoError(t, err)

	require.Len(t, task.Claims, 3)
	ids := []string{task.Claims[0].ID, task.Claims[1].ID, task.Claims[2].ID}
	assert.Equal(t, []string{"c2", "c3", "c4"}, ids)
	assert.Equal(t, "third", task.Claims[2].Text)
}

func TestOrchestrator_PartialSearchFailure(t *testing.T) {
	f := newPipelineFixture(questions("A", "B"), map[string]searchReply{
		"A": {err: errBoom},
		"B": {results: results("https://b.example/1")},
	})

	task, err := f.run(t, ports.ResearchModeQuick)
	require.NoError(t, err)

	assert.Equal(t, ports.TaskStatusDone, task.Status)
	require.Len(t, task.Evidence, 1)
	assert.Equal(t, "q2", task.Evidence[0].QuestionID)

	failed, _ := findStep(task, "search:q1")
	assert.Equal(t, ports.StepStatusFailed, failed.Status)
	assert.Equal(t, "search failed: boom", failed.ErrorMessage)
	assert.False(t, task.Plan[0].Done)
	assert.True(t, task.Plan[1].Done)

	gathering, _ := findStep(task, "gathering")
	assert.Equal(t, ports.StepStatusOK, gathering.Status)
	require.NotNil(t, task.Coverage)
	assert.InDelta(t, 0.5, *task.Coverage, 1e-9)
}

func TestOrchestrator_AllFailGatheringProceeds(t *testing.T) {
	f := newPipelineFixture(questions("A", "B"), map[string]searchReply{
		"A": {err: errBoom},
		"B": {err: errBoom},
	})

	task, err := f.run(t, ports.ResearchModeQuick)
	require.NoError(t, err)

	assert.Equal(t, ports.TaskStatusDone, task.Status, "gathering alone must not error the task")
	assert.Empty(t, task.Evidence)
	assert.Empty(t, task.Claims)
	assert.False(t, f.extractor.called)
	assert.True(t, f.drafter.called)

	gathering, _ := findStep(task, "gathering")
	assert.Equal(t, ports.StepStatusFailed, gathering.Status)
	extracting, _ := findStep(task, "extracting")
	assert.Equal(t, ports.StepStatusSkipped, extracting.Status)
	require.NotNil(t, task.Coverage)
	assert.Equal(t, 0.0, *task.Coverage)
}

func TestOrchestrator_DraftingFailureKeepsPartials(t *testing.T) {
	f := newPipelineFixture(questions("A"), map[string]searchReply{
		"A": {results: results("https://a.example/1", "https://a.example/2", "https://a.example/3")},
	})
	f.drafter.err = errors.New("model unavailable")

	task, err := f.run(t, ports.ResearchModeQuick)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrDraftingFailed))

	assert.Equal(t, ports.TaskStatusError, task.Status)
	assert.Equal(t, "drafting failed: model unavailable", task.ErrorMessage)
	assert.Len(t, task.Evidence, 3)
	assert.Len(t, task.Claims, 3)
	assert.Len(t, task.Plan, 1)
	assert.Empty(t, task.Draft.Sections)
	drafting, _ := findStep(task, "drafting")
	assert.Equal(t, ports.StepStatusFailed, drafting.Status)
}

func TestOrchestrator_PlanningFailureIsFatal(t *testing.T) {
	f := newPipelineFixture(nil, nil)
	f.planner.err = errBoom

	task, err := f.run(t, ports.ResearchModeQuick)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrPlanningFailed))

	assert.Equal(t, ports.TaskStatusError, task.Status)
	assert.Equal(t, "planning failed: boom", task.ErrorMessage)
	assert.Empty(t, task.Plan)
	require.Len(t, task.Steps, 1)
	assert.Equal(t, ports.StepStatusFailed, task.Steps[0].Status)
	assert.Empty(t, f.searcher.Calls())
}

func TestOrchestrator_EmptyPlanIsPlanningFailure(t *testing.T) {
	f := newPipelineFixture([]ports.PlanQuestion{{ID: "q1", Text: "   "}}, nil)

	task, err := f.run(t, ports.ResearchModeQuick)
	require.Error(t, err)
	assert.Equal(t, ports.TaskStatusError, task.Status)
	assert.True(t, strings.HasPrefix(task.ErrorMessage, "planning failed"))
}

func TestOrchestrator_ExtractionFailureIsNotFatal(t *testing.T) {
	f := newPipelineFixture(questions("A"), map[string]searchReply{
		"A": {results: results("https://a.example/1")},
	})
	f.extractor.err = errBoom

	task, err := f.run(t, ports.ResearchModeQuick)
	require.NoError(t, err)

	assert.Equal(t, ports.TaskStatusDone, task.Status)
	assert.Empty(t, task.Claims)
	extracting, _ := findStep(task, "extracting")
	assert.Equal(t, ports.StepStatusFailed, extracting.Status)
	assert.Equal(t, "extraction failed: boom", extracting.ErrorMessage)
	assert.Empty(t, f.drafter.request.Claims)
}

func TestOrchestrator_DeduplicatesAcrossQuestions(t *testing.T) {
	f := newPipelineFixture(questions("A", "B"), map[string]searchReply{
		"A": {results: results("https://www.a.example/page/", "https://a.example/other#frag")},
		"B": {results: results("http://a.example/page?utm_source=x", "https://b.example/1", "https://a.example/other")},
	})

	task, err := f.run(t, ports.ResearchModeQuick)
	require.NoError(t, err)

	urls := make([]string, 0, len(task.Evidence))
	for _, card := range task.Evidence {
		urls = append(urls, card.URL)
	}
	assert.Equal(t, []string{"https://www.a.example/page/", "https://a.example/other#frag", "https://b.example/1"}, urls)
	assert.Equal(t, "ev-3", task.Evidence[2].ID)
}

func TestOrchestrator_HeavyModeKeepsDiscoveryOrder(t *testing.T) {
	f := newPipelineFixture(questions("A", "B", "C", "D"), map[string]searchReply{
		"A": {results: results("https://a.example/1"), delay: 60 * time.Millisecond},
		"B": {results: results("https://b.example/1"), delay: 30 * time.Millisecond},
		"C": {results: results("https://c.example/1", "https://a.example/1")},
		"D": {results: results("https://d.example/1"), delay: 10 * time.Millisecond},
	}, WithModeProfiles(ports.ModeProfiles{
		ports.ResearchModeHeavy: {MaxQuestions: 6, ResultsPerQuery: 8, Concurrency: 3},
	}))

	task, err := f.run(t, ports.ResearchModeHeavy)
	require.NoError(t, err)

	questionOrder := make([]string, 0, len(task.Evidence))
	for _, card := range task.Evidence {
		questionOrder = append(questionOrder, card.QuestionID)
	}
	assert.Equal(t, []string{"q1", "q2", "q3", "q4"}, questionOrder)
	assert.LessOrEqual(t, f.searcher.MaxConcurrent(), 3)
	assert.Greater(t, f.searcher.MaxConcurrent(), 1)
}

func TestOrchestrator_ModeProfileCapsPlanAndResults(t *testing.T) {
	f := newPipelineFixture(questions("A", "B", "C", "D"), map[string]searchReply{
		"A": {results: results("https://a.example/1", "https://a.example/2", "https://a.example/3")},
		"B": {results: results("https://b.example/1")},
	}, WithModeProfiles(ports.ModeProfiles{
		ports.ResearchModeQuick: {MaxQuestions: 2, ResultsPerQuery: 2, Concurrency: 1},
	}))

	task, err := f.run(t, ports.ResearchModeQuick)
	require.NoError(t, err)

	assert.Len(t, task.Plan, 2)
	assert.Len(t, task.Evidence, 3)
	assert.Equal(t, []string{"A", "B"}, f.searcher.Calls())
}

func TestOrchestrator_StepHooksSeeEveryStepWrite(t *testing.T) {
	f := newPipelineFixture(questions("A"), map[string]searchReply{
		"A": {results: results("https://a.example/1")},
	})

	_, err := f.run(t, ports.ResearchModeQuick)
	require.NoError(t, err)

	steps := f.hook.Steps()
	require.NotEmpty(t, steps)
	assert.Equal(t, "planning", steps[0].ID)
	assert.Equal(t, ports.StepStatusRunning, steps[0].Status)
	last := steps[len(steps)-1]
	assert.Equal(t, "drafting", last.ID)
	assert.Equal(t, ports.StepStatusOK, last.Status)
}

func TestOrchestrator_RefusesTerminalTask(t *testing.T) {
	f := newPipelineFixture(questions("A"), nil)
	ctx := context.Background()
	task := ports.NewResearchTask("research-1", "goal", ports.ResearchModeQuick, time.Now())
	task.Status = ports.TaskStatusDone
	require.NoError(t, f.store.Save(ctx, task))

	err := f.orch.Run(ctx, "research-1")
	assert.True(t, errors.Is(err, ports.ErrTaskFrozen))
}

func TestOrchestrator_CancelledBeforeGathering(t *testing.T) {
	f := newPipelineFixture(questions("A"), nil)
	ctx, cancel := context.WithCancelCause(context.Background())
	f.planner.gate = make(chan struct{})
	require.NoError(t, f.store.Save(ctx, ports.NewResearchTask("research-1", "goal", ports.ResearchModeQuick, time.Now())))

	done := make(chan error, 1)
	go func() { done <- f.orch.Run(ctx, "research-1") }()
	cancel(ports.ErrTaskCancelled)

	err := <-done
	assert.True(t, errors.Is(err, ports.ErrTaskCancelled))
	task, getErr := f.store.Get(context.Background(), "research-1")
	require.NoError(t, getErr)
	assert.Equal(t, ports.TaskStatusError, task.Status)
	assert.Equal(t, "research task cancelled", task.ErrorMessage)
	assert.Empty(t, f.searcher.Calls())
}

func TestOrchestrator_CancelledDuringGathering(t *testing.T) {
	f := newPipelineFixture(questions("A", "B", "C", "D"), map[string]searchReply{
		"A": {results: results("https://a.example/1")},
		"B": {results: results("https://b.example/1")},
		"C": {block: true},
		"D": {block: true},
	})
	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)
	require.NoError(t, f.store.Save(ctx, ports.NewResearchTask("research-1", "goal", ports.ResearchModeHeavy, time.Now())))

	done := make(chan error, 1)
	go func() { done <- f.orch.Run(ctx, "research-1") }()

	require.Eventually(t, func() bool {
		if len(f.searcher.Calls()) < 4 {
			return false
		}
		task, err := f.store.Get(context.Background(), "research-1")
		if err != nil {
			return false
		}
		step, _ := findStep(task, "search:q2")
		return step.Status == ports.StepStatusOK
	}, 5*time.Second, 5*time.Millisecond)
	cancel(ports.ErrTaskCancelled)

	err := <-done
	assert.True(t, errors.Is(err, ports.ErrTaskCancelled))
	task, getErr := f.store.Get(context.Background(), "research-1")
	require.NoError(t, getErr)
	assert.Equal(t, ports.TaskStatusError, task.Status)
	assert.Equal(t, "research task cancelled", task.ErrorMessage)
	require.Len(t, task.Evidence, 2)
	assert.Equal(t, "q1", task.Evidence[0].QuestionID)
	assert.Equal(t, "q2", task.Evidence[1].QuestionID)

	for _, stepID := range []string{"search:q3", "search:q4", "gathering"} {
		step, count := findStep(task, stepID)
		assert.Equal(t, 1, count, stepID)
		assert.Equal(t, ports.StepStatusFailed, step.Status, stepID)
		assert.Equal(t, "research task cancelled", step.ErrorMessage, stepID)
	}
	assert.False(t, f.extractor.called)
	assert.False(t, f.drafter.called)
}

func TestNormalizeURL(t *testing.T) {
	cases := map[string]string{
		"https://Example.com/a/":                 "example.com/a",
		"http://www.example.com/a#section":       "example.com/a",
		"https://example.com:443/a?b=2&a=1":      "example.com/a?a=1&b=2",
		"https://example.com/a?utm_source=x&q=1": "example.com/a?q=1",
		"https://example.com:8080/":              "example.com:8080",
		"not a url":                              "not a url",
	}
	for input, want := range cases {
		assert.Equal(t, want, normalizeURL(input), input)
	}
}

func TestNormalizePlanAssignsIDsAndCaps(t *testing.T) {
	plan := normalizePlan([]ports.PlanQuestion{
		{Text: "first"},
		{ID: "q1", Text: "dup id"},
		{ID: "x", Text: ""},
		{ID: "keep", Text: " third "},
		{Text: "over the cap"},
	}, 3)

	require.Len(t, plan, 3)
	assert.Equal(t, "q1", plan[0].ID)
	assert.Equal(t, "q2", plan[1].ID)
	assert.Equal(t, ports.PlanQuestion{ID: "keep", Text: "third"}, plan[2])
}
