package planner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "deepresearch/internal/errors"
	"deepresearch/internal/research/llm"
	"deepresearch/internal/server/ports"
)

type stubClient struct {
	content string
	err     error
	last    llm.CompletionRequest
}

func (s *stubClient) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	return &llm.CompletionResponse{Content: s.content}, nil
}

func (s *stubClient) Model() string { return "stub" }

func TestPlanParsesQuestions(t *testing.T) {
	client := &stubClient{content: `{"questions": [
		{"id": "q1", "text": "What is X?"},
		"Who builds X?",
		{"question": "Where is X used?"},
		{"id": "q4", "text": "  "}
	]}`}
	p := New(client, llm.PromptOptions{Temperature: 0.3})

	questions, err := p.Plan(context.Background(), "understand X", ports.ResearchModeQuick)
	require.NoError(t, err)
	assert.Equal(t, []ports.PlanQuestion{
		{ID: "q1", Text: "What is X?"},
		{ID: "q2", Text: "Who builds X?"},
		{ID: "q3", Text: "Where is X used?"},
	}, questions)
	assert.True(t, client.last.JSONMode)
	assert.Equal(t, 0.3, client.last.Temperature)
	assert.Contains(t, client.last.Messages[1].Content, "at most 3 sub-questions")
}

func TestPlanCapsByMode(t *testing.T) {
	client := &stubClient{content: `{"questions": ["a","b","c","d","e","f","g","h"]}`}
	p := New(client, llm.PromptOptions{})

	quick, err := p.Plan(context.Background(), "goal", ports.ResearchModeQuick)
	require.NoError(t, err)
	assert.Len(t, quick, 3)

	heavy, err := p.Plan(context.Background(), "goal", ports.ResearchModeHeavy)
	require.NoError(t, err)
	assert.Len(t, heavy, 6)
}

func TestPlanFailures(t *testing.T) {
	_, err := New(&stubClient{content: `{"questions": []}`}, llm.PromptOptions{}).Plan(context.Background(), "goal", ports.ResearchModeQuick)
	assert.True(t, errors.Is(err, ports.ErrPlanningFailed))

	_, err = New(&stubClient{content: "no idea"}, llm.PromptOptions{}).Plan(context.Background(), "goal", ports.ResearchModeQuick)
	assert.True(t, errors.Is(err, ports.ErrPlanningFailed))
	assert.True(t, apperrors.IsTransient(err))

	upstream := errors.New("down")
	_, err = New(&stubClient{err: upstream}, llm.PromptOptions{}).Plan(context.Background(), "goal", ports.ResearchModeQuick)
	assert.ErrorIs(t, err, upstream)
}
