// Package planner turns a research goal into ordered sub-questions.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	apperrors "deepresearch/internal/errors"
	"deepresearch/internal/logging"
	"deepresearch/internal/research/llm"
	"deepresearch/internal/server/ports"
)

const systemPrompt = `You are a research planner. Break the user's research goal into focused,
independently searchable sub-questions. Each question must be answerable with a
web search. Respond with JSON only:
{"questions": [{"id": "q1", "text": "..."}]}`

// LLMPlanner asks a chat model for the plan.
type LLMPlanner struct {
	client  llm.Client
	options llm.PromptOptions
	logger  logging.Logger
}

var _ ports.Planner = (*LLMPlanner)(nil)

// New creates a planner backed by client.
func New(client llm.Client, options llm.PromptOptions) *LLMPlanner {
	return &LLMPlanner{
		client:  client,
		options: options,
		logger:  logging.NewComponentLogger("Planner"),
	}
}

// QuestionCount is the number of sub-questions requested per mode.
func QuestionCount(mode ports.ResearchMode) int {
	if mode == ports.ResearchModeHeavy {
		return 6
	}
	return 3
}

func (p *LLMPlanner) Plan(ctx context.Context, goal string, mode ports.ResearchMode) ([]ports.PlanQuestion, error) {
	count := QuestionCount(mode)
	resp, err := p.client.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf("Research goal: %s\nProduce at most %d sub-questions.", goal, count)},
		},
		Temperature: p.options.Temperature,
		JSONMode:    true,
	})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Questions []planEntry `json:"questions"`
	}
	if err := llm.DecodeJSON(resp.Content, &payload); err != nil {
		// The model may do better on a second attempt.
		return nil, apperrors.NewTransientError(fmt.Errorf("%w: %v", ports.ErrPlanningFailed, err), "")
	}

	questions := make([]ports.PlanQuestion, 0, len(payload.Questions))
	for i, entry := range payload.Questions {
		text := strings.TrimSpace(entry.Text)
		if text == "" {
			continue
		}
		qid := strings.TrimSpace(entry.ID)
		if qid == "" {
			qid = fmt.Sprintf("q%d", i+1)
		}
		questions = append(questions, ports.PlanQuestion{ID: qid, Text: text})
		if len(questions) == count {
			break
		}
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: model returned no questions", ports.ErrPlanningFailed)
	}
	logging.FromContext(ctx, p.logger).Debug("planned %d questions", len(questions))
	return questions, nil
}

// planEntry accepts both {"id","text"} objects and bare strings.
type planEntry struct {
	ID   string
	Text string
}

func (e *planEntry) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		e.Text = text
		return nil
	}
	var obj struct {
		ID       string `json:"id"`
		Text     string `json:"text"`
		Question string `json:"question"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	e.ID = obj.ID
	e.Text = obj.Text
	if e.Text == "" {
		e.Text = obj.Question
	}
	return nil
}
