package drafter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deepresearch/internal/research/llm"
	"deepresearch/internal/server/ports"
)

type stubClient struct {
	content string
	last    llm.CompletionRequest
}

func (s *stubClient) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	s.last = req
	return &llm.CompletionResponse{Content: s.content}, nil
}

func (s *stubClient) Model() string { return "stub" }

func draftRequest() ports.DraftRequest {
	return ports.DraftRequest{
		Goal: "impact of X",
		Plan: []ports.PlanQuestion{{ID: "q1", Text: "What is X?"}},
		Evidence: []ports.EvidenceCard{
			{ID: "ev-1", Title: "Intro to X", URL: "https://a.example/x"},
			{ID: "ev-2", Title: "X in practice", URL: "https://b.example/x"},
		},
		Claims: []ports.Claim{{ID: "c1", Text: "X matters", SupportingEvidenceIDs: []string{"ev-2"}, Confidence: 0.9}},
	}
}

func TestDraftBuildsReport(t *testing.T) {
	client := &stubClient{content: `{
		"executiveSummary": " X matters [ev-2]. ",
		"sections": [{"heading": "Overview", "body": "Details [ev-2]"}],
		"faq": [{"q": "Why?", "a": "Because."}],
		"bibliography": ["made up"]
	}`}

	draft, err := New(client, llm.PromptOptions{}).Draft(context.Background(), draftRequest())
	require.NoError(t, err)
	assert.Equal(t, "X matters [ev-2].", draft.ExecutiveSummary)
	require.Len(t, draft.Sections, 1)
	assert.Equal(t, "Overview", draft.Sections[0].Heading)
	assert.Equal(t, []ports.FAQEntry{{Q: "Why?", A: "Because."}}, draft.FAQ)
	assert.Equal(t, []string{"[ev-2] X in practice. https://b.example/x"}, draft.Bibliography)
	assert.NotNil(t, draft.Limitations)

	prompt := client.last.Messages[1].Content
	assert.Contains(t, prompt, "Research goal: impact of X")
	assert.Contains(t, prompt, "- X matters [ev-2] (confidence 0.90)")
	assert.Contains(t, prompt, "[ev-1] Intro to X")
}

func TestDraftWithoutEvidenceNotesLimitation(t *testing.T) {
	client := &stubClient{content: `{"executiveSummary": "Nothing found."}`}
	draft, err := New(client, llm.PromptOptions{}).Draft(context.Background(), ports.DraftRequest{Goal: "obscure"})
	require.NoError(t, err)
	assert.Empty(t, draft.Bibliography)
	require.Len(t, draft.Limitations, 1)
	assert.Contains(t, client.last.Messages[1].Content, "Claims:\n(none)")
}

func TestDraftEmptyReportFails(t *testing.T) {
	_, err := New(&stubClient{content: `{}`}, llm.PromptOptions{}).Draft(context.Background(), draftRequest())
	assert.True(t, errors.Is(err, ports.ErrDraftingFailed))
}

func TestBibliographyFallsBackToAllEvidence(t *testing.T) {
	req := draftRequest()
	assert.Len(t, Bibliography(req.Evidence, nil), 2)
}
