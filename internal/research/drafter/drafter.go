// Package drafter synthesizes the cited research report.
package drafter

import (
	"context"
	"fmt"
	"strings"

	apperrors "deepresearch/internal/errors"
	"deepresearch/internal/logging"
	"deepresearch/internal/research/extractor"
	"deepresearch/internal/research/llm"
	"deepresearch/internal/server/ports"
)

const systemPrompt = `You write concise research reports. Use only the claims and evidence provided and
cite evidence ids in square brackets, for example [ev-1]. If the evidence is thin,
say so under limitations. Respond with JSON only:
{"executiveSummary": "...",
 "sections": [{"heading": "...", "body": "..."}],
 "faq": [{"q": "...", "a": "..."}],
 "limitations": ["..."]}`

// LLMDrafter asks a chat model for the report body. The bibliography is
// built from the evidence, never from model output.
type LLMDrafter struct {
	client  llm.Client
	options llm.PromptOptions
	logger  logging.Logger
}

var _ ports.Drafter = (*LLMDrafter)(nil)

// New creates a drafter backed by client.
func New(client llm.Client, options llm.PromptOptions) *LLMDrafter {
	return &LLMDrafter{
		client:  client,
		options: options,
		logger:  logging.NewComponentLogger("Drafter"),
	}
}

func (d *LLMDrafter) Draft(ctx context.Context, req ports.DraftRequest) (ports.Draft, error) {
	resp, err := d.client.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: d.buildPrompt(req)},
		},
		Temperature: d.options.Temperature,
		JSONMode:    true,
	})
	if err != nil {
		return ports.Draft{}, err
	}

	var draft ports.Draft
	if err := llm.DecodeJSON(resp.Content, &draft); err != nil {
		return ports.Draft{}, apperrors.NewTransientError(fmt.Errorf("%w: %v", ports.ErrDraftingFailed, err), "")
	}
	draft.ExecutiveSummary = strings.TrimSpace(draft.ExecutiveSummary)
	if draft.ExecutiveSummary == "" && len(draft.Sections) == 0 {
		return ports.Draft{}, fmt.Errorf("%w: model returned an empty report", ports.ErrDraftingFailed)
	}
	draft.Bibliography = Bibliography(req.Evidence, req.Claims)
	if len(req.Evidence) == 0 {
		draft.Limitations = append(draft.Limitations, "No sources could be retrieved; the report is not backed by evidence.")
	}
	return draft.Clone(), nil
}

func (d *LLMDrafter) buildPrompt(req ports.DraftRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Research goal: %s\n\nQuestions:\n", req.Goal)
	for _, q := range req.Plan {
		fmt.Fprintf(&b, "- %s\n", q.Text)
	}
	b.WriteString("\nClaims:\n")
	if len(req.Claims) == 0 {
		b.WriteString("(none)\n")
	}
	for _, claim := range req.Claims {
		fmt.Fprintf(&b, "- %s [%s] (confidence %.2f)\n", claim.Text, strings.Join(claim.SupportingEvidenceIDs, ", "), claim.Confidence)
	}
	b.WriteString("\nEvidence:\n")
	block, _ := extractor.FormatEvidence(req.Evidence, d.options.MaxPromptTokens)
	if block == "" {
		block = "(none)\n"
	}
	b.WriteString(block)
	return b.String()
}

// Bibliography lists the cited evidence cards, or every card when no claim
// cites anything, in evidence order.
func Bibliography(evidence []ports.EvidenceCard, claims []ports.Claim) []string {
	cited := make(map[string]struct{})
	for _, claim := range claims {
		for _, evID := range claim.SupportingEvidenceIDs {
			cited[evID] = struct{}{}
		}
	}
	entries := make([]string, 0, len(evidence))
	for _, card := range evidence {
		if len(cited) > 0 {
			if _, ok := cited[card.ID]; !ok {
				continue
			}
		}
		entries = append(entries, fmt.Sprintf("[%s] %s. %s", card.ID, card.Title, card.URL))
	}
	return entries
}
