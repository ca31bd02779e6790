// Package extractor derives evidence-backed claims with a chat model.
package extractor

import (
	"context"
	"fmt"
	"strings"

	apperrors "deepresearch/internal/errors"
	"deepresearch/internal/logging"
	"deepresearch/internal/research/llm"
	"deepresearch/internal/server/ports"
)

const systemPrompt = `You extract verifiable claims from research evidence. Every claim must be
supported by one or more of the numbered evidence items and cite their ids exactly
as given (for example "ev-1"). Do not invent ids. Respond with JSON only:
{"claims": [{"text": "...", "evidenceIds": ["ev-1"], "confidence": 0.0-1.0}]}`

// LLMExtractor asks a chat model for claims.
type LLMExtractor struct {
	client  llm.Client
	options llm.PromptOptions
	logger  logging.Logger
}

var _ ports.Extractor = (*LLMExtractor)(nil)

// New creates an extractor backed by client.
func New(client llm.Client, options llm.PromptOptions) *LLMExtractor {
	return &LLMExtractor{
		client:  client,
		options: options,
		logger:  logging.NewComponentLogger("Extractor"),
	}
}

func (e *LLMExtractor) Extract(ctx context.Context, evidence []ports.EvidenceCard) ([]ports.Claim, error) {
	if len(evidence) == 0 {
		return []ports.Claim{}, nil
	}
	block, included := FormatEvidence(evidence, e.options.MaxPromptTokens)
	if included < len(evidence) {
		logging.FromContext(ctx, e.logger).Info("prompt budget fits %d of %d evidence cards", included, len(evidence))
	}

	resp, err := e.client.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: "Evidence:\n" + block},
		},
		Temperature: e.options.Temperature,
		JSONMode:    true,
	})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Claims []struct {
			ID                    string   `json:"id"`
			Text                  string   `json:"text"`
			EvidenceIDs           []string `json:"evidenceIds"`
			SupportingEvidenceIDs []string `json:"supportingEvidenceIds"`
			Confidence            float64  `json:"confidence"`
		} `json:"claims"`
	}
	if err := llm.DecodeJSON(resp.Content, &payload); err != nil {
		return nil, apperrors.NewTransientError(fmt.Errorf("%w: %v", ports.ErrExtractionFailed, err), "")
	}

	claims := make([]ports.Claim, 0, len(payload.Claims))
	for i, raw := range payload.Claims {
		ids := raw.SupportingEvidenceIDs
		if len(ids) == 0 {
			ids = raw.EvidenceIDs
		}
		claimID := strings.TrimSpace(raw.ID)
		if claimID == "" {
			claimID = fmt.Sprintf("c%d", i+1)
		}
		claims = append(claims, ports.Claim{
			ID:                    claimID,
			Text:                  strings.TrimSpace(raw.Text),
			SupportingEvidenceIDs: ids,
			Confidence:            raw.Confidence,
		})
	}
	return claims, nil
}

// FormatEvidence renders cards as numbered prompt lines within maxTokens and
// reports how many cards made it in.
func FormatEvidence(evidence []ports.EvidenceCard, maxTokens int) (string, int) {
	budget := llm.NewTokenBudget(maxTokens)
	var b strings.Builder
	included := 0
	for _, card := range evidence {
		line := fmt.Sprintf("[%s] %s (%s)\n%s\n\n", card.ID, card.Title, card.URL, card.Snippet)
		text, ok := budget.Take(line)
		if !ok {
			break
		}
		b.WriteString(text)
		included++
	}
	return b.String(), included
}
