// Package offline provides deterministic adapters that need no network. They
// back demos, local runs without API keys and end-to-end tests.
package offline

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"

	"deepresearch/internal/research/drafter"
	"deepresearch/internal/server/ports"
)

var quickTemplates = []string{
	"What is %s?",
	"What are the most recent developments in %s?",
	"What are the main open problems or debates around %s?",
}

var heavyTemplates = []string{
	"Who are the key people and organizations involved in %s?",
	"What data or statistics describe %s?",
	"What are the practical implications of %s?",
}

// Capabilities returns the full offline adapter set.
func Capabilities(resultsPerQuery int) ports.Capabilities {
	return ports.Capabilities{
		Planner:   Planner{},
		Searcher:  Searcher{ResultsPerQuery: resultsPerQuery},
		Extractor: Extractor{},
		Drafter:   Drafter{},
	}
}

// Planner derives questions from fixed templates.
type Planner struct{}

func (Planner) Plan(ctx context.Context, goal string, mode ports.ResearchMode) ([]ports.PlanQuestion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	topic := strings.TrimRight(strings.TrimSpace(goal), "?.!")
	if topic == "" {
		return nil, fmt.Errorf("%w: empty goal", ports.ErrPlanningFailed)
	}
	templates := quickTemplates
	if mode == ports.ResearchModeHeavy {
		templates = append(append([]string{}, quickTemplates...), heavyTemplates...)
	}
	questions := make([]ports.PlanQuestion, 0, len(templates))
	for i, tmpl := range templates {
		questions = append(questions, ports.PlanQuestion{
			ID:   fmt.Sprintf("q%d", i+1),
			Text: fmt.Sprintf(tmpl, topic),
		})
	}
	return questions, nil
}

// Searcher fabricates stable results under example.org. The same query always
// yields the same URLs.
type Searcher struct {
	ResultsPerQuery int
}

func (s Searcher) Search(ctx context.Context, query string) ([]ports.RawResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := s.ResultsPerQuery
	if n <= 0 {
		n = 3
	}
	slug := slugify(query)
	h := fnv.New32a()
	_, _ = h.Write([]byte(query))
	seed := h.Sum32()

	results := make([]ports.RawResult, 0, n)
	for i := 0; i < n; i++ {
		results = append(results, ports.RawResult{
			URL:     fmt.Sprintf("https://example.org/%s/%d", slug, (seed+uint32(i))%1000),
			Title:   fmt.Sprintf("%s (source %d)", strings.TrimRight(query, "?"), i+1),
			Snippet: fmt.Sprintf("Reference material %d discussing %s.", i+1, strings.ToLower(strings.TrimRight(query, "?"))),
		})
	}
	return results, nil
}

// Extractor turns every card into one low-confidence claim.
type Extractor struct{}

func (Extractor) Extract(ctx context.Context, evidence []ports.EvidenceCard) ([]ports.Claim, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	claims := make([]ports.Claim, 0, len(evidence))
	for i, card := range evidence {
		text := firstSentence(card.Snippet)
		if text == "" {
			text = card.Title
		}
		claims = append(claims, ports.Claim{
			ID:                    fmt.Sprintf("c%d", i+1),
			Text:                  text,
			SupportingEvidenceIDs: []string{card.ID},
			Confidence:            0.5,
		})
	}
	return claims, nil
}

// Drafter assembles a report with one section per question.
type Drafter struct{}

func (Drafter) Draft(ctx context.Context, req ports.DraftRequest) (ports.Draft, error) {
	if err := ctx.Err(); err != nil {
		return ports.Draft{}, err
	}
	byQuestion := make(map[string][]string)
	cardQuestion := make(map[string]string, len(req.Evidence))
	for _, card := range req.Evidence {
		cardQuestion[card.ID] = card.QuestionID
	}
	for _, claim := range req.Claims {
		if len(claim.SupportingEvidenceIDs) == 0 {
			continue
		}
		qid := cardQuestion[claim.SupportingEvidenceIDs[0]]
		cite := "[" + strings.Join(claim.SupportingEvidenceIDs, "][") + "]"
		byQuestion[qid] = append(byQuestion[qid], fmt.Sprintf("%s %s", claim.Text, cite))
	}

	sections := make([]ports.DraftSection, 0, len(req.Plan))
	faq := make([]ports.FAQEntry, 0, len(req.Plan))
	for _, q := range req.Plan {
		lines := byQuestion[q.ID]
		body := "No supporting evidence was found."
		if len(lines) > 0 {
			body = strings.Join(lines, "\n")
		}
		sections = append(sections, ports.DraftSection{Heading: q.Text, Body: body})
		faq = append(faq, ports.FAQEntry{Q: q.Text, A: fmt.Sprintf("%d supporting claims.", len(lines))})
	}

	draft := ports.Draft{
		ExecutiveSummary: fmt.Sprintf("Offline research on %q covered %d questions with %d sources and %d claims.",
			req.Goal, len(req.Plan), len(req.Evidence), len(req.Claims)),
		Sections:     sections,
		FAQ:          faq,
		Bibliography: drafter.Bibliography(req.Evidence, req.Claims),
		Limitations:  []string{"Generated by offline adapters; sources are placeholders."},
	}
	return draft.Clone(), nil
}

func slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimRight(b.String(), "-")
	if len(slug) > 48 {
		slug = strings.TrimRight(slug[:48], "-")
	}
	if slug == "" {
		slug = "query"
	}
	return slug
}

func firstSentence(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexAny(s, ".!?"); idx >= 0 {
		return s[:idx+1]
	}
	return s
}
