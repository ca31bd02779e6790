package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"deepresearch/internal/observability"
	"deepresearch/internal/server/ports"
)

// questionOutcome is the raw result of searching one plan question.
type questionOutcome struct {
	question ports.PlanQuestion
	step     ports.Step
	results  []ports.RawResult
	err      error
}

// evidenceGatherer turns search outcomes into evidence cards. Outcomes are
// committed strictly in plan order, whatever order the searches finish in, so
// evidence always lands in discovery order.
type evidenceGatherer struct {
	run  *taskRun
	plan []ports.PlanQuestion

	mu        sync.Mutex
	next      int
	pending   map[int]questionOutcome
	seen      map[string]struct{}
	evidence  []ports.EvidenceCard
	perQ      map[string]int
	succeeded int
}

func newEvidenceGatherer(run *taskRun, plan []ports.PlanQuestion) *evidenceGatherer {
	return &evidenceGatherer{
		run:      run,
		plan:     plan,
		pending:  make(map[int]questionOutcome, len(plan)),
		seen:     make(map[string]struct{}),
		evidence: make([]ports.EvidenceCard, 0),
		perQ:     make(map[string]int, len(plan)),
	}
}

func (r *taskRun) gatherStage(ctx context.Context, plan []ports.PlanQuestion) ([]ports.EvidenceCard, error) {
	ctx, span := r.o.tracer.StartSpan(ctx, observability.SpanResearchStage, observability.StageAttrs(string(ports.StepKindGathering))...)
	summary := r.beginStep(ports.Step{
		ID:    string(ports.StepKindGathering),
		Kind:  ports.StepKindGathering,
		Label: fmt.Sprintf("Searching %d questions", len(plan)),
	})

	g := newEvidenceGatherer(r, plan)
	if r.profile.Concurrency <= 1 || len(plan) <= 1 {
		g.runSequential(ctx)
	} else {
		g.runConcurrent(ctx, r.profile.Concurrency)
	}

	if cancelErr := cancellation(ctx); cancelErr != nil {
		observability.EndSpan(span, cancelErr)
		return nil, r.abort(summary, cancelErr)
	}

	coverage := g.coverage()
	label := fmt.Sprintf("Collected %d sources from %d of %d questions", len(g.evidence), g.succeeded, len(plan))
	if g.succeeded == 0 {
		// Every question failed. The pipeline still proceeds with the empty set.
		err := fmt.Errorf("%w: all %d questions failed", ports.ErrSearchFailed, len(plan))
		r.logger.Warn("%v", err)
		r.finishStep(summary, ports.StepStatusFailed, label, err.Error(), ports.TaskPatch{Coverage: &coverage})
		observability.EndSpan(span, err)
		return g.evidence, nil
	}
	r.finishStep(summary, ports.StepStatusOK, label, "", ports.TaskPatch{Coverage: &coverage})
	observability.EndSpan(span, nil)
	return g.evidence, nil
}

func (g *evidenceGatherer) runSequential(ctx context.Context) {
	for i, question := range g.plan {
		if ctx.Err() != nil {
			return
		}
		g.deliver(i, g.search(ctx, question))
	}
}

func (g *evidenceGatherer) runConcurrent(ctx context.Context, limit int) {
	var eg errgroup.Group
	eg.SetLimit(limit)
	for i, question := range g.plan {
		if ctx.Err() != nil {
			break
		}
		eg.Go(func() error {
			g.deliver(i, g.search(ctx, question))
			return nil
		})
	}
	_ = eg.Wait()
}

// search runs one adapter call. No gatherer lock is held while it runs.
func (g *evidenceGatherer) search(ctx context.Context, question ports.PlanQuestion) questionOutcome {
	r := g.run
	ctx, span := r.o.tracer.StartSpan(ctx, observability.SpanSearchQuery, attribute.String(observability.AttrQuestionID, question.ID))
	step := r.beginStep(ports.Step{
		ID:         "search:" + question.ID,
		Kind:       ports.StepKindSearch,
		Label:      "Searching: " + question.Text,
		QuestionID: question.ID,
	})
	results, err := r.o.caps.Searcher.Search(ctx, question.Text)
	if cancelErr := cancellation(ctx); cancelErr != nil && err == nil {
		err = cancelErr
	}
	observability.EndSpan(span, err)
	return questionOutcome{question: question, step: step, results: results, err: err}
}

// deliver parks outcome and commits every outcome that is now next in line.
func (g *evidenceGatherer) deliver(index int, outcome questionOutcome) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.pending[index] = outcome
	for {
		ready, ok := g.pending[g.next]
		if !ok {
			return
		}
		delete(g.pending, g.next)
		g.commit(ready)
		g.next++
	}
}

// commit must be called with g.mu held.
func (g *evidenceGatherer) commit(outcome questionOutcome) {
	r := g.run
	if outcome.err != nil {
		message := wrapStage(outcome.err, ports.ErrSearchFailed).Error()
		if errors.Is(outcome.err, ports.ErrTaskCancelled) || errors.Is(outcome.err, context.Canceled) {
			message = ports.ErrTaskCancelled.Error()
		}
		r.logger.Warn("search for %s failed: %v", outcome.question.ID, outcome.err)
		r.finishStep(outcome.step, ports.StepStatusFailed, "", message, ports.TaskPatch{})
		return
	}

	results := outcome.results
	if limit := r.profile.ResultsPerQuery; limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	retrievedAt := r.o.now()
	cards := make([]ports.EvidenceCard, 0, len(results))
	for _, result := range results {
		rawURL := strings.TrimSpace(result.URL)
		if rawURL == "" {
			continue
		}
		key := normalizeURL(rawURL)
		if _, dup := g.seen[key]; dup {
			continue
		}
		g.seen[key] = struct{}{}

		title := strings.TrimSpace(result.Title)
		if title == "" {
			title = rawURL
		}
		cards = append(cards, ports.EvidenceCard{
			ID:          fmt.Sprintf("ev-%d", len(g.evidence)+len(cards)+1),
			URL:         rawURL,
			Title:       title,
			Snippet:     strings.TrimSpace(result.Snippet),
			QuestionID:  outcome.question.ID,
			Query:       outcome.question.Text,
			Source:      sourceName(rawURL),
			RetrievedAt: retrievedAt,
		})
	}

	g.evidence = append(g.evidence, cards...)
	g.perQ[outcome.question.ID] += len(cards)
	g.succeeded++

	label := fmt.Sprintf("Found %d new sources", len(cards))
	r.finishStep(outcome.step, ports.StepStatusOK, label, "", ports.TaskPatch{
		Evidence:           cards,
		CompletedQuestions: []string{outcome.question.ID},
	})
	r.o.metrics.AddEvidence(len(cards))
}

func (g *evidenceGatherer) coverage() float64 {
	if len(g.plan) == 0 {
		return 0
	}
	covered := 0
	for _, question := range g.plan {
		if g.perQ[question.ID] > 0 {
			covered++
		}
	}
	return float64(covered) / float64(len(g.plan))
}

var trackingParams = map[string]struct{}{
	"fbclid": {}, "gclid": {}, "mc_cid": {}, "mc_eid": {}, "ref": {},
}

// normalizeURL produces the dedup key for a result URL: scheme-insensitive,
// lower-case host without "www." or default port, no fragment, no trailing
// slash, tracking parameters removed and the remaining query sorted.
func normalizeURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Host == "" {
		return strings.TrimRight(strings.ToLower(trimmed), "/")
	}

	host := strings.ToLower(parsed.Hostname())
	host = strings.TrimPrefix(host, "www.")
	if port := parsed.Port(); port != "" && port != "80" && port != "443" {
		host += ":" + port
	}

	path := strings.TrimRight(parsed.EscapedPath(), "/")

	query := parsed.Query()
	keys := make([]string, 0, len(query))
	for key := range query {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "utm_") {
			continue
		}
		if _, tracking := trackingParams[lower]; tracking {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(host)
	b.WriteString(path)
	for i, key := range keys {
		values := query[key]
		sort.Strings(values)
		for j, value := range values {
			if i == 0 && j == 0 {
				b.WriteByte('?')
			} else {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(key))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(value))
		}
	}
	return b.String()
}

func sourceName(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Hostname() == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
}
