package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"deepresearch/internal/server/ports"
)

type fakePlanner struct {
	questions []ports.PlanQuestion
	err       error
	gate      chan struct{}
	panicMsg  string
}

func (p *fakePlanner) Plan(ctx context.Context, _ string, _ ports.ResearchMode) ([]ports.PlanQuestion, error) {
	if p.panicMsg != "" {
		panic(p.panicMsg)
	}
	if p.gate != nil {
		select {
		case <-p.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	return append([]ports.PlanQuestion(nil), p.questions...), nil
}

type searchReply struct {
	results []ports.RawResult
	err     error
	delay   time.Duration
	// block waits for ctx cancellation before replying.
	block bool
}

type fakeSearcher struct {
	mu       sync.Mutex
	replies  map[string]searchReply
	calls    []string
	inFlight int
	maxSeen  int
}

func newFakeSearcher(replies map[string]searchReply) *fakeSearcher {
	return &fakeSearcher{replies: replies}
}

func (s *fakeSearcher) Search(ctx context.Context, query string) ([]ports.RawResult, error) {
	s.mu.Lock()
	s.calls = append(s.calls, query)
	s.inFlight++
	if s.inFlight > s.maxSeen {
		s.maxSeen = s.inFlight
	}
	reply := s.replies[query]
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	if reply.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if reply.delay > 0 {
		select {
		case <-time.After(reply.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if reply.err != nil {
		return nil, reply.err
	}
	return reply.results, nil
}

func (s *fakeSearcher) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *fakeSearcher) MaxConcurrent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxSeen
}

type fakeExtractor struct {
	claims []ports.Claim
	err    error
	seen   []ports.EvidenceCard
	called bool
}

func (e *fakeExtractor) Extract(_ context.Context, evidence []ports.EvidenceCard) ([]ports.Claim, error) {
	e.called = true
	e.seen = evidence
	if e.err != nil {
		return nil, e.err
	}
	if e.claims != nil {
		return e.claims, nil
	}
	claims := make([]ports.Claim, 0, len(evidence))
	for i, card := range evidence {
		claims = append(claims, ports.Claim{
			ID:                    fmt.Sprintf("c%d", i+1),
			Text:                  "claim from " + card.Title,
			SupportingEvidenceIDs: []string{card.ID},
			Confidence:            0.7,
		})
	}
	return claims, nil
}

type fakeDrafter struct {
	err     error
	request ports.DraftRequest
	called  bool
}

func (d *fakeDrafter) Draft(_ context.Context, req ports.DraftRequest) (ports.Draft, error) {
	d.called = true
	d.request = req
	if d.err != nil {
		return ports.Draft{}, d.err
	}
	return ports.Draft{
		ExecutiveSummary: "summary of " + req.Goal,
		Sections:         []ports.DraftSection{{Heading: "Findings", Body: fmt.Sprintf("%d claims", len(req.Claims))}},
		Bibliography:     []string{},
	}, nil
}

func results(urls ...string) []ports.RawResult {
	out := make([]ports.RawResult, 0, len(urls))
	for _, u := range urls {
		out = append(out, ports.RawResult{URL: u, Title: "title " + u, Snippet: "snippet " + u})
	}
	return out
}

func questions(texts ...string) []ports.PlanQuestion {
	out := make([]ports.PlanQuestion, 0, len(texts))
	for i, text := range texts {
		out = append(out, ports.PlanQuestion{ID: fmt.Sprintf("q%d", i+1), Text: text})
	}
	return out
}

var errBoom = errors.New("boom")

type recordingHook struct {
	mu    sync.Mutex
	steps []ports.Step
}

func (h *recordingHook) OnStep(_ string, step ports.Step) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.steps = append(h.steps, step)
}

func (h *recordingHook) Steps() []ports.Step {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]ports.Step(nil), h.steps...)
}

func findStep(task *ports.ResearchTask, stepID string) (ports.Step, int) {
	var found ports.Step
	count := 0
	for _, step := range task.Steps {
		if step.ID == stepID {
			found = step
			count++
		}
	}
	return found, count
}
