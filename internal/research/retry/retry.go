// Package retry decorates the research adapters with bounded retries for
// transient failures.
package retry

import (
	"context"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	apperrors "deepresearch/internal/errors"
	"deepresearch/internal/server/ports"
)

// Policy bounds the retries of one adapter call.
type Policy struct {
	// MaxAttempts counts the first call; values below 1 mean a single attempt.
	MaxAttempts int
	Interval    time.Duration
	// OnRetry is called before every retry with the adapter name.
	OnRetry func(adapter string, err error)
}

func (p Policy) buildBackoff(ctx context.Context) backoff.BackOff {
	retries := p.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Interval), uint64(retries))
	return backoff.WithContext(b, ctx)
}

// Do calls fn until it succeeds, returns a non-transient error, or the
// attempts run out.
func Do[T any](ctx context.Context, policy Policy, adapter string, fn func(context.Context) (T, error)) (T, error) {
	operation := func() (T, error) {
		value, err := fn(ctx)
		if err != nil && !apperrors.IsTransient(err) {
			return value, backoff.Permanent(err)
		}
		return value, err
	}
	notify := func(err error, _ time.Duration) {
		if policy.OnRetry != nil {
			policy.OnRetry(adapter, err)
		}
	}
	return backoff.RetryNotifyWithData(operation, policy.buildBackoff(ctx), notify)
}

// Wrap decorates every adapter in caps with policy.
func Wrap(caps ports.Capabilities, policy Policy) ports.Capabilities {
	return ports.Capabilities{
		Planner:   &Planner{delegate: caps.Planner, policy: policy},
		Searcher:  &Searcher{delegate: caps.Searcher, policy: policy},
		Extractor: &Extractor{delegate: caps.Extractor, policy: policy},
		Drafter:   &Drafter{delegate: caps.Drafter, policy: policy},
	}
}

type Planner struct {
	delegate ports.Planner
	policy   Policy
}

func (p *Planner) Plan(ctx context.Context, goal string, mode ports.ResearchMode) ([]ports.PlanQuestion, error) {
	return Do(ctx, p.policy, "planner", func(ctx context.Context) ([]ports.PlanQuestion, error) {
		return p.delegate.Plan(ctx, goal, mode)
	})
}

type Searcher struct {
	delegate ports.Searcher
	policy   Policy
}

func (s *Searcher) Search(ctx context.Context, query string) ([]ports.RawResult, error) {
	return Do(ctx, s.policy, "searcher", func(ctx context.Context) ([]ports.RawResult, error) {
		return s.delegate.Search(ctx, query)
	})
}

type Extractor struct {
	delegate ports.Extractor
	policy   Policy
}

func (e *Extractor) Extract(ctx context.Context, evidence []ports.EvidenceCard) ([]ports.Claim, error) {
	return Do(ctx, e.policy, "extractor", func(ctx context.Context) ([]ports.Claim, error) {
		return e.delegate.Extract(ctx, evidence)
	})
}

type Drafter struct {
	delegate ports.Drafter
	policy   Policy
}

func (d *Drafter) Draft(ctx context.Context, req ports.DraftRequest) (ports.Draft, error) {
	return Do(ctx, d.policy, "drafter", func(ctx context.Context) (ports.Draft, error) {
		return d.delegate.Draft(ctx, req)
	})
}
