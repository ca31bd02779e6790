package ports

import "context"

// RawResult is one ranked hit returned by a Searcher.
type RawResult struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// DraftRequest carries everything the drafter may use to synthesize a report.
type DraftRequest struct {
	Goal     string
	Mode     ResearchMode
	Plan     []PlanQuestion
	Claims   []Claim
	Evidence []EvidenceCard
}

// Planner turns a goal into ordered sub-questions.
type Planner interface {
	Plan(ctx context.Context, goal string, mode ResearchMode) ([]PlanQuestion, error)
}

// Searcher returns ranked results for a query. Zero results is not an error.
type Searcher interface {
	Search(ctx context.Context, query string) ([]RawResult, error)
}

// Extractor derives claims from an evidence set. Claims must only cite ids
// present in the input.
type Extractor interface {
	Extract(ctx context.Context, evidence []EvidenceCard) ([]Claim, error)
}

// Drafter synthesizes the report.
type Drafter interface {
	Draft(ctx context.Context, req DraftRequest) (Draft, error)
}

// Capabilities bundles the adapters consumed by the orchestrator.
type Capabilities struct {
	Planner   Planner
	Searcher  Searcher
	Extractor Extractor
	Drafter   Drafter
}

// ModeProfile sizes the pipeline for one research mode.
type ModeProfile struct {
	MaxQuestions    int
	ResultsPerQuery int
	// Concurrency bounds parallel searches; 1 means sequential.
	Concurrency int
}

// ModeProfiles maps each mode to its sizing.
type ModeProfiles map[ResearchMode]ModeProfile

// DefaultModeProfiles returns the built-in sizing for quick and heavy research.
func DefaultModeProfiles() ModeProfiles {
	return ModeProfiles{
		ResearchModeQuick: {MaxQuestions: 3, ResultsPerQuery: 5, Concurrency: 1},
		ResearchModeHeavy: {MaxQuestions: 6, ResultsPerQuery: 8, Concurrency: 3},
	}
}

// For returns the profile for mode, falling back to the quick defaults.
func (p ModeProfiles) For(mode ResearchMode) ModeProfile {
	if profile, ok := p[mode]; ok {
		return profile.withDefaults()
	}
	return DefaultModeProfiles()[ResearchModeQuick]
}

func (p ModeProfile) withDefaults() ModeProfile {
	if p.MaxQuestions <= 0 {
		p.MaxQuestions = 3
	}
	if p.ResultsPerQuery <= 0 {
		p.ResultsPerQuery = 5
	}
	if p.Concurrency <= 0 {
		p.Concurrency = 1
	}
	return p
}
