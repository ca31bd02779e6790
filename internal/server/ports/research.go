package ports

import (
	"fmt"
	"strings"
	"time"
)

// ResearchMode controls how deep the pipeline goes for a task.
type ResearchMode string

const (
	ResearchModeQuick ResearchMode = "quick"
	ResearchModeHeavy ResearchMode = "heavy"
)

// ParseResearchMode normalizes a client supplied mode. Empty defaults to quick.
func ParseResearchMode(raw string) (ResearchMode, error) {
	switch ResearchMode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ResearchModeQuick:
		return ResearchModeQuick, nil
	case ResearchModeHeavy:
		return ResearchModeHeavy, nil
	default:
		return "", fmt.Errorf("%w: unsupported mode %q", ErrInvalidRequest, raw)
	}
}

// TaskStatus represents the state of a research task
type TaskStatus string

const (
	TaskStatusRunning TaskStatus = "running"
	TaskStatusDone    TaskStatus = "done"
	TaskStatusError   TaskStatus = "error"
)

// IsTerminal reports whether no further mutation may happen after this status.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusDone || s == TaskStatusError
}

// StepKind names the pipeline stage a step belongs to.
type StepKind string

const (
	StepKindPlanning   StepKind = "planning"
	StepKindGathering  StepKind = "gathering"
	StepKindSearch     StepKind = "search"
	StepKindExtracting StepKind = "extracting"
	StepKindDrafting   StepKind = "drafting"
)

// StepStatus is the outcome of a single step execution.
type StepStatus string

const (
	StepStatusRunning StepStatus = "running"
	StepStatusOK      StepStatus = "ok"
	StepStatusFailed  StepStatus = "failed"
	StepStatusSkipped StepStatus = "skipped"
)

// PlanQuestion is one sub-question produced by the planner.
type PlanQuestion struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Done bool   `json:"done"`
}

// Step records one execution of a stage, or of one unit inside a stage.
// Steps are keyed by ID; writing a step with an existing ID replaces it.
type Step struct {
	ID           string     `json:"id"`
	Kind         StepKind   `json:"kind"`
	Status       StepStatus `json:"status"`
	Label        string     `json:"label,omitempty"`
	QuestionID   string     `json:"questionId,omitempty"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	StartedAt    time.Time  `json:"startedAt"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty"`
}

// EvidenceCard is one retrieved source backing the research.
type EvidenceCard struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Snippet     string    `json:"snippet"`
	QuestionID  string    `json:"questionId,omitempty"`
	Query       string    `json:"query,omitempty"`
	Source      string    `json:"source,omitempty"`
	RetrievedAt time.Time `json:"retrievedAt"`
}

// Claim is an assertion derived from evidence.
type Claim struct {
	ID                    string   `json:"id"`
	Text                  string   `json:"text"`
	SupportingEvidenceIDs []string `json:"supportingEvidenceIds"`
	Confidence            float64  `json:"confidence"`
}

// DraftSection is one headed block of the report body.
type DraftSection struct {
	Heading string `json:"heading"`
	Body    string `json:"body"`
}

// FAQEntry is a question/answer pair appended to the report.
type FAQEntry struct {
	Q string `json:"q"`
	A string `json:"a"`
}

// Draft is the synthesized report.
type Draft struct {
	ExecutiveSummary string         `json:"executiveSummary"`
	Sections         []DraftSection `json:"sections"`
	FAQ              []FAQEntry     `json:"faq"`
	Bibliography     []string       `json:"bibliography"`
	Limitations      []string       `json:"limitations"`
}

// ResearchTask is the unit of work and the only entity with external identity.
type ResearchTask struct {
	ID           string         `json:"id"`
	Goal         string         `json:"goal"`
	Mode         ResearchMode   `json:"mode"`
	Status       TaskStatus     `json:"status"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
	CompletedAt  *time.Time     `json:"completedAt,omitempty"`
	Plan         []PlanQuestion `json:"plan"`
	Steps        []Step         `json:"steps"`
	Evidence     []EvidenceCard `json:"evidence"`
	Claims       []Claim        `json:"claims"`
	Draft        Draft          `json:"draft"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
	Coverage     *float64       `json:"coverage,omitempty"`
}

// NewResearchTask builds the initial snapshot persisted by the create call.
func NewResearchTask(id, goal string, mode ResearchMode, now time.Time) *ResearchTask {
	task := &ResearchTask{
		ID:        id,
		Goal:      goal,
		Mode:      mode,
		Status:    TaskStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}
	task.normalize()
	return task
}

// Clone returns a deep copy so callers never share slices with the store.
func (t *ResearchTask) Clone() *ResearchTask {
	if t == nil {
		return nil
	}
	out := *t
	out.Plan = append([]PlanQuestion(nil), t.Plan...)
	out.Steps = make([]Step, len(t.Steps))
	for i, step := range t.Steps {
		out.Steps[i] = step.clone()
	}
	out.Evidence = append([]EvidenceCard(nil), t.Evidence...)
	out.Claims = make([]Claim, len(t.Claims))
	for i, claim := range t.Claims {
		out.Claims[i] = claim.clone()
	}
	out.Draft = t.Draft.Clone()
	if t.CompletedAt != nil {
		completed := *t.CompletedAt
		out.CompletedAt = &completed
	}
	if t.Coverage != nil {
		coverage := *t.Coverage
		out.Coverage = &coverage
	}
	out.normalize()
	return &out
}

// LastStep returns the most recently written step, if any.
func (t *ResearchTask) LastStep() (Step, bool) {
	if t == nil || len(t.Steps) == 0 {
		return Step{}, false
	}
	return t.Steps[len(t.Steps)-1], true
}

// HasEvidence reports whether an evidence card with the given id exists.
func (t *ResearchTask) HasEvidence(id string) bool {
	for _, card := range t.Evidence {
		if card.ID == id {
			return true
		}
	}
	return false
}

// normalize keeps collections non-nil so the wire format always carries arrays.
func (t *ResearchTask) normalize() {
	if t.Plan == nil {
		t.Plan = []PlanQuestion{}
	}
	if t.Steps == nil {
		t.Steps = []Step{}
	}
	if t.Evidence == nil {
		t.Evidence = []EvidenceCard{}
	}
	if t.Claims == nil {
		t.Claims = []Claim{}
	}
	t.Draft.normalize()
}

// Clone returns a deep copy of the draft.
func (d Draft) Clone() Draft {
	out := Draft{
		ExecutiveSummary: d.ExecutiveSummary,
		Sections:         append([]DraftSection(nil), d.Sections...),
		FAQ:              append([]FAQEntry(nil), d.FAQ...),
		Bibliography:     append([]string(nil), d.Bibliography...),
		Limitations:      append([]string(nil), d.Limitations...),
	}
	out.normalize()
	return out
}

func (d *Draft) normalize() {
	if d.Sections == nil {
		d.Sections = []DraftSection{}
	}
	if d.FAQ == nil {
		d.FAQ = []FAQEntry{}
	}
	if d.Bibliography == nil {
		d.Bibliography = []string{}
	}
	if d.Limitations == nil {
		d.Limitations = []string{}
	}
}

func (s Step) clone() Step {
	if s.FinishedAt != nil {
		finished := *s.FinishedAt
		s.FinishedAt = &finished
	}
	return s
}

func (c Claim) clone() Claim {
	c.SupportingEvidenceIDs = append([]string{}, c.SupportingEvidenceIDs...)
	return c
}
