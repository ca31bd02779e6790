package ports

import "time"

// TaskPatch describes a partial update merged into a stored snapshot.
// Nil fields are left untouched. Evidence is appended, Steps are upserted by
// id, and CompletedQuestions flips the done flag of the named plan entries.
type TaskPatch struct {
	Status             *TaskStatus
	ErrorMessage       *string
	Plan               []PlanQuestion
	CompletedQuestions []string
	Evidence           []EvidenceCard
	Claims             []Claim
	Steps              []Step
	Draft              *Draft
	Coverage           *float64
}

// IsEmpty reports whether the patch carries no change at all.
func (p TaskPatch) IsEmpty() bool {
	return p.Status == nil &&
		p.ErrorMessage == nil &&
		p.Plan == nil &&
		len(p.CompletedQuestions) == 0 &&
		len(p.Evidence) == 0 &&
		p.Claims == nil &&
		len(p.Steps) == 0 &&
		p.Draft == nil &&
		p.Coverage == nil
}

// Apply merges the patch into task in place. The caller owns task and is
// expected to have cloned it from the stored snapshot.
func (p TaskPatch) Apply(task *ResearchTask, now time.Time) {
	if p.Plan != nil {
		task.Plan = append([]PlanQuestion{}, p.Plan...)
	}
	if len(p.CompletedQuestions) > 0 {
		done := make(map[string]struct{}, len(p.CompletedQuestions))
		for _, id := range p.CompletedQuestions {
			done[id] = struct{}{}
		}
		for i := range task.Plan {
			if _, ok := done[task.Plan[i].ID]; ok {
				task.Plan[i].Done = true
			}
		}
	}
	if len(p.Evidence) > 0 {
		task.Evidence = append(task.Evidence, p.Evidence...)
	}
	if p.Claims != nil {
		task.Claims = make([]Claim, len(p.Claims))
		for i, claim := range p.Claims {
			task.Claims[i] = claim.clone()
		}
	}
	for _, step := range p.Steps {
		task.upsertStep(step.clone())
	}
	if p.Draft != nil {
		task.Draft = p.Draft.Clone()
	}
	if p.Coverage != nil {
		coverage := clampUnit(*p.Coverage)
		task.Coverage = &coverage
	}
	if p.ErrorMessage != nil {
		task.ErrorMessage = *p.ErrorMessage
	}
	if p.Status != nil {
		task.Status = *p.Status
		if task.Status.IsTerminal() && task.CompletedAt == nil {
			completed := now
			task.CompletedAt = &completed
		}
	}
	task.UpdatedAt = now
	task.normalize()
}

func (t *ResearchTask) upsertStep(step Step) {
	for i := range t.Steps {
		if t.Steps[i].ID == step.ID {
			t.Steps[i] = step
			return
		}
	}
	t.Steps = append(t.Steps, step)
}

func clampUnit(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// StatusPtr is a small helper for building patches.
func StatusPtr(status TaskStatus) *TaskStatus {
	return &status
}

// StringPtr is a small helper for building patches.
func StringPtr(value string) *string {
	return &value
}
