package ports

import "context"

// TaskSummary is the compact listing row used by operational tooling.
type TaskSummary struct {
	ID            string       `json:"id"`
	Goal          string       `json:"goal"`
	Mode          ResearchMode `json:"mode"`
	Status        TaskStatus   `json:"status"`
	EvidenceCount int          `json:"evidenceCount"`
	ClaimCount    int          `json:"claimCount"`
	CurrentStep   string       `json:"currentStep,omitempty"`
}

// Summarize builds the listing row for a snapshot.
func Summarize(task *ResearchTask) TaskSummary {
	summary := TaskSummary{
		ID:            task.ID,
		Goal:          task.Goal,
		Mode:          task.Mode,
		Status:        task.Status,
		EvidenceCount: len(task.Evidence),
		ClaimCount:    len(task.Claims),
	}
	if step, ok := task.LastStep(); ok {
		summary.CurrentStep = step.ID
	}
	return summary
}

// ResearchService is what the HTTP layer needs from the application layer.
type ResearchService interface {
	CreateTask(ctx context.Context, goal string, mode ResearchMode) (*ResearchTask, error)
	GetTask(ctx context.Context, taskID string) (*ResearchTask, error)
	ListTasks(ctx context.Context) ([]TaskSummary, error)
	DeleteTask(ctx context.Context, taskID string) error
	CancelTask(ctx context.Context, taskID string) error
}
