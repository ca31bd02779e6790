package ports

import "context"

// TaskStore is the source of truth for research task snapshots.
//
// Implementations must hand out copies: a snapshot returned by Get is never
// mutated by later writes, and a snapshot passed to Save is never retained by
// reference. Each call is atomic on its own; no transaction spans two calls.
type TaskStore interface {
	// Save inserts or fully replaces the snapshot for task.ID.
	Save(ctx context.Context, task *ResearchTask) error

	// Get returns the latest snapshot or ErrTaskNotFound.
	Get(ctx context.Context, taskID string) (*ResearchTask, error)

	// Update merges patch into the stored snapshot. Unknown ids are a silent
	// no-op; terminal snapshots reject non-empty patches with ErrTaskFrozen.
	Update(ctx context.Context, taskID string, patch TaskPatch) error

	// Delete removes a task. Unknown ids are a no-op.
	Delete(ctx context.Context, taskID string) error

	// List returns every snapshot, newest first. Operational use only.
	List(ctx context.Context) ([]*ResearchTask, error)
}
