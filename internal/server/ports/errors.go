package ports

import "errors"

var (
	// ErrPlanningFailed aborts the task: nothing downstream can run without sub-questions.
	ErrPlanningFailed = errors.New("planning failed")
	// ErrSearchFailed is scoped to one question and never fatal on its own.
	ErrSearchFailed = errors.New("search failed")
	// ErrExtractionFailed degrades to an empty claim set.
	ErrExtractionFailed = errors.New("extraction failed")
	// ErrDraftingFailed ends the task in error but keeps partial results.
	ErrDraftingFailed = errors.New("drafting failed")
	// ErrTaskNotFound is returned by reads for unknown ids.
	ErrTaskNotFound = errors.New("task not found")
	// ErrInvalidRequest covers malformed client input such as an empty goal.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrTaskFrozen rejects writes against a task that already reached a terminal status.
	ErrTaskFrozen = errors.New("task is in a terminal status")
	// ErrTaskCancelled is the cancellation cause recorded on cancelled tasks.
	ErrTaskCancelled = errors.New("research task cancelled")
	// ErrShuttingDown rejects new tasks once the service has begun shutting down.
	ErrShuttingDown = errors.New("service is shutting down")
)
