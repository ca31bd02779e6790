package id

import "context"

type contextKey string

const (
	taskKey contextKey = "deepresearch_task_id"
	logKey  contextKey = "deepresearch_log_id"
)

// WithTaskID stores the research task identifier on the context.
func WithTaskID(ctx context.Context, taskID string) context.Context {
	if taskID == "" {
		return ctx
	}
	return context.WithValue(ctx, taskKey, taskID)
}

// TaskIDFromContext extracts the research task identifier from context.
func TaskIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if taskID, ok := ctx.Value(taskKey).(string); ok {
		return taskID
	}
	return ""
}

// WithLogID stores the provided log identifier on the context.
func WithLogID(ctx context.Context, logID string) context.Context {
	if logID == "" {
		return ctx
	}
	return context.WithValue(ctx, logKey, logID)
}

// LogIDFromContext extracts the log identifier from context.
func LogIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if logID, ok := ctx.Value(logKey).(string); ok {
		return logID
	}
	return ""
}

// EnsureLogID returns ctx with a log id, generating one when absent.
func EnsureLogID(ctx context.Context) (context.Context, string) {
	if logID := LogIDFromContext(ctx); logID != "" {
		return ctx, logID
	}
	logID := NewLogID()
	return WithLogID(ctx, logID), logID
}
