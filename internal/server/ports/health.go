package ports

import "context"

// HealthStatus is the readiness of one component.
type HealthStatus string

const (
	HealthStatusReady    HealthStatus = "ready"
	HealthStatusNotReady HealthStatus = "not_ready"
	HealthStatusDisabled HealthStatus = "disabled"
	HealthStatusError    HealthStatus = "error"
)

// ComponentHealth is one row of the /health report.
type ComponentHealth struct {
	Name    string         `json:"name"`
	Status  HealthStatus   `json:"status"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// HealthProbe reports the health of a single component.
type HealthProbe interface {
	Check(ctx context.Context) ComponentHealth
}

// HealthChecker aggregates probes.
type HealthChecker interface {
	CheckAll(ctx context.Context) []ComponentHealth
}
