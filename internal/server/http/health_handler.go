package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"deepresearch/internal/server/ports"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status     string                  `json:"status"`
	Components []ports.ComponentHealth `json:"components"`
}

// HandleHealth reports every registered probe. Any probe in error turns the
// response into 503.
func HandleHealth(checker ports.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		components := []ports.ComponentHealth{}
		if checker != nil {
			components = append(components, checker.CheckAll(c.Request.Context())...)
		}
		status, code := "ok", http.StatusOK
		for _, component := range components {
			if component.Status == ports.HealthStatusError {
				status, code = "degraded", http.StatusServiceUnavailable
				break
			}
		}
		c.JSON(code, HealthResponse{Status: status, Components: components})
	}
}
