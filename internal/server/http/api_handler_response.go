package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"deepresearch/internal/logging"
	"deepresearch/internal/server/ports"
)

type apiErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// classifyError maps service errors onto a status code and a stable message.
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, ports.ErrInvalidRequest):
		return http.StatusBadRequest, ports.ErrInvalidRequest.Error()
	case errors.Is(err, ports.ErrTaskNotFound):
		return http.StatusNotFound, ports.ErrTaskNotFound.Error()
	case errors.Is(err, ports.ErrTaskFrozen):
		return http.StatusConflict, ports.ErrTaskFrozen.Error()
	case errors.Is(err, ports.ErrShuttingDown):
		return http.StatusServiceUnavailable, ports.ErrShuttingDown.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// errorDetails drops the sentinel prefix so "invalid request: goal is
// required" is reported as details "goal is required".
func errorDetails(message string, err error) string {
	if err == nil {
		return ""
	}
	text := err.Error()
	if trimmed := strings.TrimPrefix(text, message+": "); trimmed != "" {
		return trimmed
	}
	return text
}

func writeServiceError(c *gin.Context, logger logging.Logger, err error) {
	status, message := classifyError(err)
	writeJSONError(c, logger, status, message, err)
}

func writeJSONError(c *gin.Context, logger logging.Logger, status int, message string, err error) {
	logger = logging.FromContext(c.Request.Context(), logging.OrNop(logger))
	switch {
	case err == nil:
		logger.Warn("HTTP %d - %s", status, message)
	case status >= http.StatusInternalServerError:
		logger.Error("HTTP %d - %s: %v", status, message, err)
	default:
		logger.Warn("HTTP %d - %s: %v", status, message, err)
	}
	c.AbortWithStatusJSON(status, apiErrorResponse{
		Error:   message,
		Details: errorDetails(message, err),
	})
}
