package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"deepresearch/internal/logging"
	"deepresearch/internal/observability"
	"deepresearch/internal/server/ports"
)

const transportSSE = "sse"

// SSEHandler streams task status over Server-Sent Events.
type SSEHandler struct {
	feed    *statusFeed
	metrics *observability.HTTPMetrics
	logger  logging.Logger
}

// NewSSEHandler creates a new SSE handler. metrics may be nil.
func NewSSEHandler(service ports.ResearchService, notifier TaskNotifier, interval time.Duration, metrics *observability.HTTPMetrics) *SSEHandler {
	return &SSEHandler{
		feed:    newStatusFeed(service, notifier, interval),
		metrics: metrics,
		logger:  logging.NewComponentLogger("SSEHandler"),
	}
}

// HandleStatusStream handles GET /api/research/:id/events.
func (h *SSEHandler) HandleStatusStream(c *gin.Context) {
	taskID := c.Param("id")
	if err := validateTaskID(taskID); err != nil {
		writeJSONError(c, h.logger, http.StatusBadRequest, ports.ErrInvalidRequest.Error(), err)
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		writeJSONError(c, h.logger, http.StatusInternalServerError, "streaming unsupported", nil)
		return
	}

	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := c.Request.Context()
	logger := logging.FromContext(ctx, h.logger)
	logger.Info("SSE connection established for task: %s", taskID)
	if h.metrics != nil {
		h.metrics.StreamOpened(ctx, transportSSE)
		defer h.metrics.StreamClosed(ctx, transportSSE)
	}

	err := h.feed.run(ctx, taskID, func(event StreamEvent) error {
		data, err := json.Marshal(event)
		if err != nil {
			return err
		}
		// Format: event: <type>\ndata: <json>\n\n
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil && ctx.Err() == nil {
		logger.Warn("SSE stream for %s ended: %v", taskID, err)
		return
	}
	logger.Info("SSE connection closed for task: %s", taskID)
}
