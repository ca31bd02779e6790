package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"deepresearch/internal/logging"
	"deepresearch/internal/observability"
	"deepresearch/internal/server/ports"
)

const (
	transportWebSocket = "websocket"
	wsWriteTimeout     = 10 * time.Second
)

// WebSocketHandler streams the same status events as SSEHandler over a
// WebSocket connection.
type WebSocketHandler struct {
	feed     *statusFeed
	upgrader websocket.Upgrader
	metrics  *observability.HTTPMetrics
	logger   logging.Logger
}

// NewWebSocketHandler creates a handler. checkOrigin nil accepts any origin.
func NewWebSocketHandler(service ports.ResearchService, notifier TaskNotifier, interval time.Duration, metrics *observability.HTTPMetrics, checkOrigin func(*http.Request) bool) *WebSocketHandler {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &WebSocketHandler{
		feed: newStatusFeed(service, notifier, interval),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		metrics: metrics,
		logger:  logging.NewComponentLogger("WebSocketHandler"),
	}
}

// HandleStatusSocket handles GET /api/research/:id/ws.
func (h *WebSocketHandler) HandleStatusSocket(c *gin.Context) {
	taskID := c.Param("id")
	if err := validateTaskID(taskID); err != nil {
		writeJSONError(c, h.logger, http.StatusBadRequest, ports.ErrInvalidRequest.Error(), err)
		return
	}

	logger := logging.FromContext(c.Request.Context(), h.logger)
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		logger.Warn("websocket upgrade failed for %s: %v", taskID, err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	if h.metrics != nil {
		h.metrics.StreamOpened(ctx, transportWebSocket)
		defer h.metrics.StreamClosed(ctx, transportWebSocket)
	}

	// The stream is server-to-client only; reading is how a client close is
	// noticed.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	err = h.feed.run(ctx, taskID, func(event StreamEvent) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(event)
	})
	if err != nil && ctx.Err() == nil {
		logger.Warn("websocket stream for %s ended: %v", taskID, err)
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(wsWriteTimeout))
}
