package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"deepresearch/internal/logging"
)

// StreamGuardConfig bounds status streams. Zero values disable a bound.
type StreamGuardConfig struct {
	MaxDuration   time.Duration
	MaxConcurrent int
}

// StreamGuardMiddleware caps concurrent streams and how long each may stay
// open. A capped stream ends like a client disconnect; clients reconnect or
// fall back to polling.
func StreamGuardMiddleware(cfg StreamGuardConfig, logger logging.Logger) gin.HandlerFunc {
	if cfg.MaxDuration <= 0 && cfg.MaxConcurrent <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	var sem chan struct{}
	if cfg.MaxConcurrent > 0 {
		sem = make(chan struct{}, cfg.MaxConcurrent)
	}
	return func(c *gin.Context) {
		if sem != nil {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			default:
				writeJSONError(c, logger, http.StatusTooManyRequests, "stream limit exceeded", nil)
				return
			}
		}
		if cfg.MaxDuration > 0 {
			ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.MaxDuration)
			defer cancel()
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}
