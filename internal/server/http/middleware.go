package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"deepresearch/internal/logging"
	id "deepresearch/internal/utils/id"
)

// LogIDHeader carries the per-request log id in and out.
const LogIDHeader = "X-Log-ID"

// CORSMiddleware allows the configured origins. Outside production an empty
// list allows every origin.
func CORSMiddleware(environment string, allowedOrigins []string) gin.HandlerFunc {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", LogIDHeader}
	corsConfig.ExposeHeaders = []string{LogIDHeader}
	corsConfig.AllowWebSockets = true

	origins := normalizeOrigins(allowedOrigins)
	if len(origins) == 0 || containsWildcard(origins) {
		if isProduction(environment) && len(origins) == 0 {
			// Same-origin only.
			corsConfig.AllowOriginFunc = func(string) bool { return false }
		} else {
			corsConfig.AllowAllOrigins = true
		}
	} else {
		corsConfig.AllowOrigins = origins
		corsConfig.AllowCredentials = true
	}
	return cors.New(corsConfig)
}

// LogIDMiddleware attaches a log id to the request context, reusing the
// caller's X-Log-ID when present.
func LogIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if incoming := strings.TrimSpace(c.GetHeader(LogIDHeader)); incoming != "" {
			ctx = id.WithLogID(ctx, incoming)
		}
		ctx, logID := id.EnsureLogID(ctx)
		c.Request = c.Request.WithContext(ctx)
		c.Header(LogIDHeader, logID)
		c.Next()
	}
}

// LoggingMiddleware logs incoming requests
func LoggingMiddleware(logger logging.Logger) gin.HandlerFunc {
	logger = logging.OrNop(logger)
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.FromContext(c.Request.Context(), logger).Info("%s %s from %s -> %d (%s)",
			c.Request.Method, c.Request.URL.Path, c.ClientIP(), c.Writer.Status(), time.Since(start).Round(time.Millisecond))
	}
}

// RecoveryMiddleware turns handler panics into a JSON 500.
func RecoveryMiddleware(logger logging.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		writeJSONError(c, logger, http.StatusInternalServerError, "internal error", nil)
		logging.OrNop(logger).Error("panic serving %s %s: %v", c.Request.Method, c.Request.URL.Path, recovered)
	})
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, origin := range origins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin != "" {
			out = append(out, origin)
		}
	}
	return out
}

func containsWildcard(origins []string) bool {
	for _, origin := range origins {
		if origin == "*" {
			return true
		}
	}
	return false
}

func isProduction(environment string) bool {
	return strings.EqualFold(strings.TrimSpace(environment), "production")
}

// originChecker mirrors the CORS policy for WebSocket upgrades.
func originChecker(environment string, allowedOrigins []string) func(*http.Request) bool {
	origins := normalizeOrigins(allowedOrigins)
	allowAll := containsWildcard(origins) || (len(origins) == 0 && !isProduction(environment))
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowAll {
			return true
		}
		for _, allowed := range origins {
			if strings.EqualFold(origin, allowed) {
				return true
			}
		}
		return false
	}
}
