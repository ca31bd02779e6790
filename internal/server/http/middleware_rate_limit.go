package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"deepresearch/internal/logging"
)

// RateLimitConfig bounds how fast one client may create tasks.
type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
	EntryTTL          time.Duration
	CleanupInterval   time.Duration
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter keeps one token bucket per client key. Buckets idle for longer
// than ttl are dropped on the next sweep.
type rateLimiter struct {
	mu         sync.Mutex
	limit      rate.Limit
	burst      int
	buckets    map[string]*clientBucket
	ttl        time.Duration
	sweepEvery time.Duration
	lastSweep  time.Time
	now        func() time.Time
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	limiter := &rateLimiter{
		limit:      rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute)),
		burst:      cfg.Burst,
		buckets:    make(map[string]*clientBucket),
		ttl:        cfg.EntryTTL,
		sweepEvery: cfg.CleanupInterval,
		now:        time.Now,
	}
	if limiter.ttl <= 0 {
		limiter.ttl = 15 * time.Minute
	}
	if limiter.sweepEvery <= 0 {
		limiter.sweepEvery = 5 * time.Minute
	}
	limiter.lastSweep = limiter.now()
	return limiter
}

func (r *rateLimiter) allow(key string) bool {
	if key == "" {
		return true
	}
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()
	if now.Sub(r.lastSweep) >= r.sweepEvery {
		r.sweep(now)
	}

	bucket := r.buckets[key]
	if bucket == nil {
		bucket = &clientBucket{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.buckets[key] = bucket
	}
	bucket.lastSeen = now
	return bucket.limiter.AllowN(now, 1)
}

// sweep must be called with mu held.
func (r *rateLimiter) sweep(now time.Time) {
	for key, bucket := range r.buckets {
		if now.Sub(bucket.lastSeen) > r.ttl {
			delete(r.buckets, key)
		}
	}
	r.lastSweep = now
}

func (r *rateLimiter) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buckets)
}

// RateLimitMiddleware answers 429 once a client IP exceeds cfg. A zero
// config disables limiting.
func RateLimitMiddleware(cfg RateLimitConfig, logger logging.Logger) gin.HandlerFunc {
	if cfg.RequestsPerMinute <= 0 || cfg.Burst <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	limiter := newRateLimiter(cfg)
	return func(c *gin.Context) {
		if !limiter.allow(rateLimitKey(c)) {
			writeJSONError(c, logger, http.StatusTooManyRequests, "rate limit exceeded", nil)
			return
		}
		c.Next()
	}
}

func rateLimitKey(c *gin.Context) string {
	if ip := c.ClientIP(); ip != "" {
		return "ip:" + ip
	}
	return "anonymous"
}
