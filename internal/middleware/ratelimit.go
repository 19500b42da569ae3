package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/monkeycs60/vincent/internal/app"
	apperrors "github.com/monkeycs60/vincent/pkg/errors"
	"github.com/monkeycs60/vincent/pkg/response"
)

// RateLimiter hands out a token-bucket limiter per client IP. Idle entries
// are evicted after the configured TTL so the map stays bounded on
// single-instance deployments.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientLimiter
	limit   rate.Limit
	burst   int
	ttl     time.Duration
	clock   func() time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter builds a limiter from configuration. perMinute is converted
// to a steady refill rate; burst allows that many back-to-back requests.
func NewRateLimiter(cfg app.RateLimitConfig) *RateLimiter {
	perMinute := cfg.PerMinute
	if perMinute <= 0 {
		perMinute = 1
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	return &RateLimiter{
		clients: make(map[string]*clientLimiter),
		limit:   rate.Limit(perMinute / 60.0),
		burst:   burst,
		ttl:     ttl,
		clock:   time.Now,
	}
}

// Allow reports whether the given client may proceed, consuming one token.
func (r *RateLimiter) Allow(clientIP string) bool {
	now := r.clock()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.evictLocked(now)

	entry, ok := r.clients[clientIP]
	if !ok {
		entry = &clientLimiter{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.clients[clientIP] = entry
	}
	entry.lastSeen = now

	return entry.limiter.Allow()
}

func (r *RateLimiter) evictLocked(now time.Time) {
	for ip, entry := range r.clients {
		if now.Sub(entry.lastSeen) > r.ttl {
			delete(r.clients, ip)
		}
	}
}

// RateLimit rejects requests over the per-IP budget with a 429. A nil limiter
// or disabled config is a pass-through.
func RateLimit(cfg app.RateLimitConfig, limiter *RateLimiter) gin.HandlerFunc {
	if !cfg.Enabled || limiter == nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			response.Error(c, apperrors.ErrRateLimit)
			c.Abort()
			return
		}
		c.Next()
	}
}
