// Package httpmiddleware holds the gin middleware shared by every route: per-client
// rate limiting, security headers, request ids, CORS and request metrics.
package httpmiddleware

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"schoolreg/internal/apierr"
	"schoolreg/internal/logging"
	"schoolreg/internal/metrics"
)

// Policy is one sliding-window limit applied per client IP.
type Policy struct {
	Name   string
	Window time.Duration
	Max    int
	// SkipSuccessful removes the hit again when the response status is below 400.
	SkipSuccessful bool
	Message        string
}

var (
	GeneralPolicy = Policy{
		Name:    "general",
		Window:  15 * time.Minute,
		Max:     100,
		Message: "Too many requests from this IP, please try again later.",
	}
	AuthPolicy = Policy{
		Name:           "auth",
		Window:         15 * time.Minute,
		Max:            5,
		SkipSuccessful: true,
		Message:        "Too many login attempts, please try again later.",
	}
	RegistrationPolicy = Policy{
		Name:    "registration",
		Window:  time.Hour,
		Max:     10,
		Message: "Too many registration attempts, please try again later.",
	}
)

// Result is the outcome of one admission check.
type Result struct {
	Allowed bool
	// Count is the number of hits in the window, including this one when allowed.
	Count int
	// HitID identifies the recorded hit so it can be undone.
	HitID string
	// RetryAfter is set on rejection: time until the oldest hit leaves the window.
	RetryAfter time.Duration
}

// Store keeps the per-key hit logs. Allow must check and record atomically per key,
// and must not record rejected requests.
type Store interface {
	Allow(ctx context.Context, key string, window time.Duration, max int, now time.Time) (Result, error)
	Undo(ctx context.Context, key, hitID string) error
}

// Limiter applies policies against an injected Store.
type Limiter struct {
	store Store
	now   func() time.Time
}

// NewLimiter builds a limiter on store.
func NewLimiter(store Store) *Limiter {
	return &Limiter{store: store, now: time.Now}
}

// Middleware enforces p. If the store fails the request is let through and the error logged.
func (l *Limiter) Middleware(p Policy) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		key := "ratelimit:" + p.Name + ":" + ip
		ctx := c.Request.Context()

		res, err := l.store.Allow(ctx, key, p.Window, p.Max, l.now())
		if err != nil {
			logging.Error().Err(err).Str("policy", p.Name).Str("ip", ip).Msg("rate limit store unavailable")
			c.Next()
			return
		}

		c.Header("RateLimit-Limit", strconv.Itoa(p.Max))
		if !res.Allowed {
			metrics.RateLimitRejections.WithLabelValues(p.Name).Inc()
			c.Header("RateLimit-Remaining", "0")
			c.Header("Retry-After", strconv.Itoa(int((res.RetryAfter+time.Second-1)/time.Second)))
			apierr.RateLimited(c, p.Message)
			return
		}
		c.Header("RateLimit-Remaining", strconv.Itoa(max(p.Max-res.Count, 0)))

		c.Next()

		if p.SkipSuccessful && c.Writer.Status() < 400 {
			if err := l.store.Undo(context.WithoutCancel(ctx), key, res.HitID); err != nil {
				logging.Warn().Err(err).Str("policy", p.Name).Msg("rate limit undo failed")
			}
		}
	}
}
