package api

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// ──────────────────────────────────────────────────────────────────────
// Per-IP Token Bucket Rate Limiter
//
// Uses stdlib only — no external dependency.
//
// One bucket per client IP, filled at the configured per-minute rate up
// to the burst capacity. Empty bucket means HTTP 429 plus a Retry-After
// header. Stale buckets are swept during normal request handling, so the
// limiter runs no background goroutine and a burst of one-off IPs cannot
// grow the map forever.
// ──────────────────────────────────────────────────────────────────────

const staleAfter = 10 * time.Minute

type visitor struct {
	tokens float64
	last   time.Time
}

// RateLimiter enforces a per-IP request budget on the API group.
type RateLimiter struct {
	perSecond float64
	burst     float64
	limitDesc string

	mu        sync.Mutex
	visitors  map[string]*visitor
	lastSweep time.Time
}

// NewRateLimiter allows ratePerMin requests per minute per IP, with burst
// requests available immediately to a fresh client.
func NewRateLimiter(ratePerMin, burst int) *RateLimiter {
	return &RateLimiter{
		perSecond: float64(ratePerMin) / 60.0,
		burst:     float64(burst),
		limitDesc: fmt.Sprintf("%d requests/minute per IP", ratePerMin),
		visitors:  make(map[string]*visitor),
		lastSweep: time.Now(),
	}
}

// Middleware returns the gin handler enforcing the limit.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, retryAfter := rl.take(c.ClientIP())
		if !ok {
			c.Header("Retry-After", retryAfter.String())
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": retryAfter.String(),
				"limit":       rl.limitDesc,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// take spends one token from the client's bucket, reporting how long the
// client must wait when none is available.
func (rl *RateLimiter) take(ip string) (bool, time.Duration) {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) > staleAfter {
		rl.sweepLocked(now)
	}

	v, seen := rl.visitors[ip]
	if !seen {
		// New clients start with a full bucket.
		v = &visitor{tokens: rl.burst, last: now}
		rl.visitors[ip] = v
	}

	v.tokens += now.Sub(v.last).Seconds() * rl.perSecond
	if v.tokens > rl.burst {
		v.tokens = rl.burst
	}
	v.last = now

	if v.tokens < 1 {
		wait := time.Duration((1 - v.tokens) / rl.perSecond * float64(time.Second))
		return false, wait
	}
	v.tokens--
	return true, 0
}

// sweepLocked drops buckets idle past the stale window. Callers hold mu.
func (rl *RateLimiter) sweepLocked(now time.Time) {
	cutoff := now.Add(-staleAfter)
	for ip, v := range rl.visitors {
		if v.last.Before(cutoff) {
			delete(rl.visitors, ip)
		}
	}
	rl.lastSweep = now
}
