package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/jengzang/records-tracks-go/pkg/response"
)

// RateLimiter is a token-bucket limiter keyed by caller. Each key may spend
// limit requests at once and regains them evenly over window.
type RateLimiter struct {
	limiters map[string]*limiterEntry
	mu       sync.Mutex
	every    rate.Limit
	burst    int
	window   time.Duration
	now      func() time.Time
}

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		every:    rate.Every(window / time.Duration(limit)),
		burst:    limit,
		window:   window,
		now:      time.Now,
	}
}

// Allow reports whether key may make another request, spending a token if so.
// Keys idle for a whole window are dropped once more than 1024 are tracked.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	entry, ok := rl.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.every, rl.burst)}
		rl.limiters[key] = entry
	}
	entry.lastAccess = now

	if len(rl.limiters) > 1024 {
		for k, e := range rl.limiters {
			if now.Sub(e.lastAccess) >= rl.window {
				delete(rl.limiters, k)
			}
		}
	}
	return entry.limiter.AllowN(now, 1)
}

// RateLimit middleware limits requests per authenticated user, falling back
// to the client IP. A non-positive limit disables it.
func RateLimit(limit int, window time.Duration) gin.HandlerFunc {
	if limit <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	limiter := NewRateLimiter(limit, window)

	return func(c *gin.Context) {
		key := c.ClientIP()
		if id := UserID(c); id > 0 {
			key = "user:" + strconv.FormatInt(id, 10)
		}

		if !limiter.Allow(key) {
			response.Abort(c, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
			return
		}
		c.Next()
	}
}
