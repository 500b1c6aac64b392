package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// clientWindow tracks requests from one IP inside the current window.
type clientWindow struct {
	Count   int
	FirstAt time.Time
}

// RateLimiter is a fixed-window request limiter keyed by client IP.
type RateLimiter struct {
	mu           sync.Mutex
	clients      map[string]*clientWindow
	maxRequests  int
	windowPeriod time.Duration
	now          func() time.Time
}

// NewRateLimiter allows maxRequests per IP within each windowPeriod.
func NewRateLimiter(maxRequests int, windowPeriod time.Duration) *RateLimiter {
	return &RateLimiter{
		clients:      make(map[string]*clientWindow),
		maxRequests:  maxRequests,
		windowPeriod: windowPeriod,
		now:          time.Now,
	}
}

// Cleanup drops windows that have expired.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for ip, w := range rl.clients {
		if now.Sub(w.FirstAt) >= rl.windowPeriod {
			delete(rl.clients, ip)
		}
	}
}

// Allow records a request from ip. It reports whether the request may proceed,
// how many remain in the window and, when refused, how long until the window resets.
func (rl *RateLimiter) Allow(ip string) (bool, int, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, exists := rl.clients[ip]
	if !exists || now.Sub(w.FirstAt) >= rl.windowPeriod {
		rl.clients[ip] = &clientWindow{Count: 1, FirstAt: now}
		return true, rl.maxRequests - 1, 0
	}

	if w.Count >= rl.maxRequests {
		return false, 0, rl.windowPeriod - now.Sub(w.FirstAt)
	}
	w.Count++
	return true, rl.maxRequests - w.Count, 0
}

// RateLimit refuses requests over the limit with 429 and a Retry-After header.
func RateLimit(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, remaining, retryAfter := rl.Allow(c.ClientIP())
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			seconds := int(math.Ceil(retryAfter.Seconds()))
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": fmt.Sprintf("too many requests, retry in %d second(s)", seconds),
			})
			return
		}
		c.Next()
	}
}
