package middleware

import (
	"math"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/habitcraft/habitcraft/backend/pkg/response"
	"golang.org/x/time/rate"
)

// Policy describes how many attempts a single source address gets per window.
type Policy struct {
	Attempts int
	Window   time.Duration
}

// Per-route limits for the auth endpoints.
var (
	LoginPolicy          = Policy{Attempts: 5, Window: 15 * time.Minute}
	RegisterPolicy       = Policy{Attempts: 10, Window: time.Hour}
	RefreshPolicy        = Policy{Attempts: 30, Window: 15 * time.Minute}
	PasswordChangePolicy = Policy{Attempts: 5, Window: 15 * time.Minute}
)

// ipLimiter holds a rate limiter and last-seen time per IP.
type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter enforces a Policy per source IP.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
	rps      rate.Limit
	burst    int
}

// NewRateLimiter creates a RateLimiter for the given policy. Tokens refill
// continuously at attempts-per-window; the burst equals the attempt budget.
func NewRateLimiter(p Policy) *RateLimiter {
	rl := &RateLimiter{
		limiters: make(map[string]*ipLimiter),
		rps:      rate.Limit(float64(p.Attempts) / p.Window.Seconds()),
		burst:    p.Attempts,
	}
	// Background cleanup of stale entries every 3 minutes
	go rl.cleanup()
	return rl
}

func (rl *RateLimiter) getLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.limiters[ip]
	if !exists {
		limiter := rate.NewLimiter(rl.rps, rl.burst)
		rl.limiters[ip] = &ipLimiter{limiter: limiter, lastSeen: time.Now()}
		return limiter
	}

	v.lastSeen = time.Now()
	return v.limiter
}

// cleanup removes IP entries not seen for 30 minutes.
func (rl *RateLimiter) cleanup() {
	for {
		time.Sleep(3 * time.Minute)
		rl.mu.Lock()
		for ip, v := range rl.limiters {
			if time.Since(v.lastSeen) > 30*time.Minute {
				delete(rl.limiters, ip)
			}
		}
		rl.mu.Unlock()
	}
}

// Middleware returns a Gin middleware that short-circuits with 429 before any
// business logic runs, including a Retry-After hint.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		limiter := rl.getLimiter(c.ClientIP())

		reservation := limiter.Reserve()
		if delay := reservation.Delay(); delay > 0 {
			reservation.Cancel()
			retryAfter := int(math.Ceil(delay.Seconds()))
			response.TooManyRequests(c, "too many requests, please try again later", retryAfter)
			c.Abort()
			return
		}

		c.Next()
	}
}

// RateLimit is a convenience function that creates a RateLimiter for a policy
// and returns its middleware.
func RateLimit(p Policy) gin.HandlerFunc {
	return NewRateLimiter(p).Middleware()
}
