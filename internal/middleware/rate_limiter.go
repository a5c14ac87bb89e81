package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter implements rate limiting for API endpoints. Read traffic is
// limited per client IP; rule set mutations are additionally limited per
// tenant so one tenant's bulk edits cannot starve the rest.
type RateLimiter struct {
	ipLimiters     map[string]*rate.Limiter
	tenantLimiters map[string]*rate.Limiter
	ipMutex        sync.RWMutex
	tenantMutex    sync.RWMutex
	ipRate         rate.Limit
	tenantRate     rate.Limit
	ipBurst        int
	tenantBurst    int
	cleanupTicker  *time.Ticker
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(ipRequestsPerSecond, tenantWritesPerMinute float64, ipBurst, tenantBurst int) *RateLimiter {
	limiter := &RateLimiter{
		ipLimiters:     make(map[string]*rate.Limiter),
		tenantLimiters: make(map[string]*rate.Limiter),
		ipRate:         rate.Limit(ipRequestsPerSecond),
		tenantRate:     rate.Limit(tenantWritesPerMinute / 60),
		ipBurst:        ipBurst,
		tenantBurst:    tenantBurst,
		cleanupTicker:  time.NewTicker(5 * time.Minute),
	}

	go limiter.cleanup()

	return limiter
}

// cleanup periodically resets the limiter maps to prevent unbounded growth
func (rl *RateLimiter) cleanup() {
	for range rl.cleanupTicker.C {
		rl.ipMutex.Lock()
		rl.ipLimiters = make(map[string]*rate.Limiter)
		rl.ipMutex.Unlock()

		rl.tenantMutex.Lock()
		rl.tenantLimiters = make(map[string]*rate.Limiter)
		rl.tenantMutex.Unlock()
	}
}

// Stop stops the rate limiter cleanup
func (rl *RateLimiter) Stop() {
	rl.cleanupTicker.Stop()
}

func (rl *RateLimiter) getIPLimiter(ip string) *rate.Limiter {
	rl.ipMutex.RLock()
	limiter, exists := rl.ipLimiters[ip]
	rl.ipMutex.RUnlock()

	if !exists {
		rl.ipMutex.Lock()
		limiter = rate.NewLimiter(rl.ipRate, rl.ipBurst)
		rl.ipLimiters[ip] = limiter
		rl.ipMutex.Unlock()
	}

	return limiter
}

func (rl *RateLimiter) getTenantLimiter(tenant string) *rate.Limiter {
	rl.tenantMutex.RLock()
	limiter, exists := rl.tenantLimiters[tenant]
	rl.tenantMutex.RUnlock()

	if !exists {
		rl.tenantMutex.Lock()
		limiter = rate.NewLimiter(rl.tenantRate, rl.tenantBurst)
		rl.tenantLimiters[tenant] = limiter
		rl.tenantMutex.Unlock()
	}

	return limiter
}

// IPRateLimiterMiddleware limits requests based on IP address
func (rl *RateLimiter) IPRateLimiterMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		limiter := rl.getIPLimiter(ip)

		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// TenantWriteLimiterMiddleware limits mutating requests per tenant. Must run
// after AuthMiddleware so the tenant id is on the context; unauthenticated
// requests fall back to IP keying.
func (rl *RateLimiter) TenantWriteLimiterMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet {
			c.Next()
			return
		}

		key := c.GetString("tenant_id")
		if key == "" {
			key = c.ClientIP()
		}

		if !rl.getTenantLimiter(key).Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "too many rule set changes, please slow down",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
