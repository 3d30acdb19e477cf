package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// rateLimitByClientIP returns a token-bucket middleware keyed by client IP.
// A non-positive budget disables the limit.
func rateLimitByClientIP(perMinute int) gin.HandlerFunc {
	if perMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	limiters := &ipLimiters{
		interval: time.Minute / time.Duration(perMinute),
		burst:    perMinute,
		byIP:     make(map[string]*rate.Limiter),
	}

	return func(c *gin.Context) {
		if !limiters.limiterFor(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
			return
		}
		c.Next()
	}
}

type ipLimiters struct {
	mu       sync.Mutex
	interval time.Duration
	burst    int
	byIP     map[string]*rate.Limiter
}

func (l *ipLimiters) limiterFor(clientIP string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.byIP[clientIP]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(l.interval), l.burst)
		l.byIP[clientIP] = limiter
	}
	return limiter
}
