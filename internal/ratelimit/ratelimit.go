// Package ratelimit provides rate limiting middleware for the ScamShield API.
package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Config configures rate limiting.
type Config struct {
	// RequestsPerMinute is the max requests per key per minute
	RequestsPerMinute int
	// BurstSize allows brief bursts above the limit
	BurstSize int
	// CleanupInterval is how often to clean old entries
	CleanupInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 120,
		BurstSize:         20,
		CleanupInterval:   time.Minute,
	}
}

// Limiter tracks token buckets by key.
type Limiter struct {
	cfg     Config
	mu      sync.Mutex
	buckets map[string]*bucket
	stop    chan struct{}
}

type bucket struct {
	tokens    float64
	lastCheck time.Time
}

// New creates a rate limiter and starts its cleanup loop.
func New(cfg Config) *Limiter {
	l := &Limiter{
		cfg:     cfg,
		buckets: make(map[string]*bucket),
		stop:    make(chan struct{}),
	}
	go l.cleanup()
	return l
}

func (l *Limiter) cleanup() {
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.mu.Lock()
			cutoff := time.Now().Add(-2 * time.Minute)
			for key, b := range l.buckets {
				if b.lastCheck.Before(cutoff) {
					delete(l.buckets, key)
				}
			}
			l.mu.Unlock()
		case <-l.stop:
			return
		}
	}
}

// Stop stops the cleanup goroutine.
func (l *Limiter) Stop() {
	close(l.stop)
}

// Allow reports whether a request under the given key may proceed,
// consuming one token if so.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, exists := l.buckets[key]
	if !exists {
		l.buckets[key] = &bucket{
			tokens:    float64(l.cfg.BurstSize - 1),
			lastCheck: now,
		}
		return true
	}

	refill := now.Sub(b.lastCheck).Seconds() * float64(l.cfg.RequestsPerMinute) / 60.0
	b.tokens += refill
	if b.tokens > float64(l.cfg.BurstSize) {
		b.tokens = float64(l.cfg.BurstSize)
	}
	b.lastCheck = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Middleware rate limits by client IP.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow("ip:" + c.ClientIP()) {
			tooMany(c)
			return
		}
		c.Next()
	}
}

// PerTransaction rate limits by the transaction path parameter, keeping a
// scripted caller from hammering one workflow's stage endpoints.
func (l *Limiter) PerTransaction(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "tx:" + c.Param(param)
		if key == "tx:" {
			key = "ip:" + c.ClientIP()
		}
		if !l.Allow(key) {
			tooMany(c)
			return
		}
		c.Next()
	}
}

func tooMany(c *gin.Context) {
	c.JSON(http.StatusTooManyRequests, gin.H{
		"error":       "rate_limit_exceeded",
		"message":     "Too many requests. Please slow down.",
		"retry_after": 1,
	})
	c.Abort()
}
