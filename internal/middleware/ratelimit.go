// ratelimit.go provides Gin middleware enforcing per-client rate limits and
// the two limiter backends behind it: a Redis sliding window shared across
// replicas, and an in-process token bucket for installs without Redis.
package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

// Limiter decides whether a request from a client key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, remaining int)
}

// ---------------------------------------------------------------------------
// Redis-backed limiter
// ---------------------------------------------------------------------------

// RedisLimiter enforces a shared sliding-window limit via redis_rate. All
// server replicas pointing at the same Redis see one combined budget per key.
type RedisLimiter struct {
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
}

// NewRedisLimiter creates a limiter allowing perMinute requests with the given burst
func NewRedisLimiter(client *redis.Client, perMinute, burst int) *RedisLimiter {
	return &RedisLimiter{
		limiter: redis_rate.NewLimiter(client),
		limit: redis_rate.Limit{
			Rate:   perMinute,
			Burst:  burst,
			Period: time.Minute,
		},
	}
}

// Allow consumes one request from the key's budget. Redis being unreachable
// fails open: blocking all traffic on a Redis outage is worse than briefly
// losing rate limiting.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, int) {
	res, err := l.limiter.Allow(ctx, key, l.limit)
	if err != nil {
		return true, l.limit.Burst
	}
	return res.Allowed > 0, res.Remaining
}

// ---------------------------------------------------------------------------
// In-memory limiter
// ---------------------------------------------------------------------------

// bucket tracks the token balance for one client key.
type bucket struct {
	tokens     float64
	lastUpdate time.Time
}

// MemoryLimiter is a per-process token bucket limiter for installs without
// Redis. Budgets are per replica, not shared.
type MemoryLimiter struct {
	perMinute int
	burst     int
	buckets   map[string]*bucket
	mu        sync.Mutex
	stopCh    chan struct{}
}

// NewMemoryLimiter creates a limiter allowing perMinute requests with the
// given burst, and starts its idle-entry janitor.
func NewMemoryLimiter(perMinute, burst int) *MemoryLimiter {
	l := &MemoryLimiter{
		perMinute: perMinute,
		burst:     burst,
		buckets:   make(map[string]*bucket),
		stopCh:    make(chan struct{}),
	}
	go l.cleanup()
	return l
}

// cleanup periodically drops buckets that have been idle long enough to be full again
func (l *MemoryLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.mu.Lock()
			now := time.Now()
			for key, b := range l.buckets {
				if now.Sub(b.lastUpdate) > 10*time.Minute {
					delete(l.buckets, key)
				}
			}
			l.mu.Unlock()
		case <-l.stopCh:
			return
		}
	}
}

// Stop stops the cleanup goroutine
func (l *MemoryLimiter) Stop() {
	close(l.stopCh)
}

// Allow consumes one token from the key's bucket
func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, exists := l.buckets[key]
	if !exists {
		l.buckets[key] = &bucket{tokens: float64(l.burst) - 1, lastUpdate: now}
		return true, l.burst - 1
	}

	refill := now.Sub(b.lastUpdate).Seconds() * float64(l.perMinute) / 60.0
	b.tokens = min(float64(l.burst), b.tokens+refill)
	b.lastUpdate = now

	if b.tokens >= 1 {
		b.tokens--
		return true, int(b.tokens)
	}
	return false, 0
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

// RateLimit enforces the limiter per client key, answering 429 with a
// Retry-After when the budget is exhausted.
func RateLimit(limiter Limiter, perMinute int) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := rateLimitKey(c)

		allowed, remaining := limiter.Allow(c.Request.Context(), key)
		c.Header("X-RateLimit-Limit", strconv.Itoa(perMinute))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": 60,
			})
			return
		}
		c.Next()
	}
}

// rateLimitKey buckets authenticated requests per user and anonymous ones per
// client IP, so one noisy user cannot exhaust an office NAT's budget.
func rateLimitKey(c *gin.Context) string {
	if userID, exists := c.Get(UserIDKey); exists {
		if id, ok := userID.(string); ok && id != "" {
			return "user:" + id
		}
	}

	ip := c.ClientIP()
	if ip == "" {
		ip = c.Request.RemoteAddr
	}
	return "ip:" + ip
}
