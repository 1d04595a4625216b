package middleware

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"
)

const (
	cleanupThreshold = 1000
	maxIdleAge       = 10 * time.Minute
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedRateLimiter hands out one token bucket per key and prunes idle keys inline.
type KeyedRateLimiter struct {
	mu   sync.Mutex
	keys map[string]*limiterEntry
	r    rate.Limit
	b    int
}

func NewKeyedRateLimiter(r rate.Limit, b int) *KeyedRateLimiter {
	return &KeyedRateLimiter{keys: make(map[string]*limiterEntry), r: r, b: b}
}

// PerMinute builds a limiter allowing n events per minute with a burst of n.
func PerMinute(n int) *KeyedRateLimiter {
	return NewKeyedRateLimiter(rate.Every(time.Minute/time.Duration(n)), n)
}

func (k *KeyedRateLimiter) GetLimiter(key string) *rate.Limiter {
	k.mu.Lock()
	defer k.mu.Unlock()

	if len(k.keys) > cleanupThreshold {
		cutoff := time.Now().Add(-maxIdleAge)
		for key, e := range k.keys {
			if e.lastSeen.Before(cutoff) {
				delete(k.keys, key)
			}
		}
	}

	e, ok := k.keys[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(k.r, k.b)}
		k.keys[key] = e
	}
	e.lastSeen = time.Now()
	return e.limiter
}

// UserRateLimitMiddleware limits requests per authenticated user, falling
// back to the client IP. It must run after UserContextMiddleware.
func UserRateLimitMiddleware(limiter *KeyedRateLimiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := UserID(c)
		if key == "" {
			key = "ip:" + c.IP()
		}
		if !limiter.GetLimiter(key).Allow() {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many submissions, slow down",
			})
		}
		return c.Next()
	}
}
