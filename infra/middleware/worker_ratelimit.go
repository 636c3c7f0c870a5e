package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/FinanGammell/pare/pkg/apperr"
	"github.com/FinanGammell/pare/pkg/response"
)

// RateLimiter is a per-caller token bucket. Callers are keyed by the
// authenticated user id, falling back to the client IP.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration
	now      func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows limit requests per window with an equal burst.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		limit:    rate.Every(window / time.Duration(limit)),
		burst:    limit,
		idleTTL:  10 * time.Minute,
		now:      time.Now,
	}
}

func (rl *RateLimiter) get(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for k, e := range rl.limiters {
		if now.Sub(e.lastSeen) > rl.idleTTL {
			delete(rl.limiters, k)
		}
	}

	e, ok := rl.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter
}

// Handler rejects callers over their budget with 429.
func (rl *RateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.IP()
		if uid, ok := c.Locals(LocalUserID).(uuid.UUID); ok {
			key = uid.String()
		}

		lim := rl.get(key)
		c.Set("X-RateLimit-Limit", strconv.Itoa(rl.burst))
		if !lim.AllowN(rl.now(), 1) {
			c.Set("X-RateLimit-Remaining", "0")
			return response.AppError(c, apperr.ErrRateLimited)
		}
		c.Set("X-RateLimit-Remaining", strconv.Itoa(int(lim.TokensAt(rl.now()))))
		return c.Next()
	}
}
