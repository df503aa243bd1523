package middleware

import (
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/reelsaver/api/pkg/response"
)

// incrWindow increments the counter and starts its window on first use.
var incrWindow = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {n, redis.call("PTTL", KEYS[1])}
`)

// RateLimiter is a fixed-window limiter keyed by user id (or client IP when
// the route is unauthenticated).
type RateLimiter struct {
	redis redis.UniversalClient
}

func NewRateLimiter(redisClient redis.UniversalClient) *RateLimiter {
	return &RateLimiter{redis: redisClient}
}

// Limit creates a rate limiting middleware
func (rl *RateLimiter) Limit(keyPrefix string, maxRequests int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if maxRequests <= 0 {
			return c.Next()
		}

		subject := GetUserID(c)
		if subject == "" {
			subject = "ip:" + c.IP()
		}
		key := fmt.Sprintf("ratelimit:%s:%s", keyPrefix, subject)

		res, err := incrWindow.Run(c.UserContext(), rl.redis, []string{key}, window.Milliseconds()).Int64Slice()
		if err != nil || len(res) != 2 {
			// Fail open: a redis outage must not take the API down.
			log.Printf("[RateLimit] ✗ %s: %v", key, err)
			return c.Next()
		}
		count, ttl := res[0], time.Duration(res[1])*time.Millisecond

		c.Set("X-RateLimit-Limit", fmt.Sprintf("%d", maxRequests))
		if count > int64(maxRequests) {
			c.Set("Retry-After", fmt.Sprintf("%d", int(ttl.Round(time.Second).Seconds())))
			c.Set("X-RateLimit-Remaining", "0")
			return response.RateLimited(c)
		}
		c.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", maxRequests-int(count)))

		return c.Next()
	}
}

// BulkLimit limits bulk job submissions per hour
func (rl *RateLimiter) BulkLimit(maxPerHour int) fiber.Handler {
	return rl.Limit("bulk", maxPerHour, time.Hour)
}

// ResolveLimit limits single URL lookups per minute
func (rl *RateLimiter) ResolveLimit(maxPerMin int) fiber.Handler {
	return rl.Limit("resolve", maxPerMin, time.Minute)
}

// StatusLimit limits job status polling per minute
func (rl *RateLimiter) StatusLimit(maxPerMin int) fiber.Handler {
	return rl.Limit("status", maxPerMin, time.Minute)
}
