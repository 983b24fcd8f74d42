package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimitFailureMode controls behavior when the limiter backend is down.
type RateLimitFailureMode int

const (
	// RateLimitFailOpen lets requests through when redis is unreachable.
	// This is the default: losing rate limiting is cheaper than losing the API.
	RateLimitFailOpen RateLimitFailureMode = iota
	// RateLimitFailClose rejects requests when redis is unreachable.
	RateLimitFailClose
)

// RateLimitOptions tune a single limit.
type RateLimitOptions struct {
	FailureMode RateLimitFailureMode
}

// RateLimiter is a fixed-window counter in redis, keyed per caller. The
// caller key is the authenticated agency when present, the client IP
// otherwise.
type RateLimiter struct {
	client *redis.Client
}

// NewRateLimiter creates a limiter on the given redis client.
func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{client: client}
}

// rateLimitScript increments the window counter and stamps the TTL only when
// the key is fresh, so a busy window never has its expiry pushed out.
var rateLimitScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// rateLimitRun is a seam for tests; production always runs the script.
var rateLimitRun = func(ctx context.Context, client *redis.Client, key string, windowMillis int64) (int64, bool, error) {
	count, err := rateLimitScript.Run(ctx, client, []string{key}, windowMillis).Int64()
	if err != nil {
		return 0, false, err
	}
	return count, count == 1, nil
}

// Limit applies a fail-open limit of max requests per window.
func (l *RateLimiter) Limit(name string, max int, window time.Duration) gin.HandlerFunc {
	return l.LimitWithOptions(name, max, window, RateLimitOptions{})
}

// LimitWithOptions applies a limit with explicit failure behavior.
func (l *RateLimiter) LimitWithOptions(name string, max int, window time.Duration, opts RateLimitOptions) gin.HandlerFunc {
	windowMillis := windowTTLMillis(window)

	return func(c *gin.Context) {
		key := rateLimitKey(name, c)

		count, _, err := rateLimitRun(c.Request.Context(), l.client, key, windowMillis)
		if err != nil {
			if opts.FailureMode == RateLimitFailClose {
				c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
					Code:    "RATE_LIMITED",
					Message: "rate limiter unavailable, request rejected",
				})
				return
			}
			c.Next()
			return
		}

		if count > int64(max) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Code:    "RATE_LIMITED",
				Message: "too many requests, please retry later",
			})
			return
		}
		c.Next()
	}
}

func rateLimitKey(name string, c *gin.Context) string {
	if agencyID := GetAgencyIDFromContext(c); agencyID != 0 {
		return fmt.Sprintf("connecthub:ratelimit:%s:agency:%d", name, agencyID)
	}
	return fmt.Sprintf("connecthub:ratelimit:%s:ip:%s", name, c.ClientIP())
}

// windowTTLMillis converts a window to whole milliseconds, never below one.
func windowTTLMillis(window time.Duration) int64 {
	millis := window.Milliseconds()
	if millis < 1 {
		return 1
	}
	return millis
}
