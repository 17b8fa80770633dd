package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"travelblog/internal/config"
	"travelblog/internal/ratelimit"
	"travelblog/internal/security"
)

type Allower interface {
	Allow(ctx context.Context, bucket, key string, policy config.RateLimitPolicy) (ratelimit.Decision, error)
}

// KeyFunc picks the identity a request is counted against. An empty key
// skips limiting.
type KeyFunc func(c *gin.Context) string

func ByClientIP(c *gin.Context) string {
	return c.ClientIP()
}

// ByAPIKey counts by the presented key's hash so the raw key never reaches
// Redis.
func ByAPIKey(c *gin.Context) string {
	raw := c.GetHeader(HeaderAPIKey)
	if raw == "" {
		return ""
	}
	return security.HashAPIKey(raw)
}

// RateLimit answers 429 once the policy is exhausted. Limiter failures let
// the request through.
func RateLimit(limiter Allower, bucket string, policy config.RateLimitPolicy, key KeyFunc, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := key(c)
		if id == "" {
			c.Next()
			return
		}

		decision, err := limiter.Allow(c.Request.Context(), bucket, id, policy)
		if err != nil {
			log.Warn().Err(err).Str("bucket", bucket).Str("request_id", RequestIDFrom(c)).Msg("rate limiter unavailable, allowing request")
			c.Next()
			return
		}

		header := c.Writer.Header()
		header.Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		header.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		header.Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

		if !decision.Allowed {
			header.Set("Retry-After", retryAfter(decision.ResetAt))
			body := errorBody("rate_limited", "too many requests, try again later")
			body["resetAt"] = decision.ResetAt.UTC().Format(time.RFC3339)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, body)
			return
		}
		c.Next()
	}
}

func retryAfter(resetAt time.Time) string {
	seconds := int(time.Until(resetAt).Seconds() + 0.999)
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}
