package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/planpage/server/internal/port/outbound"
	"github.com/planpage/server/internal/shared/logger"
	"github.com/planpage/server/internal/shared/response"
)

// Rate limit response headers.
const (
	RateLimitLimit     = "X-RateLimit-Limit"
	RateLimitRemaining = "X-RateLimit-Remaining"
	RetryAfter         = "Retry-After"
)

// RateLimitByUser limits requests per signed-in user, or per client IP when
// no user is set. It must run after RequireAuth. A nil limiter or a
// non-positive limit disables it; limiter errors let the request through.
func RateLimitByUser(limiter outbound.RateLimiterPort, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || limit <= 0 {
			c.Next()
			return
		}

		key := "ip:" + c.ClientIP()
		if userID := GetUserID(c); userID != "" {
			key = "user:" + userID
		}

		ctx := c.Request.Context()
		d, err := limiter.Take(ctx, key, limit, window)
		if err != nil {
			logger.FromContext(ctx).Warn("rate limiter unavailable", "key", key, "error", err)
			c.Next()
			return
		}

		c.Header(RateLimitLimit, strconv.Itoa(limit))
		c.Header(RateLimitRemaining, strconv.Itoa(d.Remaining))
		if !d.Allowed {
			c.Header(RetryAfter, strconv.Itoa(int(window.Seconds())))
			response.ErrorWithCode(c, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests, please try again later.")
			c.Abort()
			return
		}
		c.Next()
	}
}
