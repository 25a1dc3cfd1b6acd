package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/pollrelay/pollengine/internal/ratelimit"
	"github.com/gin-gonic/gin"
)

// RateLimiter builds gin middleware enforcing one C2 bucket. keyFunc
// derives the limiter key from the request — by client IP for
// anonymous buckets (registration, login, vote), or by user id for
// buckets scoped to an authenticated caller.
func RateLimiter(limiter ratelimit.Limiter, bucket string, keyFunc func(c *gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFunc(c)
		result, err := limiter.Check(c.Request.Context(), bucket, key)
		if err != nil {
			// Rate limiting must fail open on infrastructure errors — an
			// outage in the limiter's backing store should not take the
			// API down with it.
			c.Next()
			return
		}

		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", result.Remaining))
		if !result.Allowed {
			retryAfter := int(result.RetryAfter.Seconds())
			c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":      "rate limit exceeded",
				"errorCode":  "RATE_LIMITED",
				"retryAfter": retryAfter,
			})
			return
		}
		c.Next()
	}
}

// ByClientIP is the keyFunc for buckets scoped to the caller's IP
// address (registration, login, email-check, vote).
func ByClientIP(c *gin.Context) string {
	return getClientIP(c)
}

// ByUserID is the keyFunc for buckets scoped to the authenticated
// caller, falling back to IP for anonymous requests.
func ByUserID(c *gin.Context) string {
	if userID := c.GetString(string(UserIDKey)); userID != "" {
		return userID
	}
	return getClientIP(c)
}

// getClientIP extracts the real client IP from the request, checking
// X-Forwarded-For and X-Real-IP first since the service sits behind a
// reverse proxy, falling back to RemoteAddr.
func getClientIP(c *gin.Context) string {
	if forwarded := c.GetHeader("X-Forwarded-For"); forwarded != "" {
		ips := strings.Split(forwarded, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}
	if realIP := c.GetHeader("X-Real-IP"); realIP != "" {
		return realIP
	}
	return c.ClientIP()
}
