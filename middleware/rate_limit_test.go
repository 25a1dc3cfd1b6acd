package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pollrelay/pollengine/internal/ratelimit"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type stubLimiter struct {
	result ratelimit.Result
	err    error
	calls  []string // bucket:key
}

func (s *stubLimiter) Check(_ context.Context, bucket, key string) (ratelimit.Result, error) {
	s.calls = append(s.calls, bucket+":"+key)
	return s.result, s.err
}

func (s *stubLimiter) SetBucket(string, ratelimit.BucketConfig) {}

func setupRateLimitRouter(limiter ratelimit.Limiter, bucket string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimiter(limiter, bucket, ByClientIP))
	r.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})
	return r
}

func TestRateLimiter_AllowsUnderLimit(t *testing.T) {
	limiter := &stubLimiter{result: ratelimit.Result{Allowed: true, Remaining: 4}}
	router := setupRateLimitRouter(limiter, ratelimit.BucketVote)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = "192.168.1.1:1234"
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "4", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, []string{ratelimit.BucketVote + ":192.168.1.1"}, limiter.calls)
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	limiter := &stubLimiter{result: ratelimit.Result{Allowed: false, Remaining: 0, RetryAfter: 30_000_000_000}}
	router := setupRateLimitRouter(limiter, ratelimit.BucketLogin)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = "192.168.1.2:1234"
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "30", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "RATE_LIMITED")
}

func TestRateLimiter_FailsOpenOnBackendError(t *testing.T) {
	limiter := &stubLimiter{err: assertAnError{}}
	router := setupRateLimitRouter(limiter, ratelimit.BucketAPIGeneral)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = "192.168.1.3:1234"
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

type assertAnError struct{}

func (assertAnError) Error() string { return "backend unavailable" }

func TestGetClientIP_PrefersForwardedFor(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var captured string
	r.GET("/test", func(c *gin.Context) {
		captured = getClientIP(c)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	r.ServeHTTP(w, req)

	assert.Equal(t, "203.0.113.5", captured)
}

func TestByUserID_FallsBackToIPWhenAnonymous(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var captured string
	r.GET("/test", func(c *gin.Context) {
		captured = ByUserID(c)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	r.ServeHTTP(w, req)

	assert.Equal(t, "10.0.0.2", captured)
}
