package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func rateLimitedRouter(rl *IPRateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(rl.Middleware())
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	return router
}

func hit(router *gin.Engine, ip string) int {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Forwarded-For", ip)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder.Code
}

func TestRateLimiter_BurstThenReject(t *testing.T) {
	rl := NewIPRateLimiter(0.001, 2, time.Minute)
	defer rl.StopCleanup()
	router := rateLimitedRouter(rl)

	assert.Equal(t, http.StatusOK, hit(router, "10.0.0.1"))
	assert.Equal(t, http.StatusOK, hit(router, "10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, hit(router, "10.0.0.1"))
}

func TestRateLimiter_PerClientBuckets(t *testing.T) {
	rl := NewIPRateLimiter(0.001, 1, time.Minute)
	defer rl.StopCleanup()
	router := rateLimitedRouter(rl)

	assert.Equal(t, http.StatusOK, hit(router, "10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, hit(router, "10.0.0.1"))
	// 另一个客户端有自己的桶
	assert.Equal(t, http.StatusOK, hit(router, "10.0.0.2"))
}

func TestRateLimiter_SweepDropsIdleEntries(t *testing.T) {
	rl := NewIPRateLimiter(0.001, 1, 10*time.Millisecond)
	defer rl.StopCleanup()
	router := rateLimitedRouter(rl)

	assert.Equal(t, http.StatusOK, hit(router, "10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, hit(router, "10.0.0.1"))

	// 过期条目被回收后，同一 IP 重新拿到满额的桶
	rl.sweep(time.Now().Add(time.Second))
	assert.Equal(t, http.StatusOK, hit(router, "10.0.0.1"))
}
