package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type bucketEntry struct {
	bucket  *rate.Limiter
	touched time.Time
}

// IPRateLimiter 按客户端 IP 的令牌桶限流。
// 条目在 expireTime 内无请求即被后台回收。
type IPRateLimiter struct {
	rps        float64
	burst      int
	expireTime time.Duration

	mu      sync.Mutex
	buckets map[string]*bucketEntry

	done chan struct{}
}

// NewIPRateLimiter 创建 IP 限流器并启动回收协程
func NewIPRateLimiter(rps float64, burst int, expireTime time.Duration) *IPRateLimiter {
	rl := &IPRateLimiter{
		rps:        rps,
		burst:      burst,
		expireTime: expireTime,
		buckets:    make(map[string]*bucketEntry),
		done:       make(chan struct{}),
	}
	go rl.sweepLoop()
	return rl
}

// Middleware 超出配额的请求直接 429 终止
func (rl *IPRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.allow(clientAddr(c)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":    http.StatusTooManyRequests,
				"message": "Too many requests",
			})
			return
		}
		c.Next()
	}
}

// allow 取出或建立该 IP 的桶并消费一个令牌。
// touched 的更新必须和取桶在同一把锁内，否则回收会有竞争。
func (rl *IPRateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	entry, ok := rl.buckets[ip]
	if !ok {
		entry = &bucketEntry{bucket: rate.NewLimiter(rate.Limit(rl.rps), rl.burst)}
		rl.buckets[ip] = entry
	}
	entry.touched = time.Now()
	rl.mu.Unlock()

	return entry.bucket.Allow()
}

// StopCleanup 停止后台回收
func (rl *IPRateLimiter) StopCleanup() {
	close(rl.done)
}

func (rl *IPRateLimiter) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.sweep(time.Now())
		case <-rl.done:
			return
		}
	}
}

func (rl *IPRateLimiter) sweep(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, entry := range rl.buckets {
		if now.Sub(entry.touched) > rl.expireTime {
			delete(rl.buckets, ip)
		}
	}
}

// clientAddr 优先信任代理头，按 X-Forwarded-For 链取最早的一跳
func clientAddr(c *gin.Context) string {
	if forwarded := c.GetHeader("X-Forwarded-For"); forwarded != "" {
		first := strings.SplitN(forwarded, ",", 2)[0]
		if trimmed := strings.TrimSpace(first); trimmed != "" {
			return trimmed
		}
	}
	if realIP := c.GetHeader("X-Real-IP"); realIP != "" {
		return realIP
	}
	return c.ClientIP()
}
