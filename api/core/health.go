package core

import (
	"context"
	"net/http"
	"time"

	"github.com/aikara/image-vault/cache"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

var startTime = time.Now()

// healthHandler GET /health，数据库或缓存异常时返回 503
func healthHandler(deps *ServerDependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{
			"database": checkDatabaseHealth(c.Request.Context(), deps.DB),
			"cache":    checkCacheHealth(c.Request.Context(), deps.Cache),
		}

		httpStatus := http.StatusOK
		for _, result := range checks {
			if result != "ok" {
				httpStatus = http.StatusServiceUnavailable
				break
			}
		}

		status := "ok"
		if httpStatus != http.StatusOK {
			status = "degraded"
		}
		c.JSON(httpStatus, gin.H{
			"status": status,
			"uptime": time.Since(startTime).Round(time.Second).String(),
			"checks": checks,
		})
	}
}

func checkDatabaseHealth(ctx context.Context, db *gorm.DB) string {
	if db == nil {
		return "not configured"
	}
	sqlDB, err := db.DB()
	if err != nil {
		return "error: " + err.Error()
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return "error: " + err.Error()
	}
	return "ok"
}

func checkCacheHealth(ctx context.Context, c cache.Cache) string {
	if c == nil {
		return "not configured"
	}
	if err := c.Set(ctx, "health:probe", "ok", time.Second); err != nil {
		return "error: " + err.Error()
	}
	return "ok"
}
