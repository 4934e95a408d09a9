package core

import (
	"time"

	authHandler "github.com/aikara/image-vault/api/handler/auth"
	imagesHandler "github.com/aikara/image-vault/api/handler/images"
	providersHandler "github.com/aikara/image-vault/api/handler/providers"
	"github.com/aikara/image-vault/api/middleware"
	"github.com/aikara/image-vault/cache"
	"github.com/aikara/image-vault/config"
	authSvc "github.com/aikara/image-vault/internal/auth"
	imageSvc "github.com/aikara/image-vault/internal/services/image"
	"github.com/aikara/image-vault/internal/services/provider"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ServerDependencies 服务器依赖项
type ServerDependencies struct {
	DB       *gorm.DB
	Cache    cache.Cache
	Registry *provider.Registry
	Images   *imageSvc.Service
	Auth     *authSvc.Service
	Tokens   *authSvc.TokenService
}

// setupRouter 组装路由与中间件
func setupRouter(deps *ServerDependencies) (*gin.Engine, func()) {
	cfg := config.Get()
	router := gin.New()

	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowOrigin == "" || cfg.CORSAllowOrigin == "*" {
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	} else {
		corsConfig.AllowOrigins = []string{cfg.CORSAllowOrigin}
	}
	router.Use(cors.New(corsConfig))

	router.SetTrustedProxies(nil)
	router.MaxMultipartMemory = cfg.MaxUploadBytes()

	authRateLimiter := middleware.NewIPRateLimiter(cfg.RateLimitRPS/4, cfg.RateLimitBurst/4, cfg.RateLimitExpireTime)
	apiRateLimiter := middleware.NewIPRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, cfg.RateLimitExpireTime)
	cleanup := func() {
		authRateLimiter.StopCleanup()
		apiRateLimiter.StopCleanup()
	}

	router.GET("/health", healthHandler(deps))

	providers := providersHandler.NewHandler(deps.Registry)
	images := imagesHandler.NewHandler(deps.Images)
	auth := authHandler.NewHandler(deps.Auth)

	apiGroup := router.Group("/api")
	apiGroup.Use(func(c *gin.Context) { // 所有API禁止缓存
		c.Header("Cache-Control", "no-store")
		c.Next()
	})
	{
		authGroup := apiGroup.Group("/auth")
		authGroup.Use(authRateLimiter.Middleware())
		{
			authGroup.POST("/login", auth.Login)       // POST /api/auth/login
			authGroup.POST("/register", auth.Register) // POST /api/auth/register
		}

		v1 := apiGroup.Group("/v1")
		v1.Use(apiRateLimiter.Middleware())
		v1.Use(middleware.JWTAuth(deps.Tokens))
		{
			providersGroup := v1.Group("/providers")
			{
				providersGroup.POST("", providers.Create)                     // POST /api/v1/providers
				providersGroup.GET("", providers.List)                        // GET /api/v1/providers
				providersGroup.GET("/:id", providers.Get)                     // GET /api/v1/providers/{id}
				providersGroup.PUT("/:id", providers.Update)                  // PUT /api/v1/providers/{id}
				providersGroup.DELETE("/:id", providers.Delete)               // DELETE /api/v1/providers/{id}
				providersGroup.POST("/:id/default", providers.SetDefault)     // POST /api/v1/providers/{id}/default
				providersGroup.POST("/:id/test", providers.TestConnection)    // POST /api/v1/providers/{id}/test
			}

			imagesGroup := v1.Group("/images")
			{
				imagesGroup.POST("/upload", images.Upload)       // POST /api/v1/images/upload (single file)
				imagesGroup.POST("/uploads", images.UploadBatch) // POST /api/v1/images/uploads (multiple files)
				imagesGroup.GET("", images.List)                 // GET /api/v1/images
				imagesGroup.GET("/stats", images.Stats)          // GET /api/v1/images/stats
				imagesGroup.GET("/:id", images.Get)              // GET /api/v1/images/{id}
				imagesGroup.PATCH("/:id", images.Update)         // PATCH /api/v1/images/{id}
				imagesGroup.DELETE("/:id", images.Delete)        // DELETE /api/v1/images/{id}
			}
		}
	}

	return router, cleanup
}
