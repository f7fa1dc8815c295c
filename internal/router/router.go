package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/handler"
	"github.com/stemsi/exstem-session/internal/middleware"
	"github.com/stemsi/exstem-session/internal/response"
	"github.com/stemsi/exstem-session/internal/service"
)

// summaryMaxAge is how long a learner's browser may reuse a test summary.
const summaryMaxAge = time.Minute

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth    *handler.AuthHandler
	Test    *handler.TestHandler
	Monitor *handler.MonitorHandler
	WS      *handler.WSHandler

	// LoginLimiter guards POST /auth/login.
	LoginLimiter *middleware.RateLimiter
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.Brotli())

	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	auth.Use(middleware.NoStore())
	{
		auth.POST("/login", handlers.LoginLimiter.Middleware(), handlers.Auth.Login)
		auth.POST("/register", handlers.LoginLimiter.Middleware(), handlers.Auth.Register)
		auth.GET("/me", middleware.RequireJWT(authService), handlers.Auth.Me)
		auth.POST("/logout", middleware.RequireJWT(authService), handlers.Auth.Logout)
	}

	// ─── 2. Learner Group (JWT + Single Device) ────────────────────────
	learnerAPI := router.Group("/api/v1")
	learnerAPI.Use(
		middleware.RequireLearnerJWT(authService),
		middleware.CheckSingleDeviceLogin(authService),
	)
	{
		learnerAPI.GET("/tests/:test_id", middleware.PrivateCache(summaryMaxAge), handlers.Test.GetTestSummary)
	}

	// ─── 3. WebSocket Group (Learner WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(
		middleware.RequireLearnerWSAuth(authService),
		middleware.CheckSingleDeviceLogin(authService),
	)
	{
		ws.GET("/tests/:test_id/session", handlers.WS.SessionStream)
	}

	// ─── 4. Admin Group ────────────────────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireAdminJWT(authService), middleware.NoStore())
	{
		adminAPI.GET("/tests", handlers.Test.ListTests)
		adminAPI.POST("/tests", handlers.Test.CreateTest)
		adminAPI.GET("/tests/:test_id", handlers.Test.GetTest)
		adminAPI.PUT("/tests/:test_id", handlers.Test.UpdateTest)
		adminAPI.GET("/tests/:test_id/submissions", handlers.Monitor.ListSubmissions)
		adminAPI.GET("/tests/:test_id/submissions/export", handlers.Monitor.ExportSubmissions)
		adminAPI.GET("/tests/:test_id/violations", handlers.Monitor.ListViolations)
		adminAPI.GET("/tests/:test_id/monitor", handlers.Monitor.MonitorTestSSE)

		adminAPI.POST("/learners/:id/reset-login", handlers.Auth.ResetLearnerLogin)
	}

	return router
}
