package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/handler"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	StudentPortal *handler.StudentPortalHandler
	Submission    *handler.SubmissionHandler
	Exam          *handler.ExamHandler
	Monitor       *handler.MonitorHandler
	Setting       *handler.SettingHandler
	System        *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// limiter guards the student write routes; gatherer backs /metrics.
func SetupRouter(
	auth middleware.TokenValidator,
	handlers *Handlers,
	cfg *config.Config,
	limiter *middleware.RateLimiter,
	gatherer prometheus.Gatherer,
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

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	router.GET("/health", handlers.System.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	router.NoRoute(func(c *gin.Context) {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	})

	// JSON API responses only; /metrics negotiates its own encoding.
	compress := middleware.Brotli(middleware.DefaultCompressMinLength)

	// ─── 0. Public Group (No Auth) ─────────────────────────────────────
	publicAPI := router.Group("/api/v1/public")
	publicAPI.Use(compress)
	{
		publicAPI.GET("/settings", middleware.CacheControl(30), handlers.Setting.GetPublicSettings)
	}

	// ─── 1. Student Group (JWT) ────────────────────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(middleware.RequireStudentJWT(auth), compress)
	perStudent := limiter.Middleware(middleware.StudentRouteKey)
	{
		studentAPI.POST("/exams/:exam_id/join", handlers.StudentPortal.JoinExam)
		studentAPI.POST("/exams/:exam_id/submit", perStudent, handlers.Submission.Submit)
		studentAPI.POST("/exams/:exam_id/violations", perStudent, handlers.StudentPortal.ReportViolation)
	}

	// ─── 2. Admin Group (JWT + RBAC) ───────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireAdminJWT(auth), compress)
	{
		adminAPI.GET("/exams/:id/results",
			middleware.RequirePermission(model.PermissionExamsRead),
			handlers.Exam.GetExamResults,
		)

		// App Settings Routes
		settingsGroup := adminAPI.Group("/settings")
		{
			settingsGroup.GET("", middleware.RequirePermission(model.PermissionSettingsRead), handlers.Setting.GetAllSettings)
			settingsGroup.PUT("", middleware.RequirePermission(model.PermissionSettingsWrite), handlers.Setting.UpdateSettings)
		}
	}

	// ─── 3. WebSocket Group (Admin JWT via ?token) ─────────────────────
	wsAPI := router.Group("/ws/v1/admin")
	wsAPI.Use(middleware.RequireAdminJWT(auth))
	{
		wsAPI.GET("/exams/:id/monitor",
			middleware.RequirePermission(model.PermissionExamsMonitor),
			handlers.Monitor.MonitorExam,
		)
	}

	return router
}
