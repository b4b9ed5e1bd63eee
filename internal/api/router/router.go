package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"homework-planner/backend/config"
	"homework-planner/backend/internal/api/handler"
	"homework-planner/backend/internal/api/middleware"
	"homework-planner/backend/internal/dto"
	"homework-planner/backend/internal/model"
	"homework-planner/backend/pkg/jwt"
	"homework-planner/backend/pkg/redis"
)

// 限流：登录 / 注册按 IP，手动刷新按账号 + 学生
const (
	loginRateLimit   = 10
	refreshRateLimit = 6
	rateLimitWindow  = time.Minute
)

// Setup 初始化并返回 Gin 路由引擎
func Setup(cfg *config.Config, h *handler.Handler, jwtMgr *jwt.Manager, rdb *redis.Client, db *gorm.DB, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		if err := dto.RegisterValidators(v); err != nil {
			logger.Error("注册自定义校验规则失败", zap.Error(err))
		}
	}

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.BodyLimit(cfg.Server.MaxBodyBytes))

	// ── 健康检查 ──
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		status := gin.H{"database": "ok", "redis": "disabled"}
		code := http.StatusOK
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			status["database"] = "down"
			code = http.StatusServiceUnavailable
		}
		if rdb != nil {
			status["redis"] = "ok"
			if err := rdb.Ping(c.Request.Context()); err != nil {
				status["redis"] = "down"
			}
		}
		c.JSON(code, status)
	})

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	{
		// 认证模块（无需认证）
		auth := v1.Group("/auth")
		{
			auth.POST("/login", middleware.RateLimit(rdb, loginRateLimit, rateLimitWindow, middleware.ByIP), h.Auth.Login)
			auth.POST("/register", middleware.RateLimit(rdb, loginRateLimit, rateLimitWindow, middleware.ByIP), h.Auth.Register)
			auth.POST("/refresh", h.Auth.RefreshToken)
		}

		// 需要认证的路由
		authorized := v1.Group("")
		authorized.Use(middleware.JWTAuth(jwtMgr, rdb, logger))
		{
			authorized.POST("/auth/logout", h.Auth.Logout)
			authorized.GET("/auth/me", h.Auth.Me)

			authorized.POST("/admin/reaper/run", middleware.RoleAuth(model.RoleAdmin), h.Maintenance.RunReaper)

			authorized.GET("/students", h.Student.List)
			authorized.PUT("/students", h.Student.Upsert)

			// 单个学生；?institution= 可选，X-Upstream-Token 携带上游凭据
			student := authorized.Group("/students/:studentId")
			{
				student.GET("/availability", h.Planner.Availability)
				student.GET("/worksheet", h.Planner.Worksheet)
				student.GET("/worksheet/export", h.Export.ExportWorksheet)
				student.POST("/refresh", middleware.RateLimit(rdb, refreshRateLimit, rateLimitWindow, middleware.ByAccountStudent), h.Planner.Refresh)
				student.GET("/events", h.Events.Stream)

				student.GET("/homework", h.Planner.ListHomework)
				student.POST("/homework/sync", h.Planner.Sync)
				student.POST("/homework/:externalId/mark", h.Planner.Mark)

				student.GET("/work-speed", h.Student.GetWorkSpeed)
				student.PUT("/work-speed", h.Student.UpdateWorkSpeed)

				student.GET("/subject-weights", h.Preference.ListSubjectWeights)
				student.PUT("/subject-weights", h.Preference.UpdateSubjectWeights)

				obligations := student.Group("/obligations")
				{
					obligations.GET("", h.Preference.ListObligations)
					obligations.POST("", h.Preference.CreateObligation)
					obligations.POST("/import", h.Preference.ImportObligations)
					obligations.PUT("/:id", h.Preference.UpdateObligation)
					obligations.DELETE("/:id", h.Preference.DeleteObligation)
				}
			}
		}
	}

	return r
}
