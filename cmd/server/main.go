package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"homework-planner/backend/config"
	"homework-planner/backend/internal/api/handler"
	"homework-planner/backend/internal/api/router"
	"homework-planner/backend/internal/repository"
	"homework-planner/backend/internal/service"
	"homework-planner/backend/internal/upstream"
	"homework-planner/backend/pkg/database"
	"homework-planner/backend/pkg/jwt"
	applogger "homework-planner/backend/pkg/logger"
	"homework-planner/backend/pkg/redis"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load(os.Getenv("PLANNER_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("应用启动中...",
		zap.Int("port", cfg.Server.Port),
		zap.String("log_level", cfg.Log.Level),
		zap.String("upstream", cfg.Upstream.Provider),
		zap.String("timezone", cfg.Planner.Timezone),
	)

	// 3. 连接数据库
	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}
	logger.Info("数据库连接成功")

	// 3.1 执行数据库迁移
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("获取底层 sql.DB 失败", zap.Error(err))
	}
	if err := database.RunMigrations(sqlDB, logger); err != nil {
		logger.Fatal("数据库迁移失败", zap.Error(err))
	}

	// 4. 连接 Redis（可选：连接失败时降级运行，不中断启动）
	rdb, err := redis.NewClient(&cfg.Redis, logger)
	if err != nil {
		logger.Warn("Redis 连接失败，快照缓存、跨实例事件与 Token 黑名单将不可用", zap.Error(err))
		rdb = nil
	}

	// 5. 上游数据源
	provider := newProvider(cfg, logger)

	// 6. 初始化 JWT 管理器
	jwtMgr := jwt.NewManager(&cfg.Auth)

	// 7. 依赖注入: Repository → Service → Handler
	repo := repository.NewRepository(db)
	svc := service.NewService(cfg, repo, provider, rdb, jwtMgr, logger)
	h := handler.NewHandler(svc)

	if cfg.Auth.AdminUsername != "" {
		if err := svc.Auth.EnsureAdmin(context.Background(), cfg.Auth.AdminUsername, cfg.Auth.AdminPassword); err != nil {
			logger.Fatal("初始化管理员账号失败", zap.Error(err))
		}
	}

	// 8. 过期作业清理任务
	if err := svc.Reaper.Start(); err != nil {
		logger.Fatal("启动清理任务失败", zap.Error(err))
	}

	// 9. 初始化路由
	engine := router.Setup(cfg, h, jwtMgr, rdb, db, logger)

	// 10. 启动 HTTP 服务器（优雅关闭）
	// WriteTimeout 为 0：SSE 长连接由客户端断开或服务关闭结束
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("HTTP 服务器已启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP 服务器异常", zap.Error(err))
		}
	}()

	// 11. 监听系统信号，优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("收到关闭信号，开始优雅关闭...", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}

	svc.Reaper.Stop()

	// 关闭数据库连接
	if closeDB, _ := db.DB(); closeDB != nil {
		closeDB.Close()
	}

	// 关闭 Redis 连接
	if rdb != nil {
		rdb.Close()
	}

	logger.Info("服务器已关闭")
}

// newProvider 按配置选择上游数据源
func newProvider(cfg *config.Config, logger *zap.Logger) upstream.Provider {
	client := &http.Client{Timeout: cfg.Upstream.Timeout}
	if cfg.Upstream.Provider == config.ProviderICS {
		logger.Info("使用 ICS 课表数据源", zap.String("url", cfg.Upstream.ICSURL))
		return upstream.NewICSCalendar(cfg.Upstream.ICSURL, client, cfg.Planner.Location())
	}
	return upstream.NewEcoleDirecte(&cfg.Upstream, client, logger)
}
