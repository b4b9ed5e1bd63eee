package service

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"homework-planner/backend/config"
	"homework-planner/backend/internal/planner"
	"homework-planner/backend/internal/repository"
)

const reaperRunTimeout = 5 * time.Minute

// Reaper 定时软删除上游已消失且已过期的作业
//
// 条件：last_synced_at 早于 stale_after_days 天前，且截止日期早于今天。
// 再次同步到同一作业时会被恢复。
type Reaper struct {
	repo     *repository.Repository
	logger   *zap.Logger
	schedule string
	staleFor time.Duration
	loc      *time.Location
	now      func() time.Time
	cron     *cron.Cron
}

// NewReaper 创建清理任务；schedule 为空时 Start 不做任何事
func NewReaper(cfg *config.PlannerConfig, repo *repository.Repository, logger *zap.Logger) *Reaper {
	return &Reaper{
		repo:     repo,
		logger:   logger,
		schedule: cfg.ReaperSchedule,
		staleFor: time.Duration(cfg.StaleAfterDays) * 24 * time.Hour,
		loc:      cfg.Location(),
		now:      time.Now,
	}
}

// Start 注册并启动定时任务
func (r *Reaper) Start() error {
	if r.schedule == "" || r.staleFor <= 0 {
		r.logger.Info("过期作业清理未启用")
		return nil
	}
	r.cron = cron.New(
		cron.WithLocation(r.loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
	)
	if _, err := r.cron.AddFunc(r.schedule, r.runOnce); err != nil {
		return err
	}
	r.cron.Start()
	r.logger.Info("过期作业清理已启动", zap.String("schedule", r.schedule))
	return nil
}

// Stop 停止调度并等待正在执行的任务结束
func (r *Reaper) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
}

func (r *Reaper) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), reaperRunTimeout)
	defer cancel()
	if _, err := r.Run(ctx); err != nil {
		r.logger.Error("清理过期作业失败", zap.Error(err))
	}
}

// Run 执行一次清理，返回软删除条数
func (r *Reaper) Run(ctx context.Context) (int64, error) {
	now := r.now()
	n, err := r.repo.Homework.SoftDeleteStale(ctx, now.Add(-r.staleFor), planner.Today(now, r.loc))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.logger.Info("已软删除过期作业", zap.Int64("count", n))
	}
	return n, nil
}
