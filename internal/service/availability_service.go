package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"homework-planner/backend/config"
	"homework-planner/backend/internal/dto"
	"homework-planner/backend/internal/planner"
	"homework-planner/backend/internal/repository"
	"homework-planner/backend/internal/upstream"
	apperr "homework-planner/backend/pkg/errors"
)

// AvailabilityService 空闲度评分业务接口
type AvailabilityService interface {
	// Compute 抓取课表并评分
	// 上游不可用时返回最近状态（快照 → 作业单预算 → 无数据）以及 UpstreamUnavailable
	Compute(ctx context.Context, sc StudentContext) (*dto.AvailabilityResponse, error)
}

type availabilityService struct {
	cfg      *config.PlannerConfig
	repo     *repository.Repository
	provider upstream.Provider
	cache    SnapshotCache
	logger   *zap.Logger
	loc      *time.Location
	now      func() time.Time
}

// NewAvailabilityService 创建 AvailabilityService 实例
func NewAvailabilityService(
	cfg *config.PlannerConfig,
	repo *repository.Repository,
	provider upstream.Provider,
	cache SnapshotCache,
	logger *zap.Logger,
) AvailabilityService {
	return &availabilityService{
		cfg:      cfg,
		repo:     repo,
		provider: provider,
		cache:    cache,
		logger:   logger,
		loc:      cfg.Location(),
		now:      time.Now,
	}
}

func (s *availabilityService) Compute(ctx context.Context, sc StudentContext) (*dto.AvailabilityResponse, error) {
	const op = "computeAvailability"
	if err := sc.Validate(op); err != nil {
		return nil, err
	}

	now := s.now()
	today := planner.Today(now, s.loc)

	obligations, err := s.repo.Obligation.List(ctx, sc.StudentID, sc.Institution)
	if err != nil {
		s.logger.Error("查询个人安排失败", zap.Int64("student_id", sc.StudentID), zap.Error(err))
		return nil, err
	}
	idx := obligationIndex(obligations)

	to := planner.AddDays(today, s.cfg.WindowDays)
	entries, err := s.provider.CalendarEntries(ctx, sc.session(), today, to)
	if err != nil {
		s.logger.Warn("抓取课表失败，使用最近状态",
			zap.Int64("student_id", sc.StudentID),
			zap.String("institution", sc.Institution),
			zap.Error(err),
		)
		return s.fallback(ctx, sc, today, apperr.UpstreamUnavailable(op, err))
	}

	resp := toAvailabilityResponse(sc, planner.Summarize(entries, idx, today), dto.SourceLive, now)
	if err := s.cache.Save(ctx, availabilityKey(sc), resp); err != nil {
		s.logger.Warn("写入评分快照失败", zap.Error(err))
	}
	return resp, nil
}

// fallback 依次尝试当日快照、锚定日作业单预算，否则返回显式的无数据结果
func (s *availabilityService) fallback(ctx context.Context, sc StudentContext, today string, cause error) (*dto.AvailabilityResponse, error) {
	var cached dto.AvailabilityResponse
	ok, err := s.cache.Load(ctx, availabilityKey(sc), &cached)
	if err != nil {
		s.logger.Warn("读取评分快照失败", zap.Error(err))
	}
	if ok && cached.Today == today {
		cached.Source = dto.SourceCache
		return &cached, cause
	}

	resp := emptyAvailability(sc, today, s.now())
	ws, err := s.repo.Worksheet.GetByAnchor(ctx, sc.StudentID, sc.Institution, planner.AnchorDate(today))
	switch {
	case err == nil:
		resp.DayScore = ws.Budget
		resp.Source = dto.SourceWorksheet
	case !errors.Is(err, gorm.ErrRecordNotFound):
		s.logger.Warn("读取作业单预算失败", zap.Error(err))
	}
	return resp, cause
}

// emptyAvailability 无评分数据时的标签与周末区间
func emptyAvailability(sc StudentContext, today string, at time.Time) *dto.AvailabilityResponse {
	resp := &dto.AvailabilityResponse{
		StudentID:   sc.StudentID,
		Institution: sc.Institution,
		Today:       today,
		DayLabel:    planner.LabelToday,
		Days:        []dto.DayScoreResponse{},
		Source:      dto.SourceNone,
		ComputedAt:  at.Format(time.RFC3339),
	}
	if wd := planner.ISOWeekday(today); wd == 6 || wd == 7 {
		saturday := planner.AnchorDate(today)
		resp.DayLabel = planner.LabelWeekend
		resp.WeekendRange = &dto.DateRangeResponse{From: saturday, To: planner.AddDays(saturday, 1)}
	}
	return resp
}
