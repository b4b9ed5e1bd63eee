package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"homework-planner/backend/config"
	"homework-planner/backend/internal/dto"
	"homework-planner/backend/internal/model"
	"homework-planner/backend/internal/planner"
	"homework-planner/backend/internal/repository"
	apperr "homework-planner/backend/pkg/errors"
)

// WorksheetService 作业单业务接口
type WorksheetService interface {
	// Compute 计算当日作业单并持久化关联
	Compute(ctx context.Context, sc StudentContext) (*dto.WorksheetResponse, error)
}

// worksheetPlan 计算阶段的结果，尚未写入
type worksheetPlan struct {
	sc             StudentContext
	today          string
	anchor         string
	availability   *dto.AvailabilityResponse
	homeworkSource string
	records        map[int64]*model.HomeworkRecord
	allocation     planner.Allocation
	workSpeed      int
	degraded       error // 上游不可用时非空
}

// worksheetPlanner 计算与提交分离，由 Pipeline 在两者之间做过期判断
type worksheetPlanner interface {
	plan(ctx context.Context, sc StudentContext) (*worksheetPlan, error)
	commit(ctx context.Context, p *worksheetPlan) (*dto.WorksheetResponse, error)
	render(p *worksheetPlan, worksheetID string) *dto.WorksheetResponse
}

type worksheetService struct {
	repo         *repository.Repository
	availability AvailabilityService
	sync         SyncService
	logger       *zap.Logger
	loc          *time.Location
	now          func() time.Time
}

func newWorksheetService(
	cfg *config.PlannerConfig,
	repo *repository.Repository,
	availability AvailabilityService,
	sync SyncService,
	logger *zap.Logger,
) *worksheetService {
	return &worksheetService{
		repo:         repo,
		availability: availability,
		sync:         sync,
		logger:       logger,
		loc:          cfg.Location(),
		now:          time.Now,
	}
}

// plan 并发抓取课表评分与作业本，各自独立降级，再按预算分配
func (s *worksheetService) plan(ctx context.Context, sc StudentContext) (*worksheetPlan, error) {
	const op = "computeWorksheet"
	if err := sc.Validate(op); err != nil {
		return nil, err
	}
	today := planner.Today(s.now(), s.loc)

	var (
		avail       *dto.AvailabilityResponse
		availErr    error
		homeworkErr error
	)
	var g errgroup.Group
	g.Go(func() error {
		avail, availErr = s.availability.Compute(ctx, sc)
		return nil
	})
	g.Go(func() error {
		_, homeworkErr = s.sync.SyncFromUpstream(ctx, sc)
		return nil
	})
	_ = g.Wait()

	if avail == nil {
		return nil, availErr
	}
	p := &worksheetPlan{
		sc:             sc,
		today:          today,
		anchor:         planner.AnchorDate(today),
		availability:   avail,
		homeworkSource: dto.SourceLive,
	}
	switch {
	case homeworkErr == nil:
	case errors.Is(homeworkErr, apperr.ErrUpstreamUnavailable):
		p.homeworkSource = dto.SourceStored
		p.degraded = homeworkErr
	default:
		return nil, homeworkErr
	}
	if availErr != nil {
		p.degraded = availErr
	}

	records, err := s.repo.Homework.ListDueFrom(ctx, sc.StudentID, sc.Institution, today)
	if err != nil {
		s.logger.Error("查询作业失败", zap.Int64("student_id", sc.StudentID), zap.Error(err))
		return nil, err
	}
	weights, err := s.repo.SubjectWeight.List(ctx, sc.StudentID)
	if err != nil {
		return nil, err
	}

	p.records = make(map[int64]*model.HomeworkRecord, len(records))
	items := make([]planner.Homework, 0, len(records))
	for i := range records {
		p.records[records[i].ExternalID] = &records[i]
		items = append(items, toPlannerHomework(&records[i], s.loc))
	}
	p.allocation = planner.Allocate(planner.Enrich(items, weightMap(weights)), avail.DayScore, today)

	p.workSpeed = model.WorkSpeedNormal
	student, err := s.repo.Student.Get(ctx, sc.StudentID, sc.Institution)
	switch {
	case err == nil:
		p.workSpeed = student.WorkSpeed
	case !errors.Is(err, gorm.ErrRecordNotFound):
		s.logger.Warn("读取做作业速度失败", zap.Error(err))
	}
	return p, nil
}

// commit 写入作业单预算与关联集合
// 课表与缓存均不可用（SourceNone）时预算未知，不落库，避免 0 预算覆盖后续降级路径
func (s *worksheetService) commit(ctx context.Context, p *worksheetPlan) (*dto.WorksheetResponse, error) {
	if p.availability.Source == dto.SourceNone {
		s.logger.Info("预算未知，跳过作业单写入", zap.Int64("student_id", p.sc.StudentID), zap.String("anchor_date", p.anchor))
		return s.render(p, ""), nil
	}

	ws := &model.Worksheet{
		StudentID:   p.sc.StudentID,
		Institution: p.sc.Institution,
		AnchorDate:  p.anchor,
		Budget:      p.allocation.Budget,
	}
	if err := s.repo.Worksheet.Upsert(ctx, ws); err != nil {
		s.logger.Error("保存作业单失败", zap.Int64("student_id", p.sc.StudentID), zap.Error(err))
		return nil, apperr.PersistenceConflict("saveWorksheet", err)
	}
	if err := s.sync.ReconcileLinks(ctx, ws, p.allocation.AllocatedIDs()); err != nil {
		return nil, err
	}
	return s.render(p, ws.WorksheetID), nil
}

// render 组装响应；worksheetID 为空表示未落库
func (s *worksheetService) render(p *worksheetPlan, worksheetID string) *dto.WorksheetResponse {
	a := p.allocation
	return &dto.WorksheetResponse{
		WorksheetID:         worksheetID,
		StudentID:           p.sc.StudentID,
		Institution:         p.sc.Institution,
		Today:               p.today,
		AnchorDate:          p.anchor,
		Budget:              a.Budget,
		UsedByRule:          a.UsedByRule,
		RemainingBudget:     a.RemainingBudget,
		Allocated:           toHomeworkResponses(a.Allocated, p.records),
		Deferred:            toHomeworkResponses(a.Deferred, p.records),
		UpcomingAssessments: toHomeworkResponses(a.UpcomingAssessments, p.records),
		WorkSpeed:           p.workSpeed,
		WorkSpeedLabel:      model.WorkSpeedLabels[p.workSpeed],
		AvailabilitySource:  p.availability.Source,
		HomeworkSource:      p.homeworkSource,
	}
}
