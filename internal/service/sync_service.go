package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"homework-planner/backend/config"
	"homework-planner/backend/internal/dto"
	"homework-planner/backend/internal/model"
	"homework-planner/backend/internal/planner"
	"homework-planner/backend/internal/repository"
	"homework-planner/backend/internal/upstream"
	apperr "homework-planner/backend/pkg/errors"
)

// ErrHomeworkNotFound 标记的作业不存在
var ErrHomeworkNotFound = errors.New("作业不存在")

// SyncService 作业同步与标记业务接口
type SyncService interface {
	// MergeHomework 按 (学生, 学校, 外部 ID) 合并上游作业，返回按截止日期、ID 排序的读后快照
	MergeHomework(ctx context.Context, sc StudentContext, items []upstream.HomeworkItem) ([]model.HomeworkRecord, error)
	// SyncFromUpstream 抓取作业本并合并
	SyncFromUpstream(ctx context.Context, sc StudentContext) ([]model.HomeworkRecord, error)
	// SyncPayload 合并客户端推送的作业本载荷（与上游格式相同）
	SyncPayload(ctx context.Context, sc StudentContext, raw []byte) (*dto.SyncResponse, error)
	// ReconcileLinks 使作业单关联集合与 ids 一致
	ReconcileLinks(ctx context.Context, ws *model.Worksheet, ids []int64) error
	// MarkHomework 唯一会修改完成状态的入口
	MarkHomework(ctx context.Context, sc StudentContext, externalID int64, action string) (*dto.HomeworkResponse, error)
	// ListHomework 截止日期 ≥ from 的作业（from 为空取今天）
	ListHomework(ctx context.Context, sc StudentContext, from string) ([]dto.HomeworkResponse, error)
}

type syncService struct {
	repo     *repository.Repository
	provider upstream.Provider
	bus      EventBus
	logger   *zap.Logger
	loc      *time.Location
	now      func() time.Time
}

// NewSyncService 创建 SyncService 实例
func NewSyncService(
	cfg *config.PlannerConfig,
	repo *repository.Repository,
	provider upstream.Provider,
	bus EventBus,
	logger *zap.Logger,
) SyncService {
	return &syncService{
		repo:     repo,
		provider: provider,
		bus:      bus,
		logger:   logger,
		loc:      cfg.Location(),
		now:      time.Now,
	}
}

func (s *syncService) MergeHomework(ctx context.Context, sc StudentContext, items []upstream.HomeworkItem) ([]model.HomeworkRecord, error) {
	const op = "mergeHomework"
	if err := sc.Validate(op); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}

	// 同一批次内重复 ID 以最后一条为准，避免 ON CONFLICT 同一行被更新两次
	byID := make(map[int64]upstream.HomeworkItem, len(items))
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		if _, seen := byID[it.ExternalID]; !seen {
			ids = append(ids, it.ExternalID)
		}
		byID[it.ExternalID] = it
	}

	before, err := s.repo.Homework.ListByExternalIDs(ctx, sc.StudentID, sc.Institution, ids)
	if err != nil {
		s.logger.Warn("读取同步前快照失败", zap.Error(err))
	}
	s.logger.Debug("合并作业",
		zap.Int64("student_id", sc.StudentID),
		zap.Int("incoming", len(ids)),
		zap.Int("existing", len(before)),
	)

	syncedAt := s.now()
	records := make([]model.HomeworkRecord, 0, len(ids))
	for _, id := range ids {
		records = append(records, s.toRecord(sc, byID[id], syncedAt))
	}

	if err := s.repo.Homework.UpsertBatch(ctx, records); err != nil {
		s.logger.Error("合并作业失败",
			zap.Int64("student_id", sc.StudentID),
			zap.String("institution", sc.Institution),
			zap.Error(err),
		)
		return nil, apperr.PersistenceConflict(op, err)
	}

	after, err := s.repo.Homework.ListByExternalIDs(ctx, sc.StudentID, sc.Institution, ids)
	if err != nil {
		return nil, apperr.PersistenceConflict(op, err)
	}
	if len(after) != len(ids) {
		s.logger.Warn("同步后记录数不一致",
			zap.Int("expected", len(ids)),
			zap.Int("actual", len(after)),
		)
	}
	return after, nil
}

// toRecord 上游条目 → 记录；IsDone 仅在首次插入时生效
func (s *syncService) toRecord(sc StudentContext, it upstream.HomeworkItem, syncedAt time.Time) model.HomeworkRecord {
	rec := model.HomeworkRecord{
		StudentID:     sc.StudentID,
		Institution:   sc.Institution,
		ExternalID:    it.ExternalID,
		AccountRef:    sc.AccountRef,
		DueDate:       it.DueDate,
		Subject:       it.Subject,
		SubjectCode:   it.SubjectCode,
		GivenDate:     it.GivenDate,
		ToDo:          it.ToDo,
		DocumentsToDo: it.DocumentsToDo,
		SubmitOnline:  it.SubmitOnline,
		IsControl:     it.IsControl,
		UpstreamDone:  it.Done,
		IsDone:        it.Done,
		LastSyncedAt:  syncedAt,
	}
	if len(it.Raw) > 0 {
		rec.RawSource = datatypes.JSON(it.Raw)
	}
	return rec
}

func (s *syncService) SyncFromUpstream(ctx context.Context, sc StudentContext) ([]model.HomeworkRecord, error) {
	const op = "syncHomework"
	if err := sc.Validate(op); err != nil {
		return nil, err
	}
	items, err := s.provider.HomeworkBatch(ctx, sc.session())
	if err != nil {
		s.logger.Warn("抓取作业本失败", zap.Int64("student_id", sc.StudentID), zap.Error(err))
		return nil, apperr.UpstreamUnavailable(op, err)
	}
	return s.MergeHomework(ctx, sc, items)
}

func (s *syncService) SyncPayload(ctx context.Context, sc StudentContext, raw []byte) (*dto.SyncResponse, error) {
	const op = "syncPayload"
	if err := sc.Validate(op); err != nil {
		return nil, err
	}
	items, err := upstream.ParseHomeworkEnvelope(raw)
	if err != nil {
		return nil, apperr.InputInvalid(op, err.Error())
	}

	records, err := s.MergeHomework(ctx, sc, items)
	if err != nil {
		return nil, err
	}
	list, err := s.enrich(ctx, sc, records)
	if err != nil {
		return nil, err
	}
	return &dto.SyncResponse{Received: len(items), Stored: len(records), Homework: list}, nil
}

func (s *syncService) ReconcileLinks(ctx context.Context, ws *model.Worksheet, ids []int64) error {
	if err := s.repo.Worksheet.ReconcileLinks(ctx, ws, ids); err != nil {
		s.logger.Error("同步作业单关联失败", zap.String("worksheet_id", ws.WorksheetID), zap.Error(err))
		return apperr.PersistenceConflict("reconcileLinks", err)
	}
	return nil
}

func (s *syncService) MarkHomework(ctx context.Context, sc StudentContext, externalID int64, action string) (*dto.HomeworkResponse, error) {
	const op = "markHomework"
	if err := sc.Validate(op); err != nil {
		return nil, err
	}
	if externalID <= 0 {
		return nil, apperr.InputInvalid(op, "作业 ID 无效")
	}
	act, err := ParseMarkAction(action)
	if err != nil {
		return nil, err
	}

	cmd := &markCommand{
		repo:       s.repo.Homework,
		logger:     s.logger,
		sc:         sc,
		externalID: externalID,
		action:     act,
		now:        s.now(),
	}
	record, execErr := cmd.Execute(ctx)
	if record == nil {
		return nil, execErr
	}

	resp, err := s.single(ctx, sc, record)
	if err != nil {
		return nil, err
	}
	if execErr != nil {
		return resp, execErr
	}

	ev := Event{Type: EventHomeworkMarked, StudentID: sc.StudentID, Institution: sc.Institution, Reason: string(act), Data: resp}
	if err := s.bus.Publish(ctx, ev); err != nil {
		s.logger.Warn("发布标记事件失败", zap.Error(err))
	}
	return resp, nil
}

func (s *syncService) ListHomework(ctx context.Context, sc StudentContext, from string) ([]dto.HomeworkResponse, error) {
	if err := sc.Validate("listHomework"); err != nil {
		return nil, err
	}
	if from == "" {
		from = planner.Today(s.now(), s.loc)
	}
	records, err := s.repo.Homework.ListDueFrom(ctx, sc.StudentID, sc.Institution, from)
	if err != nil {
		s.logger.Error("查询作业失败", zap.Int64("student_id", sc.StudentID), zap.Error(err))
		return nil, err
	}
	return s.enrich(ctx, sc, records)
}

// enrich 记录 → 带权重分值的响应，顺序与输入一致
func (s *syncService) enrich(ctx context.Context, sc StudentContext, records []model.HomeworkRecord) ([]dto.HomeworkResponse, error) {
	weights, err := s.repo.SubjectWeight.List(ctx, sc.StudentID)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*model.HomeworkRecord, len(records))
	items := make([]planner.Homework, 0, len(records))
	for i := range records {
		byID[records[i].ExternalID] = &records[i]
		items = append(items, toPlannerHomework(&records[i], s.loc))
	}
	return toHomeworkResponses(planner.Enrich(items, weightMap(weights)), byID), nil
}

func (s *syncService) single(ctx context.Context, sc StudentContext, record *model.HomeworkRecord) (*dto.HomeworkResponse, error) {
	list, err := s.enrich(ctx, sc, []model.HomeworkRecord{*record})
	if err != nil {
		return nil, err
	}
	return &list[0], nil
}
