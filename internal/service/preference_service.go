package service

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"homework-planner/backend/config"
	"homework-planner/backend/internal/dto"
	"homework-planner/backend/internal/model"
	"homework-planner/backend/internal/planner"
	"homework-planner/backend/internal/repository"
	"homework-planner/backend/internal/upstream"
	apperr "homework-planner/backend/pkg/errors"
)

var (
	ErrObligationNotFound = errors.New("个人安排不存在")
	ErrObligationConflict = errors.New("个人安排已被修改，请刷新后重试")
	ErrICSEmpty           = errors.New("ICS 中没有可导入的事件")
)

// PreferenceService 偏好业务接口（科目权重、个人安排）
// 每次修改都会发布 preferences.changed 并触发后台重算
type PreferenceService interface {
	ListSubjectWeights(ctx context.Context, sc StudentContext) ([]dto.SubjectWeightResponse, error)
	UpdateSubjectWeights(ctx context.Context, sc StudentContext, req *dto.UpdateSubjectWeightsRequest) ([]dto.SubjectWeightResponse, error)

	ListObligations(ctx context.Context, sc StudentContext) ([]dto.ObligationResponse, error)
	CreateObligation(ctx context.Context, sc StudentContext, req *dto.CreateObligationRequest) (*dto.ObligationResponse, error)
	UpdateObligation(ctx context.Context, sc StudentContext, id string, req *dto.UpdateObligationRequest) (*dto.ObligationResponse, error)
	DeleteObligation(ctx context.Context, sc StudentContext, id string) error
	// ImportObligations 从 ICS 内容导入；replace 为 true 时先删除已有安排
	ImportObligations(ctx context.Context, sc StudentContext, r io.Reader, replace bool) (*dto.ImportObligationsResponse, error)
	ImportObligationsFromURL(ctx context.Context, sc StudentContext, url string, replace bool) (*dto.ImportObligationsResponse, error)
}

type preferenceService struct {
	repo      *repository.Repository
	bus       EventBus
	recompute Recomputer
	logger    *zap.Logger
	loc       *time.Location
}

// NewPreferenceService 创建 PreferenceService 实例；recompute 可为 nil
func NewPreferenceService(
	cfg *config.PlannerConfig,
	repo *repository.Repository,
	bus EventBus,
	recompute Recomputer,
	logger *zap.Logger,
) PreferenceService {
	return &preferenceService{
		repo:      repo,
		bus:       bus,
		recompute: recompute,
		logger:    logger,
		loc:       cfg.Location(),
	}
}

// ── 科目权重 ──

// ListSubjectWeights 已配置权重与作业中出现过的科目合并，未配置的按默认值
func (s *preferenceService) ListSubjectWeights(ctx context.Context, sc StudentContext) ([]dto.SubjectWeightResponse, error) {
	if err := sc.Validate("listSubjectWeights"); err != nil {
		return nil, err
	}
	weights, err := s.repo.SubjectWeight.List(ctx, sc.StudentID)
	if err != nil {
		s.logger.Error("查询科目权重失败", zap.Int64("student_id", sc.StudentID), zap.Error(err))
		return nil, err
	}
	subjects, err := s.repo.Homework.ListSubjects(ctx, sc.StudentID, sc.Institution)
	if err != nil {
		s.logger.Error("查询科目列表失败", zap.Int64("student_id", sc.StudentID), zap.Error(err))
		return nil, err
	}

	merged := make(map[string]dto.SubjectWeightResponse, len(weights)+len(subjects))
	for _, ref := range subjects {
		merged[ref.SubjectCode] = dto.SubjectWeightResponse{
			SubjectCode: ref.SubjectCode,
			Subject:     ref.Subject,
			Weight:      planner.DefaultWeight,
		}
	}
	for _, w := range weights {
		item := dto.SubjectWeightResponse{
			SubjectCode: w.SubjectCode,
			Subject:     w.Subject,
			Weight:      w.Weight,
			Configured:  true,
		}
		if item.Subject == "" {
			item.Subject = merged[w.SubjectCode].Subject
		}
		merged[w.SubjectCode] = item
	}

	out := make([]dto.SubjectWeightResponse, 0, len(merged))
	for _, v := range merged {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubjectCode < out[j].SubjectCode })
	return out, nil
}

func (s *preferenceService) UpdateSubjectWeights(ctx context.Context, sc StudentContext, req *dto.UpdateSubjectWeightsRequest) ([]dto.SubjectWeightResponse, error) {
	const op = "updateSubjectWeights"
	if err := sc.Validate(op); err != nil {
		return nil, err
	}

	weights := make([]model.SubjectWeight, 0, len(req.Weights))
	seen := make(map[string]int, len(req.Weights))
	for _, item := range req.Weights {
		if !planner.ValidWeight(item.Weight) {
			return nil, apperr.InputInvalid(op, "权重必须为 1、2 或 3")
		}
		code := strings.TrimSpace(item.SubjectCode)
		if code == "" {
			return nil, apperr.InputInvalid(op, "科目代码不能为空")
		}
		w := model.SubjectWeight{
			StudentID:   sc.StudentID,
			SubjectCode: code,
			Subject:     item.Subject,
			Weight:      item.Weight,
		}
		if i, dup := seen[code]; dup {
			weights[i] = w
			continue
		}
		seen[code] = len(weights)
		weights = append(weights, w)
	}

	if err := s.repo.SubjectWeight.UpsertBatch(ctx, weights); err != nil {
		s.logger.Error("保存科目权重失败", zap.Int64("student_id", sc.StudentID), zap.Error(err))
		return nil, apperr.PersistenceConflict(op, err)
	}
	s.notify(ctx, sc, "subject-weights")
	return s.ListSubjectWeights(ctx, sc)
}

// ── 个人安排 ──

func (s *preferenceService) ListObligations(ctx context.Context, sc StudentContext) ([]dto.ObligationResponse, error) {
	if err := sc.Validate("listObligations"); err != nil {
		return nil, err
	}
	list, err := s.repo.Obligation.List(ctx, sc.StudentID, sc.Institution)
	if err != nil {
		s.logger.Error("查询个人安排失败", zap.Int64("student_id", sc.StudentID), zap.Error(err))
		return nil, err
	}
	out := make([]dto.ObligationResponse, 0, len(list))
	for i := range list {
		out = append(out, toObligationResponse(&list[i]))
	}
	return out, nil
}

func (s *preferenceService) CreateObligation(ctx context.Context, sc StudentContext, req *dto.CreateObligationRequest) (*dto.ObligationResponse, error) {
	const op = "createObligation"
	if err := sc.Validate(op); err != nil {
		return nil, err
	}
	weekdays, err := validateObligation(op, req.Category, req.Weekdays)
	if err != nil {
		return nil, err
	}

	o := &model.RecurringObligation{
		StudentID:   sc.StudentID,
		Institution: sc.Institution,
		Category:    req.Category,
		Weekdays:    weekdays,
		Note:        strings.TrimSpace(req.Note),
	}
	if err := s.repo.Obligation.Create(ctx, o); err != nil {
		s.logger.Error("创建个人安排失败", zap.Int64("student_id", sc.StudentID), zap.Error(err))
		return nil, apperr.PersistenceConflict(op, err)
	}
	s.notify(ctx, sc, "obligation-created")

	resp := toObligationResponse(o)
	return &resp, nil
}

func (s *preferenceService) UpdateObligation(ctx context.Context, sc StudentContext, id string, req *dto.UpdateObligationRequest) (*dto.ObligationResponse, error) {
	const op = "updateObligation"
	if err := sc.Validate(op); err != nil {
		return nil, err
	}
	weekdays, err := validateObligation(op, req.Category, req.Weekdays)
	if err != nil {
		return nil, err
	}

	o, err := s.ownedObligation(ctx, sc, id)
	if err != nil {
		return nil, err
	}
	if o.Version != req.Version {
		return nil, ErrObligationConflict
	}

	o.Category = req.Category
	o.Weekdays = weekdays
	o.Note = strings.TrimSpace(req.Note)
	if err := s.repo.Obligation.Update(ctx, o); err != nil {
		if errors.Is(err, apperr.ErrOptimisticLock) {
			return nil, ErrObligationConflict
		}
		s.logger.Error("更新个人安排失败", zap.String("obligation_id", id), zap.Error(err))
		return nil, apperr.PersistenceConflict(op, err)
	}
	s.notify(ctx, sc, "obligation-updated")

	resp := toObligationResponse(o)
	return &resp, nil
}

func (s *preferenceService) DeleteObligation(ctx context.Context, sc StudentContext, id string) error {
	if err := sc.Validate("deleteObligation"); err != nil {
		return err
	}
	if _, err := s.ownedObligation(ctx, sc, id); err != nil {
		return err
	}
	if err := s.repo.Obligation.Delete(ctx, id); err != nil {
		s.logger.Error("删除个人安排失败", zap.String("obligation_id", id), zap.Error(err))
		return err
	}
	s.notify(ctx, sc, "obligation-deleted")
	return nil
}

func (s *preferenceService) ImportObligations(ctx context.Context, sc StudentContext, r io.Reader, replace bool) (*dto.ImportObligationsResponse, error) {
	const op = "importObligations"
	if err := sc.Validate(op); err != nil {
		return nil, err
	}

	drafts, err := upstream.ParseObligations(r, s.loc)
	if err != nil {
		return nil, apperr.InputInvalid(op, err.Error())
	}
	if len(drafts) == 0 {
		return nil, ErrICSEmpty
	}

	removed := 0
	if replace {
		existing, err := s.repo.Obligation.List(ctx, sc.StudentID, sc.Institution)
		if err != nil {
			return nil, err
		}
		for _, o := range existing {
			if err := s.repo.Obligation.Delete(ctx, o.ObligationID); err != nil {
				return nil, apperr.PersistenceConflict(op, err)
			}
			removed++
		}
	}

	list := make([]model.RecurringObligation, 0, len(drafts))
	for _, d := range drafts {
		list = append(list, model.RecurringObligation{
			StudentID:   sc.StudentID,
			Institution: sc.Institution,
			Category:    string(d.Category),
			Weekdays:    model.IntArray(d.Weekdays).Normalize(),
			Note:        truncate(d.Note, 500),
		})
	}
	if err := s.repo.Obligation.CreateBatch(ctx, list); err != nil {
		s.logger.Error("导入个人安排失败", zap.Int64("student_id", sc.StudentID), zap.Error(err))
		return nil, apperr.PersistenceConflict(op, err)
	}
	s.logger.Info("ICS 导入个人安排",
		zap.Int64("student_id", sc.StudentID),
		zap.Int("created", len(list)),
		zap.Int("removed", removed),
	)
	s.notify(ctx, sc, "obligations-imported")

	resp := &dto.ImportObligationsResponse{Created: len(list), Removed: removed}
	for i := range list {
		resp.Obligations = append(resp.Obligations, toObligationResponse(&list[i]))
	}
	return resp, nil
}

func (s *preferenceService) ImportObligationsFromURL(ctx context.Context, sc StudentContext, url string, replace bool) (*dto.ImportObligationsResponse, error) {
	const op = "importObligations"
	if err := sc.Validate(op); err != nil {
		return nil, err
	}
	rc, err := upstream.FetchICS(ctx, nil, url)
	if err != nil {
		return nil, apperr.UpstreamUnavailable(op, err)
	}
	defer rc.Close()
	return s.ImportObligations(ctx, sc, rc, replace)
}

// ── 辅助函数 ──

func (s *preferenceService) ownedObligation(ctx context.Context, sc StudentContext, id string) (*model.RecurringObligation, error) {
	o, err := s.repo.Obligation.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrObligationNotFound
		}
		return nil, err
	}
	if o.StudentID != sc.StudentID || o.Institution != sc.Institution {
		return nil, ErrObligationNotFound
	}
	return o, nil
}

// notify 发布偏好变更事件并触发后台重算
func (s *preferenceService) notify(ctx context.Context, sc StudentContext, what string) {
	ev := Event{Type: EventPreferencesChanged, StudentID: sc.StudentID, Institution: sc.Institution, Reason: what}
	if err := s.bus.Publish(ctx, ev); err != nil {
		s.logger.Warn("发布偏好变更事件失败", zap.Error(err))
	}
	if s.recompute != nil {
		s.recompute.TriggerAsync(sc, ReasonPreferencesChanged)
	}
}

// validateObligation 类别已知、星期非空且都在 1..7
func validateObligation(op, category string, weekdays []int) (model.IntArray, error) {
	if !planner.ValidCategory(category) {
		return nil, apperr.InputInvalid(op, "未知的安排类别: "+category)
	}
	if len(weekdays) == 0 {
		return nil, apperr.InputInvalid(op, "星期不能为空")
	}
	for _, d := range weekdays {
		if d < 1 || d > 7 {
			return nil, apperr.InputInvalid(op, "星期必须在 1-7 之间")
		}
	}
	return model.IntArray(weekdays).Normalize(), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
