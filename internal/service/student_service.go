package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"homework-planner/backend/internal/dto"
	"homework-planner/backend/internal/model"
	"homework-planner/backend/internal/repository"
	apperr "homework-planner/backend/pkg/errors"
)

var (
	ErrStudentNotFound  = errors.New("学生不存在")
	ErrStudentForbidden = errors.New("无权访问该学生")
	ErrStudentOwned     = errors.New("该学生已绑定其他账号")
)

// StudentService 学生业务接口
type StudentService interface {
	// Resolve 解析并校验学生上下文；institution 为空时取账号下最近出现的学校
	Resolve(ctx context.Context, accountID, rawStudentID, institution, upstreamToken string) (StudentContext, error)
	List(ctx context.Context, accountID string) ([]dto.StudentResponse, error)
	Upsert(ctx context.Context, accountID string, req *dto.UpsertStudentRequest) (*dto.StudentResponse, error)
	GetWorkSpeed(ctx context.Context, sc StudentContext) (*dto.WorkSpeedResponse, error)
	UpdateWorkSpeed(ctx context.Context, sc StudentContext, speed int) (*dto.WorkSpeedResponse, error)
}

type studentService struct {
	repo   *repository.Repository
	logger *zap.Logger
	now    func() time.Time
}

// NewStudentService 创建 StudentService 实例
func NewStudentService(repo *repository.Repository, logger *zap.Logger) StudentService {
	return &studentService{repo: repo, logger: logger, now: time.Now}
}

func (s *studentService) Resolve(ctx context.Context, accountID, rawStudentID, institution, upstreamToken string) (StudentContext, error) {
	studentID, err := ParseStudentID(rawStudentID)
	if err != nil {
		return StudentContext{}, err
	}
	institution = strings.TrimSpace(institution)

	var student *model.Student
	if institution != "" {
		student, err = s.repo.Student.Get(ctx, studentID, institution)
	} else {
		student, err = s.repo.Student.FindLatest(ctx, accountID, studentID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return StudentContext{}, apperr.InputInvalid("resolveStudent", "缺少学校标识")
		}
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return StudentContext{}, ErrStudentNotFound
		}
		s.logger.Error("查询学生失败", zap.Int64("student_id", studentID), zap.Error(err))
		return StudentContext{}, err
	}
	if student.AccountID != accountID {
		return StudentContext{}, ErrStudentForbidden
	}

	sc := StudentContext{
		AccountID:     accountID,
		StudentID:     student.StudentID,
		Institution:   student.Institution,
		UpstreamToken: upstreamToken,
	}
	return sc, sc.Validate("resolveStudent")
}

func (s *studentService) List(ctx context.Context, accountID string) ([]dto.StudentResponse, error) {
	students, err := s.repo.Student.ListByAccount(ctx, accountID)
	if err != nil {
		s.logger.Error("查询学生列表失败", zap.String("account_id", accountID), zap.Error(err))
		return nil, err
	}
	out := make([]dto.StudentResponse, 0, len(students))
	for i := range students {
		out = append(out, toStudentResponse(&students[i]))
	}
	return out, nil
}

func (s *studentService) Upsert(ctx context.Context, accountID string, req *dto.UpsertStudentRequest) (*dto.StudentResponse, error) {
	existing, err := s.repo.Student.Get(ctx, req.StudentID, req.Institution)
	switch {
	case err == nil && existing.AccountID != accountID:
		return nil, ErrStudentOwned
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		s.logger.Error("查询学生失败", zap.Int64("student_id", req.StudentID), zap.Error(err))
		return nil, err
	}

	student := &model.Student{
		StudentID:   req.StudentID,
		Institution: strings.TrimSpace(req.Institution),
		AccountID:   accountID,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		ClassLabel:  req.ClassLabel,
		LastSeenAt:  s.now(),
	}
	if err := s.repo.Student.Upsert(ctx, student); err != nil {
		s.logger.Error("保存学生失败", zap.Int64("student_id", req.StudentID), zap.Error(err))
		return nil, apperr.PersistenceConflict("upsertStudent", err)
	}

	saved, err := s.repo.Student.Get(ctx, student.StudentID, student.Institution)
	if err != nil {
		return nil, err
	}
	resp := toStudentResponse(saved)
	return &resp, nil
}

func (s *studentService) GetWorkSpeed(ctx context.Context, sc StudentContext) (*dto.WorkSpeedResponse, error) {
	student, err := s.repo.Student.Get(ctx, sc.StudentID, sc.Institution)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStudentNotFound
		}
		return nil, err
	}
	return workSpeedResponse(student.WorkSpeed), nil
}

func (s *studentService) UpdateWorkSpeed(ctx context.Context, sc StudentContext, speed int) (*dto.WorkSpeedResponse, error) {
	if _, ok := model.WorkSpeedLabels[speed]; !ok {
		return nil, apperr.InputInvalid("updateWorkSpeed", "速度取值必须为 1、2 或 3")
	}
	if err := s.repo.Student.UpdateWorkSpeed(ctx, sc.StudentID, sc.Institution, speed); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStudentNotFound
		}
		s.logger.Error("更新做作业速度失败", zap.Int64("student_id", sc.StudentID), zap.Error(err))
		return nil, err
	}
	return workSpeedResponse(speed), nil
}

// ── 转换 ──

func toStudentResponse(s *model.Student) dto.StudentResponse {
	return dto.StudentResponse{
		StudentID:      s.StudentID,
		Institution:    s.Institution,
		FirstName:      s.FirstName,
		LastName:       s.LastName,
		ClassLabel:     s.ClassLabel,
		WorkSpeed:      s.WorkSpeed,
		WorkSpeedLabel: model.WorkSpeedLabels[s.WorkSpeed],
		LastSeenAt:     s.LastSeenAt.Format(time.RFC3339),
	}
}

func workSpeedResponse(speed int) *dto.WorkSpeedResponse {
	if _, ok := model.WorkSpeedLabels[speed]; !ok {
		speed = model.WorkSpeedNormal
	}
	return &dto.WorkSpeedResponse{
		WorkSpeed: speed,
		Label:     model.WorkSpeedLabels[speed],
		Options:   model.WorkSpeedLabels,
	}
}
