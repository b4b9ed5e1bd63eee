package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"homework-planner/backend/internal/model"
)

// StudentRepository 学生数据访问接口
type StudentRepository interface {
	// Upsert 按 (student_id, institution) 插入或更新资料与 last_seen_at，不改归属账号与做题速度
	Upsert(ctx context.Context, student *model.Student) error
	Get(ctx context.Context, studentID int64, institution string) (*model.Student, error)
	ListByAccount(ctx context.Context, accountID string) ([]model.Student, error)
	// FindLatest 账号下该学生 ID 最近一次出现的记录，用于推断学校
	FindLatest(ctx context.Context, accountID string, studentID int64) (*model.Student, error)
	UpdateWorkSpeed(ctx context.Context, studentID int64, institution string, speed int) error
}

type studentRepo struct {
	db *gorm.DB
}

// NewStudentRepo 创建 StudentRepository 实例
func NewStudentRepo(db *gorm.DB) StudentRepository {
	return &studentRepo{db: db}
}

func (r *studentRepo) Upsert(ctx context.Context, student *model.Student) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "student_id"}, {Name: "institution"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"first_name", "last_name", "class_label", "last_seen_at", "updated_at",
			}),
		}).
		Create(student).Error
}

func (r *studentRepo) Get(ctx context.Context, studentID int64, institution string) (*model.Student, error) {
	var student model.Student
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND institution = ?", studentID, institution).
		First(&student).Error
	if err != nil {
		return nil, err
	}
	return &student, nil
}

func (r *studentRepo) ListByAccount(ctx context.Context, accountID string) ([]model.Student, error) {
	var students []model.Student
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("last_seen_at DESC").
		Find(&students).Error
	return students, err
}

func (r *studentRepo) FindLatest(ctx context.Context, accountID string, studentID int64) (*model.Student, error) {
	var student model.Student
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND student_id = ?", accountID, studentID).
		Order("last_seen_at DESC").
		First(&student).Error
	if err != nil {
		return nil, err
	}
	return &student, nil
}

func (r *studentRepo) UpdateWorkSpeed(ctx context.Context, studentID int64, institution string, speed int) error {
	result := r.db.WithContext(ctx).
		Model(&model.Student{}).
		Where("student_id = ? AND institution = ?", studentID, institution).
		Update("work_speed", speed)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
