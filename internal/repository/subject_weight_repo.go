package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"homework-planner/backend/internal/model"
)

// SubjectWeightRepository 科目权重数据访问接口
type SubjectWeightRepository interface {
	List(ctx context.Context, studentID int64) ([]model.SubjectWeight, error)
	UpsertBatch(ctx context.Context, weights []model.SubjectWeight) error
}

type subjectWeightRepo struct {
	db *gorm.DB
}

// NewSubjectWeightRepo 创建 SubjectWeightRepository 实例
func NewSubjectWeightRepo(db *gorm.DB) SubjectWeightRepository {
	return &subjectWeightRepo{db: db}
}

func (r *subjectWeightRepo) List(ctx context.Context, studentID int64) ([]model.SubjectWeight, error) {
	var weights []model.SubjectWeight
	err := r.db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("subject_code ASC").
		Find(&weights).Error
	return weights, err
}

func (r *subjectWeightRepo) UpsertBatch(ctx context.Context, weights []model.SubjectWeight) error {
	if len(weights) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "student_id"}, {Name: "subject_code"}},
			DoUpdates: clause.AssignmentColumns([]string{"subject", "weight", "updated_at"}),
		}).
		Create(&weights).Error
}
