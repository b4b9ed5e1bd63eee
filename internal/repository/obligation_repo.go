package repository

import (
	"context"

	"gorm.io/gorm"

	"homework-planner/backend/internal/model"
	pkgerrors "homework-planner/backend/pkg/errors"
)

// ObligationRepository 周期性个人安排数据访问接口
type ObligationRepository interface {
	List(ctx context.Context, studentID int64, institution string) ([]model.RecurringObligation, error)
	GetByID(ctx context.Context, id string) (*model.RecurringObligation, error)
	Create(ctx context.Context, obligation *model.RecurringObligation) error
	CreateBatch(ctx context.Context, obligations []model.RecurringObligation) error
	// Update 乐观锁更新：版本不匹配返回 ErrOptimisticLock
	Update(ctx context.Context, obligation *model.RecurringObligation) error
	Delete(ctx context.Context, id string) error
}

type obligationRepo struct {
	db *gorm.DB
}

// NewObligationRepo 创建 ObligationRepository 实例
func NewObligationRepo(db *gorm.DB) ObligationRepository {
	return &obligationRepo{db: db}
}

func (r *obligationRepo) List(ctx context.Context, studentID int64, institution string) ([]model.RecurringObligation, error) {
	var obligations []model.RecurringObligation
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND institution = ?", studentID, institution).
		Order("created_at ASC").
		Find(&obligations).Error
	return obligations, err
}

func (r *obligationRepo) GetByID(ctx context.Context, id string) (*model.RecurringObligation, error) {
	var obligation model.RecurringObligation
	err := r.db.WithContext(ctx).
		Where("obligation_id = ?", id).
		First(&obligation).Error
	if err != nil {
		return nil, err
	}
	return &obligation, nil
}

func (r *obligationRepo) Create(ctx context.Context, obligation *model.RecurringObligation) error {
	return r.db.WithContext(ctx).Create(obligation).Error
}

func (r *obligationRepo) CreateBatch(ctx context.Context, obligations []model.RecurringObligation) error {
	if len(obligations) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&obligations).Error
}

func (r *obligationRepo) Update(ctx context.Context, obligation *model.RecurringObligation) error {
	oldVersion := obligation.Version
	result := r.db.WithContext(ctx).
		Model(obligation).
		Where("obligation_id = ? AND version = ?", obligation.ObligationID, oldVersion).
		Updates(map[string]interface{}{
			"category": obligation.Category,
			"weekdays": obligation.Weekdays,
			"note":     obligation.Note,
			"version":  oldVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	obligation.Version = oldVersion + 1
	return nil
}

func (r *obligationRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Where("obligation_id = ?", id).
		Delete(&model.RecurringObligation{}).Error
}
