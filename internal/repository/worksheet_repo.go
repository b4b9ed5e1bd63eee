package repository

import (
	"context"
	"sort"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"homework-planner/backend/internal/model"
)

// WorksheetRepository 作业单与关联数据访问接口
type WorksheetRepository interface {
	// Upsert 按 (student_id, institution, anchor_date) 插入或更新预算，回填 WorksheetID
	Upsert(ctx context.Context, ws *model.Worksheet) error
	GetByAnchor(ctx context.Context, studentID int64, institution, anchorDate string) (*model.Worksheet, error)
	// ReconcileLinks 在同一事务中使关联集合与 externalIDs 完全一致
	ReconcileLinks(ctx context.Context, ws *model.Worksheet, externalIDs []int64) error
	ListLinks(ctx context.Context, worksheetID string) ([]int64, error)
}

type worksheetRepo struct {
	db *gorm.DB
}

// NewWorksheetRepo 创建 WorksheetRepository 实例
func NewWorksheetRepo(db *gorm.DB) WorksheetRepository {
	return &worksheetRepo{db: db}
}

func (r *worksheetRepo) Upsert(ctx context.Context, ws *model.Worksheet) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "student_id"}, {Name: "institution"}, {Name: "anchor_date"}},
			DoUpdates: clause.AssignmentColumns([]string{"budget", "updated_at"}),
		}).
		Create(ws).Error
	if err != nil {
		return err
	}
	if ws.WorksheetID != "" {
		return nil
	}

	existing, err := r.GetByAnchor(ctx, ws.StudentID, ws.Institution, ws.AnchorDate)
	if err != nil {
		return err
	}
	ws.WorksheetID = existing.WorksheetID
	return nil
}

func (r *worksheetRepo) GetByAnchor(ctx context.Context, studentID int64, institution, anchorDate string) (*model.Worksheet, error) {
	var ws model.Worksheet
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND institution = ? AND anchor_date = ?", studentID, institution, anchorDate).
		First(&ws).Error
	if err != nil {
		return nil, err
	}
	return &ws, nil
}

func (r *worksheetRepo) ReconcileLinks(ctx context.Context, ws *model.Worksheet, externalIDs []int64) error {
	ids := uniqueIDs(externalIDs)

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		del := tx.Where("worksheet_id = ?", ws.WorksheetID)
		if len(ids) > 0 {
			del = del.Where("external_id NOT IN ?", ids)
		}
		if err := del.Delete(&model.WorksheetLink{}).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		links := make([]model.WorksheetLink, 0, len(ids))
		for _, id := range ids {
			links = append(links, model.WorksheetLink{
				WorksheetID: ws.WorksheetID,
				ExternalID:  id,
				StudentID:   ws.StudentID,
				Institution: ws.Institution,
			})
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&links).Error
	})
}

func (r *worksheetRepo) ListLinks(ctx context.Context, worksheetID string) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&model.WorksheetLink{}).
		Where("worksheet_id = ?", worksheetID).
		Order("external_id ASC").
		Pluck("external_id", &ids).Error
	return ids, err
}

// uniqueIDs 去重并升序
func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
