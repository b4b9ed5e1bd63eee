package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"homework-planner/backend/internal/model"
)

// pgUndefinedColumn PostgreSQL undefined_column
const pgUndefinedColumn = "42703"

const upsertBatchSize = 200

// optionalHomeworkColumns 旧库可能缺少的可选列
var optionalHomeworkColumns = []string{"account_ref"}

// upstreamHomeworkColumns 冲突时以上游为准更新的列
// is_done / completion_date 不在其中：只有用户标记才能改
var upstreamHomeworkColumns = []string{
	"due_date", "subject", "subject_code", "given_date", "to_do",
	"documents_to_do", "submit_online", "is_control", "upstream_done",
	"last_synced_at", "raw_source", "updated_at",
}

// SubjectRef 作业中出现过的科目
type SubjectRef struct {
	SubjectCode string `json:"subject_code"`
	Subject     string `json:"subject"`
}

// HomeworkRepository 作业记录数据访问接口
type HomeworkRepository interface {
	// UpsertBatch 按 (student_id, institution, external_id) 批量插入或更新
	// 遇到缺列（42703）时去掉可选列重试一次
	UpsertBatch(ctx context.Context, records []model.HomeworkRecord) error
	ListByStudent(ctx context.Context, studentID int64, institution string) ([]model.HomeworkRecord, error)
	ListByExternalIDs(ctx context.Context, studentID int64, institution string, ids []int64) ([]model.HomeworkRecord, error)
	ListDueFrom(ctx context.Context, studentID int64, institution, from string) ([]model.HomeworkRecord, error)
	GetByExternalID(ctx context.Context, studentID int64, institution string, externalID int64) (*model.HomeworkRecord, error)
	SetCompletion(ctx context.Context, studentID int64, institution string, externalID int64, isDone bool, completion *time.Time) error
	ListSubjects(ctx context.Context, studentID int64, institution string) ([]SubjectRef, error)
	// SoftDeleteStale 软删除 syncedBefore 之后未再出现且截止日期早于 dueBefore 的记录
	SoftDeleteStale(ctx context.Context, syncedBefore time.Time, dueBefore string) (int64, error)
}

type homeworkRepo struct {
	db *gorm.DB
}

// NewHomeworkRepo 创建 HomeworkRepository 实例
func NewHomeworkRepo(db *gorm.DB) HomeworkRepository {
	return &homeworkRepo{db: db}
}

func (r *homeworkRepo) UpsertBatch(ctx context.Context, records []model.HomeworkRecord) error {
	if len(records) == 0 {
		return nil
	}
	err := r.upsert(ctx, records, false)
	if err != nil && IsUndefinedColumn(err) {
		return r.upsert(ctx, records, true)
	}
	return err
}

func (r *homeworkRepo) upsert(ctx context.Context, records []model.HomeworkRecord, degraded bool) error {
	columns := upstreamHomeworkColumns
	db := r.db.WithContext(ctx)
	if degraded {
		db = db.Omit(optionalHomeworkColumns...)
	} else {
		columns = append(append([]string{}, upstreamHomeworkColumns...), optionalHomeworkColumns...)
	}

	set := clause.AssignmentColumns(columns)
	// 再次出现的记录恢复软删除
	set = append(set, clause.Assignment{Column: clause.Column{Name: "deleted_at"}, Value: nil})

	return db.
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "student_id"}, {Name: "institution"}, {Name: "external_id"}},
			DoUpdates: set,
		}).
		CreateInBatches(&records, upsertBatchSize).Error
}

func (r *homeworkRepo) ListByStudent(ctx context.Context, studentID int64, institution string) ([]model.HomeworkRecord, error) {
	var records []model.HomeworkRecord
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND institution = ?", studentID, institution).
		Order("due_date ASC, external_id ASC").
		Find(&records).Error
	return records, err
}

func (r *homeworkRepo) ListByExternalIDs(ctx context.Context, studentID int64, institution string, ids []int64) ([]model.HomeworkRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var records []model.HomeworkRecord
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND institution = ? AND external_id IN ?", studentID, institution, ids).
		Order("due_date ASC, external_id ASC").
		Find(&records).Error
	return records, err
}

func (r *homeworkRepo) ListDueFrom(ctx context.Context, studentID int64, institution, from string) ([]model.HomeworkRecord, error) {
	var records []model.HomeworkRecord
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND institution = ? AND due_date >= ?", studentID, institution, from).
		Order("due_date ASC, external_id ASC").
		Find(&records).Error
	return records, err
}

func (r *homeworkRepo) GetByExternalID(ctx context.Context, studentID int64, institution string, externalID int64) (*model.HomeworkRecord, error) {
	var record model.HomeworkRecord
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND institution = ? AND external_id = ?", studentID, institution, externalID).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *homeworkRepo) SetCompletion(ctx context.Context, studentID int64, institution string, externalID int64, isDone bool, completion *time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&model.HomeworkRecord{}).
		Where("student_id = ? AND institution = ? AND external_id = ?", studentID, institution, externalID).
		Updates(map[string]interface{}{
			"is_done":         isDone,
			"completion_date": completion,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *homeworkRepo) ListSubjects(ctx context.Context, studentID int64, institution string) ([]SubjectRef, error) {
	var refs []SubjectRef
	err := r.db.WithContext(ctx).
		Model(&model.HomeworkRecord{}).
		Distinct("subject_code", "subject").
		Where("student_id = ? AND institution = ? AND subject_code <> ''", studentID, institution).
		Order("subject_code ASC").
		Scan(&refs).Error
	return refs, err
}

func (r *homeworkRepo) SoftDeleteStale(ctx context.Context, syncedBefore time.Time, dueBefore string) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("last_synced_at < ? AND due_date < ?", syncedBefore, dueBefore).
		Delete(&model.HomeworkRecord{})
	return result.RowsAffected, result.Error
}

// IsUndefinedColumn 是否为 PostgreSQL 缺列错误
func IsUndefinedColumn(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUndefinedColumn
}
