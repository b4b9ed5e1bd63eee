package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"homework-planner/backend/internal/model"
	"homework-planner/backend/internal/repository"
	apperr "homework-planner/backend/pkg/errors"
)

// MarkAction 用户标记动作
type MarkAction string

const (
	MarkDoneToday     MarkAction = "done-today"
	MarkDoneYesterday MarkAction = "done-yesterday"
	MarkDonePrevious  MarkAction = "done-previous"
	MarkNotDone       MarkAction = "not-done"
)

// ParseMarkAction 非法取值返回 InputInvalid
func ParseMarkAction(raw string) (MarkAction, error) {
	switch a := MarkAction(raw); a {
	case MarkDoneToday, MarkDoneYesterday, MarkDonePrevious, MarkNotDone:
		return a, nil
	}
	return "", apperr.InputInvalid("markHomework", "未知的标记动作: "+raw)
}

// completion 动作 → (是否完成, 完成时间)
func (a MarkAction) completion(now time.Time) (bool, *time.Time) {
	var at time.Time
	switch a {
	case MarkDoneToday:
		at = now
	case MarkDoneYesterday:
		at = now.Add(-24 * time.Hour)
	case MarkDonePrevious:
		at = now.Add(-48 * time.Hour)
	default:
		return false, nil
	}
	return true, &at
}

// markCommand 一次标记：先应用推测状态并写入，失败时重读权威行
type markCommand struct {
	repo       repository.HomeworkRepository
	logger     *zap.Logger
	sc         StudentContext
	externalID int64
	action     MarkAction
	now        time.Time

	previous *model.HomeworkRecord
}

// Execute 成功返回新状态；写入失败返回权威状态与 PersistenceConflict
func (c *markCommand) Execute(ctx context.Context) (*model.HomeworkRecord, error) {
	const op = "markHomework"

	current, err := c.repo.GetByExternalID(ctx, c.sc.StudentID, c.sc.Institution, c.externalID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHomeworkNotFound
		}
		return nil, err
	}
	snapshot := *current
	c.previous = &snapshot

	next := *current
	next.IsDone, next.CompletionDate = c.action.completion(c.now)

	if err := c.repo.SetCompletion(ctx, c.sc.StudentID, c.sc.Institution, c.externalID, next.IsDone, next.CompletionDate); err != nil {
		c.logger.Warn("写入完成状态失败，回退到权威状态",
			zap.Int64("student_id", c.sc.StudentID),
			zap.Int64("external_id", c.externalID),
			zap.String("action", string(c.action)),
			zap.Error(err),
		)
		return c.rollback(ctx), apperr.PersistenceConflict(op, err)
	}
	return &next, nil
}

// rollback 重读数据库中的权威行；重读失败时返回执行前的快照
func (c *markCommand) rollback(ctx context.Context) *model.HomeworkRecord {
	authoritative, err := c.repo.GetByExternalID(ctx, c.sc.StudentID, c.sc.Institution, c.externalID)
	if err != nil {
		c.logger.Warn("重读作业失败", zap.Int64("external_id", c.externalID), zap.Error(err))
		return c.previous
	}
	return authoritative
}
