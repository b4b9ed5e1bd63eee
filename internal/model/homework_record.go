package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// HomeworkRecord 作业记录 — 对应 homework_records
// 唯一键 (student_id, institution, external_id)
// IsDone / CompletionDate 仅由用户标记操作写入，同步不会覆盖
type HomeworkRecord struct {
	ID             int64          `gorm:"primaryKey"                               json:"-"`
	StudentID      int64          `gorm:"not null"                                 json:"student_id"`
	Institution    string         `gorm:"type:varchar(64);not null"                json:"institution"`
	ExternalID     int64          `gorm:"not null"                                 json:"external_id"`
	AccountRef     *int64         `gorm:"column:account_ref"                       json:"account_ref,omitempty"`
	DueDate        string         `gorm:"type:varchar(10);not null"                json:"due_date"`
	Subject        string         `gorm:"type:varchar(200);not null;default:''"    json:"subject"`
	SubjectCode    string         `gorm:"type:varchar(50);not null;default:''"     json:"subject_code"`
	GivenDate      string         `gorm:"type:varchar(10);not null;default:''"     json:"given_date"`
	ToDo           *bool          `gorm:"column:to_do"                             json:"to_do,omitempty"`
	DocumentsToDo  bool           `gorm:"not null;default:false"                   json:"documents_to_do"`
	SubmitOnline   bool           `gorm:"not null;default:false"                   json:"submit_online"`
	IsControl      bool           `gorm:"not null;default:false"                   json:"is_control"`
	UpstreamDone   bool           `gorm:"not null;default:false"                   json:"upstream_done"`
	IsDone         bool           `gorm:"not null;default:false"                   json:"is_done"`
	CompletionDate *time.Time     `gorm:""                                         json:"completion_date,omitempty"`
	LastSyncedAt   time.Time      `gorm:"not null"                                 json:"last_synced_at"`
	RawSource      datatypes.JSON `gorm:"type:jsonb"                               json:"raw_source,omitempty"`
	CreatedAt      time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"       json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"       json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index"                                    json:"-"`
}

// TableName 指定表名
func (HomeworkRecord) TableName() string { return "homework_records" }
