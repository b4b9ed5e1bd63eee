package model

import "time"

// 做作业速度
const (
	WorkSpeedSlow   = 1
	WorkSpeedNormal = 2
	WorkSpeedFast   = 3
)

// WorkSpeedLabels 速度取值 → 显示名
var WorkSpeedLabels = map[int]string{
	WorkSpeedSlow:   "Très lent",
	WorkSpeedNormal: "Normal",
	WorkSpeedFast:   "Très rapide",
}

// Student 学生（上游学生 ID + 学校） — 对应 students
type Student struct {
	StudentID   int64     `gorm:"primaryKey;autoIncrement:false"              json:"student_id"`
	Institution string    `gorm:"type:varchar(64);primaryKey"                 json:"institution"`
	AccountID   string    `gorm:"type:uuid;not null"                          json:"account_id"`
	FirstName   string    `gorm:"type:varchar(100);not null;default:''"       json:"first_name"`
	LastName    string    `gorm:"type:varchar(100);not null;default:''"       json:"last_name"`
	ClassLabel  string    `gorm:"type:varchar(100);not null;default:''"       json:"class_label"`
	WorkSpeed   int       `gorm:"type:smallint;not null;default:2"            json:"work_speed"`
	LastSeenAt  time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"          json:"last_seen_at"`
	Timestamps
}

// TableName 指定表名
func (Student) TableName() string { return "students" }
