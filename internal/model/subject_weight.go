package model

// SubjectWeight 科目权重偏好 — 对应 subject_weights
type SubjectWeight struct {
	StudentID   int64  `gorm:"primaryKey;autoIncrement:false"        json:"student_id"`
	SubjectCode string `gorm:"type:varchar(50);primaryKey"           json:"subject_code"`
	Subject     string `gorm:"type:varchar(200);not null;default:''" json:"subject"`
	Weight      int    `gorm:"type:smallint;not null;default:2"      json:"weight"` // 1 少 | 2 正常 | 3 多
	Timestamps
}

// TableName 指定表名
func (SubjectWeight) TableName() string { return "subject_weights" }
