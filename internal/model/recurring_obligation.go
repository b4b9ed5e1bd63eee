package model

// RecurringObligation 周期性个人安排 — 对应 recurring_obligations
type RecurringObligation struct {
	ObligationID string   `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"obligation_id"`
	StudentID    int64    `gorm:"not null"                                       json:"student_id"`
	Institution  string   `gorm:"type:varchar(64);not null"                      json:"institution"`
	Category     string   `gorm:"type:varchar(20);not null"                      json:"category"` // Sport | Music | PrivateLesson | Other
	Weekdays     IntArray `gorm:"type:int[];not null"                            json:"weekdays"` // 1-7
	Note         string   `gorm:"type:varchar(500);not null;default:''"          json:"note"`
	VersionedModel
}

// TableName 指定表名
func (RecurringObligation) TableName() string { return "recurring_obligations" }
