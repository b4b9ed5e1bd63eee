package model

// Worksheet 作业单 — 对应 worksheets
// 唯一键 (student_id, institution, anchor_date)；Budget 为当日主分快照
type Worksheet struct {
	WorksheetID string  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"worksheet_id"`
	StudentID   int64   `gorm:"not null"                                       json:"student_id"`
	Institution string  `gorm:"type:varchar(64);not null"                      json:"institution"`
	AnchorDate  string  `gorm:"type:varchar(10);not null"                      json:"anchor_date"`
	Budget      float64 `gorm:"not null;default:0"                             json:"budget"`
	Timestamps
}

// TableName 指定表名
func (Worksheet) TableName() string { return "worksheets" }

// WorksheetLink 作业单 ↔ 作业 — 对应 worksheet_links
type WorksheetLink struct {
	WorksheetID string `gorm:"type:uuid;primaryKey"           json:"worksheet_id"`
	ExternalID  int64  `gorm:"primaryKey;autoIncrement:false" json:"external_id"`
	StudentID   int64  `gorm:"not null"                       json:"student_id"`
	Institution string `gorm:"type:varchar(64);not null"      json:"institution"`
}

// TableName 指定表名
func (WorksheetLink) TableName() string { return "worksheet_links" }
