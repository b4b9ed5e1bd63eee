package dto

// ── 学生模块 DTO ──

// UpsertStudentRequest 登记或更新学生
type UpsertStudentRequest struct {
	StudentID   int64  `json:"student_id"  binding:"required,gt=0"`
	Institution string `json:"institution" binding:"required,max=64"`
	FirstName   string `json:"first_name"  binding:"max=100"`
	LastName    string `json:"last_name"   binding:"max=100"`
	ClassLabel  string `json:"class_label" binding:"max=100"`
}

// StudentResponse 学生信息
type StudentResponse struct {
	StudentID      int64  `json:"student_id"`
	Institution    string `json:"institution"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	ClassLabel     string `json:"class_label"`
	WorkSpeed      int    `json:"work_speed"`
	WorkSpeedLabel string `json:"work_speed_label"`
	LastSeenAt     string `json:"last_seen_at"`
}

// WorkSpeedRequest 设置做作业速度
type WorkSpeedRequest struct {
	WorkSpeed int `json:"work_speed" binding:"required,min=1,max=3"`
}

// WorkSpeedResponse 做作业速度及可选项
type WorkSpeedResponse struct {
	WorkSpeed int            `json:"work_speed"`
	Label     string         `json:"label"`
	Options   map[int]string `json:"options"`
}
