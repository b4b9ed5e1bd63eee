package dto

// ── 规划模块 DTO ──

// 数据来源
const (
	SourceLive      = "live"      // 上游实时
	SourceCache     = "cache"     // Redis 快照
	SourceWorksheet = "worksheet" // 持久化作业单预算
	SourceStored    = "stored"    // 已持久化的作业记录
	SourceNone      = "none"      // 无可用数据
)

// DateRangeResponse 日期区间
type DateRangeResponse struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// DayScoreResponse 单日评分
type DayScoreResponse struct {
	Date      string  `json:"date"`
	Weekday   int     `json:"weekday"`
	EndTime   string  `json:"end_time,omitempty"`
	IsHoliday bool    `json:"is_holiday"`
	Base      float64 `json:"base"`
	Penalty   float64 `json:"penalty"`
	Total     float64 `json:"total"`
}

// AvailabilityResponse 空闲度评分
type AvailabilityResponse struct {
	StudentID       int64              `json:"student_id"`
	Institution     string             `json:"institution"`
	Today           string             `json:"today"`
	WeekScore       float64            `json:"week_score"`
	DayLabel        string             `json:"day_label"` // today | weekend
	DayScore        float64            `json:"day_score"`
	WeekendRange    *DateRangeResponse `json:"weekend_range,omitempty"`
	SaturdayImputed bool               `json:"saturday_imputed,omitempty"`
	Days            []DayScoreResponse `json:"days"`
	Source          string             `json:"source"`
	ComputedAt      string             `json:"computed_at"`
}

// HomeworkResponse 带计算分值的作业
type HomeworkResponse struct {
	ExternalID     int64   `json:"external_id"`
	DueDate        string  `json:"due_date"`
	Subject        string  `json:"subject"`
	SubjectCode    string  `json:"subject_code"`
	GivenDate      string  `json:"given_date,omitempty"`
	IsControl      bool    `json:"is_control"`
	ToDo           *bool   `json:"to_do,omitempty"`
	DocumentsToDo  bool    `json:"documents_to_do"`
	SubmitOnline   bool    `json:"submit_online"`
	IsDone         bool    `json:"is_done"`
	CompletionDate *string `json:"completion_date,omitempty"`
	SubjectWeight  int     `json:"subject_weight"`
	ControlWeight  int     `json:"control_weight"`
	Score          float64 `json:"score"`
	Reason         string  `json:"reason,omitempty"`
}

// WorksheetResponse 当日作业单
type WorksheetResponse struct {
	WorksheetID         string             `json:"worksheet_id,omitempty"`
	StudentID           int64              `json:"student_id"`
	Institution         string             `json:"institution"`
	Today               string             `json:"today"`
	AnchorDate          string             `json:"anchor_date"`
	Budget              float64            `json:"budget"`
	UsedByRule          float64            `json:"used_by_rule"`
	RemainingBudget     float64            `json:"remaining_budget"`
	Allocated           []HomeworkResponse `json:"allocated"`
	Deferred            []HomeworkResponse `json:"deferred"`
	UpcomingAssessments []HomeworkResponse `json:"upcoming_assessments"`
	WorkSpeed           int                `json:"work_speed"`
	WorkSpeedLabel      string             `json:"work_speed_label"`
	AvailabilitySource  string             `json:"availability_source"`
	HomeworkSource      string             `json:"homework_source"`
}

// MarkHomeworkRequest 用户标记作业
type MarkHomeworkRequest struct {
	Action string `json:"action" binding:"required,mark_action"`
}

// HomeworkListRequest 作业列表查询参数
type HomeworkListRequest struct {
	From string `form:"from" binding:"omitempty,datetime=2006-01-02"`
}

// SyncResponse 推送同步结果
type SyncResponse struct {
	Received int                `json:"received"`
	Stored   int                `json:"stored"`
	Homework []HomeworkResponse `json:"homework"`
}
