package upstream

import (
	"context"
	"encoding/json"
	"fmt"

	"homework-planner/backend/internal/planner"
)

// Provider 上游教务平台（会话提供方）
// 认证握手不在本服务范围内：调用方提供不透明的 bearer 凭证
type Provider interface {
	// CalendarEntries 抓取 [from, to] 内的课表条目，日期格式 YYYY-MM-DD
	CalendarEntries(ctx context.Context, sess Session, from, to string) ([]planner.CalendarEntry, error)
	// HomeworkBatch 抓取作业本（按截止日期分组后展平）
	HomeworkBatch(ctx context.Context, sess Session) ([]HomeworkItem, error)
}

// Session 单次请求的上游会话
type Session struct {
	StudentID int64
	Token     string
}

// HomeworkItem 上游作业条目
type HomeworkItem struct {
	ExternalID    int64           `json:"external_id"`
	DueDate       string          `json:"due_date"`
	Subject       string          `json:"subject"`
	SubjectCode   string          `json:"subject_code"`
	GivenDate     string          `json:"given_date"`
	ToDo          *bool           `json:"to_do,omitempty"`
	DocumentsToDo bool            `json:"documents_to_do"`
	SubmitOnline  bool            `json:"submit_online"`
	IsControl     bool            `json:"is_control"`
	Done          bool            `json:"done"`
	Raw           json.RawMessage `json:"raw,omitempty"`
}

// Error 上游失败：HTTP 状态 + 平台业务码 + 可读信息
type Error struct {
	Status  int
	Code    int
	Message string
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("上游请求失败 (HTTP %d, code %d): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("上游请求失败 (HTTP %d): %s", e.Status, e.Message)
}
