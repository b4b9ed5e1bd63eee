package upstream

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"homework-planner/backend/internal/planner"
)

// 平台业务码
const (
	codeOK           = 200
	codeTwoFactor    = 250
	codeInvalidToken = 520
)

// envelope 平台统一响应外壳
type envelope struct {
	Code    int             `json:"code"`
	Token   string          `json:"token,omitempty"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data"`
}

// timetableItem 课表条目原始结构
type timetableItem struct {
	TypeCours string `json:"typeCours"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Matiere   string `json:"matiere"`
	Text      string `json:"text"`
}

// homeworkRaw 作业本条目原始结构
type homeworkRaw struct {
	IDDevoir        json.Number `json:"idDevoir"`
	Matiere         string      `json:"matiere"`
	CodeMatiere     string      `json:"codeMatiere"`
	AFaire          *bool       `json:"aFaire"`
	DocumentsAFaire bool        `json:"documentsAFaire"`
	DonneLe         string      `json:"donneLe"`
	Effectue        bool        `json:"effectue"`
	Interrogation   bool        `json:"interrogation"`
	RendreEnLigne   bool        `json:"rendreEnLigne"`
}

func checkEnvelope(status int, body []byte) (*envelope, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &Error{Status: status, Message: fmt.Sprintf("响应解析失败: %v", err)}
	}
	switch env.Code {
	case codeOK:
		return &env, nil
	case codeInvalidToken:
		return nil, &Error{Status: status, Code: env.Code, Message: "凭证无效或已过期"}
	case codeTwoFactor:
		return nil, &Error{Status: status, Code: env.Code, Message: "需要二次验证"}
	default:
		msg := env.Message
		if msg == "" {
			msg = "未知错误"
		}
		return nil, &Error{Status: status, Code: env.Code, Message: msg}
	}
}

// ParseTimetable 解析课表 data 数组
func ParseTimetable(data []byte) ([]planner.CalendarEntry, error) {
	var items []timetableItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("课表格式无效: %w", err)
	}
	out := make([]planner.CalendarEntry, 0, len(items))
	for _, it := range items {
		label := it.Matiere
		if label == "" {
			label = it.Text
		}
		out = append(out, planner.CalendarEntry{
			Type:  planner.EntryTypeFromUpstream(it.TypeCours),
			Start: it.StartDate,
			End:   it.EndDate,
			Label: label,
		})
	}
	return out, nil
}

// ParseHomework 解析作业本 data：{ "YYYY-MM-DD": [ {...}, ... ] }
// 缺少 idDevoir 的条目跳过；结果按截止日期、ID 升序
func ParseHomework(data []byte) ([]HomeworkItem, error) {
	var byDate map[string][]json.RawMessage
	if err := json.Unmarshal(data, &byDate); err != nil {
		return nil, fmt.Errorf("作业本格式无效: %w", err)
	}

	var out []HomeworkItem
	for date, raws := range byDate {
		for _, raw := range raws {
			item, ok := parseHomeworkItem(date, raw)
			if ok {
				out = append(out, item)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DueDate != out[j].DueDate {
			return out[i].DueDate < out[j].DueDate
		}
		return out[i].ExternalID < out[j].ExternalID
	})
	return out, nil
}

func parseHomeworkItem(date string, raw json.RawMessage) (HomeworkItem, bool) {
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	var h homeworkRaw
	if err := dec.Decode(&h); err != nil {
		return HomeworkItem{}, false
	}
	id, err := h.IDDevoir.Int64()
	if err != nil || id <= 0 {
		return HomeworkItem{}, false
	}
	return HomeworkItem{
		ExternalID:    id,
		DueDate:       date,
		Subject:       h.Matiere,
		SubjectCode:   h.CodeMatiere,
		GivenDate:     h.DonneLe,
		ToDo:          h.AFaire,
		DocumentsToDo: h.DocumentsAFaire,
		SubmitOnline:  h.RendreEnLigne,
		IsControl:     h.Interrogation,
		Done:          h.Effectue,
		Raw:           raw,
	}, true
}

// ParseHomeworkEnvelope 接受完整响应（含 code/data）或仅 data
func ParseHomeworkEnvelope(body []byte) ([]HomeworkItem, error) {
	var head struct {
		Code *int            `json:"code"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &head); err == nil && head.Code != nil {
		env, err := checkEnvelope(0, body)
		if err != nil {
			return nil, err
		}
		return ParseHomework(env.Data)
	}
	return ParseHomework(body)
}
