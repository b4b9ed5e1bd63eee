package planner

import (
	"strings"
	"time"
)

// EntryType 课表条目类型
type EntryType string

const (
	EntryClass           EntryType = "CLASS"
	EntrySupervisedStudy EntryType = "SUPERVISED_STUDY"
	EntryHoliday         EntryType = "HOLIDAY"
	EntryOther           EntryType = "OTHER"
)

// CalendarEntry 课表条目（临时数据，按查询窗口实时抓取，不持久化）
// Start / End 为本地时间字符串，如 "2025-03-10 08:00"
type CalendarEntry struct {
	Type  EntryType `json:"type"`
	Start string    `json:"start"`
	End   string    `json:"end"`
	Label string    `json:"label,omitempty"`
}

// DailyAvailability 单日提取结果
type DailyAvailability struct {
	Date        string `json:"date"`
	LastEndTime *Clock `json:"last_end_time,omitempty"`
	IsHoliday   bool   `json:"is_holiday"`
}

// EntryTypeFromUpstream 将上游 typeCours 映射为条目类型
func EntryTypeFromUpstream(raw string) EntryType {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "COURS":
		return EntryClass
	case "PERMANENCE":
		return EntrySupervisedStudy
	case "CONGE":
		return EntryHoliday
	default:
		return EntryOther
	}
}

var entryTimeLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

func parseEntryTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range entryTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ExtractDaily 按开始日期分组，提取每天的最后有效下课时间与假期标记
//   - 仅含 HOLIDAY 条目的日期 → 假期，LastEndTime 为空
//   - 其余日期取非 HOLIDAY、非 SUPERVISED_STUDY 条目的最大结束时间
//   - 时间无法解析的条目整体丢弃；未知类型按普通课程处理
//   - 没有任何条目的日期不出现在结果中
func ExtractDaily(entries []CalendarEntry) map[string]DailyAvailability {
	type acc struct {
		holidays int
		others   int
		last     *Clock
	}
	byDate := make(map[string]*acc)

	for _, e := range entries {
		start, ok := parseEntryTime(e.Start)
		if !ok {
			continue
		}
		end, ok := parseEntryTime(e.End)
		if !ok {
			continue
		}

		date := start.Format(DateLayout)
		a, exists := byDate[date]
		if !exists {
			a = &acc{}
			byDate[date] = a
		}

		if e.Type == EntryHoliday {
			a.holidays++
			continue
		}
		a.others++
		if e.Type == EntrySupervisedStudy {
			continue
		}

		c := At(end.Hour(), end.Minute())
		if a.last == nil || c > *a.last {
			a.last = &c
		}
	}

	out := make(map[string]DailyAvailability, len(byDate))
	for date, a := range byDate {
		if a.holidays > 0 && a.others == 0 {
			out[date] = DailyAvailability{Date: date, IsHoliday: true}
			continue
		}
		out[date] = DailyAvailability{Date: date, LastEndTime: a.last}
	}
	return out
}
