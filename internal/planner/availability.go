package planner

import "sort"

// 基础分阈值
var (
	earlyFinish = At(15, 0)
	lateFinish  = At(16, 0)
)

// 假期补算周六时的基础分
const imputedSaturdayBase = 3.0

// 当日标签
const (
	LabelToday   = "today"
	LabelWeekend = "weekend"
)

// DayScore 单日评分
type DayScore struct {
	Date      string  `json:"date"`
	Weekday   int     `json:"weekday"`
	EndTime   string  `json:"end_time,omitempty"`
	IsHoliday bool    `json:"is_holiday"`
	Base      float64 `json:"base"`
	Penalty   float64 `json:"penalty"`
	Total     float64 `json:"total"`
}

// DateRange 闭区间日期范围
type DateRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Headline 当日主分（周末为周六 + 周日）
type Headline struct {
	Label           string     `json:"label"`
	DayScore        float64    `json:"day_score"`
	WeekendRange    *DateRange `json:"weekend_range,omitempty"`
	SaturdayImputed bool       `json:"saturday_imputed,omitempty"`
}

// Summary 可用性汇总
type Summary struct {
	Today     string     `json:"today"`
	WeekScore float64    `json:"week_score"`
	Headline  Headline   `json:"headline"`
	Days      []DayScore `json:"days"`
}

// BaseScore 单日基础分
//
//	假期                 → 3
//	无下课时间           → 1
//	下课 < 15:00         → 2
//	15:00 < 下课 < 16:00 → 1.5
//	其他（含恰好 15:00 / 16:00） → 1
func BaseScore(d DailyAvailability) float64 {
	if d.IsHoliday {
		return 3
	}
	if d.LastEndTime == nil {
		return 1
	}
	end := *d.LastEndTime
	switch {
	case end < earlyFinish:
		return 2
	case end > earlyFinish && end < lateFinish:
		return 1.5
	default:
		return 1
	}
}

// ScoreDays 计算每日得分（基础分 + 个人安排扣分），按日期升序
func ScoreDays(daily map[string]DailyAvailability, idx ObligationIndex) []DayScore {
	out := make([]DayScore, 0, len(daily))
	for date, d := range daily {
		wd := ISOWeekday(date)
		base := BaseScore(d)
		penalty := idx.Penalty(wd)
		s := DayScore{
			Date:      date,
			Weekday:   wd,
			IsHoliday: d.IsHoliday,
			Base:      base,
			Penalty:   penalty,
			Total:     base + penalty,
		}
		if d.LastEndTime != nil {
			s.EndTime = d.LastEndTime.String()
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

func indexByDate(scores []DayScore) map[string]DayScore {
	m := make(map[string]DayScore, len(scores))
	for _, s := range scores {
		m[s.Date] = s
	}
	return m
}

// WeekScore 从 today 到下一个周四（含）的得分之和；today 为周四时只含当天
func WeekScore(scores []DayScore, today string) float64 {
	wd := ISOWeekday(today)
	if wd == 0 {
		return 0
	}
	dist := (4 - wd + 7) % 7
	byDate := indexByDate(scores)

	var sum float64
	for i := 0; i <= dist; i++ {
		if s, ok := byDate[AddDays(today, i)]; ok {
			sum += s.Total
		}
	}
	return sum
}

// HeadlineScore 当日主分
//   - 周六/周日：周六分 + 周日分；若今天是周日且周六不在窗口内，周六按 3 - 个人安排扣分补算
//   - 工作日：当日得分，无数据时为 0
func HeadlineScore(scores []DayScore, today string, idx ObligationIndex) Headline {
	byDate := indexByDate(scores)
	wd := ISOWeekday(today)

	if wd != 6 && wd != 7 {
		h := Headline{Label: LabelToday}
		if s, ok := byDate[today]; ok {
			h.DayScore = s.Total
		}
		return h
	}

	saturday := today
	if wd == 7 {
		saturday = AddDays(today, -1)
	}
	sunday := AddDays(saturday, 1)

	h := Headline{
		Label:        LabelWeekend,
		WeekendRange: &DateRange{From: saturday, To: sunday},
	}

	if s, ok := byDate[saturday]; ok {
		h.DayScore += s.Total
	} else if wd == 7 {
		h.DayScore += imputedSaturdayBase + idx.Penalty(6)
		h.SaturdayImputed = true
	}
	if s, ok := byDate[sunday]; ok {
		h.DayScore += s.Total
	}
	return h
}

// Summarize 课表条目 + 个人安排 → 可用性汇总
func Summarize(entries []CalendarEntry, idx ObligationIndex, today string) Summary {
	days := ScoreDays(ExtractDaily(entries), idx)
	return Summary{
		Today:     today,
		WeekScore: WeekScore(days, today),
		Headline:  HeadlineScore(days, today, idx),
		Days:      days,
	}
}
