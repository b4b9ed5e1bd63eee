package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"homework-planner/backend/internal/planner"
)

// ── ICS 日历 ──────────────────────────────────────────────
//
// 两个用途：
//   - 离线课表源：VEVENT 展开为 [from, to] 内的 CalendarEntry
//   - 个人安排导入：按 类别+标题 合并，星期集合取自 DTSTART 与 RRULE BYDAY
//
// 类别优先取 CATEGORIES，其次按 SUMMARY 关键词推断
// ─────────────────────────────────────────────────────────────

const (
	icsMaxFileSize  = 5 * 1024 * 1024 // 5MB
	icsFetchTimeout = 30 * time.Second
	entryTimeLayout = "2006-01-02 15:04"
)

// FetchICS 从 URL 获取 ICS 内容（webcal:// 视为 https://）
func FetchICS(ctx context.Context, client *http.Client, rawURL string) (io.ReadCloser, error) {
	u := rawURL
	if strings.HasPrefix(u, "webcal://") {
		u = "https://" + strings.TrimPrefix(u, "webcal://")
	}
	if client == nil {
		client = &http.Client{Timeout: icsFetchTimeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("ICS 地址无效: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &Error{Status: http.StatusBadGateway, Message: fmt.Sprintf("获取 ICS 失败: %v", err)}
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &Error{Status: resp.StatusCode, Message: "获取 ICS 失败"}
	}
	return struct {
		io.Reader
		io.Closer
	}{
		Reader: io.LimitReader(resp.Body, icsMaxFileSize),
		Closer: resp.Body,
	}, nil
}

// ICSCalendar 以 ICS 订阅作为课表源；不提供作业
type ICSCalendar struct {
	url    string
	client *http.Client
	loc    *time.Location
}

// NewICSCalendar 创建 ICS 课表源
func NewICSCalendar(url string, client *http.Client, loc *time.Location) *ICSCalendar {
	if loc == nil {
		loc = time.UTC
	}
	return &ICSCalendar{url: url, client: client, loc: loc}
}

// CalendarEntries 拉取订阅并展开窗口内事件
func (c *ICSCalendar) CalendarEntries(ctx context.Context, _ Session, from, to string) ([]planner.CalendarEntry, error) {
	rc, err := FetchICS(ctx, c.client, c.url)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	entries, err := ParseCalendarEntries(rc, from, to, c.loc)
	if err != nil {
		return nil, &Error{Status: http.StatusOK, Message: err.Error()}
	}
	return entries, nil
}

// HomeworkBatch ICS 不含作业本
func (c *ICSCalendar) HomeworkBatch(context.Context, Session) ([]HomeworkItem, error) {
	return nil, nil
}

// ParseCalendarEntries 将 ICS 事件展开为 [from, to]（含）内的课表条目
func ParseCalendarEntries(r io.Reader, from, to string, loc *time.Location) ([]planner.CalendarEntry, error) {
	cal, err := ics.ParseCalendar(r)
	if err != nil {
		return nil, fmt.Errorf("ICS 格式解析失败: %w", err)
	}
	fromT, err := time.ParseInLocation(planner.DateLayout, from, loc)
	if err != nil {
		return nil, fmt.Errorf("起始日期无效: %w", err)
	}
	toT, err := time.ParseInLocation(planner.DateLayout, to, loc)
	if err != nil {
		return nil, fmt.Errorf("结束日期无效: %w", err)
	}
	windowEnd := toT.AddDate(0, 0, 1)

	var out []planner.CalendarEntry
	for _, evt := range cal.Events() {
		start, err := parseICSDateTime(evt, ics.ComponentPropertyDtStart, loc)
		if err != nil {
			continue
		}
		end, err := parseICSDateTime(evt, ics.ComponentPropertyDtEnd, loc)
		if err != nil {
			end = start.Add(time.Hour)
		}
		duration := end.Sub(start)

		typ, label := entryTypeOf(evt)
		for _, occ := range occurrences(evt, start, windowEnd, loc) {
			if occ.Before(fromT) {
				continue
			}
			out = append(out, planner.CalendarEntry{
				Type:  typ,
				Start: occ.Format(entryTimeLayout),
				End:   occ.Add(duration).Format(entryTimeLayout),
				Label: label,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out, nil
}

// ObligationDraft ICS 导入得到的个人安排草稿
type ObligationDraft struct {
	Category planner.ObligationCategory
	Weekdays []int
	Note     string
}

// ParseObligations 解析 ICS 为个人安排草稿；同类别同标题的事件合并星期
func ParseObligations(r io.Reader, loc *time.Location) ([]ObligationDraft, error) {
	cal, err := ics.ParseCalendar(r)
	if err != nil {
		return nil, fmt.Errorf("ICS 格式解析失败: %w", err)
	}

	type key struct {
		category planner.ObligationCategory
		note     string
	}
	merged := make(map[key]map[int]bool)
	var order []key

	for _, evt := range cal.Events() {
		summary := propValue(evt, ics.ComponentPropertySummary)
		if summary == "" {
			continue
		}
		start, err := parseICSDateTime(evt, ics.ComponentPropertyDtStart, loc)
		if err != nil {
			continue
		}

		days := []int{goWeekdayToISO(start.Weekday())}
		if rule, ok := eventRule(evt); ok && len(rule.byDay) > 0 {
			days = rule.byDay
		}

		k := key{category: obligationCategoryOf(evt, summary), note: summary}
		set, exists := merged[k]
		if !exists {
			set = make(map[int]bool)
			merged[k] = set
			order = append(order, k)
		}
		for _, d := range days {
			set[d] = true
		}
	}

	out := make([]ObligationDraft, 0, len(order))
	for _, k := range order {
		days := make([]int, 0, len(merged[k]))
		for d := range merged[k] {
			days = append(days, d)
		}
		sort.Ints(days)
		out = append(out, ObligationDraft{Category: k.category, Weekdays: days, Note: k.note})
	}
	return out, nil
}

// ── 事件展开 ──

// rruleParams RRULE 解析结果
type rruleParams struct {
	freq     string
	interval int
	count    int
	until    time.Time
	byDay    []int
}

var icsDayCodes = map[string]int{"MO": 1, "TU": 2, "WE": 3, "TH": 4, "FR": 5, "SA": 6, "SU": 7}

// parseRRule 解析 RRULE 字符串（如 FREQ=WEEKLY;BYDAY=MO,WE;COUNT=16）
func parseRRule(value string) rruleParams {
	r := rruleParams{interval: 1}
	for _, part := range strings.Split(value, ";") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToUpper(kv[0]) {
		case "FREQ":
			r.freq = strings.ToUpper(kv[1])
		case "INTERVAL":
			if n, err := strconv.Atoi(kv[1]); err == nil && n > 0 {
				r.interval = n
			}
		case "COUNT":
			if n, err := strconv.Atoi(kv[1]); err == nil {
				r.count = n
			}
		case "UNTIL":
			t, err := time.Parse("20060102T150405Z", kv[1])
			if err != nil {
				t, _ = time.Parse("20060102", kv[1])
			}
			r.until = t
		case "BYDAY":
			for _, code := range strings.Split(kv[1], ",") {
				code = strings.ToUpper(strings.TrimSpace(code))
				// 形如 1MO / -1FR 的序号前缀忽略
				if len(code) > 2 {
					code = code[len(code)-2:]
				}
				if d, ok := icsDayCodes[code]; ok {
					r.byDay = append(r.byDay, d)
				}
			}
		}
	}
	return r
}

func eventRule(evt *ics.VEvent) (rruleParams, bool) {
	prop := evt.GetProperty(ics.ComponentPropertyRrule)
	if prop == nil {
		return rruleParams{}, false
	}
	return parseRRule(prop.Value), true
}

// occurrences 展开事件在 windowEnd 之前的所有开始时间
// 支持 DAILY / WEEKLY（含 BYDAY、INTERVAL、COUNT、UNTIL、EXDATE），其他频率按单次处理
func occurrences(evt *ics.VEvent, start, windowEnd time.Time, loc *time.Location) []time.Time {
	rule, ok := eventRule(evt)
	if !ok || (rule.freq != "WEEKLY" && rule.freq != "DAILY") {
		if start.Before(windowEnd) {
			return []time.Time{start}
		}
		return nil
	}

	exDates := parseExDates(evt, loc)
	days := map[int]bool{goWeekdayToISO(start.Weekday()): true}
	if rule.freq == "WEEKLY" && len(rule.byDay) > 0 {
		days = make(map[int]bool, len(rule.byDay))
		for _, d := range rule.byDay {
			days[d] = true
		}
	}
	startWeek := weekMonday(start)

	var out []time.Time
	count := 0
	for cur := start; cur.Before(windowEnd); cur = cur.AddDate(0, 0, 1) {
		if !rule.until.IsZero() && cur.After(rule.until) {
			break
		}
		if rule.count > 0 && count >= rule.count {
			break
		}

		switch rule.freq {
		case "DAILY":
			if daysBetween(start, cur)%rule.interval != 0 {
				continue
			}
		case "WEEKLY":
			if !days[goWeekdayToISO(cur.Weekday())] {
				continue
			}
			if daysBetween(startWeek, weekMonday(cur))/7%rule.interval != 0 {
				continue
			}
		}

		count++
		if exDates[cur.Format("20060102")] {
			continue
		}
		out = append(out, cur)
	}
	return out
}

// parseExDates 解析事件中所有 EXDATE
func parseExDates(evt *ics.VEvent, loc *time.Location) map[string]bool {
	exDates := make(map[string]bool)
	for _, prop := range evt.Properties {
		if prop.IANAToken != string(ics.ComponentPropertyExdate) {
			continue
		}
		for _, v := range strings.Split(prop.Value, ",") {
			t, err := time.Parse("20060102T150405Z", v)
			if err != nil {
				t, err = time.ParseInLocation("20060102T150405", v, loc)
				if err != nil {
					t, err = time.ParseInLocation("20060102", v, loc)
				}
			}
			if err == nil {
				exDates[t.In(loc).Format("20060102")] = true
			}
		}
	}
	return exDates
}

// ── 分类 ──

func entryTypeOf(evt *ics.VEvent) (planner.EntryType, string) {
	summary := propValue(evt, ics.ComponentPropertySummary)
	hint := strings.ToUpper(propValue(evt, ics.ComponentPropertyCategories) + " " + summary)
	switch {
	case containsAny(hint, "CONGE", "CONGÉ", "VACANCES", "HOLIDAY", "FERIE", "FÉRIÉ"):
		return planner.EntryHoliday, summary
	case containsAny(hint, "PERMANENCE", "ETUDE", "ÉTUDE"):
		return planner.EntrySupervisedStudy, summary
	default:
		return planner.EntryClass, summary
	}
}

func obligationCategoryOf(evt *ics.VEvent, summary string) planner.ObligationCategory {
	if cat := strings.TrimSpace(propValue(evt, ics.ComponentPropertyCategories)); cat != "" {
		for _, c := range strings.Split(cat, ",") {
			if planner.ValidCategory(strings.TrimSpace(c)) {
				return planner.ObligationCategory(strings.TrimSpace(c))
			}
		}
	}
	hint := strings.ToLower(summary)
	switch {
	case containsAny(hint, "sport", "foot", "basket", "natation", "piscine", "tennis", "danse", "judo", "rugby"):
		return planner.CategorySport
	case containsAny(hint, "musique", "piano", "guitare", "violon", "solfège", "solfege", "conservatoire", "chorale"):
		return planner.CategoryMusic
	case containsAny(hint, "cours particulier", "soutien", "tutorat", "répétiteur"):
		return planner.CategoryPrivateLesson
	default:
		return planner.CategoryOther
	}
}

// ── 辅助函数 ──

func propValue(evt *ics.VEvent, name ics.ComponentProperty) string {
	prop := evt.GetProperty(name)
	if prop == nil {
		return ""
	}
	return strings.TrimSpace(prop.Value)
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// goWeekdayToISO 将 Go 的 time.Weekday (0=Sunday) 转为 ISO 8601 (1=Monday … 7=Sunday)
func goWeekdayToISO(wd time.Weekday) int {
	if wd == time.Sunday {
		return 7
	}
	return int(wd)
}

// daysBetween 按日历日计算间隔，不受夏令时影响
func daysBetween(a, b time.Time) int {
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

func weekMonday(t time.Time) time.Time {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return d.AddDate(0, 0, 1-goWeekdayToISO(t.Weekday()))
}

// parseICSDateTime 从 VEVENT 中解析日期时间属性
func parseICSDateTime(evt *ics.VEvent, propName ics.ComponentProperty, loc *time.Location) (time.Time, error) {
	prop := evt.GetProperty(propName)
	if prop == nil {
		return time.Time{}, fmt.Errorf("missing property %s", propName)
	}
	val := prop.Value

	tzid := ""
	for k, v := range prop.ICalParameters {
		if strings.ToUpper(k) == "TZID" && len(v) > 0 {
			tzid = v[0]
		}
	}

	for _, layout := range []string{"20060102T150405Z", "20060102T150405", "20060102"} {
		t, err := time.Parse(layout, val)
		if err != nil {
			continue
		}
		if strings.HasSuffix(layout, "Z") {
			return t.In(loc), nil
		}
		if tzid != "" {
			if tzLoc, err := time.LoadLocation(tzid); err == nil {
				return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, tzLoc).In(loc), nil
			}
		}
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc), nil
	}
	return time.Time{}, fmt.Errorf("无法解析日期: %s", val)
}
