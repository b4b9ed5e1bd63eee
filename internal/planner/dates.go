package planner

import (
	"fmt"
	"time"
)

// DateLayout 日期键格式（YYYY-MM-DD），所有按天聚合均以此为键
const DateLayout = "2006-01-02"

// Today 返回 now 在 loc 时区下的日期键
func Today(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return now.In(loc).Format(DateLayout)
}

// ParseDate 解析日期键为 UTC 零点
func ParseDate(key string) (time.Time, error) {
	t, err := time.Parse(DateLayout, key)
	if err != nil {
		return time.Time{}, fmt.Errorf("日期格式无效 %q: %w", key, err)
	}
	return t, nil
}

// AddDays 日期键加减天数；key 非法时原样返回
func AddDays(key string, days int) string {
	t, err := ParseDate(key)
	if err != nil {
		return key
	}
	return t.AddDate(0, 0, days).Format(DateLayout)
}

// ISOWeekday 日期键对应的 ISO 星期（1=周一 … 7=周日），key 非法时返回 0
func ISOWeekday(key string) int {
	t, err := ParseDate(key)
	if err != nil {
		return 0
	}
	return isoWeekday(t.Weekday())
}

func isoWeekday(wd time.Weekday) int {
	if wd == time.Sunday {
		return 7
	}
	return int(wd)
}

// AnchorDate 作业单锚定日：工作日为当天，周六/周日为该周末的周六
func AnchorDate(today string) string {
	if ISOWeekday(today) == 7 {
		return AddDays(today, -1)
	}
	return today
}

// Clock 一天内的分钟数
type Clock int

// String 格式化为 HH:MM
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// At 由小时、分钟构造 Clock
func At(hour, minute int) Clock {
	return Clock(hour*60 + minute)
}
