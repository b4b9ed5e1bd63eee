package planner

// ObligationCategory 个人安排类别
type ObligationCategory string

const (
	CategorySport         ObligationCategory = "Sport"
	CategoryMusic         ObligationCategory = "Music"
	CategoryPrivateLesson ObligationCategory = "PrivateLesson"
	CategoryOther         ObligationCategory = "Other"
)

// ValidCategory 是否为已知类别
func ValidCategory(c string) bool {
	switch ObligationCategory(c) {
	case CategorySport, CategoryMusic, CategoryPrivateLesson, CategoryOther:
		return true
	}
	return false
}

// Obligation 周期性个人安排（评分只读）
type Obligation struct {
	Category ObligationCategory
	Weekdays []int
}

// ObligationIndex 有个人安排的 ISO 星期集合
type ObligationIndex struct {
	days [8]bool
}

// NewObligationIndex 汇总所有安排的星期；1..7 以外的值忽略
func NewObligationIndex(obligations []Obligation) ObligationIndex {
	var idx ObligationIndex
	for _, o := range obligations {
		for _, d := range o.Weekdays {
			if d >= 1 && d <= 7 {
				idx.days[d] = true
			}
		}
	}
	return idx
}

// Has 该 ISO 星期是否有个人安排
func (idx ObligationIndex) Has(weekday int) bool {
	if weekday < 1 || weekday > 7 {
		return false
	}
	return idx.days[weekday]
}

// Penalty 个人安排扣分：有安排为 -1，否则 0
func (idx ObligationIndex) Penalty(weekday int) float64 {
	if idx.Has(weekday) {
		return -1
	}
	return 0
}

// Weekdays 返回有序星期列表
func (idx ObligationIndex) Weekdays() []int {
	var out []int
	for d := 1; d <= 7; d++ {
		if idx.days[d] {
			out = append(out, d)
		}
	}
	return out
}
