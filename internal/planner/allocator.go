package planner

import "sort"

// Allocation 作业单分配结果
type Allocation struct {
	Allocated           []Weighted `json:"allocated"`
	Deferred            []Weighted `json:"deferred"`
	UpcomingAssessments []Weighted `json:"upcoming_assessments"`
	Budget              float64    `json:"budget"`
	UsedByRule          float64    `json:"used_by_rule"`
	RemainingBudget     float64    `json:"remaining_budget"`
}

// SortForAllocation 截止日期升序，同日按得分降序，再按 ID 升序
func SortForAllocation(items []Weighted) []Weighted {
	sorted := make([]Weighted, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.DueDate != b.DueDate {
			return a.DueDate < b.DueDate
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.ExternalID < b.ExternalID
	})
	return sorted
}

// greenByRule 无需占用可支配预算即自动选入的规则
func greenByRule(h Homework, today string) (PickReason, bool) {
	tomorrow := AddDays(today, 1)
	if !h.IsDone && !h.NotToDo() && h.DueDate == tomorrow {
		return PickDueTomorrow, true
	}
	if ISOWeekday(today) == 7 && h.CompletionDate != "" {
		if h.CompletionDate == today || h.CompletionDate == AddDays(today, -1) {
			return PickRecentlyDone, true
		}
	}
	return "", false
}

// Allocate 贪心分配作业单
//
//  1. 规则选入：明天截止且未完成（且未标记无需完成）；或今天是周日且完成日期为昨天/今天。
//     规则选入项的得分累计为已用预算。
//  2. 贪心补充：remaining = max(budget - used, 0)，按排序依次选入尚未选入的作业（已完成的也照常计入），
//     remaining 扣减后下限为 0，归零即停止。跨越阈值的那一项照常选入（允许超额）。
//
// budget ≤ 0 是合法输入，此时仅有规则选入项；结果中的 Budget 下限为 0。
func Allocate(items []Weighted, budget float64, today string) Allocation {
	if budget < 0 {
		budget = 0
	}
	sorted := SortForAllocation(items)
	picked := make([]bool, len(sorted))

	var used float64
	for i := range sorted {
		if reason, ok := greenByRule(sorted[i].Homework, today); ok {
			sorted[i].Reason = reason
			picked[i] = true
			used += sorted[i].Score
		}
	}

	remaining := budget - used
	if remaining < 0 {
		remaining = 0
	}

	for i := range sorted {
		if remaining <= 0 {
			break
		}
		if picked[i] {
			continue
		}
		sorted[i].Reason = PickBudget
		picked[i] = true
		remaining -= sorted[i].Score
		if remaining < 0 {
			remaining = 0
		}
	}

	result := Allocation{
		Allocated:           []Weighted{},
		Deferred:            []Weighted{},
		UpcomingAssessments: []Weighted{},
		Budget:              budget,
		UsedByRule:          used,
		RemainingBudget:     remaining,
	}
	for i, w := range sorted {
		if picked[i] {
			result.Allocated = append(result.Allocated, w)
			continue
		}
		result.Deferred = append(result.Deferred, w)
		if w.IsControl && !w.NotToDo() {
			result.UpcomingAssessments = append(result.UpcomingAssessments, w)
		}
	}
	return result
}

// AllocatedIDs 已分配作业的外部 ID
func (a Allocation) AllocatedIDs() []int64 {
	ids := make([]int64, 0, len(a.Allocated))
	for _, w := range a.Allocated {
		ids = append(ids, w.ExternalID)
	}
	return ids
}
