package service

import (
	"time"

	"homework-planner/backend/internal/dto"
	"homework-planner/backend/internal/model"
	"homework-planner/backend/internal/planner"
)

// toPlannerHomework 记录 → 评分视图；完成时间折算为本地日期
func toPlannerHomework(r *model.HomeworkRecord, loc *time.Location) planner.Homework {
	h := planner.Homework{
		ExternalID:  r.ExternalID,
		DueDate:     r.DueDate,
		Subject:     r.Subject,
		SubjectCode: r.SubjectCode,
		IsControl:   r.IsControl,
		ToDo:        r.ToDo,
		IsDone:      r.IsDone,
		GivenDate:   r.GivenDate,
	}
	if r.CompletionDate != nil {
		h.CompletionDate = planner.Today(*r.CompletionDate, loc)
	}
	return h
}

func toHomeworkResponse(w planner.Weighted, r *model.HomeworkRecord) dto.HomeworkResponse {
	resp := dto.HomeworkResponse{
		ExternalID:    w.ExternalID,
		DueDate:       w.DueDate,
		Subject:       w.Subject,
		SubjectCode:   w.SubjectCode,
		GivenDate:     w.GivenDate,
		IsControl:     w.IsControl,
		ToDo:          w.ToDo,
		IsDone:        w.IsDone,
		SubjectWeight: w.SubjectWeight,
		ControlWeight: w.ControlWeight,
		Score:         w.Score,
		Reason:        string(w.Reason),
	}
	if r != nil {
		resp.DocumentsToDo = r.DocumentsToDo
		resp.SubmitOnline = r.SubmitOnline
		if r.CompletionDate != nil {
			s := r.CompletionDate.Format(time.RFC3339)
			resp.CompletionDate = &s
		}
	}
	return resp
}

func toHomeworkResponses(items []planner.Weighted, byID map[int64]*model.HomeworkRecord) []dto.HomeworkResponse {
	out := make([]dto.HomeworkResponse, 0, len(items))
	for _, w := range items {
		out = append(out, toHomeworkResponse(w, byID[w.ExternalID]))
	}
	return out
}

// weightMap 科目代码 → 权重
func weightMap(weights []model.SubjectWeight) map[string]int {
	m := make(map[string]int, len(weights))
	for _, w := range weights {
		m[w.SubjectCode] = w.Weight
	}
	return m
}

// obligationIndex 已持久化的个人安排 → 星期索引
func obligationIndex(obligations []model.RecurringObligation) planner.ObligationIndex {
	list := make([]planner.Obligation, 0, len(obligations))
	for _, o := range obligations {
		list = append(list, planner.Obligation{
			Category: planner.ObligationCategory(o.Category),
			Weekdays: []int(o.Weekdays),
		})
	}
	return planner.NewObligationIndex(list)
}

func toAvailabilityResponse(sc StudentContext, s planner.Summary, source string, at time.Time) *dto.AvailabilityResponse {
	days := make([]dto.DayScoreResponse, 0, len(s.Days))
	for _, d := range s.Days {
		days = append(days, dto.DayScoreResponse{
			Date:      d.Date,
			Weekday:   d.Weekday,
			EndTime:   d.EndTime,
			IsHoliday: d.IsHoliday,
			Base:      d.Base,
			Penalty:   d.Penalty,
			Total:     d.Total,
		})
	}
	resp := &dto.AvailabilityResponse{
		StudentID:       sc.StudentID,
		Institution:     sc.Institution,
		Today:           s.Today,
		WeekScore:       s.WeekScore,
		DayLabel:        s.Headline.Label,
		DayScore:        s.Headline.DayScore,
		SaturdayImputed: s.Headline.SaturdayImputed,
		Days:            days,
		Source:          source,
		ComputedAt:      at.Format(time.RFC3339),
	}
	if r := s.Headline.WeekendRange; r != nil {
		resp.WeekendRange = &dto.DateRangeResponse{From: r.From, To: r.To}
	}
	return resp
}

func toObligationResponse(o *model.RecurringObligation) dto.ObligationResponse {
	return dto.ObligationResponse{
		ID:        o.ObligationID,
		Category:  o.Category,
		Weekdays:  []int(o.Weekdays),
		Note:      o.Note,
		Version:   o.Version,
		CreatedAt: o.CreatedAt.Format(time.RFC3339),
		UpdatedAt: o.UpdatedAt.Format(time.RFC3339),
	}
}
