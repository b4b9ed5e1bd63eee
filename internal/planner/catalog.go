package planner

// 科目权重取值
const (
	WeightLight   = 1
	WeightNormal  = 2
	WeightHeavy   = 3
	DefaultWeight = WeightNormal
)

// 测验倍数
const (
	controlMultiplier = 2
	regularMultiplier = 1
)

// Homework 参与评分与分配的作业视图
type Homework struct {
	ExternalID     int64  `json:"external_id"`
	DueDate        string `json:"due_date"`
	Subject        string `json:"subject"`
	SubjectCode    string `json:"subject_code"`
	IsControl      bool   `json:"is_control"`
	ToDo           *bool  `json:"to_do,omitempty"`
	IsDone         bool   `json:"is_done"`
	CompletionDate string `json:"completion_date,omitempty"` // 本地日期键
	GivenDate      string `json:"given_date,omitempty"`
}

// NotToDo 上游明确标记为无需完成
func (h Homework) NotToDo() bool {
	return h.ToDo != nil && !*h.ToDo
}

// PickReason 被选入作业单的原因
type PickReason string

const (
	PickDueTomorrow  PickReason = "due_tomorrow"
	PickRecentlyDone PickReason = "recently_done"
	PickBudget       PickReason = "budget"
)

// Weighted 加权后的作业
type Weighted struct {
	Homework
	SubjectWeight int        `json:"subject_weight"`
	ControlWeight int        `json:"control_weight"`
	Score         float64    `json:"score"`
	Reason        PickReason `json:"reason,omitempty"`
}

// ValidWeight 科目权重是否合法
func ValidWeight(w int) bool {
	return w >= WeightLight && w <= WeightHeavy
}

// ComputedScore 科目权重 × 测验倍数；未配置或非法权重按 2 计
func ComputedScore(h Homework, weights map[string]int) (subject, control int, score float64) {
	subject = DefaultWeight
	if w, ok := weights[h.SubjectCode]; ok && ValidWeight(w) {
		subject = w
	}
	control = regularMultiplier
	if h.IsControl {
		control = controlMultiplier
	}
	return subject, control, float64(subject * control)
}

// Enrich 为作业附加权重与得分；不修改入参
func Enrich(items []Homework, weights map[string]int) []Weighted {
	out := make([]Weighted, 0, len(items))
	for _, h := range items {
		sw, cw, score := ComputedScore(h, weights)
		out = append(out, Weighted{
			Homework:      h,
			SubjectWeight: sw,
			ControlWeight: cw,
			Score:         score,
		})
	}
	return out
}
