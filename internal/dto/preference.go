package dto

// ── 偏好模块 DTO ──

// SubjectWeightItem 单个科目权重
type SubjectWeightItem struct {
	SubjectCode string `json:"subject_code" binding:"required,max=50"`
	Subject     string `json:"subject"      binding:"max=200"`
	Weight      int    `json:"weight"       binding:"required,min=1,max=3"`
}

// UpdateSubjectWeightsRequest 批量设置科目权重
type UpdateSubjectWeightsRequest struct {
	Weights []SubjectWeightItem `json:"weights" binding:"required,min=1,dive"`
}

// SubjectWeightResponse 科目及其权重；Configured=false 表示使用默认值
type SubjectWeightResponse struct {
	SubjectCode string `json:"subject_code"`
	Subject     string `json:"subject"`
	Weight      int    `json:"weight"`
	Configured  bool   `json:"configured"`
}

// CreateObligationRequest 新建个人安排
type CreateObligationRequest struct {
	Category string `json:"category" binding:"required,oneof=Sport Music PrivateLesson Other"`
	Weekdays []int  `json:"weekdays" binding:"required,weekdays"`
	Note     string `json:"note"     binding:"max=500"`
}

// UpdateObligationRequest 修改个人安排（乐观锁）
type UpdateObligationRequest struct {
	Category string `json:"category" binding:"required,oneof=Sport Music PrivateLesson Other"`
	Weekdays []int  `json:"weekdays" binding:"required,weekdays"`
	Note     string `json:"note"     binding:"max=500"`
	Version  int    `json:"version"  binding:"required,min=1"`
}

// ImportObligationsRequest 通过 ICS 地址导入；上传文件时可为空
type ImportObligationsRequest struct {
	URL     string `json:"url"     form:"url"     binding:"omitempty,url"`
	Replace bool   `json:"replace" form:"replace"`
}

// ObligationResponse 个人安排
type ObligationResponse struct {
	ID        string `json:"id"`
	Category  string `json:"category"`
	Weekdays  []int  `json:"weekdays"`
	Note      string `json:"note"`
	Version   int    `json:"version"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// ImportObligationsResponse 导入结果
type ImportObligationsResponse struct {
	Created     int                  `json:"created"`
	Removed     int                  `json:"removed"`
	Obligations []ObligationResponse `json:"obligations"`
}
