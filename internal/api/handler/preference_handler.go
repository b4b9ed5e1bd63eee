package handler

import (
	"github.com/gin-gonic/gin"

	"homework-planner/backend/internal/dto"
	"homework-planner/backend/internal/service"
	"homework-planner/backend/pkg/response"
)

// PreferenceHandler 科目权重与个人安排
type PreferenceHandler struct {
	studentSvc    service.StudentService
	preferenceSvc service.PreferenceService
}

// NewPreferenceHandler 创建 PreferenceHandler
func NewPreferenceHandler(studentSvc service.StudentService, preferenceSvc service.PreferenceService) *PreferenceHandler {
	return &PreferenceHandler{studentSvc: studentSvc, preferenceSvc: preferenceSvc}
}

// ════════════════════════════════════════
// 科目权重
// ════════════════════════════════════════

// ListSubjectWeights 已出现科目及其权重
// GET /api/v1/students/:studentId/subject-weights
func (h *PreferenceHandler) ListSubjectWeights(c *gin.Context) {
	sc, ok := resolveStudent(c, h.studentSvc)
	if !ok {
		return
	}

	list, err := h.preferenceSvc.ListSubjectWeights(c.Request.Context(), sc)
	if err != nil {
		handleError(c, err)
		return
	}
	response.OK(c, list)
}

// UpdateSubjectWeights 批量设置科目权重
// PUT /api/v1/students/:studentId/subject-weights
func (h *PreferenceHandler) UpdateSubjectWeights(c *gin.Context) {
	sc, ok := resolveStudent(c, h.studentSvc)
	if !ok {
		return
	}

	var req dto.UpdateSubjectWeightsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败: "+err.Error())
		return
	}

	list, err := h.preferenceSvc.UpdateSubjectWeights(c.Request.Context(), sc, &req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.OK(c, list)
}

// ════════════════════════════════════════
// 个人安排
// ════════════════════════════════════════

// ListObligations 个人安排列表
// GET /api/v1/students/:studentId/obligations
func (h *PreferenceHandler) ListObligations(c *gin.Context) {
	sc, ok := resolveStudent(c, h.studentSvc)
	if !ok {
		return
	}

	list, err := h.preferenceSvc.ListObligations(c.Request.Context(), sc)
	if err != nil {
		handleError(c, err)
		return
	}
	response.OK(c, list)
}

// CreateObligation 新建个人安排
// POST /api/v1/students/:studentId/obligations
func (h *PreferenceHandler) CreateObligation(c *gin.Context) {
	sc, ok := resolveStudent(c, h.studentSvc)
	if !ok {
		return
	}

	var req dto.CreateObligationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败: "+err.Error())
		return
	}

	result, err := h.preferenceSvc.CreateObligation(c.Request.Context(), sc, &req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Created(c, result)
}

// UpdateObligation 修改个人安排（携带 version 做乐观锁）
// PUT /api/v1/students/:studentId/obligations/:id
func (h *PreferenceHandler) UpdateObligation(c *gin.Context) {
	sc, ok := resolveStudent(c, h.studentSvc)
	if !ok {
		return
	}

	var req dto.UpdateObligationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败: "+err.Error())
		return
	}

	result, err := h.preferenceSvc.UpdateObligation(c.Request.Context(), sc, c.Param("id"), &req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.OK(c, result)
}

// DeleteObligation 删除个人安排
// DELETE /api/v1/students/:studentId/obligations/:id
func (h *PreferenceHandler) DeleteObligation(c *gin.Context) {
	sc, ok := resolveStudent(c, h.studentSvc)
	if !ok {
		return
	}

	if err := h.preferenceSvc.DeleteObligation(c.Request.Context(), sc, c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.OK(c, nil)
}

// ImportObligations 从 ICS 导入个人安排
// POST /api/v1/students/:studentId/obligations/import
//
// 支持两种方式：
//   - 文件上传: multipart/form-data, field="file"，可带 replace=true
//   - URL 导入: application/json, body={"url": "...", "replace": true}
func (h *PreferenceHandler) ImportObligations(c *gin.Context) {
	sc, ok := resolveStudent(c, h.studentSvc)
	if !ok {
		return
	}

	file, _, err := c.Request.FormFile("file")
	if err == nil {
		defer file.Close()
		replace := c.PostForm("replace") == "true"
		result, err := h.preferenceSvc.ImportObligations(c.Request.Context(), sc, file, replace)
		if err != nil {
			handleError(c, err)
			return
		}
		response.Created(c, result)
		return
	}

	var req dto.ImportObligationsRequest
	if err := c.ShouldBind(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败: "+err.Error())
		return
	}
	if req.URL == "" {
		response.BadRequest(c, codeImportSource, "请上传 ICS 文件或提供 ICS URL")
		return
	}

	result, err := h.preferenceSvc.ImportObligationsFromURL(c.Request.Context(), sc, req.URL, req.Replace)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Created(c, result)
}
