package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"homework-planner/backend/internal/dto"
	"homework-planner/backend/internal/service"
	"homework-planner/backend/pkg/response"
)

// StudentHandler 学生模块 HTTP 处理器
type StudentHandler struct {
	studentSvc service.StudentService
	recompute  service.Recomputer
}

// NewStudentHandler 创建 StudentHandler
func NewStudentHandler(studentSvc service.StudentService, recompute service.Recomputer) *StudentHandler {
	return &StudentHandler{studentSvc: studentSvc, recompute: recompute}
}

// List 当前账号名下的学生
// GET /api/v1/students
func (h *StudentHandler) List(c *gin.Context) {
	accountID, ok := MustGetAccountID(c)
	if !ok {
		return
	}

	list, err := h.studentSvc.List(c.Request.Context(), accountID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.OK(c, list)
}

// Upsert 登记或更新学生，并在后台触发一次重算
// PUT /api/v1/students
func (h *StudentHandler) Upsert(c *gin.Context) {
	accountID, ok := MustGetAccountID(c)
	if !ok {
		return
	}

	var req dto.UpsertStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败: "+err.Error())
		return
	}

	result, err := h.studentSvc.Upsert(c.Request.Context(), accountID, &req)
	if err != nil {
		handleError(c, err)
		return
	}

	h.recompute.TriggerAsync(service.StudentContext{
		AccountID:     accountID,
		StudentID:     result.StudentID,
		Institution:   result.Institution,
		UpstreamToken: strings.TrimSpace(c.GetHeader(HeaderUpstreamToken)),
	}, service.ReasonStudentChanged)

	response.OK(c, result)
}

// GetWorkSpeed 做作业速度
// GET /api/v1/students/:studentId/work-speed
func (h *StudentHandler) GetWorkSpeed(c *gin.Context) {
	sc, ok := resolveStudent(c, h.studentSvc)
	if !ok {
		return
	}

	result, err := h.studentSvc.GetWorkSpeed(c.Request.Context(), sc)
	if err != nil {
		handleError(c, err)
		return
	}
	response.OK(c, result)
}

// UpdateWorkSpeed 设置做作业速度
// PUT /api/v1/students/:studentId/work-speed
func (h *StudentHandler) UpdateWorkSpeed(c *gin.Context) {
	sc, ok := resolveStudent(c, h.studentSvc)
	if !ok {
		return
	}

	var req dto.WorkSpeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败: "+err.Error())
		return
	}

	result, err := h.studentSvc.UpdateWorkSpeed(c.Request.Context(), sc, req.WorkSpeed)
	if err != nil {
		handleError(c, err)
		return
	}

	h.recompute.TriggerAsync(sc, service.ReasonStudentChanged)
	response.OK(c, result)
}
