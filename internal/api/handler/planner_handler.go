package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"homework-planner/backend/internal/dto"
	"homework-planner/backend/internal/service"
	"homework-planner/backend/pkg/response"
)

// PlannerHandler 空闲度、作业单与作业同步
type PlannerHandler struct {
	studentSvc      service.StudentService
	availabilitySvc service.AvailabilityService
	worksheetSvc    service.WorksheetService
	syncSvc         service.SyncService
	refresher       service.Refresher
}

// NewPlannerHandler 创建 PlannerHandler
func NewPlannerHandler(
	studentSvc service.StudentService,
	availabilitySvc service.AvailabilityService,
	worksheetSvc service.WorksheetService,
	syncSvc service.SyncService,
	refresher service.Refresher,
) *PlannerHandler {
	return &PlannerHandler{
		studentSvc:      studentSvc,
		availabilitySvc: availabilitySvc,
		worksheetSvc:    worksheetSvc,
		syncSvc:         syncSvc,
		refresher:       refresher,
	}
}

// Availability 空闲度评分
// GET /api/v1/students/:studentId/availability
func (h *PlannerHandler) Availability(c *gin.Context) {
	sc, ok := resolveStudent(c, h.studentSvc)
	if !ok {
		return
	}

	result, err := h.availabilitySvc.Compute(c.Request.Context(), sc)
	if err != nil {
		if result != nil && degraded(err) {
			response.Degraded(c, result, err.Error())
			return
		}
		handleError(c, err)
		return
	}
	response.OK(c, result)
}

// Worksheet 当日作业单
// GET /api/v1/students/:studentId/worksheet
func (h *PlannerHandler) Worksheet(c *gin.Context) {
	sc, ok := resolveStudent(c, h.studentSvc)
	if !ok {
		return
	}

	result, err := h.worksheetSvc.Compute(c.Request.Context(), sc)
	h.writeWorksheet(c, result, err)
}

// Refresh 手动刷新：同步重算并返回新作业单
// POST /api/v1/students/:studentId/refresh
func (h *PlannerHandler) Refresh(c *gin.Context) {
	sc, ok := resolveStudent(c, h.studentSvc)
	if !ok {
		return
	}

	result, err := h.refresher.Trigger(c.Request.Context(), sc, service.ReasonManualRefresh)
	h.writeWorksheet(c, result, err)
}

func (h *PlannerHandler) writeWorksheet(c *gin.Context, result *dto.WorksheetResponse, err error) {
	if err != nil {
		if result != nil && degraded(err) {
			response.Degraded(c, result, err.Error())
			return
		}
		handleError(c, err)
		return
	}
	response.OK(c, result)
}

// Mark 标记作业完成状态；写入失败时返回 409 与数据库中的权威状态
// POST /api/v1/students/:studentId/homework/:externalId/mark
func (h *PlannerHandler) Mark(c *gin.Context) {
	sc, ok := resolveStudent(c, h.studentSvc)
	if !ok {
		return
	}

	externalID, err := strconv.ParseInt(c.Param("externalId"), 10, 64)
	if err != nil || externalID <= 0 {
		response.BadRequest(c, codeInputInvalid, "作业 ID 必须为正整数")
		return
	}

	var req dto.MarkHomeworkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败: "+err.Error())
		return
	}

	result, err := h.syncSvc.MarkHomework(c.Request.Context(), sc, externalID, req.Action)
	if err != nil {
		if result != nil && conflicted(err) {
			response.ConflictWithData(c, codePersistenceConflict, "保存失败，已恢复为当前状态", result, err.Error())
			return
		}
		handleError(c, err)
		return
	}
	response.OK(c, result)
}

// ListHomework 截止日期不早于 from（默认今天）的作业
// GET /api/v1/students/:studentId/homework?from=2025-03-10
func (h *PlannerHandler) ListHomework(c *gin.Context) {
	sc, ok := resolveStudent(c, h.studentSvc)
	if !ok {
		return
	}

	var req dto.HomeworkListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败: "+err.Error())
		return
	}

	list, err := h.syncSvc.ListHomework(c.Request.Context(), sc, req.From)
	if err != nil {
		handleError(c, err)
		return
	}
	response.OK(c, list)
}

// Sync 推送上游格式的作业本数据进行合并
// POST /api/v1/students/:studentId/homework/sync
func (h *PlannerHandler) Sync(c *gin.Context) {
	sc, ok := resolveStudent(c, h.studentSvc)
	if !ok {
		return
	}

	raw, err := c.GetRawData()
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			response.Error(c, http.StatusRequestEntityTooLarge, 10005, "请求体过大")
			return
		}
		response.BadRequest(c, 10001, "读取请求体失败")
		return
	}

	result, err := h.syncSvc.SyncPayload(c.Request.Context(), sc, raw)
	if err != nil {
		handleError(c, err)
		return
	}
	response.OK(c, result)
}
