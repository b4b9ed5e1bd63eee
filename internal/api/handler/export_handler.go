package handler

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"homework-planner/backend/internal/service"
	"homework-planner/backend/pkg/response"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportHandler 导出模块 HTTP 处理器
type ExportHandler struct {
	studentSvc service.StudentService
	exportSvc  service.ExportService
}

// NewExportHandler 创建 ExportHandler
func NewExportHandler(studentSvc service.StudentService, exportSvc service.ExportService) *ExportHandler {
	return &ExportHandler{studentSvc: studentSvc, exportSvc: exportSvc}
}

// ExportWorksheet 导出当日作业单
// GET /api/v1/students/:studentId/worksheet/export
func (h *ExportHandler) ExportWorksheet(c *gin.Context) {
	sc, ok := resolveStudent(c, h.studentSvc)
	if !ok {
		return
	}

	buf, filename, err := h.exportSvc.ExportWorksheet(c.Request.Context(), sc)
	if err != nil {
		if errors.Is(err, service.ErrExportGenerateFail) {
			_ = c.Error(err)
			response.InternalError(c)
			return
		}
		handleError(c, err)
		return
	}

	// 设置下载响应头
	encodedFilename := url.QueryEscape(filename)
	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+encodedFilename)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
