package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"homework-planner/backend/pkg/response"
)

// staleReaper 过期作业清理
type staleReaper interface {
	Run(ctx context.Context) (int64, error)
}

// MaintenanceHandler 运维接口（仅管理员）
type MaintenanceHandler struct {
	reaper staleReaper
}

// NewMaintenanceHandler 创建 MaintenanceHandler
func NewMaintenanceHandler(reaper staleReaper) *MaintenanceHandler {
	return &MaintenanceHandler{reaper: reaper}
}

// RunReaper 立即执行一次过期作业清理
// POST /api/v1/admin/reaper/run
func (h *MaintenanceHandler) RunReaper(c *gin.Context) {
	n, err := h.reaper.Run(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		response.InternalError(c)
		return
	}
	response.OK(c, gin.H{"soft_deleted": n})
}
