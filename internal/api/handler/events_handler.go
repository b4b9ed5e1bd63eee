package handler

import (
	"encoding/json"
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"homework-planner/backend/internal/service"
	"homework-planner/backend/pkg/response"
)

const sseKeepAlive = 25 * time.Second

// EventsHandler 规划事件 SSE 推送
type EventsHandler struct {
	studentSvc service.StudentService
	bus        service.EventBus
	keepAlive  time.Duration
}

// NewEventsHandler 创建 EventsHandler
func NewEventsHandler(studentSvc service.StudentService, bus service.EventBus) *EventsHandler {
	return &EventsHandler{studentSvc: studentSvc, bus: bus, keepAlive: sseKeepAlive}
}

// Stream 订阅某学生的规划事件，直到客户端断开
// GET /api/v1/students/:studentId/events
func (h *EventsHandler) Stream(c *gin.Context) {
	sc, ok := resolveStudent(c, h.studentSvc)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	ch, cancel, err := h.bus.Subscribe(ctx, sc.StudentID)
	if err != nil {
		_ = c.Error(err)
		response.InternalError(c)
		return
	}
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			c.SSEvent("ping", "")
			return true
		case msg, ok := <-ch:
			if !ok {
				return false
			}
			var head struct {
				Type        string `json:"type"`
				Institution string `json:"institution"`
			}
			if err := json.Unmarshal(msg, &head); err != nil {
				return true
			}
			// 频道按学生 ID 划分，同号不同校的事件在此过滤
			if head.Institution != "" && head.Institution != sc.Institution {
				return true
			}
			c.SSEvent(head.Type, string(msg))
			return true
		}
	})
}
