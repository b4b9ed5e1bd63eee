package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// 探活路径只记 Debug
var healthPaths = map[string]bool{
	"/health": true,
	"/ready":  true,
}

// Logger 请求日志中间件
// route 记录路由模板（/api/v1/students/:studentId/worksheet），便于按接口聚合
func Logger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.String("path", path),
			zap.String("ip", c.ClientIP()),
			zap.Int("bytes", c.Writer.Size()),
			zap.Duration("latency", time.Since(start)),
		}
		if q := c.Request.URL.RawQuery; q != "" {
			fields = append(fields, zap.String("query", q))
		}
		if rid := c.GetString(requestIDKey); rid != "" {
			fields = append(fields, zap.String("request_id", rid))
		}
		if accountID := c.GetString(ContextAccountID); accountID != "" {
			fields = append(fields, zap.String("account_id", accountID))
		}
		if studentID := c.Param("studentId"); studentID != "" {
			fields = append(fields, zap.String("student_id", studentID))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.ByType(gin.ErrorTypePrivate).String()))
		}

		switch {
		case status >= 500:
			logger.Error("请求处理失败", fields...)
		case status >= 400:
			logger.Warn("客户端错误", fields...)
		case healthPaths[path]:
			logger.Debug("探活", fields...)
		case c.GetHeader("Accept") == "text/event-stream":
			logger.Debug("事件流关闭", fields...)
		default:
			logger.Info("请求完成", fields...)
		}
	}
}
