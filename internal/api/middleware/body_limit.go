package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"homework-planner/backend/pkg/response"
)

// BodyLimit 全局请求体大小限制
// 作业本推送与 ICS 上传共用同一上限；maxBytes ≤ 0 时不限制
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes <= 0 {
			c.Next()
			return
		}
		if c.Request.ContentLength > maxBytes {
			tooLarge(c, maxBytes)
			c.Abort()
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}

		c.Next()

		// 分块上传时只能在读取后发现超限
		if c.Writer.Written() {
			return
		}
		for _, err := range c.Errors {
			var tooBig *http.MaxBytesError
			if errors.As(err.Err, &tooBig) {
				tooLarge(c, maxBytes)
				return
			}
		}
	}
}

func tooLarge(c *gin.Context, maxBytes int64) {
	response.ErrorWithDetails(c, http.StatusRequestEntityTooLarge, 10005, "请求体过大",
		fmt.Sprintf("上限 %d 字节", maxBytes))
}
