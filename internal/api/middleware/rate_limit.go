package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"homework-planner/backend/pkg/redis"
	"homework-planner/backend/pkg/response"
)

// KeyFunc 限流维度
type KeyFunc func(c *gin.Context) string

// ByIP 按客户端 IP 限流（未认证接口）
func ByIP(c *gin.Context) string {
	return "ip:" + c.ClientIP()
}

// ByAccountStudent 按账号 + 学生限流；手动刷新会直连上游
func ByAccountStudent(c *gin.Context) string {
	return fmt.Sprintf("acc:%s:%s", c.GetString(ContextAccountID), c.Param("studentId"))
}

// RateLimit 基于 Redis 滑动窗口的速率限制
// limit: 窗口内允许的最大请求数；window: 窗口时长。
// rdb 为 nil 或 Redis 出错时降级放行
func RateLimit(rdb *redis.Client, limit int, window time.Duration, key KeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rdb == nil {
			c.Next()
			return
		}

		k := fmt.Sprintf("rate_limit:%s:%s", c.FullPath(), key(c))
		allowed, err := rdb.CheckRateLimit(c.Request.Context(), k, limit, window)
		if err != nil {
			c.Next()
			return
		}

		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(window.Seconds())))
			response.Error(c, http.StatusTooManyRequests, 10004, "请求过于频繁，请稍后再试")
			c.Abort()
			return
		}

		c.Next()
	}
}
