package handler

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"homework-planner/backend/internal/api/middleware"
	"homework-planner/backend/internal/service"
	"homework-planner/backend/pkg/jwt"
	"homework-planner/backend/pkg/response"
)

// 上游凭据请求头
const (
	HeaderUpstreamToken   = "X-Upstream-Token"
	HeaderUpstreamAccount = "X-Upstream-Account"
)

// MustGetAccountID 从 Gin 上下文中安全提取 account_id。
// 如果 JWT 中间件未正确注入 account_id，返回 false 并写入 401 响应。
// 调用方应在 ok=false 时直接 return。
func MustGetAccountID(c *gin.Context) (string, bool) {
	v, exists := c.Get(middleware.ContextAccountID)
	if !exists {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	return s, true
}

// MustGetRole 从 Gin 上下文中安全提取 role。
func MustGetRole(c *gin.Context) (string, bool) {
	v, exists := c.Get(middleware.ContextRole)
	if !exists {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	return s, true
}

// MustGetClaims 从 Gin 上下文中提取当前 Access Token 的声明。
func MustGetClaims(c *gin.Context) (*jwt.Claims, bool) {
	v, exists := c.Get(middleware.ContextClaims)
	if !exists {
		response.Unauthorized(c, 10002, "未认证")
		return nil, false
	}
	claims, ok := v.(*jwt.Claims)
	if !ok || claims == nil {
		response.Unauthorized(c, 10002, "未认证")
		return nil, false
	}
	return claims, true
}

// resolveStudent 路径参数 :studentId + ?institution + 上游凭据头 → 学生上下文。
// 失败时已写入响应，调用方应在 ok=false 时直接 return。
func resolveStudent(c *gin.Context, students service.StudentService) (service.StudentContext, bool) {
	accountID, ok := MustGetAccountID(c)
	if !ok {
		return service.StudentContext{}, false
	}

	sc, err := students.Resolve(
		c.Request.Context(),
		accountID,
		c.Param("studentId"),
		c.Query("institution"),
		strings.TrimSpace(c.GetHeader(HeaderUpstreamToken)),
	)
	if err != nil {
		handleError(c, err)
		return service.StudentContext{}, false
	}

	if raw := strings.TrimSpace(c.GetHeader(HeaderUpstreamAccount)); raw != "" {
		ref, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || ref <= 0 {
			response.BadRequest(c, 20001, HeaderUpstreamAccount+" 必须为正整数")
			return service.StudentContext{}, false
		}
		sc.AccountRef = &ref
	}
	return sc, true
}
