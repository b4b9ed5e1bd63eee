package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"homework-planner/backend/internal/service"
	apperr "homework-planner/backend/pkg/errors"
	"homework-planner/backend/pkg/response"
)

// 规划模块错误码
//
//	20001 输入无效        20002 上游不可用且无可回退状态
//	20003 持久化冲突      20004 计算已被更新的触发取代
//	21xxx 学生            22xxx 作业
//	23xxx 个人安排 / 科目权重
const (
	codeInputInvalid        = 20001
	codeUpstreamUnavailable = 20002
	codePersistenceConflict = 20003
	codeStaleRun            = 20004

	codeStudentNotFound  = 21001
	codeStudentForbidden = 21002
	codeStudentOwned     = 21003

	codeHomeworkNotFound = 22001

	codeObligationNotFound = 23001
	codeObligationConflict = 23002
	codeICSEmpty           = 23003
	codeImportSource       = 23004
)

// handleError 业务错误 → HTTP 响应
func handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrStudentNotFound):
		response.NotFound(c, codeStudentNotFound, err.Error())
	case errors.Is(err, service.ErrStudentForbidden):
		response.Forbidden(c, codeStudentForbidden, err.Error())
	case errors.Is(err, service.ErrStudentOwned):
		response.Conflict(c, codeStudentOwned, err.Error(), "")
	case errors.Is(err, service.ErrHomeworkNotFound):
		response.NotFound(c, codeHomeworkNotFound, err.Error())
	case errors.Is(err, service.ErrObligationNotFound):
		response.NotFound(c, codeObligationNotFound, err.Error())
	case errors.Is(err, service.ErrObligationConflict):
		response.Conflict(c, codeObligationConflict, err.Error(), "")
	case errors.Is(err, service.ErrICSEmpty):
		response.BadRequest(c, codeICSEmpty, err.Error())
	case errors.Is(err, service.ErrStaleRun):
		response.Conflict(c, codeStaleRun, err.Error(), "")
	case errors.Is(err, apperr.ErrInputInvalid):
		response.BadRequest(c, codeInputInvalid, messageOf(err))
	case errors.Is(err, apperr.ErrUpstreamUnavailable):
		response.BadGateway(c, codeUpstreamUnavailable, "上游平台不可用", err.Error())
	case errors.Is(err, apperr.ErrPersistenceConflict):
		response.Conflict(c, codePersistenceConflict, "数据写入冲突，请重试", err.Error())
	default:
		_ = c.Error(err)
		response.InternalError(c)
	}
}

// messageOf 取业务错误的提示文本，不带操作名
func messageOf(err error) string {
	var e *apperr.Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// degraded 上游不可用但已有最近状态可返回
func degraded(err error) bool {
	return errors.Is(err, apperr.ErrUpstreamUnavailable)
}

// conflicted 写入失败，返回值为回退后的权威状态
func conflicted(err error) bool {
	return errors.Is(err, apperr.ErrPersistenceConflict)
}
