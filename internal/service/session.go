package service

import (
	"strconv"
	"strings"

	"homework-planner/backend/internal/upstream"
	apperr "homework-planner/backend/pkg/errors"
)

// StudentContext 一次请求的学生上下文
// 由 StudentService.Resolve 构造，贯穿计算、同步与标记
type StudentContext struct {
	AccountID     string
	StudentID     int64
	Institution   string
	UpstreamToken string
	AccountRef    *int64 // 上游家庭账号 ID，可选
}

// Validate 缺少学生 ID 或学校时返回 InputInvalid
func (sc StudentContext) Validate(op string) error {
	if sc.StudentID <= 0 {
		return apperr.InputInvalid(op, "学生 ID 无效")
	}
	if strings.TrimSpace(sc.Institution) == "" {
		return apperr.InputInvalid(op, "缺少学校标识")
	}
	return nil
}

// Key 学生唯一键，用于缓存与生成计数
func (sc StudentContext) Key() string {
	return strconv.FormatInt(sc.StudentID, 10) + ":" + sc.Institution
}

func (sc StudentContext) session() upstream.Session {
	return upstream.Session{StudentID: sc.StudentID, Token: sc.UpstreamToken}
}

// ParseStudentID 解析路径中的学生 ID，非正整数返回 InputInvalid
func ParseStudentID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.InputInvalid("parseStudentID", "学生 ID 必须为正整数")
	}
	return id, nil
}
