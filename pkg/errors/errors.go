package errors

import (
	"errors"
	"fmt"
)

// ErrOptimisticLock 乐观锁冲突：记录已被其他操作修改
var ErrOptimisticLock = errors.New("数据已被其他操作修改，请刷新后重试")

// Kind 失败类别
type Kind string

const (
	KindInputInvalid        Kind = "input_invalid"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindPersistenceConflict Kind = "persistence_conflict"
)

// 类别哨兵，配合 errors.Is 使用
var (
	ErrInputInvalid        = &Error{Kind: KindInputInvalid, Message: "输入参数无效"}
	ErrUpstreamUnavailable = &Error{Kind: KindUpstreamUnavailable, Message: "上游平台不可用"}
	ErrPersistenceConflict = &Error{Kind: KindPersistenceConflict, Message: "数据写入冲突"}
)

// Error 带类别的业务失败
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is 按类别匹配：errors.Is(err, ErrInputInvalid)
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

// InputInvalid 构造输入无效错误（不会触发任何抓取或写入）
func InputInvalid(op, message string) error {
	return &Error{Kind: KindInputInvalid, Op: op, Message: message}
}

// UpstreamUnavailable 构造上游不可用错误
func UpstreamUnavailable(op string, err error) error {
	return &Error{Kind: KindUpstreamUnavailable, Op: op, Message: "上游平台不可用", Err: err}
}

// PersistenceConflict 构造持久化冲突错误
func PersistenceConflict(op string, err error) error {
	return &Error{Kind: KindPersistenceConflict, Op: op, Message: "数据写入冲突", Err: err}
}

// KindOf 返回错误链中第一个 *Error 的类别
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
