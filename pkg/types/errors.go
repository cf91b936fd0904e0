package types

import (
	"errors"
	"fmt"
	"strings"
)

// 领域错误分类。各组件把自己的内部错误包装成这几类，调用方用 errors.Is 判断。
var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrConflict        = errors.New("conflict")
	ErrInvalidArgument = errors.New("invalid argument")
)

// 冲突原因
const (
	ReasonBothModified  = "modified on both sides"
	ReasonDeleteModify  = "deleted on one side, modified on the other"
	ReasonDocumentClash = "document and folder clash"
)

// Conflict 描述单个 Key 上的内容冲突
// Source/Target 为 nil 表示该侧删除了这个 Key (或该侧此处是目录)
type Conflict struct {
	Key    string `json:"key" yaml:"key"`
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`
	Source []byte `json:"source,omitempty" yaml:"source,omitempty"`
	Target []byte `json:"target,omitempty" yaml:"target,omitempty"`
}

// ConflictError 是 merge/rebase 的冲突报告，列出所有冲突的 Key
type ConflictError struct {
	Op        string
	Conflicts []Conflict
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s conflict on %d key(s): %s", e.Op, len(e.Conflicts), strings.Join(e.Keys(), ", "))
}

// Is 让 errors.Is(err, ErrConflict) 对 ConflictError 成立
func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// Keys 返回冲突的 Key 列表 (保持报告顺序)
func (e *ConflictError) Keys() []string {
	keys := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		keys[i] = c.Key
	}
	return keys
}

// Code 把错误映射为稳定的错误码，供外部路由层和 CLI 使用
func Code(err error) string {
	switch {
	case err == nil:
		return "OK"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrAlreadyExists):
		return "ALREADY_EXISTS"
	case errors.Is(err, ErrConflict):
		return "CONFLICT"
	case errors.Is(err, ErrInvalidArgument):
		return "INVALID_ARGUMENT"
	default:
		return "INTERNAL"
	}
}
