package result

import (
	stdErrors "errors"
	"fmt"
	"time"
)

// ResultError 描述一次可预期失败的结构化信息。
type ResultError struct {
	Code       Code              `json:"code"`
	Message    string            `json:"message"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt int64             `json:"occurred_at"`
}

// ErrorOption 定义构造 ResultError 时的可选配置。
type ErrorOption func(*ResultError)

// WithMetadata 附加额外信息。
func WithMetadata(key, value string) ErrorOption {
	return func(e *ResultError) {
		if e.Metadata == nil {
			e.Metadata = make(map[string]string)
		}
		e.Metadata[key] = value
	}
}

// WithOccurredAt 覆盖默认的发生时间，主要用于测试。
func WithOccurredAt(ts time.Time) ErrorOption {
	return func(e *ResultError) {
		e.OccurredAt = ts.Unix()
	}
}

// NewError 创建一个新的 ResultError。
func NewError(code Code, message string, opts ...ErrorOption) *ResultError {
	if code == "" {
		code = CodeUnknown
	}
	e := &ResultError{
		Code:       code,
		Message:    message,
		OccurredAt: time.Now().Unix(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WrapError 把任意 error 包装为 ResultError，原始错误信息进入 Metadata。
func WrapError(code Code, cause error, message string, opts ...ErrorOption) *ResultError {
	e := NewError(code, message, opts...)
	if cause != nil {
		if e.Metadata == nil {
			e.Metadata = make(map[string]string)
		}
		e.Metadata["cause"] = cause.Error()
	}
	return e
}

// Error 实现 error 接口。
func (e *ResultError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Is 允许通过 errors.Is 按错误码比较。
func (e *ResultError) Is(target error) bool {
	if e == nil || target == nil {
		return false
	}
	t, ok := target.(*ResultError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Clone 返回深拷贝，保证错误在组件之间传递时不被共享修改。
func (e *ResultError) Clone() *ResultError {
	if e == nil {
		return nil
	}
	clone := *e
	if len(e.Metadata) > 0 {
		clone.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			clone.Metadata[k] = v
		}
	} else {
		clone.Metadata = nil
	}
	return &clone
}

// WithMeta 返回附加了一条元数据的拷贝，原错误保持不变。
func (e *ResultError) WithMeta(key, value string) *ResultError {
	clone := e.Clone()
	if clone == nil {
		return nil
	}
	if clone.Metadata == nil {
		clone.Metadata = make(map[string]string)
	}
	clone.Metadata[key] = value
	return clone
}

// CodeOf 返回任意 error 对应的错误码。
func CodeOf(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	var target *ResultError
	if stdErrors.As(err, &target) {
		return target.Code
	}
	return CodeUnknown
}
