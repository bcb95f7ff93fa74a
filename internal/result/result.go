package result

import (
	"encoding/json"
	"fmt"
)

// Result 是系统内统一的双通道结果类型：要么携带成功值，要么携带
// ResultError，二者严格互斥。零值 Result 视为失败（UNKNOWN）。
type Result[T any] struct {
	value T
	err   *ResultError
	ok    bool
}

// Success 构造一个携带成功值的 Result。
func Success[T any](value T) Result[T] {
	return Result[T]{value: value, ok: true}
}

// Failure 构造一个携带错误的 Result。
func Failure[T any](code Code, message string, opts ...ErrorOption) Result[T] {
	return Result[T]{err: NewError(code, message, opts...)}
}

// FailureFrom 复用已有的 ResultError 构造失败结果，
// 用于错误在不同类型参数的 Result 之间传播。
func FailureFrom[T any](err *ResultError) Result[T] {
	if err == nil {
		err = NewError(CodeUnknown, "unknown failure")
	}
	return Result[T]{err: err}
}

// IsSuccess 判断是否为成功结果。
func (r Result[T]) IsSuccess() bool {
	return r.ok
}

// IsFailure 判断是否为失败结果。
func (r Result[T]) IsFailure() bool {
	return !r.ok
}

// Value 返回成功值以及一个有效标记，是生产路径的防御式取值方式。
func (r Result[T]) Value() (T, bool) {
	return r.value, r.ok
}

// MustValue 返回成功值；对失败结果取值属于契约违规，立即 panic。
func (r Result[T]) MustValue() T {
	if !r.ok {
		panic(fmt.Sprintf("result: MustValue on failed result (%v)", r.err))
	}
	return r.value
}

// Err 返回错误；成功结果返回 nil。
func (r Result[T]) Err() *ResultError {
	if r.ok {
		return nil
	}
	if r.err == nil {
		// 零值 Result 兜底为未知错误，避免空指针扩散。
		return NewError(CodeUnknown, "uninitialised result")
	}
	return r.err
}

// MustErr 返回错误；对成功结果取错误属于契约违规，立即 panic。
func (r Result[T]) MustErr() *ResultError {
	if r.ok {
		panic("result: MustErr on successful result")
	}
	return r.Err()
}

// envelope 是 Result 的 JSON 外壳，ok 字段保证互斥语义在序列化后仍然成立。
type envelope[T any] struct {
	OK    bool         `json:"ok"`
	Value *T           `json:"value,omitempty"`
	Error *ResultError `json:"error,omitempty"`
}

// MarshalJSON 实现 json.Marshaler。
func (r Result[T]) MarshalJSON() ([]byte, error) {
	env := envelope[T]{OK: r.ok}
	if r.ok {
		value := r.value
		env.Value = &value
	} else {
		env.Error = r.Err()
	}
	return json.Marshal(env)
}

// UnmarshalJSON 实现 json.Unmarshaler。
func (r *Result[T]) UnmarshalJSON(data []byte) error {
	var env envelope[T]
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	if env.OK {
		if env.Value == nil {
			var zero T
			*r = Success(zero)
			return nil
		}
		*r = Success(*env.Value)
		return nil
	}
	if env.Error == nil {
		*r = FailureFrom[T](nil)
		return nil
	}
	*r = FailureFrom[T](env.Error)
	return nil
}
