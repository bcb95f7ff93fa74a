package run

import (
	"OpenAgent-Loop/internal/orchestrator"
	"OpenAgent-Loop/internal/result"
)

// Status 表示运行在生命周期中的状态。
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Run 描述一次排队执行的编排运行。
type Run struct {
	ID         string                      `json:"id"`
	Input      string                      `json:"input"`
	SessionID  string                      `json:"session_id,omitempty"`
	Metadata   map[string]string           `json:"metadata,omitempty"`
	Status     Status                      `json:"status"`
	Attempts   int                         `json:"attempts"`
	MaxRetries int                         `json:"max_retries"`
	LastError  string                      `json:"last_error,omitempty"`
	ErrorCode  string                      `json:"error_code,omitempty"`
	Response   *orchestrator.AgentResponse `json:"response,omitempty"`
	CreatedAt  int64                       `json:"created_at"`
	UpdatedAt  int64                       `json:"updated_at"`
}

var (
	// ErrRunNotFound 表示指定的运行不存在。
	ErrRunNotFound = result.NewError(result.CodeRunNotFound, "run not found")
	// ErrRunConflict 表示运行在当前状态下无法进行所请求的操作。
	ErrRunConflict = result.NewError(result.CodeRunConflict, "run conflict")
	// ErrRunCompleted 表示运行已经成功完成。
	ErrRunCompleted = result.NewError(result.CodeRunCompleted, "run already completed")
	// ErrRunExhausted 表示运行的重试次数已经耗尽。
	ErrRunExhausted = result.NewError(result.CodeRunRetriesExhausted, "run retries exhausted")
)

// IsValidStatus 检查给定的运行状态是否为支持的枚举值。
func IsValidStatus(status Status) bool {
	switch status {
	case StatusPending, StatusRunning, StatusSucceeded, StatusFailed:
		return true
	default:
		return false
	}
}

func cloneMetadata(metadata map[string]string) map[string]string {
	if metadata == nil {
		return nil
	}
	cloned := make(map[string]string, len(metadata))
	for key, value := range metadata {
		cloned[key] = value
	}
	return cloned
}

func cloneRun(r *Run) *Run {
	clone := *r
	if r.Response != nil {
		responseCopy := *r.Response
		clone.Response = &responseCopy
	}
	clone.Metadata = cloneMetadata(r.Metadata)
	return &clone
}
