package run

import (
	"context"

	"OpenAgent-Loop/internal/orchestrator"
	"OpenAgent-Loop/internal/result"
)

// RecoveryHandler 定义了在运行终态失败时的补偿策略。
type RecoveryHandler interface {
	// Recover 尝试根据失败原因给出降级响应。
	// 返回的 AgentResponse 将作为降级结果写入运行；若返回 nil 则继续按照失败流程处理。
	Recover(ctx context.Context, r *Run, cause *result.ResultError) (*orchestrator.AgentResponse, error)
}
