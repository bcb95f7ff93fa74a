package tools

import (
	"context"

	"OpenAgent-Loop/internal/result"
)

// Gateway 定义了编排引擎消费的工具目录与调用能力。
// 所有操作通过 Result 返回可预期失败。
type Gateway interface {
	// ListTools 返回当前目录快照。空目录是合法的成功结果。
	ListTools(ctx context.Context) result.Result[[]ToolDefinition]
	// ExecuteTool 执行一次调用提案并返回执行记录。
	ExecuteTool(ctx context.Context, call ToolCall) result.Result[ToolExecution]
	// ExecuteToolsBatch 以受限并发执行一批调用，保持入参顺序返回。
	// 任何一次调用失败都会使整批失败，首个错误被返回。
	ExecuteToolsBatch(ctx context.Context, calls []ToolCall, maxConcurrency int) result.Result[[]ToolExecution]
}
