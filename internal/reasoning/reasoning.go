package reasoning

import (
	"context"

	"OpenAgent-Loop/internal/result"
	"OpenAgent-Loop/internal/tools"
)

// IntentType 是意图分析的封闭分类。
type IntentType string

const (
	IntentAnalyzeCode         IntentType = "analyze-code"
	IntentCreateBranch        IntentType = "create-branch"
	IntentRunTests            IntentType = "run-tests"
	IntentGenerateDocs        IntentType = "generate-docs"
	IntentRefactor            IntentType = "refactor"
	IntentFindBugs            IntentType = "find-bugs"
	IntentOptimizePerformance IntentType = "optimize-performance"
	IntentSecurityScan        IntentType = "security-scan"
	IntentOther               IntentType = "other"
)

// knownIntents 是合法意图分类的集合。
var knownIntents = map[IntentType]struct{}{
	IntentAnalyzeCode:         {},
	IntentCreateBranch:        {},
	IntentRunTests:            {},
	IntentGenerateDocs:        {},
	IntentRefactor:            {},
	IntentFindBugs:            {},
	IntentOptimizePerformance: {},
	IntentSecurityScan:        {},
	IntentOther:               {},
}

// NormalizeIntent 把任意字符串归一化为合法的意图分类，
// 未知取值落到 other。
func NormalizeIntent(raw string) IntentType {
	intent := IntentType(raw)
	if _, ok := knownIntents[intent]; ok {
		return intent
	}
	return IntentOther
}

// Confidence 表示意图分析的置信程度。
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// UserIntent 是意图分析的产物。
type UserIntent struct {
	Type       IntentType `json:"type"`
	Confidence Confidence `json:"confidence"`
	// Summary 是模型对用户目标的一句话复述。
	Summary string `json:"summary,omitempty"`
	// OriginalText 保留用户请求的原文，后续阶段据此还原目标。
	OriginalText string `json:"original_text,omitempty"`
}

// Decision 是循环中一步的决策：要么提出一次工具调用，
// 要么宣布信息已足够。
type Decision struct {
	// Complete 为 true 时表示无需继续调用工具。
	Complete bool `json:"complete"`
	// Call 在 Complete 为 false 时给出下一次调用提案。
	Call tools.ToolCall `json:"call"`
	// Reason 记录模型给出的决策依据，仅用于日志。
	Reason string `json:"reason,omitempty"`
}

// StepContext 是一步决策可见的全部上下文。Completed 与 Failed
// 覆盖会话的全部历史，而不仅是当前这次运行的新条目。
type StepContext struct {
	Intent    UserIntent             `json:"intent"`
	Input     string                 `json:"input"`
	Catalog   []tools.ToolDefinition `json:"catalog"`
	Completed []tools.ToolExecution  `json:"completed"`
	Failed    []*result.ResultError  `json:"failed,omitempty"`
	Blocked   []*result.ResultError  `json:"blocked,omitempty"`
	Iteration int                    `json:"iteration"`
}

// Client 是编排循环依赖的推理能力。所有操作通过 Result
// 返回可预期失败，超时与限流映射为 LLM 族错误码。
type Client interface {
	// AnalyzeIntent 对原始输入做意图分析。
	AnalyzeIntent(ctx context.Context, input string) result.Result[UserIntent]
	// DecideNextStep 基于当前上下文决定下一步动作。
	DecideNextStep(ctx context.Context, step StepContext) result.Result[Decision]
	// Synthesize 把累计的成功执行合成为最终回复文本。
	Synthesize(ctx context.Context, intent UserIntent, input string, executions []tools.ToolExecution) result.Result[string]
}
