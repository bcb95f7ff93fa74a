package result

// Code 表示系统内统一的错误码。错误码是封闭的枚举集合，
// 按来源分族，便于 internal/retry 用静态查表的方式完成分类。
type Code string

// 工具调用族错误码。
const (
	CodeToolNotFound           Code = "TOOL_NOT_FOUND"
	CodeToolInvalidArguments   Code = "TOOL_INVALID_ARGUMENTS"
	CodeToolExecutionFailed    Code = "TOOL_EXECUTION_FAILED"
	CodeToolTimeout            Code = "TOOL_TIMEOUT"
	CodeToolNetworkFailure     Code = "TOOL_NETWORK_FAILURE"
	CodeToolServiceUnavailable Code = "TOOL_SERVICE_UNAVAILABLE"
)

// 大模型推理族错误码。
const (
	CodeLLMIntentFailure      Code = "LLM_INTENT_FAILURE"
	CodeLLMStepFailure        Code = "LLM_STEP_FAILURE"
	CodeLLMSynthesisFailure   Code = "LLM_SYNTHESIS_FAILURE"
	CodeLLMTimeout            Code = "LLM_TIMEOUT"
	CodeLLMRateLimited        Code = "LLM_RATE_LIMITED"
	CodeLLMServiceUnavailable Code = "LLM_SERVICE_UNAVAILABLE"
)

// 守护策略族错误码。
const (
	CodeGuardrailInputRejected  Code = "GUARDRAIL_INPUT_REJECTED"
	CodeGuardrailActionBlocked  Code = "GUARDRAIL_ACTION_BLOCKED"
	CodeGuardrailOutputRejected Code = "GUARDRAIL_OUTPUT_REJECTED"
)

// 长期记忆族错误码。
const (
	CodeMemoryLoadFailed Code = "MEMORY_LOAD_FAILED"
	CodeMemorySaveFailed Code = "MEMORY_SAVE_FAILED"
)

// 异步运行管线族错误码。
const (
	CodeRunNotFound         Code = "RUN_NOT_FOUND"
	CodeRunConflict         Code = "RUN_CONFLICT"
	CodeRunCompleted        Code = "RUN_COMPLETED"
	CodeRunRetriesExhausted Code = "RUN_RETRIES_EXHAUSTED"
	CodeRunPublishFailed    Code = "RUN_PUBLISH_FAILED"
	CodeRunProcessingFailed Code = "RUN_PROCESSING_FAILED"
	CodeRunValidationFailed Code = "RUN_VALIDATION_FAILED"
)

// 通用错误码。
const (
	CodeRunCancelled     Code = "RUN_CANCELLED"
	CodeValidationFailed Code = "VALIDATION_FAILED"
	CodeUnknown          Code = "UNKNOWN"
)

var knownCodes = map[Code]struct{}{
	CodeToolNotFound:            {},
	CodeToolInvalidArguments:    {},
	CodeToolExecutionFailed:     {},
	CodeToolTimeout:             {},
	CodeToolNetworkFailure:      {},
	CodeToolServiceUnavailable:  {},
	CodeLLMIntentFailure:        {},
	CodeLLMStepFailure:          {},
	CodeLLMSynthesisFailure:     {},
	CodeLLMTimeout:              {},
	CodeLLMRateLimited:          {},
	CodeLLMServiceUnavailable:   {},
	CodeGuardrailInputRejected:  {},
	CodeGuardrailActionBlocked:  {},
	CodeGuardrailOutputRejected: {},
	CodeMemoryLoadFailed:        {},
	CodeMemorySaveFailed:        {},
	CodeRunNotFound:             {},
	CodeRunConflict:             {},
	CodeRunCompleted:            {},
	CodeRunRetriesExhausted:     {},
	CodeRunPublishFailed:        {},
	CodeRunProcessingFailed:     {},
	CodeRunValidationFailed:     {},
	CodeRunCancelled:            {},
	CodeValidationFailed:        {},
	CodeUnknown:                 {},
}

// IsKnownCode 检查错误码是否属于封闭枚举。
func IsKnownCode(code Code) bool {
	_, ok := knownCodes[code]
	return ok
}
