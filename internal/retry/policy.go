package retry

import (
	"time"

	"OpenAgent-Loop/internal/result"
)

// Category 表示错误码所属的分类，用于决定退避倍率与告警级别。
type Category string

const (
	CategoryTimeout            Category = "timeout"
	CategoryNetwork            Category = "network"
	CategoryServiceUnavailable Category = "service_unavailable"
	CategoryValidation         Category = "validation"
	CategoryGuardrail          Category = "guardrail"
	CategoryCancelled          Category = "cancelled"
	CategoryUnknown            Category = "unknown"
)

// MaxDelay 是退避延迟的上限。
const MaxDelay = 2 * time.Minute

// categories 是错误码到分类的静态映射表。未登记的错误码归入 unknown。
var categories = map[result.Code]Category{
	result.CodeToolTimeout: CategoryTimeout,
	result.CodeLLMTimeout:  CategoryTimeout,

	result.CodeToolNetworkFailure: CategoryNetwork,

	result.CodeToolServiceUnavailable: CategoryServiceUnavailable,
	result.CodeLLMServiceUnavailable:  CategoryServiceUnavailable,
	result.CodeLLMRateLimited:         CategoryServiceUnavailable,
	result.CodeMemoryLoadFailed:       CategoryServiceUnavailable,
	result.CodeMemorySaveFailed:       CategoryServiceUnavailable,
	result.CodeRunPublishFailed:       CategoryServiceUnavailable,

	result.CodeToolNotFound:         CategoryValidation,
	result.CodeToolInvalidArguments: CategoryValidation,
	result.CodeValidationFailed:     CategoryValidation,
	result.CodeRunValidationFailed:  CategoryValidation,
	result.CodeRunNotFound:          CategoryValidation,
	result.CodeRunConflict:          CategoryValidation,
	result.CodeRunCompleted:         CategoryValidation,

	result.CodeGuardrailInputRejected:  CategoryGuardrail,
	result.CodeGuardrailActionBlocked:  CategoryGuardrail,
	result.CodeGuardrailOutputRejected: CategoryGuardrail,

	result.CodeRunCancelled: CategoryCancelled,
}

// retryable 是可重试错误码的静态集合。
var retryable = map[result.Code]struct{}{
	result.CodeToolTimeout:            {},
	result.CodeToolNetworkFailure:     {},
	result.CodeToolServiceUnavailable: {},
	result.CodeLLMTimeout:             {},
	result.CodeLLMRateLimited:         {},
	result.CodeLLMServiceUnavailable:  {},
	result.CodeMemoryLoadFailed:       {},
	result.CodeMemorySaveFailed:       {},
	result.CodeRunPublishFailed:       {},
	result.CodeRunProcessingFailed:    {},
}

// CategoryOf 返回错误码所属的分类。
func CategoryOf(code result.Code) Category {
	if category, ok := categories[code]; ok {
		return category
	}
	return CategoryUnknown
}

// Retryable 判断错误码是否可重试。
func Retryable(code result.Code) bool {
	_, ok := retryable[code]
	return ok
}

// multiplier 返回分类对应的退避倍率。
func multiplier(category Category) float64 {
	switch category {
	case CategoryTimeout, CategoryServiceUnavailable:
		return 2.0
	case CategoryNetwork:
		return 1.5
	default:
		return 1.0
	}
}

// Delay 计算第 attempt 次尝试之后的退避延迟：
// 2^(attempt-1) 秒乘以分类倍率，上限两分钟。attempt 从 1 开始计数。
func Delay(code result.Code, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	// 指数部分超过 8 后必然触顶，提前截断避免移位溢出。
	shift := attempt - 1
	if shift > 8 {
		shift = 8
	}
	base := time.Duration(1<<uint(shift)) * time.Second
	delay := time.Duration(float64(base) * multiplier(CategoryOf(code)))
	if delay > MaxDelay {
		return MaxDelay
	}
	return delay
}
