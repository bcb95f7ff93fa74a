package retry

import (
	"testing"
	"time"

	"OpenAgent-Loop/internal/result"
)

func TestCategoryOf(t *testing.T) {
	cases := []struct {
		code result.Code
		want Category
	}{
		{result.CodeToolTimeout, CategoryTimeout},
		{result.CodeLLMTimeout, CategoryTimeout},
		{result.CodeToolNetworkFailure, CategoryNetwork},
		{result.CodeToolServiceUnavailable, CategoryServiceUnavailable},
		{result.CodeLLMRateLimited, CategoryServiceUnavailable},
		{result.CodeToolInvalidArguments, CategoryValidation},
		{result.CodeGuardrailActionBlocked, CategoryGuardrail},
		{result.CodeRunCancelled, CategoryCancelled},
		{result.CodeUnknown, CategoryUnknown},
		{result.Code("NEVER_REGISTERED"), CategoryUnknown},
	}
	for _, tc := range cases {
		if got := CategoryOf(tc.code); got != tc.want {
			t.Fatalf("CategoryOf(%s) = %s, want %s", tc.code, got, tc.want)
		}
	}
}

func TestRetryable(t *testing.T) {
	for _, code := range []result.Code{
		result.CodeToolTimeout,
		result.CodeToolNetworkFailure,
		result.CodeLLMServiceUnavailable,
		result.CodeMemorySaveFailed,
	} {
		if !Retryable(code) {
			t.Fatalf("expected %s to be retryable", code)
		}
	}
	for _, code := range []result.Code{
		result.CodeGuardrailActionBlocked,
		result.CodeToolInvalidArguments,
		result.CodeRunCancelled,
		result.CodeUnknown,
	} {
		if Retryable(code) {
			t.Fatalf("expected %s to be non-retryable", code)
		}
	}
}

func TestDelayMultipliers(t *testing.T) {
	// attempt=1 的基数是 1 秒，倍率直接可见。
	if got := Delay(result.CodeToolTimeout, 1); got != 2*time.Second {
		t.Fatalf("timeout delay = %v, want 2s", got)
	}
	if got := Delay(result.CodeToolNetworkFailure, 1); got != 1500*time.Millisecond {
		t.Fatalf("network delay = %v, want 1.5s", got)
	}
	if got := Delay(result.CodeToolExecutionFailed, 1); got != time.Second {
		t.Fatalf("default delay = %v, want 1s", got)
	}
}

func TestDelayExponentialGrowth(t *testing.T) {
	if got := Delay(result.CodeToolExecutionFailed, 4); got != 8*time.Second {
		t.Fatalf("attempt 4 delay = %v, want 8s", got)
	}
	if got := Delay(result.CodeToolTimeout, 3); got != 8*time.Second {
		t.Fatalf("timeout attempt 3 delay = %v, want 8s", got)
	}
}

func TestDelayMonotonicAndCapped(t *testing.T) {
	for _, code := range []result.Code{
		result.CodeToolTimeout,
		result.CodeToolNetworkFailure,
		result.CodeToolExecutionFailed,
	} {
		previous := time.Duration(0)
		for attempt := 1; attempt <= 20; attempt++ {
			delay := Delay(code, attempt)
			if delay < previous {
				t.Fatalf("delay for %s decreased at attempt %d: %v < %v", code, attempt, delay, previous)
			}
			if delay > MaxDelay {
				t.Fatalf("delay for %s exceeds cap at attempt %d: %v", code, attempt, delay)
			}
			previous = delay
		}
	}
}

func TestDelayHandlesBadAttempt(t *testing.T) {
	if got := Delay(result.CodeToolExecutionFailed, 0); got != time.Second {
		t.Fatalf("attempt 0 delay = %v, want 1s", got)
	}
	if got := Delay(result.CodeToolExecutionFailed, -5); got != time.Second {
		t.Fatalf("negative attempt delay = %v, want 1s", got)
	}
}
