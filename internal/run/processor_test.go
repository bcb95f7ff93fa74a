package run

import (
	"context"
	"sync"
	"testing"
	"time"

	"OpenAgent-Loop/internal/observability/alerting"
	"OpenAgent-Loop/internal/orchestrator"
	"OpenAgent-Loop/internal/result"
)

// fakeEngine 以脚本化方式返回每次执行的结果。
type fakeEngine struct {
	mu      sync.Mutex
	calls   int
	results []result.Result[orchestrator.AgentResponse]
}

func (f *fakeEngine) Run(_ context.Context, _ orchestrator.UserRequest) result.Result[orchestrator.AgentResponse] {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	f.calls++
	if idx < len(f.results) {
		return f.results[idx]
	}
	return result.Success(orchestrator.AgentResponse{Content: "ok", Type: orchestrator.ResponseSuccess})
}

type capturingProducer struct {
	mu        sync.Mutex
	published []string
}

func (p *capturingProducer) Publish(_ context.Context, runID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, runID)
	return nil
}

func (p *capturingProducer) Close() error { return nil }

type capturingAlerter struct {
	mu     sync.Mutex
	events []alerting.Event
}

func (a *capturingAlerter) Notify(_ context.Context, event alerting.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func newClaimedRun(t *testing.T, store Store, id string) {
	t.Helper()
	if err := store.Create(context.Background(), newPendingRun(id)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
}

func newTestProcessor(engine Executor, store Store, producer Producer, alerter alerting.Dispatcher) *Processor {
	p := NewProcessor(engine, store, nil, producer, WithAlertDispatcher(alerter))
	// 测试中不真正等待退避延迟。
	p.sleep = func(context.Context, time.Duration) error { return nil }
	return p
}

func TestProcessorHandleSuccess(t *testing.T) {
	engine := &fakeEngine{}
	store := NewMemoryStore()
	producer := &capturingProducer{}
	processor := newTestProcessor(engine, store, producer, nil)
	newClaimedRun(t, store, "r1")

	if err := processor.handle(context.Background(), "r1"); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	r, _ := store.Get(context.Background(), "r1")
	if r.Status != StatusSucceeded {
		t.Fatalf("expected succeeded, got %s", r.Status)
	}
	if r.Response == nil || r.Response.Content != "ok" {
		t.Fatalf("expected stored response, got %+v", r.Response)
	}
	if len(producer.published) != 0 {
		t.Fatalf("successful run must not be republished")
	}
}

func TestProcessorRetryableFailureRequeues(t *testing.T) {
	engine := &fakeEngine{results: []result.Result[orchestrator.AgentResponse]{
		result.Failure[orchestrator.AgentResponse](result.CodeLLMTimeout, "model timed out"),
	}}
	store := NewMemoryStore()
	producer := &capturingProducer{}
	alerter := &capturingAlerter{}
	processor := newTestProcessor(engine, store, producer, alerter)
	newClaimedRun(t, store, "r1")

	if err := processor.handle(context.Background(), "r1"); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	r, _ := store.Get(context.Background(), "r1")
	if r.Status != StatusFailed || r.ErrorCode != "LLM_TIMEOUT" {
		t.Fatalf("unexpected run state %+v", r)
	}
	if len(producer.published) != 1 || producer.published[0] != "r1" {
		t.Fatalf("expected one republish, got %v", producer.published)
	}
	if len(alerter.events) != 1 || alerter.events[0].Stage != "retry" {
		t.Fatalf("expected retry alert, got %+v", alerter.events)
	}
	if alerter.events[0].Category != "timeout" {
		t.Fatalf("expected timeout category, got %s", alerter.events[0].Category)
	}
}

func TestProcessorNonRetryableFailureStops(t *testing.T) {
	engine := &fakeEngine{results: []result.Result[orchestrator.AgentResponse]{
		result.Failure[orchestrator.AgentResponse](result.CodeGuardrailInputRejected, "blocked"),
	}}
	store := NewMemoryStore()
	producer := &capturingProducer{}
	alerter := &capturingAlerter{}
	processor := newTestProcessor(engine, store, producer, alerter)
	newClaimedRun(t, store, "r1")

	if err := processor.handle(context.Background(), "r1"); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	if len(producer.published) != 0 {
		t.Fatalf("non-retryable failure must not be republished")
	}
	if len(alerter.events) != 1 || alerter.events[0].Stage != "non_retryable" {
		t.Fatalf("expected non_retryable alert, got %+v", alerter.events)
	}
}

func TestProcessorExhaustedRunSkipped(t *testing.T) {
	engine := &fakeEngine{results: []result.Result[orchestrator.AgentResponse]{
		result.Failure[orchestrator.AgentResponse](result.CodeLLMTimeout, "slow"),
		result.Failure[orchestrator.AgentResponse](result.CodeLLMTimeout, "slow"),
		result.Failure[orchestrator.AgentResponse](result.CodeLLMTimeout, "slow"),
	}}
	store := NewMemoryStore()
	producer := &capturingProducer{}
	processor := newTestProcessor(engine, store, producer, nil)
	newClaimedRun(t, store, "r1")

	for i := 0; i < 3; i++ {
		if err := processor.handle(context.Background(), "r1"); err != nil {
			t.Fatalf("handle %d failed: %v", i+1, err)
		}
	}
	// 第四次消费时重试已耗尽，应静默跳过。
	if err := processor.handle(context.Background(), "r1"); err != nil {
		t.Fatalf("exhausted run should be skipped, got %v", err)
	}
	if engine.calls != 3 {
		t.Fatalf("expected 3 executions, got %d", engine.calls)
	}
	// 最后一次失败是终态，不再重投。
	if len(producer.published) != 2 {
		t.Fatalf("expected 2 republishes before exhaustion, got %d", len(producer.published))
	}
}

type fallbackRecovery struct{}

func (fallbackRecovery) Recover(_ context.Context, _ *Run, _ *result.ResultError) (*orchestrator.AgentResponse, error) {
	return &orchestrator.AgentResponse{Content: "degraded answer", Type: orchestrator.ResponseWarning}, nil
}

func TestProcessorRecoveryProducesDegradedResult(t *testing.T) {
	engine := &fakeEngine{results: []result.Result[orchestrator.AgentResponse]{
		result.Failure[orchestrator.AgentResponse](result.CodeGuardrailInputRejected, "blocked"),
	}}
	store := NewMemoryStore()
	producer := &capturingProducer{}
	processor := NewProcessor(engine, store, nil, producer, WithRecoveryHandler(fallbackRecovery{}))
	processor.sleep = func(context.Context, time.Duration) error { return nil }
	newClaimedRun(t, store, "r1")

	if err := processor.handle(context.Background(), "r1"); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	r, _ := store.Get(context.Background(), "r1")
	if r.Status != StatusSucceeded {
		t.Fatalf("expected degraded success, got %s", r.Status)
	}
	if r.Response == nil || r.Response.Content != "degraded answer" {
		t.Fatalf("expected fallback response, got %+v", r.Response)
	}
	if len(producer.published) != 0 {
		t.Fatalf("recovered run must not be republished")
	}
}

func TestProcessorUnknownRunSkipped(t *testing.T) {
	processor := newTestProcessor(&fakeEngine{}, NewMemoryStore(), &capturingProducer{}, nil)
	if err := processor.handle(context.Background(), "ghost"); err != nil {
		t.Fatalf("unknown run should be skipped, got %v", err)
	}
}

func TestProcessorConsumesFromMemoryQueue(t *testing.T) {
	engine := &fakeEngine{}
	store := NewMemoryStore()
	queue := NewMemoryQueue(4)
	processor := NewProcessor(engine, store, queue, queue, WithWorkerCount(2))
	newClaimedRun(t, store, "r1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- processor.Start(ctx) }()

	if err := queue.Publish(ctx, "r1"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		r, err := store.Get(context.Background(), "r1")
		if err == nil && r.Status == StatusSucceeded {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("run was not processed in time")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-done
}
