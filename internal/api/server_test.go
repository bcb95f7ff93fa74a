package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"OpenAgent-Loop/internal/history"
	"OpenAgent-Loop/internal/memory"
	"OpenAgent-Loop/internal/orchestrator"
	"OpenAgent-Loop/internal/result"
	"OpenAgent-Loop/internal/run"
	"OpenAgent-Loop/internal/storage"
	"OpenAgent-Loop/internal/tools"
)

type fixedExecutor struct {
	res result.Result[orchestrator.AgentResponse]
}

func (f *fixedExecutor) Run(_ context.Context, _ orchestrator.UserRequest) result.Result[orchestrator.AgentResponse] {
	return f.res
}

func newTestServer(t *testing.T, opts ...ServerOption) *Server {
	t.Helper()
	executor := &fixedExecutor{res: result.Success(orchestrator.AgentResponse{
		Content: "done",
		Type:    orchestrator.ResponseSuccess,
	})}
	return NewServer(":0", executor, opts...)
}

func TestHandleExecuteSuccess(t *testing.T) {
	server := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/agent/execute",
		strings.NewReader(`{"input":"summarize the repo"}`))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code: got %d want %d", rec.Code, http.StatusOK)
	}
	var got orchestrator.AgentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Content != "done" || got.Type != orchestrator.ResponseSuccess {
		t.Fatalf("unexpected response: %+v", got)
	}
}

func TestHandleExecuteFailureBecomesErrorResponse(t *testing.T) {
	executor := &fixedExecutor{res: result.Failure[orchestrator.AgentResponse](
		result.CodeGuardrailInputRejected, "input too long")}
	server := NewServer(":0", executor)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/agent/execute",
		strings.NewReader(`{"input":"x"}`))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status %d, got %d", http.StatusUnprocessableEntity, rec.Code)
	}
	var got orchestrator.AgentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Type != orchestrator.ResponseError {
		t.Fatalf("expected error response, got %+v", got)
	}
	if got.Metadata["code"] != "GUARDRAIL_INPUT_REJECTED" {
		t.Fatalf("expected error code in metadata, got %+v", got.Metadata)
	}
}

func TestHandleExecuteRejectsBadRequests(t *testing.T) {
	server := newTestServer(t)

	t.Run("invalid method", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/agent/execute", nil)
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/agent/execute", strings.NewReader("{"))
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
		}
	})
}

func TestRunEndpoints(t *testing.T) {
	store := run.NewMemoryStore()
	queue := run.NewMemoryQueue(8)
	svc := run.NewService(store, queue, 3)
	server := newTestServer(t, WithRunService(svc))
	handler := server.Handler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs",
		strings.NewReader(`{"input":"analyze dependencies","session_id":"s1"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d: %s", http.StatusAccepted, rec.Code, rec.Body.String())
	}
	var created run.Run
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.ID == "" || created.Status != run.StatusPending {
		t.Fatalf("unexpected run: %+v", created)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+created.ID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs?session_id=s1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var listed []run.Run
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list response: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != created.ID {
		t.Fatalf("unexpected run list: %+v", listed)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs/stats", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var stats run.RunStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats response: %v", err)
	}
	if stats.Total != 1 || stats.Pending != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestSubmitRunValidation(t *testing.T) {
	svc := run.NewService(run.NewMemoryStore(), run.NewMemoryQueue(4), 3)
	server := newTestServer(t, WithRunService(svc))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", strings.NewReader(`{"input":"  "}`))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestSessionEndpoints(t *testing.T) {
	repo := storage.NewMemorySessionRepository()
	store := memory.NewMemoryStore()
	server := newTestServer(t, WithSessionRepository(repo), WithMemoryStore(store))
	handler := server.Handler()
	ctx := context.Background()

	session := orchestrator.AgentSession{
		ID:         "s1",
		Input:      "review the module",
		Stage:      orchestrator.StageCompleted,
		Iterations: 2,
		CreatedAt:  time.Now().Add(-time.Minute).Unix(),
		UpdatedAt:  time.Now().Unix(),
	}
	if err := repo.SaveSession(ctx, session); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	h := history.History{
		result.Success(tools.ToolExecution{
			SessionID: "s1",
			Call:      tools.ToolCall{Name: "code_search"},
			Payload:   tools.TextPayload("matches"),
			Duration:  30 * time.Millisecond,
		}),
		result.Failure[tools.ToolExecution](result.CodeToolTimeout, "slow tool",
			result.WithMetadata("tool", "linter")),
	}
	if err := store.SaveHistory(ctx, "s1", h); err != nil {
		t.Fatalf("SaveHistory failed: %v", err)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/s1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var gotSession orchestrator.AgentSession
	if err := json.Unmarshal(rec.Body.Bytes(), &gotSession); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if gotSession.ID != "s1" || gotSession.Stage != orchestrator.StageCompleted {
		t.Fatalf("unexpected session: %+v", gotSession)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/s1/history", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/s1/analytics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var analytics sessionAnalytics
	if err := json.Unmarshal(rec.Body.Bytes(), &analytics); err != nil {
		t.Fatalf("decode analytics: %v", err)
	}
	if analytics.Summary.Total != 2 || analytics.Summary.Succeeded != 1 {
		t.Fatalf("unexpected summary: %+v", analytics.Summary)
	}
	if analytics.Overall.Count != 1 || analytics.Overall.Mean != 30*time.Millisecond {
		t.Fatalf("unexpected overall durations: %+v", analytics.Overall)
	}
	if analytics.Errors.ByCode["TOOL_TIMEOUT"] != 1 {
		t.Fatalf("unexpected error report: %+v", analytics.Errors)
	}
	if analytics.Errors.ByTool["linter"] != 1 {
		t.Fatalf("expected failure attributed to linter, got %+v", analytics.Errors.ByTool)
	}
}

func TestBearerAuth(t *testing.T) {
	server := newTestServer(t, WithAuthToken("secret"))
	handler := server.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/agent/execute",
		strings.NewReader(`{"input":"hi"}`)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/agent/execute",
		strings.NewReader(`{"input":"hi"}`))
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	// 健康检查不需要鉴权。
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
}
