package openagent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestExecuteReturnsResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/agent/execute" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		var req ExecuteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("unexpected body: %v", err)
		}
		if req.Input != "list open issues" {
			t.Fatalf("unexpected input: %q", req.Input)
		}
		_ = json.NewEncoder(w).Encode(AgentResponse{Content: "3 issues", Type: "success"})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	response, err := client.Execute(context.Background(), ExecuteRequest{Input: "list open issues"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if response.Content != "3 issues" || response.Type != "success" {
		t.Fatalf("unexpected response: %+v", response)
	}
}

func TestExecuteDecodesErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(AgentResponse{
			Content:  "input rejected",
			Type:     "error",
			Metadata: map[string]string{"code": "GUARDRAIL_INPUT_REJECTED"},
		})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	response, err := client.Execute(context.Background(), ExecuteRequest{Input: "x"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if response.Type != "error" || response.Metadata["code"] != "GUARDRAIL_INPUT_REJECTED" {
		t.Fatalf("unexpected response: %+v", response)
	}
}

func TestSubmitRunSendsToken(t *testing.T) {
	submitted := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/runs" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("Authorization") != "Bearer token" {
			t.Fatalf("expected bearer token, got %q", r.Header.Get("Authorization"))
		}
		submitted = true
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(Run{ID: "run-1", Status: "pending"})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	client.SetToken("token")

	created, err := client.SubmitRun(context.Background(), RunSubmission{Input: "scan deps"})
	if err != nil {
		t.Fatalf("submit run: %v", err)
	}
	if created.ID != "run-1" || !submitted {
		t.Fatalf("unexpected run: %+v", created)
	}
}

func TestWaitRunPollsUntilTerminal(t *testing.T) {
	polls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/runs/run-1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		polls++
		status := "running"
		if polls >= 3 {
			status = "succeeded"
		}
		_ = json.NewEncoder(w).Encode(Run{ID: "run-1", Status: status})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	final, err := client.WaitRun(context.Background(), "run-1", time.Millisecond)
	if err != nil {
		t.Fatalf("wait run: %v", err)
	}
	if final.Status != "succeeded" || polls < 3 {
		t.Fatalf("unexpected final state: %+v after %d polls", final, polls)
	}
}

func TestGetRunError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "run not found", http.StatusNotFound)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.GetRun(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Message != "run not found" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}

func TestSessionAnalytics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/sessions/s1/analytics" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{
			"summary": {"total": 4, "succeeded": 3, "failed": 1, "success_rate": 0.75, "mean_duration": 15000000},
			"overall": {"count": 3, "min": 10000000, "max": 20000000, "mean": 15000000},
			"errors": {"total": 1, "by_code": {"TOOL_TIMEOUT": 1}, "retryable": 1, "permanent": 0, "error_rate": 0.25, "most_common_code": "TOOL_TIMEOUT"}
		}`))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	analytics, err := client.SessionAnalytics(context.Background(), "s1")
	if err != nil {
		t.Fatalf("session analytics: %v", err)
	}
	if analytics.Summary.Total != 4 || analytics.Summary.SuccessRate != 0.75 {
		t.Fatalf("unexpected summary: %+v", analytics.Summary)
	}
	if analytics.Overall.Count != 3 || analytics.Overall.Tool != "" {
		t.Fatalf("unexpected overall stats: %+v", analytics.Overall)
	}
	if analytics.Errors.ByCode["TOOL_TIMEOUT"] != 1 || analytics.Errors.MostCommonCode != "TOOL_TIMEOUT" {
		t.Fatalf("unexpected errors: %+v", analytics.Errors)
	}
}
