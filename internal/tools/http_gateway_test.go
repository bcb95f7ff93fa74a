package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"OpenAgent-Loop/internal/result"
)

func TestHTTPGatewayListTools(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/tools" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Fatalf("expected bearer token, got %q", got)
		}
		json.NewEncoder(w).Encode(listToolsResponse{Tools: []ToolDefinition{
			{Name: "search", Description: "full text search"},
		}})
	}))
	defer server.Close()

	gateway := NewHTTPGateway(server.URL, WithToken("secret"))
	res := gateway.ListTools(context.Background())
	if res.IsFailure() {
		t.Fatalf("expected success, got %v", res.Err())
	}
	defs := res.MustValue()
	if len(defs) != 1 || defs[0].Name != "search" {
		t.Fatalf("unexpected catalog %v", defs)
	}
}

func TestHTTPGatewayExecuteTool(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/tools/execute" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var req executeToolRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Name != "search" {
			t.Fatalf("unexpected tool %s", req.Name)
		}
		json.NewEncoder(w).Encode(executeToolResponse{
			Payload:    TextPayload("found it"),
			DurationMS: 42,
		})
	}))
	defer server.Close()

	gateway := NewHTTPGateway(server.URL)
	res := gateway.ExecuteTool(context.Background(), ToolCall{
		Name:      "search",
		Arguments: map[string]any{"query": "go"},
	})
	if res.IsFailure() {
		t.Fatalf("expected success, got %v", res.Err())
	}
	exec := res.MustValue()
	if exec.Payload.AsText() != "found it" {
		t.Fatalf("unexpected payload %q", exec.Payload.AsText())
	}
	if exec.Duration.Milliseconds() != 42 {
		t.Fatalf("expected reported duration, got %v", exec.Duration)
	}
}

func TestHTTPGatewayStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   result.Code
	}{
		{http.StatusNotFound, result.CodeToolNotFound},
		{http.StatusBadRequest, result.CodeToolInvalidArguments},
		{http.StatusRequestTimeout, result.CodeToolTimeout},
		{http.StatusTooManyRequests, result.CodeToolServiceUnavailable},
		{http.StatusServiceUnavailable, result.CodeToolServiceUnavailable},
		{http.StatusInternalServerError, result.CodeToolExecutionFailed},
	}
	for _, tc := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
			json.NewEncoder(w).Encode(remoteErrorBody{Error: "boom"})
		}))
		gateway := NewHTTPGateway(server.URL)
		res := gateway.ExecuteTool(context.Background(), ToolCall{Name: "search"})
		server.Close()

		if res.IsSuccess() {
			t.Fatalf("status %d: expected failure", tc.status)
		}
		if res.Err().Code != tc.want {
			t.Fatalf("status %d: expected %s, got %s", tc.status, tc.want, res.Err().Code)
		}
		if res.Err().Message != "boom" {
			t.Fatalf("status %d: expected remote message, got %q", tc.status, res.Err().Message)
		}
	}
}

func TestHTTPGatewayNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	gateway := NewHTTPGateway(server.URL)
	res := gateway.ExecuteTool(context.Background(), ToolCall{Name: "search"})
	if res.IsSuccess() {
		t.Fatalf("expected failure against closed server")
	}
	if res.Err().Code != result.CodeToolNetworkFailure {
		t.Fatalf("expected TOOL_NETWORK_FAILURE, got %s", res.Err().Code)
	}
}

func TestHTTPGatewayCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer server.Close()

	gateway := NewHTTPGateway(server.URL)
	res := gateway.ExecuteTool(ctx, ToolCall{Name: "search"})
	if res.IsSuccess() {
		t.Fatalf("expected failure for cancelled context")
	}
	if res.Err().Code != result.CodeRunCancelled {
		t.Fatalf("expected RUN_CANCELLED, got %s", res.Err().Code)
	}
}
