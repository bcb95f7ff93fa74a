package tools

import (
	"bytes"
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"OpenAgent-Loop/internal/result"
)

// HTTPGateway 通过 REST 接口访问远端工具服务器。
// 网络与协议错误被映射为封闭错误码，不会泄漏原始传输错误。
type HTTPGateway struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// HTTPGatewayOption 配置 HTTPGateway。
type HTTPGatewayOption func(*HTTPGateway)

// WithToken 设置随请求发送的 Bearer 令牌。
func WithToken(token string) HTTPGatewayOption {
	return func(g *HTTPGateway) { g.token = token }
}

// WithHTTPClient 替换默认的 HTTP 客户端。
func WithHTTPClient(client *http.Client) HTTPGatewayOption {
	return func(g *HTTPGateway) {
		if client != nil {
			g.httpClient = client
		}
	}
}

// NewHTTPGateway 创建指向远端工具服务器的网关。
func NewHTTPGateway(baseURL string, opts ...HTTPGatewayOption) *HTTPGateway {
	g := &HTTPGateway{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type listToolsResponse struct {
	Tools []ToolDefinition `json:"tools"`
}

type executeToolRequest struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

type executeToolResponse struct {
	Payload    Payload `json:"payload"`
	DurationMS int64   `json:"duration_ms"`
}

type remoteErrorBody struct {
	Error string `json:"error"`
}

// ListTools 实现 Gateway 接口。
func (g *HTTPGateway) ListTools(ctx context.Context) result.Result[[]ToolDefinition] {
	var body listToolsResponse
	if err := g.doJSON(ctx, http.MethodGet, "/api/v1/tools", "", nil, &body); err != nil {
		return result.FailureFrom[[]ToolDefinition](err)
	}
	if body.Tools == nil {
		body.Tools = []ToolDefinition{}
	}
	return result.Success(body.Tools)
}

// ExecuteTool 实现 Gateway 接口。
func (g *HTTPGateway) ExecuteTool(ctx context.Context, call ToolCall) result.Result[ToolExecution] {
	started := time.Now()
	var body executeToolResponse
	err := g.doJSON(ctx, http.MethodPost, "/api/v1/tools/execute", call.Name,
		executeToolRequest{Name: call.Name, Arguments: call.Arguments}, &body)
	if err != nil {
		return result.FailureFrom[ToolExecution](err)
	}
	duration := time.Since(started)
	if body.DurationMS > 0 {
		duration = time.Duration(body.DurationMS) * time.Millisecond
	}
	return result.Success(ToolExecution{
		Call:        call,
		Payload:     body.Payload,
		Duration:    duration,
		CompletedAt: time.Now().Unix(),
	})
}

// ExecuteToolsBatch 实现 Gateway 接口。
func (g *HTTPGateway) ExecuteToolsBatch(ctx context.Context, calls []ToolCall, maxConcurrency int) result.Result[[]ToolExecution] {
	return executeBatch(ctx, g, calls, maxConcurrency)
}

// doJSON 发送请求并解码响应，把传输层与状态码映射为封闭错误码。
func (g *HTTPGateway) doJSON(ctx context.Context, method, path, tool string, payload, out any) *result.ResultError {
	var reqBody *bytes.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return result.WrapError(result.CodeToolInvalidArguments, err, "encode request body",
				result.WithMetadata("tool", tool))
		}
		reqBody = bytes.NewReader(encoded)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reqBody)
	if err != nil {
		return result.WrapError(result.CodeToolExecutionFailed, err, "build request",
			result.WithMetadata("tool", tool))
	}
	req.Header.Set("Content-Type", "application/json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		code := result.CodeToolNetworkFailure
		if stdErrors.Is(err, context.DeadlineExceeded) {
			code = result.CodeToolTimeout
		} else if stdErrors.Is(err, context.Canceled) {
			code = result.CodeRunCancelled
		}
		return result.WrapError(code, err, "tool server unreachable",
			result.WithMetadata("tool", tool))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var remote remoteErrorBody
		_ = json.NewDecoder(resp.Body).Decode(&remote)
		message := remote.Error
		if message == "" {
			message = fmt.Sprintf("tool server returned status %d", resp.StatusCode)
		}
		return result.NewError(statusToCode(resp.StatusCode), message,
			result.WithMetadata("tool", tool),
			result.WithMetadata("status", fmt.Sprintf("%d", resp.StatusCode)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return result.WrapError(result.CodeToolExecutionFailed, err, "decode response body",
				result.WithMetadata("tool", tool))
		}
	}
	return nil
}

// statusToCode 把 HTTP 状态码映射为工具错误码。
func statusToCode(status int) result.Code {
	switch status {
	case http.StatusNotFound:
		return result.CodeToolNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return result.CodeToolInvalidArguments
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return result.CodeToolTimeout
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return result.CodeToolServiceUnavailable
	default:
		return result.CodeToolExecutionFailed
	}
}

var _ Gateway = (*HTTPGateway)(nil)
