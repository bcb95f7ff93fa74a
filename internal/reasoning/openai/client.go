package openai

import (
	"bytes"
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"OpenAgent-Loop/internal/reasoning"
	"OpenAgent-Loop/internal/result"
	"OpenAgent-Loop/internal/tools"
)

const (
	defaultBaseURL   = "https://api.openai.com/v1"
	defaultModelName = "gpt-4o-mini"
	defaultTimeout   = 60 * time.Second
)

// Config 描述了调用 OpenAI Chat Completions API 所需的信息。
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client 通过 OpenAI Chat Completions API 提供推理能力。
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewClient 根据配置创建 OpenAI 客户端。
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, stdErrors.New("openai api key is required")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModelName
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

const intentSystemPrompt = "" +
	"You classify developer requests for an agent orchestration engine. " +
	"Respond with a compact JSON object: {\"type\": string, \"confidence\": string, \"summary\": string}. " +
	"type is one of analyze-code, create-branch, run-tests, generate-docs, refactor, " +
	"find-bugs, optimize-performance, security-scan, other. " +
	"confidence is low, medium or high."

// AnalyzeIntent 实现 reasoning.Client 接口。
func (c *Client) AnalyzeIntent(ctx context.Context, input string) result.Result[reasoning.UserIntent] {
	content, resultErr := c.complete(ctx, intentSystemPrompt, input)
	if resultErr != nil {
		return result.FailureFrom[reasoning.UserIntent](resultErr.WithMeta("stage", "intent"))
	}

	var decoded struct {
		Type       string `json:"type"`
		Confidence string `json:"confidence"`
		Summary    string `json:"summary"`
	}
	if err := json.Unmarshal([]byte(content), &decoded); err != nil {
		return result.Failure[reasoning.UserIntent](result.CodeLLMIntentFailure,
			"model returned unparseable intent",
			result.WithMetadata("cause", err.Error()))
	}

	intent := reasoning.UserIntent{
		Type:         reasoning.NormalizeIntent(decoded.Type),
		Confidence:   normalizeConfidence(decoded.Confidence),
		Summary:      strings.TrimSpace(decoded.Summary),
		OriginalText: input,
	}
	return result.Success(intent)
}

const stepSystemPrompt = "" +
	"You drive the tool loop of an agent orchestration engine. " +
	"Given the user goal, the tool catalog and the executions so far, respond with a compact " +
	"JSON object. Either {\"action\": \"tool_call\", \"name\": string, \"arguments\": object, \"reason\": string} " +
	"to propose the next call, or {\"action\": \"complete\", \"reason\": string} when enough " +
	"information has been gathered. Only propose tools present in the catalog."

// DecideNextStep 实现 reasoning.Client 接口。
func (c *Client) DecideNextStep(ctx context.Context, step reasoning.StepContext) result.Result[reasoning.Decision] {
	prompt, err := buildStepPrompt(step)
	if err != nil {
		return result.Failure[reasoning.Decision](result.CodeLLMStepFailure,
			"failed to encode step context",
			result.WithMetadata("cause", err.Error()))
	}

	content, resultErr := c.complete(ctx, stepSystemPrompt, prompt)
	if resultErr != nil {
		return result.FailureFrom[reasoning.Decision](resultErr.WithMeta("stage", "step"))
	}

	var decoded struct {
		Action    string         `json:"action"`
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
		Reason    string         `json:"reason"`
	}
	if err := json.Unmarshal([]byte(content), &decoded); err != nil {
		return result.Failure[reasoning.Decision](result.CodeLLMStepFailure,
			"model returned unparseable decision",
			result.WithMetadata("cause", err.Error()))
	}

	switch decoded.Action {
	case "complete":
		return result.Success(reasoning.Decision{Complete: true, Reason: decoded.Reason})
	case "tool_call":
		if strings.TrimSpace(decoded.Name) == "" {
			return result.Failure[reasoning.Decision](result.CodeLLMStepFailure,
				"tool_call decision is missing a tool name")
		}
		return result.Success(reasoning.Decision{
			Call:   tools.ToolCall{Name: decoded.Name, Arguments: decoded.Arguments},
			Reason: decoded.Reason,
		})
	default:
		return result.Failure[reasoning.Decision](result.CodeLLMStepFailure,
			fmt.Sprintf("model returned unknown action %q", decoded.Action))
	}
}

const synthesisSystemPrompt = "" +
	"You summarise tool results for a developer. Given the user goal and the outputs of the " +
	"tools that ran, produce a single clear plain-text answer. Do not invent results that " +
	"the tools did not return."

// Synthesize 实现 reasoning.Client 接口。
func (c *Client) Synthesize(ctx context.Context, intent reasoning.UserIntent, input string, executions []tools.ToolExecution) result.Result[string] {
	prompt := buildSynthesisPrompt(intent, input, executions)
	content, resultErr := c.complete(ctx, synthesisSystemPrompt, prompt)
	if resultErr != nil {
		return result.FailureFrom[string](resultErr.WithMeta("stage", "synthesis"))
	}
	if strings.TrimSpace(content) == "" {
		return result.Failure[string](result.CodeLLMSynthesisFailure, "model returned an empty answer")
	}
	return result.Success(content)
}

// complete 执行一次对话补全，错误映射为 LLM 族错误码。
func (c *Client) complete(ctx context.Context, system, user string) (string, *result.ResultError) {
	body := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
		"temperature": 0.2,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", result.WrapError(result.CodeLLMStepFailure, err, "encode completion request")
	}

	endpoint := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", result.WrapError(result.CodeLLMStepFailure, err, "build completion request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		code := result.CodeLLMServiceUnavailable
		if stdErrors.Is(err, context.DeadlineExceeded) {
			code = result.CodeLLMTimeout
		} else if stdErrors.Is(err, context.Canceled) {
			code = result.CodeRunCancelled
		}
		return "", result.WrapError(code, err, "model endpoint unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		code := result.CodeLLMServiceUnavailable
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			code = result.CodeLLMRateLimited
		case resp.StatusCode == http.StatusRequestTimeout:
			code = result.CodeLLMTimeout
		case resp.StatusCode < http.StatusInternalServerError:
			code = result.CodeLLMStepFailure
		}
		return "", result.NewError(code,
			fmt.Sprintf("model endpoint returned status %d", resp.StatusCode),
			result.WithMetadata("body", strings.TrimSpace(string(snippet))))
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", result.WrapError(result.CodeLLMStepFailure, err, "decode completion response")
	}
	if len(decoded.Choices) == 0 {
		return "", result.NewError(result.CodeLLMStepFailure, "completion response has no choices")
	}

	content := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if content == "" {
		return "", result.NewError(result.CodeLLMStepFailure, "completion response is empty")
	}
	return content, nil
}

func normalizeConfidence(raw string) reasoning.Confidence {
	switch reasoning.Confidence(strings.ToLower(strings.TrimSpace(raw))) {
	case reasoning.ConfidenceHigh:
		return reasoning.ConfidenceHigh
	case reasoning.ConfidenceMedium:
		return reasoning.ConfidenceMedium
	default:
		return reasoning.ConfidenceLow
	}
}

func buildStepPrompt(step reasoning.StepContext) (string, error) {
	var builder strings.Builder
	builder.WriteString("## 用户目标\n")
	builder.WriteString(fmt.Sprintf("意图: %s (%s)\n", step.Intent.Type, step.Intent.Confidence))
	builder.WriteString(fmt.Sprintf("输入: %s\n", strings.TrimSpace(step.Input)))
	builder.WriteString(fmt.Sprintf("当前迭代: %d\n", step.Iteration))

	builder.WriteString("\n## 工具目录\n")
	catalog, err := json.Marshal(step.Catalog)
	if err != nil {
		return "", err
	}
	builder.Write(catalog)
	builder.WriteString("\n")

	if len(step.Completed) > 0 {
		builder.WriteString("\n## 已完成的调用\n")
		for idx, execution := range step.Completed {
			builder.WriteString(fmt.Sprintf("[%d] %s: %s\n",
				idx+1, execution.Call.Name, truncate(execution.Payload.AsText())))
		}
	}

	if len(step.Failed) > 0 {
		builder.WriteString("\n## 失败的调用\n")
		for idx, failed := range step.Failed {
			builder.WriteString(fmt.Sprintf("[%d] %s\n", idx+1, failed.Error()))
		}
	}

	if len(step.Blocked) > 0 {
		builder.WriteString("\n## 被策略拦截的调用\n")
		for idx, blocked := range step.Blocked {
			builder.WriteString(fmt.Sprintf("[%d] %s\n", idx+1, blocked.Error()))
		}
	}

	builder.WriteString("\n请决定下一步动作。")
	return builder.String(), nil
}

func buildSynthesisPrompt(intent reasoning.UserIntent, input string, executions []tools.ToolExecution) string {
	var builder strings.Builder
	builder.WriteString("## 用户目标\n")
	builder.WriteString(fmt.Sprintf("意图: %s\n", intent.Type))
	builder.WriteString(fmt.Sprintf("输入: %s\n", strings.TrimSpace(input)))

	builder.WriteString("\n## 工具结果\n")
	for idx, execution := range executions {
		builder.WriteString(fmt.Sprintf("[%d] %s: %s\n",
			idx+1, execution.Call.Name, truncate(execution.Payload.AsText())))
	}

	builder.WriteString("\n请基于上述结果给出最终回答。")
	return builder.String()
}

func truncate(text string) string {
	text = strings.TrimSpace(text)
	if len([]rune(text)) > 400 {
		return string([]rune(text)[:400]) + "..."
	}
	return text
}

var _ reasoning.Client = (*Client)(nil)
