package openagent

import (
	"bytes"
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sync"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. It is intentionally short to avoid hanging network calls.
const DefaultHTTPTimeout = 15 * time.Second

// DefaultPollInterval is the delay between status polls in WaitRun.
const DefaultPollInterval = 500 * time.Millisecond

// Client wraps the HTTP interactions with the OpenAgent REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

// ExecuteRequest is the payload for a synchronous orchestration call.
type ExecuteRequest struct {
	Input     string `json:"input"`
	SessionID string `json:"session_id,omitempty"`
}

// AgentResponse is the user-facing outcome of an orchestration.
type AgentResponse struct {
	Content  string            `json:"content"`
	Type     string            `json:"type"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// RunSubmission represents the payload required to enqueue a new run.
type RunSubmission struct {
	ID        string            `json:"id,omitempty"`
	Input     string            `json:"input"`
	SessionID string            `json:"session_id,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Run describes the state of an asynchronous run.
type Run struct {
	ID         string            `json:"id"`
	Input      string            `json:"input"`
	SessionID  string            `json:"session_id,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Status     string            `json:"status"`
	Attempts   int               `json:"attempts"`
	MaxRetries int               `json:"max_retries"`
	LastError  string            `json:"last_error,omitempty"`
	ErrorCode  string            `json:"error_code,omitempty"`
	Response   *AgentResponse    `json:"response,omitempty"`
	CreatedAt  int64             `json:"created_at"`
	UpdatedAt  int64             `json:"updated_at"`
}

// Session describes an archived orchestration session.
type Session struct {
	ID         string `json:"id"`
	Input      string `json:"input"`
	Stage      string `json:"stage"`
	Iterations int    `json:"iterations"`
	CreatedAt  int64  `json:"created_at"`
	UpdatedAt  int64  `json:"updated_at"`
}

// SessionAnalytics aggregates execution statistics for one session.
type SessionAnalytics struct {
	Summary struct {
		Total         int     `json:"total"`
		Succeeded     int     `json:"succeeded"`
		Failed        int     `json:"failed"`
		SuccessRate   float64 `json:"success_rate"`
		TotalDuration float64 `json:"total_duration"`
		MeanDuration  float64 `json:"mean_duration"`
	} `json:"summary"`
	Overall   DurationStats   `json:"overall"`
	Durations []DurationStats `json:"durations,omitempty"`
	Errors    struct {
		Total          int            `json:"total"`
		ByCode         map[string]int `json:"by_code,omitempty"`
		ByCategory     map[string]int `json:"by_category,omitempty"`
		Retryable      int            `json:"retryable"`
		Permanent      int            `json:"permanent"`
		ByTool         map[string]int `json:"by_tool,omitempty"`
		ErrorRate      float64        `json:"error_rate"`
		MostCommonCode string         `json:"most_common_code,omitempty"`
	} `json:"errors"`
}

// DurationStats mirrors the server side duration aggregate. An empty
// Tool marks the overall distribution across every tool.
type DurationStats struct {
	Tool   string  `json:"tool,omitempty"`
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"std_dev"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("openagent api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the OpenAgent API. When httpClient is
// nil, a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// SetToken stores the bearer token attached to subsequent requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token returns the currently stored bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Execute performs a synchronous orchestration and returns the agent response.
// Failed orchestrations still carry a structured response describing the error.
func (c *Client) Execute(ctx context.Context, req ExecuteRequest) (AgentResponse, error) {
	var response AgentResponse
	if err := c.post(ctx, "/api/v1/agent/execute", req, &response); err != nil {
		var apiErr *APIError
		if stdErrors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnprocessableEntity {
			if decodeErr := json.Unmarshal([]byte(apiErr.Message), &response); decodeErr == nil {
				return response, nil
			}
		}
		return AgentResponse{}, err
	}
	return response, nil
}

// SubmitRun enqueues a new asynchronous run.
func (c *Client) SubmitRun(ctx context.Context, submission RunSubmission) (Run, error) {
	var created Run
	if err := c.post(ctx, "/api/v1/runs", submission, &created); err != nil {
		return Run{}, err
	}
	return created, nil
}

// GetRun fetches run details by identifier.
func (c *Client) GetRun(ctx context.Context, runID string) (Run, error) {
	var detail Run
	if err := c.get(ctx, "/api/v1/runs/"+url.PathEscape(runID), &detail); err != nil {
		return Run{}, err
	}
	return detail, nil
}

// WaitRun polls a run until it reaches a terminal status or the context ends.
func (c *Client) WaitRun(ctx context.Context, runID string, interval time.Duration) (Run, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		detail, err := c.GetRun(ctx, runID)
		if err != nil {
			return Run{}, err
		}
		if detail.Status == "succeeded" || detail.Status == "failed" {
			return detail, nil
		}
		select {
		case <-ctx.Done():
			return Run{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// GetSession fetches an archived session by identifier.
func (c *Client) GetSession(ctx context.Context, sessionID string) (Session, error) {
	var session Session
	if err := c.get(ctx, "/api/v1/sessions/"+url.PathEscape(sessionID), &session); err != nil {
		return Session{}, err
	}
	return session, nil
}

// SessionAnalytics returns execution statistics for one session.
func (c *Client) SessionAnalytics(ctx context.Context, sessionID string) (SessionAnalytics, error) {
	var analytics SessionAnalytics
	endpoint := "/api/v1/sessions/" + url.PathEscape(sessionID) + "/analytics"
	if err := c.get(ctx, endpoint, &analytics); err != nil {
		return SessionAnalytics{}, err
	}
	return analytics, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint)}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(bytes.TrimSpace(data)),
		}
	}

	if out == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
