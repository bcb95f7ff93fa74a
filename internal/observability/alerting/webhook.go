package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// HTTPWebhookSender 通过 HTTP POST 把告警负载发送到配置的地址。
type HTTPWebhookSender struct {
	url    string
	client *http.Client
}

// NewHTTPWebhookSender 构造 Webhook 发送器。
func NewHTTPWebhookSender(url string, client *http.Client) (*HTTPWebhookSender, error) {
	if url == "" {
		return nil, errors.New("webhook url cannot be empty")
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPWebhookSender{url: url, client: client}, nil
}

// Send 实现 WebhookSender 接口。
func (s *HTTPWebhookSender) Send(ctx context.Context, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook responded with status %d", resp.StatusCode)
	}
	return nil
}
