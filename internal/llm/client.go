// Package llm talks to an OpenAI-compatible chat-completions endpoint and
// turns its JSON answers into daily comments, reports and check-in
// questions.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/valyala/fasthttp"

	"dolphinpod/internal/apperr"
	"dolphinpod/internal/metrics"
)

// Completer sends one system/user exchange and returns the assistant text.
// kind labels the call in metrics and logs.
type Completer interface {
	Complete(ctx context.Context, kind, system, user string) (string, error)
}

// ProviderError is a non-2xx answer from the provider. It is kept as the
// cause of an upstream apperr and never shown to clients.
type ProviderError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("llm provider: %d %s: %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("llm provider: %d: %s", e.StatusCode, e.Message)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Temperature    float64         `json:"temperature"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type ClientConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// Client calls {BaseURL}/chat/completions with JSON output requested.
type Client struct {
	cfg  ClientConfig
	http *fasthttp.Client
}

func NewClient(cfg ClientConfig) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg: cfg,
		http: &fasthttp.Client{
			Name:                "dolphinpod",
			MaxResponseBodySize: 4 << 20,
		},
	}
}

func (c *Client) Complete(ctx context.Context, kind, system, user string) (string, error) {
	if c.cfg.APIKey == "" {
		return "", apperr.Internal(errors.New("llm api key is not configured"))
	}

	body, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Temperature: c.cfg.Temperature,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return "", apperr.Internal(fmt.Errorf("encode chat request: %w", err))
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.cfg.BaseURL + "/chat/completions")
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.SetBody(body)

	timeout := c.cfg.Timeout
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) < timeout {
		timeout = time.Until(dl)
	}

	start := time.Now()
	err = c.http.DoTimeout(req, resp, timeout)
	metrics.LLMRequestDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.LLMRequests.WithLabelValues(kind, "network_error").Inc()
		return "", apperr.Upstream(apperr.CategoryLLMNetwork, fmt.Errorf("%s: %w", kind, err))
	}

	status := resp.StatusCode()
	if status < 200 || status > 299 {
		metrics.LLMRequests.WithLabelValues(kind, "api_error").Inc()
		return "", apperr.Upstream(apperr.CategoryLLMAPI, readProviderError(status, resp.Body()))
	}

	content := gjson.GetBytes(resp.Body(), "choices.0.message.content")
	if !content.Exists() {
		metrics.LLMRequests.WithLabelValues(kind, "invalid_output").Inc()
		return "", apperr.Upstream(apperr.CategoryLLMOutput, errors.New("response has no choices"))
	}
	metrics.LLMRequests.WithLabelValues(kind, "ok").Inc()
	return strings.TrimSpace(content.String()), nil
}

func readProviderError(status int, body []byte) error {
	if len(body) > 4096 {
		body = body[:4096]
	}
	msg := gjson.GetBytes(body, "error.message")
	if msg.Exists() && msg.String() != "" {
		return &ProviderError{
			StatusCode: status,
			Type:       gjson.GetBytes(body, "error.type").String(),
			Message:    msg.String(),
		}
	}
	return &ProviderError{StatusCode: status, Message: string(body)}
}

// ExtractJSON returns the JSON object in text. Models sometimes wrap the
// object in prose or code fences, so when text as a whole is not valid
// JSON the span from the first '{' to the last '}' is tried.
func ExtractJSON(text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if gjson.Valid(text) && gjson.Parse(text).IsObject() {
		return []byte(text), nil
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start != -1 && end > start {
		candidate := text[start : end+1]
		if gjson.Valid(candidate) {
			return []byte(candidate), nil
		}
	}
	return nil, apperr.Upstream(apperr.CategoryLLMOutput, fmt.Errorf("non-json model output: %.200q", text))
}
