package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultEndpoint is the OpenAI-compatible chat completions URL.
const DefaultEndpoint = "https://api.openai.com/v1/chat/completions"

// ChatConfig defines how to contact the completion API.
type ChatConfig struct {
	Endpoint    string
	Model       string
	APIKey      string
	MaxTokens   int
	Temperature float64
}

// ChatClient issues single chat-completion calls against an
// OpenAI-compatible endpoint.
type ChatClient struct {
	cfg  ChatConfig
	http *http.Client
}

// NewChatClient builds a client from configuration.
func NewChatClient(cfg ChatConfig) *ChatClient {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 500
	}
	return &ChatClient{
		cfg:  cfg,
		http: &http.Client{Timeout: 60 * time.Second},
	}
}

// Complete sends one system+user exchange and returns the assistant text.
func (c *ChatClient) Complete(ctx context.Context, system, user string) (string, error) {
	if c.cfg.APIKey == "" || c.cfg.Model == "" {
		return "", fmt.Errorf("chat client misconfigured")
	}

	body, err := json.Marshal(map[string]any{
		"model": c.cfg.Model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
		"temperature": c.cfg.Temperature,
		"max_tokens":  c.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal completion payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(payload))}
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("completion response carried no choices")
	}
	return out.Choices[0].Message.Content, nil
}

// APIError is a non-2xx answer from the completion endpoint.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("completion api returned status %d", e.Status)
	}
	return fmt.Sprintf("completion api returned status %d: %s", e.Status, e.Body)
}

// isTransient marks rate limits, server errors and network failures as
// retryable transport faults.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
