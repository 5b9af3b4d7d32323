package openreview

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultBaseURLV1 and DefaultBaseURLV2 are the two API generations;
	// older venues only answer on v1, newer ones on v2, so a run talks
	// to both.
	DefaultBaseURLV1 = "https://api.openreview.net"
	DefaultBaseURLV2 = "https://api2.openreview.net"

	requestTimeout = 30 * time.Second
)

// Credentials is the optional (email, password, token) triple. Any subset
// may be absent; a token wins over email/password.
type Credentials struct {
	Email    string
	Password string
	Token    string
}

// Client is a read-only session against one OpenReview endpoint. It is
// immutable after Connect and safe to reuse across all fetches of a run.
type Client struct {
	baseURL   string
	token     string
	anonymous bool
	http      *http.Client
	logger    *slog.Logger
}

// Connect builds a session for baseURL. A provided token is used directly;
// email+password are exchanged for a token via one login request; any
// authentication failure degrades to anonymous access with a warning.
// Connect never fails the run over credentials.
func Connect(ctx context.Context, baseURL string, creds Credentials, logger *slog.Logger) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: requestTimeout},
		logger:  logger,
	}

	switch {
	case creds.Token != "":
		c.token = creds.Token
	case creds.Email != "" && creds.Password != "":
		token, err := c.login(ctx, creds.Email, creds.Password)
		if err != nil {
			c.warn("authentication failed, falling back to anonymous access",
				"endpoint", c.baseURL, "error", err)
			c.anonymous = true
		} else {
			c.token = token
		}
	default:
		c.anonymous = true
	}

	return c
}

// BaseURL returns the endpoint this client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Anonymous reports whether the session carries no credentials, either by
// configuration or after an auth fallback.
func (c *Client) Anonymous() bool {
	return c.anonymous
}

func (c *Client) login(ctx context.Context, email, password string) (string, error) {
	body, err := json.Marshal(map[string]string{"id": email, "password": password})
	if err != nil {
		return "", fmt.Errorf("marshal login payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/login", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(payload))}
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	if out.Token == "" {
		return "", fmt.Errorf("login response carried no token")
	}
	return out.Token, nil
}

// getJSON issues an authenticated GET and decodes the JSON body into v.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, v any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(payload))}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) warn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}

// StatusError is a non-2xx response from the remote API.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("openreview returned status %d", e.Status)
	}
	return fmt.Sprintf("openreview returned status %d: %s", e.Status, e.Body)
}

// IsTransient classifies errors worth retrying: timeouts, connection
// failures, rate limits and server-side errors. Client-side 4xx (other
// than 429) and malformed responses are not retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status == http.StatusTooManyRequests || statusErr.Status >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
