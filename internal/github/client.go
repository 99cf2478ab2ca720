// Package github is a small GitHub REST client covering what triage needs:
// reading issues, searching for duplicate candidates and writing labels and
// comments back.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public GitHub API
const DefaultBaseURL = "https://api.github.com"

var (
	// ErrNotFound is returned for a 404 (missing repo or issue)
	ErrNotFound = errors.New("not found")

	// ErrRateLimited is returned for a 403 or 429
	ErrRateLimited = errors.New("GitHub API rate limit exceeded")
)

// APIError is a non-2xx response
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
	hint       string
	sentinel   error
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("GitHub API %s %s: %d", e.Method, e.Path, e.StatusCode)
	if e.Message != "" {
		msg += " " + e.Message
	}
	if e.hint != "" {
		msg += " (" + e.hint + ")"
	}
	return msg
}

// Unwrap lets errors.Is match ErrNotFound and ErrRateLimited
func (e *APIError) Unwrap() error {
	return e.sentinel
}

// Config holds client configuration
type Config struct {
	Token             string        // optional; unauthenticated requests get a much lower rate limit
	BaseURL           string        // default: DefaultBaseURL
	Timeout           time.Duration // per request (default: 10s)
	RequestsPerSecond float64       // client-side limit (default: 5)
	Burst             int           // default: 5
	UserAgent         string
}

// DefaultConfig returns the default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL:           DefaultBaseURL,
		Timeout:           10 * time.Second,
		RequestsPerSecond: 5,
		Burst:             5,
		UserAgent:         "triage/1.0",
	}
}

// Client talks to the GitHub REST API. It is safe for concurrent use.
type Client struct {
	baseURL    string
	token      string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a client. Zero fields in cfg take DefaultConfig values.
func NewClient(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = def.RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		userAgent:  cfg.UserAgent,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
	}
}

// do sends one request and decodes a JSON response into out (when non-nil)
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("GitHub API %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if remaining := resp.Header.Get("X-RateLimit-Remaining"); remaining == "0" {
		log.Printf("[GITHUB] [WARN] rate limit exhausted (reset at %s)", resp.Header.Get("X-RateLimit-Reset"))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.apiError(resp, method, path)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode GitHub response for %s: %w", path, err)
	}
	return nil
}

func (c *Client) apiError(resp *http.Response, method, path string) error {
	var payload struct {
		Message string `json:"message"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(data, &payload)

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Method:     method,
		Path:       path,
		Message:    payload.Message,
	}
	switch resp.StatusCode {
	case http.StatusNotFound:
		apiErr.sentinel = ErrNotFound
	case http.StatusForbidden, http.StatusTooManyRequests:
		apiErr.sentinel = ErrRateLimited
		if c.token == "" {
			apiErr.hint = "set GITHUB_TOKEN to raise the limit"
		}
	}
	return apiErr
}
