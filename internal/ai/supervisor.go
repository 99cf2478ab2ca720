// Package ai wraps the language model calls used by triage: fact
// extraction, search keyword generation and duplicate verification.
package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/sync/semaphore"

	"github.com/steveyegge/triage/internal/retry"
)

const (
	// ModelSonnet is used for extraction and verification
	ModelSonnet = "claude-sonnet-4-5-20250929"

	// ModelHaiku is enough for keyword generation
	ModelHaiku = "claude-3-5-haiku-20241022"
)

// GetDefaultModel returns the model for extraction and verification,
// checking TRIAGE_MODEL first
func GetDefaultModel() string {
	if model := os.Getenv("TRIAGE_MODEL"); model != "" {
		return model
	}
	return ModelSonnet
}

// GetSimpleTaskModel returns the model for keyword generation, checking
// TRIAGE_MODEL_SIMPLE first
func GetSimpleTaskModel() string {
	if model := os.Getenv("TRIAGE_MODEL_SIMPLE"); model != "" {
		return model
	}
	return ModelHaiku
}

// Request is a single-turn prompt
type Request struct {
	Model     string
	MaxTokens int
	Prompt    string
}

// Completion is the text of a model response plus token usage
type Completion struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
}

// Completer sends one prompt to a model. Implementations make exactly one
// attempt; retries are owned by the caller.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Completion, error)
}

type anthropicCompleter struct {
	client *anthropic.Client
}

// NewAnthropicCompleter returns a Completer backed by the Anthropic
// Messages API
func NewAnthropicCompleter(apiKey string) Completer {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &anthropicCompleter{client: &client}
}

func (c *anthropicCompleter) Complete(ctx context.Context, req Request) (*Completion, error) {
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	})
	if err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return &Completion{
		Text:         text.String(),
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}

// Config holds supervisor configuration
type Config struct {
	APIKey      string // if empty, reads ANTHROPIC_API_KEY
	Model       string // default: GetDefaultModel()
	SimpleModel string // default: GetSimpleTaskModel()
	MaxTokens   int    // default: 2048

	Timeout            time.Duration // per call (default: 60s)
	MaxConcurrentCalls int           // 0 = unlimited (default: 3)

	// Circuit breaker
	FailureThreshold int           // default: 5
	SuccessThreshold int           // default: 2
	OpenTimeout      time.Duration // default: 30s

	// Completer replaces the Anthropic client, mainly for tests
	Completer Completer
}

// DefaultConfig returns the default supervisor configuration
func DefaultConfig() Config {
	return Config{
		Model:              GetDefaultModel(),
		SimpleModel:        GetSimpleTaskModel(),
		MaxTokens:          2048,
		Timeout:            60 * time.Second,
		MaxConcurrentCalls: 3,
		FailureThreshold:   5,
		SuccessThreshold:   2,
		OpenTimeout:        30 * time.Second,
	}
}

// Supervisor makes model calls through a circuit breaker and a concurrency
// limit. Each call is a single attempt; errors that cannot succeed on a
// retry are marked retry.Permanent so the caller's retry loop stops early.
type Supervisor struct {
	completer      Completer
	model          string
	simpleModel    string
	maxTokens      int
	timeout        time.Duration
	circuitBreaker *retry.CircuitBreaker
	concurrencySem *semaphore.Weighted
}

// NewSupervisor creates a new AI supervisor. Zero fields in cfg take the
// DefaultConfig values.
func NewSupervisor(cfg *Config) (*Supervisor, error) {
	defaults := DefaultConfig()
	if cfg == nil {
		cfg = &defaults
	}

	completer := cfg.Completer
	if completer == nil {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
			if apiKey == "" {
				return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
			}
		}
		completer = NewAnthropicCompleter(apiKey)
	}

	s := &Supervisor{
		completer:   completer,
		model:       orDefault(cfg.Model, defaults.Model),
		simpleModel: orDefault(cfg.SimpleModel, defaults.SimpleModel),
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
	}
	if s.maxTokens <= 0 {
		s.maxTokens = defaults.MaxTokens
	}
	if s.timeout <= 0 {
		s.timeout = defaults.Timeout
	}

	failures, successes, openTimeout := cfg.FailureThreshold, cfg.SuccessThreshold, cfg.OpenTimeout
	if failures <= 0 {
		failures = defaults.FailureThreshold
	}
	if successes <= 0 {
		successes = defaults.SuccessThreshold
	}
	if openTimeout <= 0 {
		openTimeout = defaults.OpenTimeout
	}
	s.circuitBreaker = retry.NewCircuitBreaker("ai", failures, successes, openTimeout)

	if cfg.MaxConcurrentCalls > 0 {
		s.concurrencySem = semaphore.NewWeighted(int64(cfg.MaxConcurrentCalls))
	}
	return s, nil
}

// HealthCheck fails while the circuit breaker is open
func (s *Supervisor) HealthCheck(ctx context.Context) error {
	if state, failures, _ := s.circuitBreaker.Metrics(); state == retry.CircuitOpen {
		return fmt.Errorf("AI supervisor unavailable: %w (failures=%d)", retry.ErrCircuitOpen, failures)
	}
	return ctx.Err()
}

// BreakerState exposes the circuit breaker state for status output
func (s *Supervisor) BreakerState() retry.CircuitState {
	return s.circuitBreaker.State()
}

// CallAI sends prompt to model (the default model when empty) and returns
// the response text
func (s *Supervisor) CallAI(ctx context.Context, prompt, operation, model string, maxTokens int) (string, error) {
	if model == "" {
		model = s.model
	}
	if maxTokens <= 0 {
		maxTokens = s.maxTokens
	}

	if s.concurrencySem != nil {
		if err := s.concurrencySem.Acquire(ctx, 1); err != nil {
			return "", fmt.Errorf("failed to acquire AI call slot: %w", err)
		}
		defer s.concurrencySem.Release(1)
	}

	start := time.Now()
	policy := retry.Policy{MaxRetries: 0, Timeout: s.timeout}
	resp, _, err := retry.DoValue(ctx, policy, "AI "+operation, func(ctx context.Context) (*Completion, error) {
		return s.completer.Complete(ctx, Request{Model: model, MaxTokens: maxTokens, Prompt: prompt})
	}, retry.WithBreaker(s.circuitBreaker), retry.WithClassifier(isRetriableError))
	if err != nil {
		if !isRetriableError(err) && !errors.Is(err, retry.ErrCircuitOpen) {
			return "", retry.Permanent(fmt.Errorf("anthropic API call failed: %w", err))
		}
		return "", fmt.Errorf("anthropic API call failed: %w", err)
	}

	log.Printf("[AI] %s call: input=%d tokens, output=%d tokens, duration=%v",
		operation, resp.InputTokens, resp.OutputTokens, time.Since(start).Round(time.Millisecond))
	return resp.Text, nil
}

// isRetriableError reports whether err is transient: timeouts, rate limits,
// server errors and network failures. Anything else (bad request,
// authentication) fails the same way every time.
func isRetriableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}

	errStr := strings.ToLower(err.Error())
	for _, marker := range []string{
		"429", "rate limit",
		"500", "502", "503", "504", "529",
		"internal server error", "bad gateway", "service unavailable", "gateway timeout", "overloaded",
		"connection refused", "connection reset", "broken pipe", "no such host", "timeout", "eof",
	} {
		if strings.Contains(errStr, marker) {
			return true
		}
	}
	return false
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
