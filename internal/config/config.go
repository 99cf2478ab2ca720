// Package config assembles the runtime configuration for the triage binary
// from defaults and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/steveyegge/triage/internal/deduplication"
	"github.com/steveyegge/triage/internal/effector"
	"github.com/steveyegge/triage/internal/github"
	"github.com/steveyegge/triage/internal/storage"
	"github.com/steveyegge/triage/internal/triage"
)

// Config holds everything the CLI wires together
type Config struct {
	Cache  storage.Config
	Triage triage.Config
	Dedup  deduplication.Config

	// RulesPath is the rule document; empty means search the working
	// directory and fall back to the bundled rules (see FindRulesFile)
	RulesPath string

	GitHubToken    string
	GitHubBaseURL  string
	CandidateLimit int // duplicate candidates fetched per item

	AnthropicAPIKey string
	AIConcurrency   int // concurrent model calls

	KafkaBrokers []string
	KafkaTopic   string

	// BeadsDB is the Beads database; empty means discover .beads/*.db
	BeadsDB string
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		Cache:          *storage.DefaultConfig(),
		Triage:         triage.DefaultConfig(),
		Dedup:          deduplication.DefaultConfig(),
		GitHubBaseURL:  github.DefaultBaseURL,
		CandidateLimit: github.DefaultCandidateLimit,
		AIConcurrency:  3,
	}
}

// Validate checks every section
func (c Config) Validate() error {
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("invalid cache config: %w", err)
	}
	if err := c.Triage.Validate(); err != nil {
		return fmt.Errorf("invalid triage config: %w", err)
	}
	if err := c.Dedup.Validate(); err != nil {
		return fmt.Errorf("invalid dedup config: %w", err)
	}
	if c.CandidateLimit < 1 || c.CandidateLimit > 100 {
		return fmt.Errorf("candidate_limit must be between 1 and 100 (got %d)", c.CandidateLimit)
	}
	if c.AIConcurrency < 0 {
		return fmt.Errorf("ai_concurrency cannot be negative (got %d)", c.AIConcurrency)
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return fmt.Errorf("kafka topic is required when brokers are set")
	}
	return nil
}

// String returns a human-readable representation with secrets masked
func (c Config) String() string {
	return fmt.Sprintf(
		"Config{Cache: %s, Rules: %q, Concurrency: %d, Retries: %d, Dedup: %s, GitHubToken: %s, AnthropicKey: %s, Kafka: %v, Beads: %q}",
		c.Cache.Backend, c.RulesPath, c.Triage.Concurrency, c.Triage.Retry.MaxRetries, c.Dedup,
		mask(c.GitHubToken), mask(c.AnthropicAPIKey), c.KafkaBrokers, c.BeadsDB,
	)
}

// LoadFromEnv creates a Config from environment variables, falling back to
// defaults
//
// Environment variables:
//   - TRIAGE_CACHE_BACKEND: file, sqlite, postgres or memory (default: file)
//   - TRIAGE_CACHE_PATH: cache file or sqlite database path
//   - TRIAGE_CACHE_DSN: postgres connection string
//   - TRIAGE_REQUIRE_CACHE: fail instead of degrading on cache errors (default: false)
//   - TRIAGE_RULES: rule document path
//   - TRIAGE_CONCURRENCY: items in flight during a batch (default: 1)
//   - TRIAGE_MAX_RETRIES: retries per collaborator call (default: 3)
//   - TRIAGE_INITIAL_BACKOFF, TRIAGE_MAX_BACKOFF, TRIAGE_ATTEMPT_TIMEOUT: durations
//   - TRIAGE_DEDUP_*: see deduplication.ConfigFromEnv
//   - TRIAGE_CANDIDATE_LIMIT: duplicate candidates per item (default: 5)
//   - TRIAGE_AI_CONCURRENCY: concurrent model calls, 0 for unlimited (default: 3)
//   - TRIAGE_KAFKA_BROKERS: comma-separated broker list
//   - TRIAGE_KAFKA_TOPIC: decision topic (default: triage.decisions when brokers are set)
//   - TRIAGE_BEADS_DB: Beads database path
//   - GITHUB_TOKEN, GITHUB_API_URL, ANTHROPIC_API_KEY
//
// Returns an error if any environment variable has an invalid value.
func LoadFromEnv() (Config, error) {
	cfg := DefaultConfig()

	dedup, err := deduplication.ConfigFromEnv()
	if err != nil {
		return cfg, err
	}
	cfg.Dedup = dedup
	cfg.Triage.FailOpen = dedup.FailOpen

	parseEnvString("TRIAGE_CACHE_BACKEND", &cfg.Cache.Backend)
	parseEnvString("TRIAGE_CACHE_PATH", &cfg.Cache.Path)
	parseEnvString("TRIAGE_CACHE_DSN", &cfg.Cache.DSN)
	parseEnvString("TRIAGE_RULES", &cfg.RulesPath)
	parseEnvString("TRIAGE_BEADS_DB", &cfg.BeadsDB)
	parseEnvString("TRIAGE_KAFKA_TOPIC", &cfg.KafkaTopic)
	parseEnvString("GITHUB_TOKEN", &cfg.GitHubToken)
	parseEnvString("GITHUB_API_URL", &cfg.GitHubBaseURL)
	parseEnvString("ANTHROPIC_API_KEY", &cfg.AnthropicAPIKey)

	// sqlite has its own default path
	if strings.EqualFold(cfg.Cache.Backend, storage.BackendSQLite) && os.Getenv("TRIAGE_CACHE_PATH") == "" {
		cfg.Cache.Path = storage.DefaultSQLitePath
	}

	if brokers := os.Getenv("TRIAGE_KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
		if cfg.KafkaTopic == "" {
			cfg.KafkaTopic = effector.DefaultDecisionTopic
		}
	}

	if err := parseEnvBool("TRIAGE_REQUIRE_CACHE", &cfg.Cache.Require); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("TRIAGE_CONCURRENCY", &cfg.Triage.Concurrency); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("TRIAGE_MAX_RETRIES", &cfg.Triage.Retry.MaxRetries); err != nil {
		return cfg, err
	}
	if err := parseEnvDuration("TRIAGE_INITIAL_BACKOFF", &cfg.Triage.Retry.InitialBackoff); err != nil {
		return cfg, err
	}
	if err := parseEnvDuration("TRIAGE_MAX_BACKOFF", &cfg.Triage.Retry.MaxBackoff); err != nil {
		return cfg, err
	}
	if err := parseEnvDuration("TRIAGE_ATTEMPT_TIMEOUT", &cfg.Triage.Retry.Timeout); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("TRIAGE_CANDIDATE_LIMIT", &cfg.CandidateLimit); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("TRIAGE_AI_CONCURRENCY", &cfg.AIConcurrency); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration from environment: %w", err)
	}
	return cfg, nil
}

func mask(secret string) string {
	if secret == "" {
		return "(unset)"
	}
	return "***"
}

// parseEnvInt parses an int from an environment variable
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvBool parses a bool from an environment variable
func parseEnvBool(key string, dest *bool) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvDuration accepts Go durations ("1500ms") or whole seconds ("2")
func parseEnvDuration(key string, dest *time.Duration) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	if secs, err := strconv.Atoi(value); err == nil {
		*dest = time.Duration(secs) * time.Second
		return nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvString copies a non-empty environment variable into dest
func parseEnvString(key string, dest *string) {
	if value := os.Getenv(key); value != "" {
		*dest = value
	}
}
