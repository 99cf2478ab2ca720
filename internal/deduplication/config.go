package deduplication

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds configuration for the duplicate check
type Config struct {
	// ConfidenceThreshold is the minimum verifier confidence (0.0-1.0) for a
	// positive judgment to count as a match
	// Default: 0.85 (high confidence required to skip the rules)
	ConfidenceThreshold float64

	// PossibleThreshold is the lower bound for recording a possible duplicate.
	// A positive judgment in [PossibleThreshold, ConfidenceThreshold) is
	// reported on the verdict but never short-circuits the rules.
	// Default: 0.7
	PossibleThreshold float64

	// TopK is how many of the highest-scoring candidates are sent to the verifier
	// Default: 3 (each verification is a model call)
	TopK int

	// MinSimilarity drops candidates whose search score is below it
	// Default: 0 (no pre-filter)
	MinSimilarity float64

	// MinTitleLength is the minimum title length, in characters, to perform
	// the check. Shorter titles get NoMatch without verification.
	// Default: 0 (every title is checked)
	MinTitleLength int

	// FailOpen determines behavior when search or verification still fails
	// after retries.
	// If true: treat it as no match and continue to the rules
	// If false: the item fails
	// Default: false
	FailOpen bool
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 0.85,
		PossibleThreshold:   0.7,
		TopK:                3,
		MinSimilarity:       0.0,
		MinTitleLength:      0,
		FailOpen:            false,
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if c.ConfidenceThreshold < 0.0 || c.ConfidenceThreshold > 1.0 {
		return fmt.Errorf("confidence_threshold must be between 0.0 and 1.0 (got %.2f)",
			c.ConfidenceThreshold)
	}
	if c.PossibleThreshold < 0.0 || c.PossibleThreshold > c.ConfidenceThreshold {
		return fmt.Errorf("possible_threshold must be between 0.0 and confidence_threshold %.2f (got %.2f)",
			c.ConfidenceThreshold, c.PossibleThreshold)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("top_k must be positive (got %d)", c.TopK)
	}
	if c.TopK > 20 {
		return fmt.Errorf("top_k too large (got %d, max 20)", c.TopK)
	}
	if c.MinSimilarity < 0.0 || c.MinSimilarity > 1.0 {
		return fmt.Errorf("min_similarity must be between 0.0 and 1.0 (got %.2f)", c.MinSimilarity)
	}
	if c.MinTitleLength < 0 {
		return fmt.Errorf("min_title_length cannot be negative (got %d)", c.MinTitleLength)
	}
	if c.MinTitleLength > 500 {
		return fmt.Errorf("min_title_length too large (got %d, max 500)", c.MinTitleLength)
	}
	return nil
}

// String returns a human-readable representation of the config
func (c Config) String() string {
	return fmt.Sprintf(
		"Config{Threshold: %.2f, Possible: %.2f, TopK: %d, MinSimilarity: %.2f, MinTitleLen: %d, FailOpen: %t}",
		c.ConfidenceThreshold, c.PossibleThreshold, c.TopK, c.MinSimilarity, c.MinTitleLength, c.FailOpen,
	)
}

// ConfigFromEnv creates a Config from environment variables, falling back to defaults
//
// Environment variables:
//   - TRIAGE_DEDUP_CONFIDENCE_THRESHOLD: Minimum confidence (0.0-1.0) to accept a match (default: 0.85)
//   - TRIAGE_DEDUP_POSSIBLE_THRESHOLD: Minimum confidence for a possible-duplicate hint (default: 0.7)
//   - TRIAGE_DEDUP_TOP_K: Number of candidates to verify (default: 3)
//   - TRIAGE_DEDUP_MIN_SIMILARITY: Drop candidates scored below this (default: 0)
//   - TRIAGE_DEDUP_MIN_TITLE_LENGTH: Minimum title length for the check (default: 0)
//   - TRIAGE_DEDUP_FAIL_OPEN: Continue to the rules when the check fails (default: false)
//
// Returns an error if any environment variable has an invalid value.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if err := parseEnvFloat("TRIAGE_DEDUP_CONFIDENCE_THRESHOLD", &cfg.ConfidenceThreshold); err != nil {
		return cfg, err
	}
	if err := parseEnvFloat("TRIAGE_DEDUP_POSSIBLE_THRESHOLD", &cfg.PossibleThreshold); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("TRIAGE_DEDUP_TOP_K", &cfg.TopK); err != nil {
		return cfg, err
	}
	if err := parseEnvFloat("TRIAGE_DEDUP_MIN_SIMILARITY", &cfg.MinSimilarity); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("TRIAGE_DEDUP_MIN_TITLE_LENGTH", &cfg.MinTitleLength); err != nil {
		return cfg, err
	}
	if err := parseEnvBool("TRIAGE_DEDUP_FAIL_OPEN", &cfg.FailOpen); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration from environment: %w", err)
	}
	return cfg, nil
}

// parseEnvFloat parses a float64 from an environment variable
func parseEnvFloat(key string, dest *float64) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
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
