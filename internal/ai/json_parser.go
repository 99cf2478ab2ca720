package ai

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// Model output is usually clean JSON, but fences, trailing commas and
// leading prose all show up in practice.
var (
	codeFenceWholeRegex = regexp.MustCompile(`(?s)^` + "`" + `{3}(?:json|javascript|js)?\s*\n?([\s\S]*?)\n?` + "`" + `{3}\s*$`)
	codeFenceAnyRegex   = regexp.MustCompile(`(?s)` + "`" + `{3}(?:json|javascript|js)?\s*\n?([\s\S]*?)\n?` + "`" + `{3}`)

	trailingCommaRegex     = regexp.MustCompile(`,(\s*[}\]])`)
	unquotedKeyRegex       = regexp.MustCompile(`([{,]\s*)([a-zA-Z_$][a-zA-Z0-9_$]*)\s*:`)
	singleLineCommentRegex = regexp.MustCompile(`(?m)^\s*//.*$`)
	multiLineCommentRegex  = regexp.MustCompile(`(?s)/\*.*?\*/`)

	objectRegex = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
	arrayRegex  = regexp.MustCompile(`(?s)\[[\s\S]*\]`)
)

// DefaultMaxResponseSize bounds how much model output Parse will look at
const DefaultMaxResponseSize = 1 << 20

// ParseError describes a response that no strategy could turn into JSON
type ParseError struct {
	Context string // operation being parsed, e.g. "extraction"
	Reason  string
	Preview string // truncated response text
}

func (e *ParseError) Error() string {
	if e.Context == "" {
		return fmt.Sprintf("failed to parse AI response: %s", e.Reason)
	}
	return fmt.Sprintf("failed to parse %s response: %s", e.Context, e.Reason)
}

// ParseOptions configures Parse
type ParseOptions struct {
	Context      string
	NoCleanup    bool // only accept the response as-is
	MaxInputSize int  // 0 means DefaultMaxResponseSize
}

// Parse decodes a model response into T, trying in order:
//  1. the trimmed response as-is
//  2. the response with markdown code fences removed
//  3. the unfenced response with trailing commas, comments and unquoted keys fixed
//  4. the first JSON object or array found in the cleaned text
//
// Parse is lenient about syntax only. Schema checks belong to the caller.
func Parse[T any](text string, opts ParseOptions) (T, error) {
	var zero T
	limit := opts.MaxInputSize
	if limit <= 0 {
		limit = DefaultMaxResponseSize
	}
	if len(text) > limit {
		return zero, &ParseError{
			Context: opts.Context,
			Reason:  fmt.Sprintf("response exceeds size limit (%d > %d bytes)", len(text), limit),
			Preview: truncate(text, 200),
		}
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return zero, &ParseError{Context: opts.Context, Reason: "empty response"}
	}

	v, err := decode[T](trimmed)
	if err == nil {
		return v, nil
	}
	if opts.NoCleanup {
		return zero, &ParseError{Context: opts.Context, Reason: err.Error(), Preview: truncate(text, 200)}
	}
	slog.Debug("direct JSON parse failed, trying cleanup",
		"error", err.Error(),
		"preview", truncate(text, 100),
		"context", opts.Context)

	unfenced := removeCodeFences(trimmed)
	if unfenced != trimmed {
		if v, err := decode[T](unfenced); err == nil {
			return v, nil
		}
	}

	cleaned := cleanupJSON(unfenced)
	if v, err := decode[T](cleaned); err == nil {
		return v, nil
	}

	if extracted := extractJSON(cleaned); extracted != "" {
		if v, err := decode[T](extracted); err == nil {
			return v, nil
		}
	}

	return zero, &ParseError{Context: opts.Context, Reason: "no JSON found", Preview: truncate(text, 200)}
}

// ParseRaw returns the JSON document inside a model response without
// decoding it, so the caller can apply its own strict decoder
func ParseRaw(text string, opts ParseOptions) (json.RawMessage, error) {
	raw, err := Parse[json.RawMessage](text, opts)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func decode[T any](text string) (T, error) {
	var v T
	err := json.Unmarshal([]byte(text), &v)
	return v, err
}

// removeCodeFences strips ``` fences, preferring a fence that wraps the
// whole text. Single backticks around the whole text are also removed.
func removeCodeFences(text string) string {
	cleaned := codeFenceWholeRegex.ReplaceAllString(text, "$1")
	if cleaned == text {
		if m := codeFenceAnyRegex.FindStringSubmatch(text); m != nil {
			cleaned = m[1]
		}
	}
	if len(cleaned) > 1 && strings.HasPrefix(cleaned, "`") && strings.HasSuffix(cleaned, "`") {
		cleaned = cleaned[1 : len(cleaned)-1]
	}
	return strings.TrimSpace(cleaned)
}

// cleanupJSON fixes the syntax slips models make most often. Single quotes
// are left alone since converting them breaks apostrophes in strings.
func cleanupJSON(text string) string {
	cleaned := strings.TrimSpace(text)
	cleaned = multiLineCommentRegex.ReplaceAllString(cleaned, "")
	cleaned = singleLineCommentRegex.ReplaceAllString(cleaned, "")
	cleaned = trailingCommaRegex.ReplaceAllString(cleaned, "$1")
	cleaned = unquotedKeyRegex.ReplaceAllString(cleaned, `$1"$2":`)
	return strings.TrimSpace(cleaned)
}

// extractJSON finds a JSON document inside mixed content. The first
// structural character decides between object and array so that an array
// of objects is not cut down to its first element.
func extractJSON(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed != "" {
		switch trimmed[0] {
		case '[':
			if m := arrayRegex.FindString(trimmed); m != "" {
				return m
			}
		case '{':
			if m := objectRegex.FindString(trimmed); m != "" {
				return m
			}
		}
	}
	obj := strings.IndexByte(trimmed, '{')
	arr := strings.IndexByte(trimmed, '[')
	if arr >= 0 && (obj < 0 || arr < obj) {
		if m := arrayRegex.FindString(trimmed); m != "" {
			return m
		}
	}
	return objectRegex.FindString(trimmed)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
