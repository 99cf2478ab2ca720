package ai

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

type testJudgment struct {
	IsDuplicate bool    `json:"is_duplicate"`
	Confidence  float64 `json:"confidence"`
	Reasoning   string  `json:"reasoning"`
}

func TestParse_DirectJSON(t *testing.T) {
	got, err := Parse[testJudgment](`{"is_duplicate": true, "confidence": 0.9, "reasoning": "same"}`, ParseOptions{})
	if err != nil {
		t.Fatalf("Expected successful parse, got error: %v", err)
	}
	if !got.IsDuplicate || got.Confidence != 0.9 || got.Reasoning != "same" {
		t.Errorf("Unexpected result: %+v", got)
	}
}

func TestParse_EmptyInput(t *testing.T) {
	_, err := Parse[testJudgment]("   \n", ParseOptions{Context: "verification"})
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("Expected ParseError, got %v", err)
	}
	if perr.Reason != "empty response" {
		t.Errorf("Expected 'empty response', got %q", perr.Reason)
	}
	if !strings.Contains(err.Error(), "verification") {
		t.Errorf("Expected context in error, got %q", err.Error())
	}
}

func TestParse_Recoverable(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"json fence", "```json\n{\"is_duplicate\": true, \"confidence\": 0.8}\n```"},
		{"bare fence", "```\n{\"is_duplicate\": true, \"confidence\": 0.8}\n```"},
		{"fence without newlines", "```json{\"is_duplicate\": true, \"confidence\": 0.8}```"},
		{"preamble and fence", "Here is my answer:\n```json\n{\"is_duplicate\": true, \"confidence\": 0.8}\n```\nHope that helps"},
		{"trailing comma", `{"is_duplicate": true, "confidence": 0.8,}`},
		{"line comment", "{\n  // looks identical\n  \"is_duplicate\": true,\n  \"confidence\": 0.8\n}"},
		{"block comment", `{"is_duplicate": true, /* same trace */ "confidence": 0.8}`},
		{"unquoted keys", `{is_duplicate: true, confidence: 0.8}`},
		{"prose around object", `Based on the traces, {"is_duplicate": true, "confidence": 0.8} is my call.`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse[testJudgment](tt.input, ParseOptions{})
			if err != nil {
				t.Fatalf("Expected successful parse, got error: %v", err)
			}
			if !got.IsDuplicate || got.Confidence != 0.8 {
				t.Errorf("Unexpected result: %+v", got)
			}
		})
	}
}

func TestParse_KeepsURLsInStrings(t *testing.T) {
	input := "```json\n{\"reasoning\": \"see https://example.com/issues/1\", \"confidence\": 0.5}\n```"
	got, err := Parse[testJudgment](input, ParseOptions{})
	if err != nil {
		t.Fatalf("Expected successful parse, got error: %v", err)
	}
	if got.Reasoning != "see https://example.com/issues/1" {
		t.Errorf("Reasoning was mangled: %q", got.Reasoning)
	}
}

func TestParse_NoJSON(t *testing.T) {
	_, err := Parse[testJudgment]("I could not decide.", ParseOptions{})
	if err == nil {
		t.Fatal("Expected parse to fail")
	}
}

func TestParse_NoCleanup(t *testing.T) {
	input := "```json\n{\"confidence\": 0.5}\n```"
	if _, err := Parse[testJudgment](input, ParseOptions{NoCleanup: true}); err == nil {
		t.Error("Expected fenced input to fail with cleanup disabled")
	}
	if _, err := Parse[testJudgment](input, ParseOptions{}); err != nil {
		t.Errorf("Expected fenced input to parse with cleanup, got %v", err)
	}
}

func TestParse_SizeLimit(t *testing.T) {
	input := `{"reasoning": "` + strings.Repeat("x", 100) + `"}`
	_, err := Parse[testJudgment](input, ParseOptions{MaxInputSize: 50})
	if err == nil || !strings.Contains(err.Error(), "size limit") {
		t.Errorf("Expected size limit error, got %v", err)
	}
}

func TestParseRaw(t *testing.T) {
	raw, err := ParseRaw("```json\n{\"summary\": \"x\", \"extra\": 1}\n```", ParseOptions{})
	if err != nil {
		t.Fatalf("Expected successful parse, got error: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("ParseRaw returned invalid JSON: %v", err)
	}
	if len(m) != 2 {
		t.Errorf("Expected both keys preserved, got %v", m)
	}
}

func TestRemoveCodeFences(t *testing.T) {
	tests := []struct {
		input, want string
	}{
		{"```json\n{}\n```", "{}"},
		{"```js\n[1]\n```", "[1]"},
		{"`{}`", "{}"},
		{"text ```\n{\"a\":1}\n``` text", `{"a":1}`},
		{"{}", "{}"},
	}
	for _, tt := range tests {
		if got := removeCodeFences(tt.input); got != tt.want {
			t.Errorf("removeCodeFences(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"object in text", `Some text {"key": "value"} more`, `{"key": "value"}`},
		{"array of objects", `[{"id": 1}, {"id": 2}]`, `[{"id": 1}, {"id": 2}]`},
		{"array in text", `Results: [1, 2, 3] end`, `[1, 2, 3]`},
		{"nested", `Text {"outer": {"inner": 1}} end`, `{"outer": {"inner": 1}}`},
		{"none", `Just plain text`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractJSON(tt.input); got != tt.want {
				t.Errorf("extractJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("Expected unchanged string, got %q", got)
	}
	if got := truncate("0123456789abc", 10); got != "0123456789..." {
		t.Errorf("Expected truncated string, got %q", got)
	}
}
