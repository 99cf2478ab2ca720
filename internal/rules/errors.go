package rules

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfig is matched by every ConfigurationError
var ErrInvalidConfig = errors.New("invalid rule configuration")

// ConfigurationError describes why a rule document was rejected
type ConfigurationError struct {
	Source string // file path, or "" for in-memory documents
	Index  int    // rule index, -1 when the error is about the document itself
	Rule   string // rule name when known
	Path   string // location within the document, e.g. rules[2].condition.or[1]
	Msg    string
	Err    error // underlying cause (I/O, YAML syntax), may be nil
}

func (e *ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString("rule configuration")
	if e.Source != "" {
		fmt.Fprintf(&b, " %s", e.Source)
	}
	if e.Rule != "" {
		fmt.Fprintf(&b, " (rule %q)", e.Rule)
	}
	b.WriteString(": ")
	msg := e.Msg
	// condition errors already carry their path as a prefix
	if e.Path != "" && !strings.HasPrefix(msg, e.Path) {
		fmt.Fprintf(&b, "%s: ", e.Path)
	}
	b.WriteString(msg)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrInvalidConfig) match any ConfigurationError
func (e *ConfigurationError) Is(target error) bool { return target == ErrInvalidConfig }

func docError(msg string, err error) *ConfigurationError {
	return &ConfigurationError{Index: -1, Msg: msg, Err: err}
}
