package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/steveyegge/triage/internal/types"
)

func warnColor() func(a ...interface{}) string {
	return color.New(color.FgYellow, color.Bold).SprintFunc()
}

func printHeader(title string) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Printf("\n%s\n\n", cyan("=== "+title+" ==="))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readItemFile loads an item from disk. A .json file is decoded as an
// item; anything else is plain text whose first non-blank line is the
// title and the rest the body.
func readItemFile(path string) (*types.Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	item := &types.Item{State: types.StateOpen}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.Unmarshal(data, item); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
		if item.State == "" {
			item.State = types.StateOpen
		}
	} else {
		item.Title, item.Body = splitTitle(string(data))
	}

	if err := item.Validate(); err != nil {
		return nil, fmt.Errorf("invalid item in %s: %w", path, err)
	}
	return item, nil
}

func splitTitle(text string) (title, body string) {
	text = strings.TrimLeft(text, " \t\r\n")
	title, body, _ = strings.Cut(text, "\n")
	title = strings.TrimSpace(strings.TrimLeft(title, "# "))
	return title, strings.TrimSpace(body)
}

// confirm asks a yes/no question on the terminal. Anything but y or yes,
// including Ctrl+C and EOF, is a no.
func confirm(question string) (bool, error) {
	yellow := warnColor()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          yellow(question + " [y/N] "),
		InterruptPrompt: "^C",
		EOFPrompt:       "no",
	})
	if err != nil {
		return false, fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	line, err := rl.Readline()
	if err != nil {
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
