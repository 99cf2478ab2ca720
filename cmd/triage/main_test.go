package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/steveyegge/triage/internal/config"
	"github.com/steveyegge/triage/internal/effector"
	"github.com/steveyegge/triage/internal/github"
	"github.com/steveyegge/triage/internal/types"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadItemFileText(t *testing.T) {
	path := writeFile(t, "issue.md", "\n# App crashes on save\n\nSteps:\n1. open\n2. save\n")
	item, err := readItemFile(path)
	if err != nil {
		t.Fatalf("readItemFile() error = %v", err)
	}
	if item.Title != "App crashes on save" {
		t.Errorf("Title = %q", item.Title)
	}
	if item.Body != "Steps:\n1. open\n2. save" {
		t.Errorf("Body = %q", item.Body)
	}
	if item.State != types.StateOpen {
		t.Errorf("State = %q, want open", item.State)
	}
}

func TestReadItemFileJSON(t *testing.T) {
	path := writeFile(t, "issue.json", `{"number": 4, "repo": "acme/app", "title": "Docs typo", "body": "README", "state": "closed"}`)
	item, err := readItemFile(path)
	if err != nil {
		t.Fatalf("readItemFile() error = %v", err)
	}
	if item.Ref() != "acme/app#4" || item.State != types.StateClosed {
		t.Errorf("item = %+v", item)
	}
}

func TestReadItemFileErrors(t *testing.T) {
	if _, err := readItemFile(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := readItemFile(writeFile(t, "empty.txt", "  \n\n")); err == nil {
		t.Error("expected error for empty item")
	}
	if _, err := readItemFile(writeFile(t, "bad.json", "{")); err == nil {
		t.Error("expected error for bad JSON")
	}
}

func TestReadActionEvent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
		wantOK  bool
		wantErr bool
	}{
		{name: "issues event", content: `{"action": "opened", "issue": {"number": 42}}`, want: 42, wantOK: true},
		{name: "comment event", content: `{"action": "created", "issue": {"number": 7}, "comment": {"body": "hi"}}`, want: 7, wantOK: true},
		{name: "push event", content: `{"ref": "refs/heads/main"}`},
		{name: "bad json", content: `not json`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, ok, err := readActionEvent(writeFile(t, "event.json", tt.content))
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if n != tt.want || ok != tt.wantOK {
				t.Errorf("readActionEvent() = %d, %v; want %d, %v", n, ok, tt.want, tt.wantOK)
			}
		})
	}

	if _, _, err := readActionEvent(""); err == nil {
		t.Error("expected error without GITHUB_EVENT_PATH")
	}
}

func TestBuildWriter(t *testing.T) {
	client := github.NewClient(github.DefaultConfig())
	c := config.DefaultConfig()

	w, closers, err := buildWriter(context.Background(), c, client, pipelineOptions{})
	if err != nil || w != nil || len(closers) != 0 {
		t.Errorf("no options: writer = %v, closers = %d, err = %v", w, len(closers), err)
	}

	w, _, err = buildWriter(context.Background(), c, client, pipelineOptions{apply: true})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := w.(*effector.GitHub); !ok {
		t.Errorf("apply: writer is %T, want *effector.GitHub", w)
	}

	dryRun = true
	defer func() { dryRun = false }()
	w, _, err = buildWriter(context.Background(), c, client, pipelineOptions{apply: true})
	if err != nil || w != nil {
		t.Errorf("dry run: writer = %v, err = %v", w, err)
	}
}
