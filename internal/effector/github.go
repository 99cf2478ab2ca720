package effector

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/steveyegge/triage/internal/triage"
	"github.com/steveyegge/triage/internal/types"
)

// IssueWriter is the part of the GitHub client the effector needs
type IssueWriter interface {
	ApplyLabels(ctx context.Context, repo string, number int, labels []string) error
	PostComment(ctx context.Context, repo string, number int, body string) error
}

// GitHub writes labels and a duplicate comment back to the source issue
type GitHub struct {
	client IssueWriter
}

var _ triage.Effector = (*GitHub)(nil)

// NewGitHub creates a GitHub effector
func NewGitHub(client IssueWriter) *GitHub {
	return &GitHub{client: client}
}

// Apply implements triage.Effector. Failed outcomes and items without a
// repository are skipped. Labels the issue already has are not re-sent.
func (g *GitHub) Apply(ctx context.Context, item *types.Item, out *triage.Outcome) error {
	if out.Failed() || out.Action == nil {
		return nil
	}
	if item.Repo == "" || item.Number <= 0 {
		log.Printf("[EFFECT] %s is not a GitHub issue, skipping", item.Ref())
		return nil
	}

	have := make(map[string]bool, len(item.Labels))
	for _, l := range item.Labels {
		have[l] = true
	}
	var add []string
	for _, l := range out.Action.Labels {
		if !have[l] {
			add = append(add, l)
		}
	}

	var errs []error
	if err := g.client.ApplyLabels(ctx, item.Repo, item.Number, add); err != nil {
		errs = append(errs, err)
	}
	if body := Comment(out); body != "" && !out.CacheHit {
		if err := g.client.PostComment(ctx, item.Repo, item.Number, body); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to update %s: %w", item.Ref(), err)
	}
	return nil
}
