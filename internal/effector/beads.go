package effector

import (
	"context"
	"fmt"
	"log"
	"strings"

	beadsLib "github.com/steveyegge/beads"

	"github.com/steveyegge/triage/internal/storage"
	"github.com/steveyegge/triage/internal/triage"
	"github.com/steveyegge/triage/internal/types"
)

// BeadsActor is recorded as the author of tracker changes
const BeadsActor = "triage"

// beads rejects longer titles
const maxBeadsTitle = 500

// BeadsStore is the part of beads storage the effector needs
type BeadsStore interface {
	CreateIssue(ctx context.Context, issue *beadsLib.Issue, actor string) error
	AddLabel(ctx context.Context, issueID, label, actor string) error
	Close() error
}

// Beads files each triaged item as an issue in a local Beads tracker, so
// work picked up by triage shows up in `bd ready`
type Beads struct {
	store BeadsStore
}

var _ triage.Effector = (*Beads)(nil)

// NewBeads wraps an open store
func NewBeads(store BeadsStore) *Beads {
	return &Beads{store: store}
}

// OpenBeads opens the tracker at dbPath, or discovers .beads/*.db from the
// working directory when dbPath is empty
func OpenBeads(ctx context.Context, dbPath string) (*Beads, error) {
	if dbPath == "" {
		found, err := storage.DiscoverBeadsDatabase()
		if err != nil {
			return nil, err
		}
		dbPath = found
	}

	store, err := beadsLib.NewSQLiteStorage(ctx, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Beads storage: %w", err)
	}
	// ID generation needs a prefix
	if prefix, err := store.GetConfig(ctx, "issue_prefix"); err != nil || prefix == "" {
		if err := store.SetConfig(ctx, "issue_prefix", "triage"); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to set issue_prefix config: %w", err)
		}
	}
	log.Printf("[EFFECT] Using Beads database %s", dbPath)
	return NewBeads(store), nil
}

// Close closes the underlying store
func (b *Beads) Close() error {
	return b.store.Close()
}

// Apply implements triage.Effector. Failed outcomes and cache hits are
// skipped; a cache hit means the item was already filed.
func (b *Beads) Apply(ctx context.Context, item *types.Item, out *triage.Outcome) error {
	if out.Failed() || out.Action == nil || out.CacheHit {
		return nil
	}

	issue := BeadsIssue(item, out)
	if err := b.store.CreateIssue(ctx, issue, BeadsActor); err != nil {
		return fmt.Errorf("failed to create Beads issue for %s: %w", item.Ref(), err)
	}
	for _, label := range out.Action.Labels {
		if err := b.store.AddLabel(ctx, issue.ID, label, BeadsActor); err != nil {
			return fmt.Errorf("failed to label Beads issue %s: %w", issue.ID, err)
		}
	}
	log.Printf("[EFFECT] Filed %s as Beads issue %s (P%d)", item.Ref(), issue.ID, issue.Priority)
	return nil
}

// BeadsPriority maps a triage score (higher is more urgent) onto the Beads
// scale (0 is most urgent, 4 least). Duplicates are least urgent.
func BeadsPriority(score int) int {
	if score == triage.DuplicatePriority {
		return 4
	}
	p := 5 - score
	if p < 0 {
		return 0
	}
	if p > 4 {
		return 4
	}
	return p
}

// BeadsIssue builds the tracker issue for an outcome
func BeadsIssue(item *types.Item, out *triage.Outcome) *beadsLib.Issue {
	issueType := "task"
	if out.Facts != nil {
		switch out.Facts.IssueType {
		case types.TypeBug:
			issueType = "bug"
		case types.TypeFeature:
			issueType = "feature"
		}
	}

	var desc strings.Builder
	fmt.Fprintf(&desc, "Triaged from %s", item.Ref())
	if item.URL != "" {
		fmt.Fprintf(&desc, " (%s)", item.URL)
	}
	desc.WriteString("\n\n")
	if out.Facts != nil && out.Facts.Summary != "" {
		desc.WriteString(out.Facts.Summary + "\n\n")
	}
	fmt.Fprintf(&desc, "Decision: %s", out.Action.Reasoning)
	if c := Comment(out); c != "" {
		desc.WriteString("\n\n" + strings.TrimSuffix(c, "\n"+CommentMarker))
	}

	title := fmt.Sprintf("%s: %s", item.Ref(), item.Title)
	if r := []rune(title); len(r) > maxBeadsTitle {
		title = string(r[:maxBeadsTitle-3]) + "..."
	}

	return &beadsLib.Issue{
		Title:       title,
		Description: desc.String(),
		Status:      beadsLib.Status("open"),
		Priority:    BeadsPriority(out.Action.PriorityScore),
		IssueType:   beadsLib.IssueType(issueType),
	}
}
