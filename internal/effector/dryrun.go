package effector

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/steveyegge/triage/internal/triage"
	"github.com/steveyegge/triage/internal/types"
)

// DryRun prints what would be applied instead of applying it
type DryRun struct {
	w io.Writer
}

var _ triage.Effector = (*DryRun)(nil)

// NewDryRun writes to w (stdout when nil)
func NewDryRun(w io.Writer) *DryRun {
	if w == nil {
		w = os.Stdout
	}
	return &DryRun{w: w}
}

// Apply implements triage.Effector
func (d *DryRun) Apply(ctx context.Context, item *types.Item, out *triage.Outcome) error {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	title := item.Title
	if len(title) > 60 {
		title = title[:57] + "..."
	}
	fmt.Fprintf(d.w, "%s %s\n", cyan(item.Ref()), title)

	if out.Failed() {
		fmt.Fprintf(d.w, "  %s %s\n", red("FAILED"), out.Reason)
		return nil
	}

	a := out.Action
	source := string(a.Source)
	if out.CacheHit {
		source += ", cached"
	}
	priority := fmt.Sprintf("P%d", a.PriorityScore)
	switch {
	case isMatch(out):
		priority = yellow("dup")
	case a.PriorityScore >= 4:
		priority = red(priority)
	default:
		priority = green(priority)
	}
	labels := "(none)"
	if len(a.Labels) > 0 {
		labels = strings.Join(a.Labels, ", ")
	}
	fmt.Fprintf(d.w, "  %s  labels: %s  %s\n", priority, labels, gray("["+source+"]"))
	fmt.Fprintf(d.w, "  %s\n", a.Reasoning)
	if out.RuleName != "" {
		fmt.Fprintf(d.w, "  %s\n", gray("rule: "+out.RuleName))
	}
	if c := Comment(out); c != "" {
		fmt.Fprintf(d.w, "  %s\n", yellow("would comment:"))
		for _, line := range strings.Split(strings.TrimSuffix(c, "\n"+CommentMarker), "\n") {
			fmt.Fprintf(d.w, "    %s\n", line)
		}
	}
	return nil
}
