package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/triage/internal/github"
)

// actionEvent is the part of a GitHub Actions event payload we read. Both
// issues and issue_comment events carry an issue object.
type actionEvent struct {
	Action string `json:"action"`
	Issue  *struct {
		Number int `json:"number"`
	} `json:"issue"`
}

// readActionEvent returns the issue number from the event file. ok is
// false when the event has no issue.
func readActionEvent(path string) (number int, ok bool, err error) {
	if path == "" {
		return 0, false, fmt.Errorf("GITHUB_EVENT_PATH not set; are we running in an Action?")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false, fmt.Errorf("failed to read event: %w", err)
	}
	var ev actionEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return 0, false, fmt.Errorf("failed to decode event: %w", err)
	}
	if ev.Issue == nil || ev.Issue.Number <= 0 {
		return 0, false, nil
	}
	return ev.Issue.Number, true, nil
}

var actionCmd = &cobra.Command{
	Use:   "action",
	Short: "Run as a GitHub Action",
	Long: `Triage the issue named by the workflow event.

The repository comes from GITHUB_REPOSITORY and the issue from the event
payload at GITHUB_EVENT_PATH. Events without an issue are skipped. Rules
are read from .github/issueops.yaml when the repository has one.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		blue := color.New(color.FgBlue, color.Bold).SprintFunc()
		fmt.Printf("%s\n", blue("Starting triage action"))

		number, ok, err := readActionEvent(os.Getenv("GITHUB_EVENT_PATH"))
		if err != nil {
			return err
		}
		if !ok {
			yellow := warnColor()
			fmt.Printf("%s\n", yellow("No issue in event. Skipping."))
			return nil
		}
		owner, name, err := github.ParseRepo(os.Getenv("GITHUB_REPOSITORY"))
		if err != nil {
			return fmt.Errorf("GITHUB_REPOSITORY: %w", err)
		}
		repo := owner + "/" + name
		cyan := color.New(color.FgCyan).SprintFunc()
		fmt.Printf("Target: %s\n", cyan(fmt.Sprintf("%s#%d", repo, number)))

		apply, _ := cmd.Flags().GetBool("apply")
		p, err := newPipeline(ctx, cfg, pipelineOptions{dedup: true, apply: apply})
		if err != nil {
			return err
		}
		defer p.close()

		item, err := p.github.FetchIssue(ctx, repo, number)
		if err != nil {
			return err
		}
		out := p.orchestrator.Process(ctx, item)
		if out.Failed() {
			return fmt.Errorf("pipeline failed: %s", out.Reason)
		}
		if out.EffectErr != nil {
			return out.EffectErr
		}
		return nil
	},
}

func init() {
	actionCmd.Flags().Bool("apply", false, "write labels and comments to the issue")
	rootCmd.AddCommand(actionCmd)
}
