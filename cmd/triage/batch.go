package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/triage/internal/github"
	"github.com/steveyegge/triage/internal/triage"
)

var batchCmd = &cobra.Command{
	Use:   "batch OWNER/REPO",
	Short: "Triage the open issues of a repository",
	Long: `Fetch up to --limit issues and run each through the full pipeline.

A failed item is reported and skipped; the rest of the batch carries on.
The command exits 1 if any item failed. Ctrl+C stops starting new items
and waits for those in flight.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		owner, name, err := github.ParseRepo(args[0])
		if err != nil {
			return err
		}
		repo := owner + "/" + name

		flags := cmd.Flags()
		limit, _ := flags.GetInt("limit")
		state, _ := flags.GetString("state")
		apply, _ := flags.GetBool("apply")
		beads, _ := flags.GetBool("beads")
		if flags.Changed("concurrency") {
			cfg.Triage.Concurrency, _ = flags.GetInt("concurrency")
			if err := cfg.Triage.Validate(); err != nil {
				return err
			}
		}

		p, err := newPipeline(ctx, cfg, pipelineOptions{dedup: true, apply: apply, beads: beads})
		if err != nil {
			return err
		}
		defer p.close()

		items, err := p.github.FetchIssues(ctx, repo, state, limit)
		if err != nil {
			return err
		}
		printHeader(fmt.Sprintf("Triage %s (%d issues)", repo, len(items)))

		res := p.orchestrator.ProcessBatch(ctx, items)
		return reportBatch(res)
	},
}

func reportBatch(res *triage.BatchResult) error {
	red := color.New(color.FgRed).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()

	fmt.Println()
	for _, out := range res.Outcomes {
		if out != nil && out.EffectErr != nil {
			fmt.Printf("%s %s: %v\n", red("effect failed"), out.Item.Ref(), out.EffectErr)
		}
	}
	if res.Failed() {
		fmt.Printf("%s %s\n", red("✗"), res.Summary())
		return fmt.Errorf("%d of %d items failed, %d skipped", res.FailedN, res.Total, res.Skipped)
	}
	fmt.Printf("%s %s\n", green("✓"), res.Summary())
	return nil
}

func init() {
	batchCmd.Flags().Int("limit", 30, "maximum number of issues to fetch")
	batchCmd.Flags().String("state", "open", "issue state: open, closed or all")
	batchCmd.Flags().Int("concurrency", 1, "issues processed at once")
	batchCmd.Flags().Bool("apply", false, "write labels and comments to GitHub")
	batchCmd.Flags().Bool("beads", false, "record decisions in the local Beads tracker")
	rootCmd.AddCommand(batchCmd)
}
