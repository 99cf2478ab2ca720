package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/triage/internal/github"
	"github.com/steveyegge/triage/internal/triage"
)

var scanCmd = &cobra.Command{
	Use:   "scan OWNER/REPO ISSUE",
	Short: "Triage one GitHub issue",
	Long: `Fetch one issue, run the full pipeline (cache, extraction, duplicate
check, rules) and print the decision.

With --apply the labels and comment are written back to GitHub after a
confirmation prompt; --yes skips the prompt. --role hides decisions that
are not relevant to maintainers or contributors.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		owner, name, err := github.ParseRepo(args[0])
		if err != nil {
			return err
		}
		repo := owner + "/" + name
		number, err := strconv.Atoi(args[1])
		if err != nil || number <= 0 {
			return fmt.Errorf("invalid issue number %q", args[1])
		}

		roleFlag, _ := cmd.Flags().GetString("role")
		role, err := triage.ParseRole(roleFlag)
		if err != nil {
			return err
		}
		apply, _ := cmd.Flags().GetBool("apply")
		yes, _ := cmd.Flags().GetBool("yes")
		beads, _ := cmd.Flags().GetBool("beads")

		p, err := newPipeline(ctx, cfg, pipelineOptions{dedup: true, apply: apply, beads: beads, manualEffect: true})
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
			_ = p.printer.Apply(ctx, item, out)
			return fmt.Errorf("triage of %s failed: %s", item.Ref(), out.Reason)
		}

		gray := color.New(color.FgHiBlack).SprintFunc()
		if out.Action != nil && !triage.RoleFilter(role, *out.Action) {
			fmt.Printf("%s\n", gray(fmt.Sprintf("%s: P%d is not relevant for role %s", item.Ref(), out.Action.PriorityScore, role)))
			return nil
		}
		if err := p.printer.Apply(ctx, item, out); err != nil {
			return err
		}

		if p.writer == nil {
			return nil
		}
		if apply && !yes {
			ok, err := confirm(fmt.Sprintf("Apply this decision to %s?", item.Ref()))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Printf("%s\n", gray("Not applied."))
				return nil
			}
		}
		if err := p.writer.Apply(ctx, item, out); err != nil {
			return err
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s\n", green("Applied."))
		return nil
	},
}

func init() {
	scanCmd.Flags().String("role", "all", "show decisions for: all, maintainer or contributor")
	scanCmd.Flags().Bool("apply", false, "write labels and comments to GitHub")
	scanCmd.Flags().BoolP("yes", "y", false, "apply without asking")
	scanCmd.Flags().Bool("beads", false, "record the decision in the local Beads tracker")
	rootCmd.AddCommand(scanCmd)
}
