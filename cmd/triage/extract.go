package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/steveyegge/triage/internal/cache"
	"github.com/steveyegge/triage/internal/types"
)

var extractCmd = &cobra.Command{
	Use:   "extract FILE",
	Short: "Extract facts from an issue file",
	Long: `Run fact extraction on an issue stored in a file and print the fact set.

FILE is either a JSON item or plain text whose first line is the title.
Rules and the cache are not consulted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		item, err := readItemFile(args[0])
		if err != nil {
			return err
		}
		sup, err := newSupervisor(cfg)
		if err != nil {
			return err
		}

		facts, err := sup.Extract(ctx, item.Text())
		if err != nil {
			return fmt.Errorf("extraction failed: %w", err)
		}
		fmt.Fprintf(os.Stderr, "hash %s\n", cache.HashItem(item))
		return printJSON(os.Stdout, facts)
	},
}

var decideCmd = &cobra.Command{
	Use:   "decide FILE",
	Short: "Extract facts from an issue file and apply the rules",
	Long: `Run an issue file through the cache, extraction and the rules and print
the decision. No duplicate check is made and nothing is written anywhere
except the cache.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		item, err := readItemFile(args[0])
		if err != nil {
			return err
		}
		p, err := newPipeline(ctx, cfg, pipelineOptions{printOnly: true, manualEffect: true})
		if err != nil {
			return err
		}
		defer p.close()

		out := p.orchestrator.Process(ctx, item)
		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			if err := printJSON(os.Stdout, out); err != nil {
				return err
			}
		} else if err := p.printer.Apply(ctx, item, out); err != nil {
			return err
		}
		if out.Failed() {
			return fmt.Errorf("triage failed: %s", out.Reason)
		}
		return nil
	},
}

// evaluateCmd needs no model
var evaluateCmd = &cobra.Command{
	Use:   "evaluate FACTS.json",
	Short: "Apply the rules to a fact set file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}
		facts, err := types.DecodeFactSet(data)
		if err != nil {
			return err
		}
		engine := loadRules(cfg)
		action, name := engine.EvaluateMatch(facts)
		if name == "" {
			name = "(no match)"
		}
		fmt.Printf("rule: %s\n", name)
		return printJSON(os.Stdout, action)
	},
}

func init() {
	decideCmd.Flags().Bool("json", false, "print the full outcome as JSON")
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(decideCmd)
	rootCmd.AddCommand(evaluateCmd)
}
