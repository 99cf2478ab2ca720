package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/triage/internal/config"
	"github.com/steveyegge/triage/internal/rules"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect rule documents",
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate [PATH]",
	Short: "Validate a rule document",
	Long: `Parse and validate a rule document and list its rules in evaluation
order. Without PATH the document the other commands would use is checked.
Exits 1 when the document is invalid.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.RulesPath
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			cwd, _ := os.Getwd()
			path = config.ResolveRulesPath("", cwd)
		}

		var (
			rs  []rules.Rule
			err error
		)
		source := path
		if path == "" {
			source = "bundled rules.yaml"
			rs, err = rules.Parse(rules.BundledDocument())
		} else {
			rs, err = rules.LoadFile(path)
		}

		red := color.New(color.FgRed, color.Bold).SprintFunc()
		green := color.New(color.FgGreen, color.Bold).SprintFunc()
		if err != nil {
			fmt.Printf("%s %s\n  %v\n", red("✗"), source, err)
			return fmt.Errorf("invalid rule document")
		}

		fmt.Printf("%s %s: %d rules\n\n", green("✓"), source, len(rs))
		gray := color.New(color.FgHiBlack).SprintFunc()
		for i, r := range rs {
			fmt.Printf("  %2d. %s  P%d %v\n", i+1, r.Name, r.Action.PriorityScore, r.Action.Labels)
			fmt.Printf("      %s\n", gray(r.Condition.String()))
		}
		return nil
	},
}

func init() {
	rulesCmd.AddCommand(rulesValidateCmd)
	rootCmd.AddCommand(rulesCmd)
}
