package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/steveyegge/triage/internal/config"
	"github.com/steveyegge/triage/internal/storage"
)

var (
	cfg config.Config

	cacheBackend string
	cachePath    string
	requireCache bool
	dryRun       bool
	rulesPath    string
)

var rootCmd = &cobra.Command{
	Use:   "triage",
	Short: "Prioritize and label issues",
	Long: `triage reads issues, extracts structured facts with a language model,
checks for duplicates and prior art, and applies priority rules.

Results are cached by content hash, so unchanged issues never cost a
second model call. Configuration comes from TRIAGE_* environment
variables; the flags below override them.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.LoadFromEnv()
		if err != nil {
			return err
		}
		cfg = loaded

		flags := cmd.Flags()
		if flags.Changed("cache-backend") {
			cfg.Cache.Backend = cacheBackend
		}
		if flags.Changed("cache-path") {
			cfg.Cache.Path = cachePath
		}
		if flags.Changed("require-cache") {
			cfg.Cache.Require = requireCache
		}
		if flags.Changed("rules") {
			cfg.RulesPath = rulesPath
		}
		return cfg.Validate()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cacheBackend, "cache-backend", storage.BackendFile, "cache backend: file, sqlite, postgres or memory")
	rootCmd.PersistentFlags().StringVar(&cachePath, "cache-path", "", "cache file or sqlite database path")
	rootCmd.PersistentFlags().BoolVar(&requireCache, "require-cache", false, "fail instead of running uncached when the cache is unavailable")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "print decisions without changing anything")
	rootCmd.PersistentFlags().StringVar(&rulesPath, "rules", "", "rule document (default: .github/issueops.yaml, rules.yaml or the bundled rules)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
