package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/triage/internal/cache"
	"github.com/steveyegge/triage/internal/storage"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the content cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache backend and entry count",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		store, err := openCacheStrict(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		reporter, ok := store.(cache.StatsReporter)
		if !ok {
			return fmt.Errorf("cache backend %s does not report stats", cfg.Cache.Backend)
		}
		stats, err := reporter.Stats(ctx)
		if err != nil {
			return err
		}

		printHeader("Cache")
		fmt.Printf("  Backend:  %s\n", stats.Backend)
		if stats.Location != "" {
			fmt.Printf("  Location: %s\n", stats.Location)
		}
		fmt.Printf("  Entries:  %d\n\n", stats.Entries)
		return nil
	},
}

var cacheGetCmd = &cobra.Command{
	Use:   "get HASH",
	Short: "Print one cache entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		h, err := cache.ParseHash(args[0])
		if err != nil {
			return err
		}
		store, err := openCacheStrict(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		entry, err := store.Lookup(ctx, h)
		if err != nil {
			return err
		}
		if entry == nil {
			yellow := warnColor()
			fmt.Fprintf(os.Stderr, "%s no entry for %s\n", yellow("Miss:"), h.Short())
			return fmt.Errorf("not found")
		}
		return printJSON(os.Stdout, entry)
	},
}

// openCacheStrict opens the cache without degradation; inspecting an
// unavailable cache should fail loudly
func openCacheStrict(ctx context.Context) (cache.Store, error) {
	c := cfg.Cache
	c.Require = true
	store, err := storage.Open(ctx, &c)
	if err != nil {
		red := color.New(color.FgRed).SprintFunc()
		return nil, fmt.Errorf("%s %w", red("cache unavailable:"), err)
	}
	return store, nil
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheGetCmd)
	rootCmd.AddCommand(cacheCmd)
}
