package main

import (
	"context"
	"log"

	"github.com/spf13/cobra"

	"github.com/steveyegge/triage/internal/mcpserver"
	"github.com/steveyegge/triage/internal/storage"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve triage tools over MCP on stdio",
	Long: `Run a Model Context Protocol server on stdin/stdout.

Tools: triage_text, evaluate_facts, validate_rules and lookup_cache.
triage_text needs ANTHROPIC_API_KEY; the others work offline.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		// stdout carries the protocol
		log.SetOutput(cmd.ErrOrStderr())

		p, err := newPipeline(ctx, cfg, pipelineOptions{printOnly: true, manualEffect: true})
		if err != nil {
			log.Printf("[MCP] [WARN] triage_text disabled: %v", err)
			store, err := storage.Open(ctx, &cfg.Cache)
			if err != nil {
				return err
			}
			defer store.Close()
			srv, err := mcpserver.NewServer(nil, loadRules(cfg), store)
			if err != nil {
				return err
			}
			return srv.Run()
		}
		defer p.close()

		srv, err := mcpserver.NewServer(p.orchestrator, p.engine, p.store)
		if err != nil {
			return err
		}
		return srv.Run()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
