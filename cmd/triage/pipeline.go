package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/steveyegge/triage/internal/ai"
	"github.com/steveyegge/triage/internal/cache"
	"github.com/steveyegge/triage/internal/config"
	"github.com/steveyegge/triage/internal/deduplication"
	"github.com/steveyegge/triage/internal/effector"
	"github.com/steveyegge/triage/internal/github"
	"github.com/steveyegge/triage/internal/rules"
	"github.com/steveyegge/triage/internal/storage"
	"github.com/steveyegge/triage/internal/triage"
)

// pipeline holds everything one command run needs. close releases the
// cache and any effector connections.
type pipeline struct {
	store        cache.Store
	engine       *rules.Engine
	supervisor   *ai.Supervisor
	github       *github.Client
	printer      *effector.DryRun
	writer       triage.Effector // nil when nothing is written
	orchestrator *triage.Orchestrator

	closers []io.Closer
}

// pipelineOptions selects the optional parts of a pipeline
type pipelineOptions struct {
	dedup bool // duplicate check against GitHub
	apply bool // write labels and comments back to GitHub
	beads bool // record decisions in the local Beads tracker

	printOnly bool // no writers, as if --dry-run were set

	// manualEffect keeps the effector out of the orchestrator so the
	// caller can filter or confirm before calling it
	manualEffect bool
}

func (p *pipeline) close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i].Close(); err != nil {
			log.Printf("[TRIAGE] [WARN] close failed: %v", err)
		}
	}
}

// loadRules resolves the rule document and logs a fallback. A broken
// document never stops the run; the safe default rules take over.
func loadRules(c config.Config) *rules.Engine {
	cwd, _ := os.Getwd()
	engine, err := rules.Load(config.ResolveRulesPath(c.RulesPath, cwd))
	if err != nil {
		yellow := warnColor()
		fmt.Fprintf(os.Stderr, "%s %v\n", yellow("Warning:"), err)
	}
	return engine
}

func newGitHubClient(c config.Config) *github.Client {
	ghCfg := github.DefaultConfig()
	ghCfg.Token = c.GitHubToken
	ghCfg.BaseURL = c.GitHubBaseURL
	return github.NewClient(ghCfg)
}

func newSupervisor(c config.Config) (*ai.Supervisor, error) {
	aiCfg := ai.DefaultConfig()
	aiCfg.APIKey = c.AnthropicAPIKey
	aiCfg.MaxConcurrentCalls = c.AIConcurrency
	sup, err := ai.NewSupervisor(&aiCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AI supervisor: %w", err)
	}
	return sup, nil
}

// newPipeline opens the cache and wires the collaborators
func newPipeline(ctx context.Context, c config.Config, opts pipelineOptions) (*pipeline, error) {
	store, err := storage.Open(ctx, &c.Cache)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	p := &pipeline{store: store, closers: []io.Closer{store}}

	p.engine = loadRules(c)
	p.github = newGitHubClient(c)

	p.supervisor, err = newSupervisor(c)
	if err != nil {
		p.close()
		return nil, err
	}

	p.printer = effector.NewDryRun(os.Stdout)
	writer, closers, err := buildWriter(ctx, c, p.github, opts)
	p.closers = append(p.closers, closers...)
	if err != nil {
		p.close()
		return nil, err
	}
	p.writer = writer

	deps := triage.Deps{
		Cache:     store,
		Extractor: p.supervisor,
		Rules:     p.engine,
	}
	if !opts.manualEffect {
		deps.Effector = effector.Multi{p.printer, writer}
	}
	if opts.dedup {
		checker, err := deduplication.NewChecker(p.supervisor, c.Dedup)
		if err != nil {
			p.close()
			return nil, fmt.Errorf("failed to create duplicate checker: %w", err)
		}
		deps.Searcher = github.NewCandidateSearcher(p.github, p.supervisor, c.CandidateLimit)
		deps.Deduplicator = checker
	}

	p.orchestrator, err = triage.New(deps, c.Triage)
	if err != nil {
		p.close()
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}
	return p, nil
}

// buildWriter assembles the effectors that change something. With
// --dry-run there are none; otherwise GitHub is written when apply is set,
// and Beads and Kafka join in when configured.
func buildWriter(ctx context.Context, c config.Config, client *github.Client, opts pipelineOptions) (triage.Effector, []io.Closer, error) {
	if dryRun || opts.printOnly {
		return nil, nil, nil
	}

	var (
		writers effector.Multi
		closers []io.Closer
	)
	if opts.apply {
		writers = append(writers, effector.NewGitHub(client))
	}
	if opts.beads || c.BeadsDB != "" {
		b, err := effector.OpenBeads(ctx, c.BeadsDB)
		if err != nil {
			return nil, closers, err
		}
		writers = append(writers, b)
		closers = append(closers, b)
	}
	if len(c.KafkaBrokers) > 0 {
		k, err := effector.NewKafka(c.KafkaBrokers, c.KafkaTopic)
		if err != nil {
			return nil, closers, err
		}
		log.Printf("[EFFECT] Publishing decisions to %s", c.KafkaTopic)
		writers = append(writers, k)
		closers = append(closers, k)
	}

	switch len(writers) {
	case 0:
		return nil, closers, nil
	case 1:
		return writers[0], closers, nil
	default:
		return writers, closers, nil
	}
}
