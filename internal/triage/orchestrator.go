// Package triage drives each item through cache lookup, extraction, the
// duplicate check and rule evaluation, and hands the decision to an effector.
package triage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/steveyegge/triage/internal/cache"
	"github.com/steveyegge/triage/internal/deduplication"
	"github.com/steveyegge/triage/internal/retry"
	"github.com/steveyegge/triage/internal/rules"
	"github.com/steveyegge/triage/internal/types"
)

// Extractor turns item text into facts. A response that does not satisfy
// the fact schema must be returned as an error.
type Extractor interface {
	Extract(ctx context.Context, text string) (types.FactSet, error)
}

// Searcher proposes earlier items that might be duplicates of item.
// It may return an empty list.
type Searcher interface {
	Search(ctx context.Context, item *types.Item, facts types.FactSet) ([]types.CandidateItem, error)
}

// Effector applies a finished outcome to the tracker. State, Trace and
// Duration are final when Apply is called, and failed outcomes are applied
// too.
type Effector interface {
	Apply(ctx context.Context, item *types.Item, out *Outcome) error
}

// Config controls retries and batch concurrency
type Config struct {
	Retry retry.Policy

	// FailOpen continues to the rules when search or verification still
	// fails after retries, instead of failing the item
	FailOpen bool

	// Concurrency is the number of items ProcessBatch runs at once (default: 1)
	Concurrency int
}

// DefaultConfig returns the default orchestrator configuration
func DefaultConfig() Config {
	return Config{
		Retry:       retry.DefaultPolicy(),
		FailOpen:    false,
		Concurrency: 1,
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("invalid retry policy: %w", err)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1 (got %d)", c.Concurrency)
	}
	if c.Concurrency > 64 {
		return fmt.Errorf("concurrency too large (got %d, max 64)", c.Concurrency)
	}
	return nil
}

// Deps are the collaborators an Orchestrator calls
type Deps struct {
	Cache     cache.Store // defaults to an in-memory store
	Extractor Extractor   // required
	Rules     *rules.Engine

	// Searcher and Deduplicator enable the duplicate check. With either one
	// missing every item goes straight to the rules.
	Searcher     Searcher
	Deduplicator deduplication.Deduplicator

	Effector Effector // optional
}

// Orchestrator runs the per-item state machine
type Orchestrator struct {
	cache        cache.Store
	locks        *cache.KeyedMutex
	extractor    Extractor
	engine       *rules.Engine
	searcher     Searcher
	deduplicator deduplication.Deduplicator
	effector     Effector
	config       Config
	now          func() time.Time
}

// New creates an orchestrator
func New(deps Deps, config Config) (*Orchestrator, error) {
	if deps.Extractor == nil {
		return nil, fmt.Errorf("extractor cannot be nil")
	}
	if deps.Rules == nil {
		return nil, fmt.Errorf("rule engine cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	store := deps.Cache
	if store == nil {
		store = cache.NewMemoryStore()
	}
	o := &Orchestrator{
		cache:     store,
		locks:     cache.NewKeyedMutex(),
		extractor: deps.Extractor,
		engine:    deps.Rules,
		effector:  deps.Effector,
		config:    config,
		now:       time.Now,
	}
	if deps.Searcher != nil && deps.Deduplicator != nil {
		o.searcher = deps.Searcher
		o.deduplicator = deps.Deduplicator
	} else if deps.Searcher != nil || deps.Deduplicator != nil {
		log.Printf("[TRIAGE] [WARN] Duplicate check needs both a searcher and a deduplicator; disabled")
	}
	return o, nil
}

// Outcome is the result of processing one item
type Outcome struct {
	RunID string      `json:"run_id"`
	Item  *types.Item `json:"item"`
	Hash  cache.Hash  `json:"hash"`

	// State is TERMINAL or FAILED; Trace lists every state visited
	State State   `json:"state"`
	Trace []State `json:"trace"`

	CacheHit bool                   `json:"cache_hit"`
	Facts    *types.FactSet         `json:"facts,omitempty"`
	Verdict  *deduplication.Verdict `json:"verdict,omitempty"`
	Action   *types.TriageAction    `json:"action,omitempty"`
	RuleName string                 `json:"rule_name,omitempty"`

	ExtractAttempts int `json:"extract_attempts,omitempty"`
	SearchAttempts  int `json:"search_attempts,omitempty"`
	VerifyAttempts  int `json:"verify_attempts,omitempty"`

	// Err and Reason explain a FAILED item or a degraded step
	Err    error  `json:"-"`
	Reason string `json:"reason,omitempty"`

	// EffectErr is set when the effector failed; the item stays TERMINAL
	EffectErr error `json:"-"`

	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Failed reports whether the item ended in FAILED
func (o *Outcome) Failed() bool {
	return o.State == StateFailed
}

// Process runs one item through the state machine. It never returns nil and
// never panics on collaborator errors; failures end in StateFailed.
func (o *Orchestrator) Process(ctx context.Context, item *types.Item) *Outcome {
	out := &Outcome{
		RunID:     uuid.New().String(),
		Item:      item,
		StartedAt: o.now(),
	}
	tr := newTrace()
	// the effector sees the outcome exactly as the caller will
	finish := func() *Outcome {
		out.Trace = tr.snapshot()
		out.State = tr.current()
		out.Duration = o.now().Sub(out.StartedAt)
		if item != nil {
			o.effect(ctx, item, out)
		}
		return out
	}

	fail := func(reason string, err error) *Outcome {
		tr.advance(StateFailed)
		out.Err = err
		out.Reason = fmt.Sprintf("%s: %v", reason, err)
		log.Printf("[TRIAGE] [WARN] %s failed: %s", o.ref(item), out.Reason)
		return finish()
	}

	if item == nil {
		return fail("invalid item", errors.New("item cannot be nil"))
	}
	if err := item.Validate(); err != nil {
		return fail("invalid item", err)
	}

	out.Hash = cache.HashItem(item)
	tr.advance(StateCacheLookup)

	// held across lookup, extract and store so the same content is
	// extracted once even when two workers see it together
	unlock := o.locks.Lock(out.Hash)
	defer unlock()

	entry, err := o.cache.Lookup(ctx, out.Hash)
	if err != nil {
		return fail("cache lookup", err)
	}
	if entry != nil {
		facts, action := entry.Facts, entry.Decision
		out.CacheHit = true
		out.Facts = &facts
		out.Action = &action
		tr.advance(StateDecided)
		// the entry is already stored; nothing to write
		tr.advance(StateStoreCache)
		tr.advance(StateTerminal)
		log.Printf("[TRIAGE] %s cache hit %s: %s", o.ref(item), out.Hash.Short(), action)
		return finish()
	}

	tr.advance(StateExtract)
	facts, attempts, err := retry.DoValue(ctx, o.config.Retry, "extract "+o.ref(item),
		func(ctx context.Context) (types.FactSet, error) {
			f, err := o.extractor.Extract(ctx, item.Text())
			if err != nil {
				return types.FactSet{}, err
			}
			if err := f.Validate(); err != nil {
				return types.FactSet{}, fmt.Errorf("invalid fact set: %w", err)
			}
			return f, nil
		})
	out.ExtractAttempts = attempts
	if err != nil {
		return fail("extraction", fmt.Errorf("%w: %w", ErrExtractionFailed, err))
	}
	out.Facts = &facts

	tr.advance(StateDedupeCheck)
	verdict, err := o.checkDuplicates(ctx, item, facts, out)
	if err != nil {
		if !o.config.FailOpen || ctx.Err() != nil {
			return fail("duplicate check", err)
		}
		log.Printf("[TRIAGE] [WARN] %s duplicate check failed, continuing to rules: %v", o.ref(item), err)
		out.Reason = fmt.Sprintf("duplicate check skipped: %v", err)
		verdict = deduplication.NoMatch(0.0, out.Reason)
	}
	out.Verdict = verdict

	var action types.TriageAction
	if dup, ok := DuplicateAction(verdict); ok {
		action = dup
	} else {
		tr.advance(StateRulesEval)
		action, out.RuleName = o.engine.EvaluateMatch(facts)
	}
	out.Action = &action
	tr.advance(StateDecided)

	tr.advance(StateStoreCache)
	if err := o.cache.Store(ctx, out.Hash, facts, action); err != nil {
		return fail("cache store", err)
	}
	tr.advance(StateTerminal)

	log.Printf("[TRIAGE] %s decided %s", o.ref(item), action)
	return finish()
}

func (o *Orchestrator) checkDuplicates(ctx context.Context, item *types.Item, facts types.FactSet, out *Outcome) (*deduplication.Verdict, error) {
	if o.searcher == nil {
		return deduplication.NoMatch(1.0, "duplicate check disabled"), nil
	}

	candidates, attempts, err := retry.DoValue(ctx, o.config.Retry, "search "+o.ref(item),
		func(ctx context.Context) ([]types.CandidateItem, error) {
			return o.searcher.Search(ctx, item, facts)
		})
	out.SearchAttempts = attempts
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSearchFailed, err)
	}

	verdict, attempts, err := retry.DoValue(ctx, o.config.Retry, "verify "+o.ref(item),
		func(ctx context.Context) (*deduplication.Verdict, error) {
			return o.deduplicator.Check(ctx, item, facts, candidates)
		})
	out.VerifyAttempts = attempts
	if err != nil {
		return nil, err
	}
	return verdict, nil
}

func (o *Orchestrator) effect(ctx context.Context, item *types.Item, out *Outcome) {
	if o.effector == nil {
		return
	}
	if err := o.effector.Apply(ctx, item, out); err != nil {
		out.EffectErr = err
		log.Printf("[TRIAGE] [WARN] %s effector failed: %v", o.ref(item), err)
	}
}

func (o *Orchestrator) ref(item *types.Item) string {
	if item == nil {
		return "<nil>"
	}
	return item.Ref()
}
