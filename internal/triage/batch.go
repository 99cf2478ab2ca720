package triage

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/triage/internal/types"
)

// BatchResult collects the outcomes of one batch in input order
type BatchResult struct {
	Outcomes []*Outcome `json:"outcomes"`

	Total      int `json:"total"`
	CacheHits  int `json:"cache_hits"`
	Extracted  int `json:"extracted"`
	Duplicates int `json:"duplicates"`
	PriorArt   int `json:"prior_art"`
	FailedN    int `json:"failed"`
	Skipped    int `json:"skipped"` // not started because the context ended

	Duration time.Duration `json:"duration"`
}

// Failed reports whether any item ended in FAILED or was never started,
// which is what the batch exit status reflects
func (r *BatchResult) Failed() bool {
	return r.FailedN > 0 || r.Skipped > 0
}

// Summary returns a one-line report for logs
func (r *BatchResult) Summary() string {
	return fmt.Sprintf("%d items: %d cache hits, %d extracted, %d duplicates, %d prior art, %d failed, %d skipped (%v)",
		r.Total, r.CacheHits, r.Extracted, r.Duplicates, r.PriorArt, r.FailedN, r.Skipped, r.Duration.Round(time.Millisecond))
}

// ProcessBatch runs every item through Process with at most
// Config.Concurrency items in flight. An item failure never stops the batch.
// Once ctx is done no further items are started.
func (o *Orchestrator) ProcessBatch(ctx context.Context, items []*types.Item) *BatchResult {
	start := o.now()
	res := &BatchResult{
		Outcomes: make([]*Outcome, len(items)),
		Total:    len(items),
	}

	// the group context is never cancelled by an item; Process does not return errors
	var g errgroup.Group
	g.SetLimit(o.config.Concurrency)

	for i, item := range items {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			res.Outcomes[i] = o.Process(ctx, item)
			return nil
		})
	}
	_ = g.Wait()

	for _, out := range res.Outcomes {
		if out == nil {
			res.Skipped++
			continue
		}
		switch {
		case out.Failed():
			res.FailedN++
		case out.CacheHit:
			res.CacheHits++
		default:
			res.Extracted++
		}
		if out.Action != nil {
			switch out.Action.Source {
			case types.SourceDuplicate:
				res.Duplicates++
			case types.SourcePriorArt:
				res.PriorArt++
			}
		}
	}
	res.Duration = o.now().Sub(start)
	log.Printf("[TRIAGE] Batch complete: %s", res.Summary())
	return res
}
