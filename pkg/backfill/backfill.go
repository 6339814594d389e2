// Package backfill repairs the vector mirror for memories whose original
// embedding upsert failed. The relational store is the source of truth, so
// a vector outage during generation leaves rows without a vector id;
// backfill re-embeds and upserts those rows after the fact.
package backfill

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/storyloom/loom/pkg/memory"
	"github.com/storyloom/loom/pkg/novel"
	"github.com/storyloom/loom/pkg/storage"
)

// Options configures backfill behavior.
type Options struct {
	DryRun  bool
	Verbose bool
}

// Backfiller scans a project's memories and mirrors the ones that never
// made it into the vector store.
type Backfiller struct {
	store    storage.Store
	memories *memory.Service
	options  Options
	logger   *zap.Logger
}

// NewBackfiller creates a Backfiller over an already wired store and
// memory service.
func NewBackfiller(store storage.Store, memories *memory.Service, opts Options, logger *zap.Logger) *Backfiller {
	return &Backfiller{
		store:    store,
		memories: memories,
		options:  opts,
		logger:   logger,
	}
}

// Run scans every memory in the project and re-mirrors rows without a
// vector id. A row that fails again is counted and left for the next run;
// one bad row never aborts the scan.
func (b *Backfiller) Run(ctx context.Context, project *novel.Project) (*Result, error) {
	all, err := b.store.MemoriesByTimelineRange(ctx, project.ID, 0, math.MaxInt32)
	if err != nil {
		return nil, fmt.Errorf("listing project memories: %w", err)
	}

	result := &Result{Scanned: len(all)}

	for _, m := range all {
		if m.VectorID != "" {
			result.Skipped++
			continue
		}

		if b.options.DryRun {
			result.Candidates++
			if b.options.Verbose {
				fmt.Printf("  would mirror: %s %q\n", m.ID, m.Title)
			}
			continue
		}

		if err := b.memories.Mirror(ctx, project, m); err != nil {
			result.Failed++
			b.logger.Warn("backfill mirror failed",
				zap.String("memory_id", m.ID),
				zap.Error(err))
			continue
		}

		result.Mirrored++
		if b.options.Verbose {
			fmt.Printf("  mirrored: %s %q -> %s\n", m.ID, m.Title, m.VectorID)
		}
	}

	return result, nil
}
