package memory

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/storyloom/loom/pkg/embeddings"
	"github.com/storyloom/loom/pkg/novel"
	"github.com/storyloom/loom/pkg/storage"
	"github.com/storyloom/loom/pkg/vector"
)

// DefaultAutoResolveFloor is the similarity floor for automatic foreshadow
// resolution. Stricter than retrieval: a false positive closes a thread
// the author still owes a payoff for.
const DefaultAutoResolveFloor float32 = 0.75

// Resolver maintains the planted/resolved lifecycle of foreshadow
// memories. Manual resolution is exact; automatic resolution is a
// similarity heuristic run after each chapter's memories are committed,
// with false negatives expected and corrected manually.
type Resolver struct {
	store            storage.Store
	vectors          vector.Driver
	embedder         embeddings.Embedder
	autoResolveFloor float32
	logger           *zap.Logger
}

// NewResolver creates a foreshadow resolver. A floor <= 0 selects the
// default.
func NewResolver(store storage.Store, vectors vector.Driver, embedder embeddings.Embedder, autoResolveFloor float32, logger *zap.Logger) *Resolver {
	if autoResolveFloor <= 0 {
		autoResolveFloor = DefaultAutoResolveFloor
	}
	return &Resolver{
		store:            store,
		vectors:          vectors,
		embedder:         embedder,
		autoResolveFloor: autoResolveFloor,
		logger:           logger,
	}
}

// Resolve marks a planted foreshadow resolved by the given chapter.
// Resolving an already-resolved memory is a no-op; resolving a memory
// that was never planted returns ErrNotForeshadow.
func (r *Resolver) Resolve(ctx context.Context, memoryID, chapterID string) error {
	m, err := r.store.MemoryByID(ctx, memoryID)
	if err != nil {
		return err
	}

	if m.Foreshadow == novel.ForeshadowResolved {
		return nil
	}

	if !m.Foreshadow.CanTransition(novel.ForeshadowResolved) {
		return fmt.Errorf("memory %s in state %q: %w", memoryID, m.Foreshadow, ErrNotForeshadow)
	}

	return r.store.ResolveForeshadow(ctx, memoryID, chapterID)
}

// AutoResolve checks every planted foreshadow in the project against the
// memories of the just-saved chapter. A foreshadow whose text is
// sufficiently similar to any of the chapter's memories is resolved
// against that chapter. Foreshadows planted by the chapter itself are
// skipped. Failures are logged and never propagated; this runs off the
// generation critical path.
func (r *Resolver) AutoResolve(ctx context.Context, project *novel.Project, chapterID string) {
	pending, err := r.store.PendingForeshadows(ctx, project.ID)
	if err != nil {
		r.logger.Warn("listing pending foreshadows failed",
			zap.String("project_id", project.ID),
			zap.Error(err))
		return
	}

	collection := CollectionName(project.UserID, project.ID)

	for _, m := range pending {
		if m.ChapterID == chapterID {
			continue
		}

		embedding, err := r.embedder.Embed(ctx, m.EmbeddingText())
		if err != nil {
			r.logger.Warn("embedding foreshadow failed",
				zap.String("memory_id", m.ID),
				zap.Error(err))
			continue
		}

		results, err := r.vectors.Query(ctx, vector.Query{
			Collection: collection,
			Embedding:  embedding,
			TopK:       1,
			Floor:      r.autoResolveFloor,
			Filter:     vector.Filter{"chapter_id": chapterID},
		})
		if err != nil {
			r.logger.Warn("foreshadow similarity search failed",
				zap.String("memory_id", m.ID),
				zap.Error(err))
			continue
		}

		if len(results) == 0 {
			continue
		}

		if err := r.store.ResolveForeshadow(ctx, m.ID, chapterID); err != nil {
			r.logger.Warn("resolving foreshadow failed",
				zap.String("memory_id", m.ID),
				zap.Error(err))
			continue
		}

		r.logger.Info("foreshadow auto-resolved",
			zap.String("memory_id", m.ID),
			zap.String("chapter_id", chapterID),
			zap.Float32("score", results[0].Score))
	}
}
