package memory

import (
	"context"

	"go.uber.org/zap"

	"github.com/storyloom/loom/pkg/embeddings"
	"github.com/storyloom/loom/pkg/novel"
	"github.com/storyloom/loom/pkg/storage"
	"github.com/storyloom/loom/pkg/vector"
)

const (
	// DefaultSimilarityFloor drops weakly related hits from semantic
	// search.
	DefaultSimilarityFloor float32 = 0.3

	// fallbackImportanceFloor selects which memories qualify for the
	// relational fallback when the vector side is empty or down.
	fallbackImportanceFloor = 0.5
)

// Retriever performs semantic search over a project's memories, degrading
// to an importance-ranked relational query when the vector side is empty
// or failing. Generation context is never silently empty because of a
// transient vector outage.
type Retriever struct {
	store           storage.Store
	vectors         vector.Driver
	embedder        embeddings.Embedder
	similarityFloor float32
	logger          *zap.Logger
}

// NewRetriever creates a retriever. A floor <= 0 selects the default.
func NewRetriever(store storage.Store, vectors vector.Driver, embedder embeddings.Embedder, similarityFloor float32, logger *zap.Logger) *Retriever {
	if similarityFloor <= 0 {
		similarityFloor = DefaultSimilarityFloor
	}
	return &Retriever{
		store:           store,
		vectors:         vectors,
		embedder:        embedder,
		similarityFloor: similarityFloor,
		logger:          logger,
	}
}

// Search returns up to topK memories relevant to the query, most similar
// first. Vector-side failures are logged and answered from the relational
// fallback, never returned to the caller.
func (r *Retriever) Search(ctx context.Context, project *novel.Project, query string, topK int) ([]*novel.Memory, error) {
	if topK <= 0 {
		topK = 10
	}

	ids := r.vectorSearch(ctx, project, query, topK)
	if len(ids) > 0 {
		memories, err := r.store.MemoriesByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		if len(memories) > 0 {
			return memories, nil
		}
	}

	return r.store.ImportantMemories(ctx, project.ID, fallbackImportanceFloor, topK)
}

// vectorSearch embeds the query and runs the similarity search, returning
// memory ids in similarity order. Any failure returns nil.
func (r *Retriever) vectorSearch(ctx context.Context, project *novel.Project, query string, topK int) []string {
	embedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		r.logger.Warn("embedding query failed, falling back to relational retrieval",
			zap.String("project_id", project.ID),
			zap.Error(err))
		return nil
	}

	results, err := r.vectors.Query(ctx, vector.Query{
		Collection: CollectionName(project.UserID, project.ID),
		Embedding:  embedding,
		TopK:       topK,
		Floor:      r.similarityFloor,
		Filter:     vector.Filter{"project_id": project.ID},
	})
	if err != nil {
		r.logger.Warn("vector search failed, falling back to relational retrieval",
			zap.String("project_id", project.ID),
			zap.Error(err))
		return nil
	}

	var ids []string
	for _, res := range results {
		id, ok := res.Payload["memory_id"].(string)
		if !ok || id == "" {
			continue
		}
		ids = append(ids, id)
	}

	return ids
}

// PendingForeshadows returns every planted foreshadow for the project,
// newest story timeline first. Relational only: the caller wants all open
// threads, not a similarity-ranked subset.
func (r *Retriever) PendingForeshadows(ctx context.Context, projectID string) ([]*novel.Memory, error) {
	return r.store.PendingForeshadows(ctx, projectID)
}

// ListByChapter returns the memories extracted from one chapter.
func (r *Retriever) ListByChapter(ctx context.Context, chapterID string) ([]*novel.Memory, error) {
	return r.store.MemoriesByChapter(ctx, chapterID)
}

// ListByTimelineRange returns memories whose story timeline falls in
// [from, to], oldest first.
func (r *Retriever) ListByTimelineRange(ctx context.Context, projectID string, from, to int) ([]*novel.Memory, error) {
	return r.store.MemoriesByTimelineRange(ctx, projectID, from, to)
}
