package memory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storyloom/loom/pkg/embeddings"
	"github.com/storyloom/loom/pkg/novel"
	"github.com/storyloom/loom/pkg/storage"
	"github.com/storyloom/loom/pkg/vector"
)

// Service persists memory records relationally and mirrors an embedding of
// each into the project's vector collection. The relational store is the
// source of truth; the vector mirror is best-effort and may lag it.
type Service struct {
	store       storage.Store
	vectors     vector.Driver
	embedder    embeddings.Embedder
	extractor   *Extractor
	collections *collections
	logger      *zap.Logger
}

// NewService creates a memory service.
func NewService(store storage.Store, vectors vector.Driver, embedder embeddings.Embedder, extractor *Extractor, logger *zap.Logger) *Service {
	return &Service{
		store:       store,
		vectors:     vectors,
		embedder:    embedder,
		extractor:   extractor,
		collections: newCollections(vectors, embedder.Dimensions()),
		logger:      logger,
	}
}

// Save persists each memory relationally, then embeds title+content and
// upserts it into the project collection, writing the vector id back on
// success. Embedding or vector failure is isolated per record: the
// relational row is kept, the failure logged, and the batch continues.
func (s *Service) Save(ctx context.Context, project *novel.Project, memories []*novel.Memory) error {
	if len(memories) == 0 {
		return nil
	}

	var errs []error
	for _, m := range memories {
		if err := s.store.InsertMemory(ctx, m); err != nil {
			errs = append(errs, fmt.Errorf("inserting memory %s: %w", m.ID, err))
			continue
		}
		s.mirror(ctx, project, m)
	}

	return errors.Join(errs...)
}

// mirror embeds one memory and upserts it into the vector collection.
// Failures are logged and swallowed; the relational row stays without a
// vector id and retrieval falls back to the relational path.
func (s *Service) mirror(ctx context.Context, project *novel.Project, m *novel.Memory) {
	if err := s.Mirror(ctx, project, m); err != nil {
		s.logger.Warn("memory kept relational only",
			zap.String("memory_id", m.ID),
			zap.Error(err))
	}
}

// Mirror embeds one memory and upserts it into the project's vector
// collection, writing the vector id back on success. Used on the save path
// and by backfill to repair rows whose original mirror attempt failed.
func (s *Service) Mirror(ctx context.Context, project *novel.Project, m *novel.Memory) error {
	collection, err := s.collections.ensure(ctx, project.UserID, project.ID)
	if err != nil {
		return fmt.Errorf("ensuring vector collection: %w", err)
	}

	embedding, err := s.embedder.Embed(ctx, m.EmbeddingText())
	if err != nil {
		return fmt.Errorf("embedding memory: %w", err)
	}

	vectorID := uuid.NewString()
	doc := vector.Document{
		ID:        vectorID,
		Embedding: embedding,
		Payload: map[string]any{
			"project_id":     m.ProjectID,
			"memory_id":      m.ID,
			"chapter_id":     m.ChapterID,
			"chapter_number": m.StoryTimeline,
			"memory_type":    string(m.Type),
			"importance":     m.Importance,
			"foreshadow":     string(m.Foreshadow),
		},
	}

	if err := s.vectors.Upsert(ctx, collection, []vector.Document{doc}); err != nil {
		return fmt.Errorf("upserting memory vector: %w", err)
	}

	if err := s.store.SetMemoryVector(ctx, m.ID, vectorID, s.embedder.Model()); err != nil {
		return fmt.Errorf("recording vector id: %w", err)
	}

	m.VectorID = vectorID
	m.EmbeddingModel = s.embedder.Model()
	return nil
}

// DeleteByChapter removes a chapter's memories from both stores. The
// vector side goes first and is best-effort: a vector outage must not
// block the relational delete, but it is logged for reconciliation.
func (s *Service) DeleteByChapter(ctx context.Context, project *novel.Project, chapterID string) error {
	memories, err := s.store.MemoriesByChapter(ctx, chapterID)
	if err != nil {
		return fmt.Errorf("listing chapter memories: %w", err)
	}

	var vectorIDs []string
	for _, m := range memories {
		if m.VectorID != "" {
			vectorIDs = append(vectorIDs, m.VectorID)
		}
	}

	if len(vectorIDs) > 0 {
		collection := CollectionName(project.UserID, project.ID)
		if err := s.vectors.Delete(ctx, collection, vectorIDs); err != nil {
			s.logger.Warn("deleting chapter vectors failed, relational delete proceeds",
				zap.String("chapter_id", chapterID),
				zap.Int("vectors", len(vectorIDs)),
				zap.Error(err))
		}
	}

	return s.store.DeleteMemoriesByChapter(ctx, chapterID)
}

// DeleteByProject drops the project's whole vector collection, then the
// relational rows.
func (s *Service) DeleteByProject(ctx context.Context, project *novel.Project) error {
	collection := CollectionName(project.UserID, project.ID)
	if err := s.vectors.DropCollection(ctx, collection); err != nil {
		s.logger.Warn("dropping project collection failed, relational delete proceeds",
			zap.String("project_id", project.ID),
			zap.Error(err))
	}
	s.collections.forget(collection)

	return s.store.DeleteMemoriesByProject(ctx, project.ID)
}

// ReExtract rebuilds a chapter's memories: deletes the existing set, runs
// extraction over the stored content, and saves the new batch.
func (s *Service) ReExtract(ctx context.Context, project *novel.Project, chapterID string) ([]*novel.Memory, error) {
	chapter, err := s.store.ChapterByID(ctx, chapterID)
	if err != nil {
		return nil, fmt.Errorf("loading chapter: %w", err)
	}

	if err := s.DeleteByChapter(ctx, project, chapterID); err != nil {
		return nil, fmt.Errorf("deleting prior memories: %w", err)
	}

	memories := s.extractor.Extract(ctx, project, chapter.ID, chapter.Number, chapter.Content)
	if err := s.Save(ctx, project, memories); err != nil {
		return nil, err
	}

	return memories, nil
}

// Statistics aggregates the project's memory counts.
func (s *Service) Statistics(ctx context.Context, projectID string) (*storage.MemoryStats, error) {
	return s.store.MemoryStatistics(ctx, projectID)
}
