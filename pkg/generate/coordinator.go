// Package generate drives chapter generation: slot locking, the chapter
// state machine across a streaming model call, version chaining on
// regeneration, and the background work queued after a completed chapter.
package generate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storyloom/loom/pkg/compose"
	"github.com/storyloom/loom/pkg/eventstream"
	"github.com/storyloom/loom/pkg/llm"
	"github.com/storyloom/loom/pkg/memory"
	"github.com/storyloom/loom/pkg/novel"
	"github.com/storyloom/loom/pkg/storage"
	"github.com/storyloom/loom/pkg/worker"
)

// Options tune one generation call.
type Options struct {
	// Model overrides the client's default model when non-empty.
	Model string

	Temperature     float64
	TopP            float64
	TargetWordCount int

	// MemoryTopK and SkipMemories pass through to context assembly.
	MemoryTopK   int
	SkipMemories bool
}

// Coordinator owns the generation lifecycle for chapters.
type Coordinator struct {
	store     storage.Store
	assembler *compose.Assembler
	client    llm.Client
	extractor *memory.Extractor
	memories  *memory.Service
	resolver  *memory.Resolver
	pool      *worker.Pool
	locks     *LockTable
	events    eventstream.Publisher
	logger    *zap.Logger
}

// NewCoordinator creates a generation coordinator with its own lock table.
func NewCoordinator(store storage.Store, assembler *compose.Assembler, client llm.Client, extractor *memory.Extractor, memories *memory.Service, resolver *memory.Resolver, pool *worker.Pool, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		store:     store,
		assembler: assembler,
		client:    client,
		extractor: extractor,
		memories:  memories,
		resolver:  resolver,
		pool:      pool,
		locks:     NewLockTable(),
		logger:    logger,
	}
}

// WithPublisher attaches an event publisher. Completed chapters are then
// announced on it from the background pool; publish failures are logged
// and never affect the chapter.
func (c *Coordinator) WithPublisher(p eventstream.Publisher) *Coordinator {
	c.events = p
	return c
}

// Generate streams a new chapter for the (outline, subIndex) slot. A
// pre-created pending or failed row for the slot is re-used, keeping its
// number, title, and expansion plan; otherwise the next global chapter
// number is allocated and a fresh row inserted. The returned channel
// forwards model chunks and closes after the terminal chunk; the chapter
// row reaches completed or is rolled back by then.
func (c *Coordinator) Generate(ctx context.Context, project *novel.Project, outlineID string, subIndex int, opts Options) (<-chan llm.Chunk, error) {
	key := LockKey{ProjectID: project.ID, OutlineID: outlineID, SubIndex: subIndex}
	release, err := c.locks.TryAcquire(key)
	if err != nil {
		return nil, err
	}

	outline, err := c.store.OutlineByID(ctx, outlineID)
	if err != nil {
		release()
		return nil, fmt.Errorf("loading outline: %w", err)
	}

	chapter, created, err := c.prepareSlot(ctx, project, outline, subIndex, opts)
	if err != nil {
		release()
		return nil, err
	}

	return c.run(ctx, project, outline, chapter, created, opts, release)
}

// Regenerate streams a replacement version of an existing chapter. The new
// row chains to its predecessor via PreviousVersionID and keeps the same
// number, outline, and sub-index. A failed regeneration is marked failed,
// never deleted; a prior version exists.
func (c *Coordinator) Regenerate(ctx context.Context, chapterID string, opts Options) (<-chan llm.Chunk, error) {
	source, err := c.store.ChapterByID(ctx, chapterID)
	if err != nil {
		return nil, fmt.Errorf("loading chapter: %w", err)
	}

	if source.GenerationStatus == novel.GenerationInProgress {
		return nil, ErrAlreadyGenerating
	}

	key := LockKey{ProjectID: source.ProjectID, OutlineID: source.OutlineID, SubIndex: source.SubIndex}
	release, err := c.locks.TryAcquire(key)
	if err != nil {
		return nil, err
	}

	project, err := c.store.ProjectByID(ctx, source.ProjectID)
	if err != nil {
		release()
		return nil, fmt.Errorf("loading project: %w", err)
	}

	outline, err := c.store.OutlineByID(ctx, source.OutlineID)
	if err != nil {
		release()
		return nil, fmt.Errorf("loading outline: %w", err)
	}

	now := time.Now().UTC()
	next := &novel.Chapter{
		ID:                uuid.NewString(),
		ProjectID:         source.ProjectID,
		OutlineID:         source.OutlineID,
		Number:            source.Number,
		SubIndex:          source.SubIndex,
		Title:             source.Title,
		Status:            novel.ChapterDraft,
		GenerationStatus:  novel.GenerationInProgress,
		Version:           source.Version + 1,
		PreviousVersionID: source.ID,
		Model:             c.modelName(opts),
		Params:            params(opts),
		Plan:              source.Plan,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := c.store.InsertChapter(ctx, next); err != nil {
		release()
		return nil, fmt.Errorf("inserting chapter version: %w", err)
	}

	return c.run(ctx, project, outline, next, false, opts, release)
}

// prepareSlot resolves the entry shape: re-use a pre-created row or insert
// a fresh one. Returns whether the row was created by this call, which
// decides delete-versus-mark-failed on error.
func (c *Coordinator) prepareSlot(ctx context.Context, project *novel.Project, outline *novel.Outline, subIndex int, opts Options) (*novel.Chapter, bool, error) {
	now := time.Now().UTC()

	existing, err := c.store.ChapterBySlot(ctx, project.ID, outline.ID, subIndex)
	switch {
	case err == nil:
		switch existing.GenerationStatus {
		case novel.GenerationPending, novel.GenerationFailed:
			existing.GenerationStatus = novel.GenerationInProgress
			existing.Model = c.modelName(opts)
			existing.Params = params(opts)
			existing.UpdatedAt = now
			if err := c.store.UpdateChapter(ctx, existing); err != nil {
				return nil, false, fmt.Errorf("claiming slot chapter: %w", err)
			}
			return existing, false, nil
		case novel.GenerationInProgress:
			return nil, false, ErrAlreadyGenerating
		default:
			return nil, false, fmt.Errorf("slot already has a completed chapter %s, regenerate it instead", existing.ID)
		}

	case storage.IsNotFound(err):
		number, err := c.store.NextChapterNumber(ctx, project.ID)
		if err != nil {
			return nil, false, fmt.Errorf("allocating chapter number: %w", err)
		}

		chapter := &novel.Chapter{
			ID:               uuid.NewString(),
			ProjectID:        project.ID,
			OutlineID:        outline.ID,
			Number:           number,
			SubIndex:         subIndex,
			Title:            outline.Title,
			Status:           novel.ChapterDraft,
			GenerationStatus: novel.GenerationInProgress,
			Version:          1,
			Model:            c.modelName(opts),
			Params:           params(opts),
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := c.store.InsertChapter(ctx, chapter); err != nil {
			return nil, false, fmt.Errorf("inserting chapter: %w", err)
		}
		return chapter, true, nil

	default:
		return nil, false, fmt.Errorf("resolving slot: %w", err)
	}
}

// run assembles the context, starts the stream, and pumps chunks to the
// caller while accumulating the chapter text. The lock is released on
// every exit path: assembly failure, stream start failure, stream error,
// cancellation, and completion.
func (c *Coordinator) run(ctx context.Context, project *novel.Project, outline *novel.Outline, chapter *novel.Chapter, created bool, opts Options, release func()) (<-chan llm.Chunk, error) {
	gctx, err := c.assembler.Build(ctx, project, outline, chapter.Number, compose.Options{
		SubIndex:     chapter.SubIndex,
		MemoryTopK:   opts.MemoryTopK,
		SkipMemories: opts.SkipMemories,
	})
	if err != nil {
		c.abort(chapter, created)
		release()
		return nil, fmt.Errorf("assembling context: %w", err)
	}

	stream, err := c.client.Stream(ctx, llm.Request{
		Model: opts.Model,
		Messages: []llm.Message{
			{Role: "system", Content: compose.RenderSystem(gctx)},
			{Role: "user", Content: compose.RenderUser(gctx)},
		},
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
	})
	if err != nil {
		c.abort(chapter, created)
		release()
		return nil, fmt.Errorf("starting stream: %w", err)
	}

	// The one-slot buffer lets the terminal chunk land without a parked
	// receiver.
	out := make(chan llm.Chunk, 1)
	go func() {
		defer close(out)
		defer release()

		// Sends never block past cancellation, so an abandoned consumer
		// cannot pin this goroutine or the slot lock.
		send := func(chunk llm.Chunk) bool {
			select {
			case out <- chunk:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var text strings.Builder
		for chunk := range stream {
			text.WriteString(chunk.Text)

			if chunk.Err != nil {
				c.abort(chapter, created)
				send(chunk)
				return
			}

			if chunk.Done {
				c.commit(project, chapter, text.String())
				send(chunk)
				return
			}

			if !send(chunk) {
				c.abort(chapter, created)
				return
			}
		}

		// Stream closed without a terminal chunk; treat as failure.
		c.abort(chapter, created)
		send(llm.Chunk{Err: llm.ErrNoContent})
	}()

	return out, nil
}

// abort rolls the chapter row back after a failed or cancelled stream. A
// row created by this call is deleted; a re-used or versioned row is
// marked failed so its plan and history survive a retry. Runs on a
// background context: the caller's context may already be cancelled.
func (c *Coordinator) abort(chapter *novel.Chapter, created bool) {
	ctx := context.Background()

	if created {
		if err := c.store.DeleteChapter(ctx, chapter.ID); err != nil {
			c.logger.Error("deleting aborted chapter failed",
				zap.String("chapter_id", chapter.ID),
				zap.Error(err))
		}
		return
	}

	chapter.GenerationStatus = novel.GenerationFailed
	chapter.UpdatedAt = time.Now().UTC()
	if err := c.store.UpdateChapter(ctx, chapter); err != nil {
		c.logger.Error("marking chapter failed failed",
			zap.String("chapter_id", chapter.ID),
			zap.Error(err))
	}
}

// commit persists the finished chapter, refreshes project aggregates, and
// queues the off-path work: memory extraction with auto-resolution, and
// summary generation. Their failures are logged by the pool and never
// touch the chapter's completed status.
func (c *Coordinator) commit(project *novel.Project, chapter *novel.Chapter, content string) {
	ctx := context.Background()

	chapter.Content = content
	chapter.WordCount = len(strings.Fields(content))
	chapter.GenerationStatus = novel.GenerationCompleted
	chapter.UpdatedAt = time.Now().UTC()

	if err := c.store.UpdateChapter(ctx, chapter); err != nil {
		c.logger.Error("persisting completed chapter failed",
			zap.String("chapter_id", chapter.ID),
			zap.Error(err))
		return
	}

	c.refreshProject(ctx, project)

	c.pool.Enqueue(worker.Task{
		Name: "memory-extraction",
		Run: func(taskCtx context.Context) error {
			extracted := c.extractor.Extract(taskCtx, project, chapter.ID, chapter.Number, content)
			if err := c.memories.Save(taskCtx, project, extracted); err != nil {
				return err
			}
			c.resolver.AutoResolve(taskCtx, project, chapter.ID)
			return nil
		},
	})

	c.pool.Enqueue(worker.Task{
		Name: "chapter-summary",
		Run: func(taskCtx context.Context) error {
			fresh, err := c.store.ChapterByID(taskCtx, chapter.ID)
			if err != nil {
				return err
			}
			fresh.Summary = novel.Summarize(fresh.Content)
			fresh.UpdatedAt = time.Now().UTC()
			return c.store.UpdateChapter(taskCtx, fresh)
		},
	})

	if c.events != nil {
		event := eventstream.NewChapterGeneratedEvent(project, chapter)
		c.pool.Enqueue(worker.Task{
			Name: "chapter-event",
			Run: func(taskCtx context.Context) error {
				return c.events.PublishChapter(taskCtx, event)
			},
		})
	}
}

// refreshProject recomputes the project's aggregates from the latest
// completed version of each slot and advances a planning project to
// writing.
func (c *Coordinator) refreshProject(ctx context.Context, project *novel.Project) {
	chapters, err := c.store.ChaptersByProject(ctx, project.ID)
	if err != nil {
		c.logger.Error("refreshing project statistics failed",
			zap.String("project_id", project.ID),
			zap.Error(err))
		return
	}

	type slot struct {
		outlineID string
		subIndex  int
	}
	latest := make(map[slot]*novel.Chapter)
	for _, ch := range chapters {
		key := slot{ch.OutlineID, ch.SubIndex}
		if prev, ok := latest[key]; !ok || ch.Version > prev.Version {
			latest[key] = ch
		}
	}

	count, words := 0, 0
	for _, ch := range latest {
		if ch.GenerationStatus != novel.GenerationCompleted {
			continue
		}
		count++
		words += ch.WordCount
	}

	project.ChapterCount = count
	project.TotalWordCount = words
	if project.Status == novel.ProjectPlanning {
		project.Status = novel.ProjectWriting
	}
	project.UpdatedAt = time.Now().UTC()

	if err := c.store.UpdateProject(ctx, project); err != nil {
		c.logger.Error("persisting project statistics failed",
			zap.String("project_id", project.ID),
			zap.Error(err))
	}
}

func (c *Coordinator) modelName(opts Options) string {
	if opts.Model != "" {
		return opts.Model
	}
	return c.client.Model()
}

func params(opts Options) novel.GenerationParams {
	return novel.GenerationParams{
		Temperature:     opts.Temperature,
		TopP:            opts.TopP,
		TargetWordCount: opts.TargetWordCount,
	}
}
