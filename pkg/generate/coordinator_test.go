package generate_test

import (
	"context"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/storyloom/loom/pkg/compose"
	"github.com/storyloom/loom/pkg/eventstream"
	"github.com/storyloom/loom/pkg/generate"
	"github.com/storyloom/loom/pkg/history"
	"github.com/storyloom/loom/pkg/llm"
	"github.com/storyloom/loom/pkg/logger"
	"github.com/storyloom/loom/pkg/memory"
	"github.com/storyloom/loom/pkg/novel"
	"github.com/storyloom/loom/pkg/storage/inmemory"
	testutils "github.com/storyloom/loom/pkg/utils/test"
	"github.com/storyloom/loom/pkg/worker"
)

// gateClient streams one chunk, then holds the stream open until the test
// releases it or the context is cancelled.
type gateClient struct {
	release chan struct{}
}

func newGateClient() *gateClient {
	return &gateClient{release: make(chan struct{})}
}

func (g *gateClient) Complete(context.Context, llm.Request) (string, error) {
	return "", llm.ErrNoContent
}

func (g *gateClient) Stream(ctx context.Context, _ llm.Request) (<-chan llm.Chunk, error) {
	out := make(chan llm.Chunk)
	go func() {
		defer close(out)
		out <- llm.Chunk{Text: "The night "}
		select {
		case <-ctx.Done():
			out <- llm.Chunk{Err: ctx.Err()}
		case <-g.release:
			out <- llm.Chunk{Text: "wore on."}
			out <- llm.Chunk{Done: true}
		}
	}()
	return out, nil
}

func (g *gateClient) Model() string { return "gate-model" }
func (g *gateClient) Close() error  { return nil }

// recordPublisher collects published chapter events.
type recordPublisher struct {
	mu     sync.Mutex
	events []*eventstream.ChapterGeneratedEvent
}

func (r *recordPublisher) PublishChapter(_ context.Context, event *eventstream.ChapterGeneratedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordPublisher) Close() error { return nil }

func (r *recordPublisher) published() []*eventstream.ChapterGeneratedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*eventstream.ChapterGeneratedEvent(nil), r.events...)
}

var _ = Describe("Coordinator", func() {
	var (
		ctx      context.Context
		store    *inmemory.Store
		vectors  *testutils.MockVectorDriver
		client   *testutils.MockLLM
		pool     *worker.Pool
		project  *novel.Project
		coord    *generate.Coordinator
		poolOpen bool
	)

	newCoordinator := func(c llm.Client) *generate.Coordinator {
		embedder := testutils.NewMockEmbedder()
		sampler := history.NewSampler(store, 3, 50)
		retriever := memory.NewRetriever(store, vectors, embedder, 0, logger.Nop())
		assembler := compose.NewAssembler(store, sampler, retriever, logger.Nop())
		extractor := memory.NewExtractor(store, c, logger.Nop())
		service := memory.NewService(store, vectors, embedder, extractor, logger.Nop())
		resolver := memory.NewResolver(store, vectors, embedder, 0, logger.Nop())
		return generate.NewCoordinator(store, assembler, c, extractor, service, resolver, pool, logger.Nop())
	}

	BeforeEach(func() {
		ctx = context.Background()
		store = inmemory.NewStore()
		vectors = testutils.NewMockVectorDriver()
		client = &testutils.MockLLM{}

		var err error
		pool, err = worker.NewPool(&worker.Config{NumWorkers: 1, QueueSize: 16, Logger: logger.Nop()})
		Expect(err).NotTo(HaveOccurred())
		poolOpen = true

		project = &novel.Project{
			ID:     "proj-1",
			UserID: "user-1",
			Title:  "The Long Winter",
			Status: novel.ProjectPlanning,
		}
		Expect(store.InsertProject(ctx, project)).To(Succeed())
		Expect(store.InsertOutline(ctx, &novel.Outline{
			ID:        "out-1",
			ProjectID: "proj-1",
			Title:     "The thaw begins",
			Content:   "The river ice cracks.",
		})).To(Succeed())

		coord = newCoordinator(client)
	})

	AfterEach(func() {
		if poolOpen {
			pool.Close()
		}
	})

	drainPool := func() {
		pool.Close()
		poolOpen = false
	}

	// drain consumes the stream, returning the accumulated text and the
	// terminal error chunk, if any.
	drain := func(stream <-chan llm.Chunk) (string, error) {
		var text string
		var err error
		for chunk := range stream {
			text += chunk.Text
			if chunk.Err != nil {
				err = chunk.Err
			}
		}
		return text, err
	}

	Describe("Generate", func() {
		It("creates, streams, and completes a fresh chapter", func() {
			client.StreamChunks = []llm.Chunk{
				{Text: "The ice gave way "},
				{Text: "at dawn."},
				{Done: true},
			}

			stream, err := coord.Generate(ctx, project, "out-1", 0, generate.Options{Temperature: 0.8})
			Expect(err).NotTo(HaveOccurred())

			text, streamErr := drain(stream)
			Expect(streamErr).NotTo(HaveOccurred())
			Expect(text).To(Equal("The ice gave way at dawn."))

			chapters, err := store.ChaptersByProject(ctx, "proj-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(chapters).To(HaveLen(1))

			ch := chapters[0]
			Expect(ch.Number).To(Equal(1))
			Expect(ch.Version).To(Equal(1))
			Expect(ch.Content).To(Equal("The ice gave way at dawn."))
			Expect(ch.WordCount).To(Equal(6))
			Expect(ch.Model).To(Equal("mock-llm"))
			Expect(ch.GenerationStatus).To(Equal(novel.GenerationCompleted))
			Expect(ch.Params.Temperature).To(Equal(0.8))
		})

		It("allocates strictly increasing chapter numbers", func() {
			Expect(store.InsertOutline(ctx, &novel.Outline{
				ID:        "out-2",
				ProjectID: "proj-1",
				Title:     "The flood",
				Content:   "Water takes the lower town.",
			})).To(Succeed())
			client.StreamChunks = []llm.Chunk{{Text: "prose"}, {Done: true}}

			for _, outlineID := range []string{"out-1", "out-2"} {
				stream, err := coord.Generate(ctx, project, outlineID, 0, generate.Options{})
				Expect(err).NotTo(HaveOccurred())
				_, streamErr := drain(stream)
				Expect(streamErr).NotTo(HaveOccurred())
			}

			chapters, err := store.ChaptersByProject(ctx, "proj-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(chapters).To(HaveLen(2))
			Expect(chapters[0].Number).To(Equal(1))
			Expect(chapters[1].Number).To(Equal(2))
		})

		It("refreshes project statistics and advances planning to writing", func() {
			client.StreamChunks = []llm.Chunk{{Text: "one two three"}, {Done: true}}

			stream, err := coord.Generate(ctx, project, "out-1", 0, generate.Options{})
			Expect(err).NotTo(HaveOccurred())
			_, streamErr := drain(stream)
			Expect(streamErr).NotTo(HaveOccurred())

			refreshed, err := store.ProjectByID(ctx, "proj-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(refreshed.Status).To(Equal(novel.ProjectWriting))
			Expect(refreshed.ChapterCount).To(Equal(1))
			Expect(refreshed.TotalWordCount).To(Equal(3))
		})

		It("extracts memories and persists a summary off the critical path", func() {
			client.StreamChunks = []llm.Chunk{{Text: "Mira found the ring in the riverbed."}, {Done: true}}
			client.CompleteResponse = `{"memories": [{"type": "plot_point", "title": "Ring recovered", "content": "Mira pulls the lost ring from the riverbed.", "importance": 0.9}]}`

			stream, err := coord.Generate(ctx, project, "out-1", 0, generate.Options{})
			Expect(err).NotTo(HaveOccurred())
			_, streamErr := drain(stream)
			Expect(streamErr).NotTo(HaveOccurred())

			drainPool()

			chapters, err := store.ChaptersByProject(ctx, "proj-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(chapters).To(HaveLen(1))
			Expect(chapters[0].Summary).To(Equal("Mira found the ring in the riverbed."))

			memories, err := store.MemoriesByChapter(ctx, chapters[0].ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(memories).To(HaveLen(1))
			Expect(memories[0].Title).To(Equal("Ring recovered"))
			Expect(memories[0].StoryTimeline).To(Equal(1))
		})

		It("re-uses a pre-created pending slot keeping number, title, and plan", func() {
			Expect(store.InsertChapter(ctx, &novel.Chapter{
				ID:               "ch-pre",
				ProjectID:        "proj-1",
				OutlineID:        "out-1",
				Number:           7,
				SubIndex:         2,
				Title:            "The thaw, part two",
				Status:           novel.ChapterDraft,
				GenerationStatus: novel.GenerationPending,
				Version:          1,
				Plan:             &novel.ExpansionPlan{PlotSummary: "The crack reaches the mill."},
			})).To(Succeed())
			client.StreamChunks = []llm.Chunk{{Text: "The mill groaned."}, {Done: true}}

			stream, err := coord.Generate(ctx, project, "out-1", 2, generate.Options{})
			Expect(err).NotTo(HaveOccurred())
			_, streamErr := drain(stream)
			Expect(streamErr).NotTo(HaveOccurred())

			ch, err := store.ChapterByID(ctx, "ch-pre")
			Expect(err).NotTo(HaveOccurred())
			Expect(ch.Number).To(Equal(7))
			Expect(ch.Title).To(Equal("The thaw, part two"))
			Expect(ch.Plan).NotTo(BeNil())
			Expect(ch.GenerationStatus).To(Equal(novel.GenerationCompleted))
			Expect(ch.Content).To(Equal("The mill groaned."))
		})

		It("deletes a freshly created row when the stream fails", func() {
			client.StreamChunks = []llm.Chunk{{Text: "The ice"}, {Err: llm.ErrNoContent}}

			stream, err := coord.Generate(ctx, project, "out-1", 0, generate.Options{})
			Expect(err).NotTo(HaveOccurred())
			_, streamErr := drain(stream)
			Expect(streamErr).To(HaveOccurred())

			chapters, err := store.ChaptersByProject(ctx, "proj-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(chapters).To(BeEmpty())
		})

		It("marks a re-used row failed instead of deleting it", func() {
			Expect(store.InsertChapter(ctx, &novel.Chapter{
				ID:               "ch-pre",
				ProjectID:        "proj-1",
				OutlineID:        "out-1",
				Number:           7,
				SubIndex:         1,
				Title:            "The thaw, part one",
				Status:           novel.ChapterDraft,
				GenerationStatus: novel.GenerationPending,
				Version:          1,
				Plan:             &novel.ExpansionPlan{PlotSummary: "The first crack."},
			})).To(Succeed())
			client.StreamChunks = []llm.Chunk{{Err: llm.ErrNoContent}}

			stream, err := coord.Generate(ctx, project, "out-1", 1, generate.Options{})
			Expect(err).NotTo(HaveOccurred())
			_, streamErr := drain(stream)
			Expect(streamErr).To(HaveOccurred())

			ch, err := store.ChapterByID(ctx, "ch-pre")
			Expect(err).NotTo(HaveOccurred())
			Expect(ch.GenerationStatus).To(Equal(novel.GenerationFailed))
			Expect(ch.Plan).NotTo(BeNil())
		})

		It("announces a completed chapter on the attached publisher", func() {
			publisher := &recordPublisher{}
			coord.WithPublisher(publisher)
			client.StreamChunks = []llm.Chunk{{Text: "The ferry left at dusk."}, {Done: true}}

			stream, err := coord.Generate(ctx, project, "out-1", 0, generate.Options{})
			Expect(err).NotTo(HaveOccurred())
			_, streamErr := drain(stream)
			Expect(streamErr).NotTo(HaveOccurred())

			drainPool()

			events := publisher.published()
			Expect(events).To(HaveLen(1))
			Expect(events[0].EventType).To(Equal(eventstream.EventTypeChapterGenerated))
			Expect(events[0].Source.ProjectID).To(Equal("proj-1"))
			Expect(events[0].Chapter.Number).To(Equal(1))
			Expect(events[0].Chapter.WordCount).To(Equal(5))
		})

		It("rejects a slot that already has a completed chapter", func() {
			client.StreamChunks = []llm.Chunk{{Text: "prose"}, {Done: true}}

			stream, err := coord.Generate(ctx, project, "out-1", 0, generate.Options{})
			Expect(err).NotTo(HaveOccurred())
			_, streamErr := drain(stream)
			Expect(streamErr).NotTo(HaveOccurred())

			_, err = coord.Generate(ctx, project, "out-1", 0, generate.Options{})
			Expect(err).To(HaveOccurred())
			Expect(err).NotTo(MatchError(generate.ErrGenerationInFlight))
		})

		It("rejects a concurrent generation for the same slot", func() {
			gate := newGateClient()
			gated := newCoordinator(gate)

			stream, err := gated.Generate(ctx, project, "out-1", 0, generate.Options{})
			Expect(err).NotTo(HaveOccurred())

			_, err = gated.Generate(ctx, project, "out-1", 0, generate.Options{})
			Expect(err).To(MatchError(generate.ErrGenerationInFlight))

			close(gate.release)
			text, streamErr := drain(stream)
			Expect(streamErr).NotTo(HaveOccurred())
			Expect(text).To(Equal("The night wore on."))
		})

		It("runs the failure path on cancellation and frees the lock", func() {
			gate := newGateClient()
			gated := newCoordinator(gate)

			genCtx, cancel := context.WithCancel(ctx)
			stream, err := gated.Generate(genCtx, project, "out-1", 0, generate.Options{})
			Expect(err).NotTo(HaveOccurred())

			Expect((<-stream).Text).To(Equal("The night "))
			cancel()

			_, streamErr := drain(stream)
			Expect(streamErr).To(MatchError(context.Canceled))

			chapters, err := store.ChaptersByProject(ctx, "proj-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(chapters).To(BeEmpty())

			// Lock is free again for the slot.
			client.StreamChunks = []llm.Chunk{{Text: "prose"}, {Done: true}}
			retry, err := coord.Generate(ctx, project, "out-1", 0, generate.Options{})
			Expect(err).NotTo(HaveOccurred())
			_, streamErr = drain(retry)
			Expect(streamErr).NotTo(HaveOccurred())
		})

		It("frees the lock when the consumer abandons a cancelled stream", func() {
			gate := newGateClient()
			gated := newCoordinator(gate)

			genCtx, cancel := context.WithCancel(ctx)
			stream, err := gated.Generate(genCtx, project, "out-1", 0, generate.Options{})
			Expect(err).NotTo(HaveOccurred())

			Expect((<-stream).Text).To(Equal("The night "))
			cancel()
			// The stream is never read again past this point.

			var retry <-chan llm.Chunk
			Eventually(func() error {
				s, err := gated.Generate(ctx, project, "out-1", 0, generate.Options{})
				if err == nil {
					retry = s
				}
				return err
			}).Should(Succeed())

			close(gate.release)
			_, streamErr := drain(retry)
			Expect(streamErr).NotTo(HaveOccurred())
		})
	})

	Describe("Regenerate", func() {
		completeFirst := func() *novel.Chapter {
			client.StreamChunks = []llm.Chunk{{Text: "First telling."}, {Done: true}}
			stream, err := coord.Generate(ctx, project, "out-1", 0, generate.Options{})
			Expect(err).NotTo(HaveOccurred())
			_, streamErr := drain(stream)
			Expect(streamErr).NotTo(HaveOccurred())

			chapters, err := store.ChaptersByProject(ctx, "proj-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(chapters).To(HaveLen(1))
			return chapters[0]
		}

		It("chains a new version to its predecessor", func() {
			first := completeFirst()

			client.StreamChunks = []llm.Chunk{{Text: "Second telling."}, {Done: true}}
			stream, err := coord.Regenerate(ctx, first.ID, generate.Options{})
			Expect(err).NotTo(HaveOccurred())
			_, streamErr := drain(stream)
			Expect(streamErr).NotTo(HaveOccurred())

			latest, err := store.ChapterBySlot(ctx, "proj-1", "out-1", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(latest.Version).To(Equal(2))
			Expect(latest.PreviousVersionID).To(Equal(first.ID))
			Expect(latest.Number).To(Equal(first.Number))
			Expect(latest.Content).To(Equal("Second telling."))

			// The predecessor row is untouched.
			prior, err := store.ChapterByID(ctx, first.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(prior.Content).To(Equal("First telling."))
		})

		It("marks a failed regeneration failed and keeps both rows", func() {
			first := completeFirst()

			client.StreamChunks = []llm.Chunk{{Err: llm.ErrNoContent}}
			stream, err := coord.Regenerate(ctx, first.ID, generate.Options{})
			Expect(err).NotTo(HaveOccurred())
			_, streamErr := drain(stream)
			Expect(streamErr).To(HaveOccurred())

			latest, err := store.ChapterBySlot(ctx, "proj-1", "out-1", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(latest.Version).To(Equal(2))
			Expect(latest.GenerationStatus).To(Equal(novel.GenerationFailed))

			prior, err := store.ChapterByID(ctx, first.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(prior.GenerationStatus).To(Equal(novel.GenerationCompleted))
		})

		It("rejects regeneration of a chapter that is mid-generation", func() {
			Expect(store.InsertChapter(ctx, &novel.Chapter{
				ID:               "ch-busy",
				ProjectID:        "proj-1",
				OutlineID:        "out-1",
				Number:           1,
				Status:           novel.ChapterDraft,
				GenerationStatus: novel.GenerationInProgress,
				Version:          1,
			})).To(Succeed())

			_, err := coord.Regenerate(ctx, "ch-busy", generate.Options{})
			Expect(err).To(MatchError(generate.ErrAlreadyGenerating))
		})
	})
})
