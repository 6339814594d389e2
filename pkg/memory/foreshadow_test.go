package memory_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/storyloom/loom/pkg/logger"
	"github.com/storyloom/loom/pkg/memory"
	"github.com/storyloom/loom/pkg/novel"
	"github.com/storyloom/loom/pkg/storage/inmemory"
	testutils "github.com/storyloom/loom/pkg/utils/test"
	"github.com/storyloom/loom/pkg/vector"
)

var _ = Describe("Resolver", func() {
	var (
		ctx      context.Context
		store    *inmemory.Store
		vectors  *testutils.MockVectorDriver
		embedder *testutils.MockEmbedder
		resolver *memory.Resolver
		project  *novel.Project
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = inmemory.NewStore()
		vectors = testutils.NewMockVectorDriver()
		embedder = testutils.NewMockEmbedder()
		resolver = memory.NewResolver(store, vectors, embedder, 0, logger.Nop())
		project = &novel.Project{ID: "proj-1", UserID: "user-1"}
	})

	insert := func(id, chapterID string, state novel.ForeshadowState) {
		Expect(store.InsertMemory(ctx, &novel.Memory{
			ID:            id,
			ProjectID:     "proj-1",
			ChapterID:     chapterID,
			Type:          novel.MemoryForeshadow,
			Title:         "title " + id,
			Content:       "content " + id,
			Importance:    0.6,
			StoryTimeline: 1,
			Foreshadow:    state,
		})).To(Succeed())
	}

	Describe("Resolve", func() {
		It("transitions a planted foreshadow to resolved with the chapter id", func() {
			insert("mem-1", "ch-1", novel.ForeshadowPlanted)

			Expect(resolver.Resolve(ctx, "mem-1", "ch-9")).To(Succeed())

			m, err := store.MemoryByID(ctx, "mem-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Foreshadow).To(Equal(novel.ForeshadowResolved))
			Expect(m.ResolvedAtChapter).To(Equal("ch-9"))
		})

		It("is a no-op on an already resolved foreshadow", func() {
			insert("mem-1", "ch-1", novel.ForeshadowPlanted)
			Expect(resolver.Resolve(ctx, "mem-1", "ch-5")).To(Succeed())

			Expect(resolver.Resolve(ctx, "mem-1", "ch-9")).To(Succeed())

			m, err := store.MemoryByID(ctx, "mem-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(m.ResolvedAtChapter).To(Equal("ch-5"))
		})

		It("rejects resolution of a memory that was never planted", func() {
			insert("mem-1", "ch-1", novel.ForeshadowNone)

			err := resolver.Resolve(ctx, "mem-1", "ch-9")
			Expect(err).To(MatchError(memory.ErrNotForeshadow))
		})

		It("errors for an unknown memory id", func() {
			Expect(resolver.Resolve(ctx, "mem-missing", "ch-9")).To(HaveOccurred())
		})
	})

	Describe("AutoResolve", func() {
		It("resolves a planted foreshadow that matches the current chapter's memories", func() {
			insert("mem-ring", "ch-1", novel.ForeshadowPlanted)
			vectors.Results = []vector.QueryResult{{
				Document: vector.Document{
					ID:      "vec-1",
					Payload: map[string]any{"chapter_id": "ch-61", "memory_id": "mem-return"},
				},
				Score: 0.92,
			}}

			resolver.AutoResolve(ctx, project, "ch-61")

			m, err := store.MemoryByID(ctx, "mem-ring")
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Foreshadow).To(Equal(novel.ForeshadowResolved))
			Expect(m.ResolvedAtChapter).To(Equal("ch-61"))
		})

		It("skips foreshadows planted by the current chapter", func() {
			insert("mem-own", "ch-61", novel.ForeshadowPlanted)
			vectors.Results = []vector.QueryResult{{
				Document: vector.Document{
					ID:      "vec-1",
					Payload: map[string]any{"chapter_id": "ch-61", "memory_id": "mem-x"},
				},
				Score: 0.99,
			}}

			resolver.AutoResolve(ctx, project, "ch-61")

			m, err := store.MemoryByID(ctx, "mem-own")
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Foreshadow).To(Equal(novel.ForeshadowPlanted))
		})

		It("leaves foreshadows planted when nothing clears the floor", func() {
			insert("mem-ring", "ch-1", novel.ForeshadowPlanted)
			vectors.Results = []vector.QueryResult{{
				Document: vector.Document{
					ID:      "vec-1",
					Payload: map[string]any{"chapter_id": "ch-61", "memory_id": "mem-x"},
				},
				Score: 0.4,
			}}

			resolver.AutoResolve(ctx, project, "ch-61")

			m, err := store.MemoryByID(ctx, "mem-ring")
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Foreshadow).To(Equal(novel.ForeshadowPlanted))
		})

		It("tolerates a vector store outage", func() {
			insert("mem-ring", "ch-1", novel.ForeshadowPlanted)
			vectors.FailQuery = true

			resolver.AutoResolve(ctx, project, "ch-61")

			m, err := store.MemoryByID(ctx, "mem-ring")
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Foreshadow).To(Equal(novel.ForeshadowPlanted))
		})
	})
})
