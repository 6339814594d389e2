package backfill_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/storyloom/loom/pkg/backfill"
	"github.com/storyloom/loom/pkg/memory"
	"github.com/storyloom/loom/pkg/novel"
	"github.com/storyloom/loom/pkg/storage/inmemory"
	testutils "github.com/storyloom/loom/pkg/utils/test"
)

var _ = Describe("Backfiller", func() {
	var (
		ctx     context.Context
		store   *inmemory.Store
		vectors *testutils.MockVectorDriver
		project *novel.Project
		svc     *memory.Service
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = inmemory.NewStore()
		vectors = testutils.NewMockVectorDriver()
		embedder := testutils.NewMockEmbedder()
		svc = memory.NewService(store, vectors, embedder, nil, zap.NewNop())

		project = &novel.Project{
			ID:     "proj-1",
			UserID: "user-1",
			Title:  "The Glass Orchard",
		}
		Expect(store.InsertProject(ctx, project)).To(Succeed())
	})

	addMemory := func(id string, mirrored bool) {
		m := &novel.Memory{
			ID:            id,
			ProjectID:     project.ID,
			ChapterID:     "ch-1",
			Type:          novel.MemoryPlotPoint,
			Title:         "fact " + id,
			Content:       "content for " + id,
			Importance:    0.6,
			StoryTimeline: 1,
			Foreshadow:    novel.ForeshadowNone,
			CreatedAt:     time.Now().UTC(),
		}
		if mirrored {
			m.VectorID = "vec-" + id
			m.EmbeddingModel = "mock-embedder"
		}
		Expect(store.InsertMemory(ctx, m)).To(Succeed())
	}

	It("mirrors only the rows without a vector id", func() {
		addMemory("mem-1", true)
		addMemory("mem-2", false)
		addMemory("mem-3", false)

		b := backfill.NewBackfiller(store, svc, backfill.Options{}, zap.NewNop())
		result, err := b.Run(ctx, project)
		Expect(err).NotTo(HaveOccurred())

		Expect(result.Scanned).To(Equal(3))
		Expect(result.Skipped).To(Equal(1))
		Expect(result.Mirrored).To(Equal(2))
		Expect(result.Failed).To(BeZero())

		collection := memory.CollectionName(project.UserID, project.ID)
		Expect(vectors.Upserted[collection]).To(HaveLen(2))

		m2, err := store.MemoryByID(ctx, "mem-2")
		Expect(err).NotTo(HaveOccurred())
		Expect(m2.VectorID).NotTo(BeEmpty())
		Expect(m2.EmbeddingModel).To(Equal("mock-embedder"))
	})

	It("counts candidates without writing in dry run mode", func() {
		addMemory("mem-1", false)
		addMemory("mem-2", true)

		b := backfill.NewBackfiller(store, svc, backfill.Options{DryRun: true}, zap.NewNop())
		result, err := b.Run(ctx, project)
		Expect(err).NotTo(HaveOccurred())

		Expect(result.Candidates).To(Equal(1))
		Expect(result.Mirrored).To(BeZero())
		Expect(vectors.Upserted).To(BeEmpty())

		m1, err := store.MemoryByID(ctx, "mem-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(m1.VectorID).To(BeEmpty())
	})

	It("keeps scanning past rows that fail again", func() {
		addMemory("mem-1", false)
		addMemory("mem-2", false)
		vectors.FailUpsert = true

		b := backfill.NewBackfiller(store, svc, backfill.Options{}, zap.NewNop())
		result, err := b.Run(ctx, project)
		Expect(err).NotTo(HaveOccurred())

		Expect(result.Failed).To(Equal(2))
		Expect(result.Mirrored).To(BeZero())
	})

	It("reports a clean run on an empty project", func() {
		b := backfill.NewBackfiller(store, svc, backfill.Options{}, zap.NewNop())
		result, err := b.Run(ctx, project)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Scanned).To(BeZero())
		Expect(result.Summary(false)).To(ContainSubstring("0 memories scanned"))
	})
})
