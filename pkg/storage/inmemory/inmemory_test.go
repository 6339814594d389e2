package inmemory_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/storyloom/loom/pkg/novel"
	"github.com/storyloom/loom/pkg/storage"
	"github.com/storyloom/loom/pkg/storage/inmemory"
)

var _ = Describe("Store", func() {
	var (
		ctx   context.Context
		store *inmemory.Store
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = inmemory.NewStore()
	})

	It("isolates stored records from caller mutation", func() {
		m := &novel.Memory{
			ID:                "m1",
			ProjectID:         "p1",
			ChapterID:         "ch1",
			Type:              novel.MemoryPlotPoint,
			Title:             "before",
			RelatedCharacters: []string{"c1"},
		}
		Expect(store.InsertMemory(ctx, m)).To(Succeed())

		m.Title = "after"
		m.RelatedCharacters[0] = "mutated"

		got, err := store.MemoryByID(ctx, "m1")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Title).To(Equal("before"))
		Expect(got.RelatedCharacters).To(Equal([]string{"c1"}))
	})

	It("keeps the vector id write-once", func() {
		m := &novel.Memory{ID: "m1", ProjectID: "p1", ChapterID: "ch1"}
		Expect(store.InsertMemory(ctx, m)).To(Succeed())

		Expect(store.SetMemoryVector(ctx, "m1", "v1", "model-a")).To(Succeed())
		Expect(store.SetMemoryVector(ctx, "m1", "v2", "model-b")).To(Succeed())

		got, err := store.MemoryByID(ctx, "m1")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.VectorID).To(Equal("v1"))
	})

	It("allocates max+1 chapter numbers per project", func() {
		Expect(store.InsertChapter(ctx, &novel.Chapter{ID: "a", ProjectID: "p1", Number: 7})).To(Succeed())
		Expect(store.InsertChapter(ctx, &novel.Chapter{ID: "b", ProjectID: "p2", Number: 40})).To(Succeed())

		n, err := store.NextChapterNumber(ctx, "p1")
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(8))
	})

	It("returns the latest version for a slot", func() {
		Expect(store.InsertChapter(ctx, &novel.Chapter{
			ID: "v1", ProjectID: "p1", OutlineID: "o1", SubIndex: 1, Version: 1,
		})).To(Succeed())
		Expect(store.InsertChapter(ctx, &novel.Chapter{
			ID: "v2", ProjectID: "p1", OutlineID: "o1", SubIndex: 1, Version: 2,
		})).To(Succeed())

		got, err := store.ChapterBySlot(ctx, "p1", "o1", 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ID).To(Equal("v2"))
	})

	It("reports ErrNotFound for empty slots", func() {
		_, err := store.ChapterBySlot(ctx, "p1", "o1", 0)
		Expect(storage.IsNotFound(err)).To(BeTrue())
	})

	It("orders pending foreshadows newest timeline first", func() {
		for _, m := range []*novel.Memory{
			{ID: "m1", ProjectID: "p1", ChapterID: "c1", StoryTimeline: 2, Foreshadow: novel.ForeshadowPlanted},
			{ID: "m2", ProjectID: "p1", ChapterID: "c2", StoryTimeline: 9, Foreshadow: novel.ForeshadowPlanted},
			{ID: "m3", ProjectID: "p1", ChapterID: "c3", StoryTimeline: 5, Foreshadow: novel.ForeshadowResolved},
		} {
			Expect(store.InsertMemory(ctx, m)).To(Succeed())
		}

		got, err := store.PendingForeshadows(ctx, "p1")
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(HaveLen(2))
		Expect(got[0].ID).To(Equal("m2"))
		Expect(got[1].ID).To(Equal("m1"))
	})

	It("keeps the first resolving chapter when resolved twice", func() {
		Expect(store.InsertMemory(ctx, &novel.Memory{
			ID: "m1", ProjectID: "p1", ChapterID: "c1",
			Foreshadow: novel.ForeshadowPlanted,
		})).To(Succeed())

		Expect(store.ResolveForeshadow(ctx, "m1", "c61")).To(Succeed())
		Expect(store.ResolveForeshadow(ctx, "m1", "c62")).To(Succeed())

		got, err := store.MemoryByID(ctx, "m1")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Foreshadow).To(Equal(novel.ForeshadowResolved))
		Expect(got.ResolvedAtChapter).To(Equal("c61"))
	})
})
