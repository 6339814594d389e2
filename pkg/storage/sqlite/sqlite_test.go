package sqlite_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/google/uuid"

	"github.com/storyloom/loom/pkg/novel"
	"github.com/storyloom/loom/pkg/storage"
	"github.com/storyloom/loom/pkg/storage/sqlite"
)

var _ = Describe("Store", func() {
	var (
		ctx   context.Context
		store *sqlite.Store
	)

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		store, err = sqlite.NewStore(":memory:")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(store.Close()).To(Succeed())
	})

	newMemory := func(projectID string, timeline int, importance float64) *novel.Memory {
		return &novel.Memory{
			ID:            uuid.NewString(),
			ProjectID:     projectID,
			ChapterID:     uuid.NewString(),
			Type:          novel.MemoryPlotPoint,
			Title:         "a title",
			Content:       "some content",
			Importance:    importance,
			StoryTimeline: timeline,
			Foreshadow:    novel.ForeshadowNone,
		}
	}

	Describe("memories", func() {
		It("round-trips a memory with related ids", func() {
			m := newMemory("p1", 3, 0.8)
			m.RelatedCharacters = []string{"c1", "c2"}
			m.RelatedLocations = []string{"l1"}
			Expect(store.InsertMemory(ctx, m)).To(Succeed())

			got, err := store.MemoryByID(ctx, m.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Title).To(Equal("a title"))
			Expect(got.RelatedCharacters).To(Equal([]string{"c1", "c2"}))
			Expect(got.RelatedLocations).To(Equal([]string{"l1"}))
			Expect(got.Importance).To(BeNumerically("~", 0.8, 1e-9))
		})

		It("returns ErrNotFound for a missing memory", func() {
			_, err := store.MemoryByID(ctx, "missing")
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})

		It("keeps the vector id write-once", func() {
			m := newMemory("p1", 1, 0.5)
			Expect(store.InsertMemory(ctx, m)).To(Succeed())

			Expect(store.SetMemoryVector(ctx, m.ID, "v1", "nomic-embed-text")).To(Succeed())
			Expect(store.SetMemoryVector(ctx, m.ID, "v2", "other")).To(Succeed())

			got, err := store.MemoryByID(ctx, m.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.VectorID).To(Equal("v1"))
			Expect(got.EmbeddingModel).To(Equal("nomic-embed-text"))
		})

		It("resolves ids in input order, skipping missing", func() {
			a := newMemory("p1", 1, 0.5)
			b := newMemory("p1", 2, 0.5)
			Expect(store.InsertMemory(ctx, a)).To(Succeed())
			Expect(store.InsertMemory(ctx, b)).To(Succeed())

			got, err := store.MemoriesByIDs(ctx, []string{b.ID, "gone", a.ID})
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveLen(2))
			Expect(got[0].ID).To(Equal(b.ID))
			Expect(got[1].ID).To(Equal(a.ID))
		})

		It("filters and orders important memories", func() {
			low := newMemory("p1", 1, 0.2)
			mid := newMemory("p1", 2, 0.6)
			high := newMemory("p1", 3, 0.9)
			other := newMemory("p2", 1, 0.9)
			for _, m := range []*novel.Memory{low, mid, high, other} {
				Expect(store.InsertMemory(ctx, m)).To(Succeed())
			}

			got, err := store.ImportantMemories(ctx, "p1", 0.5, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveLen(2))
			Expect(got[0].ID).To(Equal(high.ID))
			Expect(got[1].ID).To(Equal(mid.ID))
		})

		It("lists pending foreshadows newest first", func() {
			early := newMemory("p1", 2, 0.7)
			early.Type = novel.MemoryForeshadow
			early.Foreshadow = novel.ForeshadowPlanted
			late := newMemory("p1", 9, 0.7)
			late.Type = novel.MemoryForeshadow
			late.Foreshadow = novel.ForeshadowPlanted
			done := newMemory("p1", 5, 0.7)
			done.Type = novel.MemoryForeshadow
			done.Foreshadow = novel.ForeshadowResolved
			for _, m := range []*novel.Memory{early, late, done} {
				Expect(store.InsertMemory(ctx, m)).To(Succeed())
			}

			got, err := store.PendingForeshadows(ctx, "p1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveLen(2))
			Expect(got[0].ID).To(Equal(late.ID))
			Expect(got[1].ID).To(Equal(early.ID))
		})

		It("resolves a foreshadow with the resolving chapter", func() {
			m := newMemory("p1", 4, 0.7)
			m.Type = novel.MemoryForeshadow
			m.Foreshadow = novel.ForeshadowPlanted
			Expect(store.InsertMemory(ctx, m)).To(Succeed())

			Expect(store.ResolveForeshadow(ctx, m.ID, "ch-61")).To(Succeed())

			got, err := store.MemoryByID(ctx, m.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Foreshadow).To(Equal(novel.ForeshadowResolved))
			Expect(got.ResolvedAtChapter).To(Equal("ch-61"))
		})

		It("keeps the first resolving chapter when resolved twice", func() {
			m := newMemory("p1", 4, 0.7)
			m.Type = novel.MemoryForeshadow
			m.Foreshadow = novel.ForeshadowPlanted
			Expect(store.InsertMemory(ctx, m)).To(Succeed())

			Expect(store.ResolveForeshadow(ctx, m.ID, "ch-61")).To(Succeed())
			Expect(store.ResolveForeshadow(ctx, m.ID, "ch-62")).To(Succeed())

			got, err := store.MemoryByID(ctx, m.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ResolvedAtChapter).To(Equal("ch-61"))
		})

		It("reports a missing memory on resolve", func() {
			err := store.ResolveForeshadow(ctx, "nope", "ch-61")
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})

		It("aggregates statistics", func() {
			a := newMemory("p1", 1, 0.5)
			b := newMemory("p1", 2, 0.5)
			b.Type = novel.MemoryForeshadow
			b.Foreshadow = novel.ForeshadowPlanted
			c := newMemory("p1", 3, 0.5)
			c.Type = novel.MemoryForeshadow
			c.Foreshadow = novel.ForeshadowResolved
			for _, m := range []*novel.Memory{a, b, c} {
				Expect(store.InsertMemory(ctx, m)).To(Succeed())
			}

			stats, err := store.MemoryStatistics(ctx, "p1")
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Total).To(Equal(3))
			Expect(stats.ByType[novel.MemoryForeshadow]).To(Equal(2))
			Expect(stats.PendingForeshadows).To(Equal(1))
			Expect(stats.ResolvedForeshadows).To(Equal(1))
			Expect(stats.CoveredChapters).To(Equal(3))
		})

		It("deletes by chapter and by project", func() {
			a := newMemory("p1", 1, 0.5)
			b := newMemory("p1", 2, 0.5)
			Expect(store.InsertMemory(ctx, a)).To(Succeed())
			Expect(store.InsertMemory(ctx, b)).To(Succeed())

			Expect(store.DeleteMemoriesByChapter(ctx, a.ChapterID)).To(Succeed())
			_, err := store.MemoryByID(ctx, a.ID)
			Expect(storage.IsNotFound(err)).To(BeTrue())

			Expect(store.DeleteMemoriesByProject(ctx, "p1")).To(Succeed())
			_, err = store.MemoryByID(ctx, b.ID)
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})
	})

	Describe("chapters", func() {
		newChapter := func(number, subIndex, version int) *novel.Chapter {
			return &novel.Chapter{
				ID:               uuid.NewString(),
				ProjectID:        "p1",
				OutlineID:        "o1",
				Number:           number,
				SubIndex:         subIndex,
				Title:            "chapter",
				Status:           novel.ChapterDraft,
				GenerationStatus: novel.GenerationPending,
				Version:          version,
				Params:           novel.GenerationParams{Temperature: 0.7, TopP: 0.9},
			}
		}

		It("round-trips a chapter with an expansion plan", func() {
			c := newChapter(1, 1, 1)
			c.Plan = &novel.ExpansionPlan{
				PlotSummary: "the storm breaks",
				KeyEvents:   []string{"flood", "rescue"},
				Scenes: []novel.PlanScene{
					{Location: "harbor", Characters: []string{"Mira"}, Purpose: "raise stakes"},
				},
			}
			Expect(store.InsertChapter(ctx, c)).To(Succeed())

			got, err := store.ChapterByID(ctx, c.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Plan).NotTo(BeNil())
			Expect(got.Plan.PlotSummary).To(Equal("the storm breaks"))
			Expect(got.Plan.Scenes).To(HaveLen(1))
			Expect(got.Params.Temperature).To(BeNumerically("~", 0.7, 1e-9))
		})

		It("allocates strictly increasing chapter numbers", func() {
			n, err := store.NextChapterNumber(ctx, "p1")
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))

			c := newChapter(n, 0, 1)
			Expect(store.InsertChapter(ctx, c)).To(Succeed())

			n, err = store.NextChapterNumber(ctx, "p1")
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(2))
		})

		It("returns the latest version for a slot", func() {
			v1 := newChapter(3, 2, 1)
			v2 := newChapter(3, 2, 2)
			v2.PreviousVersionID = v1.ID
			Expect(store.InsertChapter(ctx, v1)).To(Succeed())
			Expect(store.InsertChapter(ctx, v2)).To(Succeed())

			got, err := store.ChapterBySlot(ctx, "p1", "o1", 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(v2.ID))
			Expect(got.PreviousVersionID).To(Equal(v1.ID))
		})

		It("returns ErrNotFound updating a missing chapter", func() {
			c := newChapter(1, 0, 1)
			err := store.UpdateChapter(ctx, c)
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})

		It("deletes a chapter", func() {
			c := newChapter(1, 0, 1)
			Expect(store.InsertChapter(ctx, c)).To(Succeed())
			Expect(store.DeleteChapter(ctx, c.ID)).To(Succeed())

			_, err := store.ChapterByID(ctx, c.ID)
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})
	})

	Describe("projects and roster", func() {
		It("round-trips a project and updates statistics", func() {
			p := &novel.Project{
				ID:     "p1",
				UserID: "u1",
				Title:  "The Tidewater Chronicle",
				Status: novel.ProjectPlanning,
			}
			Expect(store.InsertProject(ctx, p)).To(Succeed())

			p.Status = novel.ProjectWriting
			p.ChapterCount = 3
			p.TotalWordCount = 4200
			Expect(store.UpdateProject(ctx, p)).To(Succeed())

			got, err := store.ProjectByID(ctx, "p1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Status).To(Equal(novel.ProjectWriting))
			Expect(got.ChapterCount).To(Equal(3))
			Expect(got.TotalWordCount).To(Equal(4200))
		})

		It("batch-resolves characters by name", func() {
			roster := []*novel.Character{
				{ID: "c1", ProjectID: "p1", Name: "Mira", Role: novel.RoleProtagonist},
				{ID: "c2", ProjectID: "p1", Name: "Sorin", Role: novel.RoleAntagonist},
				{ID: "c3", ProjectID: "p2", Name: "Mira", Role: novel.RoleSupporting},
			}
			for _, c := range roster {
				Expect(store.InsertCharacter(ctx, c)).To(Succeed())
			}

			got, err := store.CharactersByName(ctx, "p1", []string{"Mira", "Nobody"})
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveLen(1))
			Expect(got[0].ID).To(Equal("c1"))
		})

		It("round-trips an outline", func() {
			o := &novel.Outline{ID: "o1", ProjectID: "p1", Title: "The Flood", Content: "the river rises", OrderIndex: 4}
			Expect(store.InsertOutline(ctx, o)).To(Succeed())

			got, err := store.OutlineByID(ctx, "o1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Title).To(Equal("The Flood"))
			Expect(got.OrderIndex).To(Equal(4))
		})
	})
})
