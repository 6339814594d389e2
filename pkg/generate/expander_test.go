package generate_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/storyloom/loom/pkg/compose"
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

const expansionJSON = `[
	{"sub_index": 1, "title": "The Crossing", "plot_summary": "The party crosses the frozen river.", "key_events": ["ice cracks"], "emotional_tone": "tense", "estimated_words": 3200},
	{"sub_index": 2, "title": "The Far Bank", "plot_summary": "They make camp and count their losses.", "character_focus": ["Mara"], "estimated_words": 3000}
]`

var _ = Describe("Expander", func() {
	var (
		ctx      context.Context
		store    *inmemory.Store
		client   *testutils.MockLLM
		project  *novel.Project
		expander *generate.Expander
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = inmemory.NewStore()
		client = &testutils.MockLLM{CompleteResponse: expansionJSON}

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

		expander = generate.NewExpander(store, client, logger.Nop())
	})

	Describe("Preview", func() {
		It("returns the model's sub-chapter plans", func() {
			plans, err := expander.Preview(ctx, project, "out-1", generate.ExpandOptions{Count: 2})
			Expect(err).NotTo(HaveOccurred())
			Expect(plans).To(HaveLen(2))
			Expect(plans[0].Title).To(Equal("The Crossing"))
			Expect(plans[0].KeyEvents).To(Equal([]string{"ice cracks"}))
			Expect(plans[1].SubIndex).To(Equal(2))
			Expect(plans[1].CharacterFocus).To(Equal([]string{"Mara"}))
		})

		It("discards prose and code fences around the JSON", func() {
			client.CompleteResponse = "Here you go:\n```json\n" + expansionJSON + "\n```"

			plans, err := expander.Preview(ctx, project, "out-1", generate.ExpandOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(plans).To(HaveLen(2))
		})

		It("drops plans without a title or summary", func() {
			client.CompleteResponse = `[{"sub_index": 1, "title": "", "plot_summary": "orphan"}, {"sub_index": 2, "title": "Kept", "plot_summary": "A full plan."}]`

			plans, err := expander.Preview(ctx, project, "out-1", generate.ExpandOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(plans).To(HaveLen(1))
			Expect(plans[0].Title).To(Equal("Kept"))
		})

		It("fails when the response holds no JSON array", func() {
			client.CompleteResponse = "I cannot plan this outline."

			_, err := expander.Preview(ctx, project, "out-1", generate.ExpandOptions{})
			Expect(err).To(HaveOccurred())
		})

		It("rejects an outline from another project", func() {
			Expect(store.InsertOutline(ctx, &novel.Outline{
				ID:        "out-foreign",
				ProjectID: "proj-2",
				Title:     "Elsewhere",
			})).To(Succeed())

			_, err := expander.Preview(ctx, project, "out-foreign", generate.ExpandOptions{})
			Expect(err).To(HaveOccurred())
		})

		It("folds the roster and strategy into the prompt", func() {
			Expect(store.InsertCharacter(ctx, &novel.Character{
				ID:          "char-1",
				ProjectID:   "proj-1",
				Name:        "Mara",
				Role:        novel.RoleProtagonist,
				Personality: "stubborn",
			})).To(Succeed())

			_, err := expander.Preview(ctx, project, "out-1", generate.ExpandOptions{
				Strategy: generate.StrategyClimax,
				Count:    4,
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(client.Requests).To(HaveLen(1))
			prompt := client.Requests[0].Messages[1].Content
			Expect(prompt).To(ContainSubstring("Mara"))
			Expect(prompt).To(ContainSubstring("dramatic payoff"))
			Expect(prompt).To(ContainSubstring("exactly 4 sub-chapter plans"))
		})
	})

	Describe("Apply", func() {
		plans := func() []generate.ChapterPlan {
			p, err := expander.Preview(ctx, project, "out-1", generate.ExpandOptions{})
			Expect(err).NotTo(HaveOccurred())
			return p
		}

		It("creates pending chapter rows with their plans", func() {
			created, err := expander.Apply(ctx, project, "out-1", plans(), false)
			Expect(err).NotTo(HaveOccurred())
			Expect(created).To(HaveLen(2))

			Expect(created[0].Number).To(Equal(1))
			Expect(created[1].Number).To(Equal(2))
			Expect(created[0].SubIndex).To(Equal(1))
			Expect(created[1].SubIndex).To(Equal(2))

			stored, err := store.ChapterByID(ctx, created[0].ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.GenerationStatus).To(Equal(novel.GenerationPending))
			Expect(stored.Summary).To(Equal("The party crosses the frozen river."))
			Expect(stored.Plan).NotTo(BeNil())
			Expect(stored.Plan.KeyEvents).To(Equal([]string{"ice cracks"}))
		})

		It("numbers planned chapters after the existing ones", func() {
			Expect(store.InsertChapter(ctx, &novel.Chapter{
				ID:        "ch-1",
				ProjectID: "proj-1",
				OutlineID: "out-0",
				Number:    7,
				Content:   "Earlier prose.",
				Version:   1,
			})).To(Succeed())

			created, err := expander.Apply(ctx, project, "out-1", plans(), false)
			Expect(err).NotTo(HaveOccurred())
			Expect(created[0].Number).To(Equal(8))
			Expect(created[1].Number).To(Equal(9))
		})

		It("rejects an already expanded outline without force", func() {
			_, err := expander.Apply(ctx, project, "out-1", plans(), false)
			Expect(err).NotTo(HaveOccurred())

			_, err = expander.Apply(ctx, project, "out-1", plans(), false)
			Expect(err).To(MatchError(generate.ErrOutlineExpanded))
		})

		It("replaces existing rows and their memories with force", func() {
			created, err := expander.Apply(ctx, project, "out-1", plans(), false)
			Expect(err).NotTo(HaveOccurred())
			Expect(store.InsertMemory(ctx, &novel.Memory{
				ID:        "m1",
				ProjectID: "proj-1",
				ChapterID: created[0].ID,
				Type:      novel.MemoryPlotPoint,
			})).To(Succeed())

			replaced, err := expander.Apply(ctx, project, "out-1", plans(), true)
			Expect(err).NotTo(HaveOccurred())
			Expect(replaced).To(HaveLen(2))

			_, err = store.ChapterByID(ctx, created[0].ID)
			Expect(err).To(HaveOccurred())
			got, err := store.MemoriesByChapter(ctx, created[0].ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeEmpty())
		})

		It("feeds the slot generator through the pending row", func() {
			created, err := expander.Apply(ctx, project, "out-1", plans(), false)
			Expect(err).NotTo(HaveOccurred())

			pool, err := worker.NewPool(&worker.Config{NumWorkers: 1, QueueSize: 16, Logger: logger.Nop()})
			Expect(err).NotTo(HaveOccurred())
			defer pool.Close()

			vectors := testutils.NewMockVectorDriver()
			embedder := testutils.NewMockEmbedder()
			sampler := history.NewSampler(store, 3, 50)
			retriever := memory.NewRetriever(store, vectors, embedder, 0, logger.Nop())
			assembler := compose.NewAssembler(store, sampler, retriever, logger.Nop())
			extractor := memory.NewExtractor(store, client, logger.Nop())
			service := memory.NewService(store, vectors, embedder, extractor, logger.Nop())
			resolver := memory.NewResolver(store, vectors, embedder, 0, logger.Nop())
			coord := generate.NewCoordinator(store, assembler, client, extractor, service, resolver, pool, logger.Nop())

			client.StreamChunks = []llm.Chunk{{Text: "The ice held after all."}, {Done: true}}

			stream, err := coord.Generate(ctx, project, "out-1", created[0].SubIndex, generate.Options{})
			Expect(err).NotTo(HaveOccurred())
			var text string
			for chunk := range stream {
				Expect(chunk.Err).NotTo(HaveOccurred())
				text += chunk.Text
			}
			Expect(text).To(Equal("The ice held after all."))

			ch, err := store.ChapterByID(ctx, created[0].ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(ch.GenerationStatus).To(Equal(novel.GenerationCompleted))
			Expect(ch.Plan).NotTo(BeNil())
		})
	})
})
