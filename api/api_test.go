package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/storyloom/loom/pkg/logger"
	"github.com/storyloom/loom/pkg/memory"
	"github.com/storyloom/loom/pkg/novel"
	"github.com/storyloom/loom/pkg/storage/inmemory"
	testutils "github.com/storyloom/loom/pkg/utils/test"
)

var _ = Describe("Server", func() {
	var (
		ctx    context.Context
		store  *inmemory.Store
		server *Server
	)

	get := func(path string) (int, []byte) {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		resp, err := server.app.Test(req)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		return resp.StatusCode, body
	}

	BeforeEach(func() {
		ctx = context.Background()
		store = inmemory.NewStore()
		retriever := memory.NewRetriever(store, testutils.NewMockVectorDriver(), testutils.NewMockEmbedder(), 0, logger.Nop())
		server = NewServer(Config{ListenAddr: ":0"}, store, retriever, nil, logger.Nop())

		Expect(store.InsertProject(ctx, &novel.Project{
			ID:             "proj-1",
			UserID:         "user-1",
			Title:          "The Long Winter",
			Status:         novel.ProjectWriting,
			ChapterCount:   1,
			TotalWordCount: 5,
		})).To(Succeed())
	})

	Describe("GET /ping", func() {
		It("responds with pong", func() {
			status, body := get("/ping")
			Expect(status).To(Equal(http.StatusOK))
			Expect(string(body)).To(ContainSubstring("pong"))
		})
	})

	Describe("GET /v1/projects/:id", func() {
		It("returns the project", func() {
			status, body := get("/v1/projects/proj-1")
			Expect(status).To(Equal(http.StatusOK))

			var project novel.Project
			Expect(json.Unmarshal(body, &project)).To(Succeed())
			Expect(project.Title).To(Equal("The Long Winter"))
		})

		It("returns 404 for an unknown project", func() {
			status, _ := get("/v1/projects/proj-missing")
			Expect(status).To(Equal(http.StatusNotFound))
		})
	})

	Describe("GET /v1/projects/:id/stats", func() {
		It("combines project progress with memory statistics", func() {
			Expect(store.InsertMemory(ctx, &novel.Memory{
				ID:         "mem-1",
				ProjectID:  "proj-1",
				ChapterID:  "ch-1",
				Type:       novel.MemoryForeshadow,
				Title:      "A stranger's coat",
				Content:    "A coat left on the fence.",
				Importance: 0.7,
				Foreshadow: novel.ForeshadowPlanted,
				CreatedAt:  time.Now().UTC(),
			})).To(Succeed())

			status, body := get("/v1/projects/proj-1/stats")
			Expect(status).To(Equal(http.StatusOK))

			var stats ProjectStatsResponse
			Expect(json.Unmarshal(body, &stats)).To(Succeed())
			Expect(stats.Title).To(Equal("The Long Winter"))
			Expect(stats.ChapterCount).To(Equal(1))
			Expect(stats.Memories.Total).To(Equal(1))
			Expect(stats.Memories.PendingForeshadows).To(Equal(1))
		})
	})

	Describe("GET /v1/projects/:id/chapters", func() {
		It("lists chapter digests with state fields", func() {
			Expect(store.InsertChapter(ctx, &novel.Chapter{
				ID:               "ch-1",
				ProjectID:        "proj-1",
				OutlineID:        "out-1",
				Number:           1,
				Title:            "The thaw begins",
				Content:          "The river ice cracks at dawn.",
				WordCount:        6,
				Status:           novel.ChapterDraft,
				GenerationStatus: novel.GenerationCompleted,
				Version:          1,
			})).To(Succeed())

			status, body := get("/v1/projects/proj-1/chapters")
			Expect(status).To(Equal(http.StatusOK))

			var listing struct {
				Count    int            `json:"count"`
				Chapters []ChapterEntry `json:"chapters"`
			}
			Expect(json.Unmarshal(body, &listing)).To(Succeed())
			Expect(listing.Count).To(Equal(1))
			Expect(listing.Chapters[0].Number).To(Equal(1))
			Expect(listing.Chapters[0].GenerationStatus).To(Equal(novel.GenerationCompleted))
			Expect(listing.Chapters[0].Summary).To(Equal("The river ice cracks at dawn."))
		})
	})

	Describe("GET /v1/chapters/:id", func() {
		It("returns the full chapter", func() {
			Expect(store.InsertChapter(ctx, &novel.Chapter{
				ID:        "ch-1",
				ProjectID: "proj-1",
				OutlineID: "out-1",
				Number:    1,
				Content:   "Full prose.",
				Version:   1,
			})).To(Succeed())

			status, body := get("/v1/chapters/ch-1")
			Expect(status).To(Equal(http.StatusOK))

			var chapter novel.Chapter
			Expect(json.Unmarshal(body, &chapter)).To(Succeed())
			Expect(chapter.Content).To(Equal("Full prose."))
		})

		It("returns 404 for an unknown chapter", func() {
			status, _ := get("/v1/chapters/ch-missing")
			Expect(status).To(Equal(http.StatusNotFound))
		})
	})

	Describe("GET /v1/projects/:id/foreshadows", func() {
		It("returns only planted foreshadows", func() {
			for i, fs := range []novel.ForeshadowState{novel.ForeshadowPlanted, novel.ForeshadowNone} {
				Expect(store.InsertMemory(ctx, &novel.Memory{
					ID:         fmt.Sprintf("mem-%d", i+1),
					ProjectID:  "proj-1",
					ChapterID:  "ch-1",
					Type:       novel.MemoryForeshadow,
					Title:      fmt.Sprintf("thread %d", i+1),
					Content:    "content",
					Foreshadow: fs,
					CreatedAt:  time.Now().UTC(),
				})).To(Succeed())
			}

			status, body := get("/v1/projects/proj-1/foreshadows")
			Expect(status).To(Equal(http.StatusOK))

			var listing struct {
				Count       int             `json:"count"`
				Foreshadows []*novel.Memory `json:"foreshadows"`
			}
			Expect(json.Unmarshal(body, &listing)).To(Succeed())
			Expect(listing.Count).To(Equal(1))
			Expect(listing.Foreshadows[0].ID).To(Equal("mem-1"))
		})
	})

	Describe("GET /v1/projects/:id/search", func() {
		It("requires a query parameter", func() {
			status, _ := get("/v1/projects/proj-1/search")
			Expect(status).To(Equal(http.StatusBadRequest))
		})

		It("rejects a non-positive top_k", func() {
			status, _ := get("/v1/projects/proj-1/search?query=ring&top_k=zero")
			Expect(status).To(Equal(http.StatusBadRequest))
		})

		It("returns matching memories", func() {
			Expect(store.InsertMemory(ctx, &novel.Memory{
				ID:         "mem-1",
				ProjectID:  "proj-1",
				ChapterID:  "ch-1",
				Type:       novel.MemoryPlotPoint,
				Title:      "Ring recovered",
				Content:    "Mira pulls the lost ring from the riverbed.",
				Importance: 0.9,
				Foreshadow: novel.ForeshadowNone,
				CreatedAt:  time.Now().UTC(),
			})).To(Succeed())

			status, body := get("/v1/projects/proj-1/search?query=the+lost+ring")
			Expect(status).To(Equal(http.StatusOK))

			var result SearchResponse
			Expect(json.Unmarshal(body, &result)).To(Succeed())
			Expect(result.Count).To(Equal(1))
			Expect(result.Results[0].Title).To(Equal("Ring recovered"))
		})

		It("returns 404 for an unknown project", func() {
			status, _ := get("/v1/projects/proj-missing/search?query=ring")
			Expect(status).To(Equal(http.StatusNotFound))
		})
	})
})
