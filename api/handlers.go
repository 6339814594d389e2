package api

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/storyloom/loom/pkg/novel"
	"github.com/storyloom/loom/pkg/storage"
)

// ProjectStatsResponse combines project progress with memory statistics.
type ProjectStatsResponse struct {
	ProjectID      string               `json:"project_id"`
	Title          string               `json:"title"`
	Status         novel.ProjectStatus  `json:"status"`
	ChapterCount   int                  `json:"chapter_count"`
	TotalWordCount int                  `json:"total_word_count"`
	Memories       *storage.MemoryStats `json:"memories"`
}

// ChapterEntry is the list view of one chapter: the digest plus the state
// fields a dashboard needs.
type ChapterEntry struct {
	novel.ChapterDigest
	Status           novel.ChapterStatus    `json:"status"`
	GenerationStatus novel.GenerationStatus `json:"generation_status"`
	Version          int                    `json:"version"`
}

// SearchResponse contains the memories matched by a semantic search.
type SearchResponse struct {
	Query   string          `json:"query"`
	Results []*novel.Memory `json:"results"`
	Count   int             `json:"count"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleGetProject returns a single project by its id.
func (s *Server) handleGetProject(c *fiber.Ctx) error {
	project, err := s.store.ProjectByID(c.Context(), c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "project not found"})
	}
	return c.JSON(project)
}

// handleProjectStats returns progress and memory statistics for a project.
func (s *Server) handleProjectStats(c *fiber.Ctx) error {
	ctx := c.Context()

	project, err := s.store.ProjectByID(ctx, c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "project not found"})
	}

	stats, err := s.store.MemoryStatistics(ctx, project.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to load memory statistics"})
	}

	return c.JSON(ProjectStatsResponse{
		ProjectID:      project.ID,
		Title:          project.Title,
		Status:         project.Status,
		ChapterCount:   project.ChapterCount,
		TotalWordCount: project.TotalWordCount,
		Memories:       stats,
	})
}

// handleListChapters returns the project's chapters as digests, ordered by
// number then sub index.
func (s *Server) handleListChapters(c *fiber.Ctx) error {
	chapters, err := s.store.ChaptersByProject(c.Context(), c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to list chapters"})
	}

	entries := make([]ChapterEntry, len(chapters))
	for i, ch := range chapters {
		entries[i] = ChapterEntry{
			ChapterDigest:    ch.Digest(),
			Status:           ch.Status,
			GenerationStatus: ch.GenerationStatus,
			Version:          ch.Version,
		}
	}

	return c.JSON(map[string]any{
		"count":    len(entries),
		"chapters": entries,
	})
}

// handleGetChapter returns a full chapter row, content included.
func (s *Server) handleGetChapter(c *fiber.Ctx) error {
	chapter, err := s.store.ChapterByID(c.Context(), c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "chapter not found"})
	}
	return c.JSON(chapter)
}

// handleChapterMemories returns the memories extracted from one chapter.
func (s *Server) handleChapterMemories(c *fiber.Ctx) error {
	memories, err := s.retriever.ListByChapter(c.Context(), c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to list memories"})
	}
	if memories == nil {
		memories = []*novel.Memory{}
	}
	return c.JSON(map[string]any{
		"count":    len(memories),
		"memories": memories,
	})
}

// handlePendingForeshadows returns the project's planted, unresolved
// foreshadows.
func (s *Server) handlePendingForeshadows(c *fiber.Ctx) error {
	foreshadows, err := s.retriever.PendingForeshadows(c.Context(), c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to list foreshadows"})
	}
	if foreshadows == nil {
		foreshadows = []*novel.Memory{}
	}
	return c.JSON(map[string]any{
		"count":       len(foreshadows),
		"foreshadows": foreshadows,
	})
}

// handleSearch handles GET /v1/projects/:id/search requests.
// Query parameters:
//   - query (required): the search query text
//   - top_k (optional, default 10): number of results to return
func (s *Server) handleSearch(c *fiber.Ctx) error {
	ctx := c.Context()

	project, err := s.store.ProjectByID(ctx, c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "project not found"})
	}

	query := c.Query("query")
	if query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error: "query parameter is required",
		})
	}

	topK := 10
	if topKStr := c.Query("top_k"); topKStr != "" {
		parsed, err := strconv.Atoi(topKStr)
		if err != nil || parsed <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Error: "top_k must be a positive integer",
			})
		}
		topK = parsed
	}

	results, err := s.retriever.Search(ctx, project, query, topK)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: err.Error()})
	}
	if results == nil {
		results = []*novel.Memory{}
	}

	return c.JSON(SearchResponse{
		Query:   query,
		Results: results,
		Count:   len(results),
	})
}
