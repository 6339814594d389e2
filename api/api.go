package api

import (
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	apimcp "github.com/storyloom/loom/api/mcp"
	"github.com/storyloom/loom/pkg/memory"
	"github.com/storyloom/loom/pkg/storage"
)

// Server is the API server for inspecting and querying the loom system.
type Server struct {
	config    Config
	store     storage.Store
	retriever *memory.Retriever
	logger    *zap.Logger
	app       *fiber.App
}

// NewServer creates a new API server.
// The store and retriever are injected to allow sharing with other
// components (e.g., the CLI stack when serving alongside generation).
// A nil mcpServer disables the /mcp endpoint.
func NewServer(config Config, store storage.Store, retriever *memory.Retriever, mcpServer *apimcp.Server, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config:    config,
		store:     store,
		retriever: retriever,
		logger:    logger,
		app:       app,
	}

	app.Get("/ping", s.handlePing)
	app.Get("/v1/projects/:id", s.handleGetProject)
	app.Get("/v1/projects/:id/stats", s.handleProjectStats)
	app.Get("/v1/projects/:id/chapters", s.handleListChapters)
	app.Get("/v1/projects/:id/foreshadows", s.handlePendingForeshadows)
	app.Get("/v1/projects/:id/search", s.handleSearch)
	app.Get("/v1/chapters/:id", s.handleGetChapter)
	app.Get("/v1/chapters/:id/memories", s.handleChapterMemories)

	if mcpServer != nil {
		app.All("/mcp", adaptor.HTTPHandler(mcpServer.Handler()))
	}

	return s
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		zap.String("listen", s.config.ListenAddr),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
