// Package stack wires the loom backend from persistent configuration:
// relational store, vector store, embedder, and chat client. Commands open
// a Stack, use the pieces they need, and Close it on the way out.
package stack

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/storyloom/loom/pkg/compose"
	"github.com/storyloom/loom/pkg/config"
	"github.com/storyloom/loom/pkg/dotdir"
	"github.com/storyloom/loom/pkg/embeddings"
	embeddingutils "github.com/storyloom/loom/pkg/embeddings/utils"
	"github.com/storyloom/loom/pkg/eventstream"
	eventkafka "github.com/storyloom/loom/pkg/eventstream/kafka"
	"github.com/storyloom/loom/pkg/eventstream/nop"
	"github.com/storyloom/loom/pkg/generate"
	"github.com/storyloom/loom/pkg/history"
	"github.com/storyloom/loom/pkg/llm"
	llmutils "github.com/storyloom/loom/pkg/llm/utils"
	"github.com/storyloom/loom/pkg/memory"
	"github.com/storyloom/loom/pkg/novel"
	"github.com/storyloom/loom/pkg/storage"
	"github.com/storyloom/loom/pkg/storage/postgres"
	"github.com/storyloom/loom/pkg/storage/sqlite"
	"github.com/storyloom/loom/pkg/vector"
	vectorutils "github.com/storyloom/loom/pkg/vector/utils"
	"github.com/storyloom/loom/pkg/worker"
)

// Stack holds the wired backend for a CLI command.
type Stack struct {
	Config   *config.Config
	Store    storage.Store
	Vectors  vector.Driver
	Embedder embeddings.Embedder
	Client   llm.Client
	Events   eventstream.Publisher

	dotdir    *dotdir.Manager
	configDir string
	logger    *zap.Logger
}

// Open loads configuration from the .loom directory and connects every
// backend the config names. On error, anything already opened is closed.
func Open(ctx context.Context, configDir string, logger *zap.Logger) (*Stack, error) {
	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	cfg, err := cfger.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	s := &Stack{
		Config:    cfg,
		dotdir:    dotdir.NewManager(),
		configDir: configDir,
		logger:    logger,
	}

	dataDir, err := s.dotdir.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving data directory: %w", err)
	}

	s.Store, err = openStore(ctx, cfg, dataDir, logger)
	if err != nil {
		return nil, err
	}

	s.Vectors, err = vectorutils.NewVectorDriver(&vectorutils.NewVectorDriverOpts{
		ProviderType: cfg.VectorStore.Provider,
		TargetURL:    cfg.VectorStore.Target,
		Host:         cfg.VectorStore.Host,
		Port:         cfg.VectorStore.Port,
		APIKey:       cfg.VectorStore.APIKey,
		DBPath:       resolvePath(dataDir, cfg.VectorStore.DBPath),
		Logger:       logger,
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating vector driver: %w", err)
	}

	s.Embedder, err = embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType: cfg.Embedding.Provider,
		TargetURL:    cfg.Embedding.Target,
		Model:        cfg.Embedding.Model,
		Dimensions:   cfg.Embedding.Dimensions,
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	s.Client, err = llmutils.NewClient(&llmutils.NewClientOpts{
		ProviderType: cfg.LLM.Provider,
		TargetURL:    cfg.LLM.Target,
		APIKey:       cfg.LLM.APIKey,
		Model:        cfg.LLM.Model,
		Logger:       logger,
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating llm client: %w", err)
	}

	s.Events, err = newPublisher(cfg, logger)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating event publisher: %w", err)
	}

	return s, nil
}

// newPublisher returns a Kafka publisher when brokers are configured and a
// no-op publisher otherwise.
func newPublisher(cfg *config.Config, logger *zap.Logger) (eventstream.Publisher, error) {
	brokers := cfg.Events.BrokerList()
	if len(brokers) == 0 {
		return nop.NewPublisher(), nil
	}
	return eventkafka.NewPublisher(eventkafka.Config{
		Brokers: brokers,
		Topic:   cfg.Events.Topic,
	}, logger)
}

// Close releases every backend the stack opened. Safe on a partially
// opened stack.
func (s *Stack) Close() {
	if s.Events != nil {
		_ = s.Events.Close()
	}
	if s.Client != nil {
		_ = s.Client.Close()
	}
	if s.Embedder != nil {
		_ = s.Embedder.Close()
	}
	if s.Vectors != nil {
		_ = s.Vectors.Close()
	}
	if s.Store != nil {
		_ = s.Store.Close()
	}
}

// ActiveProject resolves the project checked out via "loom project use".
func (s *Stack) ActiveProject(ctx context.Context) (*novel.Project, error) {
	state, err := s.dotdir.LoadActiveState(s.configDir)
	if err != nil {
		return nil, fmt.Errorf("loading active project state: %w", err)
	}
	if state == nil {
		return nil, fmt.Errorf("no active project; run \"loom project use <project-id>\" first")
	}

	project, err := s.Store.ProjectByID(ctx, state.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("loading active project %s: %w", state.ProjectID, err)
	}
	return project, nil
}

// NewExtractor builds the memory extractor over the stack's backends.
func (s *Stack) NewExtractor() *memory.Extractor {
	return memory.NewExtractor(s.Store, s.Client, s.logger)
}

// NewRetriever builds the memory retriever with the configured floor.
func (s *Stack) NewRetriever() *memory.Retriever {
	return memory.NewRetriever(s.Store, s.Vectors, s.Embedder,
		float32(s.Config.Retrieval.SimilarityFloor), s.logger)
}

// NewResolver builds the foreshadow resolver with the configured floor.
func (s *Stack) NewResolver() *memory.Resolver {
	return memory.NewResolver(s.Store, s.Vectors, s.Embedder,
		float32(s.Config.Retrieval.AutoResolveFloor), s.logger)
}

// NewMemoryService builds the memory write path.
func (s *Stack) NewMemoryService() *memory.Service {
	return memory.NewService(s.Store, s.Vectors, s.Embedder, s.NewExtractor(), s.logger)
}

// NewExpander builds the outline expander.
func (s *Stack) NewExpander() *generate.Expander {
	return generate.NewExpander(s.Store, s.Client, s.logger)
}

// NewCoordinator builds the chapter generation coordinator, including its
// worker pool. The caller must Close the returned pool after the stream
// drains so background extraction finishes before exit.
func (s *Stack) NewCoordinator() (*generate.Coordinator, *worker.Pool, error) {
	pool, err := worker.NewPool(&worker.Config{
		NumWorkers: s.Config.Generation.NumWorkers,
		QueueSize:  s.Config.Generation.QueueSize,
		Logger:     s.logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating worker pool: %w", err)
	}

	sampler := history.NewSampler(s.Store, s.Config.Sampler.Window, s.Config.Sampler.SkeletonInterval)
	assembler := compose.NewAssembler(s.Store, sampler, s.NewRetriever(), s.logger)
	coordinator := generate.NewCoordinator(
		s.Store,
		assembler,
		s.Client,
		s.NewExtractor(),
		s.NewMemoryService(),
		s.NewResolver(),
		pool,
		s.logger,
	).WithPublisher(s.Events)
	return coordinator, pool, nil
}

func openStore(ctx context.Context, cfg *config.Config, dataDir string, logger *zap.Logger) (storage.Store, error) {
	switch cfg.Storage.Driver {
	case "sqlite":
		path := resolvePath(dataDir, cfg.Storage.SQLitePath)
		store, err := sqlite.NewStore(path)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		logger.Debug("using sqlite storage", zap.String("path", path))
		return store, nil
	case "postgres":
		store, err := postgres.NewStore(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		logger.Debug("using postgres storage")
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Storage.Driver)
	}
}

// resolvePath anchors relative database paths in the .loom data directory
// so commands behave the same regardless of working directory.
func resolvePath(dataDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dataDir, path)
}
