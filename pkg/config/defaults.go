package config

const (
	defaultStorageDriver = "sqlite"
	defaultSQLitePath    = "loom.db"

	defaultVectorProvider = "sqlitevec"
	defaultVectorDBPath   = "vectors.db"

	defaultProvider = "ollama"
	defaultTarget   = "http://localhost:11434"

	defaultEmbeddingModel      = "nomic-embed-text"
	defaultEmbeddingDimensions = 768

	defaultLLMModel = "llama3.1"

	defaultSamplerWindow    = 3
	defaultSkeletonInterval = 50

	defaultSimilarityFloor  = 0.3
	defaultAutoResolveFloor = 0.75
	defaultRetrievalTopK    = 10

	defaultTemperature     = 0.8
	defaultTopP            = 0.9
	defaultTargetWordCount = 2000
	defaultNumWorkers      = 3
	defaultQueueSize       = 256

	defaultEventsTopic = "loom.chapters"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Driver:     defaultStorageDriver,
			SQLitePath: defaultSQLitePath,
		},
		VectorStore: VectorStoreConfig{
			Provider: defaultVectorProvider,
			DBPath:   defaultVectorDBPath,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultProvider,
			Target:     defaultTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
		},
		LLM: LLMConfig{
			Provider: defaultProvider,
			Target:   defaultTarget,
			Model:    defaultLLMModel,
		},
		Sampler: SamplerConfig{
			Window:           defaultSamplerWindow,
			SkeletonInterval: defaultSkeletonInterval,
		},
		Retrieval: RetrievalConfig{
			SimilarityFloor:  defaultSimilarityFloor,
			AutoResolveFloor: defaultAutoResolveFloor,
			TopK:             defaultRetrievalTopK,
		},
		Generation: GenerationConfig{
			Temperature:     defaultTemperature,
			TopP:            defaultTopP,
			TargetWordCount: defaultTargetWordCount,
			NumWorkers:      defaultNumWorkers,
			QueueSize:       defaultQueueSize,
		},
		Events: EventsConfig{
			Topic: defaultEventsTopic,
		},
	}
}
