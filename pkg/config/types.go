package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Config represents the persistent loom configuration stored as config.toml
// in the .loom/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Storage     StorageConfig     `toml:"storage"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	Embedding   EmbeddingConfig   `toml:"embedding"`
	LLM         LLMConfig         `toml:"llm"`
	Sampler     SamplerConfig     `toml:"sampler"`
	Retrieval   RetrievalConfig   `toml:"retrieval"`
	Generation  GenerationConfig  `toml:"generation"`
	Events      EventsConfig      `toml:"events"`
}

// StorageConfig holds relational store settings.
type StorageConfig struct {
	// Driver selects the store: "sqlite" or "postgres".
	Driver      string `toml:"driver,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// VectorStoreConfig holds vector store settings.
type VectorStoreConfig struct {
	// Provider selects the driver: "sqlitevec", "qdrant", or "chroma".
	Provider string `toml:"provider,omitempty"`

	// Target is the base URL for HTTP providers (chroma).
	Target string `toml:"target,omitempty"`

	// Host, Port, and APIKey configure grpc providers (qdrant).
	Host   string `toml:"host,omitempty"`
	Port   int    `toml:"port,omitempty"`
	APIKey string `toml:"api_key,omitempty"`

	// DBPath is the database file for the sqlitevec provider.
	DBPath string `toml:"db_path,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Model      string `toml:"model,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`
}

// LLMConfig holds chat completion provider settings.
type LLMConfig struct {
	Provider string `toml:"provider,omitempty"`
	Target   string `toml:"target,omitempty"`
	Model    string `toml:"model,omitempty"`
	APIKey   string `toml:"api_key,omitempty"`
}

// SamplerConfig holds history sampling settings.
type SamplerConfig struct {
	Window           int `toml:"window,omitempty"`
	SkeletonInterval int `toml:"skeleton_interval,omitempty"`
}

// RetrievalConfig holds memory retrieval settings.
type RetrievalConfig struct {
	SimilarityFloor  float64 `toml:"similarity_floor,omitempty"`
	AutoResolveFloor float64 `toml:"auto_resolve_floor,omitempty"`
	TopK             int     `toml:"top_k,omitempty"`
}

// GenerationConfig holds generation defaults and worker pool sizing.
type GenerationConfig struct {
	Temperature     float64 `toml:"temperature,omitempty"`
	TopP            float64 `toml:"top_p,omitempty"`
	TargetWordCount int     `toml:"target_word_count,omitempty"`
	NumWorkers      uint    `toml:"num_workers,omitempty"`
	QueueSize       uint    `toml:"queue_size,omitempty"`
}

// EventsConfig holds chapter event publishing settings. An empty broker
// list disables publishing.
type EventsConfig struct {
	// Brokers is a comma-separated list of Kafka broker addresses.
	Brokers string `toml:"brokers,omitempty"`
	Topic   string `toml:"topic,omitempty"`
}

// BrokerList splits Brokers into trimmed, non-empty addresses.
func (e EventsConfig) BrokerList() []string {
	var brokers []string
	for _, b := range strings.Split(e.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.driver": {
		get: func(c *Config) string { return c.Storage.Driver },
		set: func(c *Config, v string) error { c.Storage.Driver = v; return nil },
	},
	"storage.sqlite_path": {
		get: func(c *Config) string { return c.Storage.SQLitePath },
		set: func(c *Config, v string) error { c.Storage.SQLitePath = v; return nil },
	},
	"storage.postgres_dsn": {
		get: func(c *Config) string { return c.Storage.PostgresDSN },
		set: func(c *Config, v string) error { c.Storage.PostgresDSN = v; return nil },
	},
	"vector_store.provider": {
		get: func(c *Config) string { return c.VectorStore.Provider },
		set: func(c *Config, v string) error { c.VectorStore.Provider = v; return nil },
	},
	"vector_store.target": {
		get: func(c *Config) string { return c.VectorStore.Target },
		set: func(c *Config, v string) error { c.VectorStore.Target = v; return nil },
	},
	"vector_store.host": {
		get: func(c *Config) string { return c.VectorStore.Host },
		set: func(c *Config, v string) error { c.VectorStore.Host = v; return nil },
	},
	"vector_store.port": {
		get: func(c *Config) string {
			if c.VectorStore.Port == 0 {
				return ""
			}
			return strconv.Itoa(c.VectorStore.Port)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for vector_store.port: %w", err)
			}
			c.VectorStore.Port = n
			return nil
		},
	},
	"vector_store.api_key": {
		get: func(c *Config) string { return c.VectorStore.APIKey },
		set: func(c *Config, v string) error { c.VectorStore.APIKey = v; return nil },
	},
	"vector_store.db_path": {
		get: func(c *Config) string { return c.VectorStore.DBPath },
		set: func(c *Config, v string) error { c.VectorStore.DBPath = v; return nil },
	},
	"embedding.provider": {
		get: func(c *Config) string { return c.Embedding.Provider },
		set: func(c *Config, v string) error { c.Embedding.Provider = v; return nil },
	},
	"embedding.target": {
		get: func(c *Config) string { return c.Embedding.Target },
		set: func(c *Config, v string) error { c.Embedding.Target = v; return nil },
	},
	"embedding.model": {
		get: func(c *Config) string { return c.Embedding.Model },
		set: func(c *Config, v string) error { c.Embedding.Model = v; return nil },
	},
	"embedding.dimensions": {
		get: func(c *Config) string {
			if c.Embedding.Dimensions == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Embedding.Dimensions), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for embedding.dimensions: %w", err)
			}
			c.Embedding.Dimensions = uint(n)
			return nil
		},
	},
	"llm.provider": {
		get: func(c *Config) string { return c.LLM.Provider },
		set: func(c *Config, v string) error { c.LLM.Provider = v; return nil },
	},
	"llm.target": {
		get: func(c *Config) string { return c.LLM.Target },
		set: func(c *Config, v string) error { c.LLM.Target = v; return nil },
	},
	"llm.model": {
		get: func(c *Config) string { return c.LLM.Model },
		set: func(c *Config, v string) error { c.LLM.Model = v; return nil },
	},
	"llm.api_key": {
		get: func(c *Config) string { return c.LLM.APIKey },
		set: func(c *Config, v string) error { c.LLM.APIKey = v; return nil },
	},
	"sampler.window": {
		get: func(c *Config) string {
			if c.Sampler.Window == 0 {
				return ""
			}
			return strconv.Itoa(c.Sampler.Window)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for sampler.window: %w", err)
			}
			c.Sampler.Window = n
			return nil
		},
	},
	"sampler.skeleton_interval": {
		get: func(c *Config) string {
			if c.Sampler.SkeletonInterval == 0 {
				return ""
			}
			return strconv.Itoa(c.Sampler.SkeletonInterval)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for sampler.skeleton_interval: %w", err)
			}
			c.Sampler.SkeletonInterval = n
			return nil
		},
	},
	"retrieval.similarity_floor": {
		get: func(c *Config) string {
			if c.Retrieval.SimilarityFloor == 0 {
				return ""
			}
			return strconv.FormatFloat(c.Retrieval.SimilarityFloor, 'f', -1, 64)
		},
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for retrieval.similarity_floor: %w", err)
			}
			c.Retrieval.SimilarityFloor = f
			return nil
		},
	},
	"retrieval.auto_resolve_floor": {
		get: func(c *Config) string {
			if c.Retrieval.AutoResolveFloor == 0 {
				return ""
			}
			return strconv.FormatFloat(c.Retrieval.AutoResolveFloor, 'f', -1, 64)
		},
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for retrieval.auto_resolve_floor: %w", err)
			}
			c.Retrieval.AutoResolveFloor = f
			return nil
		},
	},
	"retrieval.top_k": {
		get: func(c *Config) string {
			if c.Retrieval.TopK == 0 {
				return ""
			}
			return strconv.Itoa(c.Retrieval.TopK)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for retrieval.top_k: %w", err)
			}
			c.Retrieval.TopK = n
			return nil
		},
	},
	"generation.temperature": {
		get: func(c *Config) string {
			if c.Generation.Temperature == 0 {
				return ""
			}
			return strconv.FormatFloat(c.Generation.Temperature, 'f', -1, 64)
		},
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for generation.temperature: %w", err)
			}
			c.Generation.Temperature = f
			return nil
		},
	},
	"generation.top_p": {
		get: func(c *Config) string {
			if c.Generation.TopP == 0 {
				return ""
			}
			return strconv.FormatFloat(c.Generation.TopP, 'f', -1, 64)
		},
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for generation.top_p: %w", err)
			}
			c.Generation.TopP = f
			return nil
		},
	},
	"generation.target_word_count": {
		get: func(c *Config) string {
			if c.Generation.TargetWordCount == 0 {
				return ""
			}
			return strconv.Itoa(c.Generation.TargetWordCount)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for generation.target_word_count: %w", err)
			}
			c.Generation.TargetWordCount = n
			return nil
		},
	},
	"generation.num_workers": {
		get: func(c *Config) string {
			if c.Generation.NumWorkers == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Generation.NumWorkers), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for generation.num_workers: %w", err)
			}
			c.Generation.NumWorkers = uint(n)
			return nil
		},
	},
	"generation.queue_size": {
		get: func(c *Config) string {
			if c.Generation.QueueSize == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Generation.QueueSize), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for generation.queue_size: %w", err)
			}
			c.Generation.QueueSize = uint(n)
			return nil
		},
	},
	"events.brokers": {
		get: func(c *Config) string { return c.Events.Brokers },
		set: func(c *Config, v string) error { c.Events.Brokers = v; return nil },
	},
	"events.topic": {
		get: func(c *Config) string { return c.Events.Topic },
		set: func(c *Config, v string) error { c.Events.Topic = v; return nil },
	},
}
