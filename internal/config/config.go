// Package config handles configuration loading and validation for manualqa.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
)

// Config represents the complete manualqa configuration.
type Config struct {
	Corpus     CorpusConfig     `mapstructure:"corpus"`
	Chunking   ChunkingConfig   `mapstructure:"chunking"`
	Index      IndexConfig      `mapstructure:"index"`
	Retrieval  RetrievalConfig  `mapstructure:"retrieval"`
	Embeddings EmbeddingsConfig `mapstructure:"embeddings"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Server     ServerConfig     `mapstructure:"server"`
	Ignore     []string         `mapstructure:"ignore"`
}

// CorpusConfig configures where the manual text corpus lives and how it is
// walked during an index build.
type CorpusConfig struct {
	Dir          string `mapstructure:"dir"`
	MaxFileSize  int    `mapstructure:"max_file_size"`
	MaxFileCount int    `mapstructure:"max_file_count"`
}

// ChunkingConfig configures how source text is split into indexable chunks.
type ChunkingConfig struct {
	MaxChunkSize       int `mapstructure:"max_chunk_size"`
	ChunkOverlap       int `mapstructure:"chunk_overlap"`
	MaxChunksPerSource int `mapstructure:"max_chunks_per_source"`
}

// IndexConfig configures the vector index artifacts and search backend.
type IndexConfig struct {
	// Dir is the directory holding vectors.idx and chunks.json.
	Dir string `mapstructure:"dir"`

	// Backend selects the search backend: "flat" (portable, pure Go) or
	// "sqlite-vec" (accelerated). Results are identical either way.
	Backend string `mapstructure:"backend"`

	// BatchSize is the number of chunks embedded per provider call.
	BatchSize int `mapstructure:"batch_size"`
}

// RetrievalConfig configures query-time retrieval.
type RetrievalConfig struct {
	TopK      int     `mapstructure:"top_k"`
	Threshold float64 `mapstructure:"threshold"`
}

// EmbeddingsConfig configures the embedding service.
type EmbeddingsConfig struct {
	Provider string            `mapstructure:"provider"`
	Ollama   OllamaEmbedConfig `mapstructure:"ollama"`
	OpenAI   OpenAIEmbedConfig `mapstructure:"openai"`
}

// OllamaEmbedConfig configures Ollama embeddings.
type OllamaEmbedConfig struct {
	URL   string `mapstructure:"url"`
	Model string `mapstructure:"model"`
}

// OpenAIEmbedConfig configures OpenAI embeddings.
type OpenAIEmbedConfig struct {
	Model      string `mapstructure:"model"`
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	Dimensions int    `mapstructure:"dimensions"`
}

// LLMConfig configures the generation backend used to answer questions.
type LLMConfig struct {
	Provider string `mapstructure:"provider"`

	// ContextLength is passed to the backend as the context window limit.
	ContextLength int `mapstructure:"context_length"`

	// ContextChunks is the number of retrieved chunks included in a prompt.
	ContextChunks int `mapstructure:"context_chunks"`

	Ollama OllamaLLMConfig `mapstructure:"ollama"`
	OpenAI OpenAILLMConfig `mapstructure:"openai"`
}

// OllamaLLMConfig configures Ollama generation.
type OllamaLLMConfig struct {
	URL   string `mapstructure:"url"`
	Model string `mapstructure:"model"`
}

// OpenAILLMConfig configures OpenAI generation.
type OpenAILLMConfig struct {
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// ServerConfig configures the HTTP query service.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// Global configuration instance
var cfg *Config

// Get returns the current configuration.
func Get() *Config {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return cfg
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Corpus: CorpusConfig{
			Dir:          DefaultCorpusDir(),
			MaxFileSize:  DefaultMaxFileSize,
			MaxFileCount: DefaultMaxFileCount,
		},
		Chunking: ChunkingConfig{
			MaxChunkSize:       DefaultMaxChunkSize,
			ChunkOverlap:       DefaultChunkOverlap,
			MaxChunksPerSource: DefaultMaxChunksPerSource,
		},
		Index: IndexConfig{
			Dir:       DefaultIndexDir(),
			Backend:   DefaultIndexBackend,
			BatchSize: DefaultBatchSize,
		},
		Retrieval: RetrievalConfig{
			TopK:      DefaultTopK,
			Threshold: DefaultThreshold,
		},
		Embeddings: EmbeddingsConfig{
			Provider: DefaultEmbeddingProvider,
			Ollama: OllamaEmbedConfig{
				URL:   DefaultOllamaURL,
				Model: DefaultOllamaEmbedModel,
			},
			OpenAI: OpenAIEmbedConfig{
				Model: DefaultOpenAIEmbedModel,
			},
		},
		LLM: LLMConfig{
			Provider:      DefaultLLMProvider,
			ContextLength: DefaultContextLength,
			ContextChunks: DefaultContextChunks,
			Ollama: OllamaLLMConfig{
				URL:   DefaultOllamaURL,
				Model: DefaultOllamaLLMModel,
			},
			OpenAI: OpenAILLMConfig{
				Model: DefaultOpenAILLMModel,
			},
		},
		Server: ServerConfig{
			Addr: DefaultListenAddr,
		},
		Ignore: DefaultIgnorePatterns(),
	}
}

// Load reads configuration from file and environment variables.
func Load(configFile string) error {
	setDefaults()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(DefaultConfigDir())
		viper.AddConfigPath(".")
	}

	// Environment variables
	viper.SetEnvPrefix("MANUALQA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug("No config file found, using defaults")
	} else {
		log.Debug("Loaded config from", "file", viper.ConfigFileUsed())
	}

	// Unmarshal into config struct
	cfg = &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("error parsing config: %w", err)
	}

	loadAPIKeysFromEnv()

	return nil
}

// Validate checks configuration values that would otherwise fail deep inside
// the pipeline.
func (c *Config) Validate() error {
	if c.Chunking.MaxChunkSize <= 0 {
		return fmt.Errorf("chunking.max_chunk_size must be positive, got %d", c.Chunking.MaxChunkSize)
	}
	if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.MaxChunkSize {
		return fmt.Errorf("chunking.chunk_overlap must be in [0, max_chunk_size), got %d", c.Chunking.ChunkOverlap)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.Threshold < -1 || c.Retrieval.Threshold > 1 {
		return fmt.Errorf("retrieval.threshold must be in [-1, 1], got %g", c.Retrieval.Threshold)
	}
	switch c.Index.Backend {
	case "flat", "sqlite-vec":
	default:
		return fmt.Errorf("index.backend must be \"flat\" or \"sqlite-vec\", got %q", c.Index.Backend)
	}
	return nil
}

// setDefaults sets default values in viper.
func setDefaults() {
	// Corpus
	viper.SetDefault("corpus.dir", DefaultCorpusDir())
	viper.SetDefault("corpus.max_file_size", DefaultMaxFileSize)
	viper.SetDefault("corpus.max_file_count", DefaultMaxFileCount)

	// Chunking
	viper.SetDefault("chunking.max_chunk_size", DefaultMaxChunkSize)
	viper.SetDefault("chunking.chunk_overlap", DefaultChunkOverlap)
	viper.SetDefault("chunking.max_chunks_per_source", DefaultMaxChunksPerSource)

	// Index
	viper.SetDefault("index.dir", DefaultIndexDir())
	viper.SetDefault("index.backend", DefaultIndexBackend)
	viper.SetDefault("index.batch_size", DefaultBatchSize)

	// Retrieval
	viper.SetDefault("retrieval.top_k", DefaultTopK)
	viper.SetDefault("retrieval.threshold", DefaultThreshold)

	// Embeddings
	viper.SetDefault("embeddings.provider", DefaultEmbeddingProvider)
	viper.SetDefault("embeddings.ollama.url", DefaultOllamaURL)
	viper.SetDefault("embeddings.ollama.model", DefaultOllamaEmbedModel)
	viper.SetDefault("embeddings.openai.model", DefaultOpenAIEmbedModel)

	// LLM
	viper.SetDefault("llm.provider", DefaultLLMProvider)
	viper.SetDefault("llm.context_length", DefaultContextLength)
	viper.SetDefault("llm.context_chunks", DefaultContextChunks)
	viper.SetDefault("llm.ollama.url", DefaultOllamaURL)
	viper.SetDefault("llm.ollama.model", DefaultOllamaLLMModel)
	viper.SetDefault("llm.openai.model", DefaultOpenAILLMModel)

	// Server
	viper.SetDefault("server.addr", DefaultListenAddr)

	// Ignore patterns
	viper.SetDefault("ignore", DefaultIgnorePatterns())
}

// loadAPIKeysFromEnv loads API keys from environment variables if not already set.
func loadAPIKeysFromEnv() {
	if cfg.Embeddings.OpenAI.APIKey == "" {
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			cfg.Embeddings.OpenAI.APIKey = key
		}
	}
	if cfg.LLM.OpenAI.APIKey == "" {
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			cfg.LLM.OpenAI.APIKey = key
		}
	}
}

// ConfigFilePath returns the path of the loaded config file, or empty string if none.
func ConfigFilePath() string {
	return viper.ConfigFileUsed()
}
