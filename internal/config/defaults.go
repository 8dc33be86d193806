package config

import (
	"os"
	"path/filepath"
)

// Default configuration values
const (
	// Corpus defaults
	DefaultMaxFileSize  = 1 << 20 // 1MB
	DefaultMaxFileCount = 20000

	// Chunking defaults
	DefaultMaxChunkSize       = 500
	DefaultChunkOverlap       = 50
	DefaultMaxChunksPerSource = 1000

	// Index defaults
	DefaultIndexBackend = "flat"
	DefaultBatchSize    = 50

	// Retrieval defaults. Earlier deployments ran with thresholds between
	// 0.2 and 0.4 and top-k between 10 and 12, so both are configuration
	// rather than constants baked into the pipeline.
	DefaultTopK      = 10
	DefaultThreshold = 0.25

	// Embedding defaults
	DefaultEmbeddingProvider = "ollama"
	DefaultOllamaURL         = "http://localhost:11434"
	DefaultOllamaEmbedModel  = "nomic-embed-text"
	DefaultOpenAIEmbedModel  = "text-embedding-3-small"

	// Generation defaults
	DefaultLLMProvider    = "ollama"
	DefaultOllamaLLMModel = "llama3"
	DefaultOpenAILLMModel = "gpt-4o-mini"
	DefaultContextLength  = 16384
	DefaultContextChunks  = 5

	// Server defaults
	DefaultListenAddr = ":8080"
)

// DefaultIgnorePatterns returns the default list of corpus file patterns to
// ignore. The corpus is plain text, so this mostly guards against stray
// artifacts left behind by the download/clean steps.
func DefaultIgnorePatterns() []string {
	return []string{
		// Version control
		".git/",
		".svn/",

		// Conversion leftovers
		"*.html",
		"*.htm",
		"*.zip",
		"*.tar.gz",
		"*.tmp",
		"*.part",

		// Misc
		".DS_Store",
		"Thumbs.db",
		"*.log",
	}
}

// DefaultConfigDir returns the default configuration directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/manualqa"
	}
	return filepath.Join(home, ".config", "manualqa")
}

// DefaultDataDir returns the default data directory path.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".local/share/manualqa"
	}
	return filepath.Join(home, ".local", "share", "manualqa")
}

// DefaultIndexDir returns the default directory holding the persisted index
// artifacts (vectors.idx and chunks.json).
func DefaultIndexDir() string {
	return filepath.Join(DefaultDataDir(), "index")
}

// DefaultCorpusDir returns the default directory holding the plain-text
// manual corpus.
func DefaultCorpusDir() string {
	return filepath.Join(DefaultDataDir(), "texts")
}
