package index

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/kwhuang/manualqa/internal/corpus"
	"github.com/kwhuang/manualqa/internal/embeddings"
)

// Builder embeds chunks, constructs the similarity index, and persists both
// artifacts. A build fully replaces the index directory; it is the only
// writer, and it runs offline.
type Builder struct {
	dir       string
	backend   string
	batchSize int
}

// NewBuilder creates a builder that persists into dir using the configured
// backend ("flat" or "sqlite-vec") for index construction.
func NewBuilder(dir, backend string, batchSize int) *Builder {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Builder{dir: dir, backend: backend, batchSize: batchSize}
}

// Build embeds all chunk contents, normalizes the vectors, constructs the
// index, and atomically replaces the artifacts on disk. It returns the number
// of indexed chunks.
func (b *Builder) Build(ctx context.Context, chunks []corpus.Chunk, embedder embeddings.Service) (int, error) {
	if len(chunks) == 0 {
		log.Warn("Building an empty index: no chunks provided")
	}

	vectors, err := b.embedAll(ctx, chunks, embedder)
	if err != nil {
		return 0, err
	}

	for _, v := range vectors {
		Normalize(v)
	}

	dim := embedder.Dimensions()
	if len(vectors) > 0 {
		dim = len(vectors[0])
	}

	backend, err := b.newBackend(dim)
	if err != nil {
		return 0, err
	}
	if c, ok := backend.(io.Closer); ok {
		defer c.Close()
	}

	if err := backend.Add(vectors); err != nil {
		return 0, fmt.Errorf("failed to add vectors to index: %w", err)
	}

	// The persisted format is hardware independent regardless of which
	// backend did the construction.
	flat, err := backend.Portable()
	if err != nil {
		return 0, fmt.Errorf("failed to extract portable index: %w", err)
	}

	if err := b.persist(flat, chunks); err != nil {
		return 0, err
	}

	log.Info("Index built", "chunks", len(chunks), "dimensions", dim, "dir", b.dir)
	return len(chunks), nil
}

// embedAll embeds chunk contents in batches.
func (b *Builder) embedAll(ctx context.Context, chunks []corpus.Chunk, embedder embeddings.Service) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))

	for start := 0; start < len(chunks); start += b.batchSize {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		end := start + b.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		texts := make([]string, end-start)
		for i, c := range chunks[start:end] {
			texts[i] = c.Content
		}

		batch, err := embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunks %d-%d: %w", start, end, err)
		}
		if len(batch) != len(texts) {
			return nil, fmt.Errorf("embedding provider returned %d vectors for %d texts", len(batch), len(texts))
		}
		vectors = append(vectors, batch...)
	}

	return vectors, nil
}

// newBackend constructs the configured index backend.
func (b *Builder) newBackend(dim int) (Backend, error) {
	switch b.backend {
	case "sqlite-vec":
		return NewSQLiteVec(dim)
	default:
		return NewFlat(dim), nil
	}
}

// persist writes both artifacts into a fresh directory and swaps it over the
// previous one, so readers never observe a mixed-generation index.
func (b *Builder) persist(flat *Flat, chunks []corpus.Chunk) error {
	parent := filepath.Dir(b.dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("failed to create index parent directory: %w", err)
	}

	tmp, err := os.MkdirTemp(parent, ".index-build-*")
	if err != nil {
		return fmt.Errorf("failed to create build directory: %w", err)
	}
	defer os.RemoveAll(tmp)

	if err := flat.WriteFile(filepath.Join(tmp, VectorsFile)); err != nil {
		return err
	}

	if chunks == nil {
		chunks = []corpus.Chunk{}
	}
	data, err := json.MarshalIndent(chunks, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal chunk store: %w", err)
	}
	if err := os.WriteFile(filepath.Join(tmp, ChunksFile), data, 0o644); err != nil {
		return fmt.Errorf("failed to write chunk store: %w", err)
	}

	if err := os.RemoveAll(b.dir); err != nil {
		return fmt.Errorf("failed to remove previous index: %w", err)
	}
	if err := os.Rename(tmp, b.dir); err != nil {
		return fmt.Errorf("failed to move index into place: %w", err)
	}
	return nil
}
