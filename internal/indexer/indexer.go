// Package indexer orchestrates a full corpus rebuild: walking the source
// texts, chunking them, and handing the chunks to the index builder.
package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/kwhuang/manualqa/internal/config"
	"github.com/kwhuang/manualqa/internal/corpus"
	"github.com/kwhuang/manualqa/internal/embeddings"
	"github.com/kwhuang/manualqa/internal/index"
)

// Indexer builds the on-disk index from a corpus directory.
type Indexer struct {
	embedder embeddings.Service
	chunker  *corpus.Chunker
	cfg      *config.Config

	progress Progress
	mu       sync.Mutex
}

// Progress tracks a running build.
type Progress struct {
	TotalFiles     int
	ProcessedFiles int
	SkippedFiles   int
	TotalChunks    int
	EmbeddedChunks int
	Errors         int
	StartTime      time.Time
	CurrentFile    string
}

// ProgressFunc is called to report progress during a build.
type ProgressFunc func(Progress)

// BuildOptions configures a build.
type BuildOptions struct {
	// CorpusPath is the directory holding the source texts. Defaults to the
	// configured corpus directory.
	CorpusPath string

	// IndexDir is where the artifacts are written. Defaults to the configured
	// index directory.
	IndexDir string

	// OnProgress is called to report progress.
	OnProgress ProgressFunc
}

// New creates an Indexer.
func New(emb embeddings.Service, cfg *config.Config) *Indexer {
	return &Indexer{
		embedder: emb,
		chunker: corpus.NewChunker(corpus.ChunkOptions{
			MaxChunkSize:       cfg.Chunking.MaxChunkSize,
			ChunkOverlap:       cfg.Chunking.ChunkOverlap,
			MaxChunksPerSource: cfg.Chunking.MaxChunksPerSource,
		}),
		cfg: cfg,
	}
}

// Build walks the corpus, chunks every text file, embeds the chunks, and
// replaces the persisted index. It returns the number of indexed chunks.
func (idx *Indexer) Build(ctx context.Context, opts BuildOptions) (int, error) {
	corpusPath := opts.CorpusPath
	if corpusPath == "" {
		corpusPath = idx.cfg.Corpus.Dir
	}
	absPath, err := filepath.Abs(corpusPath)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve corpus path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return 0, fmt.Errorf("corpus path does not exist: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("corpus path is not a directory: %s", absPath)
	}

	indexDir := opts.IndexDir
	if indexDir == "" {
		indexDir = idx.cfg.Index.Dir
	}

	idx.mu.Lock()
	idx.progress = Progress{StartTime: time.Now()}
	idx.mu.Unlock()

	walker, err := corpus.NewWalker(corpus.WalkOptions{
		Root:           absPath,
		MaxFileSize:    int64(idx.cfg.Corpus.MaxFileSize),
		MaxFileCount:   idx.cfg.Corpus.MaxFileCount,
		IgnorePatterns: idx.cfg.Ignore,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create walker: %w", err)
	}

	var files []corpus.FileInfo
	err = walker.Walk(func(fi corpus.FileInfo) error {
		files = append(files, fi)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to walk corpus: %w", err)
	}

	stats := walker.Stats()
	idx.mu.Lock()
	idx.progress.TotalFiles = len(files)
	idx.progress.SkippedFiles = stats.FilesSkipped + stats.DuplicatesSkipped
	idx.mu.Unlock()

	log.Info("Found corpus files", "count", len(files), "skipped", stats.FilesSkipped, "duplicates", stats.DuplicatesSkipped)

	chunks, err := idx.chunkAll(ctx, files, opts.OnProgress)
	if err != nil {
		return 0, err
	}

	idx.mu.Lock()
	idx.progress.TotalChunks = len(chunks)
	idx.mu.Unlock()

	builder := index.NewBuilder(indexDir, idx.cfg.Index.Backend, idx.cfg.Index.BatchSize)
	count, err := builder.Build(ctx, chunks, idx.wrapEmbedder(opts.OnProgress))
	if err != nil {
		return 0, err
	}

	log.Info("Build complete",
		"files", len(files),
		"chunks", count,
		"duration", time.Since(idx.progress.StartTime).Round(time.Millisecond),
	)
	return count, nil
}

// chunkAll reads and chunks every file, fanning the work out across CPUs.
// Results are collected per file slot so chunk order matches walk order.
func (idx *Indexer) chunkAll(ctx context.Context, files []corpus.FileInfo, onProgress ProgressFunc) ([]corpus.Chunk, error) {
	results := make([][]corpus.Chunk, len(files))
	errs := make([]error, len(files))

	workers := runtime.NumCPU()
	if workers > len(files) {
		workers = len(files)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				fi := files[i]
				content, err := os.ReadFile(fi.Path)
				if err != nil {
					errs[i] = err
					continue
				}
				results[i] = idx.chunker.Chunk(string(content), fi.RelPath)
			}
		}()
	}

	for i := range files {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return nil, ctx.Err()
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	var chunks []corpus.Chunk
	for i, fi := range files {
		if errs[i] != nil {
			log.Warn("Failed to read file, skipping", "path", fi.RelPath, "error", errs[i])
			idx.mu.Lock()
			idx.progress.Errors++
			idx.mu.Unlock()
			continue
		}
		chunks = append(chunks, results[i]...)

		idx.mu.Lock()
		idx.progress.ProcessedFiles++
		idx.progress.CurrentFile = fi.RelPath
		p := idx.progress
		idx.mu.Unlock()
		if onProgress != nil {
			onProgress(p)
		}
	}
	return chunks, nil
}

// wrapEmbedder reports embedding progress as batches complete.
func (idx *Indexer) wrapEmbedder(onProgress ProgressFunc) embeddings.Service {
	if onProgress == nil {
		return idx.embedder
	}
	return &progressEmbedder{Service: idx.embedder, idx: idx, onProgress: onProgress}
}

type progressEmbedder struct {
	embeddings.Service
	idx        *Indexer
	onProgress ProgressFunc
}

func (p *progressEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := p.Service.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	p.idx.mu.Lock()
	p.idx.progress.EmbeddedChunks += len(texts)
	prog := p.idx.progress
	p.idx.mu.Unlock()
	p.onProgress(prog)
	return vectors, nil
}

// Progress returns the current build progress.
func (idx *Indexer) Progress() Progress {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.progress
}
