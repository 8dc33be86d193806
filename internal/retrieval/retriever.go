// Package retrieval turns a question into a ranked set of relevant chunks.
package retrieval

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/charmbracelet/log"

	"github.com/kwhuang/manualqa/internal/corpus"
	"github.com/kwhuang/manualqa/internal/embeddings"
	"github.com/kwhuang/manualqa/internal/index"
)

// Result is one retrieved chunk with its score and rank.
type Result struct {
	Chunk      corpus.Chunk
	Similarity float64
	Rank       int
}

// Retriever answers similarity queries against a loaded index. Candidates are
// deduplicated by source and filtered by a similarity threshold, so a short
// or empty result list is the normal outcome for off-topic questions.
type Retriever struct {
	loader    *index.Loader
	embedder  embeddings.Service
	corpusDir string
	topK      int
	threshold float64
}

// Options configures a Retriever.
type Options struct {
	// CorpusDir, when set, enables verification that each result's source
	// file still exists beneath it. Results with missing sources are dropped.
	CorpusDir string

	// TopK is how many nearest neighbours to fetch before deduplication.
	TopK int

	// Threshold is the minimum cosine similarity a result must reach.
	Threshold float64
}

// New creates a Retriever over the given loader and embedder.
func New(loader *index.Loader, embedder embeddings.Service, opts Options) *Retriever {
	topK := opts.TopK
	if topK <= 0 {
		topK = 10
	}
	return &Retriever{
		loader:    loader,
		embedder:  embedder,
		corpusDir: opts.CorpusDir,
		topK:      topK,
		threshold: opts.Threshold,
	}
}

// Retrieve returns the best-matching chunks for the question, at most one per
// source, sorted by descending similarity. An empty slice means nothing
// relevant was found; that is not an error.
func (r *Retriever) Retrieve(ctx context.Context, question string) ([]Result, error) {
	idx, err := r.loader.Load()
	if err != nil {
		return nil, err
	}

	query, err := r.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}
	index.Normalize(query)

	hits, err := idx.Search(query, r.topK)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	// Keep only the best hit per source. Hits arrive best-first, so the
	// first occurrence of a source wins.
	bySource := make(map[string]bool, len(hits))
	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		chunk, ok := idx.Chunk(h.Position)
		if !ok {
			continue
		}
		if bySource[chunk.Source] {
			continue
		}
		bySource[chunk.Source] = true

		if float64(h.Similarity) < r.threshold {
			continue
		}
		if !r.sourceExists(chunk.Source) {
			log.Debug("Dropping result with missing source", "source", chunk.Source)
			continue
		}
		results = append(results, Result{Chunk: chunk, Similarity: float64(h.Similarity)})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	for i := range results {
		results[i].Rank = i + 1
	}
	return results, nil
}

// sourceExists reports whether the source path resolves to a file under the
// corpus directory. When no corpus directory is configured the check is
// skipped.
func (r *Retriever) sourceExists(source string) bool {
	if r.corpusDir == "" {
		return true
	}
	info, err := os.Stat(filepath.Join(r.corpusDir, source))
	return err == nil && !info.IsDir()
}
