// Package index implements the persisted vector similarity index the
// retrieval pipeline queries.
//
// The index is exact: inner product over unit-normalized vectors, which is
// cosine similarity. It is persisted as two co-located artifacts under one
// directory — vectors.idx (the vector data) and chunks.json (the
// position-aligned chunk store) — replaced together on every rebuild.
package index

import (
	"errors"
	"math"
	"sort"

	"github.com/kwhuang/manualqa/internal/corpus"
)

// Artifact file names within the index directory.
const (
	VectorsFile = "vectors.idx"
	ChunksFile  = "chunks.json"
)

// ErrUnavailable reports that the index artifacts are missing, unreadable,
// or inconsistent with each other. It is fatal at load time.
var ErrUnavailable = errors.New("index unavailable")

// Hit is one search result: a chunk position and its similarity to the query.
type Hit struct {
	Position   int
	Similarity float32
}

// Backend is the similarity-search capability behind an Index. Both
// implementations return the same results up to floating-point tolerance;
// which one runs is a configuration choice, never inspected at runtime.
type Backend interface {
	// Add appends vectors to the backend. Vectors must be unit-normalized.
	Add(vectors [][]float32) error

	// Search returns at most k hits for the unit-normalized query.
	Search(query []float32, k int) ([]Hit, error)

	// Portable returns the hardware-independent flat form of the backend's
	// vectors, suitable for persisting.
	Portable() (*Flat, error)
}

// Index is a loaded, queryable similarity index together with its
// position-aligned chunk store. It is immutable after load and safe for
// concurrent readers.
type Index struct {
	backend Backend
	chunks  []corpus.Chunk
	dim     int
}

// New wraps a populated backend and its position-aligned chunks.
func New(backend Backend, chunks []corpus.Chunk, dim int) *Index {
	return &Index{backend: backend, chunks: chunks, dim: dim}
}

// Search returns at most k hits sorted by descending similarity, ties broken
// by ascending position. The ordering is enforced here so results are
// identical regardless of backend.
func (ix *Index) Search(query []float32, k int) ([]Hit, error) {
	if k <= 0 || len(ix.chunks) == 0 {
		return nil, nil
	}

	hits, err := ix.backend.Search(query, k)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].Position < hits[j].Position
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Chunk returns the chunk at the given position.
func (ix *Index) Chunk(position int) (corpus.Chunk, bool) {
	if position < 0 || position >= len(ix.chunks) {
		return corpus.Chunk{}, false
	}
	return ix.chunks[position], true
}

// Count returns the number of indexed chunks.
func (ix *Index) Count() int {
	return len(ix.chunks)
}

// Dimensions returns the vector dimensionality.
func (ix *Index) Dimensions() int {
	return ix.dim
}

// Normalize scales v to unit L2 norm in place. Zero vectors are left as-is.
// Normalization is what makes inner product a valid proxy for cosine
// similarity, so it is applied to every vector before add and search.
func Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
