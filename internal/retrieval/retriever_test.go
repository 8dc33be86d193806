package retrieval

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwhuang/manualqa/internal/corpus"
	"github.com/kwhuang/manualqa/internal/embeddings"
	"github.com/kwhuang/manualqa/internal/index"
)

// stubEmbedder maps query text to fixed vectors.
type stubEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	v, ok := s.vectors[text]
	if !ok {
		return nil, fmt.Errorf("no vector for %q", text)
	}
	return append([]float32(nil), v...), nil
}

func (s *stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return s.Embed(ctx, text)
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := s.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (s *stubEmbedder) Dimensions() int               { return 2 }
func (s *stubEmbedder) Provider() embeddings.Provider { return "stub" }
func (s *stubEmbedder) ModelName() string             { return "stub-model" }

// buildTestIndex persists an index of the given chunks and vectors and
// returns a loader for it.
func buildTestIndex(t *testing.T, chunks []corpus.Chunk, vectors [][]float32) *index.Loader {
	t.Helper()

	dim := len(vectors[0])
	flat := index.NewFlat(dim)
	for _, v := range vectors {
		index.Normalize(v)
	}
	require.NoError(t, flat.Add(vectors))

	dir := t.TempDir()
	require.NoError(t, flat.WriteFile(filepath.Join(dir, index.VectorsFile)))
	data := "["
	for i, c := range chunks {
		if i > 0 {
			data += ","
		}
		data += fmt.Sprintf(`{"content":%q,"source":%q}`, c.Content, c.Source)
	}
	data += "]"
	require.NoError(t, os.WriteFile(filepath.Join(dir, index.ChunksFile), []byte(data), 0o644))

	return index.NewLoader(dir, "flat")
}

func TestRetrieve(t *testing.T) {
	chunks := []corpus.Chunk{
		{Content: "The mirror modifier duplicates geometry across an axis.", Source: "modeling/mirror.txt"},
		{Content: "Mirroring can also be done in edit mode.", Source: "modeling/mirror.txt"},
		{Content: "Subdivision surface smooths a mesh.", Source: "modeling/subsurf.txt"},
		{Content: "The compositor combines render passes.", Source: "compositing/intro.txt"},
	}
	vectors := [][]float32{
		{1, 0},
		{0.95, 0.05},
		{0.7, 0.7},
		{0, 1},
	}
	loader := buildTestIndex(t, chunks, vectors)
	emb := &stubEmbedder{vectors: map[string][]float32{
		"how do I mirror an object": {1, 0},
		"what is the compositor":    {0, 1},
	}}

	t.Run("best chunk per source, ranked by similarity", func(t *testing.T) {
		r := New(loader, emb, Options{TopK: 10, Threshold: 0.25})
		results, err := r.Retrieve(context.Background(), "how do I mirror an object")
		require.NoError(t, err)
		require.Len(t, results, 2)

		// Both mirror chunks match, but only the best one per source is kept.
		assert.Equal(t, "modeling/mirror.txt", results[0].Chunk.Source)
		assert.Contains(t, results[0].Chunk.Content, "duplicates geometry")
		assert.Equal(t, 1, results[0].Rank)

		assert.Equal(t, "modeling/subsurf.txt", results[1].Chunk.Source)
		assert.Equal(t, 2, results[1].Rank)

		assert.Greater(t, results[0].Similarity, results[1].Similarity)
	})

	t.Run("threshold filters weak matches", func(t *testing.T) {
		r := New(loader, emb, Options{TopK: 10, Threshold: 0.9})
		results, err := r.Retrieve(context.Background(), "how do I mirror an object")
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "modeling/mirror.txt", results[0].Chunk.Source)
		for _, res := range results {
			assert.GreaterOrEqual(t, res.Similarity, 0.9)
		}
	})

	t.Run("off-topic question yields empty results, not an error", func(t *testing.T) {
		r := New(loader, emb, Options{TopK: 10, Threshold: 0.99})
		results, err := r.Retrieve(context.Background(), "what is the compositor")
		require.NoError(t, err)
		require.Len(t, results, 1)

		r = New(loader, emb, Options{TopK: 10, Threshold: 1.01})
		results, err = r.Retrieve(context.Background(), "what is the compositor")
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("topK bounds the candidate set", func(t *testing.T) {
		r := New(loader, emb, Options{TopK: 1, Threshold: 0})
		results, err := r.Retrieve(context.Background(), "how do I mirror an object")
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "modeling/mirror.txt", results[0].Chunk.Source)
	})

	t.Run("missing sources are dropped when corpus dir is set", func(t *testing.T) {
		corpusDir := t.TempDir()
		mirrorPath := filepath.Join(corpusDir, "modeling", "mirror.txt")
		require.NoError(t, os.MkdirAll(filepath.Dir(mirrorPath), 0o755))
		require.NoError(t, os.WriteFile(mirrorPath, []byte("mirror docs"), 0o644))

		r := New(loader, emb, Options{TopK: 10, Threshold: 0.25, CorpusDir: corpusDir})
		results, err := r.Retrieve(context.Background(), "how do I mirror an object")
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "modeling/mirror.txt", results[0].Chunk.Source)
	})
}

func TestRetrieveErrors(t *testing.T) {
	chunks := []corpus.Chunk{{Content: "c", Source: "s.txt"}}
	vectors := [][]float32{{1, 0}}

	t.Run("index unavailable", func(t *testing.T) {
		loader := index.NewLoader(filepath.Join(t.TempDir(), "missing"), "flat")
		r := New(loader, &stubEmbedder{}, Options{})
		_, err := r.Retrieve(context.Background(), "anything")
		assert.ErrorIs(t, err, index.ErrUnavailable)
	})

	t.Run("embedding failure", func(t *testing.T) {
		loader := buildTestIndex(t, chunks, vectors)
		r := New(loader, &stubEmbedder{err: fmt.Errorf("provider down")}, Options{})
		_, err := r.Retrieve(context.Background(), "anything")
		assert.ErrorContains(t, err, "failed to embed question")
	})
}
