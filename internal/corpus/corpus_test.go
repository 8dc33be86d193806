package corpus

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestChunker tests paragraph-based chunking.
func TestChunker(t *testing.T) {
	chunker := NewChunker(ChunkOptions{
		MaxChunkSize:       100,
		ChunkOverlap:       20,
		MaxChunksPerSource: 1000,
	})

	t.Run("empty content returns nil", func(t *testing.T) {
		assert.Nil(t, chunker.Chunk("", "doc.txt"))
		assert.Nil(t, chunker.Chunk("   \n\n  \n", "doc.txt"))
	})

	t.Run("small content returns single chunk", func(t *testing.T) {
		content := "A short paragraph."
		chunks := chunker.Chunk(content, "doc.txt")
		require.Len(t, chunks, 1)
		assert.Equal(t, content, chunks[0].Content)
		assert.Equal(t, "doc.txt", chunks[0].Source)
	})

	t.Run("small paragraphs are packed together", func(t *testing.T) {
		content := "First paragraph.\n\nSecond paragraph.\n\nThird paragraph."
		chunks := chunker.Chunk(content, "doc.txt")
		require.Len(t, chunks, 1)
		assert.Equal(t, content, chunks[0].Content)
	})

	t.Run("packing splits at the size limit", func(t *testing.T) {
		para := strings.Repeat("a", 60)
		content := para + "\n\n" + para + "\n\n" + para
		chunks := chunker.Chunk(content, "doc.txt")
		require.Len(t, chunks, 3)
		for _, c := range chunks {
			assert.Equal(t, para, c.Content)
		}
	})

	t.Run("oversized paragraph becomes overlapping windows", func(t *testing.T) {
		para := strings.Repeat("b", 250)
		chunks := chunker.Chunk(para, "doc.txt")
		// Windows of 100 stepping 80: [0,100) [80,180) [160,250)
		require.Len(t, chunks, 3)
		assert.Len(t, chunks[0].Content, 100)
		assert.Len(t, chunks[1].Content, 100)
		assert.Len(t, chunks[2].Content, 90)

		// Consecutive windows share the overlap region.
		assert.Equal(t, chunks[0].Content[80:], chunks[1].Content[:20])
	})

	t.Run("no chunk exceeds max plus overlap", func(t *testing.T) {
		var sb strings.Builder
		for i := 0; i < 50; i++ {
			sb.WriteString(strings.Repeat("x", 10+i*7%120))
			sb.WriteString("\n\n")
		}
		for _, c := range chunker.Chunk(sb.String(), "doc.txt") {
			assert.LessOrEqual(t, utf8.RuneCountInString(c.Content), 120)
		}
	})

	t.Run("multibyte text is counted in runes", func(t *testing.T) {
		para := strings.Repeat("文", 150)
		chunks := chunker.Chunk(para, "doc.txt")
		require.Len(t, chunks, 2)
		assert.Equal(t, 100, utf8.RuneCountInString(chunks[0].Content))
	})

	t.Run("order follows document order", func(t *testing.T) {
		content := strings.Repeat("a", 90) + "\n\n" + strings.Repeat("b", 90) + "\n\n" + strings.Repeat("c", 90)
		chunks := chunker.Chunk(content, "doc.txt")
		require.Len(t, chunks, 3)
		assert.True(t, strings.HasPrefix(chunks[0].Content, "a"))
		assert.True(t, strings.HasPrefix(chunks[1].Content, "b"))
		assert.True(t, strings.HasPrefix(chunks[2].Content, "c"))
	})

	t.Run("chunking is deterministic", func(t *testing.T) {
		content := strings.Repeat("word ", 200)
		assert.Equal(t, chunker.Chunk(content, "doc.txt"), chunker.Chunk(content, "doc.txt"))
	})
}

// TestChunkerCap tests the per-source chunk cap.
func TestChunkerCap(t *testing.T) {
	chunker := NewChunker(ChunkOptions{
		MaxChunkSize:       10,
		ChunkOverlap:       2,
		MaxChunksPerSource: 3,
	})

	var paras []string
	for i := 0; i < 20; i++ {
		paras = append(paras, strings.Repeat("z", 9))
	}
	chunks := chunker.Chunk(strings.Join(paras, "\n\n"), "big.txt")

	// Chunks produced before the cap are kept.
	require.Len(t, chunks, 3)
	for _, c := range chunks {
		assert.NotEmpty(t, c.Content)
	}
}

// TestChunkerDefaults tests zero-value option handling.
func TestChunkerDefaults(t *testing.T) {
	chunker := NewChunker(ChunkOptions{})
	assert.Equal(t, DefaultChunkOptions(), chunker.opts)

	// Overlap must stay below the chunk size.
	chunker = NewChunker(ChunkOptions{MaxChunkSize: 50, ChunkOverlap: 50})
	assert.Equal(t, DefaultChunkOptions().ChunkOverlap, chunker.opts.ChunkOverlap)
}

// TestWalker tests corpus directory traversal.
func TestWalker(t *testing.T) {
	tmpDir := t.TempDir()

	files := map[string]string{
		"intro.txt":            "Welcome to the manual.",
		"modeling/mirror.txt":  "The mirror modifier duplicates geometry.",
		"modeling/subsurf.txt": "Subdivision surface smooths a mesh.",
		"notes.md":             "# not part of the corpus",
		"drafts/old.txt":       "draft text",
	}
	for path, content := range files {
		fullPath := filepath.Join(tmpDir, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(fullPath), 0o755))
		require.NoError(t, os.WriteFile(fullPath, []byte(content), 0o644))
	}

	t.Run("finds only text files", func(t *testing.T) {
		walker, err := NewWalker(WalkOptions{Root: tmpDir})
		require.NoError(t, err)

		var found []string
		err = walker.Walk(func(fi FileInfo) error {
			found = append(found, fi.RelPath)
			return nil
		})
		require.NoError(t, err)

		assert.Contains(t, found, "intro.txt")
		assert.Contains(t, found, filepath.Join("modeling", "mirror.txt"))
		assert.NotContains(t, found, "notes.md")
	})

	t.Run("respects ignore patterns", func(t *testing.T) {
		walker, err := NewWalker(WalkOptions{
			Root:           tmpDir,
			IgnorePatterns: []string{"drafts/"},
		})
		require.NoError(t, err)

		var found []string
		err = walker.Walk(func(fi FileInfo) error {
			found = append(found, fi.RelPath)
			return nil
		})
		require.NoError(t, err)
		assert.NotContains(t, found, filepath.Join("drafts", "old.txt"))
	})

	t.Run("respects max file count", func(t *testing.T) {
		walker, err := NewWalker(WalkOptions{Root: tmpDir, MaxFileCount: 2})
		require.NoError(t, err)

		count := 0
		err = walker.Walk(func(fi FileInfo) error {
			count++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})

	t.Run("respects max file size", func(t *testing.T) {
		walker, err := NewWalker(WalkOptions{Root: tmpDir, MaxFileSize: 10})
		require.NoError(t, err)

		var found []string
		err = walker.Walk(func(fi FileInfo) error {
			found = append(found, fi.RelPath)
			return nil
		})
		require.NoError(t, err)
		assert.Empty(t, found)
		assert.Greater(t, walker.Stats().FilesSkipped, 0)
	})

	t.Run("skips byte-identical duplicates", func(t *testing.T) {
		dupDir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dupDir, "a.txt"), []byte("same"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dupDir, "b.txt"), []byte("same"), 0o644))

		walker, err := NewWalker(WalkOptions{Root: dupDir})
		require.NoError(t, err)

		count := 0
		err = walker.Walk(func(fi FileInfo) error {
			count++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, count)
		assert.Equal(t, 1, walker.Stats().DuplicatesSkipped)
	})

	t.Run("provides hashes and stats", func(t *testing.T) {
		walker, err := NewWalker(WalkOptions{Root: tmpDir})
		require.NoError(t, err)

		err = walker.Walk(func(fi FileInfo) error {
			assert.Len(t, fi.Hash, 16)
			assert.Greater(t, fi.Size, int64(0))
			return nil
		})
		require.NoError(t, err)

		stats := walker.Stats()
		assert.Greater(t, stats.FilesFound, 0)
		assert.Greater(t, stats.TotalBytes, int64(0))
	})
}

// TestWalkerErrors tests error handling.
func TestWalkerErrors(t *testing.T) {
	t.Run("non-existent root", func(t *testing.T) {
		_, err := NewWalker(WalkOptions{Root: "/nonexistent/path"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "does not exist")
	})

	t.Run("root is file not directory", func(t *testing.T) {
		tmpDir := t.TempDir()
		file := filepath.Join(tmpDir, "file.txt")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

		_, err := NewWalker(WalkOptions{Root: file})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "not a directory")
	})

	t.Run("callback errors propagate", func(t *testing.T) {
		tmpDir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "a.txt"), []byte("x"), 0o644))

		walker, err := NewWalker(WalkOptions{Root: tmpDir})
		require.NoError(t, err)

		wantErr := fmt.Errorf("stop")
		err = walker.Walk(func(fi FileInfo) error { return wantErr })
		assert.ErrorIs(t, err, wantErr)
	})
}
