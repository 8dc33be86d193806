// Package corpus provides access to the manual text corpus: walking source
// files and splitting their contents into indexable chunks.
package corpus

import "time"

// Chunk is a bounded span of source text treated as one retrievable unit.
// Chunks are immutable once created; their position in the built index is
// their identity. The JSON field names match the persisted chunk store.
type Chunk struct {
	Content string `json:"content"`
	Source  string `json:"source"`
}

// FileInfo represents metadata about a corpus file.
type FileInfo struct {
	Path    string    // Absolute path to the file
	RelPath string    // Path relative to the corpus root, used as chunk source
	Size    int64     // File size in bytes
	ModTime time.Time // Last modification time
	Hash    string    // xxhash of file contents
}

// ChunkOptions configures the chunker.
type ChunkOptions struct {
	// MaxChunkSize is the maximum chunk size in runes. Paragraphs are packed
	// greedily up to this limit; longer paragraphs are split into windows.
	MaxChunkSize int

	// ChunkOverlap is the number of overlapping runes between the windows of
	// an oversized paragraph.
	ChunkOverlap int

	// MaxChunksPerSource caps the number of chunks produced for one source
	// file. Pathological inputs stop at the cap with a warning; chunks
	// produced before the cap are kept.
	MaxChunksPerSource int
}

// DefaultChunkOptions returns sensible defaults for chunking.
func DefaultChunkOptions() ChunkOptions {
	return ChunkOptions{
		MaxChunkSize:       500,
		ChunkOverlap:       50,
		MaxChunksPerSource: 1000,
	}
}

// WalkOptions configures the corpus walker.
type WalkOptions struct {
	// Root is the corpus directory to walk.
	Root string

	// MaxFileSize is the maximum file size to process (in bytes).
	MaxFileSize int64

	// MaxFileCount is the maximum number of files to process.
	MaxFileCount int

	// IgnorePatterns are patterns to skip (gitignore syntax).
	IgnorePatterns []string
}

// WalkStats contains statistics from a corpus walk.
type WalkStats struct {
	FilesFound        int   // Text files yielded
	FilesSkipped      int   // Files skipped due to size/pattern/extension
	DuplicatesSkipped int   // Byte-identical files skipped
	TotalBytes        int64 // Total bytes of yielded files
}
