package corpus

import (
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/log"
)

// Chunker splits normalized document text into bounded, overlapping chunks.
type Chunker struct {
	opts ChunkOptions
}

// NewChunker creates a new chunker.
func NewChunker(opts ChunkOptions) *Chunker {
	// Apply defaults for zero values
	if opts.MaxChunkSize <= 0 {
		opts.MaxChunkSize = DefaultChunkOptions().MaxChunkSize
	}
	if opts.ChunkOverlap < 0 || opts.ChunkOverlap >= opts.MaxChunkSize {
		opts.ChunkOverlap = DefaultChunkOptions().ChunkOverlap
	}
	if opts.MaxChunksPerSource <= 0 {
		opts.MaxChunksPerSource = DefaultChunkOptions().MaxChunksPerSource
	}

	return &Chunker{opts: opts}
}

// Chunk splits text into chunks carrying the given source identifier.
//
// Text is split on blank-line paragraph boundaries. Successive paragraphs are
// packed into one chunk until the next paragraph would push it past
// MaxChunkSize. A single paragraph longer than MaxChunkSize is emitted as
// fixed-size overlapping windows instead. No chunk exceeds
// MaxChunkSize + ChunkOverlap runes. Empty or whitespace-only input yields
// no chunks.
func (c *Chunker) Chunk(text, source string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var chunks []Chunk
	capped := false

	// emit appends a chunk and reports whether the per-source cap allows
	// more. Chunks produced before the cap are kept.
	emit := func(content string) bool {
		content = strings.TrimSpace(content)
		if content == "" {
			return true
		}
		chunks = append(chunks, Chunk{Content: content, Source: source})
		if len(chunks) >= c.opts.MaxChunksPerSource {
			log.Warn("Chunk cap reached, truncating source",
				"source", source, "cap", c.opts.MaxChunksPerSource)
			return false
		}
		return true
	}

	var acc []string // paragraphs of the current chunk
	accLen := 0      // rune length of the current chunk, joins included

	flush := func() bool {
		if len(acc) == 0 {
			return true
		}
		ok := emit(strings.Join(acc, "\n\n"))
		acc = acc[:0]
		accLen = 0
		return ok
	}

	for _, para := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(para) == "" {
			continue
		}
		paraLen := utf8.RuneCountInString(para)

		// Oversized paragraphs become fixed overlapping windows.
		if paraLen > c.opts.MaxChunkSize {
			if !flush() {
				capped = true
				break
			}
			if !c.emitWindows(para, emit) {
				capped = true
				break
			}
			continue
		}

		joined := accLen + paraLen
		if len(acc) > 0 {
			joined += 2 // "\n\n"
		}
		if joined > c.opts.MaxChunkSize {
			if !flush() {
				capped = true
				break
			}
			joined = paraLen
		}
		acc = append(acc, para)
		accLen = joined
	}

	if !capped {
		flush()
	}

	return chunks
}

// emitWindows splits one oversized paragraph into windows of MaxChunkSize
// runes, each overlapping the previous by ChunkOverlap runes.
func (c *Chunker) emitWindows(para string, emit func(string) bool) bool {
	runes := []rune(para)
	step := c.opts.MaxChunkSize - c.opts.ChunkOverlap

	for start := 0; start < len(runes); start += step {
		end := start + c.opts.MaxChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		if !emit(string(runes[start:end])) {
			return false
		}
		if end == len(runes) {
			break
		}
	}
	return true
}
