package corpus

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/charmbracelet/log"
	gitignore "github.com/sabhiram/go-gitignore"
)

// Walker traverses a corpus directory and yields its text files.
type Walker struct {
	opts    WalkOptions
	ignorer *gitignore.GitIgnore
	stats   WalkStats
}

// NewWalker creates a new corpus walker.
func NewWalker(opts WalkOptions) (*Walker, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve corpus root: %w", err)
	}
	opts.Root = root

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("corpus root does not exist: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("corpus root is not a directory: %s", root)
	}

	return &Walker{
		opts:    opts,
		ignorer: gitignore.CompileIgnoreLines(opts.IgnorePatterns...),
	}, nil
}

// Walk traverses the corpus and calls fn for each text file, in lexical walk
// order. Byte-identical duplicate files are yielded once.
func (w *Walker) Walk(fn func(FileInfo) error) error {
	w.stats = WalkStats{}
	seen := make(map[uint64]string)

	return filepath.WalkDir(w.opts.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(w.opts.Root, path)
		if err != nil {
			return err
		}

		if d.IsDir() {
			if rel != "." && w.ignorer.MatchesPath(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}

		if w.ignorer.MatchesPath(rel) || !strings.EqualFold(filepath.Ext(path), ".txt") {
			w.stats.FilesSkipped++
			return nil
		}

		info, err := d.Info()
		if err != nil {
			log.Warn("Failed to stat corpus file, skipping", "path", rel, "error", err)
			w.stats.FilesSkipped++
			return nil
		}

		if w.opts.MaxFileSize > 0 && info.Size() > w.opts.MaxFileSize {
			log.Debug("Corpus file too large, skipping", "path", rel, "size", info.Size())
			w.stats.FilesSkipped++
			return nil
		}

		if w.opts.MaxFileCount > 0 && w.stats.FilesFound >= w.opts.MaxFileCount {
			log.Warn("Corpus file limit reached, stopping walk", "limit", w.opts.MaxFileCount)
			return filepath.SkipAll
		}

		sum, err := hashFile(path)
		if err != nil {
			log.Warn("Failed to hash corpus file, skipping", "path", rel, "error", err)
			w.stats.FilesSkipped++
			return nil
		}
		if prev, ok := seen[sum]; ok {
			log.Debug("Duplicate corpus file, skipping", "path", rel, "duplicate_of", prev)
			w.stats.DuplicatesSkipped++
			return nil
		}
		seen[sum] = rel

		w.stats.FilesFound++
		w.stats.TotalBytes += info.Size()

		return fn(FileInfo{
			Path:    path,
			RelPath: rel,
			Size:    info.Size(),
			ModTime: info.ModTime(),
			Hash:    fmt.Sprintf("%016x", sum),
		})
	})
}

// Stats returns statistics about the last walk.
func (w *Walker) Stats() WalkStats {
	return w.stats
}

// hashFile computes the xxhash of a file's contents.
func hashFile(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}
