package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/kwhuang/manualqa/internal/corpus"
)

// Loader reads the persisted artifacts and caches the resulting Index. The
// first Load does the work; every later call returns the same Index or the
// same error.
type Loader struct {
	dir     string
	backend string

	once sync.Once
	idx  *Index
	err  error
}

// NewLoader creates a loader for the index directory. backend selects the
// in-memory search backend; loading always starts from the portable on-disk
// form.
func NewLoader(dir, backend string) *Loader {
	return &Loader{dir: dir, backend: backend}
}

// Load returns the cached index, reading it from disk on first use. Missing
// or inconsistent artifacts yield an error wrapping ErrUnavailable.
func (l *Loader) Load() (*Index, error) {
	l.once.Do(func() {
		l.idx, l.err = l.load()
	})
	return l.idx, l.err
}

func (l *Loader) load() (*Index, error) {
	flat, err := ReadFlat(filepath.Join(l.dir, VectorsFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: no index found at %s, run a build first", ErrUnavailable, l.dir)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	data, err := os.ReadFile(filepath.Join(l.dir, ChunksFile))
	if err != nil {
		return nil, fmt.Errorf("%w: chunk store: %v", ErrUnavailable, err)
	}

	var chunks []corpus.Chunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		return nil, fmt.Errorf("%w: corrupt chunk store: %v", ErrUnavailable, err)
	}

	if flat.Count() != len(chunks) {
		return nil, fmt.Errorf("%w: index holds %d vectors but chunk store holds %d entries", ErrUnavailable, flat.Count(), len(chunks))
	}

	backend := Backend(flat)
	if l.backend == "sqlite-vec" {
		accel, err := PromoteFlat(flat)
		if err != nil {
			log.Warn("Accelerated backend unavailable, falling back to flat search", "error", err)
		} else {
			backend = accel
		}
	}

	log.Debug("Index loaded", "chunks", len(chunks), "dimensions", flat.Dimensions(), "backend", l.backend)
	return New(backend, chunks, flat.Dimensions()), nil
}
