package index

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"
)

// flatMagic identifies the vectors.idx format, version included.
var flatMagic = [4]byte{'M', 'Q', 'V', '1'}

// Flat is the exact, portable, CPU-resident index backend: a brute-force
// inner-product scan over row-major float32 vectors. It is the form that gets
// persisted; the dataset is one manual corpus, so exactness wins over speed.
type Flat struct {
	dim  int
	data []float32 // row-major, Count()*dim
}

// NewFlat creates an empty flat index for vectors of the given dimension.
func NewFlat(dim int) *Flat {
	return &Flat{dim: dim}
}

// Add appends vectors to the index.
func (f *Flat) Add(vectors [][]float32) error {
	for i, v := range vectors {
		if len(v) != f.dim {
			return fmt.Errorf("vector %d has dimension %d, index has %d", i, len(v), f.dim)
		}
		f.data = append(f.data, v...)
	}
	return nil
}

// Count returns the number of stored vectors.
func (f *Flat) Count() int {
	if f.dim == 0 {
		return 0
	}
	return len(f.data) / f.dim
}

// Dimensions returns the vector dimensionality.
func (f *Flat) Dimensions() int {
	return f.dim
}

// Vector returns a view of the vector at the given position.
func (f *Flat) Vector(position int) []float32 {
	return f.data[position*f.dim : (position+1)*f.dim]
}

// Search scans every stored vector and returns the k highest inner products.
func (f *Flat) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != f.dim {
		return nil, fmt.Errorf("query has dimension %d, index has %d", len(query), f.dim)
	}
	count := f.Count()
	if count == 0 || k <= 0 {
		return nil, nil
	}

	hits := make([]Hit, count)
	for i := 0; i < count; i++ {
		row := f.Vector(i)
		var dot float32
		for j, q := range query {
			dot += q * row[j]
		}
		hits[i] = Hit{Position: i, Similarity: dot}
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

// Portable returns the index itself; Flat is the portable form.
func (f *Flat) Portable() (*Flat, error) {
	return f, nil
}

// WriteFile persists the index to path in the vectors.idx binary format:
// magic "MQV1", uint32 dimension, uint32 count, then count*dimension
// little-endian float32 values.
func (f *Flat) WriteFile(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create vector file: %w", err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	if _, err := w.Write(flatMagic[:]); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(f.dim)); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(f.Count())); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, f.data); err != nil {
		return fmt.Errorf("failed to write vectors: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush vectors: %w", err)
	}
	return file.Sync()
}

// ReadFlat loads a flat index from the vectors.idx format at path.
func ReadFlat(path string) (*Flat, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector file: %w", err)
	}
	defer file.Close()

	r := bufio.NewReader(file)

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if magic != flatMagic {
		return nil, fmt.Errorf("not a vector index file: bad magic %q", magic[:])
	}

	var dim, count uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if dim == 0 && count > 0 {
		return nil, fmt.Errorf("corrupt vector index: zero dimension with %d vectors", count)
	}

	f := &Flat{dim: int(dim)}
	if count > 0 {
		f.data = make([]float32, int(dim)*int(count))
		if err := binary.Read(r, binary.LittleEndian, f.data); err != nil {
			return nil, fmt.Errorf("failed to read vectors: %w", err)
		}
	}
	return f, nil
}
