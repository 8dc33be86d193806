package index

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"

	_ "github.com/mattn/go-sqlite3"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

func init() {
	// Register sqlite-vec extension
	sqlite_vec.Auto()
}

// SQLiteVec is the accelerated search backend: an in-memory sqlite-vec vec0
// virtual table with cosine distance. On unit vectors cosine distance is
// 1 - inner product, so its results match Flat up to float tolerance; the
// Index layer re-sorts hits so tie ordering is identical too.
//
// The persisted artifact stays the portable flat format; a loaded index is
// promoted to this backend when configured.
type SQLiteVec struct {
	db    *sql.DB
	dim   int
	count int
}

// NewSQLiteVec creates an empty sqlite-vec backend for vectors of the given
// dimension.
func NewSQLiteVec(dim int) (*SQLiteVec, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}

	// An in-memory database must stay on one connection or the virtual
	// table vanishes between queries.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(fmt.Sprintf(
		"CREATE VIRTUAL TABLE chunk_vectors USING vec0(embedding float[%d] distance_metric=cosine)", dim))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create vector table: %w", err)
	}

	return &SQLiteVec{db: db, dim: dim}, nil
}

// PromoteFlat builds a SQLiteVec backend holding the same vectors as f.
func PromoteFlat(f *Flat) (*SQLiteVec, error) {
	s, err := NewSQLiteVec(f.Dimensions())
	if err != nil {
		return nil, err
	}

	vectors := make([][]float32, f.Count())
	for i := range vectors {
		vectors[i] = f.Vector(i)
	}
	if err := s.Add(vectors); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Add appends vectors to the backend.
func (s *SQLiteVec) Add(vectors [][]float32) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("INSERT INTO chunk_vectors (rowid, embedding) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, v := range vectors {
		if len(v) != s.dim {
			return fmt.Errorf("vector %d has dimension %d, index has %d", i, len(v), s.dim)
		}
		// rowid is position+1; vec0 rowids start at 1
		if _, err := stmt.Exec(s.count+i+1, serializeVector(v)); err != nil {
			return fmt.Errorf("failed to insert vector %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit vectors: %w", err)
	}
	s.count += len(vectors)
	return nil
}

// Search returns the k nearest vectors by cosine distance.
func (s *SQLiteVec) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != s.dim {
		return nil, fmt.Errorf("query has dimension %d, index has %d", len(query), s.dim)
	}
	if s.count == 0 || k <= 0 {
		return nil, nil
	}

	rows, err := s.db.Query(`
		SELECT rowid, distance
		FROM chunk_vectors
		WHERE embedding MATCH ? AND k = ?
		ORDER BY distance ASC
	`, serializeVector(query), k)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var rowid int64
		var distance float64
		if err := rows.Scan(&rowid, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		hits = append(hits, Hit{
			Position:   int(rowid) - 1,
			Similarity: float32(1 - distance),
		})
	}
	return hits, rows.Err()
}

// Portable copies the stored vectors back out into the flat form.
func (s *SQLiteVec) Portable() (*Flat, error) {
	f := NewFlat(s.dim)

	rows, err := s.db.Query("SELECT embedding FROM chunk_vectors ORDER BY rowid ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to read vectors back: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("failed to scan vector: %w", err)
		}
		v, err := deserializeVector(blob, s.dim)
		if err != nil {
			return nil, err
		}
		if err := f.Add([][]float32{v}); err != nil {
			return nil, err
		}
	}
	return f, rows.Err()
}

// Close releases the in-memory database.
func (s *SQLiteVec) Close() error {
	return s.db.Close()
}

// serializeVector converts a float32 slice to bytes for sqlite-vec.
func serializeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

// deserializeVector converts a sqlite-vec blob back into a float32 slice.
func deserializeVector(blob []byte, dim int) ([]float32, error) {
	if len(blob) != dim*4 {
		return nil, fmt.Errorf("vector blob has %d bytes, want %d", len(blob), dim*4)
	}
	v := make([]float32, dim)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return v, nil
}
