// Package sqlite is the persistent vector store. Records live in a single
// SQLite file and are searched by brute-force cosine similarity.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver

	"ragpipe/internal/domain"
	"ragpipe/internal/vectorstore"
)

// FileName is the database file created inside the store directory.
const FileName = "index.db"

const schema = `
CREATE TABLE IF NOT EXISTS embeddings (
	id           TEXT PRIMARY KEY,
	document_id  TEXT NOT NULL,
	chunk_id     TEXT NOT NULL,
	chunk_index  INTEGER NOT NULL,
	start_offset INTEGER NOT NULL,
	text         TEXT NOT NULL,
	metadata     TEXT NOT NULL,
	vector       BLOB NOT NULL,
	dimension    INTEGER NOT NULL
)`

// Store is a domain.VectorStore backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

var _ domain.VectorStore = (*Store)(nil)

// NewStore opens or creates <dir>/index.db. Any failure to open the database
// is reported as ErrIndexUnavailable.
func NewStore(ctx context.Context, dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating store directory: %v", domain.ErrIndexUnavailable, err)
	}
	dbPath := filepath.Join(dir, FileName)

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %v", domain.ErrIndexUnavailable, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: opening %s: %v", domain.ErrIndexUnavailable, dbPath, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: creating schema: %v", domain.ErrIndexUnavailable, err)
	}
	return &Store{db: db, path: dbPath}, nil
}

func (s *Store) Name() string { return "sqlite" }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

func (s *Store) Close() error { return s.db.Close() }

// Upsert writes records in one transaction. All vectors must share the
// dimension of the records already stored.
func (s *Store) Upsert(ctx context.Context, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	dim, err := s.dimension(ctx)
	if err != nil {
		return err
	}
	if dim == 0 {
		dim = len(records[0].Vector)
	}
	for _, r := range records {
		if len(r.Vector) == 0 || len(r.Vector) != dim {
			return fmt.Errorf("%w: record %s has dimension %d, index has %d",
				domain.ErrIndexUnavailable, r.ID, len(r.Vector), dim)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %v", domain.ErrIndexUnavailable, err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO embeddings (id, document_id, chunk_id, chunk_index, start_offset, text, metadata, vector, dimension)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_id = excluded.document_id,
			chunk_id = excluded.chunk_id,
			chunk_index = excluded.chunk_index,
			start_offset = excluded.start_offset,
			text = excluded.text,
			metadata = excluded.metadata,
			vector = excluded.vector,
			dimension = excluded.dimension
	`)
	if err != nil {
		return fmt.Errorf("%w: preparing statement: %v", domain.ErrIndexUnavailable, err)
	}
	defer stmt.Close()

	for _, r := range records {
		metadataJSON, err := json.Marshal(r.Chunk.Metadata)
		if err != nil {
			return fmt.Errorf("marshalling chunk metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, r.ID, r.Chunk.DocumentID, r.Chunk.ID, r.Chunk.Index,
			r.Chunk.Offset, r.Chunk.Text, string(metadataJSON), encodeVector(r.Vector), len(r.Vector)); err != nil {
			return fmt.Errorf("%w: saving record %s: %v", domain.ErrIndexUnavailable, r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing transaction: %v", domain.ErrIndexUnavailable, err)
	}
	return nil
}

// Search fails with ErrIndexUnavailable when the query dimension differs
// from the stored vectors, as happens after switching embedders.
func (s *Store) Search(ctx context.Context, vector []float64, topK int, threshold float64) ([]domain.SearchResult, error) {
	dim, err := s.dimension(ctx)
	if err != nil {
		return nil, err
	}
	if dim > 0 && len(vector) != dim {
		return nil, fmt.Errorf("%w: query has dimension %d, index has %d", domain.ErrIndexUnavailable, len(vector), dim)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, chunk_id, chunk_index, start_offset, text, metadata, vector
		FROM embeddings
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: querying embeddings: %v", domain.ErrIndexUnavailable, err)
	}
	defer rows.Close()

	var results []domain.SearchResult
	for rows.Next() {
		var (
			id, metadataJSON string
			chunk            domain.Chunk
			blob             []byte
		)
		if err := rows.Scan(&id, &chunk.DocumentID, &chunk.ID, &chunk.Index, &chunk.Offset,
			&chunk.Text, &metadataJSON, &blob); err != nil {
			return nil, fmt.Errorf("%w: scanning embedding: %v", domain.ErrIndexUnavailable, err)
		}
		chunk.Metadata, err = decodeMetadata(metadataJSON)
		if err != nil {
			return nil, fmt.Errorf("decoding metadata of %s: %w", id, err)
		}
		results = append(results, domain.SearchResult{
			ID:    id,
			Chunk: chunk,
			Score: vectorstore.Cosine(decodeVector(blob), vector),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating embeddings: %v", domain.ErrIndexUnavailable, err)
	}
	return vectorstore.Rank(results, topK, threshold), nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM embeddings").Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: counting embeddings: %v", domain.ErrIndexUnavailable, err)
	}
	return n, nil
}

func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM embeddings"); err != nil {
		return fmt.Errorf("%w: clearing embeddings: %v", domain.ErrIndexUnavailable, err)
	}
	return nil
}

func (s *Store) Stats(ctx context.Context) (domain.IndexStats, error) {
	n, err := s.Count(ctx)
	if err != nil {
		return domain.IndexStats{}, err
	}
	dim, err := s.dimension(ctx)
	if err != nil {
		return domain.IndexStats{}, err
	}
	return domain.IndexStats{Backend: s.Name(), Count: n, Dimension: dim, StoragePath: s.path}, nil
}

// dimension returns the dimension of stored vectors, or 0 when empty.
func (s *Store) dimension(ctx context.Context) (int, error) {
	var dim int
	err := s.db.QueryRowContext(ctx, "SELECT dimension FROM embeddings LIMIT 1").Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: reading dimension: %v", domain.ErrIndexUnavailable, err)
	}
	return dim, nil
}

// encodeVector stores a vector as little-endian float32.
func encodeVector(v []float64) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(float32(f)))
	}
	return buf
}

func decodeVector(data []byte) []float64 {
	v := make([]float64, len(data)/4)
	for i := range v {
		v[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:])))
	}
	return v
}

// decodeMetadata restores integral numbers as int so page and chunk_index
// read back the way the loader wrote them.
func decodeMetadata(s string) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	for k, v := range m {
		if f, ok := v.(float64); ok && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			m[k] = int(f)
		}
	}
	return m, nil
}
