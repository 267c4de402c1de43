// Package memory is an ephemeral vector store using brute-force cosine
// similarity.
package memory

import (
	"context"
	"fmt"
	"sync"

	"ragpipe/internal/domain"
	"ragpipe/internal/vectorstore"
)

// Storage keeps records in memory, keyed by record ID.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	order     []string
	records   map[string]domain.Record
}

var _ domain.VectorStore = (*Storage)(nil)

func NewStorage() *Storage {
	return &Storage{records: make(map[string]domain.Record)}
}

func (s *Storage) Name() string { return "memory" }

// Upsert replaces records with a known ID. The first record fixes the
// dimension until the store is cleared.
func (s *Storage) Upsert(ctx context.Context, records []domain.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	dim := s.dimension
	for _, r := range records {
		if dim == 0 {
			dim = len(r.Vector)
		}
		if len(r.Vector) == 0 || len(r.Vector) != dim {
			return fmt.Errorf("%w: record %s has dimension %d, index has %d",
				domain.ErrIndexUnavailable, r.ID, len(r.Vector), dim)
		}
	}
	s.dimension = dim
	for _, r := range records {
		if _, ok := s.records[r.ID]; !ok {
			s.order = append(s.order, r.ID)
		}
		s.records[r.ID] = r
	}
	return nil
}

func (s *Storage) Search(ctx context.Context, vector []float64, topK int, threshold float64) ([]domain.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dimension > 0 && len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has dimension %d, index has %d", domain.ErrIndexUnavailable, len(vector), s.dimension)
	}
	results := make([]domain.SearchResult, 0, len(s.order))
	for _, id := range s.order {
		r := s.records[id]
		results = append(results, domain.SearchResult{ID: id, Chunk: r.Chunk, Score: vectorstore.Cosine(r.Vector, vector)})
	}
	return vectorstore.Rank(results, topK, threshold), nil
}

func (s *Storage) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func (s *Storage) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = 0
	s.order = nil
	s.records = make(map[string]domain.Record)
	return nil
}

func (s *Storage) Stats(context.Context) (domain.IndexStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.IndexStats{Backend: s.Name(), Count: len(s.records), Dimension: s.dimension}, nil
}

func (s *Storage) Close() error { return nil }
