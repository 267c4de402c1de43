// Package vectorstore holds the text-level vector index and the helpers shared
// by its storage backends.
package vectorstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ragpipe/internal/domain"
	"ragpipe/internal/logger"
)

// recordNamespace scopes content-derived record IDs.
var recordNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("ragpipe/records"))

// RecordID derives a stable UUID from the chunk's document, position and
// text. Indexing the same chunk twice therefore overwrites one record.
func RecordID(c domain.Chunk) string {
	key := strings.Join([]string{c.DocumentID, strconv.Itoa(c.Index), c.Text}, "|")
	return uuid.NewSHA1(recordNamespace, []byte(key)).String()
}

// Index embeds chunks and queries and delegates storage to a VectorStore.
type Index struct {
	embedder  domain.Embedder
	store     domain.VectorStore
	batchSize int
	logger    *zap.Logger
}

// NewIndex wires an embedder to a store. batchSize bounds the number of
// texts embedded per call.
func NewIndex(embedder domain.Embedder, store domain.VectorStore, batchSize int, l *zap.Logger) *Index {
	if batchSize <= 0 {
		batchSize = 32
	}
	return &Index{embedder: embedder, store: store, batchSize: batchSize, logger: logger.OrNop(l)}
}

// Embedder returns the embedder used for chunks and queries.
func (x *Index) Embedder() domain.Embedder { return x.embedder }

// Backend returns the underlying store.
func (x *Index) Backend() domain.VectorStore { return x.store }

// Add embeds chunks in batches and stores them in a single upsert, returning
// their record IDs in order. A failed batch leaves the store untouched.
func (x *Index) Add(ctx context.Context, chunks []domain.Chunk) ([]string, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	records := make([]domain.Record, 0, len(chunks))
	for start := 0; start < len(chunks); start += x.batchSize {
		batch := chunks[start:min(start+x.batchSize, len(chunks))]
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vectors, err := x.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, domain.NewStageError(domain.StageIndex, batch[0].Source(), fmt.Errorf("embedding chunks: %w", err))
		}
		if len(vectors) != len(batch) {
			return nil, domain.NewStageError(domain.StageIndex, batch[0].Source(),
				fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(batch)))
		}
		for i, c := range batch {
			records = append(records, domain.Record{ID: RecordID(c), Vector: vectors[i], Chunk: c})
		}
		x.logger.Debug("embedded batch",
			zap.String("stage", string(domain.StageIndex)),
			zap.String("embedder", x.embedder.Name()),
			zap.Int("chunks", len(batch)))
	}
	if err := x.store.Upsert(ctx, records); err != nil {
		return nil, domain.NewStageError(domain.StageIndex, chunks[0].Source(), err)
	}
	x.logger.Debug("indexed chunks",
		zap.String("stage", string(domain.StageIndex)),
		zap.String("backend", x.store.Name()),
		zap.Int("records", len(records)))
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids, nil
}

// Search returns at most k chunks most similar to query. An empty index
// yields no results rather than an error.
func (x *Index) Search(ctx context.Context, query string, k int, threshold float64) ([]domain.SearchResult, error) {
	n, err := x.store.Count(ctx)
	if err != nil {
		return nil, domain.NewStageError(domain.StageRetrieve, query, err)
	}
	if n == 0 {
		return nil, nil
	}
	vec, err := x.embedder.Embed(ctx, query)
	if err != nil {
		return nil, domain.NewStageError(domain.StageRetrieve, query, fmt.Errorf("embedding query: %w", err))
	}
	results, err := x.store.Search(ctx, vec, k, threshold)
	if err != nil {
		return nil, domain.NewStageError(domain.StageRetrieve, query, err)
	}
	x.logger.Debug("retrieved",
		zap.String("stage", string(domain.StageRetrieve)),
		zap.Int("k", k),
		zap.Int("results", len(results)))
	return results, nil
}

func (x *Index) Count(ctx context.Context) (int, error) { return x.store.Count(ctx) }

func (x *Index) Clear(ctx context.Context) error {
	if err := x.store.Clear(ctx); err != nil {
		return domain.NewStageError(domain.StageIndex, x.store.Name(), err)
	}
	return nil
}

// Stats reports the store's statistics, falling back to the embedder's
// dimension when the store is empty.
func (x *Index) Stats(ctx context.Context) (domain.IndexStats, error) {
	st, err := x.store.Stats(ctx)
	if err != nil {
		return domain.IndexStats{}, err
	}
	if st.Dimension == 0 {
		st.Dimension = x.embedder.Dimension()
	}
	return st, nil
}

func (x *Index) Close() error { return x.store.Close() }
