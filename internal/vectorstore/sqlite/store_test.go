package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragpipe/internal/domain"
)

func setupTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewStore(context.Background(), dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, dir
}

func record(id string, page int, v ...float64) domain.Record {
	return domain.Record{
		ID:     id,
		Vector: v,
		Chunk: domain.Chunk{
			ID:         "doc:" + id,
			DocumentID: "doc",
			Index:      page,
			Offset:     page * 10,
			Text:       "text " + id,
			Metadata: map[string]any{
				domain.MetaSource: "/data/doc.pdf",
				domain.MetaPage:   page,
			},
		},
	}
}

func TestStore_CreatesDatabaseFile(t *testing.T) {
	store, dir := setupTestStore(t)
	assert.Equal(t, filepath.Join(dir, FileName), store.Path())
	_, err := os.Stat(store.Path())
	assert.NoError(t, err)
}

func TestStore_UpsertSearchRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := setupTestStore(t)

	require.NoError(t, store.Upsert(ctx, []domain.Record{
		record("a", 1, 1, 0),
		record("b", 2, 0, 1),
		record("c", 3, 1, 1),
	}))

	results, err := store.Search(ctx, []float64{1, 0}, 2, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)

	top := results[0]
	assert.Equal(t, "a", top.ID)
	assert.InDelta(t, 1.0, top.Score, 1e-6)
	assert.Equal(t, "doc:a", top.Chunk.ID)
	assert.Equal(t, "doc", top.Chunk.DocumentID)
	assert.Equal(t, 1, top.Chunk.Index)
	assert.Equal(t, 10, top.Chunk.Offset)
	assert.Equal(t, "text a", top.Chunk.Text)
	assert.Equal(t, "/data/doc.pdf", top.Chunk.Source())
	assert.Equal(t, 1, top.Chunk.Metadata[domain.MetaPage])

	assert.Equal(t, "c", results[1].ID)
}

func TestStore_Threshold(t *testing.T) {
	ctx := context.Background()
	store, _ := setupTestStore(t)
	require.NoError(t, store.Upsert(ctx, []domain.Record{record("a", 1, 1, 0), record("b", 2, 0, 1)}))

	results, err := store.Search(ctx, []float64{1, 0}, 5, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestStore_UpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store, _ := setupTestStore(t)
	recs := []domain.Record{record("a", 1, 1, 0), record("b", 2, 0, 1)}

	require.NoError(t, store.Upsert(ctx, recs))
	require.NoError(t, store.Upsert(ctx, recs))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := NewStore(ctx, dir)
	require.NoError(t, err)
	require.NoError(t, store.Upsert(ctx, []domain.Record{record("a", 1, 0.6, 0.8)}))
	require.NoError(t, store.Close())

	reopened, err := NewStore(ctx, dir)
	require.NoError(t, err)
	defer reopened.Close()

	st, err := reopened.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.IndexStats{Backend: "sqlite", Count: 1, Dimension: 2, StoragePath: filepath.Join(dir, FileName)}, st)
}

func TestStore_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	store, _ := setupTestStore(t)
	require.NoError(t, store.Upsert(ctx, []domain.Record{record("a", 1, 1, 0)}))

	err := store.Upsert(ctx, []domain.Record{record("b", 1, 1, 0, 0)})
	assert.ErrorIs(t, err, domain.ErrIndexUnavailable)
}

func TestStore_Clear(t *testing.T) {
	ctx := context.Background()
	store, _ := setupTestStore(t)
	require.NoError(t, store.Upsert(ctx, []domain.Record{record("a", 1, 1, 0)}))

	require.NoError(t, store.Clear(ctx))
	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	results, err := store.Search(ctx, []float64{1, 0}, 5, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestNewStore_UnusablePath(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, err := NewStore(context.Background(), file)
	assert.ErrorIs(t, err, domain.ErrIndexUnavailable)
}

func TestVectorEncoding(t *testing.T) {
	v := []float64{0.25, -1.5, 3}
	assert.Equal(t, v, decodeVector(encodeVector(v)))
	assert.Len(t, encodeVector(v), 12)
}

func TestStore_SearchDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	store, _ := setupTestStore(t)
	require.NoError(t, store.Upsert(ctx, []domain.Record{record("a", 1, 1, 0)}))

	_, err := store.Search(ctx, []float64{1, 0, 0}, 1, 0)
	assert.ErrorIs(t, err, domain.ErrIndexUnavailable)

	require.NoError(t, store.Clear(ctx))
	results, err := store.Search(ctx, []float64{1, 0, 0}, 1, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}
