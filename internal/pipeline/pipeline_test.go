package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragpipe/internal/chunker"
	"ragpipe/internal/domain"
	"ragpipe/internal/embedding/hashing"
	"ragpipe/internal/generator"
	"ragpipe/internal/generator/extractive"
	"ragpipe/internal/loader"
	"ragpipe/internal/vectorstore"
	"ragpipe/internal/vectorstore/memory"
	"ragpipe/internal/vectorstore/sqlite"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func newPipeline(t *testing.T, store domain.VectorStore, gen domain.Generator, docsDir string) *Pipeline {
	t.Helper()
	ch, err := chunker.NewRecursive(1000, 200)
	require.NoError(t, err)
	if store == nil {
		store = memory.NewStorage()
	}
	if gen == nil {
		gen = extractive.New(3)
	}
	p, err := New(Options{
		Loader:        loader.New(nil),
		Chunker:       ch,
		Index:         vectorstore.NewIndex(hashing.New(hashing.DefaultDimension), store, 16, nil),
		Generator:     gen,
		DocumentsPath: docsDir,
		K:             5,
	})
	require.NoError(t, err)
	return p
}

// scriptedGenerator fails for questions containing "fail".
type scriptedGenerator struct{ calls int }

func (g *scriptedGenerator) Name() string { return "scripted" }
func (g *scriptedGenerator) Generate(_ context.Context, q string, _ []domain.Chunk, _ domain.GenerateOptions) (string, error) {
	g.calls++
	if strings.Contains(q, "fail") {
		return "", fmt.Errorf("%w: invalid api key", domain.ErrAuthentication)
	}
	return "answer to " + q, nil
}

func TestQuery_BeforeProcessIsNotReady(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "sky.txt", "The sky is blue. Grass is green.")
	p := newPipeline(t, nil, nil, dir)

	_, err := p.Query(ctx, "What color is the sky?", 0)
	assert.ErrorIs(t, err, domain.ErrPipelineNotReady)

	n, err := p.Load(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, domain.PhaseLoaded, p.State().Phase)

	_, err = p.Query(ctx, "What color is the sky?", 0)
	assert.ErrorIs(t, err, domain.ErrPipelineNotReady)
	stage, ok := domain.StageOf(err)
	require.True(t, ok)
	assert.Equal(t, domain.StageRetrieve, stage)
}

func TestEndToEnd_SingleTextFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := writeFile(t, dir, "sky.txt", "The sky is blue. Grass is green.")
	p := newPipeline(t, nil, nil, dir)

	_, err := p.Load(ctx, path)
	require.NoError(t, err)
	report, err := p.Process(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Documents)
	assert.Equal(t, 1, report.Chunks)
	assert.Equal(t, domain.PhaseReady, report.State.Phase)
	assert.Equal(t, 1, report.State.ChunksIndexed)

	res, err := p.Query(ctx, "What color is the sky?", 0)
	require.NoError(t, err)
	require.Len(t, res.Sources, 1)
	assert.Equal(t, "The sky is blue. Grass is green.", res.Sources[0].Text)
	assert.Equal(t, path, res.Sources[0].Source())
	require.Len(t, res.Scores, 1)
	assert.Greater(t, res.Scores[0], 0.0)
	assert.NotEmpty(t, res.Answer)
	assert.Contains(t, res.Answer, "sky is blue")
}

func TestProcess_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "Alpha text about rivers.")
	writeFile(t, dir, "b.txt", "Beta text about mountains.")
	p := newPipeline(t, nil, nil, dir)

	_, err := p.Load(ctx, dir)
	require.NoError(t, err)
	first, err := p.Process(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Chunks)

	again, err := p.Process(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Chunks)
	assert.Equal(t, first.State, again.State)

	// loading the same directory adds nothing
	n, err := p.Load(ctx, dir)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 2, p.State().DocumentsLoaded)
}

func TestLoad_EmptyDirectoryKeepsPhase(t *testing.T) {
	p := newPipeline(t, nil, nil, t.TempDir())
	n, err := p.Load(context.Background(), "")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, domain.PhaseUninitialized, p.State().Phase)
}

func TestLoad_MissingPath(t *testing.T) {
	p := newPipeline(t, nil, nil, t.TempDir())
	_, err := p.Load(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBatchQuery_ContinuesAfterFailure(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "sky.txt", "The sky is blue. Grass is green.")
	gen := &scriptedGenerator{}
	p := newPipeline(t, nil, gen, dir)

	_, err := p.Load(ctx, "")
	require.NoError(t, err)
	_, err = p.Process(ctx)
	require.NoError(t, err)

	questions := []string{"What color is the sky?", "Please fail on the sky", "What color is grass?"}
	results := p.BatchQuery(ctx, questions, 0)
	require.Len(t, results, 3)

	assert.NoError(t, results[0].Err)
	assert.Equal(t, "answer to What color is the sky?", results[0].Answer)

	require.Error(t, results[1].Err)
	assert.ErrorIs(t, results[1].Err, domain.ErrAuthentication)
	assert.Contains(t, results[1].Err.Error(), "generate: Please fail on the sky")
	assert.Empty(t, results[1].Answer)

	assert.NoError(t, results[2].Err)
	assert.NotEmpty(t, results[2].Answer)
	assert.Equal(t, 3, gen.calls)
}

func TestReset_ZeroesStats(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "sky.txt", "The sky is blue.")
	p := newPipeline(t, nil, nil, dir)

	_, err := p.Load(ctx, "")
	require.NoError(t, err)
	_, err = p.Process(ctx)
	require.NoError(t, err)

	require.NoError(t, p.Reset(ctx))
	st, err := p.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.State.DocumentsLoaded)
	assert.Zero(t, st.State.ChunksIndexed)
	assert.Zero(t, st.Index.Count)
	assert.Equal(t, domain.PhaseUninitialized, st.State.Phase)

	_, err = p.Query(ctx, "sky?", 0)
	assert.ErrorIs(t, err, domain.ErrPipelineNotReady)
}

func TestQuery_ThresholdWithoutMatchesSkipsGeneration(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "sky.txt", "The sky is blue.")
	gen := &scriptedGenerator{}
	p := newPipeline(t, nil, gen, dir)
	p.opts.Threshold = 0.99

	_, err := p.Load(ctx, "")
	require.NoError(t, err)
	_, err = p.Process(ctx)
	require.NoError(t, err)

	res, err := p.Query(ctx, "Who wrote Hamlet?", 0)
	require.NoError(t, err)
	assert.Empty(t, res.Sources)
	assert.Equal(t, generator.NoContextAnswer, res.Answer)
	assert.Zero(t, gen.calls)
}

func TestQuery_EmptyQuestion(t *testing.T) {
	p := newPipeline(t, nil, nil, t.TempDir())
	_, err := p.Query(context.Background(), "   ", 0)
	assert.ErrorIs(t, err, domain.ErrEmptyQuestion)
}

func TestResume_FromPersistentStore(t *testing.T) {
	ctx := context.Background()
	docs := t.TempDir()
	storeDir := t.TempDir()
	writeFile(t, docs, "sky.txt", "The sky is blue. Grass is green.")

	store, err := sqlite.NewStore(ctx, storeDir)
	require.NoError(t, err)
	p := newPipeline(t, store, nil, docs)
	_, err = p.Load(ctx, "")
	require.NoError(t, err)
	_, err = p.Process(ctx)
	require.NoError(t, err)
	require.NoError(t, p.Close())

	reopened, err := sqlite.NewStore(ctx, storeDir)
	require.NoError(t, err)
	p2 := newPipeline(t, reopened, nil, docs)
	defer p2.Close()

	require.NoError(t, p2.Resume(ctx))
	assert.Equal(t, domain.PhaseReady, p2.State().Phase)
	assert.Equal(t, 1, p2.State().ChunksIndexed)

	res, err := p2.Query(ctx, "What color is the sky?", 0)
	require.NoError(t, err)
	require.Len(t, res.Sources, 1)

	// reprocessing the same file does not double count
	_, err = p2.Load(ctx, "")
	require.NoError(t, err)
	report, err := p2.Process(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.State.ChunksIndexed)
}

type brokenStore struct{ *memory.Storage }

func (brokenStore) Upsert(context.Context, []domain.Record) error {
	return fmt.Errorf("%w: disk full", domain.ErrIndexUnavailable)
}

func TestProcess_IndexFailureLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "sky.txt", "The sky is blue.")
	p := newPipeline(t, brokenStore{memory.NewStorage()}, nil, dir)

	_, err := p.Load(ctx, "")
	require.NoError(t, err)
	before := p.State()

	_, err = p.Process(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrIndexUnavailable))
	stage, _ := domain.StageOf(err)
	assert.Equal(t, domain.StageIndex, stage)
	assert.Equal(t, before, p.State())
}

func TestWriteStatsAndResult(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteStats(&buf, domain.PipelineStats{
		State: domain.PipelineState{Phase: domain.PhaseReady, DocumentsLoaded: 2, ChunksIndexed: 7},
		Index: domain.IndexStats{Backend: "sqlite", Count: 7, StoragePath: "/tmp/index.db"},
	}))
	out := buf.String()
	assert.Contains(t, out, "Chunks indexed:")
	assert.Contains(t, out, "7")
	assert.Contains(t, out, "/tmp/index.db")
	assert.Contains(t, out, "disabled")

	buf.Reset()
	require.NoError(t, WriteResult(&buf, domain.QueryResult{
		Question: "q?",
		Answer:   "a.",
		Sources:  []domain.Chunk{{Metadata: map[string]any{domain.MetaFileName: "sky.txt"}}},
		Scores:   []float64{0.5},
	}))
	assert.Equal(t, "Q: q?\nA: a.\nSources:\n  [1] sky.txt (score 0.500)\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteResult(&buf, domain.QueryResult{Question: "q?", Err: errors.New("boom")}))
	assert.Equal(t, "Q: q?\nError: boom\n", buf.String())
}

func TestQuery_EmbedderDimensionChangeFails(t *testing.T) {
	ctx := context.Background()
	docs := t.TempDir()
	storeDir := t.TempDir()
	writeFile(t, docs, "sky.txt", "The sky is blue.")

	store, err := sqlite.NewStore(ctx, storeDir)
	require.NoError(t, err)
	p := newPipeline(t, store, nil, docs)
	_, err = p.Load(ctx, "")
	require.NoError(t, err)
	_, err = p.Process(ctx)
	require.NoError(t, err)
	require.NoError(t, p.Close())

	reopened, err := sqlite.NewStore(ctx, storeDir)
	require.NoError(t, err)
	ch, err := chunker.NewRecursive(1000, 200)
	require.NoError(t, err)
	p2, err := New(Options{
		Loader:    loader.New(nil),
		Chunker:   ch,
		Index:     vectorstore.NewIndex(hashing.New(512), reopened, 16, nil),
		Generator: extractive.New(3),
	})
	require.NoError(t, err)
	defer p2.Close()
	require.NoError(t, p2.Resume(ctx))

	_, err = p2.Query(ctx, "What color is the sky?", 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrIndexUnavailable)
	stage, _ := domain.StageOf(err)
	assert.Equal(t, domain.StageRetrieve, stage)
}

func TestLoad_SameFileUnderAnotherSpellingIsSkipped(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "sky.txt", "The sky is blue.")
	p := newPipeline(t, nil, nil, dir)

	n, err := p.Load(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = p.Load(ctx, dir+string(filepath.Separator)+"."+string(filepath.Separator)+"sky.txt")
	require.NoError(t, err)
	assert.Zero(t, n)

	report, err := p.Process(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.State.ChunksIndexed)
}
