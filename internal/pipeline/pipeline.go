// Package pipeline composes loading, chunking, indexing, retrieval and
// generation into the load → process → query workflow.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"ragpipe/internal/chunker"
	"ragpipe/internal/domain"
	"ragpipe/internal/generator"
	"ragpipe/internal/logger"
	"ragpipe/internal/vectorstore"
)

// Options wires a Pipeline. Loader, Chunker, Index and Generator are required.
type Options struct {
	Loader        domain.Loader
	Chunker       domain.Chunker
	Index         *vectorstore.Index
	Generator     domain.Generator
	DocumentsPath string
	K             int
	Threshold     float64
	Model         string
	Temperature   float64
	Logger        *zap.Logger
}

// ProcessReport describes one Process call.
type ProcessReport struct {
	Documents int
	Chunks    int
	State     domain.PipelineState
}

// Pipeline owns the pipeline state. Its methods are serialised, so a single
// instance may be driven from a UI goroutine and command goroutines.
type Pipeline struct {
	opts   Options
	logger *zap.Logger

	mu        sync.Mutex
	state     domain.PipelineState
	documents []domain.Document
	seen      map[string]struct{}
	processed int
	chunking  domain.ChunkingStats
}

// New validates opts and returns an uninitialized pipeline.
func New(opts Options) (*Pipeline, error) {
	switch {
	case opts.Loader == nil:
		return nil, errors.New("pipeline: loader is required")
	case opts.Chunker == nil:
		return nil, errors.New("pipeline: chunker is required")
	case opts.Index == nil:
		return nil, errors.New("pipeline: index is required")
	case opts.Generator == nil:
		return nil, errors.New("pipeline: generator is required")
	}
	if opts.K <= 0 {
		opts.K = 5
	}
	return &Pipeline{
		opts:   opts,
		logger: logger.OrNop(opts.Logger),
		seen:   make(map[string]struct{}),
	}, nil
}

// Resume adopts records left in a persistent index by an earlier run, so
// questions can be answered without reprocessing.
func (p *Pipeline) Resume(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, err := p.opts.Index.Count(ctx)
	if err != nil {
		return domain.NewStageError(domain.StageIndex, "", err)
	}
	if n > 0 {
		p.state.ChunksIndexed = n
		p.state.Phase = domain.PhaseReady
		p.logger.Info("resumed existing index", zap.String("stage", string(domain.StageIndex)), zap.Int("chunks", n))
	}
	return nil
}

// Load reads a file or directory, defaulting to the configured documents
// path, and returns how many new documents were added. Documents already
// loaded are skipped. An empty directory is not an error: it returns 0 and
// leaves the phase unchanged. A non-nil error alongside a positive count
// lists the files that could not be read.
func (p *Pipeline) Load(ctx context.Context, path string) (int, error) {
	if strings.TrimSpace(path) == "" {
		path = p.opts.DocumentsPath
	}
	docs, err := p.opts.Loader.Load(ctx, path)
	if errors.Is(err, domain.ErrEmptyDirectory) {
		p.logger.Warn("no documents loaded", zap.String("stage", string(domain.StageLoad)), zap.String("path", path))
		return 0, nil
	}
	if err != nil && len(docs) == 0 {
		return 0, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	added := 0
	for _, d := range docs {
		if _, dup := p.seen[d.ID]; dup {
			continue
		}
		p.seen[d.ID] = struct{}{}
		p.documents = append(p.documents, d)
		added++
	}
	p.state.DocumentsLoaded = len(p.documents)
	if added > 0 && p.state.Phase == domain.PhaseUninitialized {
		p.state.Phase = domain.PhaseLoaded
	}
	p.logger.Info("loaded documents",
		zap.String("stage", string(domain.StageLoad)),
		zap.String("path", path),
		zap.Int("added", added),
		zap.Int("total", len(p.documents)))
	return added, err
}

// Process chunks and indexes the documents loaded since the last call. With
// nothing pending it is a no-op. An index failure leaves the state unchanged.
func (p *Pipeline) Process(ctx context.Context) (ProcessReport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pending := p.documents[p.processed:]
	if len(pending) == 0 {
		return ProcessReport{State: p.state}, nil
	}
	chunks, err := chunker.ChunkAll(p.opts.Chunker, pending)
	if err != nil {
		return ProcessReport{State: p.state}, err
	}
	p.logger.Info("chunked documents",
		zap.String("stage", string(domain.StageChunk)),
		zap.String("chunker", p.opts.Chunker.Name()),
		zap.Int("documents", len(pending)),
		zap.Int("chunks", len(chunks)))

	if _, err := p.opts.Index.Add(ctx, chunks); err != nil {
		return ProcessReport{State: p.state}, err
	}
	count, err := p.opts.Index.Count(ctx)
	if err != nil {
		return ProcessReport{State: p.state}, domain.NewStageError(domain.StageIndex, "", err)
	}

	p.processed = len(p.documents)
	p.chunking = chunker.Merge(p.chunking, chunker.Stats(chunks))
	p.state.ChunksIndexed = count
	if count > 0 {
		p.state.Phase = domain.PhaseReady
	}
	p.logger.Info("indexed chunks",
		zap.String("stage", string(domain.StageIndex)),
		zap.Int("chunks", len(chunks)),
		zap.Int("indexed", count))
	return ProcessReport{Documents: len(pending), Chunks: len(chunks), State: p.state}, nil
}

// Query retrieves up to k passages (the configured k when k <= 0) and asks
// the generator for an answer. It fails with ErrPipelineNotReady until at
// least one chunk is indexed.
func (p *Pipeline) Query(ctx context.Context, question string, k int) (domain.QueryResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.query(ctx, question, k)
}

func (p *Pipeline) query(ctx context.Context, question string, k int) (domain.QueryResult, error) {
	result := domain.QueryResult{Question: question}
	if strings.TrimSpace(question) == "" {
		return result, domain.NewStageError(domain.StageRetrieve, "", domain.ErrEmptyQuestion)
	}
	if !p.state.IsProcessed() {
		return result, domain.NewStageError(domain.StageRetrieve, question,
			fmt.Errorf("%w: load and process documents first", domain.ErrPipelineNotReady))
	}
	if k <= 0 {
		k = p.opts.K
	}
	hits, err := p.opts.Index.Search(ctx, question, k, p.opts.Threshold)
	if err != nil {
		return result, err
	}
	for _, h := range hits {
		result.Sources = append(result.Sources, h.Chunk)
		result.Scores = append(result.Scores, h.Score)
	}
	if len(hits) == 0 {
		p.logger.Info("no passages above threshold",
			zap.String("stage", string(domain.StageRetrieve)),
			zap.Float64("threshold", p.opts.Threshold))
		result.Answer = generator.NoContextAnswer
		return result, nil
	}

	answer, err := p.opts.Generator.Generate(ctx, question, result.Sources, domain.GenerateOptions{
		Model:       p.opts.Model,
		Temperature: p.opts.Temperature,
	})
	if err != nil {
		p.logger.Warn("generation failed",
			zap.String("stage", string(domain.StageGenerate)),
			zap.String("generator", p.opts.Generator.Name()),
			zap.Error(err))
		return result, domain.NewStageError(domain.StageGenerate, question, err)
	}
	result.Answer = answer
	return result, nil
}

// BatchQuery answers questions one after another. A failed question records
// its error in the result and does not stop the batch.
func (p *Pipeline) BatchQuery(ctx context.Context, questions []string, k int) []domain.QueryResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	results := make([]domain.QueryResult, len(questions))
	for i, q := range questions {
		res, err := p.query(ctx, q, k)
		res.Err = err
		results[i] = res
	}
	return results
}

// Reset clears the index and returns the pipeline to Uninitialized. If the
// index cannot be cleared the state is left as it was.
func (p *Pipeline) Reset(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.opts.Index.Clear(ctx); err != nil {
		return err
	}
	p.state = domain.PipelineState{}
	p.documents = nil
	p.seen = make(map[string]struct{})
	p.processed = 0
	p.chunking = domain.ChunkingStats{}
	p.logger.Info("pipeline reset", zap.String("stage", string(domain.StageIndex)))
	return nil
}

// State returns a copy of the current state.
func (p *Pipeline) State() domain.PipelineState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Stats collects the state together with index and chunking statistics.
func (p *Pipeline) Stats(ctx context.Context) (domain.PipelineStats, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx, err := p.opts.Index.Stats(ctx)
	if err != nil {
		return domain.PipelineStats{}, domain.NewStageError(domain.StageIndex, "", err)
	}
	return domain.PipelineStats{
		State:     p.state,
		Index:     idx,
		Chunking:  p.chunking,
		Chunker:   p.opts.Chunker.Name(),
		Embedder:  p.opts.Index.Embedder().Name(),
		Generator: p.opts.Generator.Name(),
		Model:     p.opts.Model,
		K:         p.opts.K,
		Threshold: p.opts.Threshold,
	}, nil
}

// Close releases the index.
func (p *Pipeline) Close() error { return p.opts.Index.Close() }
