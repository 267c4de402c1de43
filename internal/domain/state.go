package domain

// Phase is the lifecycle position of a pipeline.
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseLoaded
	PhaseReady
)

func (p Phase) String() string {
	switch p {
	case PhaseLoaded:
		return "loaded"
	case PhaseReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

// PipelineState is owned by a single pipeline and mutated only by its
// load, process and reset operations.
type PipelineState struct {
	Phase           Phase
	DocumentsLoaded int
	ChunksIndexed   int
}

// IsProcessed reports whether queries can be served.
func (s PipelineState) IsProcessed() bool { return s.Phase == PhaseReady && s.ChunksIndexed > 0 }

// IndexStats is read-only introspection of a vector store.
type IndexStats struct {
	Backend     string
	Count       int
	Dimension   int
	StoragePath string
}

// ChunkingStats summarises the chunks produced so far.
type ChunkingStats struct {
	Chunks           int
	TotalCharacters  int
	AverageChunkSize float64
}

// PipelineStats is the snapshot shown by the statistics views.
type PipelineStats struct {
	State     PipelineState
	Index     IndexStats
	Chunking  ChunkingStats
	Chunker   string
	Embedder  string
	Generator string
	Model     string
	K         int
	Threshold float64
}
