package domain

import "context"

// Metadata keys attached to documents and chunks.
const (
	MetaSource      = "source"
	MetaFileName    = "file_name"
	MetaFileType    = "file_type"
	MetaPage        = "page"
	MetaTotalPages  = "total_pages"
	MetaChunkIndex  = "chunk_index"
	MetaStartOffset = "start_offset"
	MetaChunkSize   = "chunk_size"
)

// Document is the raw text of one loaded file, or one page of a PDF.
type Document struct {
	ID       string
	Text     string
	Metadata map[string]any
}

// Source returns the path the document was loaded from.
func (d Document) Source() string { return metaString(d.Metadata, MetaSource) }

// Chunk is a bounded, overlapping slice of a document used for indexing.
type Chunk struct {
	ID         string
	DocumentID string
	Index      int
	// Offset is the rune offset of the chunk inside the document text.
	Offset   int
	Text     string
	Metadata map[string]any
}

// Source returns the path of the document the chunk was cut from.
func (c Chunk) Source() string { return metaString(c.Metadata, MetaSource) }

// Record is a chunk together with its embedding, as owned by a vector store.
type Record struct {
	ID     string
	Vector []float64
	Chunk  Chunk
}

// SearchResult represents a matching chunk with a relevance score. ID is the
// record ID the chunk is stored under.
type SearchResult struct {
	ID    string
	Chunk Chunk
	Score float64
}

// QueryResult is the outcome of one question. Err is set instead of Answer
// when the question failed inside a batch.
type QueryResult struct {
	Question string
	Answer   string
	Sources  []Chunk
	Scores   []float64
	Err      error
}

// GenerateOptions carries the per-call model settings of a generator.
type GenerateOptions struct {
	Model       string
	Temperature float64
}

// Loader reads documents from a file or a directory.
type Loader interface {
	Load(ctx context.Context, path string) ([]Document, error)
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Name() string
	Chunk(document Document) ([]Chunk, error)
}

// Embedder converts free text into a numeric vector representation.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}

// VectorStore persists records and supports similarity search.
// Search returns at most topK results ordered by descending score and drops
// results scoring below threshold when threshold > 0.
type VectorStore interface {
	Name() string
	Upsert(ctx context.Context, records []Record) error
	Search(ctx context.Context, vector []float64, topK int, threshold float64) ([]SearchResult, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
	Stats(ctx context.Context) (IndexStats, error)
	Close() error
}

// Generator produces an answer to a question from retrieved context.
type Generator interface {
	Name() string
	Generate(ctx context.Context, question string, context []Chunk, opts GenerateOptions) (string, error)
}

func metaString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}
