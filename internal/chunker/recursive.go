// Package chunker splits documents into overlapping chunks.
package chunker

import (
	"fmt"
	"strconv"

	"ragpipe/internal/domain"
)

// DefaultSeparators are tried in order: paragraph, line, sentence, clause,
// word. When none fits, the chunk is cut at a character.
var DefaultSeparators = []string{"\n\n", "\n", ". ", "? ", "! ", "; ", ", ", " "}

// RecursiveChunker cuts windows of at most size runes. Each window ends on
// the highest-priority separator found in its second half, and the next
// window starts exactly overlap runes before the previous end.
type RecursiveChunker struct {
	size       int
	overlap    int
	separators [][]rune
}

var _ domain.Chunker = (*RecursiveChunker)(nil)

// NewRecursive returns ErrInvalidChunkConfig unless 0 <= overlap < size.
func NewRecursive(size, overlap int) (*RecursiveChunker, error) {
	if err := ValidateWindow(size, overlap); err != nil {
		return nil, err
	}
	seps := make([][]rune, len(DefaultSeparators))
	for i, s := range DefaultSeparators {
		seps[i] = []rune(s)
	}
	return &RecursiveChunker{size: size, overlap: overlap, separators: seps}, nil
}

// ValidateWindow checks that a chunk window always moves forward.
func ValidateWindow(size, overlap int) error {
	if size <= 0 {
		return fmt.Errorf("%w: chunk size %d must be positive", domain.ErrInvalidChunkConfig, size)
	}
	if overlap < 0 || overlap >= size {
		return fmt.Errorf("%w: overlap %d must satisfy 0 <= overlap < %d", domain.ErrInvalidChunkConfig, overlap, size)
	}
	return nil
}

func (c *RecursiveChunker) Name() string { return "recursive" }

// Size returns the maximum chunk length in runes.
func (c *RecursiveChunker) Size() int { return c.size }

// Overlap returns the number of runes shared by consecutive chunks.
func (c *RecursiveChunker) Overlap() int { return c.overlap }

// Chunk splits the document text. Identical input always yields identical chunks.
func (c *RecursiveChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	runes := []rune(document.Text)
	spans := c.Spans(runes)
	chunks := make([]domain.Chunk, 0, len(spans))
	for i, sp := range spans {
		chunks = append(chunks, newChunk(document, i, sp[0], string(runes[sp[0]:sp[1]])))
	}
	return chunks, nil
}

// Spans returns the [start, end) rune ranges of each chunk.
func (c *RecursiveChunker) Spans(runes []rune) [][2]int {
	n := len(runes)
	if n == 0 {
		return nil
	}
	var spans [][2]int
	start := 0
	for {
		if n-start <= c.size {
			spans = append(spans, [2]int{start, n})
			return spans
		}
		end := c.cut(runes, start)
		spans = append(spans, [2]int{start, end})
		start = end - c.overlap
	}
}

// cut picks the end of the window starting at start. Candidate ends lie in
// (lo, start+size], where lo leaves at least half of the stride behind so
// chunks do not shrink to slivers; lo >= start+overlap guarantees progress.
func (c *RecursiveChunker) cut(runes []rune, start int) int {
	hi := start + c.size
	lo := start + c.overlap + (c.size-c.overlap)/2
	for _, sep := range c.separators {
		if end := lastBoundary(runes, sep, lo, hi); end > 0 {
			return end
		}
	}
	return hi
}

// lastBoundary returns the largest position p in (lo, hi] that directly
// follows an occurrence of sep, or 0.
func lastBoundary(runes, sep []rune, lo, hi int) int {
	for p := hi; p > lo; p-- {
		if p < len(sep) {
			break
		}
		if hasSuffixAt(runes, sep, p) {
			return p
		}
	}
	return 0
}

func hasSuffixAt(runes, sep []rune, p int) bool {
	off := p - len(sep)
	for i, r := range sep {
		if runes[off+i] != r {
			return false
		}
	}
	return true
}

func newChunk(doc domain.Document, index, offset int, text string) domain.Chunk {
	meta := make(map[string]any, len(doc.Metadata)+3)
	for k, v := range doc.Metadata {
		meta[k] = v
	}
	meta[domain.MetaChunkIndex] = index
	meta[domain.MetaStartOffset] = offset
	meta[domain.MetaChunkSize] = len([]rune(text))
	return domain.Chunk{
		ID:         doc.ID + ":" + strconv.Itoa(index),
		DocumentID: doc.ID,
		Index:      index,
		Offset:     offset,
		Text:       text,
		Metadata:   meta,
	}
}
