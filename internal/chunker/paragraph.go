package chunker

import (
	"fmt"

	"ragpipe/internal/domain"
)

// ParagraphChunker packs whole paragraphs into chunks of at most maxChars
// runes. Paragraphs longer than maxChars are cut by a RecursiveChunker
// without overlap.
type ParagraphChunker struct {
	maxChars int
	fallback *RecursiveChunker
}

var _ domain.Chunker = (*ParagraphChunker)(nil)

// NewParagraph returns ErrInvalidChunkConfig when maxChars is not positive.
func NewParagraph(maxChars int) (*ParagraphChunker, error) {
	if maxChars <= 0 {
		return nil, fmt.Errorf("%w: paragraph chunk size %d must be positive", domain.ErrInvalidChunkConfig, maxChars)
	}
	fb, err := NewRecursive(maxChars, 0)
	if err != nil {
		return nil, err
	}
	return &ParagraphChunker{maxChars: maxChars, fallback: fb}, nil
}

func (c *ParagraphChunker) Name() string { return "paragraph" }

func (c *ParagraphChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	runes := []rune(document.Text)
	var (
		spans      [][2]int
		groupStart = -1
		groupEnd   int
	)
	flush := func() {
		if groupStart >= 0 {
			spans = append(spans, [2]int{groupStart, groupEnd})
			groupStart = -1
		}
	}
	for _, p := range paragraphSpans(runes) {
		switch {
		case p[1]-p[0] > c.maxChars:
			flush()
			for _, sub := range c.fallback.Spans(runes[p[0]:p[1]]) {
				spans = append(spans, [2]int{p[0] + sub[0], p[0] + sub[1]})
			}
		case groupStart >= 0 && p[1]-groupStart <= c.maxChars:
			groupEnd = p[1]
		default:
			flush()
			groupStart, groupEnd = p[0], p[1]
		}
	}
	flush()

	chunks := make([]domain.Chunk, 0, len(spans))
	for i, sp := range spans {
		chunks = append(chunks, newChunk(document, i, sp[0], string(runes[sp[0]:sp[1]])))
	}
	return chunks, nil
}

// paragraphSpans returns the rune ranges of the non-blank paragraphs,
// separated by one or more blank lines.
func paragraphSpans(runes []rune) [][2]int {
	var spans [][2]int
	start := -1
	for i := 0; i < len(runes); i++ {
		if runes[i] == '\n' && i+1 < len(runes) && runes[i+1] == '\n' {
			if start >= 0 {
				spans = append(spans, [2]int{start, trimRight(runes, start, i)})
				start = -1
			}
			for i+1 < len(runes) && runes[i+1] == '\n' {
				i++
			}
			continue
		}
		if start < 0 && !isSpace(runes[i]) {
			start = i
		}
	}
	if start >= 0 {
		spans = append(spans, [2]int{start, trimRight(runes, start, len(runes))})
	}
	return spans
}

func trimRight(runes []rune, start, end int) int {
	for end > start && isSpace(runes[end-1]) {
		end--
	}
	return end
}

func isSpace(r rune) bool { return r == ' ' || r == '\t' || r == '\n' || r == '\r' }
