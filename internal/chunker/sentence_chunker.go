package chunker

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"ragpipe/internal/domain"
)

// SentenceChunker splits text into sentence-based chunks with overlap.
type SentenceChunker struct {
	sentencesPerChunk int
	overlapSentences  int
	splitter          *regexp.Regexp
}

var _ domain.Chunker = (*SentenceChunker)(nil)

// NewSentence returns ErrInvalidChunkConfig unless
// 0 <= overlapSentences < sentencesPerChunk.
func NewSentence(sentencesPerChunk, overlapSentences int) (*SentenceChunker, error) {
	if sentencesPerChunk <= 0 || overlapSentences < 0 || overlapSentences >= sentencesPerChunk {
		return nil, fmt.Errorf("%w: %d sentences per chunk with %d overlapping",
			domain.ErrInvalidChunkConfig, sentencesPerChunk, overlapSentences)
	}
	return &SentenceChunker{
		sentencesPerChunk: sentencesPerChunk,
		overlapSentences:  overlapSentences,
		splitter:          regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?]+)`),
	}, nil
}

func (c *SentenceChunker) Name() string { return "sentence" }

func (c *SentenceChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	type sentence struct {
		text   string
		offset int
	}
	var sentences []sentence
	last := 0
	add := func(from, to int) {
		raw := document.Text[from:to]
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			return
		}
		lead := len(raw) - len(strings.TrimLeft(raw, " \t\r\n"))
		sentences = append(sentences, sentence{
			text:   trimmed,
			offset: utf8.RuneCountInString(document.Text[:from+lead]),
		})
	}
	for _, loc := range c.splitter.FindAllStringIndex(document.Text, -1) {
		add(loc[0], loc[1])
		last = loc[1]
	}
	add(last, len(document.Text))
	if len(sentences) == 0 {
		return nil, nil
	}

	var chunks []domain.Chunk
	i := 0
	idx := 0
	for i < len(sentences) {
		end := i + c.sentencesPerChunk
		if end > len(sentences) {
			end = len(sentences)
		}
		parts := make([]string, 0, end-i)
		for _, s := range sentences[i:end] {
			parts = append(parts, s.text)
		}
		chunks = append(chunks, newChunk(document, idx, sentences[i].offset, strings.Join(parts, " ")))
		if end == len(sentences) {
			break
		}
		i = end - c.overlapSentences
		idx++
	}
	return chunks, nil
}
