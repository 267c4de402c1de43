// Package extractive answers questions offline by quoting the context
// sentences that best match the question.
package extractive

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"ragpipe/internal/domain"
	"ragpipe/internal/textutil"
)

// NoAnswer is returned when no context sentence shares a word with the
// question.
const NoAnswer = "The provided context does not contain an answer to this question."

// Generator ranks context sentences by the question words they contain,
// weighted by how frequent each word is across the context.
type Generator struct {
	maxSentences int
}

var _ domain.Generator = (*Generator)(nil)

// New creates a generator quoting at most maxSentences sentences.
func New(maxSentences int) *Generator {
	if maxSentences <= 0 {
		maxSentences = 3
	}
	return &Generator{maxSentences: maxSentences}
}

func (g *Generator) Name() string { return "extractive" }

type sentence struct {
	text    string
	passage int
	tokens  []string
}

// Generate ignores opts; the answer is a deterministic function of the
// question and passages.
func (g *Generator) Generate(ctx context.Context, question string, passages []domain.Chunk, _ domain.GenerateOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var sentences []sentence
	freq := map[string]float64{}
	for i, p := range passages {
		for _, s := range textutil.Sentences(p.Text) {
			toks := textutil.ContentTokens(s)
			for _, tok := range toks {
				freq[tok]++
			}
			sentences = append(sentences, sentence{text: s, passage: i + 1, tokens: toks})
		}
	}
	maxF := 0.0
	for _, v := range freq {
		maxF = math.Max(maxF, v)
	}
	if maxF > 0 {
		for k, v := range freq {
			freq[k] = v / maxF
		}
	}

	query := textutil.TokenSet(question)
	type scored struct {
		idx   int
		score float64
	}
	var ranked []scored
	for i, s := range sentences {
		score := 0.0
		seen := map[string]struct{}{}
		for _, tok := range s.tokens {
			if _, dup := seen[tok]; dup {
				continue
			}
			seen[tok] = struct{}{}
			if _, ok := query[tok]; ok {
				score += 1 + freq[tok]
			}
		}
		if score == 0 {
			continue
		}
		// Normalize by sentence length to avoid bias towards long sentences.
		score /= math.Sqrt(float64(len(s.tokens)))
		ranked = append(ranked, scored{i, score})
	}
	if len(ranked) == 0 {
		return NoAnswer, nil
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if len(ranked) > g.maxSentences {
		ranked = ranked[:g.maxSentences]
	}
	// Keep original order among selected.
	selected := make([]int, len(ranked))
	for i, r := range ranked {
		selected[i] = r.idx
	}
	sort.Ints(selected)

	out := make([]string, 0, len(selected))
	for _, idx := range selected {
		s := sentences[idx]
		out = append(out, fmt.Sprintf("%s [%d]", s.text, s.passage))
	}
	return strings.Join(out, " "), nil
}
