// Package hashing implements an offline embedder based on feature hashing.
package hashing

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"

	"ragpipe/internal/domain"
	"ragpipe/internal/textutil"
)

// DefaultDimension is used when the configured dimension is not positive.
const DefaultDimension = 384

// Embedder maps content tokens into a fixed number of buckets with FNV-1a.
// Unlike a TF-IDF vectorizer it needs no vocabulary, so vectors produced
// today remain comparable with vectors stored by an earlier run.
type Embedder struct {
	dimension int
}

var _ domain.Embedder = (*Embedder)(nil)

// New creates an embedder with the given dimension.
func New(dimension int) *Embedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Embedder{dimension: dimension}
}

func (e *Embedder) Name() string { return "hashing" }

func (e *Embedder) Dimension() int { return e.dimension }

// Embed returns an L2-normalised vector. Text without content tokens yields
// the zero vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float64, e.dimension)
	tf := make(map[int]int)
	for _, tok := range textutil.ContentTokens(text) {
		tf[e.bucket(tok)]++
	}
	if len(tf) == 0 {
		return vec, nil
	}
	// Sublinear term frequency keeps a repeated word from dominating.
	for idx, count := range tf {
		vec[idx] = 1 + math.Log(float64(count))
	}
	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec, nil
}

func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func (e *Embedder) bucket(token string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(token))
	return int(h.Sum32() % uint32(e.dimension))
}
