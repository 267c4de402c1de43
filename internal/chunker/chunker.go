package chunker

import (
	"unicode/utf8"

	"ragpipe/internal/domain"
)

// ChunkAll chunks every document in order.
func ChunkAll(c domain.Chunker, docs []domain.Document) ([]domain.Chunk, error) {
	var out []domain.Chunk
	for _, d := range docs {
		chunks, err := c.Chunk(d)
		if err != nil {
			return nil, domain.NewStageError(domain.StageChunk, d.Source(), err)
		}
		out = append(out, chunks...)
	}
	return out, nil
}

// Stats summarises chunk lengths in characters.
func Stats(chunks []domain.Chunk) domain.ChunkingStats {
	st := domain.ChunkingStats{Chunks: len(chunks)}
	for _, c := range chunks {
		st.TotalCharacters += utf8.RuneCountInString(c.Text)
	}
	if st.Chunks > 0 {
		st.AverageChunkSize = float64(st.TotalCharacters) / float64(st.Chunks)
	}
	return st
}

// Merge adds b to a.
func Merge(a, b domain.ChunkingStats) domain.ChunkingStats {
	out := domain.ChunkingStats{
		Chunks:          a.Chunks + b.Chunks,
		TotalCharacters: a.TotalCharacters + b.TotalCharacters,
	}
	if out.Chunks > 0 {
		out.AverageChunkSize = float64(out.TotalCharacters) / float64(out.Chunks)
	}
	return out
}
