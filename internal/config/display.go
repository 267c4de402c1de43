package config

import (
	"fmt"
	"io"
	"text/tabwriter"
)

// Display prints the effective configuration with secrets masked.
func (c *AppConfig) Display(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	rows := [][2]string{
		{"Documents path", c.DocumentsPath},
		{"Chunker", c.Chunker.Type},
		{"Chunk size", fmt.Sprint(c.Chunker.Size)},
		{"Chunk overlap", fmt.Sprint(c.Chunker.Overlap)},
		{"Embedder", c.Embedder.Type},
		{"Embedding dimensions", fmt.Sprint(c.Embedder.Dimensions)},
		{"Vector store", c.VectorStore.Type},
		{"Vector store path", c.VectorStore.Path},
		{"Retrieved chunks (k)", fmt.Sprint(c.Retrieval.K)},
		{"Score threshold", fmt.Sprintf("%.2f", c.Retrieval.ScoreThreshold)},
		{"LLM provider", c.LLM.Provider},
		{"LLM model", c.LLM.Model},
		{"LLM temperature", fmt.Sprintf("%.2f", c.LLM.Temperature)},
		{"LLM max tokens", fmt.Sprint(c.LLM.MaxTokens)},
		{APIKeyEnv, MaskSecret(c.LLM.APIKey)},
	}
	if c.VectorStore.Qdrant != nil && c.VectorStore.Type == StoreQdrant {
		rows = append(rows,
			[2]string{"Qdrant URL", c.VectorStore.Qdrant.URL},
			[2]string{"Qdrant collection", c.VectorStore.Qdrant.Collection},
		)
	}
	for _, r := range rows {
		if _, err := fmt.Fprintf(tw, "%s:\t%s\n", r[0], r[1]); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// MaskSecret keeps the last four characters of a secret.
func MaskSecret(s string) string {
	switch {
	case s == "":
		return "NOT SET"
	case len(s) <= 4:
		return "****"
	default:
		return "****" + s[len(s)-4:]
	}
}
