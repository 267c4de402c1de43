package pipeline

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"ragpipe/internal/domain"
	"ragpipe/internal/generator"
)

// WriteStats prints a statistics snapshot as aligned key/value rows.
func WriteStats(w io.Writer, st domain.PipelineStats) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	threshold := "disabled"
	if st.Threshold > 0 {
		threshold = fmt.Sprintf("%.2f", st.Threshold)
	}
	rows := [][2]string{
		{"Phase", st.State.Phase.String()},
		{"Documents loaded", fmt.Sprint(st.State.DocumentsLoaded)},
		{"Chunks indexed", fmt.Sprint(st.State.ChunksIndexed)},
		{"Ready for queries", fmt.Sprint(st.State.IsProcessed())},
		{"Chunks this session", fmt.Sprint(st.Chunking.Chunks)},
		{"Average chunk size", fmt.Sprintf("%.1f", st.Chunking.AverageChunkSize)},
		{"Vector store", st.Index.Backend},
		{"Stored vectors", fmt.Sprint(st.Index.Count)},
		{"Vector dimension", fmt.Sprint(st.Index.Dimension)},
		{"Storage path", st.Index.StoragePath},
		{"Chunker", st.Chunker},
		{"Embedder", st.Embedder},
		{"Generator", st.Generator},
		{"Model", st.Model},
		{"Retrieved chunks (k)", fmt.Sprint(st.K)},
		{"Score threshold", threshold},
	}
	for _, r := range rows {
		if _, err := fmt.Fprintf(tw, "%s:\t%s\n", r[0], r[1]); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// WriteResult prints the answer followed by the numbered sources, or the
// error of a failed question.
func WriteResult(w io.Writer, r domain.QueryResult) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Q: %s\n", r.Question)
	if r.Err != nil {
		fmt.Fprintf(&b, "Error: %v\n", r.Err)
		_, err := io.WriteString(w, b.String())
		return err
	}
	fmt.Fprintf(&b, "A: %s\n", r.Answer)
	if len(r.Sources) > 0 {
		b.WriteString("Sources:\n")
		for i, c := range r.Sources {
			fmt.Fprintf(&b, "  [%d] %s (score %.3f)\n", i+1, generator.SourceLabel(c), r.Scores[i])
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
