// Package generator builds prompts and holds the helpers shared by the answer
// generators.
package generator

import (
	"fmt"
	"strings"

	"ragpipe/internal/domain"
)

// DefaultSystemPrompt instructs the model to stay within the retrieved
// passages.
const DefaultSystemPrompt = `You are a helpful assistant that answers questions using only the provided context.
If the answer is not contained in the context, say that you don't know based on the available documents.
Cite the passages you used by their number, for example [1].`

// NoContextAnswer is returned without calling a model when retrieval found
// nothing.
const NoContextAnswer = "No relevant passages were found in the indexed documents."

// BuildPrompt numbers the passages [1]..[n] in the given order, each with its
// source, and ends with the question.
func BuildPrompt(question string, passages []domain.Chunk) string {
	var b strings.Builder
	b.WriteString("Context:\n")
	for i, c := range passages {
		fmt.Fprintf(&b, "\n[%d] (source: %s)\n%s\n", i+1, SourceLabel(c), strings.TrimSpace(c.Text))
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(strings.TrimSpace(question))
	b.WriteString("\n\nAnswer:")
	return b.String()
}

// SourceLabel renders a chunk's origin as file name plus page when known.
func SourceLabel(c domain.Chunk) string {
	name, _ := c.Metadata[domain.MetaFileName].(string)
	if name == "" {
		name = c.Source()
	}
	if name == "" {
		name = c.DocumentID
	}
	if page, ok := c.Metadata[domain.MetaPage].(int); ok && page > 0 {
		return fmt.Sprintf("%s, page %d", name, page)
	}
	return name
}
