package loader

import (
	"fmt"

	"github.com/ledongthuc/pdf"

	"ragpipe/internal/domain"
)

// loadPDF returns one document per page that carries text.
func loadPDF(path string) (docs []domain.Document, err error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	// The pdf reader panics on some malformed content streams.
	defer func() {
		if rec := recover(); rec != nil {
			docs = nil
			err = fmt.Errorf("read pdf: %v", rec)
		}
	}()

	total := r.NumPage()
	for i := 1; i <= total; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		raw, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("read page %d: %w", i, err)
		}
		text := Normalize(raw)
		if text == "" {
			continue
		}
		meta := baseMetadata(path, "pdf")
		meta[domain.MetaPage] = i
		meta[domain.MetaTotalPages] = total
		docs = append(docs, domain.Document{ID: documentID(path, i), Text: text, Metadata: meta})
	}
	return docs, nil
}
