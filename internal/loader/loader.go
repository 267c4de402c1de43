// Package loader turns .txt and .pdf files into documents.
package loader

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"ragpipe/internal/domain"
	"ragpipe/internal/logger"
)

// Loader reads supported files from a path.
type Loader struct {
	logger *zap.Logger
}

var _ domain.Loader = (*Loader)(nil)

// New creates a Loader.
func New(l *zap.Logger) *Loader {
	return &Loader{logger: logger.OrNop(l)}
}

// SupportedExtensions lists the lowercase file extensions Load accepts.
func SupportedExtensions() []string { return []string{".pdf", ".txt"} }

// Supported reports whether path has a supported extension.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".txt":
		return true
	}
	return false
}

// Load reads a single file or walks a directory.
//
// For a directory, unsupported files are skipped and unreadable files are
// reported in the returned error while the remaining documents are still
// returned. A directory without supported files yields ErrEmptyDirectory.
// Paths are made absolute first, so one file reached through different
// spellings gets the same document ID and source.
func (l *Loader) Load(ctx context.Context, path string) ([]domain.Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, domain.NewStageError(domain.StageLoad, path, err)
	}
	path = abs
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.NewStageError(domain.StageLoad, path, domain.ErrNotFound)
		}
		return nil, domain.NewStageError(domain.StageLoad, path, err)
	}
	if !info.IsDir() {
		if !Supported(path) {
			return nil, domain.NewStageError(domain.StageLoad, path,
				fmt.Errorf("%w: %q (supported: %s)", domain.ErrUnsupportedFormat, filepath.Ext(path), strings.Join(SupportedExtensions(), ", ")))
		}
		docs, err := l.loadFile(ctx, path)
		if err != nil {
			return nil, domain.NewStageError(domain.StageLoad, path, err)
		}
		return docs, nil
	}
	return l.loadDir(ctx, path)
}

func (l *Loader) loadDir(ctx context.Context, dir string) ([]domain.Document, error) {
	var (
		docs     []domain.Document
		failures []error
		matched  int
	)
	// WalkDir visits entries in lexical order, which keeps loads deterministic.
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			failures = append(failures, domain.NewStageError(domain.StageLoad, p, err))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !Supported(p) {
			l.logger.Warn("skipping unsupported file", zap.String("stage", string(domain.StageLoad)), zap.String("path", p))
			return nil
		}
		matched++
		fileDocs, err := l.loadFile(ctx, p)
		if err != nil {
			l.logger.Warn("failed to load file", zap.String("stage", string(domain.StageLoad)), zap.String("path", p), zap.Error(err))
			failures = append(failures, domain.NewStageError(domain.StageLoad, p, err))
			return nil
		}
		docs = append(docs, fileDocs...)
		return nil
	})
	if err != nil {
		return nil, domain.NewStageError(domain.StageLoad, dir, err)
	}
	if matched == 0 {
		l.logger.Warn("no supported documents found", zap.String("stage", string(domain.StageLoad)), zap.String("path", dir))
		return nil, domain.NewStageError(domain.StageLoad, dir, domain.ErrEmptyDirectory)
	}
	l.logger.Info("loaded directory", zap.String("stage", string(domain.StageLoad)), zap.String("path", dir), zap.Int("documents", len(docs)))
	return docs, errors.Join(failures...)
}

func (l *Loader) loadFile(ctx context.Context, path string) ([]domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		return loadText(path)
	case ".pdf":
		return loadPDF(path)
	}
	return nil, domain.ErrUnsupportedFormat
}

func loadText(path string) ([]domain.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text := Normalize(string(data))
	if text == "" {
		return nil, nil
	}
	meta := baseMetadata(path, "txt")
	return []domain.Document{{ID: documentID(path, 0), Text: text, Metadata: meta}}, nil
}

func baseMetadata(path, fileType string) map[string]any {
	return map[string]any{
		domain.MetaSource:   path,
		domain.MetaFileName: filepath.Base(path),
		domain.MetaFileType: fileType,
	}
}

// documentID is stable for a path and page, so reloading a file yields the
// same IDs.
func documentID(path string, page int) string {
	key := path
	if page > 0 {
		key += "#" + strconv.Itoa(page)
	}
	h := sha1.Sum([]byte(key))
	return hex.EncodeToString(h[:8])
}

var (
	trailingSpaceRe = regexp.MustCompile(`[ \t]+\n`)
	manyNewlinesRe  = regexp.MustCompile(`\n{3,}`)
)

// Normalize unifies line endings, strips trailing spaces on each line and
// collapses runs of blank lines into a single paragraph break.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = trailingSpaceRe.ReplaceAllString(s, "\n")
	s = manyNewlinesRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
