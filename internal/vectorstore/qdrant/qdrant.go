// Package qdrant is a vector store backed by a Qdrant server's REST API.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"ragpipe/internal/domain"
	"ragpipe/internal/vectorstore"
)

// Storage is a minimal REST client to Qdrant. It assumes cosine distance and
// creates the collection on the first upsert.
type Storage struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client

	mu        sync.Mutex
	dimension int
}

var _ domain.VectorStore = (*Storage)(nil)

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// errNotFound marks a 404 from Qdrant, which usually means the collection
// does not exist yet.
var errNotFound = errors.New("qdrant: not found")

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

func (s *Storage) Name() string { return "qdrant" }

func (s *Storage) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *Storage) collectionURL() string {
	return fmt.Sprintf("%s/collections/%s", s.url, s.collection)
}

// ensureCollection creates the collection for dimension when missing and
// rejects vectors of a different dimension.
func (s *Storage) ensureCollection(ctx context.Context, dimension int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension == 0 {
		var info struct {
			Result struct {
				Config struct {
					Params struct {
						Vectors struct {
							Size int `json:"size"`
						} `json:"vectors"`
					} `json:"params"`
				} `json:"config"`
			} `json:"result"`
		}
		err := s.do(ctx, http.MethodGet, s.collectionURL(), nil, &info)
		switch {
		case errors.Is(err, errNotFound):
			body := map[string]any{
				"vectors": map[string]any{"size": dimension, "distance": "Cosine"},
			}
			if err := s.do(ctx, http.MethodPut, s.collectionURL(), body, nil); err != nil {
				return err
			}
			s.dimension = dimension
		case err != nil:
			return err
		default:
			s.dimension = info.Result.Config.Params.Vectors.Size
		}
	}
	if dimension != s.dimension {
		return fmt.Errorf("%w: vector dimension %d does not match collection dimension %d",
			domain.ErrIndexUnavailable, dimension, s.dimension)
	}
	return nil
}

func (s *Storage) Upsert(ctx context.Context, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx, len(records[0].Vector)); err != nil {
		return err
	}
	points := make([]map[string]any, len(records))
	for i, r := range records {
		if len(r.Vector) != len(records[0].Vector) {
			return fmt.Errorf("%w: record %s has dimension %d", domain.ErrIndexUnavailable, r.ID, len(r.Vector))
		}
		points[i] = map[string]any{
			"id":     r.ID,
			"vector": r.Vector,
			"payload": map[string]any{
				"document_id":  r.Chunk.DocumentID,
				"chunk_id":     r.Chunk.ID,
				"index":        r.Chunk.Index,
				"start_offset": r.Chunk.Offset,
				"text":         r.Chunk.Text,
				"metadata":     r.Chunk.Metadata,
			},
		}
	}
	body := map[string]any{"points": points}
	return s.do(ctx, http.MethodPut, s.collectionURL()+"/points?wait=true", body, nil)
}

func (s *Storage) Search(ctx context.Context, vector []float64, topK int, threshold float64) ([]domain.SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	if threshold > 0 {
		req["score_threshold"] = threshold
	}
	var resp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	err := s.do(ctx, http.MethodPost, s.collectionURL()+"/points/search", req, &resp)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	results := make([]domain.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, domain.SearchResult{
			ID:    fmt.Sprint(r.ID),
			Chunk: chunkFromPayload(r.Payload),
			Score: r.Score,
		})
	}
	// Qdrant does not order ties; apply the shared ordering.
	return vectorstore.Rank(results, topK, threshold), nil
}

func chunkFromPayload(p map[string]any) domain.Chunk {
	chunk := domain.Chunk{}
	if v, ok := p["document_id"].(string); ok {
		chunk.DocumentID = v
	}
	if v, ok := p["chunk_id"].(string); ok {
		chunk.ID = v
	}
	if v, ok := p["index"].(float64); ok {
		chunk.Index = int(v)
	}
	if v, ok := p["start_offset"].(float64); ok {
		chunk.Offset = int(v)
	}
	if v, ok := p["text"].(string); ok {
		chunk.Text = v
	}
	if m, ok := p["metadata"].(map[string]any); ok {
		for k, v := range m {
			if f, ok := v.(float64); ok && f == math.Trunc(f) {
				m[k] = int(f)
			}
		}
		chunk.Metadata = m
	}
	return chunk
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	err := s.do(ctx, http.MethodPost, s.collectionURL()+"/points/count", map[string]any{"exact": true}, &resp)
	if errors.Is(err, errNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

// Clear drops the collection; the next upsert recreates it.
func (s *Storage) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.do(ctx, http.MethodDelete, s.collectionURL(), nil, nil)
	if err != nil && !errors.Is(err, errNotFound) {
		return err
	}
	s.dimension = 0
	return nil
}

func (s *Storage) Stats(ctx context.Context) (domain.IndexStats, error) {
	n, err := s.Count(ctx)
	if err != nil {
		return domain.IndexStats{}, err
	}
	s.mu.Lock()
	dim := s.dimension
	s.mu.Unlock()
	return domain.IndexStats{Backend: s.Name(), Count: n, Dimension: dim, StoragePath: s.collectionURL()}, nil
}

// do sends body as JSON and decodes the response into out when non-nil.
// Transport failures and non-2xx statuses wrap ErrIndexUnavailable.
func (s *Storage) do(ctx context.Context, method, url string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("qdrant: encoding request: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return fmt.Errorf("%w: qdrant %s %s: %v", domain.ErrIndexUnavailable, method, url, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: qdrant %s %s: %v", domain.ErrIndexUnavailable, method, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: qdrant %s %s failed: %s: %s",
			domain.ErrIndexUnavailable, method, url, resp.Status, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: qdrant: decoding response: %v", domain.ErrIndexUnavailable, err)
		}
	}
	return nil
}
