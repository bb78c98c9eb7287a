// Package search is the retrieval path: embed a query, run a nearest-neighbour search and
// keep the results above a score threshold.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/hyperjump/ragdesk/internal/embedding"
	"github.com/hyperjump/ragdesk/internal/models"
	"github.com/hyperjump/ragdesk/internal/vector"
)

const (
	DefaultTopK     = 5
	MaxTopK         = 1000
	DefaultMinScore = 0.1
	// NoTextPlaceholder stands in for a result whose stored text is missing.
	NoTextPlaceholder = "No text available"
)

// ErrInvalidRequest is wrapped by every request validation failure.
var ErrInvalidRequest = errors.New("invalid query request")

// QueryRequest is the input of a vector query. Zero TopK and nil MinScore take the defaults.
type QueryRequest struct {
	Query    string   `json:"query"`
	TopK     int      `json:"topK,omitempty"`
	MinScore *float64 `json:"minScore,omitempty"`
}

// Chunk is one retrieved passage.
type Chunk struct {
	ID           string  `json:"id,omitempty"`
	Text         string  `json:"text"`
	Score        float64 `json:"score"`
	ChunkIndex   *int    `json:"chunkIndex,omitempty"`
	DocumentPath string  `json:"documentPath,omitempty"`
	DocumentID   string  `json:"documentId,omitempty"`
	Timestamp    string  `json:"timestamp,omitempty"`
}

// QueryResponse lists the passages at or above MinScore in store ranking order.
// TotalResults counts the store hits before filtering.
type QueryResponse struct {
	Query           string  `json:"query"`
	TotalResults    int     `json:"totalResults"`
	RelevantResults int     `json:"relevantResults"`
	MinScore        float64 `json:"minScore"`
	Chunks          []Chunk `json:"chunks"`
}

// EmptyResponse is the response returned when retrieval is unavailable.
func EmptyResponse(req QueryRequest) *QueryResponse {
	req = req.withDefaults()
	return &QueryResponse{Query: req.Query, MinScore: *req.MinScore, Chunks: []Chunk{}}
}

func (r QueryRequest) withDefaults() QueryRequest {
	if r.TopK == 0 {
		r.TopK = DefaultTopK
	}
	if r.MinScore == nil {
		ms := DefaultMinScore
		r.MinScore = &ms
	}
	return r
}

// Validate checks a request after defaults are applied.
func (r QueryRequest) Validate() error {
	r = r.withDefaults()
	switch {
	case r.Query == "":
		return fmt.Errorf("%w: query must not be empty", ErrInvalidRequest)
	case r.TopK < 1:
		return fmt.Errorf("%w: topK must be at least 1, got %d", ErrInvalidRequest, r.TopK)
	case r.TopK > MaxTopK:
		return fmt.Errorf("%w: topK must be at most %d, got %d", ErrInvalidRequest, MaxTopK, r.TopK)
	case math.IsNaN(*r.MinScore):
		return fmt.Errorf("%w: minScore must be a number", ErrInvalidRequest)
	}
	return nil
}

// Engine answers vector queries against one index.
type Engine struct {
	generator *embedding.Generator
	conns     *vector.ConnectionManager
	index     string
	logger    *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates a query engine over index.
func NewEngine(gen *embedding.Generator, conns *vector.ConnectionManager, index string, opts ...Option) *Engine {
	e := &Engine{generator: gen, conns: conns, index: index, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Query embeds req.Query, asks the store for TopK neighbours and drops those scoring below
// MinScore. Embedding and store failures are returned as *models.QueryError.
func (e *Engine) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	req = req.withDefaults()
	log := e.logger.With(zap.String("query", req.Query), zap.String("index", e.index))

	fail := func(err error) (*QueryResponse, error) {
		log.Error("vector query failed", zap.Error(err))
		return nil, &models.QueryError{Query: req.Query, Err: err}
	}
	vec, err := e.generator.GenerateQuery(ctx, req.Query)
	if err != nil {
		return fail(err)
	}
	store, err := e.conns.Get(ctx)
	if err != nil {
		return fail(err)
	}
	results, err := store.Query(ctx, e.index, vec, req.TopK)
	if err != nil {
		if models.IsConnectionError(err) {
			e.conns.Invalidate(store)
		}
		return fail(err)
	}

	resp := &QueryResponse{
		Query:        req.Query,
		TotalResults: len(results),
		MinScore:     *req.MinScore,
		Chunks:       make([]Chunk, 0, len(results)),
	}
	for _, r := range results {
		if r.Score < *req.MinScore {
			continue
		}
		resp.Chunks = append(resp.Chunks, toChunk(r))
	}
	resp.RelevantResults = len(resp.Chunks)
	log.Debug("vector query", zap.Int("total", resp.TotalResults), zap.Int("relevant", resp.RelevantResults))
	return resp, nil
}

func toChunk(r models.QueryResult) Chunk {
	c := Chunk{ID: r.ID, Score: r.Score, Text: NoTextPlaceholder}
	if text, ok := r.Metadata[models.MetaText].(string); ok && text != "" {
		c.Text = text
	}
	if n, ok := IntValue(r.Metadata[models.MetaChunkIndex]); ok {
		c.ChunkIndex = &n
	}
	c.DocumentPath, _ = r.Metadata[models.MetaDocumentPath].(string)
	c.DocumentID, _ = r.Metadata[models.MetaDocumentID].(string)
	c.Timestamp, _ = r.Metadata[models.MetaTimestamp].(string)
	return c
}

// IntValue reads an integral number from decoded metadata, which holds int in memory and
// float64 or json.Number after a JSON round trip.
func IntValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	}
	return 0, false
}
