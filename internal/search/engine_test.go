package search

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hyperjump/ragdesk/internal/embedding"
	"github.com/hyperjump/ragdesk/internal/models"
	"github.com/hyperjump/ragdesk/internal/vector"
)

const testDim = 384

// brokenStore fails every query with the configured error.
type brokenStore struct {
	*vector.MemoryStore
	err error
}

func (s *brokenStore) Query(context.Context, string, []float32, int) ([]models.QueryResult, error) {
	return nil, s.err
}

func newEngine(t *testing.T, texts ...string) (*Engine, *vector.ConnectionManager) {
	t.Helper()
	ctx := context.Background()
	emb := embedding.NewMockEmbedder(testDim)
	store, err := vector.NewMemoryStore("")
	if err != nil {
		t.Fatal(err)
	}
	if err := store.CreateIndex(ctx, "docs", testDim, models.MetricCosine); err != nil {
		t.Fatal(err)
	}
	records := make([]models.IndexRecord, len(texts))
	for i, text := range texts {
		vec, _ := emb.Embed(ctx, text)
		records[i] = models.IndexRecord{
			ID:     models.RecordID("doc", i),
			Vector: vec,
			Metadata: map[string]any{
				models.MetaText:         text,
				models.MetaChunkIndex:   i,
				models.MetaDocumentPath: "doc",
				models.MetaTimestamp:    "2024-05-01T12:00:00Z",
			},
		}
	}
	if len(records) > 0 {
		if err := store.Upsert(ctx, "docs", records); err != nil {
			t.Fatal(err)
		}
	}
	conns := vector.NewConnectionManager(func(context.Context) (vector.Store, error) { return store, nil })
	t.Cleanup(func() { _ = conns.Close() })
	return NewEngine(embedding.NewGenerator(emb), conns, "docs"), conns
}

func ptr(f float64) *float64 { return &f }

var sentenceChunks = []string{"Hello worl", " world. Th", "d. This is", "s is a tes", " a test."}

func TestEngine_Query(t *testing.T) {
	e, _ := newEngine(t, sentenceChunks...)
	resp, err := e.Query(context.Background(), QueryRequest{Query: "test", TopK: 3, MinScore: ptr(0.1)})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if resp.TotalResults != 3 {
		t.Errorf("TotalResults = %d, want 3", resp.TotalResults)
	}
	if resp.RelevantResults != len(resp.Chunks) || resp.RelevantResults > resp.TotalResults {
		t.Errorf("RelevantResults = %d with %d chunks", resp.RelevantResults, len(resp.Chunks))
	}
	if len(resp.Chunks) == 0 || resp.Chunks[0].Text != " a test." {
		t.Fatalf("best chunk should be %q, got %+v", " a test.", resp.Chunks)
	}
	for i, c := range resp.Chunks {
		if c.Score < 0.1 {
			t.Errorf("chunk %d score %f below threshold", i, c.Score)
		}
		if i > 0 && c.Score > resp.Chunks[i-1].Score {
			t.Errorf("chunks out of order at %d", i)
		}
	}
	first := resp.Chunks[0]
	if first.ChunkIndex == nil || *first.ChunkIndex != 4 || first.DocumentPath != "doc" || first.Timestamp == "" || first.ID != "doc_chunk_4" {
		t.Errorf("metadata not carried through: %+v", first)
	}
}

func TestEngine_Defaults(t *testing.T) {
	e, _ := newEngine(t, sentenceChunks...)
	resp, err := e.Query(context.Background(), QueryRequest{Query: "test"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.TotalResults != 5 || resp.MinScore != DefaultMinScore {
		t.Errorf("defaults not applied: total=%d minScore=%f", resp.TotalResults, resp.MinScore)
	}
}

func TestEngine_MinScoreZeroKeepsEverything(t *testing.T) {
	e, _ := newEngine(t, sentenceChunks...)
	resp, err := e.Query(context.Background(), QueryRequest{Query: "test", TopK: 5, MinScore: ptr(0)})
	if err != nil {
		t.Fatal(err)
	}
	if resp.RelevantResults != 5 {
		t.Errorf("RelevantResults = %d, want 5", resp.RelevantResults)
	}
}

func TestEngine_HighThresholdFiltersAll(t *testing.T) {
	e, _ := newEngine(t, sentenceChunks...)
	resp, err := e.Query(context.Background(), QueryRequest{Query: "test", MinScore: ptr(1.5)})
	if err != nil {
		t.Fatal(err)
	}
	if resp.TotalResults != 5 || resp.RelevantResults != 0 || resp.Chunks == nil {
		t.Errorf("unexpected response %+v", resp)
	}
	raw, _ := json.Marshal(resp)
	if !json.Valid(raw) || string(raw) == "" {
		t.Fatal("response must marshal")
	}
}

func TestEngine_EmptyIndex(t *testing.T) {
	e, _ := newEngine(t)
	resp, err := e.Query(context.Background(), QueryRequest{Query: "anything"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.TotalResults != 0 || len(resp.Chunks) != 0 {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestEngine_InvalidRequest(t *testing.T) {
	e, _ := newEngine(t, sentenceChunks...)
	for _, req := range []QueryRequest{
		{Query: ""},
		{Query: "q", TopK: -1},
		{Query: "q", TopK: MaxTopK + 1},
	} {
		_, err := e.Query(context.Background(), req)
		if !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("%+v: expected ErrInvalidRequest, got %v", req, err)
		}
	}
}

func TestEngine_MissingMetadata(t *testing.T) {
	ctx := context.Background()
	store, _ := vector.NewMemoryStore("")
	_ = store.CreateIndex(ctx, "docs", 2, models.MetricCosine)
	_ = store.Upsert(ctx, "docs", []models.IndexRecord{{ID: "bare", Vector: []float32{1, 0}}})
	conns := vector.NewConnectionManager(func(context.Context) (vector.Store, error) { return store, nil })
	defer conns.Close()

	e := NewEngine(embedding.NewGenerator(constEmbedder{}), conns, "docs")
	resp, err := e.Query(ctx, QueryRequest{Query: "q", MinScore: ptr(0)})
	if err != nil {
		t.Fatal(err)
	}
	c := resp.Chunks[0]
	if c.Text != NoTextPlaceholder || c.ChunkIndex != nil || c.DocumentPath != "" || c.Timestamp != "" {
		t.Errorf("unexpected chunk %+v", c)
	}
}

type constEmbedder struct{}

func (constEmbedder) Embed(context.Context, string) ([]float32, error) { return []float32{1, 0}, nil }
func (constEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0}
	}
	return out, nil
}
func (constEmbedder) Dimensions() int { return 2 }
func (constEmbedder) Close() error    { return nil }

func TestEngine_EmbeddingFailureIsQueryError(t *testing.T) {
	store, _ := vector.NewMemoryStore("")
	conns := vector.NewConnectionManager(func(context.Context) (vector.Store, error) { return store, nil })
	defer conns.Close()
	emb := embedding.NewMockEmbedder(8).FailWith(errors.New("provider down"))
	e := NewEngine(embedding.NewGenerator(emb), conns, "docs")

	_, err := e.Query(context.Background(), QueryRequest{Query: "q"})
	var qErr *models.QueryError
	if !errors.As(err, &qErr) || qErr.Query != "q" {
		t.Fatalf("expected QueryError, got %v", err)
	}
	var provErr *models.EmbeddingProviderError
	if !errors.As(err, &provErr) {
		t.Errorf("QueryError should wrap the provider error, got %v", err)
	}
}

func TestEngine_StoreConnectionFailureInvalidates(t *testing.T) {
	mem, _ := vector.NewMemoryStore("")
	broken := &brokenStore{MemoryStore: mem, err: &models.VectorStoreConnectionError{Store: "test", Op: "query", Err: errors.New("refused")}}
	conns := vector.NewConnectionManager(func(context.Context) (vector.Store, error) { return broken, nil })
	defer conns.Close()
	e := NewEngine(embedding.NewGenerator(embedding.NewMockEmbedder(8)), conns, "docs")

	_, err := e.Query(context.Background(), QueryRequest{Query: "q"})
	var qErr *models.QueryError
	if !errors.As(err, &qErr) || !models.IsConnectionError(err) {
		t.Fatalf("expected QueryError wrapping a connection error, got %v", err)
	}
	if conns.Connected() {
		t.Error("connection should be invalidated")
	}
}

func TestEmptyResponse(t *testing.T) {
	resp := EmptyResponse(QueryRequest{Query: "q"})
	if resp.Query != "q" || resp.MinScore != DefaultMinScore || resp.Chunks == nil || resp.TotalResults != 0 {
		t.Errorf("unexpected %+v", resp)
	}
}

func TestIntValue(t *testing.T) {
	tests := []struct {
		in   any
		want int
		ok   bool
	}{
		{3, 3, true},
		{int64(4), 4, true},
		{float64(5), 5, true},
		{5.5, 0, false},
		{json.Number("6"), 6, true},
		{"7", 0, false},
		{nil, 0, false},
	}
	for _, tt := range tests {
		got, ok := IntValue(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("IntValue(%v) = %d, %v", tt.in, got, ok)
		}
	}
}
