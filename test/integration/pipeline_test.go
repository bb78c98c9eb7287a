// Package integration runs ingestion and retrieval end to end against local stores.
package integration

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/ragdesk/internal/agent"
	"github.com/hyperjump/ragdesk/internal/embedding"
	"github.com/hyperjump/ragdesk/internal/indexer"
	"github.com/hyperjump/ragdesk/internal/models"
	"github.com/hyperjump/ragdesk/internal/search"
	"github.com/hyperjump/ragdesk/internal/storage"
	"github.com/hyperjump/ragdesk/internal/vector"
)

const dim = 384

type pipeline struct {
	registry storage.Storage
	conns    *vector.ConnectionManager
	indexer  *indexer.Indexer
	tool     *agent.VectorQueryTool
}

func newPipeline(t *testing.T, dir string, dial vector.DialFunc) *pipeline {
	t.Helper()
	registry, err := storage.NewSQLiteStorage(filepath.Join(dir, "registry.db"))
	if err != nil {
		t.Fatal(err)
	}
	conns := vector.NewConnectionManager(dial)
	chunker, err := indexer.NewChunker(indexer.ChunkOptions{Size: 10, Overlap: 5})
	if err != nil {
		t.Fatal(err)
	}
	gen := embedding.NewGenerator(embedding.NewMockEmbedder(dim))
	idx := indexer.NewIndexer(gen, conns, chunker,
		indexer.IndexSpec{Name: "documents", Dimension: dim, Metric: models.MetricCosine},
		indexer.WithRegistry(registry), indexer.WithLogger(zap.NewNop()))
	engine := search.NewEngine(gen, conns, "documents", search.WithLogger(zap.NewNop()))
	return &pipeline{registry: registry, conns: conns, indexer: idx, tool: agent.NewVectorQueryTool(engine)}
}

func (p *pipeline) close() {
	_ = p.conns.Close()
	_ = p.registry.Close()
}

func ingestSample(t *testing.T, p *pipeline) {
	t.Helper()
	res, err := p.indexer.Ingest(context.Background(), models.IngestInput{
		FileBytes: []byte("Hello world. This is a test."),
		FileName:  "doc.txt",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != models.IngestSuccessText || res.Chunks != 5 {
		t.Fatalf("unexpected ingest result: %+v", res)
	}
}

func assertSampleQuery(t *testing.T, p *pipeline) {
	t.Helper()
	resp, err := p.tool.Call(context.Background(), json.RawMessage(`{"query":"test","topK":3,"minScore":0.1}`))
	if err != nil {
		t.Fatal(err)
	}
	if resp.TotalResults != 3 || resp.RelevantResults != 2 {
		t.Fatalf("total=%d relevant=%d, want 3 and 2", resp.TotalResults, resp.RelevantResults)
	}
	top := resp.Chunks[0]
	if top.ID != "doc.txt_chunk_4" || top.Text != " a test." {
		t.Errorf("unexpected top chunk: %+v", top)
	}
	if top.ChunkIndex == nil || *top.ChunkIndex != 4 {
		t.Errorf("top chunk index = %v, want 4", top.ChunkIndex)
	}
	if top.DocumentID != "doc.txt" {
		t.Errorf("document id = %q", top.DocumentID)
	}
	for i := 1; i < len(resp.Chunks); i++ {
		if resp.Chunks[i].Score > resp.Chunks[i-1].Score {
			t.Errorf("chunks not sorted by score: %v", resp.Chunks)
		}
	}
}

func TestPipeline_MemoryStorePersistsAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	vecPath := filepath.Join(dir, "vectors.bin")
	dial := func(context.Context) (vector.Store, error) { return vector.NewMemoryStore(vecPath) }

	p := newPipeline(t, dir, dial)
	ingestSample(t, p)
	assertSampleQuery(t, p)
	p.close()

	reopened := newPipeline(t, dir, dial)
	defer reopened.close()
	assertSampleQuery(t, reopened)

	doc, err := reopened.registry.GetDocument(context.Background(), "doc.txt")
	if err != nil {
		t.Fatal(err)
	}
	if doc.ChunkCount != 5 || doc.IndexName != "documents" {
		t.Errorf("unexpected registry entry: %+v", doc)
	}
}

func TestPipeline_BoltStore(t *testing.T) {
	dir := t.TempDir()
	p := newPipeline(t, dir, func(context.Context) (vector.Store, error) {
		return vector.OpenBoltStore(filepath.Join(dir, "vectors.bolt"))
	})
	defer p.close()
	ingestSample(t, p)
	assertSampleQuery(t, p)
}

func TestPipeline_DeleteRemovesDocument(t *testing.T) {
	dir := t.TempDir()
	p := newPipeline(t, dir, func(context.Context) (vector.Store, error) { return vector.NewMemoryStore("") })
	defer p.close()
	ingestSample(t, p)

	if err := p.indexer.DeleteDocument(context.Background(), "doc.txt"); err != nil {
		t.Fatal(err)
	}
	resp, err := p.tool.Run(context.Background(), search.QueryRequest{Query: "test"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.TotalResults != 0 || len(resp.Chunks) != 0 {
		t.Errorf("expected no results after delete, got %+v", resp)
	}
	if n, _ := p.registry.CountDocuments(context.Background()); n != 0 {
		t.Errorf("registry still holds %d documents", n)
	}
}

func TestPipeline_ReuploadShorterDocumentDropsStaleChunks(t *testing.T) {
	dir := t.TempDir()
	p := newPipeline(t, dir, func(context.Context) (vector.Store, error) { return vector.NewMemoryStore("") })
	defer p.close()
	ingestSample(t, p)

	if _, err := p.indexer.Ingest(context.Background(), models.IngestInput{
		FileBytes: []byte("Short."), FileName: "doc.txt",
	}); err != nil {
		t.Fatal(err)
	}
	zero := 0.0
	resp, err := p.tool.Run(context.Background(), search.QueryRequest{Query: "test", TopK: 10, MinScore: &zero})
	if err != nil {
		t.Fatal(err)
	}
	if resp.TotalResults != 1 {
		t.Errorf("expected only the new chunk to remain, got %d results", resp.TotalResults)
	}
}

func TestPipeline_TurnDeduplicatesSources(t *testing.T) {
	dir := t.TempDir()
	p := newPipeline(t, dir, func(context.Context) (vector.Store, error) { return vector.NewMemoryStore("") })
	defer p.close()
	ingestSample(t, p)

	turn := agent.NewTurn(p.tool)
	for i := 0; i < 2; i++ {
		if _, err := turn.Invoke(context.Background(), json.RawMessage(`{"query":"test","topK":3}`)); err != nil {
			t.Fatal(err)
		}
	}
	srcs := turn.Sources()
	if len(srcs) != 2 {
		t.Fatalf("expected 2 distinct sources, got %d: %+v", len(srcs), srcs)
	}
	if srcs[0].ChunkIndex != 4 {
		t.Errorf("first source chunk index = %d, want 4", srcs[0].ChunkIndex)
	}
}
