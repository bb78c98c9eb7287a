package vector

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hyperjump/ragdesk/internal/models"
)

func record(id, doc string, vec ...float32) models.IndexRecord {
	return models.IndexRecord{
		ID:     id,
		Vector: vec,
		Metadata: map[string]any{
			models.MetaText:       "text of " + id,
			models.MetaDocumentID: doc,
		},
	}
}

// storeContract runs the behaviour every Store must share.
func storeContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	if err := s.CreateIndex(ctx, "docs", 3, models.MetricCosine); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	if err := s.CreateIndex(ctx, "docs", 3, models.MetricCosine); !errors.Is(err, models.ErrIndexAlreadyExists) {
		t.Fatalf("second CreateIndex: got %v, want ErrIndexAlreadyExists", err)
	}

	err := s.Upsert(ctx, "docs", []models.IndexRecord{
		record("a_chunk_0", "a", 1, 0, 0),
		record("a_chunk_1", "a", 0.9, 0.1, 0),
		record("b_chunk_0", "b", 0, 1, 0),
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	results, err := s.Query(ctx, "docs", []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "a_chunk_0" || results[1].ID != "a_chunk_1" {
		t.Errorf("unexpected order: %s, %s", results[0].ID, results[1].ID)
	}
	if results[0].Score < results[1].Score {
		t.Error("results should be ordered best first")
	}
	if results[0].Metadata[models.MetaText] != "text of a_chunk_0" {
		t.Errorf("metadata not returned: %v", results[0].Metadata)
	}

	// Re-upsert overwrites instead of duplicating.
	if err := s.Upsert(ctx, "docs", []models.IndexRecord{record("a_chunk_0", "a", 0, 0, 1)}); err != nil {
		t.Fatal(err)
	}
	if c, ok := s.(Counter); ok {
		n, err := c.Count(ctx, "docs")
		if err != nil || n != 3 {
			t.Errorf("Count after re-upsert = %d, %v; want 3", n, err)
		}
	}
	results, _ = s.Query(ctx, "docs", []float32{0, 0, 1}, 1)
	if len(results) != 1 || results[0].ID != "a_chunk_0" {
		t.Errorf("overwritten vector not used: %+v", results)
	}

	if err := s.Delete(ctx, "docs", []string{"a_chunk_1", "missing_chunk_9"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	results, _ = s.Query(ctx, "docs", []float32{0.9, 0.1, 0}, 10)
	if len(results) != 2 {
		t.Fatalf("after Delete by id: %+v", results)
	}
	for _, r := range results {
		if r.ID == "a_chunk_1" {
			t.Error("a_chunk_1 should be deleted")
		}
	}

	if err := s.DeleteByDocument(ctx, "docs", "a"); err != nil {
		t.Fatal(err)
	}
	results, _ = s.Query(ctx, "docs", []float32{1, 0, 0}, 10)
	if len(results) != 1 || results[0].ID != "b_chunk_0" {
		t.Errorf("after delete: %+v", results)
	}
}

func TestMemoryStore_Contract(t *testing.T) {
	s, err := NewMemoryStore("")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	storeContract(t, s)
}

func TestMemoryStore_DimensionMismatch(t *testing.T) {
	s, _ := NewMemoryStore("")
	ctx := context.Background()
	_ = s.CreateIndex(ctx, "docs", 2, models.MetricCosine)
	err := s.Upsert(ctx, "docs", []models.IndexRecord{record("x", "d", 1, 0, 0)})
	var dm *models.DimensionMismatchError
	if !errors.As(err, &dm) {
		t.Fatalf("expected DimensionMismatchError, got %v", err)
	}
}

func TestMemoryStore_UnknownIndex(t *testing.T) {
	s, _ := NewMemoryStore("")
	if _, err := s.Query(context.Background(), "missing", []float32{1}, 1); err == nil {
		t.Error("expected error querying missing index")
	}
}

func TestMemoryStore_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors", "store.bin")
	ctx := context.Background()
	s, err := NewMemoryStore(path)
	if err != nil {
		t.Fatal(err)
	}
	_ = s.CreateIndex(ctx, "docs", 2, models.MetricDotProduct)
	rec := record("doc_chunk_0", "doc", 0.5, 0.25)
	rec.Metadata[models.MetaChunkIndex] = 0
	if err := s.Upsert(ctx, "docs", []models.IndexRecord{rec}); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewMemoryStore(path)
	if err != nil {
		t.Fatal(err)
	}
	results, err := reopened.Query(ctx, "docs", []float32{1, 0}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ID != "doc_chunk_0" {
		t.Fatalf("unexpected results after reload: %+v", results)
	}
	if results[0].Score != 0.5 {
		t.Errorf("dot product metric not restored, score = %f", results[0].Score)
	}
	if results[0].Metadata[models.MetaChunkIndex] != float64(0) {
		t.Errorf("chunkIndex = %v", results[0].Metadata[models.MetaChunkIndex])
	}
	if err := reopened.CreateIndex(ctx, "docs", 2, models.MetricDotProduct); !errors.Is(err, models.ErrIndexAlreadyExists) {
		t.Errorf("index should survive reload, got %v", err)
	}
}
