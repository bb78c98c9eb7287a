// Package vector holds the vector store boundary: the Store interface, its implementations
// (in-memory, bbolt, Qdrant, Couchbase) and the shared connection manager.
package vector

import (
	"context"

	"github.com/hyperjump/ragdesk/internal/models"
)

// Store is a named-index vector database. Implementations are safe for concurrent use.
type Store interface {
	// CreateIndex creates the index. It returns models.ErrIndexAlreadyExists when it exists.
	CreateIndex(ctx context.Context, name string, dimension int, metric models.Metric) error
	// Upsert inserts or overwrites records by ID.
	Upsert(ctx context.Context, index string, records []models.IndexRecord) error
	// Query returns at most topK records ordered best first.
	Query(ctx context.Context, index string, vector []float32, topK int) ([]models.QueryResult, error)
	// Delete removes the records with the given ids. Unknown ids are ignored.
	Delete(ctx context.Context, index string, ids []string) error
	// DeleteByDocument removes every record whose documentId metadata equals documentID.
	DeleteByDocument(ctx context.Context, index, documentID string) error
	Close() error
}

// Counter is implemented by stores that can report the number of records in an index.
type Counter interface {
	Count(ctx context.Context, index string) (int, error)
}

// Name returns a short name for the store used in errors and logs.
func Name(s Store) string {
	switch s.(type) {
	case *MemoryStore:
		return "memory"
	case *BoltStore:
		return "bolt"
	case *QdrantStore:
		return "qdrant"
	case *CouchbaseStore:
		return "couchbase"
	}
	return "store"
}
