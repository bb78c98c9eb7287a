// Package storage is the document registry: which documents were ingested, into which index,
// and the chunks they produced.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/ragdesk/internal/models"
)

// ErrNotFound is returned when a document does not exist in the registry.
var ErrNotFound = errors.New("document not found")

// Storage defines document registry operations.
type Storage interface {
	// SaveDocument inserts or replaces the document together with its chunks.
	SaveDocument(ctx context.Context, doc *models.Document, chunks []*models.DocumentChunk) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error)
	GetChunks(ctx context.Context, documentID string) ([]*models.DocumentChunk, error)
	DeleteDocument(ctx context.Context, id string) error

	CountDocuments(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context) (int64, error)

	Close() error
}
