package models

import (
	"errors"
	"fmt"
)

// ErrIndexAlreadyExists is returned by a vector store when CreateIndex targets an existing index.
// Callers treat it as success.
var ErrIndexAlreadyExists = errors.New("index already exists")

// ExtractionError reports that document bytes could not be converted to text.
type ExtractionError struct {
	FileName string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract text from %q: %v", e.FileName, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// EmbeddingProviderError reports a provider-side failure for a batch (rate limit, bad input,
// network, wrong dimension). The whole call is aborted; callers may retry with backoff.
type EmbeddingProviderError struct {
	Provider   string
	BatchStart int
	BatchSize  int
	Err        error
}

func (e *EmbeddingProviderError) Error() string {
	return fmt.Sprintf("embedding provider %s failed for batch [%d:%d]: %v",
		e.Provider, e.BatchStart, e.BatchStart+e.BatchSize, e.Err)
}

func (e *EmbeddingProviderError) Unwrap() error { return e.Err }

// VectorStoreConnectionError reports a transport or authentication failure talking to the
// vector store. The shared connection is invalidated so the next call reconnects.
type VectorStoreConnectionError struct {
	Store string
	Op    string
	Err   error
}

func (e *VectorStoreConnectionError) Error() string {
	return fmt.Sprintf("vector store %s: %s: %v", e.Store, e.Op, e.Err)
}

func (e *VectorStoreConnectionError) Unwrap() error { return e.Err }

// DimensionMismatchError is returned before any network call when a vector does not have the
// configured dimension.
type DimensionMismatchError struct {
	ID       string
	Got      int
	Expected int
}

func (e *DimensionMismatchError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("vector dimension mismatch: got %d, expected %d", e.Got, e.Expected)
	}
	return fmt.Sprintf("vector dimension mismatch for %s: got %d, expected %d", e.ID, e.Got, e.Expected)
}

// QueryError wraps an embedding or search failure during retrieval.
type QueryError struct {
	Query string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("vector query failed: %v", e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// IsConnectionError reports whether err is (or wraps) a VectorStoreConnectionError.
func IsConnectionError(err error) bool {
	var connErr *VectorStoreConnectionError
	return errors.As(err, &connErr)
}
