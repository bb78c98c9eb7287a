package server

import (
	"errors"
	"net/http"

	"github.com/hyperjump/ragdesk/internal/agent"
	"github.com/hyperjump/ragdesk/internal/models"
	"github.com/hyperjump/ragdesk/internal/search"
	"github.com/hyperjump/ragdesk/internal/storage"
)

// Error kinds reported in the "kind" field of an error response.
const (
	kindBadRequest = "bad_request"
	kindTooLarge   = "too_large"
	kindExtraction = "extraction"
	kindNotFound   = "not_found"
	kindProvider   = "embedding_provider"
	kindConnection = "vector_store_connection"
	kindQuery      = "query"
	kindInternal   = "internal"
)

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// classify picks the response status for err. Causes are checked before the QueryError
// wrapper so a provider failure during retrieval still reports as 502.
func classify(err error) (int, string) {
	var (
		tooLarge *http.MaxBytesError
		extErr   *models.ExtractionError
		dimErr   *models.DimensionMismatchError
		provErr  *models.EmbeddingProviderError
		connErr  *models.VectorStoreConnectionError
		queryErr *models.QueryError
	)
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, kindTooLarge
	case errors.As(err, &extErr):
		return http.StatusBadRequest, kindExtraction
	case errors.As(err, &provErr):
		return http.StatusBadGateway, kindProvider
	case errors.Is(err, search.ErrInvalidRequest), errors.Is(err, agent.ErrInvalidArguments), errors.As(err, &dimErr):
		return http.StatusBadRequest, kindBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, kindNotFound
	case errors.As(err, &connErr):
		return http.StatusServiceUnavailable, kindConnection
	case errors.As(err, &queryErr):
		return http.StatusInternalServerError, kindQuery
	}
	return http.StatusInternalServerError, kindInternal
}
