package models

// Metadata keys stored alongside each vector.
const (
	MetaText         = "text"
	MetaChunkIndex   = "chunkIndex"
	MetaTimestamp    = "timestamp"
	MetaStart        = "start"
	MetaEnd          = "end"
	MetaDocumentPath = "documentPath"
	MetaDocumentID   = "documentId"
)

// IndexRecord is one vector plus metadata written to the vector store under ID.
type IndexRecord struct {
	ID       string         `json:"id"`
	Vector   []float32      `json:"vector"`
	Metadata map[string]any `json:"metadata"`
}

// QueryResult is a single nearest-neighbour hit as returned by a vector store.
type QueryResult struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Metric is the similarity metric of a vector index.
type Metric string

const (
	MetricCosine     Metric = "cosine"
	MetricEuclidean  Metric = "euclidean"
	MetricDotProduct Metric = "dotproduct"
)

// Valid reports whether m is a supported metric.
func (m Metric) Valid() bool {
	switch m {
	case MetricCosine, MetricEuclidean, MetricDotProduct:
		return true
	}
	return false
}
