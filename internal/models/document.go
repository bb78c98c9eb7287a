// Package models defines core data structures for documents, chunks, index records and query results.
package models

import (
	"fmt"
	"time"
)

// Document is an ingested document as tracked by the registry.
type Document struct {
	ID         string    `json:"id" db:"id"`
	FileName   string    `json:"file_name" db:"file_name"`
	ByteSize   int64     `json:"byte_size" db:"byte_size"`
	ChunkCount int       `json:"chunk_count" db:"chunk_count"`
	IndexName  string    `json:"index_name" db:"index_name"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// DocumentChunk is a positioned window of a document's text. Offsets are rune offsets into
// the processed document text, so EndOffset-StartOffset equals the rune length of Text.
type DocumentChunk struct {
	Text             string `json:"text" db:"content"`
	StartOffset      int    `json:"start" db:"start_offset"`
	EndOffset        int    `json:"end" db:"end_offset"`
	ChunkIndex       int    `json:"chunk_index" db:"chunk_index"`
	SourceDocumentID string `json:"document_id" db:"document_id"`
}

// RecordID returns the deterministic index record id for the chunk.
func (c *DocumentChunk) RecordID() string {
	return RecordID(c.SourceDocumentID, c.ChunkIndex)
}

// RecordID derives the index record id from a document id and chunk index.
func RecordID(documentID string, chunkIndex int) string {
	return fmt.Sprintf("%s_chunk_%d", documentID, chunkIndex)
}

// IngestInput is the input of the ingestion entrypoint.
type IngestInput struct {
	FileBytes []byte `json:"file_bytes"`
	FileName  string `json:"file_name"`
}

// IngestResult is the success payload of an ingestion.
type IngestResult struct {
	Text       string `json:"text"`
	FileName   string `json:"fileName"`
	DocumentID string `json:"documentId,omitempty"`
	Chunks     int    `json:"chunks,omitempty"`
}

// IngestSuccessText is the message returned for every successful ingestion.
const IngestSuccessText = "Successfully embedded pdf"
