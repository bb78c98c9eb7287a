// Package cli provides output helpers for the ragdesk command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/hyperjump/ragdesk/internal/models"
	"github.com/hyperjump/ragdesk/internal/search"
	"github.com/hyperjump/ragdesk/internal/sources"
	"github.com/hyperjump/ragdesk/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const previewRunes = 200

// QueryOutput is what the query command prints: the response and the sources it cites.
type QueryOutput struct {
	*search.QueryResponse
	Sources []sources.Source `json:"sources"`
}

// WriteQueryResponse writes a query response and its deduplicated sources to w.
func WriteQueryResponse(w io.Writer, resp *search.QueryResponse, format OutputFormat) error {
	out := QueryOutput{QueryResponse: resp, Sources: sources.FromResponses(resp)}
	if format == OutputJSON {
		return writeJSON(w, out)
	}
	fmt.Fprintf(w, "\nFound %d relevant of %d results for %q (min score %.2f)\n\n",
		resp.RelevantResults, resp.TotalResults, resp.Query, resp.MinScore)
	for i, c := range resp.Chunks {
		writeChunk(w, i+1, c)
	}
	if len(out.Sources) > 0 {
		fmt.Fprintln(w, "Sources:")
		for _, s := range out.Sources {
			fmt.Fprintf(w, "  [%d] %s\n", s.ChunkIndex, utils.Truncate(utils.CollapseWhitespace(s.ChunkText), 80))
		}
	}
	return nil
}

func writeChunk(w io.Writer, rank int, c search.Chunk) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "Rank: %d | Score: %.4f", rank, c.Score)
	if c.ChunkIndex != nil {
		fmt.Fprintf(w, " | Chunk: %d", *c.ChunkIndex)
	}
	fmt.Fprintln(w)
	if c.DocumentPath != "" {
		fmt.Fprintf(w, "Document: %s\n", c.DocumentPath)
	}
	fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(utils.CollapseWhitespace(c.Text), previewRunes))
}

// WriteIngestResult writes the outcome of an ingestion to w.
func WriteIngestResult(w io.Writer, res *models.IngestResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	fmt.Fprintf(w, "%s: %s (document %s, %d chunks)\n", res.Text, res.FileName, res.DocumentID, res.Chunks)
	return nil
}

// PrintQueryResponse prints a query response to stdout in text format.
func PrintQueryResponse(resp *search.QueryResponse) {
	_ = WriteQueryResponse(os.Stdout, resp, OutputText)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
