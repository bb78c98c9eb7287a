// Package indexer turns uploaded documents into vector index records.
package indexer

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/ragdesk/internal/models"
)

// ChunkOptions configures a Chunker. Size and Overlap are counted in runes.
type ChunkOptions struct {
	Size    int
	Overlap int
	// Separator, when set, pulls each window end back to just after the last separator
	// in the back half of the window.
	Separator string
	// StripHeaders removes Markdown ATX header markers before chunking.
	StripHeaders bool
}

// Chunker splits text into overlapping windows.
type Chunker struct {
	opts ChunkOptions
}

// NewChunker validates opts and returns a Chunker.
func NewChunker(opts ChunkOptions) (*Chunker, error) {
	switch {
	case opts.Size <= 0:
		return nil, errors.New("chunk size must be positive")
	case opts.Overlap < 0:
		return nil, errors.New("chunk overlap must not be negative")
	case opts.Overlap >= opts.Size:
		return nil, errors.New("chunk overlap must be smaller than chunk size")
	}
	return &Chunker{opts: opts}, nil
}

// Chunk splits text into chunks of at most Size runes. Each window starts Overlap runes
// before the end of the previous one; together the chunks cover the text without gaps.
// Empty or whitespace-only text yields no chunks.
func (c *Chunker) Chunk(docID, text string) []*models.DocumentChunk {
	if c.opts.StripHeaders {
		text = StripHeaders(text)
	}
	if strings.TrimSpace(text) == "" {
		return []*models.DocumentChunk{}
	}
	runes := []rune(text)
	n := len(runes)
	chunks := make([]*models.DocumentChunk, 0, n/(c.opts.Size-c.opts.Overlap)+1)
	start := 0
	for {
		end := start + c.opts.Size
		if end >= n {
			end = n
		} else if c.opts.Separator != "" {
			end = c.snapToSeparator(runes, start, end)
		}
		chunks = append(chunks, &models.DocumentChunk{
			Text:             string(runes[start:end]),
			StartOffset:      start,
			EndOffset:        end,
			ChunkIndex:       len(chunks),
			SourceDocumentID: docID,
		})
		if end >= n {
			return chunks
		}
		next := end - c.opts.Overlap
		if next <= start {
			next = end
		}
		start = next
	}
}

// snapToSeparator returns the offset just after the last separator in the back half of
// runes[start:end], or end when there is none.
func (c *Chunker) snapToSeparator(runes []rune, start, end int) int {
	mid := start + (end-start)/2
	window := string(runes[mid:end])
	i := strings.LastIndex(window, c.opts.Separator)
	if i < 0 {
		return end
	}
	return mid + utf8.RuneCountInString(window[:i]) + utf8.RuneCountInString(c.opts.Separator)
}
