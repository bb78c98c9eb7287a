// Package sources collects the passages cited during one agent turn.
package sources

import (
	"sync"

	"github.com/hyperjump/ragdesk/internal/search"
)

// Source is one cited passage.
type Source struct {
	ChunkIndex int    `json:"chunkIndex"`
	ChunkText  string `json:"chunkText"`
}

// Deduplicate keeps the entries that carry a numeric chunkIndex and a string text, drops
// repeated chunk indexes (the first occurrence wins) and keeps first-seen order.
func Deduplicate(batches ...[]map[string]any) []Source {
	seen := make(map[int]struct{})
	out := make([]Source, 0)
	for _, batch := range batches {
		for _, entry := range batch {
			idx, ok := search.IntValue(entry["chunkIndex"])
			if !ok {
				continue
			}
			text, ok := entry["text"].(string)
			if !ok {
				continue
			}
			if _, dup := seen[idx]; dup {
				continue
			}
			seen[idx] = struct{}{}
			out = append(out, Source{ChunkIndex: idx, ChunkText: text})
		}
	}
	return out
}

// FromResponses deduplicates the chunks of typed query responses.
func FromResponses(responses ...*search.QueryResponse) []Source {
	batches := make([][]map[string]any, 0, len(responses))
	for _, resp := range responses {
		if resp == nil {
			continue
		}
		batches = append(batches, entries(resp))
	}
	return Deduplicate(batches...)
}

func entries(resp *search.QueryResponse) []map[string]any {
	out := make([]map[string]any, 0, len(resp.Chunks))
	for _, c := range resp.Chunks {
		entry := map[string]any{"text": c.Text}
		if c.ChunkIndex != nil {
			entry["chunkIndex"] = *c.ChunkIndex
		}
		out = append(out, entry)
	}
	return out
}

// Collector accumulates query responses of one turn. It is safe for concurrent use.
type Collector struct {
	mu        sync.Mutex
	responses []*search.QueryResponse
}

// Add records a response. Nil responses are ignored.
func (c *Collector) Add(resp *search.QueryResponse) {
	if resp == nil {
		return
	}
	c.mu.Lock()
	c.responses = append(c.responses, resp)
	c.mu.Unlock()
}

// Sources returns the deduplicated sources of every response added so far, in the order
// the responses were added.
func (c *Collector) Sources() []Source {
	c.mu.Lock()
	responses := append([]*search.QueryResponse(nil), c.responses...)
	c.mu.Unlock()
	return FromResponses(responses...)
}
