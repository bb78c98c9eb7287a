// Package embedding turns text into vectors: provider clients (OpenAI-compatible HTTP, ONNX,
// deterministic mock), query caches, and the batching Generator used by the pipeline.
package embedding

import "context"

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// Named is implemented by embedders that report a provider name for errors and logs.
type Named interface {
	Name() string
}

func providerName(e Embedder) string {
	if n, ok := e.(Named); ok {
		return n.Name()
	}
	return "embedder"
}
