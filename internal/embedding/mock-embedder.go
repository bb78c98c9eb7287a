package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/hyperjump/ragdesk/pkg/utils"
)

// MockEmbedder is a deterministic embedder for tests and offline runs. Each word is padded and
// split into character trigrams which are hashed into the vector, so texts sharing words get a
// positive cosine similarity and the same text always gets the same embedding.
type MockEmbedder struct {
	dimensions int
	fail       error
}

// NewMockEmbedder returns an embedder that produces deterministic embeddings of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockEmbedder{dimensions: dimensions}
}

// FailWith makes every later call return err. Used to simulate provider outages.
func (e *MockEmbedder) FailWith(err error) *MockEmbedder {
	e.fail = err
	return e
}

// Name returns the provider name.
func (e *MockEmbedder) Name() string { return "mock" }

// Embed returns the trigram feature vector of text, L2-normalised.
func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.fail != nil {
		return nil, e.fail
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	emb := make([]float32, e.dimensions)
	for _, word := range mockWords(text) {
		padded := []rune("#" + word + "#")
		for i := 0; i+3 <= len(padded); i++ {
			h := fnv.New32a()
			_, _ = h.Write([]byte(string(padded[i : i+3])))
			emb[int(h.Sum32()%uint32(e.dimensions))]++
		}
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// EmbedBatch calls Embed for each text.
func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}

// mockWords lowercases text and splits it on anything that is not a letter or digit.
func mockWords(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
