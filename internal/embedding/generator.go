package embedding

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/ragdesk/internal/models"
)

// ErrEmptyInput is returned when Generate is called without texts.
var ErrEmptyInput = errors.New("no texts to embed")

// Generator embeds texts in fixed-size batches, running batches in parallel and writing each
// batch back at its original offset so output order matches input order.
type Generator struct {
	embedder    Embedder
	model       string
	batchSize   int
	concurrency int
	timeout     time.Duration
	cache       QueryCache
	logger      *zap.Logger
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithBatchSize sets how many texts are sent per provider call.
func WithBatchSize(n int) GeneratorOption {
	return func(g *Generator) {
		if n > 0 {
			g.batchSize = n
		}
	}
}

// WithConcurrency sets how many batches may be in flight at once.
func WithConcurrency(n int) GeneratorOption {
	return func(g *Generator) {
		if n > 0 {
			g.concurrency = n
		}
	}
}

// WithTimeout bounds each batch, including any retries the embedder makes.
func WithTimeout(d time.Duration) GeneratorOption {
	return func(g *Generator) { g.timeout = d }
}

// WithQueryCache caches GenerateQuery results.
func WithQueryCache(c QueryCache) GeneratorOption {
	return func(g *Generator) { g.cache = c }
}

// WithModel sets the model name used in cache keys.
func WithModel(model string) GeneratorOption {
	return func(g *Generator) { g.model = model }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) GeneratorOption {
	return func(g *Generator) { g.logger = l }
}

// NewGenerator wraps an embedder. Defaults: batch size 16, one batch at a time, no timeout.
func NewGenerator(e Embedder, opts ...GeneratorOption) *Generator {
	g := &Generator{
		embedder:    e,
		batchSize:   16,
		concurrency: 1,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Dimensions returns the vector length every output has.
func (g *Generator) Dimensions() int {
	return g.embedder.Dimensions()
}

// Generate returns one vector per text, in input order. Any failing batch aborts the whole call
// with an *models.EmbeddingProviderError and no partial output.
func (g *Generator) Generate(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	dim := g.embedder.Dimensions()
	name := providerName(g.embedder)
	out := make([][]float32, len(texts))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.concurrency)
	for start := 0; start < len(texts); start += g.batchSize {
		start := start
		end := min(start+g.batchSize, len(texts))
		eg.Go(func() error {
			fail := func(err error) error {
				return &models.EmbeddingProviderError{Provider: name, BatchStart: start, BatchSize: end - start, Err: err}
			}
			vecs, err := g.embedBatch(egCtx, texts[start:end])
			if err != nil {
				return fail(err)
			}
			if len(vecs) != end-start {
				return fail(fmt.Errorf("provider returned %d vectors for %d texts", len(vecs), end-start))
			}
			for i, v := range vecs {
				if len(v) != dim {
					return fail(&models.DimensionMismatchError{Got: len(v), Expected: dim})
				}
				out[start+i] = v
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		g.logger.Error("embedding generation failed", zap.Int("texts", len(texts)), zap.Error(err))
		return nil, err
	}
	return out, nil
}

func (g *Generator) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	return g.embedder.EmbedBatch(ctx, batch)
}

// GenerateQuery embeds a single query text, consulting the query cache first. Cache failures
// are logged and do not fail the call.
func (g *Generator) GenerateQuery(ctx context.Context, text string) ([]float32, error) {
	var key string
	if g.cache != nil {
		key = CacheKey(g.model, text)
		v, ok, err := g.cache.Get(ctx, key)
		if err != nil {
			g.logger.Warn("query cache lookup failed", zap.Error(err))
		} else if ok && len(v) == g.embedder.Dimensions() {
			return v, nil
		}
	}
	vecs, err := g.Generate(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if g.cache != nil {
		if err := g.cache.Set(ctx, key, vecs[0]); err != nil {
			g.logger.Warn("query cache store failed", zap.Error(err))
		}
	}
	return vecs[0], nil
}

// Close closes the underlying embedder and the query cache when it holds a connection.
func (g *Generator) Close() error {
	err := g.embedder.Close()
	if c, ok := g.cache.(io.Closer); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
