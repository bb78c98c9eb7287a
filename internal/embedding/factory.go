package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/ragdesk/internal/config"
)

// NewFromConfig creates the embedder selected by cfg.Provider.
func NewFromConfig(cfg config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIEmbedder(OpenAIOptions{
			BaseURL:    cfg.BaseURL,
			APIKeyEnv:  cfg.APIKeyEnv,
			Model:      cfg.Model,
			Dimensions: cfg.Dimension,
			Timeout:    cfg.Timeout(),
			MaxRetries: cfg.MaxRetries,
			Logger:     logger,
		})
	case "onnx":
		e, err := NewONNXEmbedder(ONNXOptions{
			ModelPath:  cfg.ModelPath,
			Dimensions: cfg.Dimension,
			MaxTokens:  cfg.MaxTokens,
		})
		if err != nil {
			return nil, err
		}
		return e, nil
	case "mock":
		return NewMockEmbedder(cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// NewQueryCacheFromConfig returns a Redis cache when an address is configured, otherwise an
// in-process LRU sized by the embedding cache size.
func NewQueryCacheFromConfig(ctx context.Context, cfg *config.Config) (QueryCache, error) {
	if cfg.Cache.RedisAddr == "" {
		return NewEmbeddingCache(cfg.Embedding.CacheSize), nil
	}
	client, err := NewRedisClient(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
	if err != nil {
		return nil, err
	}
	return NewRedisCache(client, time.Duration(cfg.Cache.TTLSecs)*time.Second), nil
}

// BatchDeadline bounds one batch across every provider attempt: each attempt gets callTimeout
// and retries wait for the backoff in between. A zero callTimeout means no deadline.
func BatchDeadline(callTimeout time.Duration, maxRetries int) time.Duration {
	if callTimeout <= 0 {
		return 0
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	d := callTimeout * time.Duration(maxRetries+1)
	for attempt := 0; attempt < maxRetries; attempt++ {
		d += retryDelay(attempt)
	}
	return d
}

// NewGeneratorFromConfig builds the embedder and wraps it in a Generator.
func NewGeneratorFromConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Generator, error) {
	e, err := NewFromConfig(cfg.Embedding, logger)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	cache, err := NewQueryCacheFromConfig(ctx, cfg)
	if err != nil {
		_ = e.Close()
		return nil, fmt.Errorf("create query cache: %w", err)
	}
	return NewGenerator(e,
		WithModel(cfg.Embedding.Model),
		WithBatchSize(cfg.Embedding.BatchSize),
		WithConcurrency(cfg.Embedding.Concurrency),
		WithTimeout(BatchDeadline(cfg.Embedding.Timeout(), cfg.Embedding.MaxRetries)),
		WithQueryCache(cache),
		WithLogger(logger),
	), nil
}
