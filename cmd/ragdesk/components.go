package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/ragdesk/internal/agent"
	"github.com/hyperjump/ragdesk/internal/config"
	"github.com/hyperjump/ragdesk/internal/embedding"
	"github.com/hyperjump/ragdesk/internal/fileid"
	"github.com/hyperjump/ragdesk/internal/indexer"
	"github.com/hyperjump/ragdesk/internal/models"
	"github.com/hyperjump/ragdesk/internal/search"
	"github.com/hyperjump/ragdesk/internal/storage"
	"github.com/hyperjump/ragdesk/internal/vector"
)

// Components holds initialized services.
type Components struct {
	Storage   storage.Storage
	Generator *embedding.Generator
	Conns     *vector.ConnectionManager
	Indexer   *indexer.Indexer
	Engine    *search.Engine
	Tool      *agent.VectorQueryTool
}

// Close releases the store handle first so an in-memory store is saved before exit.
func (c *Components) Close() {
	if c.Conns != nil {
		_ = c.Conns.Close()
	}
	if c.Generator != nil {
		_ = c.Generator.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	strategy, err := fileid.ParseStrategy(cfg.Ingest.DocumentID)
	if err != nil {
		return nil, err
	}
	chunker, err := indexer.NewChunker(indexer.ChunkOptions{
		Size:         cfg.Chunking.Size,
		Overlap:      cfg.Chunking.OverlapOrDefault(),
		Separator:    cfg.Chunking.Separator,
		StripHeaders: cfg.Chunking.StripHeaders,
	})
	if err != nil {
		return nil, err
	}
	dial, err := vector.NewDialer(cfg)
	if err != nil {
		return nil, err
	}

	c := &Components{}
	c.Storage, err = storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Generator, err = embedding.NewGeneratorFromConfig(ctx, cfg, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize embeddings: %w", err)
	}
	c.Conns = vector.NewConnectionManager(dial, vector.WithConnectionLogger(logger))

	spec := indexer.IndexSpec{
		Name:      cfg.Index.Name,
		Dimension: cfg.Embedding.Dimension,
		Metric:    models.Metric(cfg.Index.Metric),
	}
	c.Indexer = indexer.NewIndexer(c.Generator, c.Conns, chunker, spec,
		indexer.WithRegistry(c.Storage),
		indexer.WithIDStrategy(strategy),
		indexer.WithLogger(logger),
	)
	c.Engine = search.NewEngine(c.Generator, c.Conns, cfg.Index.Name, search.WithLogger(logger))
	c.Tool = agent.NewVectorQueryTool(c.Engine, agent.WithLogger(logger))

	logger.Info("components initialized",
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.String("vector_store", cfg.VectorStore.Type),
		zap.String("index", spec.Name),
		zap.Int("dimension", spec.Dimension),
	)
	return c, nil
}
