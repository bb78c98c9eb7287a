package vector

import (
	"context"
	"fmt"

	"github.com/hyperjump/ragdesk/internal/config"
	"github.com/hyperjump/ragdesk/internal/models"
)

// NewDialer returns the DialFunc for the configured store type.
func NewDialer(cfg *config.Config) (DialFunc, error) {
	vs := cfg.VectorStore
	switch vs.Type {
	case config.StoreMemory, "":
		path := cfg.Storage.VectorPath
		return func(context.Context) (Store, error) {
			return NewMemoryStore(path)
		}, nil
	case config.StoreBolt:
		path := cfg.Storage.VectorPath
		return func(context.Context) (Store, error) {
			return OpenBoltStore(path)
		}, nil
	case config.StoreQdrant:
		opts := QdrantOptions{URL: vs.ConnectionString, APIKey: vs.Password, Timeout: vs.Timeout()}
		return func(context.Context) (Store, error) {
			return NewQdrantStore(opts), nil
		}, nil
	case config.StoreCouchbase:
		opts := CouchbaseOptions{
			ConnectionString: vs.ConnectionString,
			Username:         vs.Username,
			Password:         vs.Password,
			BucketName:       vs.BucketName,
			ScopeName:        vs.ScopeName,
			CollectionName:   vs.CollectionName,
			Timeout:          vs.Timeout(),
			Metric:           models.Metric(cfg.Index.Metric),
		}
		return func(ctx context.Context) (Store, error) {
			return ConnectCouchbase(ctx, opts)
		}, nil
	default:
		return nil, fmt.Errorf("unknown vector store type: %s (supported: memory, bolt, qdrant, couchbase)", vs.Type)
	}
}
