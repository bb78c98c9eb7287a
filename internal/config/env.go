package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variable names recognised as configuration overrides.
const (
	EnvEmbeddingProvider      = "EMBEDDING_PROVIDER"
	EnvEmbeddingModel         = "EMBEDDING_MODEL"
	EnvEmbeddingBaseURL       = "EMBEDDING_BASE_URL"
	EnvEmbeddingDimension     = "EMBEDDING_DIMENSION"
	EnvEmbeddingBatchSize     = "EMBEDDING_BATCH_SIZE"
	EnvChunkSize              = "CHUNK_SIZE"
	EnvChunkOverlap           = "CHUNK_OVERLAP"
	EnvIndexName              = "VECTOR_INDEX_NAME"
	EnvIndexMetric            = "VECTOR_INDEX_METRIC"
	EnvStoreType              = "VECTOR_STORE_TYPE"
	EnvStoreConnectionString  = "VECTOR_STORE_CONNECTION_STRING"
	EnvStoreUsername          = "VECTOR_STORE_USERNAME"
	EnvStorePassword          = "VECTOR_STORE_PASSWORD"
	EnvStoreBucketName        = "VECTOR_STORE_BUCKET_NAME"
	EnvStoreScopeName         = "VECTOR_STORE_SCOPE_NAME"
	EnvStoreCollectionName    = "VECTOR_STORE_COLLECTION_NAME"
	EnvServerPort             = "SERVER_PORT"
	EnvRedisAddr              = "REDIS_ADDR"
	EnvQueueURL               = "RABBITMQ_URL"
	legacyCouchbasePrefix     = "COUCHBASE_"
	vectorStoreSettingsPrefix = "VECTOR_STORE_"
)

// binding ties an environment variable to a config field. Exactly one of str, num or optNum is set.
type binding struct {
	name   string
	str    *string
	num    *int
	optNum **int
}

func bindings(cfg *Config) []binding {
	return []binding{
		{name: EnvEmbeddingProvider, str: &cfg.Embedding.Provider},
		{name: EnvEmbeddingModel, str: &cfg.Embedding.Model},
		{name: EnvEmbeddingBaseURL, str: &cfg.Embedding.BaseURL},
		{name: EnvEmbeddingDimension, num: &cfg.Embedding.Dimension},
		{name: EnvEmbeddingBatchSize, num: &cfg.Embedding.BatchSize},
		{name: EnvChunkSize, num: &cfg.Chunking.Size},
		{name: EnvChunkOverlap, optNum: &cfg.Chunking.Overlap},
		{name: EnvIndexName, str: &cfg.Index.Name},
		{name: EnvIndexMetric, str: &cfg.Index.Metric},
		{name: EnvStoreType, str: &cfg.VectorStore.Type},
		{name: EnvStoreConnectionString, str: &cfg.VectorStore.ConnectionString},
		{name: EnvStoreUsername, str: &cfg.VectorStore.Username},
		{name: EnvStorePassword, str: &cfg.VectorStore.Password},
		{name: EnvStoreBucketName, str: &cfg.VectorStore.BucketName},
		{name: EnvStoreScopeName, str: &cfg.VectorStore.ScopeName},
		{name: EnvStoreCollectionName, str: &cfg.VectorStore.CollectionName},
		{name: EnvServerPort, num: &cfg.Server.Port},
		{name: EnvRedisAddr, str: &cfg.Cache.RedisAddr},
		{name: EnvQueueURL, str: &cfg.Queue.URL},
	}
}

// value returns the current field value rendered as a string, and whether it is set.
func (b binding) value() (string, bool) {
	switch {
	case b.str != nil:
		return *b.str, *b.str != ""
	case b.num != nil:
		return strconv.Itoa(*b.num), *b.num != 0
	case b.optNum != nil && *b.optNum != nil:
		return strconv.Itoa(**b.optNum), true
	}
	return "", false
}

func (b binding) set(raw string) error {
	switch {
	case b.str != nil:
		*b.str = raw
	case b.num != nil:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return err
		}
		*b.num = n
	case b.optNum != nil:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return err
		}
		*b.optNum = &n
	}
	return nil
}

// lookupEnv reads name from the environment, falling back to the legacy COUCHBASE_* alias for
// vector store settings.
func lookupEnv(name string) (string, bool) {
	if v, ok := os.LookupEnv(name); ok {
		return v, true
	}
	if len(name) > len(vectorStoreSettingsPrefix) && name[:len(vectorStoreSettingsPrefix)] == vectorStoreSettingsPrefix {
		return os.LookupEnv(legacyCouchbasePrefix + name[len(vectorStoreSettingsPrefix):])
	}
	return "", false
}

// overrideByEnv copies environment values over file values. Values that fail to parse are kept
// aside so validation can report them instead of silently dropping them.
func overrideByEnv(cfg *Config) {
	for _, b := range bindings(cfg) {
		raw, ok := lookupEnv(b.name)
		if !ok || raw == "" {
			continue
		}
		if err := b.set(raw); err != nil {
			if cfg.invalidEnv == nil {
				cfg.invalidEnv = make(map[string]string)
			}
			cfg.invalidEnv[b.name] = raw
		}
	}
}

// loadDotEnv loads .env from the config directory and the working directory when present.
// Variables already in the environment win.
func loadDotEnv(configDir string) error {
	seen := make(map[string]bool)
	for _, p := range []string{filepath.Join(configDir, ".env"), ".env"} {
		abs, err := filepath.Abs(p)
		if err != nil || seen[abs] {
			continue
		}
		seen[abs] = true
		if _, err := os.Stat(abs); err != nil {
			continue
		}
		if err := godotenv.Load(abs); err != nil {
			return fmt.Errorf("failed to load %s: %w", abs, err)
		}
	}
	return nil
}

// Settings returns the effective configuration keyed by environment variable name. Unset
// fields are absent; values from the environment that failed to parse appear verbatim.
func (c *Config) Settings() map[string]string {
	out := make(map[string]string)
	for _, b := range bindings(c) {
		if v, ok := b.value(); ok {
			out[b.name] = v
		}
	}
	for k, v := range c.invalidEnv {
		out[k] = v
	}
	return out
}

// Lookup returns the effective value of a setting by environment variable name.
func (c *Config) Lookup(name string) (string, bool) {
	v, ok := c.Settings()[name]
	return v, ok
}
