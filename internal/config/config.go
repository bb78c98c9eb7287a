// Package config provides configuration loading, environment overrides and validation for ragdesk.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug       bool              `yaml:"debug" toml:"debug"`
	Server      ServerConfig      `yaml:"server" toml:"server"`
	Storage     StorageConfig     `yaml:"storage" toml:"storage"`
	Embedding   EmbeddingConfig   `yaml:"embedding" toml:"embedding"`
	Chunking    ChunkingConfig    `yaml:"chunking" toml:"chunking"`
	Index       IndexConfig       `yaml:"index" toml:"index"`
	VectorStore VectorStoreConfig `yaml:"vector_store" toml:"vector_store"`
	Ingest      IngestConfig      `yaml:"ingest" toml:"ingest"`
	Cache       CacheConfig       `yaml:"cache" toml:"cache"`
	Queue       QueueConfig       `yaml:"queue" toml:"queue"`

	// invalidEnv holds raw environment values that failed to parse, keyed by variable name.
	invalidEnv map[string]string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host" toml:"host"`
	Port int    `yaml:"port" toml:"port"`
}

// StorageConfig holds local persistence paths.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path" toml:"database_path"`
	VectorPath   string `yaml:"vector_path" toml:"vector_path"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider    string `yaml:"provider" toml:"provider"`
	Model       string `yaml:"model" toml:"model"`
	BaseURL     string `yaml:"base_url" toml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env" toml:"api_key_env"`
	Dimension   int    `yaml:"dimension" toml:"dimension"`
	BatchSize   int    `yaml:"batch_size" toml:"batch_size"`
	Concurrency int    `yaml:"concurrency" toml:"concurrency"`
	TimeoutSecs int    `yaml:"timeout_secs" toml:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" toml:"max_retries"`
	CacheSize   int    `yaml:"cache_size" toml:"cache_size"`
	ModelPath   string `yaml:"model_path" toml:"model_path"`
	MaxTokens   int    `yaml:"max_tokens" toml:"max_tokens"`
}

// Timeout returns the per-call provider timeout.
func (e *EmbeddingConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSecs) * time.Second
}

// ChunkingConfig holds chunker settings. Overlap is a pointer so that an explicit 0 is
// distinguishable from an unset value.
type ChunkingConfig struct {
	Size         int    `yaml:"size" toml:"size"`
	Overlap      *int   `yaml:"overlap" toml:"overlap"`
	Separator    string `yaml:"separator" toml:"separator"`
	StripHeaders bool   `yaml:"strip_headers" toml:"strip_headers"`
}

// OverlapOrDefault returns the configured overlap, or 0 when unset.
func (c *ChunkingConfig) OverlapOrDefault() int {
	if c.Overlap != nil {
		return *c.Overlap
	}
	return 0
}

// IndexConfig names the target vector index.
type IndexConfig struct {
	Name   string `yaml:"name" toml:"name"`
	Metric string `yaml:"metric" toml:"metric"`
}

// VectorStoreConfig selects the vector store and holds its connection settings.
// For qdrant, ConnectionString is the base URL and Password the API key.
type VectorStoreConfig struct {
	Type             string `yaml:"type" toml:"type"`
	ConnectionString string `yaml:"connection_string" toml:"connection_string"`
	Username         string `yaml:"username" toml:"username"`
	Password         string `yaml:"password" toml:"password"`
	BucketName       string `yaml:"bucket_name" toml:"bucket_name"`
	ScopeName        string `yaml:"scope_name" toml:"scope_name"`
	CollectionName   string `yaml:"collection_name" toml:"collection_name"`
	TimeoutSecs      int    `yaml:"timeout_secs" toml:"timeout_secs"`
}

// Timeout returns the per-call store timeout.
func (v *VectorStoreConfig) Timeout() time.Duration {
	return time.Duration(v.TimeoutSecs) * time.Second
}

// Remote reports whether the store type talks to an external server.
func (v *VectorStoreConfig) Remote() bool {
	return v.Type == StoreQdrant || v.Type == StoreCouchbase
}

// Supported vector store types.
const (
	StoreMemory    = "memory"
	StoreBolt      = "bolt"
	StoreQdrant    = "qdrant"
	StoreCouchbase = "couchbase"
)

// IngestConfig holds ingestion settings.
type IngestConfig struct {
	// DocumentID is the id strategy: "filename", "content_hash" or "uuid".
	DocumentID     string `yaml:"document_id" toml:"document_id"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes" toml:"max_upload_bytes"`
	WatchDir       string `yaml:"watch_dir" toml:"watch_dir"`
}

// CacheConfig configures the query embedding cache. An empty RedisAddr keeps the cache in process.
type CacheConfig struct {
	RedisAddr     string `yaml:"redis_addr" toml:"redis_addr"`
	RedisPassword string `yaml:"redis_password" toml:"redis_password"`
	RedisDB       int    `yaml:"redis_db" toml:"redis_db"`
	TTLSecs       int    `yaml:"ttl_secs" toml:"ttl_secs"`
}

// QueueConfig configures asynchronous ingestion over RabbitMQ. Empty URL disables it.
type QueueConfig struct {
	URL         string `yaml:"url" toml:"url"`
	IngestQueue string `yaml:"ingest_queue" toml:"ingest_queue"`
}

// Load reads the config file at path (YAML, or TOML when the extension is .toml), applies
// environment overrides (after loading any .env file) and defaults, and expands paths. An empty
// path means the configuration comes from the environment only.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if strings.EqualFold(filepath.Ext(path), ".toml") {
			if _, err := toml.Decode(string(data), &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	configDir := "."
	if path != "" {
		configDir = filepath.Dir(path)
	}
	if err := loadDotEnv(configDir); err != nil {
		return nil, err
	}
	overrideByEnv(&cfg)
	ApplyDefaults(&cfg)

	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.VectorPath = expandPath(cfg.Storage.VectorPath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	cfg.Ingest.WatchDir = expandPath(cfg.Ingest.WatchDir, configDir)

	return &cfg, nil
}

// Save writes the config to path as YAML.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// HTTPAddr returns the listen address of the HTTP server.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. Empty stays empty.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
