package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validYAML = `
embedding:
  provider: mock
  model: "text-embedding-3-small"
  dimension: 64
  batch_size: 8
chunking:
  size: 512
  overlap: 50
index:
  name: "docs"
  metric: "cosine"
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "test.db"
`+validYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.DatabasePath == "" {
		t.Error("database_path should be set")
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
	if cfg.Embedding.Dimension != 64 || cfg.Chunking.OverlapOrDefault() != 50 {
		t.Errorf("unexpected embedding/chunking: %+v %+v", cfg.Embedding, cfg.Chunking)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "config.toml", `
debug = true

[embedding]
provider = "mock"
model = "mini"
dimension = 32
batch_size = 4

[chunking]
size = 100
overlap = 0

[index]
name = "docs"
metric = "dotproduct"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
	if cfg.Chunking.Overlap == nil || *cfg.Chunking.Overlap != 0 {
		t.Errorf("explicit zero overlap should be kept, got %v", cfg.Chunking.Overlap)
	}
	if cfg.Index.Metric != "dotproduct" {
		t.Errorf("metric = %s", cfg.Index.Metric)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
storage:
  database_path: "./data/db/documents.db"
ingest:
  watch_dir: "./inbox"
`)
	dir := filepath.Dir(path)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	wantDB := filepath.Join(dir, "data", "db", "documents.db")
	if cfg.Storage.DatabasePath != wantDB {
		t.Errorf("database_path = %s, want %s", cfg.Storage.DatabasePath, wantDB)
	}
	wantWatch := filepath.Join(dir, "inbox")
	if cfg.Ingest.WatchDir != wantWatch {
		t.Errorf("watch_dir = %s, want %s", cfg.Ingest.WatchDir, wantWatch)
	}
}

func TestLoad_envOverrides(t *testing.T) {
	t.Setenv(EnvIndexName, "from-env")
	t.Setenv(EnvEmbeddingDimension, "128")
	t.Setenv("COUCHBASE_BUCKET_NAME", "legacy-bucket")
	path := writeConfig(t, "config.yaml", validYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Index.Name != "from-env" {
		t.Errorf("index name = %s, want from-env", cfg.Index.Name)
	}
	if cfg.Embedding.Dimension != 128 {
		t.Errorf("dimension = %d, want 128", cfg.Embedding.Dimension)
	}
	if cfg.VectorStore.BucketName != "legacy-bucket" {
		t.Errorf("legacy alias not applied: %q", cfg.VectorStore.BucketName)
	}
}

func TestLoad_dotEnv(t *testing.T) {
	path := writeConfig(t, "config.yaml", validYAML)
	envPath := filepath.Join(filepath.Dir(path), ".env")
	if err := os.WriteFile(envPath, []byte("VECTOR_INDEX_METRIC=euclidean\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv(EnvIndexMetric) })
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Index.Metric != "euclidean" {
		t.Errorf("metric = %s, want euclidean from .env", cfg.Index.Metric)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" || cfg.Server.Port != 8080 {
		t.Errorf("default server: %+v", cfg.Server)
	}
	if cfg.Embedding.APIKeyEnv != DefaultAPIKeyEnv {
		t.Errorf("default api_key_env: got %s", cfg.Embedding.APIKeyEnv)
	}
	if cfg.VectorStore.Type != StoreMemory {
		t.Errorf("default store type: got %s", cfg.VectorStore.Type)
	}
	if cfg.Ingest.DocumentID != "filename" {
		t.Errorf("default document id strategy: got %s", cfg.Ingest.DocumentID)
	}
	if cfg.Embedding.Model != "" || cfg.Embedding.Dimension != 0 || cfg.Chunking.Size != 0 || cfg.Index.Name != "" {
		t.Error("required settings must not receive defaults")
	}
}

func TestConfig_ValidateReportsAllMissing(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.VectorStore.Type = StoreCouchbase
	err := cfg.Validate()
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	for _, name := range []string{EnvEmbeddingModel, EnvChunkSize, EnvIndexName, EnvStoreBucketName, EnvStoreCollectionName} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error should name %s: %v", name, err)
		}
	}
}

func TestConfig_ValidateInvalidEnvNumber(t *testing.T) {
	t.Setenv(EnvChunkSize, "large")
	cfg, err := Load(writeConfig(t, "config.yaml", validYAML))
	if err != nil {
		t.Fatal(err)
	}
	err = cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "CHUNK_SIZE (must be a number)") {
		t.Errorf("expected mistyped CHUNK_SIZE, got %v", err)
	}
}

func TestConfig_ValidateConstraints(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.yaml", validYAML))
	if err != nil {
		t.Fatal(err)
	}
	overlap := 600
	cfg.Chunking.Overlap = &overlap
	cfg.Index.Metric = "manhattan"
	err = cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), EnvChunkOverlap) || !strings.Contains(err.Error(), EnvIndexMetric) {
		t.Errorf("expected overlap and metric problems, got %v", err)
	}
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.yaml")
	cfg := &Config{
		Server:  ServerConfig{Host: "localhost", Port: 9090},
		Storage: StorageConfig{DatabasePath: "/tmp/db"},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
}
