package config

// Default values for settings that are not required to be configured explicitly.
const (
	DefaultAPIKeyEnv      = "OPENAI_API_KEY"
	DefaultOpenAIBaseURL  = "https://api.openai.com/v1"
	DefaultIngestQueue    = "ragdesk.ingest"
	DefaultMaxUploadBytes = 32 << 20
)

// ApplyDefaults sets default values for any zero values in cfg. Settings that must be supplied
// by the operator (model, dimension, batch size, chunking, index and remote store connection)
// are left alone so that validation can report them.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/ragdesk/data/db/documents.db"
	}
	if cfg.Storage.VectorPath == "" {
		cfg.Storage.VectorPath = "/usr/local/var/ragdesk/data/vectors/vectors.db"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "openai"
	}
	if cfg.Embedding.APIKeyEnv == "" {
		cfg.Embedding.APIKeyEnv = DefaultAPIKeyEnv
	}
	if cfg.Embedding.BaseURL == "" && cfg.Embedding.Provider == "openai" {
		cfg.Embedding.BaseURL = DefaultOpenAIBaseURL
	}
	if cfg.Embedding.Concurrency == 0 {
		cfg.Embedding.Concurrency = 4
	}
	if cfg.Embedding.TimeoutSecs == 0 {
		cfg.Embedding.TimeoutSecs = 30
	}
	if cfg.Embedding.MaxRetries == 0 {
		cfg.Embedding.MaxRetries = 3
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/ragdesk/data/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = StoreMemory
	}
	if cfg.VectorStore.TimeoutSecs == 0 {
		cfg.VectorStore.TimeoutSecs = 10
	}
	if cfg.Ingest.DocumentID == "" {
		cfg.Ingest.DocumentID = "filename"
	}
	if cfg.Ingest.MaxUploadBytes == 0 {
		cfg.Ingest.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.Cache.TTLSecs == 0 {
		cfg.Cache.TTLSecs = 3600
	}
	if cfg.Queue.IngestQueue == "" {
		cfg.Queue.IngestQueue = DefaultIngestQueue
	}
}
