package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/hyperjump/ragdesk/internal/models"
)

// Kind is the expected type of a setting value.
type Kind int

const (
	KindString Kind = iota
	KindNumber
)

// ConfigurationError lists every missing or mistyped setting found in one validation pass.
type ConfigurationError struct {
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return "missing or invalid configuration: " + strings.Join(e.Problems, ", ")
}

// RequiredSettings returns the settings that must be present for the given vector store type.
// Remote stores additionally need their connection settings.
func RequiredSettings(storeType string) map[string]Kind {
	required := map[string]Kind{
		EnvEmbeddingModel:     KindString,
		EnvEmbeddingDimension: KindNumber,
		EnvEmbeddingBatchSize: KindNumber,
		EnvChunkSize:          KindNumber,
		EnvChunkOverlap:       KindNumber,
		EnvIndexName:          KindString,
		EnvIndexMetric:        KindString,
	}
	switch storeType {
	case StoreCouchbase:
		required[EnvStoreConnectionString] = KindString
		required[EnvStoreUsername] = KindString
		required[EnvStorePassword] = KindString
		required[EnvStoreBucketName] = KindString
		required[EnvStoreScopeName] = KindString
		required[EnvStoreCollectionName] = KindString
	case StoreQdrant:
		required[EnvStoreConnectionString] = KindString
	}
	return required
}

// Validate checks that every setting is present and, for numbers, parses as an integer.
// It returns nil or a *ConfigurationError naming all offending keys in sorted order.
func Validate(settings map[string]Kind, lookup func(string) (string, bool)) error {
	problems := check(settings, lookup)
	if len(problems) == 0 {
		return nil
	}
	return &ConfigurationError{Problems: problems}
}

func check(settings map[string]Kind, lookup func(string) (string, bool)) []string {
	names := make([]string, 0, len(settings))
	for name := range settings {
		names = append(names, name)
	}
	sort.Strings(names)

	var problems []string
	for _, name := range names {
		v, ok := lookup(name)
		if !ok || strings.TrimSpace(v) == "" {
			problems = append(problems, name)
			continue
		}
		if settings[name] == KindNumber {
			if _, err := strconv.Atoi(strings.TrimSpace(v)); err != nil {
				problems = append(problems, name+" (must be a number)")
			}
		}
	}
	return problems
}

// Validate checks the loaded configuration: required settings first, then value constraints
// for the settings that are present. All problems are reported together.
func (c *Config) Validate() error {
	settings := c.Settings()
	lookup := func(name string) (string, bool) {
		v, ok := settings[name]
		return v, ok
	}
	problems := check(RequiredSettings(c.VectorStore.Type), lookup)
	bad := make(map[string]bool, len(problems))
	for _, p := range problems {
		bad[strings.SplitN(p, " ", 2)[0]] = true
	}
	constraint := func(name string, ok bool, msg string) {
		if bad[name] || ok {
			return
		}
		if _, present := settings[name]; !present && name != EnvStoreType && name != EnvEmbeddingProvider {
			return
		}
		problems = append(problems, fmt.Sprintf("%s (%s)", name, msg))
	}

	constraint(EnvEmbeddingDimension, c.Embedding.Dimension > 0, "must be positive")
	constraint(EnvEmbeddingBatchSize, c.Embedding.BatchSize > 0, "must be positive")
	constraint(EnvChunkSize, c.Chunking.Size > 0, "must be positive")
	overlap := c.Chunking.OverlapOrDefault()
	constraint(EnvChunkOverlap, overlap >= 0 && (c.Chunking.Size <= 0 || overlap < c.Chunking.Size),
		"must be at least 0 and less than "+EnvChunkSize)
	constraint(EnvIndexMetric, models.Metric(c.Index.Metric).Valid(), "must be one of cosine, euclidean, dotproduct")
	switch c.VectorStore.Type {
	case StoreMemory, StoreBolt, StoreQdrant, StoreCouchbase:
	default:
		constraint(EnvStoreType, false, "must be one of memory, bolt, qdrant, couchbase")
	}
	switch c.Embedding.Provider {
	case "openai", "onnx", "mock":
	default:
		constraint(EnvEmbeddingProvider, false, "must be one of openai, onnx, mock")
	}
	switch c.Ingest.DocumentID {
	case "filename", "content_hash", "uuid":
	default:
		problems = append(problems, fmt.Sprintf("ingest.document_id %q (must be one of filename, content_hash, uuid)", c.Ingest.DocumentID))
	}

	if len(problems) == 0 {
		return nil
	}
	return &ConfigurationError{Problems: problems}
}
