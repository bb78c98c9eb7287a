package config

import (
	"errors"
	"reflect"
	"testing"
)

func mapLookup(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestValidate(t *testing.T) {
	settings := map[string]Kind{
		"MODEL":     KindString,
		"DIMENSION": KindNumber,
		"INDEX":     KindString,
	}
	tests := []struct {
		name string
		env  map[string]string
		want []string
	}{
		{
			name: "all present",
			env:  map[string]string{"MODEL": "m", "DIMENSION": "1536", "INDEX": "docs"},
		},
		{
			name: "missing keys sorted",
			env:  map[string]string{"DIMENSION": "1536"},
			want: []string{"INDEX", "MODEL"},
		},
		{
			name: "blank counts as missing",
			env:  map[string]string{"MODEL": "  ", "DIMENSION": "8", "INDEX": "docs"},
			want: []string{"MODEL"},
		},
		{
			name: "mistyped number",
			env:  map[string]string{"MODEL": "m", "DIMENSION": "wide", "INDEX": "docs"},
			want: []string{"DIMENSION (must be a number)"},
		},
		{
			name: "everything wrong at once",
			env:  map[string]string{"DIMENSION": "1.5"},
			want: []string{"DIMENSION (must be a number)", "INDEX", "MODEL"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(settings, mapLookup(tt.env))
			if tt.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigurationError, got %v", err)
			}
			if !reflect.DeepEqual(cfgErr.Problems, tt.want) {
				t.Errorf("problems = %v, want %v", cfgErr.Problems, tt.want)
			}
		})
	}
}

func TestRequiredSettings(t *testing.T) {
	local := RequiredSettings(StoreMemory)
	if _, ok := local[EnvStoreBucketName]; ok {
		t.Error("memory store should not require bucket name")
	}
	if local[EnvEmbeddingDimension] != KindNumber {
		t.Error("dimension should be numeric")
	}
	cb := RequiredSettings(StoreCouchbase)
	for _, name := range []string{EnvStoreConnectionString, EnvStoreUsername, EnvStorePassword, EnvStoreBucketName, EnvStoreScopeName, EnvStoreCollectionName} {
		if _, ok := cb[name]; !ok {
			t.Errorf("couchbase should require %s", name)
		}
	}
	if _, ok := RequiredSettings(StoreQdrant)[EnvStoreConnectionString]; !ok {
		t.Error("qdrant should require a connection string")
	}
}

func TestConfigurationError_Message(t *testing.T) {
	err := &ConfigurationError{Problems: []string{"A", "B (must be a number)"}}
	want := "missing or invalid configuration: A, B (must be a number)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
