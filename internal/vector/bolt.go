package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/hyperjump/ragdesk/internal/models"
)

var bucketIndexes = []byte("indexes")

// BoltStore keeps vectors in a single bbolt file, one bucket per index, searched by brute force.
type BoltStore struct {
	db *bbolt.DB
}

type boltIndexMeta struct {
	Dimension int           `json:"dimension"`
	Metric    models.Metric `json:"metric"`
}

type boltRecord struct {
	Vector   []float32      `json:"vector"`
	Metadata map[string]any `json:"metadata"`
}

// OpenBoltStore opens (or creates) the store at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create vector dir: %w", err)
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, &models.VectorStoreConnectionError{Store: "bolt", Op: "open", Err: err}
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketIndexes)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init bolt store: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func recordBucket(index string) []byte {
	return []byte("idx:" + index)
}

func (s *BoltStore) CreateIndex(_ context.Context, name string, dimension int, metric models.Metric) error {
	if dimension <= 0 {
		return fmt.Errorf("dimensions must be positive")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketIndexes)
		if meta.Get([]byte(name)) != nil {
			return models.ErrIndexAlreadyExists
		}
		data, err := json.Marshal(boltIndexMeta{Dimension: dimension, Metric: metric})
		if err != nil {
			return err
		}
		if err := meta.Put([]byte(name), data); err != nil {
			return err
		}
		_, err = tx.CreateBucketIfNotExists(recordBucket(name))
		return err
	})
}

func (s *BoltStore) indexMeta(tx *bbolt.Tx, index string) (*boltIndexMeta, *bbolt.Bucket, error) {
	raw := tx.Bucket(bucketIndexes).Get([]byte(index))
	b := tx.Bucket(recordBucket(index))
	if raw == nil || b == nil {
		return nil, nil, fmt.Errorf("index %q not found", index)
	}
	var meta boltIndexMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, nil, fmt.Errorf("decode index %q: %w", index, err)
	}
	return &meta, b, nil
}

func (s *BoltStore) Upsert(_ context.Context, index string, records []models.IndexRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		meta, b, err := s.indexMeta(tx, index)
		if err != nil {
			return err
		}
		for _, r := range records {
			if len(r.Vector) != meta.Dimension {
				return &models.DimensionMismatchError{ID: r.ID, Got: len(r.Vector), Expected: meta.Dimension}
			}
			data, err := json.Marshal(boltRecord{Vector: r.Vector, Metadata: r.Metadata})
			if err != nil {
				return fmt.Errorf("encode %s: %w", r.ID, err)
			}
			if err := b.Put([]byte(r.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Query scans every record in key order; ties therefore rank by record id.
func (s *BoltStore) Query(_ context.Context, index string, vector []float32, topK int) ([]models.QueryResult, error) {
	var results []models.QueryResult
	err := s.db.View(func(tx *bbolt.Tx) error {
		meta, b, err := s.indexMeta(tx, index)
		if err != nil {
			return err
		}
		if len(vector) != meta.Dimension {
			return &models.DimensionMismatchError{Got: len(vector), Expected: meta.Dimension}
		}
		return b.ForEach(func(k, v []byte) error {
			var rec boltRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode %s: %w", k, err)
			}
			results = append(results, models.QueryResult{
				ID:       string(k),
				Score:    Score(meta.Metric, vector, rec.Vector),
				Metadata: rec.Metadata,
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return topResults(results, topK), nil
}

func (s *BoltStore) Delete(_ context.Context, index string, ids []string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(recordBucket(index))
		if b == nil {
			return nil
		}
		for _, id := range ids {
			if err := b.Delete([]byte(id)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) DeleteByDocument(_ context.Context, index, documentID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(recordBucket(index))
		if b == nil {
			return nil
		}
		var doomed [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var rec boltRecord
			if err := json.Unmarshal(v, &rec); err != nil || documentIDOf(rec.Metadata) != documentID {
				return nil
			}
			doomed = append(doomed, bytes.Clone(k))
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range doomed {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// Count returns the number of records in index.
func (s *BoltStore) Count(_ context.Context, index string) (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket(recordBucket(index)); b != nil {
			n = b.Stats().KeyN
		}
		return nil
	})
	return n, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
