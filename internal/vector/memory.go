package vector

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hyperjump/ragdesk/internal/models"
)

// MemoryStore is an in-process vector store using brute-force search. It can persist its
// contents to a file, loaded on creation and written on Close.
type MemoryStore struct {
	path    string
	indexes map[string]*memIndex
	mu      sync.RWMutex
}

type memIndex struct {
	dimension int
	metric    models.Metric
	ids       []string
	records   map[string]*memRecord
}

type memRecord struct {
	vector   []float32
	metadata map[string]any
}

// NewMemoryStore creates an empty store. When path is non-empty and the file exists, its
// contents are loaded.
func NewMemoryStore(path string) (*MemoryStore, error) {
	m := &MemoryStore{path: path, indexes: make(map[string]*memIndex)}
	if err := m.Load(path); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MemoryStore) CreateIndex(_ context.Context, name string, dimension int, metric models.Metric) error {
	if dimension <= 0 {
		return fmt.Errorf("dimensions must be positive")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.indexes[name]; ok {
		return models.ErrIndexAlreadyExists
	}
	m.indexes[name] = &memIndex{dimension: dimension, metric: metric, records: make(map[string]*memRecord)}
	return nil
}

func (m *MemoryStore) Upsert(_ context.Context, index string, records []models.IndexRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, ok := m.indexes[index]
	if !ok {
		return fmt.Errorf("index %q not found", index)
	}
	for _, r := range records {
		if len(r.Vector) != idx.dimension {
			return &models.DimensionMismatchError{ID: r.ID, Got: len(r.Vector), Expected: idx.dimension}
		}
	}
	for _, r := range records {
		vec := make([]float32, idx.dimension)
		copy(vec, r.Vector)
		if _, exists := idx.records[r.ID]; !exists {
			idx.ids = append(idx.ids, r.ID)
		}
		idx.records[r.ID] = &memRecord{vector: vec, metadata: cloneMetadata(r.Metadata)}
	}
	return nil
}

func (m *MemoryStore) Query(_ context.Context, index string, vector []float32, topK int) ([]models.QueryResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx, ok := m.indexes[index]
	if !ok {
		return nil, fmt.Errorf("index %q not found", index)
	}
	if len(vector) != idx.dimension {
		return nil, &models.DimensionMismatchError{Got: len(vector), Expected: idx.dimension}
	}
	results := make([]models.QueryResult, 0, len(idx.ids))
	for _, id := range idx.ids {
		rec := idx.records[id]
		results = append(results, models.QueryResult{
			ID:       id,
			Score:    Score(idx.metric, vector, rec.vector),
			Metadata: cloneMetadata(rec.metadata),
		})
	}
	return topResults(results, topK), nil
}

func (m *MemoryStore) Delete(_ context.Context, index string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, ok := m.indexes[index]
	if !ok {
		return nil
	}
	for _, id := range ids {
		delete(idx.records, id)
	}
	kept := idx.ids[:0]
	for _, id := range idx.ids {
		if _, ok := idx.records[id]; ok {
			kept = append(kept, id)
		}
	}
	idx.ids = kept
	return nil
}

func (m *MemoryStore) DeleteByDocument(_ context.Context, index, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, ok := m.indexes[index]
	if !ok {
		return nil
	}
	kept := idx.ids[:0]
	for _, id := range idx.ids {
		if documentIDOf(idx.records[id].metadata) == documentID {
			delete(idx.records, id)
			continue
		}
		kept = append(kept, id)
	}
	idx.ids = kept
	return nil
}

// Count returns the number of records in index.
func (m *MemoryStore) Count(_ context.Context, index string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx, ok := m.indexes[index]
	if !ok {
		return 0, nil
	}
	return len(idx.ids), nil
}

// Close persists the store when it was created with a path.
func (m *MemoryStore) Close() error {
	return m.Save(m.path)
}

// Save writes all indexes to path, creating the directory if needed. Format, little endian:
// index count (4); per index: name, dimension (4), metric, record count (4); per record: id,
// vector (dimension*4 bytes), metadata JSON. Strings are a 4-byte length then bytes.
func (m *MemoryStore) Save(path string) error {
	if path == "" {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create vector dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create vector file: %w", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	names := make([]string, 0, len(m.indexes))
	for name := range m.indexes {
		names = append(names, name)
	}
	sort.Strings(names)
	if err := writeUint32(w, uint32(len(names))); err != nil {
		return fmt.Errorf("write index count: %w", err)
	}
	for _, name := range names {
		idx := m.indexes[name]
		if err := writeString(w, name); err != nil {
			return fmt.Errorf("write index name: %w", err)
		}
		if err := writeUint32(w, uint32(idx.dimension)); err != nil {
			return fmt.Errorf("write dimensions: %w", err)
		}
		if err := writeString(w, string(idx.metric)); err != nil {
			return fmt.Errorf("write metric: %w", err)
		}
		if err := writeUint32(w, uint32(len(idx.ids))); err != nil {
			return fmt.Errorf("write count: %w", err)
		}
		for _, id := range idx.ids {
			rec := idx.records[id]
			meta, err := json.Marshal(rec.metadata)
			if err != nil {
				return fmt.Errorf("encode metadata for %s: %w", id, err)
			}
			if err := writeString(w, id); err != nil {
				return fmt.Errorf("write id: %w", err)
			}
			if _, err := w.Write(float32SliceToBytes(rec.vector)); err != nil {
				return fmt.Errorf("write vector: %w", err)
			}
			if err := writeString(w, string(meta)); err != nil {
				return fmt.Errorf("write metadata: %w", err)
			}
		}
	}
	return w.Flush()
}

// Load replaces the store contents with the file at path. A missing file is not an error.
func (m *MemoryStore) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open vector file: %w", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	n, err := readUint32(r)
	if err != nil {
		return fmt.Errorf("read index count: %w", err)
	}
	indexes := make(map[string]*memIndex, n)
	for i := uint32(0); i < n; i++ {
		name, err := readString(r)
		if err != nil {
			return fmt.Errorf("read index name: %w", err)
		}
		dim, err := readUint32(r)
		if err != nil {
			return fmt.Errorf("read dimensions: %w", err)
		}
		metric, err := readString(r)
		if err != nil {
			return fmt.Errorf("read metric: %w", err)
		}
		count, err := readUint32(r)
		if err != nil {
			return fmt.Errorf("read count: %w", err)
		}
		idx := &memIndex{
			dimension: int(dim),
			metric:    models.Metric(metric),
			ids:       make([]string, 0, count),
			records:   make(map[string]*memRecord, count),
		}
		buf := make([]byte, int(dim)*4)
		for j := uint32(0); j < count; j++ {
			id, err := readString(r)
			if err != nil {
				return fmt.Errorf("read id: %w", err)
			}
			if _, err := io.ReadFull(r, buf); err != nil {
				return fmt.Errorf("read vector: %w", err)
			}
			raw, err := readString(r)
			if err != nil {
				return fmt.Errorf("read metadata: %w", err)
			}
			var meta map[string]any
			if err := json.Unmarshal([]byte(raw), &meta); err != nil {
				return fmt.Errorf("decode metadata for %s: %w", id, err)
			}
			idx.ids = append(idx.ids, id)
			idx.records[id] = &memRecord{vector: bytesToFloat32Slice(buf), metadata: meta}
		}
		indexes[name] = idx
	}

	m.mu.Lock()
	m.indexes = indexes
	m.mu.Unlock()
	return nil
}

func writeUint32(w io.Writer, v uint32) error {
	return binary.Write(w, binary.LittleEndian, v)
}

func readUint32(r io.Reader) (uint32, error) {
	var v uint32
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

func writeString(w io.Writer, s string) error {
	if err := writeUint32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}

// topResults sorts by score, best first, keeping insertion order for ties, and cuts to topK.
func topResults(results []models.QueryResult, topK int) []models.QueryResult {
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topK >= 0 && topK < len(results) {
		results = results[:topK]
	}
	return results
}

func cloneMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func documentIDOf(meta map[string]any) string {
	id, _ := meta[models.MetaDocumentID].(string)
	return id
}
