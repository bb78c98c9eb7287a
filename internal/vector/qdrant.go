package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hyperjump/ragdesk/internal/models"
)

// payloadRecordID keeps the caller's record id; Qdrant point ids must be UUIDs or integers.
const payloadRecordID = "recordId"

// QdrantOptions configures the Qdrant REST client.
type QdrantOptions struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// QdrantStore is a REST client to Qdrant. Each index is a collection.
type QdrantStore struct {
	url    string
	apiKey string
	client *http.Client

	mu      sync.RWMutex
	metrics map[string]models.Metric
}

// errNotFound marks a 404 from Qdrant.
var errNotFound = errors.New("not found")

// NewQdrantStore creates a client. No request is made until the first call.
func NewQdrantStore(opts QdrantOptions) *QdrantStore {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &QdrantStore{
		url:     strings.TrimRight(opts.URL, "/"),
		apiKey:  opts.APIKey,
		client:  &http.Client{Timeout: timeout},
		metrics: make(map[string]models.Metric),
	}
}

// PointID maps a record id to the deterministic UUID used as the Qdrant point id.
func PointID(recordID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(recordID)).String()
}

func qdrantDistance(m models.Metric) string {
	switch m {
	case models.MetricEuclidean:
		return "Euclid"
	case models.MetricDotProduct:
		return "Dot"
	default:
		return "Cosine"
	}
}

func metricFromDistance(d string) models.Metric {
	switch d {
	case "Euclid":
		return models.MetricEuclidean
	case "Dot":
		return models.MetricDotProduct
	default:
		return models.MetricCosine
	}
}

func (s *QdrantStore) collectionURL(name string, parts ...string) string {
	return s.url + "/collections/" + url.PathEscape(name) + strings.Join(parts, "")
}

func (s *QdrantStore) CreateIndex(ctx context.Context, name string, dimension int, metric models.Metric) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", dimension)
	}
	if _, err := s.fetchMetric(ctx, name); err == nil {
		return models.ErrIndexAlreadyExists
	} else if !errors.Is(err, errNotFound) {
		return err
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": qdrantDistance(metric),
		},
	}
	err := s.do(ctx, "create collection", http.MethodPut, s.collectionURL(name), body, nil)
	if err != nil {
		var se *qdrantStatusError
		if errors.As(err, &se) && se.code == http.StatusConflict {
			return models.ErrIndexAlreadyExists
		}
		return err
	}
	s.mu.Lock()
	s.metrics[name] = metric
	s.mu.Unlock()
	return nil
}

func (s *QdrantStore) Upsert(ctx context.Context, index string, records []models.IndexRecord) error {
	points := make([]map[string]any, len(records))
	for i, r := range records {
		payload := cloneMetadata(r.Metadata)
		if payload == nil {
			payload = make(map[string]any, 1)
		}
		payload[payloadRecordID] = r.ID
		points[i] = map[string]any{
			"id":      PointID(r.ID),
			"vector":  r.Vector,
			"payload": payload,
		}
	}
	return s.do(ctx, "upsert", http.MethodPut, s.collectionURL(index, "/points?wait=true"),
		map[string]any{"points": points}, nil)
}

func (s *QdrantStore) Query(ctx context.Context, index string, vector []float32, topK int) ([]models.QueryResult, error) {
	metric, err := s.metric(ctx, index)
	if err != nil {
		return nil, err
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := s.do(ctx, "search", http.MethodPost, s.collectionURL(index, "/points/search"), req, &resp); err != nil {
		return nil, err
	}
	results := make([]models.QueryResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		id, _ := r.Payload[payloadRecordID].(string)
		if id == "" {
			id = fmt.Sprint(r.ID)
		}
		delete(r.Payload, payloadRecordID)
		score := r.Score
		if metric == models.MetricEuclidean {
			score = 1 / (1 + score)
		}
		results = append(results, models.QueryResult{ID: id, Score: score, Metadata: r.Payload})
	}
	return results, nil
}

func (s *QdrantStore) Delete(ctx context.Context, index string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	points := make([]string, len(ids))
	for i, id := range ids {
		points[i] = PointID(id)
	}
	err := s.do(ctx, "delete points", http.MethodPost, s.collectionURL(index, "/points/delete?wait=true"),
		map[string]any{"points": points}, nil)
	if errors.Is(err, errNotFound) {
		return nil
	}
	return err
}

func (s *QdrantStore) DeleteByDocument(ctx context.Context, index, documentID string) error {
	body := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": models.MetaDocumentID, "match": map[string]any{"value": documentID}},
			},
		},
	}
	return s.do(ctx, "delete", http.MethodPost, s.collectionURL(index, "/points/delete?wait=true"), body, nil)
}

// Count returns the exact number of points in index.
func (s *QdrantStore) Count(ctx context.Context, index string) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	err := s.do(ctx, "count", http.MethodPost, s.collectionURL(index, "/points/count"), map[string]any{"exact": true}, &resp)
	if errors.Is(err, errNotFound) {
		return 0, nil
	}
	return resp.Result.Count, err
}

func (s *QdrantStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// metric returns the distance of a collection, asking the server the first time.
func (s *QdrantStore) metric(ctx context.Context, name string) (models.Metric, error) {
	s.mu.RLock()
	m, ok := s.metrics[name]
	s.mu.RUnlock()
	if ok {
		return m, nil
	}
	m, err := s.fetchMetric(ctx, name)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.metrics[name] = m
	s.mu.Unlock()
	return m, nil
}

func (s *QdrantStore) fetchMetric(ctx context.Context, name string) (models.Metric, error) {
	var resp struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Distance string `json:"distance"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	if err := s.do(ctx, "get collection", http.MethodGet, s.collectionURL(name), nil, &resp); err != nil {
		return "", err
	}
	return metricFromDistance(resp.Result.Config.Params.Vectors.Distance), nil
}

type qdrantStatusError struct {
	op   string
	code int
	body string
}

func (e *qdrantStatusError) Error() string {
	return fmt.Sprintf("qdrant %s failed: status %d: %s", e.op, e.code, e.body)
}

// do sends a JSON request. Transport and authentication failures come back as
// *models.VectorStoreConnectionError; a 404 wraps errNotFound.
func (s *QdrantStore) do(ctx context.Context, op, method, target string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("qdrant %s: encode request: %w", op, err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return fmt.Errorf("qdrant %s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return &models.VectorStoreConnectionError{Store: "qdrant", Op: op, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("qdrant %s: %w", op, errNotFound)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &models.VectorStoreConnectionError{Store: "qdrant", Op: op, Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode >= 300:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &qdrantStatusError{op: op, code: resp.StatusCode, body: string(raw)}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("qdrant %s: decode response: %w", op, err)
		}
	}
	return nil
}
