package vector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/couchbase/gocb/v2"
	cbvector "github.com/couchbase/gocb/v2/vector"

	"github.com/hyperjump/ragdesk/internal/models"
	"github.com/hyperjump/ragdesk/pkg/utils"
)

// Document field names in the Couchbase collection.
const (
	cbFieldText      = "text"
	cbFieldEmbedding = "embedding"
	cbFieldMetadata  = "metadata"
)

// CouchbaseOptions configures the connection to a Couchbase cluster.
type CouchbaseOptions struct {
	ConnectionString string
	Username         string
	Password         string
	BucketName       string
	ScopeName        string
	CollectionName   string
	Timeout          time.Duration
	// Metric is assumed for indexes this process did not create.
	Metric models.Metric
}

// CouchbaseStore stores records as JSON documents in one collection and searches them through
// scope-level Search vector indexes. Cosine indexes are served by dot_product over unit vectors.
type CouchbaseStore struct {
	cluster    *gocb.Cluster
	bucket     string
	scope      *gocb.Scope
	collection *gocb.Collection
	timeout    time.Duration
	metric     models.Metric

	mu      sync.RWMutex
	metrics map[string]models.Metric
}

type cbDocument struct {
	Text      string         `json:"text"`
	Embedding []float32      `json:"embedding"`
	Metadata  map[string]any `json:"metadata"`
}

// ConnectCouchbase connects to the cluster and waits until the bucket is ready.
func ConnectCouchbase(ctx context.Context, opts CouchbaseOptions) (*CouchbaseStore, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cluster, err := gocb.Connect(opts.ConnectionString, gocb.ClusterOptions{
		Authenticator: gocb.PasswordAuthenticator{
			Username: opts.Username,
			Password: opts.Password,
		},
		TimeoutsConfig: gocb.TimeoutsConfig{
			ConnectTimeout:    timeout,
			KVTimeout:         timeout,
			QueryTimeout:      timeout,
			SearchTimeout:     timeout,
			ManagementTimeout: timeout,
		},
	})
	if err != nil {
		return nil, &models.VectorStoreConnectionError{Store: "couchbase", Op: "connect", Err: err}
	}
	bucket := cluster.Bucket(opts.BucketName)
	if err := bucket.WaitUntilReady(timeout, &gocb.WaitUntilReadyOptions{Context: ctx}); err != nil {
		_ = cluster.Close(nil)
		return nil, &models.VectorStoreConnectionError{Store: "couchbase", Op: "wait until ready", Err: err}
	}
	scope := bucket.Scope(opts.ScopeName)
	metric := opts.Metric
	if metric == "" {
		metric = models.MetricCosine
	}
	return &CouchbaseStore{
		cluster:    cluster,
		bucket:     opts.BucketName,
		scope:      scope,
		collection: scope.Collection(opts.CollectionName),
		timeout:    timeout,
		metric:     metric,
		metrics:    make(map[string]models.Metric),
	}, nil
}

// CouchbaseSimilarity maps a metric to the Search service similarity name.
func CouchbaseSimilarity(m models.Metric) string {
	switch m {
	case models.MetricEuclidean:
		return "l2_norm"
	default:
		return "dot_product"
	}
}

// CouchbaseIndexDefinition builds the Search index that maps the embedding field of every
// document in scope.collection as a vector of the given dimension.
func CouchbaseIndexDefinition(name, bucket, scope, collection string, dimension int, metric models.Metric) gocb.SearchIndex {
	typeName := scope + "." + collection
	return gocb.SearchIndex{
		Name:       name,
		Type:       "fulltext-index",
		SourceType: "gocbcore",
		SourceName: bucket,
		Params: map[string]interface{}{
			"doc_config": map[string]interface{}{
				"mode":       "scope.collection.type_field",
				"type_field": "type",
			},
			"mapping": map[string]interface{}{
				"default_mapping": map[string]interface{}{"enabled": false},
				"types": map[string]interface{}{
					typeName: map[string]interface{}{
						"enabled": true,
						"dynamic": true,
						"properties": map[string]interface{}{
							cbFieldEmbedding: map[string]interface{}{
								"enabled": true,
								"dynamic": false,
								"fields": []interface{}{
									map[string]interface{}{
										"name":       cbFieldEmbedding,
										"type":       "vector",
										"dims":       dimension,
										"similarity": CouchbaseSimilarity(metric),
										"index":      true,
									},
								},
							},
						},
					},
				},
			},
		},
	}
}

func (s *CouchbaseStore) CreateIndex(ctx context.Context, name string, dimension int, metric models.Metric) error {
	mgr := s.scope.SearchIndexes()
	_, err := mgr.GetIndex(name, &gocb.GetSearchIndexOptions{Context: ctx})
	if err == nil {
		s.rememberMetric(name, metric)
		return models.ErrIndexAlreadyExists
	}
	if !errors.Is(err, gocb.ErrIndexNotFound) {
		return s.wrap("get search index", err)
	}
	def := CouchbaseIndexDefinition(name, s.bucket, s.scope.Name(), s.collection.Name(), dimension, metric)
	if err := mgr.UpsertIndex(def, &gocb.UpsertSearchIndexOptions{Context: ctx}); err != nil {
		if errors.Is(err, gocb.ErrIndexExists) {
			return models.ErrIndexAlreadyExists
		}
		return s.wrap("upsert search index", err)
	}
	s.rememberMetric(name, metric)
	return nil
}

func (s *CouchbaseStore) Upsert(ctx context.Context, index string, records []models.IndexRecord) error {
	normalise := s.metricFor(index) == models.MetricCosine
	for _, r := range records {
		vec := r.Vector
		if normalise {
			vec = append([]float32(nil), r.Vector...)
			utils.NormalizeL2(vec)
		}
		text, _ := r.Metadata[models.MetaText].(string)
		doc := cbDocument{Text: text, Embedding: vec, Metadata: r.Metadata}
		if _, err := s.collection.Upsert(r.ID, doc, &gocb.UpsertOptions{Context: ctx}); err != nil {
			return s.wrap("upsert "+r.ID, err)
		}
	}
	return nil
}

func (s *CouchbaseStore) Query(ctx context.Context, index string, vector []float32, topK int) ([]models.QueryResult, error) {
	if s.metricFor(index) == models.MetricCosine {
		vector = append([]float32(nil), vector...)
		utils.NormalizeL2(vector)
	}
	limit := searchLimit(topK)
	req := gocb.SearchRequest{
		VectorSearch: cbvector.NewSearch([]*cbvector.Query{
			cbvector.NewQuery(cbFieldEmbedding, vector).NumCandidates(limit),
		}, nil),
	}
	res, err := s.scope.Search(index, req, &gocb.SearchOptions{Limit: limit, Context: ctx})
	if err != nil {
		return nil, s.wrap("search", err)
	}
	type hit struct {
		id    string
		score float64
	}
	var hits []hit
	for res.Next() {
		row := res.Row()
		hits = append(hits, hit{id: row.ID, score: row.Score})
	}
	if err := res.Err(); err != nil {
		return nil, s.wrap("search", err)
	}

	results := make([]models.QueryResult, 0, len(hits))
	for _, h := range hits {
		got, err := s.collection.Get(h.id, &gocb.GetOptions{Context: ctx})
		if errors.Is(err, gocb.ErrDocumentNotFound) {
			continue
		}
		if err != nil {
			return nil, s.wrap("get "+h.id, err)
		}
		var doc cbDocument
		if err := got.Content(&doc); err != nil {
			return nil, fmt.Errorf("decode %s: %w", h.id, err)
		}
		meta := doc.Metadata
		if meta == nil {
			meta = make(map[string]any, 1)
		}
		if _, ok := meta[models.MetaText]; !ok && doc.Text != "" {
			meta[models.MetaText] = doc.Text
		}
		results = append(results, models.QueryResult{ID: h.id, Score: h.score, Metadata: meta})
	}
	return results, nil
}

func (s *CouchbaseStore) Delete(ctx context.Context, _ string, ids []string) error {
	for _, id := range ids {
		_, err := s.collection.Remove(id, &gocb.RemoveOptions{Context: ctx})
		if err != nil && !errors.Is(err, gocb.ErrDocumentNotFound) {
			return s.wrap("remove "+id, err)
		}
	}
	return nil
}

func (s *CouchbaseStore) DeleteByDocument(ctx context.Context, _ string, documentID string) error {
	stmt := fmt.Sprintf("DELETE FROM `%s` WHERE `%s`.`%s` = $documentId",
		s.collection.Name(), cbFieldMetadata, models.MetaDocumentID)
	res, err := s.scope.Query(stmt, &gocb.QueryOptions{
		NamedParameters: map[string]interface{}{"documentId": documentID},
		Context:         ctx,
	})
	if err != nil {
		return s.wrap("delete document", err)
	}
	return res.Close()
}

func (s *CouchbaseStore) Close() error {
	return s.cluster.Close(nil)
}

// searchLimit converts topK to the Search service's uint32 limit, clamping instead of wrapping.
func searchLimit(topK int) uint32 {
	switch {
	case topK < 1:
		return 1
	case uint64(topK) > math.MaxUint32:
		return math.MaxUint32
	}
	return uint32(topK)
}

func (s *CouchbaseStore) rememberMetric(index string, m models.Metric) {
	s.mu.Lock()
	s.metrics[index] = m
	s.mu.Unlock()
}

func (s *CouchbaseStore) metricFor(index string) models.Metric {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.metrics[index]; ok {
		return m
	}
	return s.metric
}

// wrap turns timeouts, authentication and availability failures into connection errors.
func (s *CouchbaseStore) wrap(op string, err error) error {
	if isCouchbaseConnectionError(err) {
		return &models.VectorStoreConnectionError{Store: "couchbase", Op: op, Err: err}
	}
	return fmt.Errorf("couchbase %s: %w", op, err)
}

func isCouchbaseConnectionError(err error) bool {
	for _, target := range []error{
		gocb.ErrTimeout,
		gocb.ErrUnambiguousTimeout,
		gocb.ErrAmbiguousTimeout,
		gocb.ErrAuthenticationFailure,
		gocb.ErrServiceNotAvailable,
		gocb.ErrRequestCanceled,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
