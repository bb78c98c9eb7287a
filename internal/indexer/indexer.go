package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/ragdesk/internal/embedding"
	"github.com/hyperjump/ragdesk/internal/extract"
	"github.com/hyperjump/ragdesk/internal/fileid"
	"github.com/hyperjump/ragdesk/internal/models"
	"github.com/hyperjump/ragdesk/internal/storage"
	"github.com/hyperjump/ragdesk/internal/vector"
)

var errNoText = errors.New("no text found in document")

// IndexSpec names the vector index documents are written to.
type IndexSpec struct {
	Name      string
	Dimension int
	Metric    models.Metric
}

// Indexer runs the ingestion pipeline: extract, chunk, embed, upsert, register.
type Indexer struct {
	extractor  *extract.Extractor
	chunker    *Chunker
	generator  *embedding.Generator
	conns      *vector.ConnectionManager
	registry   storage.Storage
	index      IndexSpec
	idStrategy fileid.Strategy
	now        func() time.Time
	logger     *zap.Logger
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(idx *Indexer) { idx.logger = l }
}

// WithRegistry records every ingested document and its chunks in r.
func WithRegistry(r storage.Storage) Option {
	return func(idx *Indexer) { idx.registry = r }
}

// WithIDStrategy sets how document ids are derived. Default is by file name.
func WithIDStrategy(s fileid.Strategy) Option {
	return func(idx *Indexer) { idx.idStrategy = s }
}

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(idx *Indexer) { idx.now = now }
}

// NewIndexer creates an indexer writing to the index described by spec.
func NewIndexer(gen *embedding.Generator, conns *vector.ConnectionManager, chunker *Chunker, spec IndexSpec, opts ...Option) *Indexer {
	idx := &Indexer{
		extractor:  extract.NewExtractor(),
		chunker:    chunker,
		generator:  gen,
		conns:      conns,
		index:      spec,
		idStrategy: fileid.StrategyFilename,
		now:        time.Now,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// EnsureIndex creates the index when it does not exist. An existing index is not an error.
func (idx *Indexer) EnsureIndex(ctx context.Context, name string, dimension int, metric models.Metric) error {
	store, err := idx.conns.Get(ctx)
	if err != nil {
		return err
	}
	err = store.CreateIndex(ctx, name, dimension, metric)
	switch {
	case errors.Is(err, models.ErrIndexAlreadyExists):
		idx.logger.Warn("vector index already exists", zap.String("index", name))
		return nil
	case err != nil:
		idx.release(store, err)
		return fmt.Errorf("create index %s: %w", name, err)
	}
	idx.logger.Info("vector index created", zap.String("index", name),
		zap.Int("dimension", dimension), zap.String("metric", string(metric)))
	return nil
}

// Upsert writes records in one store call after checking every record locally. Re-upserting
// the same ids overwrites them.
func (idx *Indexer) Upsert(ctx context.Context, indexName string, records []models.IndexRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := validateRecords(records, idx.index.Dimension); err != nil {
		return err
	}
	store, err := idx.conns.Get(ctx)
	if err != nil {
		return err
	}
	if err := store.Upsert(ctx, indexName, records); err != nil {
		idx.release(store, err)
		return fmt.Errorf("upsert %d records into %s: %w", len(records), indexName, err)
	}
	return nil
}

func validateRecords(records []models.IndexRecord, dimension int) error {
	for _, r := range records {
		if r.ID == "" {
			return errors.New("record without id")
		}
		if len(r.Vector) == 0 {
			return fmt.Errorf("record %s has no vector", r.ID)
		}
		if len(r.Vector) != dimension {
			return &models.DimensionMismatchError{ID: r.ID, Got: len(r.Vector), Expected: dimension}
		}
		if text, ok := r.Metadata[models.MetaText].(string); !ok || text == "" {
			return fmt.Errorf("record %s has no text metadata", r.ID)
		}
	}
	return nil
}

// Ingest indexes an uploaded document and records it in the registry. Nothing is registered
// when any step fails.
func (idx *Indexer) Ingest(ctx context.Context, input models.IngestInput) (*models.IngestResult, error) {
	log := idx.logger.With(zap.String("file_name", input.FileName))

	text, err := idx.extractor.ExtractBytes(input.FileBytes, input.FileName)
	if err != nil {
		log.Error("extraction failed", zap.Error(err))
		return nil, err
	}
	docID := idx.idStrategy.DocumentID(input.FileName, input.FileBytes)
	log = log.With(zap.String("document_id", docID))

	chunks := idx.chunker.Chunk(docID, Preprocess(text))
	if len(chunks) == 0 {
		err := &models.ExtractionError{FileName: input.FileName, Err: errNoText}
		log.Error("ingestion failed", zap.Error(err))
		return nil, err
	}
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	vectors, err := idx.generator.Generate(ctx, texts)
	if err != nil {
		log.Error("embedding failed", zap.Int("chunks", len(chunks)), zap.Error(err))
		return nil, err
	}
	records := buildRecords(chunks, vectors, input.FileName, idx.now())

	if err := idx.EnsureIndex(ctx, idx.index.Name, idx.index.Dimension, idx.index.Metric); err != nil {
		log.Error("ensure index failed", zap.String("index", idx.index.Name), zap.Error(err))
		return nil, err
	}
	prev, err := idx.previous(ctx, docID)
	if err != nil {
		log.Error("looking up previous upload failed", zap.Error(err))
		return nil, err
	}
	if err := idx.Upsert(ctx, idx.index.Name, records); err != nil {
		log.Error("upsert failed", zap.String("index", idx.index.Name), zap.Error(err))
		return nil, err
	}
	if err := idx.dropStale(ctx, prev, docID, len(chunks)); err != nil {
		log.Error("removing stale records failed", zap.Error(err))
		return nil, err
	}
	if idx.registry != nil {
		doc := &models.Document{
			ID:        docID,
			FileName:  input.FileName,
			ByteSize:  int64(len(input.FileBytes)),
			IndexName: idx.index.Name,
		}
		if err := idx.registry.SaveDocument(ctx, doc, chunks); err != nil {
			log.Error("registry save failed", zap.Error(err))
			return nil, fmt.Errorf("register document: %w", err)
		}
	}
	log.Info("document ingested", zap.Int("chunks", len(chunks)))
	return &models.IngestResult{
		Text:       models.IngestSuccessText,
		FileName:   input.FileName,
		DocumentID: docID,
		Chunks:     len(chunks),
	}, nil
}

// previous returns the registry entry of an earlier upload with the same id, or nil.
func (idx *Indexer) previous(ctx context.Context, docID string) (*models.Document, error) {
	if idx.registry == nil {
		return nil, nil
	}
	prev, err := idx.registry.GetDocument(ctx, docID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("look up document: %w", err)
	}
	return prev, nil
}

// dropStale runs after the new records are written. It removes the chunks of prev beyond the
// new chunk count, or all of prev's records when it lived in another index. The registry still
// holds prev until the caller saves the new entry, so a failed cleanup is retried on the next
// upload.
func (idx *Indexer) dropStale(ctx context.Context, prev *models.Document, docID string, chunks int) error {
	if prev == nil {
		return nil
	}
	if prev.IndexName != idx.index.Name {
		return idx.deleteRecords(ctx, prev.IndexName, docID)
	}
	if prev.ChunkCount <= chunks {
		return nil
	}
	stale := make([]string, 0, prev.ChunkCount-chunks)
	for i := chunks; i < prev.ChunkCount; i++ {
		stale = append(stale, models.RecordID(docID, i))
	}
	store, err := idx.conns.Get(ctx)
	if err != nil {
		return err
	}
	if err := store.Delete(ctx, idx.index.Name, stale); err != nil {
		idx.release(store, err)
		return fmt.Errorf("delete stale records of %s: %w", docID, err)
	}
	return nil
}

func buildRecords(chunks []*models.DocumentChunk, vectors [][]float32, fileName string, at time.Time) []models.IndexRecord {
	ts := at.UTC().Format(time.RFC3339)
	records := make([]models.IndexRecord, len(chunks))
	for i, ch := range chunks {
		records[i] = models.IndexRecord{
			ID:     ch.RecordID(),
			Vector: vectors[i],
			Metadata: map[string]any{
				models.MetaText:         ch.Text,
				models.MetaChunkIndex:   ch.ChunkIndex,
				models.MetaTimestamp:    ts,
				models.MetaStart:        ch.StartOffset,
				models.MetaEnd:          ch.EndOffset,
				models.MetaDocumentPath: fileName,
				models.MetaDocumentID:   ch.SourceDocumentID,
			},
		}
	}
	return records
}

// IngestFile reads path and ingests it under its base name.
func (idx *Indexer) IngestFile(ctx context.Context, path string) (*models.IngestResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return idx.Ingest(ctx, models.IngestInput{FileBytes: content, FileName: filepath.Base(path)})
}

// IngestDirectory ingests every regular file under dir with a supported extension. It stops
// at the first failure and returns the number of files ingested before it.
func (idx *Indexer) IngestDirectory(ctx context.Context, dir string) (int, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", dir)
	}
	n := 0
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !extract.Supported(path) {
			return nil
		}
		if _, err := idx.IngestFile(ctx, path); err != nil {
			return fmt.Errorf("ingest %s: %w", path, err)
		}
		n++
		return nil
	})
	return n, err
}

// DeleteDocument removes a document's records from the vector index and the registry.
func (idx *Indexer) DeleteDocument(ctx context.Context, id string) error {
	indexName := idx.index.Name
	if idx.registry != nil {
		doc, err := idx.registry.GetDocument(ctx, id)
		if err != nil {
			return err
		}
		indexName = doc.IndexName
	}
	if err := idx.deleteRecords(ctx, indexName, id); err != nil {
		return err
	}
	if idx.registry != nil {
		if err := idx.registry.DeleteDocument(ctx, id); err != nil {
			return fmt.Errorf("unregister document: %w", err)
		}
	}
	idx.logger.Info("document deleted", zap.String("document_id", id), zap.String("index", indexName))
	return nil
}

func (idx *Indexer) deleteRecords(ctx context.Context, indexName, docID string) error {
	store, err := idx.conns.Get(ctx)
	if err != nil {
		return err
	}
	if err := store.DeleteByDocument(ctx, indexName, docID); err != nil {
		idx.release(store, err)
		return fmt.Errorf("delete records of %s: %w", docID, err)
	}
	return nil
}

// release drops the shared store handle after a connection failure so the next call redials.
func (idx *Indexer) release(store vector.Store, err error) {
	if models.IsConnectionError(err) {
		idx.logger.Warn("vector store connection lost", zap.String("store", vector.Name(store)), zap.Error(err))
		idx.conns.Invalidate(store)
	}
}

// Index returns the index the indexer writes to.
func (idx *Indexer) Index() IndexSpec {
	return idx.index
}
