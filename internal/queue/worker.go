package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/hyperjump/ragdesk/internal/models"
)

// Ingester is the pipeline a worker feeds. *indexer.Indexer implements it.
type Ingester interface {
	Ingest(ctx context.Context, input models.IngestInput) (*models.IngestResult, error)
}

// Worker consumes ingestion jobs one at a time.
type Worker struct {
	conn     *amqp.Connection
	queue    string
	ingester Ingester
	logger   *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker creates a worker for queueName. Call Start to begin consuming.
func NewWorker(conn *amqp.Connection, queueName string, ingester Ingester, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{conn: conn, queue: queueName, ingester: ingester, logger: logger}
}

// Start declares the queue and consumes it in the background until ctx ends or Close.
func (w *Worker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}
	ch, err := w.conn.Channel()
	if err != nil {
		return fmt.Errorf("open worker channel: %w", err)
	}
	if err := declare(ch, w.queue); err != nil {
		_ = ch.Close()
		return err
	}
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("set prefetch: %w", err)
	}
	deliveries, err := ch.Consume(w.queue, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("consume %s: %w", w.queue, err)
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()
		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					w.logger.Warn("ingest queue delivery channel closed", zap.String("queue", w.queue))
					return
				}
				w.handle(workerCtx, d)
			}
		}
	}()
	w.logger.Info("ingest worker started", zap.String("queue", w.queue))
	return nil
}

// handle ingests one delivery. Undecodable jobs and extraction failures are dropped; other
// failures are requeued once.
func (w *Worker) handle(ctx context.Context, d amqp.Delivery) {
	var job Job
	if err := json.Unmarshal(d.Body, &job); err != nil {
		w.logger.Error("decode ingest job failed", zap.Error(err))
		_ = d.Nack(false, false)
		return
	}
	log := w.logger.With(zap.String("job_id", job.ID), zap.String("file_name", job.FileName))
	res, err := w.ingester.Ingest(ctx, models.IngestInput{FileBytes: job.FileBytes, FileName: job.FileName})
	if err != nil {
		var extErr *models.ExtractionError
		requeue := !errors.As(err, &extErr) && !d.Redelivered
		log.Error("ingest job failed", zap.Bool("requeue", requeue), zap.Error(err))
		_ = d.Nack(false, requeue)
		return
	}
	log.Info("ingest job done", zap.String("document_id", res.DocumentID), zap.Int("chunks", res.Chunks))
	_ = d.Ack(false)
}

// Close stops consuming and waits for the job in progress.
func (w *Worker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
