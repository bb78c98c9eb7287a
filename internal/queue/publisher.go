package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/hyperjump/ragdesk/internal/models"
)

// Publisher enqueues ingestion jobs.
type Publisher struct {
	conn  *amqp.Connection
	queue string
}

// NewPublisher publishes to queueName over conn.
func NewPublisher(conn *amqp.Connection, queueName string) *Publisher {
	return &Publisher{conn: conn, queue: queueName}
}

// Enqueue publishes a persistent job for input and returns its id.
func (p *Publisher) Enqueue(ctx context.Context, input models.IngestInput) (string, error) {
	job := NewJob(input, time.Now())
	body, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("encode job: %w", err)
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return "", fmt.Errorf("open rabbitmq channel: %w", err)
	}
	defer ch.Close()
	if err := declare(ch, p.queue); err != nil {
		return "", err
	}
	err = ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    job.ID,
		Timestamp:    job.EnqueuedAt,
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return "", fmt.Errorf("publish job: %w", err)
	}
	return job.ID, nil
}

// NewJob wraps input in a job with a fresh id.
func NewJob(input models.IngestInput, at time.Time) Job {
	return Job{
		ID:         uuid.NewString(),
		FileName:   input.FileName,
		FileBytes:  input.FileBytes,
		EnqueuedAt: at.UTC(),
	}
}
