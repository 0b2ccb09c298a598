package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/itsrifathridoy/talenthium/internal/model"
)

// AMQP is a RabbitMQ-backed queue. The queue is declared durable and
// messages are published persistent, so enqueued jobs survive a broker
// restart. Deliveries are acked after handling; a job is fire-and-forget
// once consumed.
type AMQP struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	queue      string
	deliveries <-chan amqp.Delivery
	logger     *slog.Logger
}

// DialAMQP connects to the broker and declares the sync-job queue.
func DialAMQP(url, queueName string, logger *slog.Logger) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dialing amqp broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening amqp channel: %w", err)
	}

	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declaring queue %q: %w", queueName, err)
	}

	return &AMQP{conn: conn, ch: ch, queue: queueName, logger: logger}, nil
}

func (q *AMQP) PublishSyncJob(ctx context.Context, job model.SyncJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling sync job: %w", err)
	}
	return q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

// Receive blocks until the next well-formed sync job arrives. Malformed
// messages are rejected without requeue and skipped.
func (q *AMQP) Receive(ctx context.Context) (model.SyncJob, error) {
	if q.deliveries == nil {
		deliveries, err := q.ch.Consume(q.queue, "", false, false, false, false, nil)
		if err != nil {
			return model.SyncJob{}, fmt.Errorf("consuming queue %q: %w", q.queue, err)
		}
		q.deliveries = deliveries
	}

	for {
		select {
		case <-ctx.Done():
			return model.SyncJob{}, ctx.Err()
		case d, ok := <-q.deliveries:
			if !ok {
				return model.SyncJob{}, ErrClosed
			}
			var job model.SyncJob
			if err := json.Unmarshal(d.Body, &job); err != nil {
				q.logger.Warn("Discarding malformed sync job message", "error", err)
				_ = d.Nack(false, false)
				continue
			}
			if err := d.Ack(false); err != nil {
				return model.SyncJob{}, fmt.Errorf("acking delivery: %w", err)
			}
			return job, nil
		}
	}
}

func (q *AMQP) Close() error {
	if err := q.ch.Close(); err != nil {
		q.conn.Close()
		return err
	}
	return q.conn.Close()
}
