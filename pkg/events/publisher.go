package events

import (
	"time"

	"github.com/hibiken/asynq"

	"watchlink/internal/metrics"
)

// Publisher puts integration events on the queue the external subscription
// service consumes. Enqueue is the bounded send: delivery from the queue is
// at-least-once, so every event must be safe to replay.
type Publisher struct {
	client TaskEnqueuer
}

func NewPublisher(client TaskEnqueuer) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) Publish(task *asynq.Task) error {
	_, err := p.client.Enqueue(task,
		asynq.Queue(IntegrationQueue),
		asynq.MaxRetry(10),
		asynq.Timeout(30*time.Second),
	)
	if err != nil {
		return err
	}
	metrics.EventsPublished.WithLabelValues(task.Type()).Inc()
	return nil
}
