package retryjob

import (
	"context"

	"fabrika/internal/metrics"
	"fabrika/internal/queue"
	"fabrika/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RunState reports whether the simulation clock is advancing. Retrying
// business operations is meaningless once it is not.
type RunState interface {
	Running() bool
}

type Publisher interface {
	Publish(ctx context.Context, job Job) error
}

// NewPublisher returns the active publisher, or a disabled no-op variant
// when no queue client or destination is configured. The decision is made
// once at construction, not null-checked per call.
func NewPublisher(producer queue.Producer, queueName string, state RunState, obs metrics.Observer) Publisher {
	if producer == nil || queueName == "" {
		logger.Info("retry publishing disabled, no queue configured")
		return disabledPublisher{}
	}
	if obs == nil {
		obs = metrics.NopObserver{}
	}
	return &queuePublisher{producer: producer, queueName: queueName, state: state, obs: obs}
}

type disabledPublisher struct{}

func (disabledPublisher) Publish(_ context.Context, job Job) error {
	logger.Debug("retry job dropped, publisher disabled", zap.String("tag", job.Tag()))
	return nil
}

type queuePublisher struct {
	producer  queue.Producer
	queueName string
	state     RunState
	obs       metrics.Observer
}

// Publish enqueues the job with a fresh deduplication token, so repeated
// publishes of logically identical jobs are each new attempts. Dedup is the
// consuming handler's responsibility via business-state checks.
func (p *queuePublisher) Publish(ctx context.Context, job Job) error {
	if !p.state.Running() {
		logger.Debug("retry job dropped, simulation not running", zap.String("tag", job.Tag()))
		return nil
	}
	body, err := Encode(job)
	if err != nil {
		return err
	}
	if err := p.producer.Send(ctx, p.queueName, body, queue.SendOptions{
		Group: job.GroupKey(),
		Dedup: uuid.New().String(),
	}); err != nil {
		return err
	}
	p.obs.JobPublished(job.Tag())
	logger.Info("retry job published", zap.String("tag", job.Tag()))
	return nil
}
