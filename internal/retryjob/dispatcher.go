package retryjob

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"fabrika/internal/metrics"
	"fabrika/internal/queue"
	"fabrika/pkg/logger"

	"go.uber.org/zap"
)

// Dispatcher is the generic consumer loop: it long-polls the retry queue,
// resolves each message's handler by job tag and acknowledges on success.
// A single bad message never terminates the loop.
type Dispatcher struct {
	consumer  queue.Consumer
	queueName string
	registry  *Registry
	batchSize int
	pollWait  time.Duration
	obs       metrics.Observer
}

func NewDispatcher(consumer queue.Consumer, queueName string, registry *Registry, batchSize int, pollWait time.Duration, obs metrics.Observer) *Dispatcher {
	if batchSize <= 0 {
		batchSize = 10
	}
	if pollWait <= 0 {
		pollWait = 5 * time.Second
	}
	if obs == nil {
		obs = metrics.NopObserver{}
	}
	return &Dispatcher{
		consumer:  consumer,
		queueName: queueName,
		registry:  registry,
		batchSize: batchSize,
		pollWait:  pollWait,
		obs:       obs,
	}
}

func (d *Dispatcher) Run(ctx context.Context) {
	logger.Info("retry job dispatcher started", zap.String("queue", d.queueName))
	for {
		select {
		case <-ctx.Done():
			logger.Info("retry job dispatcher stopped")
			return
		default:
		}

		msgs, err := d.consumer.Receive(ctx, d.queueName, d.batchSize, d.pollWait)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("retry job dispatcher stopped")
				return
			}
			logger.Error("retry queue receive failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		// Finish the batch even if shutdown arrives mid-flight.
		for _, msg := range msgs {
			d.process(ctx, msg)
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, msg queue.Message) {
	var env Envelope
	if err := json.Unmarshal(msg.Body, &env); err != nil {
		// Poison: the envelope will never decode, no matter how often it
		// is redelivered.
		logger.Warn("undecodable job envelope, deleting",
			zap.String("receipt", msg.Receipt), zap.Error(err))
		d.delete(ctx, msg, "")
		return
	}

	handler, ok := d.registry.lookup(env.JobType)
	if !ok {
		// May indicate a handler not yet deployed; must not be dropped.
		logger.Warn("unknown job type, leaving for redelivery",
			zap.String("job_type", env.JobType), zap.String("receipt", msg.Receipt))
		d.obs.JobDeferred(env.JobType)
		return
	}

	handled, err := d.invoke(ctx, handler, env.Payload)
	if err != nil {
		// The tag is known, so the payload shape is fixed; a decode failure
		// is poison.
		logger.Warn("undecodable job payload, deleting",
			zap.String("job_type", env.JobType), zap.Error(err))
		d.delete(ctx, msg, env.JobType)
		return
	}
	if !handled {
		logger.Error("job handling failed, leaving for redelivery",
			zap.String("job_type", env.JobType))
		d.obs.JobDeferred(env.JobType)
		return
	}

	if err := d.consumer.Delete(ctx, d.queueName, msg.Receipt); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		logger.Error("failed to acknowledge handled job",
			zap.String("job_type", env.JobType), zap.Error(err))
		return
	}
	d.obs.JobAcked(env.JobType)
	logger.Info("retry job handled", zap.String("job_type", env.JobType))
}

func (d *Dispatcher) delete(ctx context.Context, msg queue.Message, jobType string) {
	if err := d.consumer.Delete(ctx, d.queueName, msg.Receipt); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("failed to delete poison message",
			zap.String("job_type", jobType), zap.String("receipt", msg.Receipt), zap.Error(err))
	}
}

// invoke runs the handler with panic containment; a panic is logged and
// treated as a false outcome.
func (d *Dispatcher) invoke(ctx context.Context, handler handleFunc, payload []byte) (handled bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Critical("panic in retry job handler", zap.Any("panic", r), zap.Stack("stack"))
			handled = false
			err = nil
		}
	}()
	return handler(ctx, payload)
}
