// Package payment runs the dedicated consumer loop for deferred payments.
// It serves exactly one message shape, so an undecodable body is poison and
// is deleted rather than redelivered.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"fabrika/internal/bank"
	"fabrika/internal/metrics"
	"fabrika/internal/model"
	"fabrika/internal/queue"
	"fabrika/internal/retryjob"
	"fabrika/pkg/logger"

	"go.uber.org/zap"
)

type Worker struct {
	consumer  queue.Consumer
	queueName string
	bank      bank.API
	orders    repository
	batchSize int
	pollWait  time.Duration
	obs       metrics.Observer
}

// repository is the slice of the order store the worker needs.
type repository interface {
	GetByID(ctx context.Context, id uint64) (*model.Order, error)
	UpdateStatus(ctx context.Context, id uint64, status string) error
}

func NewWorker(consumer queue.Consumer, queueName string, api bank.API, orders repository, batchSize int, pollWait time.Duration, obs metrics.Observer) *Worker {
	if batchSize <= 0 {
		batchSize = 10
	}
	if pollWait <= 0 {
		pollWait = 5 * time.Second
	}
	if obs == nil {
		obs = metrics.NopObserver{}
	}
	return &Worker{
		consumer:  consumer,
		queueName: queueName,
		bank:      api,
		orders:    orders,
		batchSize: batchSize,
		pollWait:  pollWait,
		obs:       obs,
	}
}

func (w *Worker) Run(ctx context.Context) {
	logger.Info("payment retry worker started", zap.String("queue", w.queueName))
	for {
		select {
		case <-ctx.Done():
			logger.Info("payment retry worker stopped")
			return
		default:
		}

		msgs, err := w.consumer.Receive(ctx, w.queueName, w.batchSize, w.pollWait)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("payment retry worker stopped")
				return
			}
			logger.Error("payment queue receive failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		for _, msg := range msgs {
			w.process(ctx, msg)
		}
	}
}

func (w *Worker) process(ctx context.Context, msg queue.Message) {
	var env retryjob.Envelope
	job := retryjob.PaymentRetryJob{}
	if err := json.Unmarshal(msg.Body, &env); err != nil || json.Unmarshal(env.Payload, &job) != nil || job.OrderID == 0 {
		// Poison: a malformed payment payload can never be usefully retried.
		logger.Warn("poison payment message, deleting", zap.String("receipt", msg.Receipt))
		w.delete(ctx, msg)
		return
	}

	order, err := w.orders.GetByID(ctx, job.OrderID)
	if err != nil {
		logger.Critical("payment retry: order lookup failed",
			zap.Uint64("order_id", job.OrderID), zap.Error(err))
		return
	}
	if order == nil {
		// Order may have been cancelled since the job was published.
		logger.Warn("payment retry: order gone, dropping",
			zap.Uint64("order_id", job.OrderID))
		w.obs.PaymentDroppedStale()
		w.delete(ctx, msg)
		return
	}
	if order.Status != model.OrderPending && order.Status != model.OrderPaymentFailed {
		logger.Warn("payment retry: order already resolved, dropping",
			zap.Uint64("order_id", job.OrderID), zap.String("status", order.Status))
		w.obs.PaymentDroppedStale()
		w.delete(ctx, msg)
		return
	}

	txRef, err := w.bank.MakePayment(ctx, bank.PaymentRequest{
		RecipientName:    job.RecipientName,
		RecipientAccount: job.RecipientAccount,
		RecipientBankID:  job.RecipientBankID,
		Amount:           job.Amount,
		Reference:        job.Reference,
	})
	if err != nil {
		if errors.Is(err, bank.ErrCallFailed) || errors.Is(err, bank.ErrMalformedResponse) {
			logger.Error("payment retry: bank call failed, leaving for redelivery",
				zap.Uint64("order_id", job.OrderID), zap.Error(err))
		} else {
			logger.Critical("payment retry: unexpected failure, leaving for redelivery",
				zap.Uint64("order_id", job.OrderID), zap.Error(err))
		}
		return
	}

	if err := w.orders.UpdateStatus(ctx, job.OrderID, model.OrderAccepted); err != nil {
		// The bank call succeeded but the order still reads unpaid; a
		// redelivery may pay the supplier twice.
		logger.Critical("payment retry: paid but status update failed, leaving for redelivery",
			zap.Uint64("order_id", job.OrderID), zap.String("tx_ref", txRef), zap.Error(err))
		return
	}

	w.obs.PaymentReplayed()
	logger.Info("deferred payment replayed",
		zap.Uint64("order_id", job.OrderID), zap.String("tx_ref", txRef))
	w.delete(ctx, msg)
}

func (w *Worker) delete(ctx context.Context, msg queue.Message) {
	if err := w.consumer.Delete(ctx, w.queueName, msg.Receipt); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("failed to delete payment message", zap.String("receipt", msg.Receipt), zap.Error(err))
	}
}
