// Package ops implements the daily task set the engine delegates to:
// material acquisition, production and order fulfillment, in that order.
package ops

import (
	"context"
	"errors"
	"time"

	"fabrika/internal/bank"
	"fabrika/internal/model"
	"fabrika/internal/repository"
	"fabrika/internal/retry"
	"fabrika/internal/retryjob"
	"fabrika/internal/supplier"
	"fabrika/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Options struct {
	RequiredMaterials []string
	MaterialFloor     int
	MaterialBatch     int
	RetryAttempts     int
	RetryDelay        time.Duration
}

type Tasks struct {
	db        *gorm.DB
	bank      bank.API
	sourcer   *supplier.Sourcer
	orders    repository.OrderInterface
	stock     repository.StockInterface
	machines  repository.MachineInterface
	publisher retryjob.Publisher
	opts      Options
}

func NewTasks(db *gorm.DB, api bank.API, sourcer *supplier.Sourcer,
	orders repository.OrderInterface, stock repository.StockInterface,
	machines repository.MachineInterface, publisher retryjob.Publisher, opts Options) *Tasks {
	if opts.MaterialFloor <= 0 {
		opts.MaterialFloor = 10
	}
	if opts.MaterialBatch <= 0 {
		opts.MaterialBatch = 50
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 3
	}
	return &Tasks{
		db:        db,
		bank:      api,
		sourcer:   sourcer,
		orders:    orders,
		stock:     stock,
		machines:  machines,
		publisher: publisher,
		opts:      opts,
	}
}

// Run executes the daily set. Each task tolerates the others' failures; a
// bad acquisition day must not stop production of what is already in stock.
func (t *Tasks) Run(ctx context.Context, day int, balance int64) error {
	t.acquireMaterials(ctx)
	t.runProduction(ctx, day)
	t.fulfillOrders(ctx)
	return nil
}

// acquireMaterials tops up every required material below its stock floor
// from the cheapest supplier, paying immediately. A payment that exhausts
// its local retry budget is deferred to the payment queue.
func (t *Tasks) acquireMaterials(ctx context.Context) {
	for _, material := range t.opts.RequiredMaterials {
		onHand, err := t.stock.Get(ctx, material)
		if err != nil {
			logger.Error("stock lookup failed", zap.String("material", material), zap.Error(err))
			continue
		}
		if onHand >= t.opts.MaterialFloor {
			continue
		}

		sourced, err := t.sourcer.FindBestSupplier(ctx, material)
		if err != nil {
			logger.Error("sourcing failed", zap.String("material", material), zap.Error(err))
			continue
		}
		if sourced == nil {
			logger.Warn("no supplier stocks material", zap.String("material", material))
			continue
		}

		units := t.opts.MaterialBatch
		if sourced.Quote.Quantity < units {
			units = sourced.Quote.Quantity
		}
		remit := sourced.Capability.Remittance()
		order := &model.Order{
			Material:         material,
			Units:            units,
			RecipientName:    sourced.SupplierName,
			RecipientAccount: remit.Account,
			RecipientBankID:  remit.BankID,
			Amount:           int64(units) * sourced.Quote.PricePerUnit,
			Reference:        uuid.New().String(),
			Status:           model.OrderPending,
		}
		if err := t.orders.Create(ctx, order); err != nil {
			logger.Error("failed to persist order", zap.String("material", material), zap.Error(err))
			continue
		}
		logger.Info("material order placed",
			zap.String("material", material), zap.String("supplier", sourced.SupplierName),
			zap.Int("units", units), zap.Int64("amount", order.Amount))

		t.payOrder(ctx, order)
	}
}

// payOrder attempts the payment within the bounded retry budget; a
// malformed bank response is not retried locally since the call may already
// have taken effect. Terminal failures mark the order PAYMENT_FAILED and
// hand it to the durable queue.
func (t *Tasks) payOrder(ctx context.Context, order *model.Order) {
	txRef, err := retry.Do(ctx, t.opts.RetryAttempts, t.opts.RetryDelay, func(ctx context.Context) (string, error) {
		ref, err := t.bank.MakePayment(ctx, bank.PaymentRequest{
			RecipientName:    order.RecipientName,
			RecipientAccount: order.RecipientAccount,
			RecipientBankID:  order.RecipientBankID,
			Amount:           order.Amount,
			Reference:        order.Reference,
		})
		if errors.Is(err, bank.ErrMalformedResponse) {
			return "", retry.Permanent(err)
		}
		return ref, err
	})
	if err != nil {
		logger.Error("payment failed, deferring to retry queue",
			zap.Uint64("order_id", order.ID), zap.Error(err))
		if uerr := t.orders.UpdateStatus(ctx, order.ID, model.OrderPaymentFailed); uerr != nil {
			logger.Error("failed to mark order payment-failed", zap.Uint64("order_id", order.ID), zap.Error(uerr))
		}
		if perr := t.publisher.Publish(ctx, retryjob.PaymentRetryJob{
			OrderID:          order.ID,
			RecipientName:    order.RecipientName,
			RecipientAccount: order.RecipientAccount,
			RecipientBankID:  order.RecipientBankID,
			Amount:           order.Amount,
			Reference:        order.Reference,
		}); perr != nil {
			logger.Error("failed to publish payment retry job", zap.Uint64("order_id", order.ID), zap.Error(perr))
		}
		return
	}

	if err := t.orders.UpdateStatus(ctx, order.ID, model.OrderAccepted); err != nil {
		logger.Error("paid but failed to mark order accepted",
			zap.Uint64("order_id", order.ID), zap.String("tx_ref", txRef), zap.Error(err))
		return
	}
	logger.Info("order paid", zap.Uint64("order_id", order.ID), zap.String("tx_ref", txRef))
}

// runProduction feeds one unit of each required material into every operable
// machine and banks its daily output. Each machine's consumption is one
// transaction so a half-fed machine never eats stock.
func (t *Tasks) runProduction(ctx context.Context, day int) {
	machines, err := t.machines.ListOperable(ctx)
	if err != nil {
		logger.Error("production skipped, machine listing failed", zap.Error(err))
		return
	}
	if len(machines) == 0 {
		logger.Warn("production skipped, no operable machine", zap.Int("day", day))
		return
	}

	produced := 0
	for _, machine := range machines {
		err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			txStock := t.stock.WithTx(tx)
			for _, material := range t.opts.RequiredMaterials {
				if err := txStock.Consume(ctx, material, 1); err != nil {
					return err
				}
			}
			return txStock.Add(ctx, model.FinishedGoods, machine.OutputPerDay)
		})
		if err != nil {
			if errors.Is(err, repository.ErrInsufficientStock) {
				logger.Debug("machine idle, insufficient stock", zap.Uint64("machine_id", machine.ID))
				continue
			}
			logger.Error("production run failed", zap.Uint64("machine_id", machine.ID), zap.Error(err))
			continue
		}
		produced += machine.OutputPerDay
	}
	if produced > 0 {
		logger.Info("production complete", zap.Int("day", day), zap.Int("units", produced))
	}
}

// fulfillOrders books in delivered materials for accepted orders, including
// ones the payment worker accepted between ticks.
func (t *Tasks) fulfillOrders(ctx context.Context) {
	orders, err := t.orders.ListByStatus(ctx, model.OrderAccepted, 100)
	if err != nil {
		logger.Error("fulfillment skipped, order listing failed", zap.Error(err))
		return
	}
	for _, order := range orders {
		err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := t.stock.WithTx(tx).Add(ctx, order.Material, order.Units); err != nil {
				return err
			}
			return t.orders.WithTx(tx).UpdateStatus(ctx, order.ID, model.OrderDelivered)
		})
		if err != nil {
			logger.Error("fulfillment failed", zap.Uint64("order_id", order.ID), zap.Error(err))
			continue
		}
		logger.Info("order fulfilled", zap.Uint64("order_id", order.ID),
			zap.String("material", order.Material), zap.Int("units", order.Units))
	}
}
