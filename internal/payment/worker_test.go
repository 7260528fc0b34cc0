package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"fabrika/internal/bank"
	"fabrika/internal/model"
	"fabrika/internal/queue"
	"fabrika/internal/retryjob"
	"fabrika/pkg/logger"
)

func init() {
	logger.InitLogger("test")
}

type mockConsumer struct {
	deleted []string
}

func (m *mockConsumer) Receive(ctx context.Context, q string, max int, wait time.Duration) ([]queue.Message, error) {
	return nil, nil
}

func (m *mockConsumer) Delete(ctx context.Context, q string, receipt string) error {
	m.deleted = append(m.deleted, receipt)
	return nil
}

type mockBank struct {
	bank.API
	payments int
	payErr   error
}

func (m *mockBank) MakePayment(ctx context.Context, p bank.PaymentRequest) (string, error) {
	m.payments++
	if m.payErr != nil {
		return "", m.payErr
	}
	return "tx-1", nil
}

type mockOrders struct {
	orders    map[uint64]*model.Order
	lookups   int
	updates   []string
	updateErr error
}

func (m *mockOrders) GetByID(ctx context.Context, id uint64) (*model.Order, error) {
	m.lookups++
	return m.orders[id], nil
}

func (m *mockOrders) UpdateStatus(ctx context.Context, id uint64, status string) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.updates = append(m.updates, fmt.Sprintf("%d:%s", id, status))
	if o, ok := m.orders[id]; ok {
		o.Status = status
	}
	return nil
}

func paymentMessage(t *testing.T, receipt string, job retryjob.PaymentRetryJob) queue.Message {
	t.Helper()
	payload, err := json.Marshal(job)
	if err != nil {
		t.Fatal(err)
	}
	body, err := json.Marshal(retryjob.Envelope{JobType: retryjob.TagPayment, Payload: payload})
	if err != nil {
		t.Fatal(err)
	}
	return queue.Message{Receipt: receipt, Body: body}
}

func newWorker(consumer *mockConsumer, b *mockBank, orders *mockOrders) *Worker {
	return NewWorker(consumer, "payments", b, orders, 10, time.Millisecond, nil)
}

func TestWorker_AcceptedOrderIsIdempotentNoOp(t *testing.T) {
	consumer := &mockConsumer{}
	b := &mockBank{}
	orders := &mockOrders{orders: map[uint64]*model.Order{
		4: {ID: 4, Status: model.OrderAccepted},
	}}

	w := newWorker(consumer, b, orders)
	w.process(context.Background(), paymentMessage(t, "r1", retryjob.PaymentRetryJob{OrderID: 4}))

	if b.payments != 0 {
		t.Errorf("expected zero payment calls, got %d", b.payments)
	}
	if len(consumer.deleted) != 1 {
		t.Errorf("resolved order must be acknowledged, deleted=%v", consumer.deleted)
	}
}

func TestWorker_MissingOrderDroppedWithoutPayment(t *testing.T) {
	consumer := &mockConsumer{}
	b := &mockBank{}
	orders := &mockOrders{orders: map[uint64]*model.Order{}}

	w := newWorker(consumer, b, orders)
	w.process(context.Background(), paymentMessage(t, "r2", retryjob.PaymentRetryJob{OrderID: 99}))

	if b.payments != 0 {
		t.Errorf("expected zero payment calls, got %d", b.payments)
	}
	if len(consumer.deleted) != 1 {
		t.Errorf("stale message must be deleted, deleted=%v", consumer.deleted)
	}
}

func TestWorker_PoisonBodyDeletedWithoutStoreAccess(t *testing.T) {
	consumer := &mockConsumer{}
	b := &mockBank{}
	orders := &mockOrders{orders: map[uint64]*model.Order{}}

	w := newWorker(consumer, b, orders)
	w.process(context.Background(), queue.Message{Receipt: "r3", Body: []byte("{{not json")})

	if orders.lookups != 0 {
		t.Errorf("poison message must not touch the order store, lookups=%d", orders.lookups)
	}
	if b.payments != 0 {
		t.Errorf("poison message must not trigger payments, got %d", b.payments)
	}
	if len(consumer.deleted) != 1 {
		t.Errorf("poison message must be deleted immediately, deleted=%v", consumer.deleted)
	}
}

func TestWorker_SuccessfulReplayAdvancesOrder(t *testing.T) {
	consumer := &mockConsumer{}
	b := &mockBank{}
	orders := &mockOrders{orders: map[uint64]*model.Order{
		7: {ID: 7, Status: model.OrderPaymentFailed},
	}}

	w := newWorker(consumer, b, orders)
	w.process(context.Background(), paymentMessage(t, "r4", retryjob.PaymentRetryJob{
		OrderID: 7, RecipientName: "steelworks", Amount: 500, Reference: "order-7",
	}))

	if b.payments != 1 {
		t.Fatalf("expected one payment call, got %d", b.payments)
	}
	if orders.orders[7].Status != model.OrderAccepted {
		t.Errorf("order status = %q", orders.orders[7].Status)
	}
	if len(consumer.deleted) != 1 {
		t.Errorf("replayed message must be acknowledged, deleted=%v", consumer.deleted)
	}
}

func TestWorker_CallFailureLeavesMessage(t *testing.T) {
	consumer := &mockConsumer{}
	b := &mockBank{payErr: fmt.Errorf("%w: status 502", bank.ErrCallFailed)}
	orders := &mockOrders{orders: map[uint64]*model.Order{
		8: {ID: 8, Status: model.OrderPending},
	}}

	w := newWorker(consumer, b, orders)
	w.process(context.Background(), paymentMessage(t, "r5", retryjob.PaymentRetryJob{OrderID: 8}))

	if len(consumer.deleted) != 0 {
		t.Errorf("failed call must leave the message for redelivery, deleted=%v", consumer.deleted)
	}
	if orders.orders[8].Status != model.OrderPending {
		t.Errorf("order status must not move on failure, got %q", orders.orders[8].Status)
	}
}

func TestWorker_PaidButPersistFailedLeavesMessage(t *testing.T) {
	consumer := &mockConsumer{}
	b := &mockBank{}
	orders := &mockOrders{
		orders:    map[uint64]*model.Order{9: {ID: 9, Status: model.OrderPending}},
		updateErr: errors.New("db down"),
	}

	w := newWorker(consumer, b, orders)
	w.process(context.Background(), paymentMessage(t, "r6", retryjob.PaymentRetryJob{OrderID: 9}))

	if b.payments != 1 {
		t.Fatalf("expected one payment call, got %d", b.payments)
	}
	if len(consumer.deleted) != 0 {
		t.Errorf("failed status update must leave the message for redelivery, deleted=%v", consumer.deleted)
	}
}
