package ops

import (
	"context"
	"fmt"
	"testing"

	"fabrika/internal/bank"
	"fabrika/internal/model"
	"fabrika/internal/repository"
	"fabrika/internal/retryjob"
	"fabrika/internal/supplier"
	"fabrika/pkg/logger"

	"gorm.io/gorm"
)

func init() {
	logger.InitLogger("test")
}

type mockBank struct {
	bank.API
	payErr   error
	payCalls int
}

func (m *mockBank) MakePayment(ctx context.Context, p bank.PaymentRequest) (string, error) {
	m.payCalls++
	if m.payErr != nil {
		return "", m.payErr
	}
	return "tx-1", nil
}

type mockOrders struct {
	nextID   uint64
	statuses map[uint64]string
}

func (m *mockOrders) Create(ctx context.Context, order *model.Order) error {
	m.nextID++
	order.ID = m.nextID
	m.statuses[order.ID] = order.Status
	return nil
}
func (m *mockOrders) GetByID(ctx context.Context, id uint64) (*model.Order, error) {
	return nil, nil
}
func (m *mockOrders) UpdateStatus(ctx context.Context, id uint64, status string) error {
	m.statuses[id] = status
	return nil
}
func (m *mockOrders) ListByStatus(ctx context.Context, status string, limit int) ([]model.Order, error) {
	return nil, nil
}
func (m *mockOrders) ListRecent(ctx context.Context, limit int) ([]model.Order, error) {
	return nil, nil
}
func (m *mockOrders) WithTx(tx *gorm.DB) repository.OrderInterface { return m }

type mockStock struct {
	units map[string]int
}

func (m *mockStock) Get(ctx context.Context, material string) (int, error) {
	return m.units[material], nil
}
func (m *mockStock) Add(ctx context.Context, material string, units int) error {
	m.units[material] += units
	return nil
}
func (m *mockStock) Consume(ctx context.Context, material string, units int) error {
	if m.units[material] < units {
		return repository.ErrInsufficientStock
	}
	m.units[material] -= units
	return nil
}
func (m *mockStock) WithTx(tx *gorm.DB) repository.StockInterface { return m }

type mockPublisher struct {
	published []retryjob.Job
}

func (m *mockPublisher) Publish(ctx context.Context, job retryjob.Job) error {
	m.published = append(m.published, job)
	return nil
}

type mockCapability struct {
	name      string
	materials []supplier.Material
}

func (m *mockCapability) Name() string { return m.name }
func (m *mockCapability) Remittance() supplier.Remittance {
	return supplier.Remittance{Account: "acct-" + m.name, BankID: "commercial"}
}
func (m *mockCapability) AvailableMaterials(ctx context.Context) ([]supplier.Material, error) {
	return m.materials, nil
}

func newTasks(b *mockBank, orders *mockOrders, stock *mockStock, pub *mockPublisher) *Tasks {
	sourcer := supplier.NewSourcer([]supplier.Capability{
		&mockCapability{name: "ore-house", materials: []supplier.Material{
			{Name: "copper", Quantity: 100, PricePerUnit: 3},
		}},
	})
	return NewTasks(nil, b, sourcer, orders, stock, nil, pub, Options{
		RequiredMaterials: []string{"copper"},
		MaterialFloor:     10,
		MaterialBatch:     20,
		RetryAttempts:     3,
		RetryDelay:        0,
	})
}

func TestAcquireMaterials_ExhaustedPaymentEscalatesToQueue(t *testing.T) {
	b := &mockBank{payErr: fmt.Errorf("%w: status 502", bank.ErrCallFailed)}
	orders := &mockOrders{statuses: map[uint64]string{}}
	pub := &mockPublisher{}

	tasks := newTasks(b, orders, &mockStock{units: map[string]int{}}, pub)
	tasks.acquireMaterials(context.Background())

	if b.payCalls != 3 {
		t.Errorf("payment attempted %d times, want full retry budget of 3", b.payCalls)
	}
	if got := orders.statuses[1]; got != model.OrderPaymentFailed {
		t.Errorf("order status = %q, want PAYMENT_FAILED", got)
	}
	if len(pub.published) != 1 {
		t.Fatalf("expected one payment retry job, got %d", len(pub.published))
	}
	job, ok := pub.published[0].(retryjob.PaymentRetryJob)
	if !ok {
		t.Fatalf("published %T", pub.published[0])
	}
	if job.OrderID != 1 || job.Amount != 60 || job.RecipientName != "ore-house" {
		t.Errorf("job = %+v", job)
	}
}

func TestAcquireMaterials_MalformedResponseNotRetriedLocally(t *testing.T) {
	b := &mockBank{payErr: fmt.Errorf("%w: missing transaction_reference", bank.ErrMalformedResponse)}
	orders := &mockOrders{statuses: map[uint64]string{}}
	pub := &mockPublisher{}

	tasks := newTasks(b, orders, &mockStock{units: map[string]int{}}, pub)
	tasks.acquireMaterials(context.Background())

	if b.payCalls != 1 {
		t.Errorf("malformed response retried locally: %d calls", b.payCalls)
	}
	if len(pub.published) != 1 {
		t.Errorf("expected escalation to the queue, published=%v", pub.published)
	}
}

func TestAcquireMaterials_SuccessfulPaymentAcceptsOrder(t *testing.T) {
	b := &mockBank{}
	orders := &mockOrders{statuses: map[uint64]string{}}
	pub := &mockPublisher{}

	tasks := newTasks(b, orders, &mockStock{units: map[string]int{}}, pub)
	tasks.acquireMaterials(context.Background())

	if got := orders.statuses[1]; got != model.OrderAccepted {
		t.Errorf("order status = %q, want ACCEPTED", got)
	}
	if len(pub.published) != 0 {
		t.Errorf("no retry job expected on success, got %v", pub.published)
	}
}

func TestAcquireMaterials_StockAtFloorSkipsOrdering(t *testing.T) {
	b := &mockBank{}
	orders := &mockOrders{statuses: map[uint64]string{}}

	tasks := newTasks(b, orders, &mockStock{units: map[string]int{"copper": 10}}, &mockPublisher{})
	tasks.acquireMaterials(context.Background())

	if len(orders.statuses) != 0 {
		t.Errorf("no order expected, got %v", orders.statuses)
	}
	if b.payCalls != 0 {
		t.Errorf("no payment expected, got %d", b.payCalls)
	}
}
