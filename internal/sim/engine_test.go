package sim

import (
	"context"
	"errors"
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
	notifyErr   error
	accountErr  error
	loanErr     error
	balanceErr  error
	balance     int64
	loanCalls   int
	loanAmounts []int64
}

func (m *mockBank) SetNotificationURL(ctx context.Context, url string) error { return m.notifyErr }
func (m *mockBank) CreateAccount(ctx context.Context) (string, error) {
	if m.accountErr != nil {
		return "", m.accountErr
	}
	return "acct-1", nil
}
func (m *mockBank) RequestLoan(ctx context.Context, amount int64) (string, error) {
	m.loanCalls++
	m.loanAmounts = append(m.loanAmounts, amount)
	if m.loanErr != nil {
		return "", m.loanErr
	}
	return "loan-1", nil
}
func (m *mockBank) MakePayment(ctx context.Context, p bank.PaymentRequest) (string, error) {
	return "tx-1", nil
}
func (m *mockBank) Balance(ctx context.Context) (int64, error) {
	if m.balanceErr != nil {
		return 0, m.balanceErr
	}
	return m.balance, nil
}

type mockBalances struct {
	snapshots []model.BalanceSnapshot
}

func (m *mockBalances) Append(ctx context.Context, s *model.BalanceSnapshot) error {
	m.snapshots = append(m.snapshots, *s)
	return nil
}
func (m *mockBalances) Latest(ctx context.Context) (*model.BalanceSnapshot, error) {
	if len(m.snapshots) == 0 {
		return nil, nil
	}
	s := m.snapshots[len(m.snapshots)-1]
	return &s, nil
}
func (m *mockBalances) WithTx(tx *gorm.DB) repository.BalanceInterface { return m }

type mockMachines struct {
	operable []model.Machine
	created  []model.Machine
}

func (m *mockMachines) Create(ctx context.Context, machine *model.Machine) error {
	m.created = append(m.created, *machine)
	return nil
}
func (m *mockMachines) ListOperable(ctx context.Context) ([]model.Machine, error) {
	return m.operable, nil
}
func (m *mockMachines) UpdateStatus(ctx context.Context, id uint64, status string) error {
	return nil
}
func (m *mockMachines) WithTx(tx *gorm.DB) repository.MachineInterface { return m }

type mockMarket struct {
	quotes []supplier.MachineQuote
	err    error
}

func (m *mockMarket) AvailableMachines(ctx context.Context) ([]supplier.MachineQuote, error) {
	return m.quotes, m.err
}

type mockCapability struct {
	name      string
	materials []supplier.Material
}

func (m *mockCapability) Name() string                    { return m.name }
func (m *mockCapability) Remittance() supplier.Remittance { return supplier.Remittance{} }
func (m *mockCapability) AvailableMaterials(ctx context.Context) ([]supplier.Material, error) {
	return m.materials, nil
}

type mockDaily struct {
	runs []int
}

func (m *mockDaily) Run(ctx context.Context, day int, balance int64) error {
	m.runs = append(m.runs, day)
	return nil
}

type mockPublisher struct {
	published []retryjob.Job
}

func (m *mockPublisher) Publish(ctx context.Context, job retryjob.Job) error {
	m.published = append(m.published, job)
	return nil
}

func newTestEngine(b *mockBank, machines *mockMachines, market *mockMarket, daily *mockDaily, pub *mockPublisher) (*Engine, *mockBalances) {
	balances := &mockBalances{}
	sourcer := supplier.NewSourcer([]supplier.Capability{
		&mockCapability{name: "ore-house", materials: []supplier.Material{
			{Name: "copper", Quantity: 100, PricePerUnit: 2},
			{Name: "tin", Quantity: 100, PricePerUnit: 3},
		}},
	})
	return NewEngine(b, balances, machines, sourcer, market, daily, pub, nil, Options{
		RetryAttempts:      3,
		RetryDelay:         0,
		NotificationURL:    "http://localhost/callback",
		MachineBudgetRatio: 0.2,
	}), balances
}

func TestAdvanceDay_StartupLoanFailureStillRunsDailyTasks(t *testing.T) {
	b := &mockBank{balance: 10000, loanErr: errors.New("loan rejected")}
	daily := &mockDaily{}
	market := &mockMarket{quotes: []supplier.MachineQuote{
		{Model: "press-1", Cost: 500, OutputPerDay: 4, RequiredMaterials: map[string]int{"copper": 10}},
	}}
	e, _ := newTestEngine(b, &mockMachines{}, market, daily, &mockPublisher{})

	report := e.AdvanceDay(context.Background())

	if !report.StartupFailed {
		t.Fatal("expected startup failure to be reported")
	}
	if b.loanCalls != 3 {
		t.Errorf("loan attempted %d times, want 3", b.loanCalls)
	}
	if len(daily.runs) != 1 || daily.runs[0] != 1 {
		t.Errorf("daily tasks must still run on day 1, runs=%v", daily.runs)
	}
	if e.Operating() {
		t.Error("engine must not be operating after failed startup")
	}
	if !e.Running() {
		t.Error("clock is running once day 1 has been triggered")
	}
}

func TestAdvanceDay_StartupPicksCheapestPlan(t *testing.T) {
	b := &mockBank{balance: 10000}
	market := &mockMarket{quotes: []supplier.MachineQuote{
		// 900 + 10*2 = 920
		{Model: "press-9", Cost: 900, RequiredMaterials: map[string]int{"copper": 10}},
		// 800 + 20*3 = 860, cheapest
		{Model: "press-8", Cost: 800, RequiredMaterials: map[string]int{"tin": 20}},
		// unsourceable material, infeasible
		{Model: "press-x", Cost: 1, RequiredMaterials: map[string]int{"unobtanium": 1}},
	}}
	e, _ := newTestEngine(b, &mockMachines{}, market, &mockDaily{}, &mockPublisher{})

	report := e.AdvanceDay(context.Background())

	if report.StartupFailed {
		t.Fatalf("unexpected startup failure: %s", report.StartupError)
	}
	if !e.Operating() {
		t.Fatal("engine should be operating after successful startup")
	}
	if len(b.loanAmounts) != 1 || b.loanAmounts[0] != 860 {
		t.Errorf("loan amounts = %v, want [860]", b.loanAmounts)
	}
}

func TestAdvanceDay_BalanceFailurePublishesRetryJob(t *testing.T) {
	b := &mockBank{balanceErr: errors.New("bank down")}
	pub := &mockPublisher{}
	market := &mockMarket{err: errors.New("market down")}
	e, balances := newTestEngine(b, &mockMachines{operable: []model.Machine{{ID: 1}}}, market, &mockDaily{}, pub)

	e.AdvanceDay(context.Background())

	found := false
	for _, job := range pub.published {
		if j, ok := job.(retryjob.BankBalanceRetryJob); ok && j.Day == 1 {
			found = true
		}
	}
	if !found {
		t.Errorf("expected BankBalanceRetryJob for day 1, published=%v", pub.published)
	}
	if len(balances.snapshots) != 0 {
		t.Errorf("no snapshot should be persisted on failure, got %v", balances.snapshots)
	}
}

func TestAdvanceDay_AccountSetupFailurePublishesRetryJob(t *testing.T) {
	b := &mockBank{balance: 1000, accountErr: errors.New("bank down")}
	pub := &mockPublisher{}
	market := &mockMarket{quotes: []supplier.MachineQuote{
		{Model: "press-1", Cost: 10, RequiredMaterials: map[string]int{"copper": 1}},
	}}
	e, _ := newTestEngine(b, &mockMachines{}, market, &mockDaily{}, pub)

	report := e.AdvanceDay(context.Background())

	if !report.StartupFailed {
		t.Fatal("expected startup failure to be reported")
	}
	found := false
	for _, job := range pub.published {
		if j, ok := job.(retryjob.BankAccountRetryJob); ok {
			found = true
			if j.NotificationURL != "http://localhost/callback" {
				t.Errorf("job notification url = %q", j.NotificationURL)
			}
		}
	}
	if !found {
		t.Errorf("expected BankAccountRetryJob, published=%v", pub.published)
	}
}

func TestAdvanceDay_MachineAcquiredWhenNoneOperable(t *testing.T) {
	b := &mockBank{balance: 100}
	machines := &mockMachines{}
	market := &mockMarket{quotes: []supplier.MachineQuote{
		{Model: "press-big", Cost: 5000, OutputPerDay: 9, RequiredMaterials: map[string]int{"copper": 1}},
		{Model: "press-small", Cost: 400, OutputPerDay: 2, RequiredMaterials: map[string]int{"copper": 1}},
	}}
	e, _ := newTestEngine(b, machines, market, &mockDaily{}, &mockPublisher{})

	report := e.AdvanceDay(context.Background())

	// No operable machine: acquisition happens even though 400 > 20% of 100.
	if report.MachineAcquired != "press-small" {
		t.Errorf("acquired %q, want cheapest press-small", report.MachineAcquired)
	}
	if len(machines.created) != 1 || machines.created[0].Status != model.MachineOK {
		t.Errorf("created = %+v", machines.created)
	}
}

func TestAdvanceDay_NoAcquisitionWhenOperableAndUnaffordable(t *testing.T) {
	b := &mockBank{balance: 100}
	machines := &mockMachines{operable: []model.Machine{{ID: 1, Status: model.MachineOK}}}
	market := &mockMarket{quotes: []supplier.MachineQuote{
		{Model: "press-1", Cost: 400, RequiredMaterials: map[string]int{"copper": 1}},
	}}
	e, _ := newTestEngine(b, machines, market, &mockDaily{}, &mockPublisher{})

	report := e.AdvanceDay(context.Background())

	if report.MachineAcquired != "" {
		t.Errorf("unexpected acquisition %q", report.MachineAcquired)
	}
}

func TestAdvanceDay_ListenersAwaited(t *testing.T) {
	b := &mockBank{balance: 1000}
	market := &mockMarket{quotes: []supplier.MachineQuote{
		{Model: "press-1", Cost: 10, RequiredMaterials: map[string]int{"copper": 1}},
	}}
	e, _ := newTestEngine(b, &mockMachines{}, market, &mockDaily{}, &mockPublisher{})

	var seen []int
	e.RegisterDayListener(func(ctx context.Context, day int) error {
		seen = append(seen, day)
		return nil
	})
	e.RegisterDayListener(func(ctx context.Context, day int) error {
		return errors.New("listener failure must not break the tick")
	})

	e.AdvanceDay(context.Background())
	e.AdvanceDay(context.Background())

	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Errorf("listener saw %v", seen)
	}
	if e.CurrentDay() != 2 {
		t.Errorf("day = %d", e.CurrentDay())
	}
}

func TestRunning_FalseBeforeFirstDay(t *testing.T) {
	e, _ := newTestEngine(&mockBank{}, &mockMachines{}, &mockMarket{}, &mockDaily{}, &mockPublisher{})
	if e.Running() {
		t.Error("clock must not be running before day 1")
	}
}
