// Package sim owns the simulation clock. The engine drives the one-time
// startup sequence and the per-day task ordering; anything that still fails
// after its local retry budget is handed to the durable retry queue.
package sim

import (
	"context"
	"errors"
	"sync"
	"time"

	"fabrika/internal/bank"
	"fabrika/internal/metrics"
	"fabrika/internal/model"
	"fabrika/internal/repository"
	"fabrika/internal/retry"
	"fabrika/internal/retryjob"
	"fabrika/internal/supplier"
	"fabrika/pkg/logger"

	"go.uber.org/zap"
)

// DayListener is invoked after each completed tick, before AdvanceDay
// returns. Listeners are registered explicitly at wiring time; in practice
// there is a single one.
type DayListener func(ctx context.Context, day int) error

// DailyTasks is the material-acquisition / production / fulfillment set run
// once per day after the balance and machine checks.
type DailyTasks interface {
	Run(ctx context.Context, day int, balance int64) error
}

type Options struct {
	RetryAttempts      int
	RetryDelay         time.Duration
	NotificationURL    string
	MachineBudgetRatio float64
}

type DayReport struct {
	Day             int    `json:"day"`
	StartupFailed   bool   `json:"startup_failed,omitempty"`
	StartupError    string `json:"startup_error,omitempty"`
	Balance         int64  `json:"balance"`
	MachineAcquired string `json:"machine_acquired,omitempty"`
}

type Engine struct {
	bank      bank.API
	balances  repository.BalanceInterface
	machines  repository.MachineInterface
	sourcer   *supplier.Sourcer
	market    supplier.MachineMarket
	daily     DailyTasks
	publisher retryjob.Publisher
	obs       metrics.Observer
	opts      Options

	// advanceMu serializes whole ticks; mu guards the counters so Running()
	// and CurrentDay() never block behind an in-flight tick.
	advanceMu sync.Mutex
	mu        sync.Mutex
	day       int
	operating bool
	account   string
	loanRef   string

	listeners []DayListener
}

func NewEngine(api bank.API, balances repository.BalanceInterface, machines repository.MachineInterface,
	sourcer *supplier.Sourcer, market supplier.MachineMarket, daily DailyTasks,
	publisher retryjob.Publisher, obs metrics.Observer, opts Options) *Engine {
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 3
	}
	if opts.MachineBudgetRatio <= 0 {
		opts.MachineBudgetRatio = 0.2
	}
	if obs == nil {
		obs = metrics.NopObserver{}
	}
	if publisher == nil {
		publisher = retryjob.NewPublisher(nil, "", nil, nil)
	}
	return &Engine{
		bank:      api,
		balances:  balances,
		machines:  machines,
		sourcer:   sourcer,
		market:    market,
		daily:     daily,
		publisher: publisher,
		obs:       obs,
		opts:      opts,
	}
}

// RegisterDayListener adds a listener awaited on each tick. Not safe to call
// concurrently with AdvanceDay; registration happens during wiring.
func (e *Engine) RegisterDayListener(l DayListener) {
	e.listeners = append(e.listeners, l)
}

// SetPublisher and SetDailyTasks complete wiring. The publisher gates on the
// engine's own run state and the daily tasks publish through it, so neither
// can be a constructor argument.
func (e *Engine) SetPublisher(p retryjob.Publisher) {
	if p != nil {
		e.publisher = p
	}
}

func (e *Engine) SetDailyTasks(d DailyTasks) {
	e.daily = d
}

// Running reports whether the clock has started advancing. The retry
// publisher gates on this.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.day >= 1
}

// Operating reports whether the startup sequence has completed.
func (e *Engine) Operating() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.operating
}

func (e *Engine) CurrentDay() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.day
}

// AdvanceDay moves the clock forward exactly one day. Day 1 first runs the
// startup sequence; a startup failure is reported in the DayReport, not
// raised, and the daily tick still runs.
func (e *Engine) AdvanceDay(ctx context.Context) DayReport {
	e.advanceMu.Lock()
	defer e.advanceMu.Unlock()

	e.mu.Lock()
	e.day++
	day := e.day
	e.mu.Unlock()

	report := DayReport{Day: day}
	logger.Info("advancing day", zap.Int("day", day))

	if day == 1 {
		if err := e.ExecuteStartupSequence(ctx); err != nil {
			logger.Error("startup sequence failed", zap.Error(err))
			report.StartupFailed = true
			report.StartupError = err.Error()
		} else {
			e.mu.Lock()
			e.operating = true
			e.mu.Unlock()
		}
	}

	e.tick(ctx, &report)

	for _, l := range e.listeners {
		if err := l(ctx, day); err != nil {
			logger.Warn("day listener failed", zap.Int("day", day), zap.Error(err))
		}
	}

	e.obs.DayAdvanced(day)
	return report
}

// ExecuteStartupSequence performs the once-only bank and planning steps.
// Partially completed steps are not rolled back: an account created before a
// rejected loan stays.
func (e *Engine) ExecuteStartupSequence(ctx context.Context) error {
	_, err := retry.Do(ctx, e.opts.RetryAttempts, e.opts.RetryDelay, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, e.bank.SetNotificationURL(ctx, e.opts.NotificationURL)
	})
	if err != nil {
		e.deferAccountSetup(ctx, err)
		return err
	}
	logger.Info("bank notification url registered", zap.String("url", e.opts.NotificationURL))

	account, err := retry.Do(ctx, e.opts.RetryAttempts, e.opts.RetryDelay, func(ctx context.Context) (string, error) {
		return e.bank.CreateAccount(ctx)
	})
	if err != nil {
		e.deferAccountSetup(ctx, err)
		return err
	}
	e.mu.Lock()
	e.account = account
	e.mu.Unlock()
	logger.Info("bank account ensured", zap.String("account", account))

	plan, err := e.selectStartupPlan(ctx)
	if err != nil {
		return err
	}
	logger.Info("startup plan selected",
		zap.String("machine", plan.Machine.Model), zap.Int64("total_cost", plan.TotalCost))

	loanRef, err := retry.Do(ctx, e.opts.RetryAttempts, e.opts.RetryDelay, func(ctx context.Context) (string, error) {
		return e.bank.RequestLoan(ctx, plan.TotalCost)
	})
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.loanRef = loanRef
	e.mu.Unlock()
	logger.Info("startup loan granted", zap.String("loan_ref", loanRef), zap.Int64("amount", plan.TotalCost))
	return nil
}

// deferAccountSetup hands the exhausted account-setup steps to the durable
// queue. The handler replays both the notification URL and account creation,
// so one job covers whichever step failed.
func (e *Engine) deferAccountSetup(ctx context.Context, err error) {
	logger.Error("bank account setup exhausted retries, deferring", zap.Error(err))
	if pubErr := e.publisher.Publish(ctx, retryjob.BankAccountRetryJob{NotificationURL: e.opts.NotificationURL}); pubErr != nil {
		logger.Error("failed to publish account setup retry job", zap.Error(pubErr))
	}
}

// tick runs the unconditional per-day steps in fixed order.
func (e *Engine) tick(ctx context.Context, report *DayReport) {
	balance := e.queryBalance(ctx, report.Day)
	report.Balance = balance

	report.MachineAcquired = e.evaluateMachines(ctx, balance)

	if e.daily != nil {
		if err := e.daily.Run(ctx, report.Day, balance); err != nil {
			logger.Error("daily tasks failed", zap.Int("day", report.Day), zap.Error(err))
		}
	}
}

// queryBalance fetches and persists the day's balance. When the local retry
// budget is exhausted the query is deferred to the durable queue and the last
// persisted balance is used for the rest of the tick.
func (e *Engine) queryBalance(ctx context.Context, day int) int64 {
	balance, err := retry.Do(ctx, e.opts.RetryAttempts, e.opts.RetryDelay, func(ctx context.Context) (int64, error) {
		return e.bank.Balance(ctx)
	})
	if err != nil {
		logger.Error("balance query exhausted retries, deferring", zap.Int("day", day), zap.Error(err))
		if pubErr := e.publisher.Publish(ctx, retryjob.BankBalanceRetryJob{Day: day}); pubErr != nil {
			logger.Error("failed to publish balance retry job", zap.Error(pubErr))
		}
		if last, lerr := e.balances.Latest(ctx); lerr == nil && last != nil {
			return last.Balance
		}
		return 0
	}

	if err := e.balances.Append(ctx, &model.BalanceSnapshot{Day: day, Balance: balance}); err != nil {
		logger.Error("failed to persist balance snapshot", zap.Int("day", day), zap.Error(err))
	}
	e.obs.ObserveBalance(balance)
	return balance
}

// evaluateMachines acquires a machine when none is operable, or when an
// affordable one (cost within the budget ratio of the balance) is on offer.
// Deliberately a simple threshold, not an optimizer.
func (e *Engine) evaluateMachines(ctx context.Context, balance int64) string {
	operable, err := e.machines.ListOperable(ctx)
	if err != nil {
		logger.Error("machine availability check failed", zap.Error(err))
		return ""
	}

	quotes, err := e.market.AvailableMachines(ctx)
	if err != nil {
		logger.Warn("machine market unavailable, skipping acquisition", zap.Error(err))
		return ""
	}
	if len(quotes) == 0 {
		return ""
	}

	cheapest := quotes[0]
	for _, q := range quotes[1:] {
		if q.Cost < cheapest.Cost {
			cheapest = q
		}
	}

	budget := int64(float64(balance) * e.opts.MachineBudgetRatio)
	if len(operable) > 0 && cheapest.Cost > budget {
		return ""
	}

	machine := &model.Machine{
		Model:        cheapest.Model,
		Cost:         cheapest.Cost,
		OutputPerDay: cheapest.OutputPerDay,
		Status:       model.MachineOK,
	}
	if err := e.machines.Create(ctx, machine); err != nil {
		logger.Error("failed to persist acquired machine", zap.String("model", cheapest.Model), zap.Error(err))
		return ""
	}
	logger.Info("machine acquired", zap.String("model", cheapest.Model), zap.Int64("cost", cheapest.Cost))
	return cheapest.Model
}

var errNoFeasiblePlan = errors.New("sim: no feasible startup plan")
