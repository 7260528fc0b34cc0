package retryjob

import (
	"context"

	"fabrika/internal/bank"
	"fabrika/internal/model"
	"fabrika/internal/repository"
	"fabrika/pkg/logger"

	"go.uber.org/zap"
)

// Clock exposes the current simulated day to handlers that stamp records.
type Clock interface {
	CurrentDay() int
}

// BankAccountHandler replays the bank-account setup call.
type BankAccountHandler struct {
	bank bank.API
}

func NewBankAccountHandler(api bank.API) *BankAccountHandler {
	return &BankAccountHandler{bank: api}
}

func (h *BankAccountHandler) Handle(ctx context.Context, job BankAccountRetryJob) bool {
	if job.NotificationURL != "" {
		if err := h.bank.SetNotificationURL(ctx, job.NotificationURL); err != nil {
			logger.Error("bank account retry: notification url", zap.Error(err))
			return false
		}
	}
	account, err := h.bank.CreateAccount(ctx)
	if err != nil {
		logger.Error("bank account retry: create account", zap.Error(err))
		return false
	}
	logger.Info("bank account ensured via retry", zap.String("account", account))
	return true
}

// BankBalanceHandler replays a balance query and appends the snapshot. The
// query is idempotent, so a failed persist simply redelivers.
type BankBalanceHandler struct {
	bank     bank.API
	balances repository.BalanceInterface
	clock    Clock
}

func NewBankBalanceHandler(api bank.API, balances repository.BalanceInterface, clock Clock) *BankBalanceHandler {
	return &BankBalanceHandler{bank: api, balances: balances, clock: clock}
}

func (h *BankBalanceHandler) Handle(ctx context.Context, job BankBalanceRetryJob) bool {
	balance, err := h.bank.Balance(ctx)
	if err != nil {
		logger.Error("bank balance retry: query", zap.Int("day", job.Day), zap.Error(err))
		return false
	}
	day := job.Day
	if day == 0 && h.clock != nil {
		day = h.clock.CurrentDay()
	}
	if err := h.balances.Append(ctx, &model.BalanceSnapshot{Day: day, Balance: balance}); err != nil {
		logger.Error("bank balance retry: persist", zap.Int("day", day), zap.Error(err))
		return false
	}
	logger.Info("bank balance recovered via retry", zap.Int("day", day), zap.Int64("balance", balance))
	return true
}
