package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fabrika/internal/api"
	"fabrika/internal/bank"
	"fabrika/internal/config"
	"fabrika/internal/metrics"
	"fabrika/internal/model"
	"fabrika/internal/ops"
	"fabrika/internal/payment"
	"fabrika/internal/queue"
	"fabrika/internal/repository"
	"fabrika/internal/retryjob"
	"fabrika/internal/sim"
	"fabrika/internal/supplier"
	"fabrika/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func main() {
	cfg := config.Load()

	logger.InitLogger(cfg.Server.Environment)
	defer logger.Sync()

	if err := run(cfg); err != nil {
		logger.Error("application startup failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Infrastructure
	rdb, err := initRedis(cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	db, err := initDB(cfg.MySQL)
	if err != nil {
		return err
	}

	// Repositories
	orderRepo := repository.NewOrderRepository(db)
	machineRepo := repository.NewMachineRepository(db)
	balanceRepo := repository.NewBalanceRepository(db)
	stockRepo := repository.NewStockRepository(db)

	// External partners
	bankClient := bank.NewClient(cfg.Bank.BaseURL, cfg.Bank.Timeout)

	capabilities := make([]supplier.Capability, 0, len(cfg.Suppliers))
	for _, s := range cfg.Suppliers {
		capabilities = append(capabilities, supplier.NewHTTPCapability(s.Name, s.URL, supplier.Remittance{
			Account: s.BankAccount,
			BankID:  s.BankID,
		}, cfg.Bank.Timeout))
	}
	sourcer := supplier.NewSourcer(capabilities)
	market := supplier.NewHTTPMachineMarket(cfg.Machines.MarketURL, cfg.Machines.Timeout)

	// Queue + metrics
	q := queue.New(rdb, cfg.Queues.VisibilityTimeout)
	observer := metrics.NewPrometheusObserver()

	// Engine first: the publishers gate on its run state.
	engine := sim.NewEngine(bankClient, balanceRepo, machineRepo, sourcer, market, nil, nil, observer, sim.Options{
		RetryAttempts:      cfg.Sim.RetryAttempts,
		RetryDelay:         cfg.Sim.RetryDelay,
		NotificationURL:    cfg.Bank.NotificationURL,
		MachineBudgetRatio: cfg.Sim.MachineBudgetRatio,
	})

	retryPublisher := retryjob.NewPublisher(q, cfg.Queues.Retry, engine, observer)
	paymentPublisher := retryjob.NewPublisher(q, cfg.Queues.Payment, engine, observer)
	engine.SetPublisher(retryPublisher)

	daily := ops.NewTasks(db, bankClient, sourcer, orderRepo, stockRepo, machineRepo, paymentPublisher, ops.Options{
		RequiredMaterials: cfg.Sim.RequiredMaterials,
		MaterialFloor:     cfg.Sim.MaterialFloor,
		MaterialBatch:     cfg.Sim.MaterialBatch,
		RetryAttempts:     cfg.Sim.RetryAttempts,
		RetryDelay:        cfg.Sim.RetryDelay,
	})
	engine.SetDailyTasks(daily)

	engine.RegisterDayListener(func(ctx context.Context, day int) error {
		logger.Info("day completed", zap.Int("day", day))
		return nil
	})

	// Retry job dispatch
	registry := retryjob.NewRegistry()
	accountHandler := retryjob.NewBankAccountHandler(bankClient)
	balanceHandler := retryjob.NewBankBalanceHandler(bankClient, balanceRepo, engine)
	retryjob.Register(registry, accountHandler.Handle)
	retryjob.Register(registry, balanceHandler.Handle)

	dispatcher := retryjob.NewDispatcher(q, cfg.Queues.Retry, registry,
		cfg.Queues.BatchSize, cfg.Queues.PollWait, observer)
	paymentWorker := payment.NewWorker(q, cfg.Queues.Payment, bankClient, orderRepo,
		cfg.Queues.BatchSize, cfg.Queues.PollWait, observer)

	go func() {
		logger.Info("starting retry job dispatcher")
		dispatcher.Run(ctx)
	}()
	go func() {
		logger.Info("starting payment retry worker")
		paymentWorker.Run(ctx)
	}()
	go func() {
		logger.Info("starting queue reaper")
		q.RunReaper(ctx, cfg.Queues.ReaperInterval, cfg.Queues.Retry, cfg.Queues.Payment)
	}()

	// HTTP trigger surface
	r := api.RegisterRoutes(
		api.NewSimHandler(engine, orderRepo, balanceRepo),
		api.NewAuthHandler(cfg.Auth),
		[]byte(cfg.Auth.Secret),
	)

	srv := &http.Server{
		Addr:    cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("server starting",
			zap.String("addr", cfg.Server.Port),
			zap.String("env", cfg.Server.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Signal consumer loops to finish their current batch and exit.
	cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server exited properly")
	return nil
}

// -- Infrastructure Initializers --

func initRedis(cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

func initDB(cfg config.MySQLConfig) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mysql: %w", err)
	}

	// Simple auto-migrate for dev convenience
	err = db.AutoMigrate(
		&model.Order{},
		&model.Machine{},
		&model.BalanceSnapshot{},
		&model.MaterialStock{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}
