package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/hibiken/asynq"

	"github.com/vaultgate-labs/vaultgate/internal/app"
	"github.com/vaultgate-labs/vaultgate/internal/assets"
	"github.com/vaultgate-labs/vaultgate/internal/epochs"
	jobmetrics "github.com/vaultgate-labs/vaultgate/internal/jobs"
	"github.com/vaultgate-labs/vaultgate/internal/oracle"
	"github.com/vaultgate-labs/vaultgate/internal/platform/db"
	"github.com/vaultgate-labs/vaultgate/internal/safe"
	"github.com/vaultgate-labs/vaultgate/internal/shared"
	"github.com/vaultgate-labs/vaultgate/internal/vault"
	"github.com/vaultgate-labs/vaultgate/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	eth, err := ethclient.DialContext(ctx, cfg.ChainRPCURL)
	if err != nil {
		logger.Error("connect chain rpc", slog.Any("error", err))
		os.Exit(1)
	}
	defer eth.Close()

	fund := cfg.Fund()
	auditLogger := shared.NewAuditLogger(pool)
	valuationOracle := oracle.NewContractOracle(eth, cfg.Oracle())

	epochRepo := epochs.NewRepository(pool)
	epochService := epochs.NewService(epochRepo, auditLogger, fund)

	assetsRepo := assets.NewRepository(pool)
	assetsService := assets.NewService(assetsRepo, fund, auditLogger, logger)

	executor, err := safe.NewModuleExecutor(ctx, cfg.ChainRPCURL, cfg.SafeModuleAddr(), cfg.ModuleKeyHex, logger)
	if err != nil {
		logger.Error("init module executor", slog.Any("error", err))
		os.Exit(1)
	}

	vaultRepo := vault.NewRepository(pool)
	vaultService := vault.NewService(vault.ServiceConfig{
		Repo:           vaultRepo,
		Assets:         assetsService,
		Epochs:         epochService,
		Oracle:         valuationOracle,
		Executor:       executor,
		Audit:          auditLogger,
		Logger:         logger,
		Fund:           fund,
		FeeRecipient:   cfg.FeeRecipientAddr(),
		FeeRateBps:     cfg.FeeRateBps,
		DecimalsOffset: cfg.DecimalsOffset,
		ChainID:        cfg.Chain(),
	})

	metrics := jobmetrics.NewMetrics(nil)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskFeeCollection, Handler: jobs.NewFeeCollectionHandler(vaultService, metrics, logger)},
			{Type: jobs.TaskLedgerIntegrity, Handler: jobs.NewLedgerIntegrityHandler(vaultService, metrics, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/30 * * * *", Task: jobs.NewLedgerIntegrityTask(), Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
