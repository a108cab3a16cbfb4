package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/vaultgate-labs/vaultgate/internal/app"
	"github.com/vaultgate-labs/vaultgate/internal/assets"
	"github.com/vaultgate-labs/vaultgate/internal/dispatch"
	"github.com/vaultgate-labs/vaultgate/internal/epochs"
	"github.com/vaultgate-labs/vaultgate/internal/hooks"
	"github.com/vaultgate-labs/vaultgate/internal/observability"
	"github.com/vaultgate-labs/vaultgate/internal/oracle"
	"github.com/vaultgate-labs/vaultgate/internal/platform/cache"
	"github.com/vaultgate-labs/vaultgate/internal/platform/db"
	"github.com/vaultgate-labs/vaultgate/internal/portfolio"
	"github.com/vaultgate-labs/vaultgate/internal/registry"
	"github.com/vaultgate-labs/vaultgate/internal/safe"
	"github.com/vaultgate-labs/vaultgate/internal/shared"
	"github.com/vaultgate-labs/vaultgate/internal/vault"
	"github.com/vaultgate-labs/vaultgate/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	eth, err := ethclient.DialContext(ctx, cfg.ChainRPCURL)
	if err != nil {
		logger.Error("connect chain rpc", slog.Any("error", err))
		os.Exit(1)
	}
	defer eth.Close()

	executor, err := safe.NewModuleExecutor(ctx, cfg.ChainRPCURL, cfg.SafeModuleAddr(), cfg.ModuleKeyHex, logger)
	if err != nil {
		logger.Error("init safe module executor", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)
	locker := shared.NewLocker(redisClient)
	valuationOracle := oracle.NewContractOracle(eth, cfg.Oracle())
	tracker := portfolio.NewRedisTracker(redisClient)
	fund := cfg.Fund()

	registryRepo := registry.NewRepository(pool)
	registryService := registry.NewService(registryRepo, fund, auditLogger, logger)
	registryHandler := registry.NewHandler(registryService, logger)

	whitelist := hooks.NewWhitelistStore(pool)
	resolver := hooks.NewResolver()
	namespaces := registerValidators(cfg, eth, whitelist, tracker, resolver, fund)
	whitelistAdmin := hooks.NewAdminService(whitelist, fund, auditLogger, logger)
	hooksHandler := hooks.NewHandler(whitelistAdmin, namespaces, logger)

	dispatchRepo := dispatch.NewRepository(pool)
	dispatchService := dispatch.NewService(dispatchRepo, registryService, resolver, executor, locker, auditLogger, metrics, logger, fund)
	dispatchHandler := dispatch.NewHandler(dispatchService, logger)

	epochRepo := epochs.NewRepository(pool)
	epochService := epochs.NewService(epochRepo, auditLogger, fund)

	assetsRepo := assets.NewRepository(pool)
	assetsService := assets.NewService(assetsRepo, fund, auditLogger, logger)
	assetsHandler := assets.NewHandler(assetsService, logger)

	vaultRepo := vault.NewRepository(pool)
	vaultService := vault.NewService(vault.ServiceConfig{
		Repo:           vaultRepo,
		Assets:         assetsService,
		Epochs:         epochService,
		Oracle:         valuationOracle,
		Executor:       executor,
		Audit:          auditLogger,
		Metrics:        metrics,
		Logger:         logger,
		Fund:           fund,
		FeeRecipient:   cfg.FeeRecipientAddr(),
		FeeRateBps:     cfg.FeeRateBps,
		DecimalsOffset: cfg.DecimalsOffset,
		ChainID:        cfg.Chain(),
	})

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	vaultHandler := vault.NewHandler(vaultService, epochService, jobsClient, logger)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		DispatchHandler: dispatchHandler,
		RegistryHandler: registryHandler,
		HooksHandler:    hooksHandler,
		VaultHandler:    vaultHandler,
		AssetsHandler:   assetsHandler,
		JobsHandler:     jobsHandler,
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if err := group.Wait(); err != nil && err != context.Canceled {
		logger.Error("server", slog.Any("error", err))
		os.Exit(1)
	}
}

// registerValidators wires each configured protocol validator into the
// resolver and returns the whitelist namespaces exposed to the admin API.
func registerValidators(cfg *app.Config, eth *ethclient.Client, whitelist hooks.WhitelistStore, tracker portfolio.Tracker, resolver *hooks.Resolver, fund common.Address) []string {
	var namespaces []string
	if common.IsHexAddress(cfg.LiquidityManager) && common.IsHexAddress(cfg.LiquidityValidator) {
		reader := hooks.NewChainPositionReader(eth, common.HexToAddress(cfg.LiquidityManager))
		v := hooks.NewLiquidityValidator(common.HexToAddress(cfg.LiquidityManager), fund, whitelist, reader, tracker)
		resolver.Register(common.HexToAddress(cfg.LiquidityValidator), v)
		namespaces = append(namespaces, v.Name())
	}
	if common.IsHexAddress(cfg.SwapRouter) && common.IsHexAddress(cfg.SwapValidator) {
		v := hooks.NewSwapValidator(common.HexToAddress(cfg.SwapRouter), fund, whitelist)
		resolver.Register(common.HexToAddress(cfg.SwapValidator), v)
		namespaces = append(namespaces, v.Name())
	}
	if common.IsHexAddress(cfg.LendingPool) && common.IsHexAddress(cfg.LendingValidator) {
		collateral := hooks.NewChainCollateralReader(eth, common.HexToAddress(cfg.LendingPool))
		v := hooks.NewLendingValidator(common.HexToAddress(cfg.LendingPool), fund, whitelist, collateral, tracker)
		resolver.Register(common.HexToAddress(cfg.LendingValidator), v)
		namespaces = append(namespaces, v.Name())
	}
	if common.IsHexAddress(cfg.TransferValidator) {
		v := hooks.NewTransferValidator(fund, whitelist)
		resolver.Register(common.HexToAddress(cfg.TransferValidator), v)
		namespaces = append(namespaces, v.Name(), v.SpenderNamespace())
	}
	return namespaces
}
