package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"creditledger/internal/balancecache"
	"creditledger/internal/debt"
	"creditledger/internal/ledger"
	"creditledger/internal/notification"
	"creditledger/internal/repository/postgres"
	"creditledger/internal/settlement"
	"creditledger/pkg/cache"
	"creditledger/pkg/config"
	"creditledger/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.New("settlement-worker")

	log.Info("Starting settlement worker", map[string]interface{}{
		"interval":   cfg.Worker.Interval.String(),
		"batch_size": cfg.Worker.BatchSize,
	})

	db, err := postgres.Connect(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", map[string]interface{}{
			"error": err.Error(),
		})
	}
	defer db.Close()

	redisCache, err := cache.NewRedisCache(cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatal("Failed to connect to redis", map[string]interface{}{
			"error": err.Error(),
		})
	}
	defer redisCache.Close()

	walletRepo := postgres.NewWalletRepository(db)
	entryRepo := postgres.NewLedgerRepository(db)
	debtRepo := postgres.NewDebtAccountRepository(db)
	grantRepo := postgres.NewGrantRepository(db)
	settlementRepo := postgres.NewSettlementRepository(db)

	ledgerService := ledger.NewService(walletRepo, entryRepo, log)
	debtService := debt.NewService(db, debtRepo, grantRepo, log)
	balances := balancecache.NewManager(redisCache)
	providers := settlement.NewConfigProviderAccounts(cfg.Ledger.ProviderAccounts, cfg.Ledger.Currency, ledgerService)
	estimator := settlement.NewDebtCollateralEstimator(debtService)

	settlementService := settlement.NewService(settlement.Deps{
		DB:        db,
		Repo:      settlementRepo,
		Accounts:  debtRepo,
		Debts:     debtService,
		Ledger:    ledgerService,
		Entries:   entryRepo,
		Providers: providers,
		Policy:    settlement.NewCollateralShortfallPolicy(estimator),
		Cache:     balances,
		Notifier:  notification.NewService(log),
		Config:    cfg.Ledger,
		Logger:    log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(cfg.Worker.Interval)
	defer ticker.Stop()

	for {
		runOnce(ctx, settlementService, cfg.Worker, log)

		select {
		case <-ctx.Done():
			log.Info("Settlement worker stopping", nil)
			return
		case <-ticker.C:
		}
	}
}

func runOnce(ctx context.Context, svc *settlement.Service, cfg config.WorkerConfig, log logger.Logger) {
	swept, err := svc.SweepStaleInitiated(ctx, cfg.StaleInitiatedAge)
	if err != nil {
		log.Error("Failed to sweep stale settlements", map[string]interface{}{
			"error": err.Error(),
		})
	} else if swept > 0 {
		log.Info("Promoted stale initiated settlements", map[string]interface{}{
			"count": swept,
		})
	}

	settled, err := svc.ProcessPending(ctx, cfg.BatchSize)
	if err != nil {
		log.Error("Failed to process pending settlements", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if settled > 0 {
		log.Info("Settled pending records", map[string]interface{}{
			"count": settled,
		})
	}
}
