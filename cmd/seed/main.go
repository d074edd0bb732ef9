// Seeding tool for the house accounts: the fee account, the insurance fund
// and one system wallet per configured provider. Idempotent; safe to re-run.
//
// Usage (env overrides):
//
//	SEED_INSURANCE_BALANCE=1000000000 go run ./cmd/seed
package main

import (
	"context"
	"os"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	"creditledger/internal/domain"
	"creditledger/internal/repository/postgres"
	"creditledger/pkg/config"
	"creditledger/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	log := logger.New("seed")
	cfg := config.Load()

	db, err := postgres.Connect(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", map[string]interface{}{"error": err.Error()})
	}
	defer db.Close()

	walletRepo := postgres.NewWalletRepository(db)
	ctx := context.Background()

	seedWallet(ctx, db, walletRepo, log, "fee account", cfg.Ledger.FeeAccountID, cfg.Ledger.Currency, decimal.Zero)

	insuranceBalance := decimal.Zero
	if raw := os.Getenv("SEED_INSURANCE_BALANCE"); raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			log.Fatal("Invalid SEED_INSURANCE_BALANCE", map[string]interface{}{"value": raw})
		}
		insuranceBalance = parsed
	}
	seedWallet(ctx, db, walletRepo, log, "insurance fund", cfg.Ledger.InsuranceFundAccountID, cfg.Ledger.Currency, insuranceBalance)

	for providerID, ownerID := range cfg.Ledger.ProviderAccounts {
		seedWallet(ctx, db, walletRepo, log, "provider "+providerID, ownerID, cfg.Ledger.Currency, decimal.Zero)
	}

	log.Info("Seeding complete", nil)
}

func seedWallet(ctx context.Context, db *sqlx.DB, repo *postgres.WalletRepository, log logger.Logger, name string, ownerID uuid.UUID, currency string, openingBalance decimal.Decimal) {
	if ownerID == uuid.Nil {
		log.Warn("Skipping unconfigured house account", map[string]interface{}{"account": name})
		return
	}

	wallet, err := repo.GetOrCreate(ctx, ownerID, currency, domain.WalletKindSystem)
	if err != nil {
		log.Fatal("Failed to seed wallet", map[string]interface{}{
			"account": name,
			"error":   err.Error(),
		})
	}

	if openingBalance.IsPositive() && wallet.Balance.IsZero() {
		// Opening balances go through SQL directly: the seed runs before any
		// settlement exists to reference.
		query := `UPDATE wallets SET balance = $1, updated_at = NOW() WHERE id = $2 AND balance = 0`
		if _, err := db.ExecContext(ctx, query, openingBalance, wallet.ID); err != nil {
			log.Fatal("Failed to set opening balance", map[string]interface{}{
				"account": name,
				"error":   err.Error(),
			})
		}
	}

	log.Info("Seeded wallet", map[string]interface{}{
		"account":   name,
		"wallet_id": wallet.ID,
	})
}
