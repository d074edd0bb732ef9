// Daily reconciliation report for the ledger. Read-only: every check queries
// committed state and prints findings; nothing is mutated.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	"creditledger/internal/repository/postgres"
	"creditledger/pkg/config"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := postgres.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	fmt.Println("=========================================================")
	fmt.Println("CREDIT LEDGER - DAILY RECONCILIATION REPORT")
	fmt.Printf("Time: %s\n", time.Now().Format(time.RFC3339))
	fmt.Println("=========================================================")

	ctx := context.Background()

	reportWalletTotals(ctx, db)
	reportNegativeBalances(ctx, db)
	reportBalanceDrift(ctx, db)
	reportDebtBounds(ctx, db)
	reportStaleSettlements(ctx, db)
}

func reportWalletTotals(ctx context.Context, db *sqlx.DB) {
	fmt.Println("\n[1] Wallet Totals by Currency and Kind")
	rows, err := db.QueryContext(ctx, `
		SELECT currency, kind, SUM(balance)
		FROM wallets
		GROUP BY currency, kind
		ORDER BY currency, kind
	`)
	if err != nil {
		log.Fatalf("Failed to query wallet totals: %v", err)
	}
	defer rows.Close()

	for rows.Next() {
		var currency, kind string
		var total decimal.Decimal
		if err := rows.Scan(&currency, &kind, &total); err != nil {
			log.Printf("Error scanning row: %v", err)
			continue
		}
		fmt.Printf("    - %s/%s: %s\n", currency, kind, total.String())
	}
}

func reportNegativeBalances(ctx context.Context, db *sqlx.DB) {
	fmt.Println("\n[2] Negative Balance Check")
	rows, err := db.QueryContext(ctx, `
		SELECT id, owner_id, balance, currency
		FROM wallets
		WHERE balance < 0
	`)
	if err != nil {
		log.Fatalf("Failed to query negative balances: %v", err)
	}
	defer rows.Close()

	found := false
	for rows.Next() {
		var id, ownerID string
		var balance decimal.Decimal
		var currency string
		if err := rows.Scan(&id, &ownerID, &balance, &currency); err != nil {
			log.Printf("Error scanning row: %v", err)
			continue
		}
		found = true
		fmt.Printf("    ! wallet %s (owner %s): %s %s\n", id, ownerID, balance.String(), currency)
	}
	if !found {
		fmt.Println("    OK - no negative balances")
	}
}

// reportBalanceDrift cross-checks every wallet balance against the sum of its
// ledger entries. Drift means a balance changed outside the ledger path.
func reportBalanceDrift(ctx context.Context, db *sqlx.DB) {
	fmt.Println("\n[3] Balance vs Ledger Drift Check")
	rows, err := db.QueryContext(ctx, `
		SELECT w.id, w.balance, COALESCE(SUM(le.amount), 0) AS entry_sum
		FROM wallets w
		LEFT JOIN ledger_entries le ON le.wallet_id = w.id
		GROUP BY w.id, w.balance
		HAVING w.balance <> COALESCE(SUM(le.amount), 0)
	`)
	if err != nil {
		log.Fatalf("Failed to query balance drift: %v", err)
	}
	defer rows.Close()

	found := false
	for rows.Next() {
		var id string
		var balance, entrySum decimal.Decimal
		if err := rows.Scan(&id, &balance, &entrySum); err != nil {
			log.Printf("Error scanning row: %v", err)
			continue
		}
		found = true
		fmt.Printf("    ! wallet %s: balance=%s entries=%s\n", id, balance.String(), entrySum.String())
	}
	if !found {
		fmt.Println("    OK - every balance matches its entries")
	}
}

func reportDebtBounds(ctx context.Context, db *sqlx.DB) {
	fmt.Println("\n[4] Debt Bounds Check")
	var count int
	err := db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM debt_accounts
		WHERE current_debt < 0 OR current_debt > initial_debt
	`)
	if err != nil {
		log.Fatalf("Failed to query debt bounds: %v", err)
	}
	if count > 0 {
		fmt.Printf("    ! %d account(s) outside 0 <= current_debt <= initial_debt\n", count)
	} else {
		fmt.Println("    OK - all debt accounts within bounds")
	}
}

func reportStaleSettlements(ctx context.Context, db *sqlx.DB) {
	fmt.Println("\n[5] Stale Unsettled Settlements (>24h)")
	rows, err := db.QueryContext(ctx, `
		SELECT id, debt_account_id, status, created_at
		FROM settlement_records
		WHERE settled_at IS NULL
		  AND status <> 'unknown_rejected'
		  AND created_at < NOW() - INTERVAL '24 hours'
		ORDER BY created_at
	`)
	if err != nil {
		log.Fatalf("Failed to query stale settlements: %v", err)
	}
	defer rows.Close()

	found := false
	for rows.Next() {
		var id, accountID, status string
		var createdAt time.Time
		if err := rows.Scan(&id, &accountID, &status, &createdAt); err != nil {
			log.Printf("Error scanning row: %v", err)
			continue
		}
		found = true
		fmt.Printf("    ! settlement %s (account %s, %s) created %s\n", id, accountID, status, createdAt.Format(time.RFC3339))
	}
	if !found {
		fmt.Println("    OK - no stale settlements")
	}
}
