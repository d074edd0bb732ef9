package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"creditledger/internal/domain"
	"creditledger/pkg/errors"
)

type WalletRepository struct {
	db *sqlx.DB
}

func NewWalletRepository(db *sqlx.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

// GetOrCreate returns the wallet for (owner, currency, kind), creating it
// lazily on first use. The insert races safely against concurrent callers via
// ON CONFLICT DO NOTHING plus a re-read.
func (r *WalletRepository) GetOrCreate(ctx context.Context, ownerID uuid.UUID, currency string, kind domain.WalletKind) (*domain.Wallet, error) {
	wallet, err := r.Find(ctx, ownerID, currency, kind)
	if err == nil {
		return wallet, nil
	}
	if err != errors.ErrWalletNotFound {
		return nil, err
	}

	now := time.Now()
	fresh := &domain.Wallet{
		ID:             uuid.New(),
		OwnerID:        ownerID,
		Currency:       currency,
		Kind:           kind,
		Balance:        decimal.Zero,
		BlockedBalance: decimal.Zero,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	query := `
		INSERT INTO wallets (
			id, owner_id, currency, kind, balance, blocked_balance, is_active, created_at, updated_at
		) VALUES (
			:id, :owner_id, :currency, :kind, :balance, :blocked_balance, :is_active, :created_at, :updated_at
		) ON CONFLICT (owner_id, currency, kind) DO NOTHING
	`
	if _, err := r.db.NamedExecContext(ctx, query, fresh); err != nil {
		return nil, errors.Wrap(err, "failed to create wallet")
	}
	return r.Find(ctx, ownerID, currency, kind)
}

func (r *WalletRepository) Find(ctx context.Context, ownerID uuid.UUID, currency string, kind domain.WalletKind) (*domain.Wallet, error) {
	wallet := &domain.Wallet{}
	query := `SELECT * FROM wallets WHERE owner_id = $1 AND currency = $2 AND kind = $3`
	err := r.db.GetContext(ctx, wallet, query, ownerID, currency, kind)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrWalletNotFound
		}
		return nil, errors.Wrap(err, "failed to find wallet")
	}
	return wallet, nil
}

func (r *WalletRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	wallet := &domain.Wallet{}
	query := `SELECT * FROM wallets WHERE id = $1`
	err := r.db.GetContext(ctx, wallet, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrWalletNotFound
		}
		return nil, errors.Wrap(err, "failed to find wallet by id")
	}
	return wallet, nil
}

func (r *WalletRepository) FindByOwner(ctx context.Context, ownerID uuid.UUID) ([]*domain.Wallet, error) {
	var wallets []*domain.Wallet
	query := `SELECT * FROM wallets WHERE owner_id = $1 ORDER BY created_at`
	err := r.db.SelectContext(ctx, &wallets, query, ownerID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find wallets by owner")
	}
	return wallets, nil
}

// ApplyDeltaTx adds a signed delta to a wallet balance and returns the
// post-update balance in the same statement. This is the only way wallet
// balances change; read-modify-write in application code loses updates under
// concurrent commits.
func (r *WalletRepository) ApplyDeltaTx(ctx context.Context, tx *sqlx.Tx, walletID uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	query := `
		UPDATE wallets SET
			balance = balance + $1,
			updated_at = NOW()
		WHERE id = $2
		RETURNING balance
	`
	err := tx.GetContext(ctx, &balance, query, delta, walletID)
	if err != nil {
		if err == sql.ErrNoRows {
			return decimal.Zero, errors.ErrWalletNotFound
		}
		return decimal.Zero, errors.Wrap(err, "failed to apply wallet delta")
	}
	return balance, nil
}

// SetBlockedBalance updates the informational reservation on a wallet.
func (r *WalletRepository) SetBlockedBalance(ctx context.Context, walletID uuid.UUID, blocked decimal.Decimal) error {
	query := `UPDATE wallets SET blocked_balance = $1, updated_at = NOW() WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, blocked, walletID)
	if err != nil {
		return errors.Wrap(err, "failed to set blocked balance")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.ErrWalletNotFound
	}
	return nil
}

// SetActive activates or deactivates a wallet. Deactivated wallets reject
// new ledger entries but keep their history.
func (r *WalletRepository) SetActive(ctx context.Context, walletID uuid.UUID, active bool) error {
	query := `UPDATE wallets SET is_active = $1, updated_at = NOW() WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, active, walletID)
	if err != nil {
		return errors.Wrap(err, "failed to update wallet activity")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.ErrWalletNotFound
	}
	return nil
}
