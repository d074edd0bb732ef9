package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"creditledger/internal/domain"
	"creditledger/pkg/errors"
)

type DebtAccountRepository struct {
	db *sqlx.DB
}

func NewDebtAccountRepository(db *sqlx.DB) *DebtAccountRepository {
	return &DebtAccountRepository{db: db}
}

// Create inserts a new open debt account. The partial unique index on
// (owner_id, service_id) WHERE closed_at IS NULL turns a concurrent second
// activation into ErrServiceAlreadyActivated instead of a duplicate.
func (r *DebtAccountRepository) Create(ctx context.Context, account *domain.DebtAccount) error {
	query := `
		INSERT INTO debt_accounts (
			id, owner_id, service_id, provider_id, grant_id, initial_debt, current_debt,
			status, is_revolving, closed_at, created_at, updated_at
		) VALUES (
			:id, :owner_id, :service_id, :provider_id, :grant_id, :initial_debt, :current_debt,
			:status, :is_revolving, :closed_at, :created_at, :updated_at
		)
	`
	_, err := r.db.NamedExecContext(ctx, query, account)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.ErrServiceAlreadyActivated
		}
		return errors.Wrap(err, "failed to create debt account")
	}
	return nil
}

func (r *DebtAccountRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.DebtAccount, error) {
	account := &domain.DebtAccount{}
	query := `SELECT * FROM debt_accounts WHERE id = $1`
	err := r.db.GetContext(ctx, account, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrAccountNotFound
		}
		return nil, errors.Wrap(err, "failed to find debt account")
	}
	return account, nil
}

// FindByIDForUpdateTx locks the account row for the rest of the transaction.
// Every order-dependent read of current_debt goes through here.
func (r *DebtAccountRepository) FindByIDForUpdateTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*domain.DebtAccount, error) {
	account := &domain.DebtAccount{}
	query := `SELECT * FROM debt_accounts WHERE id = $1 FOR UPDATE`
	err := tx.GetContext(ctx, account, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrAccountNotFound
		}
		return nil, errors.Wrap(err, "failed to lock debt account")
	}
	return account, nil
}

func (r *DebtAccountRepository) FindOpen(ctx context.Context, ownerID, serviceID uuid.UUID) (*domain.DebtAccount, error) {
	account := &domain.DebtAccount{}
	query := `SELECT * FROM debt_accounts WHERE owner_id = $1 AND service_id = $2 AND closed_at IS NULL`
	err := r.db.GetContext(ctx, account, query, ownerID, serviceID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrAccountNotFound
		}
		return nil, errors.Wrap(err, "failed to find open debt account")
	}
	return account, nil
}

// UpdateDebtTx writes both debt fields inside the caller's transaction. The
// table's check constraints back up the service-level bounds validation.
func (r *DebtAccountRepository) UpdateDebtTx(ctx context.Context, tx *sqlx.Tx, account *domain.DebtAccount) error {
	query := `
		UPDATE debt_accounts SET
			initial_debt = :initial_debt,
			current_debt = :current_debt,
			updated_at = NOW()
		WHERE id = :id
	`
	_, err := tx.NamedExecContext(ctx, query, account)
	return errors.Wrap(err, "failed to update debt")
}

// FinalizeTx records the terminal status and closure timestamp.
func (r *DebtAccountRepository) FinalizeTx(ctx context.Context, tx *sqlx.Tx, account *domain.DebtAccount) error {
	query := `
		UPDATE debt_accounts SET
			status = :status,
			closed_at = :closed_at,
			updated_at = NOW()
		WHERE id = :id
	`
	_, err := tx.NamedExecContext(ctx, query, account)
	return errors.Wrap(err, "failed to finalize debt account")
}

// TotalActiveDebt sums current debt across an owner's open accounts.
func (r *DebtAccountRepository) TotalActiveDebt(ctx context.Context, ownerID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.Decimal
	query := `SELECT COALESCE(SUM(current_debt), 0) FROM debt_accounts WHERE owner_id = $1 AND closed_at IS NULL`
	err := r.db.GetContext(ctx, &total, query, ownerID)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "failed to sum active debt")
	}
	return total, nil
}

// HasActiveAccount reports whether the owner has any open debt account,
// optionally narrowed to one service.
func (r *DebtAccountRepository) HasActiveAccount(ctx context.Context, ownerID uuid.UUID, serviceID *uuid.UUID) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM debt_accounts WHERE owner_id = $1 AND closed_at IS NULL AND ($2::uuid IS NULL OR service_id = $2))`
	err := r.db.GetContext(ctx, &exists, query, ownerID, serviceID)
	return exists, errors.Wrap(err, "failed to check active accounts")
}

// GrantRepository manages the authorization objects debt accounts hang off.
type GrantRepository struct {
	db *sqlx.DB
}

func NewGrantRepository(db *sqlx.DB) *GrantRepository {
	return &GrantRepository{db: db}
}

// Deactivate turns a grant off. Deactivating an already-inactive grant is a
// conflict the caller may choose to swallow.
func (r *GrantRepository) Deactivate(ctx context.Context, grantID uuid.UUID) error {
	query := `UPDATE grants SET is_active = FALSE, deactivated_at = NOW() WHERE id = $1 AND is_active`
	result, err := r.db.ExecContext(ctx, query, grantID)
	if err != nil {
		return errors.Wrap(err, "failed to deactivate grant")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.ErrAlreadyDeactivated
	}
	return nil
}
