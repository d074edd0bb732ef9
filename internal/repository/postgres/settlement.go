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

type SettlementRepository struct {
	db *sqlx.DB
}

func NewSettlementRepository(db *sqlx.DB) *SettlementRepository {
	return &SettlementRepository{db: db}
}

// Create inserts a settlement record. A partial unique index allows at most
// one unsettled record per debt account, so a racing second create fails here
// instead of passing a query-then-insert check.
func (r *SettlementRepository) Create(ctx context.Context, record *domain.SettlementRecord) error {
	query := `
		INSERT INTO settlement_records (
			id, debt_account_id, amount, fee_amount, status, settled_at,
			remaining_balance, provider_withdraw_count, created_at, updated_at
		) VALUES (
			:id, :debt_account_id, :amount, :fee_amount, :status, :settled_at,
			:remaining_balance, :provider_withdraw_count, :created_at, :updated_at
		)
	`
	_, err := r.db.NamedExecContext(ctx, query, record)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.ErrSettlementExists
		}
		return errors.Wrap(err, "failed to create settlement record")
	}
	return nil
}

// HasUnsettled reports whether an unsettled record exists for the account:
// no settlement timestamp yet and not unknown-rejected.
func (r *SettlementRepository) HasUnsettled(ctx context.Context, accountID uuid.UUID) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM settlement_records
			WHERE debt_account_id = $1 AND settled_at IS NULL AND status <> $2
		)
	`
	err := r.db.GetContext(ctx, &exists, query, accountID, domain.SettlementStatusUnknownRejected)
	return exists, errors.Wrap(err, "failed to check unsettled records")
}

func (r *SettlementRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.SettlementRecord, error) {
	record := &domain.SettlementRecord{}
	query := `SELECT * FROM settlement_records WHERE id = $1`
	err := r.db.GetContext(ctx, record, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrSettlementNotFound
		}
		return nil, errors.Wrap(err, "failed to find settlement record")
	}
	if err := r.loadLegs(ctx, r.db, record); err != nil {
		return nil, err
	}
	return record, nil
}

// FindByIDForUpdateTx locks the record row and loads its legs inside the
// caller's transaction.
func (r *SettlementRepository) FindByIDForUpdateTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*domain.SettlementRecord, error) {
	record := &domain.SettlementRecord{}
	query := `SELECT * FROM settlement_records WHERE id = $1 FOR UPDATE`
	err := tx.GetContext(ctx, record, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrSettlementNotFound
		}
		return nil, errors.Wrap(err, "failed to lock settlement record")
	}
	if err := r.loadLegs(ctx, tx, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (r *SettlementRepository) loadLegs(ctx context.Context, q sqlx.QueryerContext, record *domain.SettlementRecord) error {
	var legs []domain.SettlementLeg
	query := `SELECT * FROM settlement_legs WHERE record_id = $1 ORDER BY created_at`
	err := sqlx.SelectContext(ctx, q, &legs, query, record.ID)
	if err != nil {
		return errors.Wrap(err, "failed to load settlement legs")
	}
	record.Legs = legs
	return nil
}

// AddLegTx records that one settlement step produced a ledger entry. The
// unique (record_id, kind) constraint makes re-running a step impossible to
// double-record.
func (r *SettlementRepository) AddLegTx(ctx context.Context, tx *sqlx.Tx, leg *domain.SettlementLeg) error {
	query := `
		INSERT INTO settlement_legs (record_id, kind, entry_id, created_at)
		VALUES (:record_id, :kind, :entry_id, :created_at)
	`
	_, err := tx.NamedExecContext(ctx, query, leg)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Wrap(err, "duplicate settlement leg")
		}
		return errors.Wrap(err, "failed to add settlement leg")
	}
	return nil
}

// SetSettledAtTx stamps the settlement timestamp; it is written only once,
// when the user leg commits.
func (r *SettlementRepository) SetSettledAtTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, settledAt time.Time) error {
	query := `UPDATE settlement_records SET settled_at = $1, updated_at = NOW() WHERE id = $2 AND settled_at IS NULL`
	_, err := tx.ExecContext(ctx, query, settledAt, id)
	return errors.Wrap(err, "failed to set settlement timestamp")
}

func (r *SettlementRepository) UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, status domain.SettlementStatus) error {
	query := `UPDATE settlement_records SET status = $1, updated_at = NOW() WHERE id = $2`
	_, err := tx.ExecContext(ctx, query, status, id)
	return errors.Wrap(err, "failed to update settlement status")
}

func (r *SettlementRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.SettlementStatus) error {
	query := `UPDATE settlement_records SET status = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, status, id)
	return errors.Wrap(err, "failed to update settlement status")
}

// SetRemainingBalance snapshots the user wallet balance after settlement.
// Write-once: later calls leave the first snapshot intact.
func (r *SettlementRepository) SetRemainingBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error {
	query := `UPDATE settlement_records SET remaining_balance = $1, updated_at = NOW() WHERE id = $2 AND remaining_balance IS NULL`
	_, err := r.db.ExecContext(ctx, query, balance, id)
	return errors.Wrap(err, "failed to set remaining balance")
}

// FindPending returns confirmed or unknown-confirmed records whose user leg
// has not been created yet.
func (r *SettlementRepository) FindPending(ctx context.Context, limit int) ([]*domain.SettlementRecord, error) {
	var records []*domain.SettlementRecord
	query := `
		SELECT sr.* FROM settlement_records sr
		WHERE sr.status IN ($1, $2)
		  AND NOT EXISTS (
			SELECT 1 FROM settlement_legs sl
			WHERE sl.record_id = sr.id AND sl.kind = $3
		  )
		ORDER BY sr.created_at
		LIMIT $4
	`
	err := r.db.SelectContext(ctx, &records, query,
		domain.SettlementStatusConfirmed, domain.SettlementStatusUnknownConfirmed, domain.LegUserWithdraw, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find pending settlements")
	}
	return records, nil
}

// HasPendingForOwner reports whether any of the owner's accounts has a
// settlement waiting for its user leg.
func (r *SettlementRepository) HasPendingForOwner(ctx context.Context, ownerID uuid.UUID) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM settlement_records sr
			JOIN debt_accounts da ON da.id = sr.debt_account_id
			WHERE da.owner_id = $1
			  AND sr.status IN ($2, $3)
			  AND NOT EXISTS (
				SELECT 1 FROM settlement_legs sl
				WHERE sl.record_id = sr.id AND sl.kind = $4
			  )
		)
	`
	err := r.db.GetContext(ctx, &exists, query,
		ownerID, domain.SettlementStatusConfirmed, domain.SettlementStatusUnknownConfirmed, domain.LegUserWithdraw)
	return exists, errors.Wrap(err, "failed to check pending settlements")
}

// MarkStaleInitiatedUnknownConfirmed flips initiated records older than the
// cutoff to unknown_confirmed so the worker can settle them.
func (r *SettlementRepository) MarkStaleInitiatedUnknownConfirmed(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		UPDATE settlement_records SET status = $1, updated_at = NOW()
		WHERE status = $2 AND created_at <= $3
	`
	result, err := r.db.ExecContext(ctx, query,
		domain.SettlementStatusUnknownConfirmed, domain.SettlementStatusInitiated, time.Now().Add(-olderThan))
	if err != nil {
		return 0, errors.Wrap(err, "failed to sweep stale initiated settlements")
	}
	rows, err := result.RowsAffected()
	return rows, errors.Wrap(err, "failed to get rows affected")
}

// IncrementProviderWithdrawCount marks that a provider withdrawal request was
// issued against this record, closing the reversal window.
func (r *SettlementRepository) IncrementProviderWithdrawCount(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE settlement_records SET provider_withdraw_count = provider_withdraw_count + 1, updated_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return errors.Wrap(err, "failed to increment provider withdraw count")
}
