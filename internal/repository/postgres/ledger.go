package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"creditledger/internal/domain"
	"creditledger/pkg/errors"
)

// LedgerRepository persists the append-only ledger. Entries are inserted once
// and never updated or deleted; the (ref_module, ref_id) unique constraint is
// the idempotency backstop.
type LedgerRepository struct {
	db *sqlx.DB
}

func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// InsertTx appends a committed entry inside the caller's transaction.
func (r *LedgerRepository) InsertTx(ctx context.Context, tx *sqlx.Tx, entry *domain.LedgerEntry) error {
	query := `
		INSERT INTO ledger_entries (
			id, wallet_id, type, amount, balance, description, ref_module, ref_id, created_at
		) VALUES (
			:id, :wallet_id, :type, :amount, :balance, :description, :ref_module, :ref_id, :created_at
		)
	`
	_, err := tx.NamedExecContext(ctx, query, entry)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Wrap(err, "duplicate ledger entry ref")
		}
		return errors.Wrap(err, "failed to insert ledger entry")
	}
	return nil
}

// FindByRefTx looks up the entry already committed for an idempotency ref, if
// any, inside the caller's transaction.
func (r *LedgerRepository) FindByRefTx(ctx context.Context, tx *sqlx.Tx, ref domain.EntryRef) (*domain.LedgerEntry, error) {
	entry := &domain.LedgerEntry{}
	query := `SELECT * FROM ledger_entries WHERE ref_module = $1 AND ref_id = $2`
	err := tx.GetContext(ctx, entry, query, ref.Module, ref.ID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to find ledger entry by ref")
	}
	return entry, nil
}

func (r *LedgerRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.LedgerEntry, error) {
	entry := &domain.LedgerEntry{}
	query := `SELECT * FROM ledger_entries WHERE id = $1`
	err := r.db.GetContext(ctx, entry, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrEntryNotFound
		}
		return nil, errors.Wrap(err, "failed to find ledger entry by id")
	}
	return entry, nil
}

func (r *LedgerRepository) FindByWallet(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]*domain.LedgerEntry, error) {
	var entries []*domain.LedgerEntry
	query := `SELECT * FROM ledger_entries WHERE wallet_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	err := r.db.SelectContext(ctx, &entries, query, walletID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find ledger entries by wallet")
	}
	return entries, nil
}

func (r *LedgerRepository) CountByWallet(ctx context.Context, walletID uuid.UUID) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM ledger_entries WHERE wallet_id = $1`
	err := r.db.GetContext(ctx, &count, query, walletID)
	return count, errors.Wrap(err, "failed to count ledger entries")
}
