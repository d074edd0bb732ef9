// Package debt manages the lifecycle of debt accounts.
package debt

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"creditledger/internal/domain"
	"creditledger/pkg/errors"
	"creditledger/pkg/logger"
)

// Repository is the debt account persistence the service needs.
type Repository interface {
	Create(ctx context.Context, account *domain.DebtAccount) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.DebtAccount, error)
	FindByIDForUpdateTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*domain.DebtAccount, error)
	UpdateDebtTx(ctx context.Context, tx *sqlx.Tx, account *domain.DebtAccount) error
	FinalizeTx(ctx context.Context, tx *sqlx.Tx, account *domain.DebtAccount) error
	TotalActiveDebt(ctx context.Context, ownerID uuid.UUID) (decimal.Decimal, error)
	HasActiveAccount(ctx context.Context, ownerID uuid.UUID, serviceID *uuid.UUID) (bool, error)
}

// GrantRepository deactivates the authorization object an account hangs off.
type GrantRepository interface {
	Deactivate(ctx context.Context, grantID uuid.UUID) error
}

type Service struct {
	db     *sqlx.DB
	repo   Repository
	grants GrantRepository
	logger logger.Logger
}

func NewService(db *sqlx.DB, repo Repository, grants GrantRepository, log logger.Logger) *Service {
	return &Service{
		db:     db,
		repo:   repo,
		grants: grants,
		logger: log,
	}
}

// OpenRequest describes a new debt account.
type OpenRequest struct {
	OwnerID     uuid.UUID
	ServiceID   uuid.UUID
	ProviderID  string
	GrantID     uuid.UUID
	InitialDebt decimal.Decimal
	IsRevolving bool
}

// Open activates a debt account with current debt equal to initial debt.
// A second open account for the same (owner, service) pair surfaces
// ErrServiceAlreadyActivated.
func (s *Service) Open(ctx context.Context, req OpenRequest) (*domain.DebtAccount, error) {
	if req.InitialDebt.IsNegative() {
		return nil, errors.ErrInvalidAmount
	}

	now := time.Now()
	account := &domain.DebtAccount{
		ID:          uuid.New(),
		OwnerID:     req.OwnerID,
		ServiceID:   req.ServiceID,
		ProviderID:  req.ProviderID,
		GrantID:     req.GrantID,
		InitialDebt: req.InitialDebt,
		CurrentDebt: req.InitialDebt,
		Status:      domain.DebtStatusInitiated,
		IsRevolving: req.IsRevolving,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// Get returns an account by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.DebtAccount, error) {
	return s.repo.FindByID(ctx, id)
}

// AdjustCurrentDebtTx moves the remaining debt by delta inside the caller's
// transaction. The account must already be row-locked by the caller.
func (s *Service) AdjustCurrentDebtTx(ctx context.Context, tx *sqlx.Tx, account *domain.DebtAccount, delta decimal.Decimal) error {
	if account.IsClosed() {
		return errors.ErrClosedAccount
	}

	next := account.CurrentDebt.Add(delta)
	if next.IsNegative() || next.GreaterThan(account.InitialDebt) {
		return errors.ErrAmountExceedsDebt
	}

	account.CurrentDebt = next
	return s.repo.UpdateDebtTx(ctx, tx, account)
}

// AdjustDebtTx moves the debt ceiling and the remaining debt together, for
// the case where the charge itself changes (e.g. new spending on a revolving
// account).
func (s *Service) AdjustDebtTx(ctx context.Context, tx *sqlx.Tx, account *domain.DebtAccount, delta decimal.Decimal) error {
	if account.IsClosed() {
		return errors.ErrClosedAccount
	}

	nextInitial := account.InitialDebt.Add(delta)
	nextCurrent := account.CurrentDebt.Add(delta)
	if nextInitial.IsNegative() || nextCurrent.IsNegative() {
		return errors.ErrAmountExceedsDebt
	}

	account.InitialDebt = nextInitial
	account.CurrentDebt = nextCurrent
	return s.repo.UpdateDebtTx(ctx, tx, account)
}

// AdjustCurrentDebt runs AdjustCurrentDebtTx in its own transaction, locking
// the account row first.
func (s *Service) AdjustCurrentDebt(ctx context.Context, accountID uuid.UUID, delta decimal.Decimal) (*domain.DebtAccount, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	account, err := s.repo.FindByIDForUpdateTx(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}
	if err := s.AdjustCurrentDebtTx(ctx, tx, account, delta); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit transaction")
	}
	return account, nil
}

// FinalizeTx closes the account with a terminal status once its debt reaches
// zero. Revolving accounts never auto-close, and accounts with remaining
// debt are left alone; both are silent no-ops because finalize is called
// opportunistically after every settlement.
//
// Deactivating the grant is best-effort: an already-deactivated grant is
// reported, not fatal, since finalize's contract is the debt transition.
func (s *Service) FinalizeTx(ctx context.Context, tx *sqlx.Tx, account *domain.DebtAccount, status domain.DebtAccountStatus, closedAt *time.Time) error {
	if account.IsClosed() {
		return errors.ErrClosedAccount
	}

	if account.IsRevolving || !account.CurrentDebt.IsZero() {
		return nil
	}

	when := time.Now()
	if closedAt != nil {
		when = *closedAt
	}
	account.Status = status
	account.ClosedAt = &when
	if err := s.repo.FinalizeTx(ctx, tx, account); err != nil {
		return err
	}

	if err := s.grants.Deactivate(ctx, account.GrantID); err != nil {
		if err != errors.ErrAlreadyDeactivated {
			return err
		}
		s.logger.Error("grant already deactivated on finalize", map[string]interface{}{
			"account_id": account.ID,
			"grant_id":   account.GrantID,
		})
	}
	return nil
}

// TotalActiveDebt sums the owner's remaining debt across open accounts.
func (s *Service) TotalActiveDebt(ctx context.Context, ownerID uuid.UUID) (decimal.Decimal, error) {
	return s.repo.TotalActiveDebt(ctx, ownerID)
}

// HasActiveAccount reports whether the owner has an open account, optionally
// for one specific service.
func (s *Service) HasActiveAccount(ctx context.Context, ownerID uuid.UUID, serviceID *uuid.UUID) (bool, error) {
	return s.repo.HasActiveAccount(ctx, ownerID, serviceID)
}
