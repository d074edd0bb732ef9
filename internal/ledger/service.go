// Package ledger implements the stage/commit primitives of the ledger core.
//
// Staging builds an entry against an in-memory wallet and answers "may this
// delta be applied"; committing applies the delta atomically and persists the
// entry. Everything money-related in the repository funnels through here.
package ledger

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

// WalletRepository is the wallet persistence the ledger needs.
type WalletRepository interface {
	GetOrCreate(ctx context.Context, ownerID uuid.UUID, currency string, kind domain.WalletKind) (*domain.Wallet, error)
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error)
	ApplyDeltaTx(ctx context.Context, tx *sqlx.Tx, walletID uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error)
}

// EntryRepository is the append-only entry store.
type EntryRepository interface {
	InsertTx(ctx context.Context, tx *sqlx.Tx, entry *domain.LedgerEntry) error
	FindByRefTx(ctx context.Context, tx *sqlx.Tx, ref domain.EntryRef) (*domain.LedgerEntry, error)
	FindByWallet(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]*domain.LedgerEntry, error)
	CountByWallet(ctx context.Context, walletID uuid.UUID) (int, error)
}

type Service struct {
	wallets WalletRepository
	entries EntryRepository
	logger  logger.Logger
}

func NewService(wallets WalletRepository, entries EntryRepository, log logger.Logger) *Service {
	return &Service{
		wallets: wallets,
		entries: entries,
		logger:  log,
	}
}

// Wallet resolves the wallet for (owner, currency, kind), creating it lazily.
func (s *Service) Wallet(ctx context.Context, ownerID uuid.UUID, currency string, kind domain.WalletKind) (*domain.Wallet, error) {
	return s.wallets.GetOrCreate(ctx, ownerID, currency, kind)
}

// WalletByID returns an existing wallet by id.
func (s *Service) WalletByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	return s.wallets.FindByID(ctx, id)
}

// StageOptions tune a staged entry.
type StageOptions struct {
	Description string
	// AllowNegative permits the wallet to be drawn below zero.
	AllowNegative bool
}

// Stage builds an uncommitted entry for a signed delta against the wallet.
// It returns nil when the wallet is inactive or when the delta would take the
// balance negative without AllowNegative: insufficient funds is an answer,
// not an exception, so callers can decide what a nil means for their flow.
func (s *Service) Stage(wallet *domain.Wallet, legType domain.LegType, amount decimal.Decimal, opts StageOptions) *domain.LedgerEntry {
	if wallet == nil || !wallet.IsActive {
		return nil
	}

	amount = amount.Round(domain.Precision)
	balanceAfter := wallet.Balance.Add(amount)
	if !opts.AllowNegative && balanceAfter.IsNegative() {
		s.logger.Warn("rejecting entry that would overdraw wallet", map[string]interface{}{
			"wallet_id": wallet.ID,
			"amount":    amount.String(),
			"balance":   wallet.Balance.String(),
		})
		return nil
	}

	return &domain.LedgerEntry{
		ID:          uuid.New(),
		WalletID:    wallet.ID,
		Type:        legType,
		Amount:      amount,
		Description: opts.Description,
		CreatedAt:   time.Now(),
	}
}

// Commit applies the staged delta and persists the entry, all inside the
// caller's transaction. The wallet balance is updated with a single
// update-and-return statement so concurrent commits on the same wallet cannot
// lose updates. When ref is set and an entry already exists for it, the
// existing entry is returned unchanged: retries apply money exactly once.
//
// A negative post-update balance without allowNegative means the staged check
// lost a race; that is ErrNegativeBalance, reported and fatal to the
// enclosing transaction. The caller owns cache invalidation.
func (s *Service) Commit(ctx context.Context, tx *sqlx.Tx, entry *domain.LedgerEntry, ref *domain.EntryRef, allowNegative bool) (*domain.LedgerEntry, error) {
	if ref != nil {
		existing, err := s.entries.FindByRefTx(ctx, tx, *ref)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
		entry.RefModule = &ref.Module
		entry.RefID = &ref.ID
	}

	balance, err := s.wallets.ApplyDeltaTx(ctx, tx, entry.WalletID, entry.Amount)
	if err != nil {
		return nil, err
	}

	if balance.IsNegative() && !allowNegative {
		s.logger.Error("negative balance after commit", map[string]interface{}{
			"wallet_id": entry.WalletID,
			"amount":    entry.Amount.String(),
			"balance":   balance.String(),
		})
		return nil, errors.ErrNegativeBalance
	}

	entry.Balance = balance
	if err := s.entries.InsertTx(ctx, tx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// History returns a page of a wallet's entries, newest first, with the total
// count.
func (s *Service) History(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]*domain.LedgerEntry, int, error) {
	if _, err := s.wallets.FindByID(ctx, walletID); err != nil {
		return nil, 0, err
	}
	entries, err := s.entries.FindByWallet(ctx, walletID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.entries.CountByWallet(ctx, walletID)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
