// Package settlement orchestrates multi-leg money movement against debt
// accounts: forward settlement legs, their compensating reverses, and the
// provider acknowledgment lifecycle around them.
//
// Every flow runs in a single database transaction with the settlement record
// and its debt account row-locked up front. Individual legs are idempotent
// through the ledger's (ref_module, ref_id) pair, so a retried flow re-reads
// what an earlier run committed instead of moving money twice.
package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"creditledger/internal/domain"
	"creditledger/internal/ledger"
	"creditledger/internal/notification"
	"creditledger/pkg/config"
	"creditledger/pkg/errors"
	"creditledger/pkg/logger"
	"creditledger/pkg/validator"
)

// Repository is the settlement record persistence the orchestrator needs.
type Repository interface {
	Create(ctx context.Context, record *domain.SettlementRecord) error
	HasUnsettled(ctx context.Context, accountID uuid.UUID) (bool, error)
	FindByID(ctx context.Context, id uuid.UUID) (*domain.SettlementRecord, error)
	FindByIDForUpdateTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*domain.SettlementRecord, error)
	AddLegTx(ctx context.Context, tx *sqlx.Tx, leg *domain.SettlementLeg) error
	SetSettledAtTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, settledAt time.Time) error
	UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, status domain.SettlementStatus) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.SettlementStatus) error
	SetRemainingBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error
	FindPending(ctx context.Context, limit int) ([]*domain.SettlementRecord, error)
	HasPendingForOwner(ctx context.Context, ownerID uuid.UUID) (bool, error)
	MarkStaleInitiatedUnknownConfirmed(ctx context.Context, olderThan time.Duration) (int64, error)
	IncrementProviderWithdrawCount(ctx context.Context, id uuid.UUID) error
}

// AccountRepository reads and locks debt accounts.
type AccountRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.DebtAccount, error)
	FindByIDForUpdateTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*domain.DebtAccount, error)
}

// DebtManager mutates debt inside the orchestrator's transaction.
type DebtManager interface {
	AdjustCurrentDebtTx(ctx context.Context, tx *sqlx.Tx, account *domain.DebtAccount, delta decimal.Decimal) error
	FinalizeTx(ctx context.Context, tx *sqlx.Tx, account *domain.DebtAccount, status domain.DebtAccountStatus, closedAt *time.Time) error
}

// Ledger is the stage/commit surface every leg goes through.
type Ledger interface {
	Wallet(ctx context.Context, ownerID uuid.UUID, currency string, kind domain.WalletKind) (*domain.Wallet, error)
	WalletByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error)
	Stage(wallet *domain.Wallet, legType domain.LegType, amount decimal.Decimal, opts ledger.StageOptions) *domain.LedgerEntry
	Commit(ctx context.Context, tx *sqlx.Tx, entry *domain.LedgerEntry, ref *domain.EntryRef, allowNegative bool) (*domain.LedgerEntry, error)
}

// EntryStore reads back entries recorded by earlier runs.
type EntryStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.LedgerEntry, error)
}

// BalanceCache drops cached wallet snapshots after money moved.
type BalanceCache interface {
	Invalidate(ctx context.Context, ownerID uuid.UUID) error
}

// Deps wires the orchestrator's collaborators.
type Deps struct {
	DB        *sqlx.DB
	Repo      Repository
	Accounts  AccountRepository
	Debts     DebtManager
	Ledger    Ledger
	Entries   EntryStore
	Providers ProviderAccounts
	Policy    ShortfallPolicy
	Cache     BalanceCache
	Notifier  notification.Service
	Config    config.LedgerConfig
	Logger    logger.Logger
}

type Service struct {
	db        *sqlx.DB
	repo      Repository
	accounts  AccountRepository
	debts     DebtManager
	ledger    Ledger
	entries   EntryStore
	providers ProviderAccounts
	policy    ShortfallPolicy
	cache     BalanceCache
	notifier  notification.Service
	cfg       config.LedgerConfig
	validator *validator.Validator
	logger    logger.Logger
}

func NewService(deps Deps) *Service {
	return &Service{
		db:        deps.DB,
		repo:      deps.Repo,
		accounts:  deps.Accounts,
		debts:     deps.Debts,
		ledger:    deps.Ledger,
		entries:   deps.Entries,
		providers: deps.Providers,
		policy:    deps.Policy,
		cache:     deps.Cache,
		notifier:  deps.Notifier,
		cfg:       deps.Config,
		validator: validator.New(),
		logger:    deps.Logger,
	}
}

// CreateRequest describes a new settlement against a debt account.
type CreateRequest struct {
	AccountID uuid.UUID       `validate:"required"`
	Amount    decimal.Decimal `validate:"required,gt=0"`
	FeeAmount decimal.Decimal `validate:"gte=0"`
	Status    domain.SettlementStatus
}

// Create records a settlement intent. At most one unsettled record may exist
// per account: a pre-check surfaces the common case and the partial unique
// index on settlement_records settles the race.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*domain.SettlementRecord, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, errors.Wrap(errors.ErrInvalidAmount, err.Error())
	}

	account, err := s.accounts.FindByID(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	if account.IsClosed() {
		return nil, errors.ErrClosedAccount
	}
	if req.Amount.GreaterThan(account.CurrentDebt) {
		return nil, errors.ErrAmountExceedsDebt
	}

	exists, err := s.repo.HasUnsettled(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, errors.ErrSettlementExists
	}

	status := req.Status
	if status == "" {
		status = domain.SettlementStatusConfirmed
	}
	now := time.Now()
	record := &domain.SettlementRecord{
		ID:            uuid.New(),
		DebtAccountID: account.ID,
		Amount:        req.Amount.Round(domain.Precision),
		FeeAmount:     req.FeeAmount.Round(domain.Precision),
		Status:        status,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// Get returns a settlement record with its legs.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.SettlementRecord, error) {
	return s.repo.FindByID(ctx, id)
}

// Confirm marks a settlement as acknowledged by the provider. The confirmed
// amount must match exactly; a mismatch is an upstream inconsistency we refuse
// to paper over.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !record.Amount.Equal(amount) {
		return errors.Wrap(errors.ErrInvalidAmount, "confirmed amount does not match settlement")
	}
	if record.Status == domain.SettlementStatusReversed {
		return errors.ErrAlreadyReversed
	}
	return s.repo.UpdateStatus(ctx, id, domain.SettlementStatusConfirmed)
}

// Reject marks a settlement the provider reported as failed. Settled records
// cannot be rejected; they must go through reversal.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !record.Amount.Equal(amount) {
		return errors.Wrap(errors.ErrInvalidAmount, "rejected amount does not match settlement")
	}
	if record.SettledAt != nil {
		return errors.ErrSettlementNotSettleable
	}
	return s.repo.UpdateStatus(ctx, id, domain.SettlementStatusUnknownRejected)
}

// CreateTransactions creates the forward settlement legs in order: insurance,
// user, user fee, provider, fee. The whole flow is one database transaction;
// each leg early-returns the entry an earlier run committed, so calling this
// twice yields the same entries and the same debt.
//
// A liquidity shortfall on the user wallet either gets covered by the
// insurance fund (policy decision) or aborts with ErrNeedsLiquidation before
// anything is committed.
func (s *Service) CreateTransactions(ctx context.Context, recordID uuid.UUID) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	record, err := s.repo.FindByIDForUpdateTx(ctx, tx, recordID)
	if err != nil {
		return err
	}
	if record.Status == domain.SettlementStatusReversed {
		return errors.ErrAlreadyReversed
	}
	if !record.ShouldSettle() {
		return errors.ErrSettlementNotSettleable
	}
	alreadySettled := record.SettledAt != nil

	account, err := s.accounts.FindByIDForUpdateTx(ctx, tx, record.DebtAccountID)
	if err != nil {
		return err
	}
	userWallet, err := s.ledger.Wallet(ctx, account.OwnerID, s.cfg.Currency, account.SettlementWalletKind())
	if err != nil {
		return err
	}

	total := record.Amount.Add(record.FeeAmount)
	covered, err := s.shortfallCoverage(ctx, record, account, userWallet, total)
	if err != nil {
		return err
	}

	if !covered.IsZero() {
		if _, err := s.insuranceLeg(ctx, tx, record, covered); err != nil {
			return err
		}
	}

	userEntry, err := s.userLeg(ctx, tx, record, userWallet, covered)
	if err != nil {
		return s.reportFatal(ctx, account, record, err)
	}
	if err := s.repo.SetSettledAtTx(ctx, tx, record.ID, userEntry.CreatedAt); err != nil {
		return err
	}
	if userEntry.WalletID == userWallet.ID {
		userWallet.Balance = userEntry.Balance
	}

	userFeeEntry, err := s.userFeeLeg(ctx, tx, record, userWallet)
	if err != nil {
		return s.reportFatal(ctx, account, record, err)
	}

	if _, err := s.providerLeg(ctx, tx, record, account); err != nil {
		return err
	}
	if _, err := s.feeLeg(ctx, tx, record); err != nil {
		return err
	}

	if !alreadySettled {
		if err := s.debts.AdjustCurrentDebtTx(ctx, tx, account, total.Neg()); err != nil {
			return err
		}
		if err := s.debts.FinalizeTx(ctx, tx, account, domain.DebtStatusSettled, nil); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit settlement")
	}

	remaining := userEntry.Balance
	if userFeeEntry != nil && userFeeEntry.WalletID == userWallet.ID {
		remaining = userFeeEntry.Balance
	}
	if err := s.repo.SetRemainingBalance(ctx, record.ID, remaining); err != nil {
		s.logger.Warn("failed to record remaining balance", map[string]interface{}{
			"record_id": record.ID,
			"error":     err.Error(),
		})
	}

	s.afterMoneyMoved(ctx, account, notification.EventSettlementCompleted, map[string]interface{}{
		"record_id":  record.ID,
		"amount":     record.Amount.String(),
		"fee_amount": record.FeeAmount.String(),
	})
	return nil
}

// shortfallCoverage computes how much of the user's obligation the insurance
// fund will cover. Zero once the user leg exists: the shortfall was a
// point-in-time question answered when that leg was created.
func (s *Service) shortfallCoverage(ctx context.Context, record *domain.SettlementRecord, account *domain.DebtAccount, userWallet *domain.Wallet, total decimal.Decimal) (decimal.Decimal, error) {
	if record.Leg(domain.LegUserWithdraw) != nil {
		return decimal.Zero, nil
	}
	shortfall := total.Sub(userWallet.Balance)
	if !shortfall.IsPositive() {
		return decimal.Zero, nil
	}

	useFund, err := s.policy.ShouldUseInsuranceFund(ctx, account, shortfall)
	if err != nil {
		return decimal.Zero, err
	}
	if !useFund {
		return decimal.Zero, errors.ErrNeedsLiquidation
	}
	return shortfall, nil
}

func (s *Service) insuranceLeg(ctx context.Context, tx *sqlx.Tx, record *domain.SettlementRecord, covered decimal.Decimal) (*domain.LedgerEntry, error) {
	if leg := record.Leg(domain.LegInsuranceWithdraw); leg != nil {
		return s.entries.FindByID(ctx, leg.EntryID)
	}

	wallet, err := s.ledger.Wallet(ctx, s.cfg.InsuranceFundAccountID, s.cfg.Currency, domain.WalletKindSystem)
	if err != nil {
		return nil, err
	}
	entry := s.ledger.Stage(wallet, domain.LegInsuranceWithdraw, covered.Neg(), ledger.StageOptions{
		Description: fmt.Sprintf("insurance coverage for settlement %s", record.ID),
	})
	if entry == nil {
		return nil, errors.ErrInsuranceFundLowBalance
	}
	return s.commitLeg(ctx, tx, record, entry, domain.RefSettlementInsurance)
}

// userLeg withdraws the settlement amount minus whatever the insurance fund
// covered. A nil stage here is fatal: coverage was already decided, so an
// uncommittable user leg means a liquidity invariant broke underneath us.
func (s *Service) userLeg(ctx context.Context, tx *sqlx.Tx, record *domain.SettlementRecord, userWallet *domain.Wallet, covered decimal.Decimal) (*domain.LedgerEntry, error) {
	if leg := record.Leg(domain.LegUserWithdraw); leg != nil {
		return s.entries.FindByID(ctx, leg.EntryID)
	}

	entry := s.ledger.Stage(userWallet, domain.LegUserWithdraw, covered.Sub(record.Amount), ledger.StageOptions{
		Description: fmt.Sprintf("settlement %s", record.ID),
	})
	if entry == nil {
		return nil, errors.ErrUnexpectedLowLiquidity
	}
	return s.commitLeg(ctx, tx, record, entry, domain.RefSettlementUser)
}

func (s *Service) userFeeLeg(ctx context.Context, tx *sqlx.Tx, record *domain.SettlementRecord, userWallet *domain.Wallet) (*domain.LedgerEntry, error) {
	if record.FeeAmount.IsZero() {
		return nil, nil
	}
	if leg := record.Leg(domain.LegUserFeeWithdraw); leg != nil {
		return s.entries.FindByID(ctx, leg.EntryID)
	}

	entry := s.ledger.Stage(userWallet, domain.LegUserFeeWithdraw, record.FeeAmount.Neg(), ledger.StageOptions{
		Description: fmt.Sprintf("settlement %s fee", record.ID),
	})
	if entry == nil {
		return nil, errors.ErrUnexpectedLowLiquidity
	}
	return s.commitLeg(ctx, tx, record, entry, domain.RefSettlementUserFee)
}

func (s *Service) providerLeg(ctx context.Context, tx *sqlx.Tx, record *domain.SettlementRecord, account *domain.DebtAccount) (*domain.LedgerEntry, error) {
	if leg := record.Leg(domain.LegProviderDeposit); leg != nil {
		return s.entries.FindByID(ctx, leg.EntryID)
	}

	wallet, err := s.providers.Wallet(ctx, account.ProviderID)
	if err != nil {
		return nil, err
	}
	entry := s.ledger.Stage(wallet, domain.LegProviderDeposit, record.Amount, ledger.StageOptions{
		Description: fmt.Sprintf("settlement %s provider deposit", record.ID),
	})
	if entry == nil {
		return nil, errors.Wrap(errors.ErrWalletInactive, "provider wallet")
	}
	return s.commitLeg(ctx, tx, record, entry, domain.RefSettlementProvider)
}

func (s *Service) feeLeg(ctx context.Context, tx *sqlx.Tx, record *domain.SettlementRecord) (*domain.LedgerEntry, error) {
	if record.FeeAmount.IsZero() {
		return nil, nil
	}
	if leg := record.Leg(domain.LegFeeDeposit); leg != nil {
		return s.entries.FindByID(ctx, leg.EntryID)
	}

	wallet, err := s.ledger.Wallet(ctx, s.cfg.FeeAccountID, s.cfg.Currency, domain.WalletKindSystem)
	if err != nil {
		return nil, err
	}
	entry := s.ledger.Stage(wallet, domain.LegFeeDeposit, record.FeeAmount, ledger.StageOptions{
		Description: fmt.Sprintf("settlement %s fee deposit", record.ID),
	})
	if entry == nil {
		return nil, errors.Wrap(errors.ErrWalletInactive, "fee wallet")
	}
	return s.commitLeg(ctx, tx, record, entry, domain.RefSettlementFee)
}

func (s *Service) commitLeg(ctx context.Context, tx *sqlx.Tx, record *domain.SettlementRecord, entry *domain.LedgerEntry, ref domain.RefModule) (*domain.LedgerEntry, error) {
	committed, err := s.ledger.Commit(ctx, tx, entry, &domain.EntryRef{Module: ref, ID: record.ID}, false)
	if err != nil {
		return nil, err
	}
	leg := domain.SettlementLeg{
		RecordID:  record.ID,
		Kind:      committed.Type,
		EntryID:   committed.ID,
		CreatedAt: time.Now(),
	}
	if err := s.repo.AddLegTx(ctx, tx, &leg); err != nil {
		return nil, err
	}
	record.Legs = append(record.Legs, leg)
	return committed, nil
}

// CreateReverseTransactions compensates a settled record in mirror order:
// provider, fee, insurance, user, user fee. Reversal is refused once a
// provider withdrawal happened, once the provider confirmed, or once the
// record was already reversed.
func (s *Service) CreateReverseTransactions(ctx context.Context, recordID uuid.UUID) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	record, err := s.repo.FindByIDForUpdateTx(ctx, tx, recordID)
	if err != nil {
		return err
	}
	switch record.Status {
	case domain.SettlementStatusConfirmed:
		return errors.ErrSettlementConfirmed
	case domain.SettlementStatusReversed:
		return errors.ErrAlreadyReversed
	}
	if record.HasProviderWithdraw() {
		return errors.Wrap(errors.ErrSettlementReverse, "provider withdrawal already issued")
	}

	account, err := s.accounts.FindByIDForUpdateTx(ctx, tx, record.DebtAccountID)
	if err != nil {
		return err
	}

	if _, err := s.reverseLeg(ctx, tx, record, domain.LegProviderDeposit, domain.LegProviderReverse, domain.RefSettlementProviderReverse, true); err != nil {
		return err
	}
	if !record.FeeAmount.IsZero() {
		if _, err := s.reverseLeg(ctx, tx, record, domain.LegFeeDeposit, domain.LegFeeReverse, domain.RefSettlementFeeReverse, true); err != nil {
			return err
		}
	}
	if _, err := s.reverseLeg(ctx, tx, record, domain.LegInsuranceWithdraw, domain.LegInsuranceReverse, domain.RefSettlementInsuranceReverse, false); err != nil {
		return err
	}
	if _, err := s.reverseLeg(ctx, tx, record, domain.LegUserWithdraw, domain.LegUserReverse, domain.RefSettlementUserReverse, true); err != nil {
		return err
	}
	if err := s.repo.UpdateStatusTx(ctx, tx, record.ID, domain.SettlementStatusReversed); err != nil {
		return err
	}
	record.Status = domain.SettlementStatusReversed
	if !record.FeeAmount.IsZero() {
		if _, err := s.reverseLeg(ctx, tx, record, domain.LegUserFeeWithdraw, domain.LegUserFeeReverse, domain.RefSettlementUserFeeReverse, true); err != nil {
			return err
		}
	}

	if err := s.debts.AdjustCurrentDebtTx(ctx, tx, account, record.Amount.Add(record.FeeAmount)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit reversal")
	}

	s.afterMoneyMoved(ctx, account, notification.EventSettlementReversed, map[string]interface{}{
		"record_id":  record.ID,
		"amount":     record.Amount.String(),
		"fee_amount": record.FeeAmount.String(),
	})
	return nil
}

// reverseLeg compensates one forward leg by applying its negated amount to
// the same wallet. A missing required forward leg, or a wallet that cannot
// absorb the compensation, aborts the reversal.
func (s *Service) reverseLeg(ctx context.Context, tx *sqlx.Tx, record *domain.SettlementRecord, forwardKind, reverseKind domain.LegType, ref domain.RefModule, required bool) (*domain.LedgerEntry, error) {
	if leg := record.Leg(reverseKind); leg != nil {
		return s.entries.FindByID(ctx, leg.EntryID)
	}

	forwardLeg := record.Leg(forwardKind)
	if forwardLeg == nil {
		if required {
			return nil, errors.Wrap(errors.ErrSettlementReverse, fmt.Sprintf("missing %s leg", forwardKind))
		}
		return nil, nil
	}
	forward, err := s.entries.FindByID(ctx, forwardLeg.EntryID)
	if err != nil {
		return nil, err
	}
	wallet, err := s.ledger.WalletByID(ctx, forward.WalletID)
	if err != nil {
		return nil, err
	}

	entry := s.ledger.Stage(wallet, reverseKind, forward.Amount.Neg(), ledger.StageOptions{
		Description: fmt.Sprintf("reversal of settlement %s %s", record.ID, forwardKind),
	})
	if entry == nil {
		return nil, errors.Wrap(errors.ErrSettlementReverse, fmt.Sprintf("cannot reverse %s leg", forwardKind))
	}
	return s.commitLeg(ctx, tx, record, entry, ref)
}

// PendingSettlements returns confirmed records still waiting for their legs.
func (s *Service) PendingSettlements(ctx context.Context, limit int) ([]*domain.SettlementRecord, error) {
	return s.repo.FindPending(ctx, limit)
}

// HasPendingSettlement reports whether the owner has money movement in flight.
func (s *Service) HasPendingSettlement(ctx context.Context, ownerID uuid.UUID) (bool, error) {
	return s.repo.HasPendingForOwner(ctx, ownerID)
}

// SweepStaleInitiated promotes initiated records older than the cutoff to
// unknown_confirmed so ProcessPending will settle them.
func (s *Service) SweepStaleInitiated(ctx context.Context, olderThan time.Duration) (int64, error) {
	return s.repo.MarkStaleInitiatedUnknownConfirmed(ctx, olderThan)
}

// RecordProviderWithdraw notes a downstream withdrawal request against the
// record, closing its reversal window.
func (s *Service) RecordProviderWithdraw(ctx context.Context, id uuid.UUID) error {
	return s.repo.IncrementProviderWithdrawCount(ctx, id)
}

// ProcessPending settles a batch of pending records. Per-record failures are
// logged and skipped; a record waiting on liquidation is expected traffic, not
// an error worth stopping the batch for.
func (s *Service) ProcessPending(ctx context.Context, batchSize int) (int, error) {
	records, err := s.repo.FindPending(ctx, batchSize)
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, record := range records {
		if err := s.CreateTransactions(ctx, record.ID); err != nil {
			if errors.Is(err, errors.ErrNeedsLiquidation) {
				s.logger.Info("settlement waiting on liquidation", map[string]interface{}{
					"record_id": record.ID,
				})
				continue
			}
			s.logger.Error("failed to settle record", map[string]interface{}{
				"record_id": record.ID,
				"error":     err.Error(),
			})
			continue
		}
		settled++
	}
	return settled, nil
}

// reportFatal routes invariant breaches to the incident sink before returning
// them. The transaction rolls back in the caller either way.
func (s *Service) reportFatal(ctx context.Context, account *domain.DebtAccount, record *domain.SettlementRecord, err error) error {
	if errors.Is(err, errors.ErrUnexpectedLowLiquidity) || errors.Is(err, errors.ErrNegativeBalance) {
		s.logger.Error("settlement invariant breach", map[string]interface{}{
			"record_id":  record.ID,
			"account_id": account.ID,
			"error":      err.Error(),
		})
		go func() {
			_ = s.notifier.Notify(ctx, account.OwnerID, notification.EventIncident, map[string]interface{}{
				"record_id": record.ID,
				"error":     err.Error(),
			})
		}()
	}
	return err
}

// afterMoneyMoved handles the post-commit side effects shared by settle and
// reverse: cache invalidation and the outcome event. Both are best-effort;
// the committed transaction is the source of truth. The notifier runs in its
// own goroutine so a slow sink cannot stall the settlement loop.
func (s *Service) afterMoneyMoved(ctx context.Context, account *domain.DebtAccount, event string, data map[string]interface{}) {
	if err := s.cache.Invalidate(ctx, account.OwnerID); err != nil {
		s.logger.Warn("failed to invalidate wallet cache", map[string]interface{}{
			"owner_id": account.OwnerID,
			"error":    err.Error(),
		})
	}
	go func() {
		if err := s.notifier.Notify(ctx, account.OwnerID, event, data); err != nil {
			s.logger.Warn("failed to publish ledger event", map[string]interface{}{
				"owner_id": account.OwnerID,
				"event":    event,
				"error":    err.Error(),
			})
		}
	}()
}
