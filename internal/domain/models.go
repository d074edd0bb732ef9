package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Precision is the fixed scale every ledger amount is quantized to before it
// touches a wallet.
const Precision = 10

// WalletKind separates the balance pools an owner can hold per currency.
type WalletKind string

const (
	WalletKindSystem     WalletKind = "system"
	WalletKindCollateral WalletKind = "collateral"
	WalletKindDebit      WalletKind = "debit"
)

// Wallet is the unit of mutation: one balance per (owner, currency, kind).
// Wallets are created lazily on first use and never hard-deleted; deactivated
// wallets reject new ledger entries.
type Wallet struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	OwnerID        uuid.UUID       `json:"owner_id" db:"owner_id"`
	Currency       string          `json:"currency" db:"currency"`
	Kind           WalletKind      `json:"kind" db:"kind"`
	Balance        decimal.Decimal `json:"balance" db:"balance"`
	BlockedBalance decimal.Decimal `json:"blocked_balance" db:"blocked_balance"`
	IsActive       bool            `json:"is_active" db:"is_active"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// AvailableBalance is the spendable part of the balance.
func (w *Wallet) AvailableBalance() decimal.Decimal {
	return w.Balance.Sub(w.BlockedBalance)
}

// LegType is the closed set of ledger entry purposes. Adding a leg kind means
// adding a constant here, not inventing a tag string at a call site.
type LegType string

const (
	LegUserWithdraw      LegType = "user_withdraw"
	LegUserReverse       LegType = "user_reverse"
	LegUserFeeWithdraw   LegType = "user_fee_withdraw"
	LegUserFeeReverse    LegType = "user_fee_reverse"
	LegProviderDeposit   LegType = "provider_deposit"
	LegProviderReverse   LegType = "provider_reverse"
	LegInsuranceWithdraw LegType = "insurance_withdraw"
	LegInsuranceReverse  LegType = "insurance_reverse"
	LegFeeDeposit        LegType = "fee_deposit"
	LegFeeReverse        LegType = "fee_reverse"
)

// RefModule names the subsystem that caused a ledger entry. Together with a
// ref id it forms the idempotency key guaranteeing exactly-once application.
type RefModule string

const (
	RefSettlementUser             RefModule = "settlement_user"
	RefSettlementUserReverse      RefModule = "settlement_user_reverse"
	RefSettlementUserFee          RefModule = "settlement_user_fee"
	RefSettlementUserFeeReverse   RefModule = "settlement_user_fee_reverse"
	RefSettlementProvider         RefModule = "settlement_provider"
	RefSettlementProviderReverse  RefModule = "settlement_provider_reverse"
	RefSettlementInsurance        RefModule = "settlement_insurance"
	RefSettlementInsuranceReverse RefModule = "settlement_insurance_reverse"
	RefSettlementFee              RefModule = "settlement_fee"
	RefSettlementFeeReverse       RefModule = "settlement_fee_reverse"
)

// EntryRef is the (module, external id) idempotency pair of a ledger entry.
type EntryRef struct {
	Module RefModule
	ID     uuid.UUID
}

// LedgerEntry is an immutable signed balance delta against one wallet.
// Entries are append-only: once committed they are never updated or deleted.
type LedgerEntry struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	WalletID    uuid.UUID       `json:"wallet_id" db:"wallet_id"`
	Type        LegType         `json:"type" db:"type"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	Balance     decimal.Decimal `json:"balance" db:"balance"`
	Description string          `json:"description" db:"description"`
	RefModule   *RefModule      `json:"ref_module,omitempty" db:"ref_module"`
	RefID       *uuid.UUID      `json:"ref_id,omitempty" db:"ref_id"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// DebtAccountStatus is the lifecycle state of a debt account.
type DebtAccountStatus string

const (
	DebtStatusCreated        DebtAccountStatus = "created"
	DebtStatusInitiated      DebtAccountStatus = "initiated"
	DebtStatusSettled        DebtAccountStatus = "settled"
	DebtStatusExpired        DebtAccountStatus = "expired"
	DebtStatusClosed         DebtAccountStatus = "closed"
	DebtStatusCloseRequested DebtAccountStatus = "close_requested"
)

// DebtAccount tracks a user's outstanding debt against one service. At most
// one open account may exist per (owner, service); closing is logical only.
type DebtAccount struct {
	ID          uuid.UUID         `json:"id" db:"id"`
	OwnerID     uuid.UUID         `json:"owner_id" db:"owner_id"`
	ServiceID   uuid.UUID         `json:"service_id" db:"service_id"`
	ProviderID  string            `json:"provider_id" db:"provider_id"`
	GrantID     uuid.UUID         `json:"grant_id" db:"grant_id"`
	InitialDebt decimal.Decimal   `json:"initial_debt" db:"initial_debt"`
	CurrentDebt decimal.Decimal   `json:"current_debt" db:"current_debt"`
	Status      DebtAccountStatus `json:"status" db:"status"`
	IsRevolving bool              `json:"is_revolving" db:"is_revolving"`
	ClosedAt    *time.Time        `json:"closed_at,omitempty" db:"closed_at"`
	CreatedAt   time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at" db:"updated_at"`
}

// IsClosed reports whether the account has been logically destroyed.
func (a *DebtAccount) IsClosed() bool {
	return a.ClosedAt != nil
}

// SettlementWalletKind maps the account to the wallet pool its settlements
// draw from. Revolving (debit-card style) accounts spend from the debit pool,
// everything else from collateral.
func (a *DebtAccount) SettlementWalletKind() WalletKind {
	if a.IsRevolving {
		return WalletKindDebit
	}
	return WalletKindCollateral
}

// SettlementStatus is the provider-acknowledgment state of a settlement.
type SettlementStatus string

const (
	SettlementStatusInitiated        SettlementStatus = "initiated"
	SettlementStatusConfirmed        SettlementStatus = "confirmed"
	SettlementStatusUnknownRejected  SettlementStatus = "unknown_rejected"
	SettlementStatusUnknownConfirmed SettlementStatus = "unknown_confirmed"
	SettlementStatusReversed         SettlementStatus = "reversed"
)

// SettlementRecord is one settlement event against a debt account, composed
// of up to five forward legs and their compensating reverses.
type SettlementRecord struct {
	ID                    uuid.UUID           `json:"id" db:"id"`
	DebtAccountID         uuid.UUID           `json:"debt_account_id" db:"debt_account_id"`
	Amount                decimal.Decimal     `json:"amount" db:"amount"`
	FeeAmount             decimal.Decimal     `json:"fee_amount" db:"fee_amount"`
	Status                SettlementStatus    `json:"status" db:"status"`
	SettledAt             *time.Time          `json:"settled_at,omitempty" db:"settled_at"`
	RemainingBalance      decimal.NullDecimal `json:"remaining_balance,omitempty" db:"remaining_balance"`
	ProviderWithdrawCount int                 `json:"provider_withdraw_count" db:"provider_withdraw_count"`
	CreatedAt             time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time           `json:"updated_at" db:"updated_at"`

	Legs []SettlementLeg `json:"legs,omitempty" db:"-"`
}

// SettlementLeg binds one ledger entry to the settlement step that created it.
type SettlementLeg struct {
	RecordID  uuid.UUID `json:"record_id" db:"record_id"`
	Kind      LegType   `json:"kind" db:"kind"`
	EntryID   uuid.UUID `json:"entry_id" db:"entry_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Leg returns the leg of the given kind, or nil if that step has not run.
func (r *SettlementRecord) Leg(kind LegType) *SettlementLeg {
	for i := range r.Legs {
		if r.Legs[i].Kind == kind {
			return &r.Legs[i]
		}
	}
	return nil
}

// ShouldSettle reports whether the record is in a state where forward ledger
// legs may be created.
func (r *SettlementRecord) ShouldSettle() bool {
	return r.Status == SettlementStatusConfirmed || r.Status == SettlementStatusUnknownConfirmed
}

// HasProviderWithdraw reports whether money has started leaving the system
// downstream; reversal is forbidden past this point.
func (r *SettlementRecord) HasProviderWithdraw() bool {
	return r.ProviderWithdrawCount > 0
}

// WalletSnapshot is the cached projection of a wallet. It is never
// authoritative; the wallets table is.
type WalletSnapshot struct {
	WalletID       uuid.UUID       `json:"wallet_id"`
	Kind           WalletKind      `json:"kind"`
	Currency       string          `json:"currency"`
	Balance        decimal.Decimal `json:"balance"`
	BlockedBalance decimal.Decimal `json:"blocked_balance"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// SnapshotOf projects a wallet into its cacheable form.
func SnapshotOf(w *Wallet) *WalletSnapshot {
	return &WalletSnapshot{
		WalletID:       w.ID,
		Kind:           w.Kind,
		Currency:       w.Currency,
		Balance:        w.Balance,
		BlockedBalance: w.BlockedBalance,
		UpdatedAt:      w.UpdatedAt,
	}
}
