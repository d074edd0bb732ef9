package settlement

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"creditledger/internal/domain"
)

// DebtSource exposes the aggregate debt position of an owner.
type DebtSource interface {
	TotalActiveDebt(ctx context.Context, ownerID uuid.UUID) (decimal.Decimal, error)
}

// DebtCollateralEstimator derives the collateral requirement from the owner's
// open debt. Debit-pool accounts are prefunded and require no backing.
type DebtCollateralEstimator struct {
	debts DebtSource
}

func NewDebtCollateralEstimator(debts DebtSource) *DebtCollateralEstimator {
	return &DebtCollateralEstimator{debts: debts}
}

func (e *DebtCollateralEstimator) RequiredCollateral(ctx context.Context, ownerID uuid.UUID, kind domain.WalletKind) (decimal.Decimal, error) {
	if kind == domain.WalletKindDebit {
		return decimal.Zero, nil
	}
	return e.debts.TotalActiveDebt(ctx, ownerID)
}
