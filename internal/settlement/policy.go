package settlement

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"creditledger/internal/domain"
)

// CollateralEstimator is the pricing collaborator: how much backing does this
// owner's position require right now.
type CollateralEstimator interface {
	RequiredCollateral(ctx context.Context, ownerID uuid.UUID, kind domain.WalletKind) (decimal.Decimal, error)
}

// ShortfallPolicy decides whether the insurance fund covers a liquidity
// shortfall. This is business policy, not mechanism, so it is swappable.
type ShortfallPolicy interface {
	ShouldUseInsuranceFund(ctx context.Context, account *domain.DebtAccount, shortfall decimal.Decimal) (bool, error)
}

// CollateralShortfallPolicy fires the insurance leg when a shortfall exists
// and the owner still has a positive collateral requirement.
type CollateralShortfallPolicy struct {
	estimator CollateralEstimator
}

func NewCollateralShortfallPolicy(estimator CollateralEstimator) *CollateralShortfallPolicy {
	return &CollateralShortfallPolicy{estimator: estimator}
}

func (p *CollateralShortfallPolicy) ShouldUseInsuranceFund(ctx context.Context, account *domain.DebtAccount, shortfall decimal.Decimal) (bool, error) {
	if shortfall.IsZero() {
		return false, nil
	}
	required, err := p.estimator.RequiredCollateral(ctx, account.OwnerID, account.SettlementWalletKind())
	if err != nil {
		return false, err
	}
	return required.IsPositive(), nil
}
