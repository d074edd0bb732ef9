package settlement

import (
	"context"

	"github.com/google/uuid"

	"creditledger/internal/domain"
	"creditledger/pkg/errors"
)

// ProviderAccounts resolves a provider identifier to the wallet its
// settlements are deposited into.
type ProviderAccounts interface {
	Wallet(ctx context.Context, providerID string) (*domain.Wallet, error)
}

// ConfigProviderAccounts resolves providers from the account map loaded at
// startup; there is no per-process memoization to go stale.
type ConfigProviderAccounts struct {
	accounts map[string]uuid.UUID
	currency string
	ledger   Ledger
}

func NewConfigProviderAccounts(accounts map[string]uuid.UUID, currency string, ledger Ledger) *ConfigProviderAccounts {
	return &ConfigProviderAccounts{
		accounts: accounts,
		currency: currency,
		ledger:   ledger,
	}
}

func (p *ConfigProviderAccounts) Wallet(ctx context.Context, providerID string) (*domain.Wallet, error) {
	ownerID, ok := p.accounts[providerID]
	if !ok {
		return nil, errors.ErrProviderNotConfigured
	}
	return p.ledger.Wallet(ctx, ownerID, p.currency, domain.WalletKindSystem)
}
