package ledger

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"creditledger/internal/domain"
	"creditledger/pkg/errors"
	"creditledger/pkg/logger"
)

// --- Mocks ---

type MockWalletRepository struct {
	mock.Mock
}

func (m *MockWalletRepository) GetOrCreate(ctx context.Context, ownerID uuid.UUID, currency string, kind domain.WalletKind) (*domain.Wallet, error) {
	args := m.Called(ctx, ownerID, currency, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Wallet), args.Error(1)
}

func (m *MockWalletRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Wallet), args.Error(1)
}

func (m *MockWalletRepository) ApplyDeltaTx(ctx context.Context, tx *sqlx.Tx, walletID uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error) {
	args := m.Called(ctx, tx, walletID, delta)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

type MockEntryRepository struct {
	mock.Mock
}

func (m *MockEntryRepository) InsertTx(ctx context.Context, tx *sqlx.Tx, entry *domain.LedgerEntry) error {
	args := m.Called(ctx, tx, entry)
	return args.Error(0)
}

func (m *MockEntryRepository) FindByRefTx(ctx context.Context, tx *sqlx.Tx, ref domain.EntryRef) (*domain.LedgerEntry, error) {
	args := m.Called(ctx, tx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LedgerEntry), args.Error(1)
}

func (m *MockEntryRepository) FindByWallet(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]*domain.LedgerEntry, error) {
	args := m.Called(ctx, walletID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.LedgerEntry), args.Error(1)
}

func (m *MockEntryRepository) CountByWallet(ctx context.Context, walletID uuid.UUID) (int, error) {
	args := m.Called(ctx, walletID)
	return args.Int(0), args.Error(1)
}

func newTestTx(t *testing.T) *sqlx.Tx {
	t.Helper()
	db, dbMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	dbMock.ExpectBegin()
	tx, err := sqlx.NewDb(db, "sqlmock").Beginx()
	require.NoError(t, err)
	return tx
}

func activeWallet(balance int64) *domain.Wallet {
	return &domain.Wallet{
		ID:       uuid.New(),
		OwnerID:  uuid.New(),
		Currency: "IRR",
		Kind:     domain.WalletKindCollateral,
		Balance:  decimal.NewFromInt(balance),
		IsActive: true,
	}
}

func decimalEq(expected decimal.Decimal) interface{} {
	return mock.MatchedBy(func(d decimal.Decimal) bool {
		return d.Equal(expected)
	})
}

// --- Tests ---

func TestStageRejectsOverdraw(t *testing.T) {
	service := NewService(new(MockWalletRepository), new(MockEntryRepository), logger.NewNop())
	wallet := activeWallet(100)

	entry := service.Stage(wallet, domain.LegUserWithdraw, decimal.NewFromInt(-150), StageOptions{})
	assert.Nil(t, entry)

	entry = service.Stage(wallet, domain.LegUserWithdraw, decimal.NewFromInt(-150), StageOptions{AllowNegative: true})
	require.NotNil(t, entry)
	assert.True(t, entry.Amount.Equal(decimal.NewFromInt(-150)))
}

func TestStageRejectsInactiveWallet(t *testing.T) {
	service := NewService(new(MockWalletRepository), new(MockEntryRepository), logger.NewNop())
	wallet := activeWallet(100)
	wallet.IsActive = false

	assert.Nil(t, service.Stage(wallet, domain.LegUserWithdraw, decimal.NewFromInt(-10), StageOptions{}))
	assert.Nil(t, service.Stage(nil, domain.LegUserWithdraw, decimal.NewFromInt(-10), StageOptions{}))
}

func TestStageQuantizesAmount(t *testing.T) {
	service := NewService(new(MockWalletRepository), new(MockEntryRepository), logger.NewNop())
	wallet := activeWallet(100)

	amount, err := decimal.NewFromString("-1.123456789012345")
	require.NoError(t, err)

	entry := service.Stage(wallet, domain.LegUserWithdraw, amount, StageOptions{})
	require.NotNil(t, entry)
	assert.True(t, entry.Amount.Equal(amount.Round(domain.Precision)))
}

func TestCommitAppliesDeltaAndPersists(t *testing.T) {
	wallets := new(MockWalletRepository)
	entries := new(MockEntryRepository)
	service := NewService(wallets, entries, logger.NewNop())
	tx := newTestTx(t)
	ctx := context.Background()

	wallet := activeWallet(100)
	entry := service.Stage(wallet, domain.LegUserWithdraw, decimal.NewFromInt(-40), StageOptions{})
	require.NotNil(t, entry)

	wallets.On("ApplyDeltaTx", ctx, tx, wallet.ID, decimalEq(decimal.NewFromInt(-40))).
		Return(decimal.NewFromInt(60), nil)
	entries.On("InsertTx", ctx, tx, entry).Return(nil)

	committed, err := service.Commit(ctx, tx, entry, nil, false)
	require.NoError(t, err)
	assert.True(t, committed.Balance.Equal(decimal.NewFromInt(60)))

	wallets.AssertExpectations(t)
	entries.AssertExpectations(t)
}

func TestCommitReturnsExistingEntryForRef(t *testing.T) {
	wallets := new(MockWalletRepository)
	entries := new(MockEntryRepository)
	service := NewService(wallets, entries, logger.NewNop())
	tx := newTestTx(t)
	ctx := context.Background()

	wallet := activeWallet(100)
	entry := service.Stage(wallet, domain.LegUserWithdraw, decimal.NewFromInt(-40), StageOptions{})
	require.NotNil(t, entry)

	ref := domain.EntryRef{Module: domain.RefSettlementUser, ID: uuid.New()}
	existing := &domain.LedgerEntry{ID: uuid.New(), WalletID: wallet.ID, Amount: decimal.NewFromInt(-40)}
	entries.On("FindByRefTx", ctx, tx, ref).Return(existing, nil)

	committed, err := service.Commit(ctx, tx, entry, &ref, false)
	require.NoError(t, err)
	assert.Equal(t, existing.ID, committed.ID)

	// No new money moved and nothing was inserted.
	wallets.AssertNotCalled(t, "ApplyDeltaTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	entries.AssertNotCalled(t, "InsertTx", mock.Anything, mock.Anything, mock.Anything)
}

func TestCommitNegativeBalanceIsFatal(t *testing.T) {
	wallets := new(MockWalletRepository)
	entries := new(MockEntryRepository)
	service := NewService(wallets, entries, logger.NewNop())
	tx := newTestTx(t)
	ctx := context.Background()

	wallet := activeWallet(100)
	entry := service.Stage(wallet, domain.LegUserWithdraw, decimal.NewFromInt(-100), StageOptions{})
	require.NotNil(t, entry)

	// A concurrent commit drained the wallet between stage and commit.
	wallets.On("ApplyDeltaTx", ctx, tx, wallet.ID, decimalEq(decimal.NewFromInt(-100))).
		Return(decimal.NewFromInt(-30), nil)

	_, err := service.Commit(ctx, tx, entry, nil, false)
	assert.ErrorIs(t, err, errors.ErrNegativeBalance)
	entries.AssertNotCalled(t, "InsertTx", mock.Anything, mock.Anything, mock.Anything)
}

func TestCommitAllowsNegativeWhenPermitted(t *testing.T) {
	wallets := new(MockWalletRepository)
	entries := new(MockEntryRepository)
	service := NewService(wallets, entries, logger.NewNop())
	tx := newTestTx(t)
	ctx := context.Background()

	wallet := activeWallet(100)
	entry := service.Stage(wallet, domain.LegUserWithdraw, decimal.NewFromInt(-130), StageOptions{AllowNegative: true})
	require.NotNil(t, entry)

	wallets.On("ApplyDeltaTx", ctx, tx, wallet.ID, decimalEq(decimal.NewFromInt(-130))).
		Return(decimal.NewFromInt(-30), nil)
	entries.On("InsertTx", ctx, tx, entry).Return(nil)

	committed, err := service.Commit(ctx, tx, entry, nil, true)
	require.NoError(t, err)
	assert.True(t, committed.Balance.Equal(decimal.NewFromInt(-30)))
}

func TestHistory(t *testing.T) {
	wallets := new(MockWalletRepository)
	entries := new(MockEntryRepository)
	service := NewService(wallets, entries, logger.NewNop())
	ctx := context.Background()

	wallet := activeWallet(100)
	expected := []*domain.LedgerEntry{
		{ID: uuid.New(), WalletID: wallet.ID, Amount: decimal.NewFromInt(-40)},
	}
	wallets.On("FindByID", ctx, wallet.ID).Return(wallet, nil)
	entries.On("FindByWallet", ctx, wallet.ID, 10, 0).Return(expected, nil)
	entries.On("CountByWallet", ctx, wallet.ID).Return(1, nil)

	got, total, err := service.History(ctx, wallet.ID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, got, 1)
}

func TestHistoryUnknownWallet(t *testing.T) {
	wallets := new(MockWalletRepository)
	entries := new(MockEntryRepository)
	service := NewService(wallets, entries, logger.NewNop())
	ctx := context.Background()

	id := uuid.New()
	wallets.On("FindByID", ctx, id).Return(nil, errors.ErrWalletNotFound)

	_, _, err := service.History(ctx, id, 10, 0)
	assert.ErrorIs(t, err, errors.ErrWalletNotFound)
	entries.AssertNotCalled(t, "FindByWallet", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
