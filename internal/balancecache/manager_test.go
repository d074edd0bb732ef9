package balancecache

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creditledger/internal/domain"
	"creditledger/pkg/cache"
	"creditledger/pkg/errors"
)

func newManager(t *testing.T) (*Manager, redismock.ClientMock) {
	t.Helper()
	client, clientMock := redismock.NewClientMock()
	t.Cleanup(func() { client.Close() })
	return NewManager(cache.NewWithClient(client)), clientMock
}

func snapshot(kind domain.WalletKind, balance int64) *domain.WalletSnapshot {
	return &domain.WalletSnapshot{
		WalletID:  uuid.New(),
		Kind:      kind,
		Currency:  "IRR",
		Balance:   decimal.NewFromInt(balance),
		UpdatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestGetReturnsNilOnMiss(t *testing.T) {
	manager, clientMock := newManager(t)
	ownerID := uuid.New()
	key := fmt.Sprintf("credit:wallets:%s", ownerID)

	clientMock.ExpectHGet(key, "collateral:IRR").RedisNil()

	got, err := manager.Get(context.Background(), ownerID, domain.WalletKindCollateral, "IRR")
	require.NoError(t, err)
	assert.Nil(t, got)
	require.NoError(t, clientMock.ExpectationsWereMet())
}

func TestGetFailsLoudOnCorruptPayload(t *testing.T) {
	manager, clientMock := newManager(t)
	ownerID := uuid.New()
	key := fmt.Sprintf("credit:wallets:%s", ownerID)

	clientMock.ExpectHGet(key, "collateral:IRR").SetVal("{not json")

	_, err := manager.Get(context.Background(), ownerID, domain.WalletKindCollateral, "IRR")
	assert.ErrorIs(t, err, errors.ErrCacheCorrupt)
}

func TestSetAndGetRoundTrip(t *testing.T) {
	manager, clientMock := newManager(t)
	ownerID := uuid.New()
	key := fmt.Sprintf("credit:wallets:%s", ownerID)

	snap := snapshot(domain.WalletKindCollateral, 250)
	raw, err := json.Marshal(snap)
	require.NoError(t, err)

	clientMock.ExpectHSet(key, "collateral:IRR", string(raw)).SetVal(1)
	require.NoError(t, manager.Set(context.Background(), ownerID, snap))

	clientMock.ExpectHGet(key, "collateral:IRR").SetVal(string(raw))
	got, err := manager.Get(context.Background(), ownerID, domain.WalletKindCollateral, "IRR")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, snap.WalletID, got.WalletID)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(250)))
	require.NoError(t, clientMock.ExpectationsWereMet())
}

func TestInvalidateDropsOwnerHash(t *testing.T) {
	manager, clientMock := newManager(t)
	ownerID := uuid.New()
	key := fmt.Sprintf("credit:wallets:%s", ownerID)

	clientMock.ExpectDel(key).SetVal(1)

	require.NoError(t, manager.Invalidate(context.Background(), ownerID))
	require.NoError(t, clientMock.ExpectationsWereMet())
}

func TestGetByOwnerDecodesAllFields(t *testing.T) {
	manager, clientMock := newManager(t)
	ownerID := uuid.New()
	key := fmt.Sprintf("credit:wallets:%s", ownerID)

	collateral := snapshot(domain.WalletKindCollateral, 100)
	debit := snapshot(domain.WalletKindDebit, 30)
	rawCollateral, err := json.Marshal(collateral)
	require.NoError(t, err)
	rawDebit, err := json.Marshal(debit)
	require.NoError(t, err)

	clientMock.ExpectHGetAll(key).SetVal(map[string]string{
		"collateral:IRR": string(rawCollateral),
		"debit:IRR":      string(rawDebit),
	})

	got, err := manager.GetByOwner(context.Background(), ownerID)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestGetByOwnerAndKindFilters(t *testing.T) {
	manager, clientMock := newManager(t)
	ownerID := uuid.New()
	key := fmt.Sprintf("credit:wallets:%s", ownerID)

	collateral := snapshot(domain.WalletKindCollateral, 100)
	debit := snapshot(domain.WalletKindDebit, 30)
	rawCollateral, err := json.Marshal(collateral)
	require.NoError(t, err)
	rawDebit, err := json.Marshal(debit)
	require.NoError(t, err)

	clientMock.ExpectHGetAll(key).SetVal(map[string]string{
		"collateral:IRR": string(rawCollateral),
		"debit:IRR":      string(rawDebit),
	})

	got, err := manager.GetByOwnerAndKind(context.Background(), ownerID, domain.WalletKindDebit)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.WalletKindDebit, got[0].Kind)
}
