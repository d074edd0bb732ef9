// Package balancecache keeps a read-through cache of wallet snapshots.
//
// The cache is never authoritative: the wallets table is. Staleness is
// acceptable and resolved by invalidation on mutation; corruption is not and
// fails loudly, because a corrupt snapshot masking a real balance is a
// correctness risk.
package balancecache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"creditledger/internal/domain"
	"creditledger/pkg/cache"
	"creditledger/pkg/errors"
)

// Manager caches wallet snapshots in one Redis hash per owner: the key is
// derived from the owner id, the field from (kind, currency).
type Manager struct {
	cache *cache.RedisCache
}

func NewManager(c *cache.RedisCache) *Manager {
	return &Manager{cache: c}
}

func ownerKey(ownerID uuid.UUID) string {
	return fmt.Sprintf("credit:wallets:%s", ownerID)
}

func walletField(kind domain.WalletKind, currency string) string {
	return fmt.Sprintf("%s:%s", kind, currency)
}

// Get returns the cached snapshot for (owner, kind, currency), or (nil, nil)
// on a miss. A payload that fails to decode returns ErrCacheCorrupt,
// distinguishable from "not cached".
func (m *Manager) Get(ctx context.Context, ownerID uuid.UUID, kind domain.WalletKind, currency string) (*domain.WalletSnapshot, error) {
	key := ownerKey(ownerID)
	field := walletField(kind, currency)

	raw, err := m.cache.HGet(ctx, key, field)
	if err != nil {
		if cache.IsMiss(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to read wallet cache")
	}
	return decodeSnapshot(raw, key, field)
}

func decodeSnapshot(raw, key, field string) (*domain.WalletSnapshot, error) {
	snapshot := &domain.WalletSnapshot{}
	if err := json.Unmarshal([]byte(raw), snapshot); err != nil {
		return nil, errors.Wrap(errors.ErrCacheCorrupt, fmt.Sprintf("wallet cache %s/%s", key, field))
	}
	return snapshot, nil
}

// Set caches one snapshot for the owner.
func (m *Manager) Set(ctx context.Context, ownerID uuid.UUID, snapshot *domain.WalletSnapshot) error {
	if snapshot == nil {
		return nil
	}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return errors.Wrap(err, "failed to encode wallet snapshot")
	}
	return m.cache.HSet(ctx, ownerKey(ownerID), walletField(snapshot.Kind, snapshot.Currency), string(raw))
}

// BulkSet caches several snapshots for the owner in one round trip.
func (m *Manager) BulkSet(ctx context.Context, ownerID uuid.UUID, snapshots []*domain.WalletSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	fields := make(map[string]string, len(snapshots))
	for _, snapshot := range snapshots {
		raw, err := json.Marshal(snapshot)
		if err != nil {
			return errors.Wrap(err, "failed to encode wallet snapshot")
		}
		fields[walletField(snapshot.Kind, snapshot.Currency)] = string(raw)
	}
	return m.cache.HSetAll(ctx, ownerKey(ownerID), fields)
}

// Invalidate drops every cached snapshot of the owner.
func (m *Manager) Invalidate(ctx context.Context, ownerID uuid.UUID) error {
	return m.cache.Delete(ctx, ownerKey(ownerID))
}

// GetByOwner returns all cached snapshots of one owner.
func (m *Manager) GetByOwner(ctx context.Context, ownerID uuid.UUID) ([]*domain.WalletSnapshot, error) {
	key := ownerKey(ownerID)
	raw, err := m.cache.HGetAll(ctx, key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read wallet cache")
	}
	snapshots := make([]*domain.WalletSnapshot, 0, len(raw))
	for field, value := range raw {
		snapshot, err := decodeSnapshot(value, key, field)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, nil
}

// GetByOwners returns cached snapshots for many owners using a single
// pipelined round trip.
func (m *Manager) GetByOwners(ctx context.Context, ownerIDs []uuid.UUID) (map[uuid.UUID][]*domain.WalletSnapshot, error) {
	keys := make([]string, len(ownerIDs))
	for i, ownerID := range ownerIDs {
		keys[i] = ownerKey(ownerID)
	}
	raw, err := m.cache.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read wallet caches")
	}

	result := make(map[uuid.UUID][]*domain.WalletSnapshot, len(ownerIDs))
	for i, ownerID := range ownerIDs {
		key := keys[i]
		snapshots := make([]*domain.WalletSnapshot, 0, len(raw[key]))
		for field, value := range raw[key] {
			snapshot, err := decodeSnapshot(value, key, field)
			if err != nil {
				return nil, err
			}
			snapshots = append(snapshots, snapshot)
		}
		result[ownerID] = snapshots
	}
	return result, nil
}

// GetByOwnerAndKind filters one owner's cached snapshots by wallet kind.
func (m *Manager) GetByOwnerAndKind(ctx context.Context, ownerID uuid.UUID, kind domain.WalletKind) ([]*domain.WalletSnapshot, error) {
	snapshots, err := m.GetByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	filtered := snapshots[:0]
	for _, snapshot := range snapshots {
		if snapshot.Kind == kind {
			filtered = append(filtered, snapshot)
		}
	}
	return filtered, nil
}
