package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"connection-chat/internal/models"
)

// DefaultIdentityTTL is how long a snapshot stays cached.
const DefaultIdentityTTL = 5 * time.Minute

// IdentitySource loads identities from the system of record.
type IdentitySource interface {
	GetIdentity(ctx context.Context, userID string) (models.IdentitySnapshot, error)
}

// IdentityCache serves identity snapshots cache-first.
type IdentityCache struct {
	store  Store
	source IdentitySource
	ttl    time.Duration
	logger *zap.Logger
}

// NewIdentityCache builds an IdentityCache. A zero ttl selects DefaultIdentityTTL.
func NewIdentityCache(store Store, source IdentitySource, ttl time.Duration, logger *zap.Logger) *IdentityCache {
	if ttl <= 0 {
		ttl = DefaultIdentityTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdentityCache{store: store, source: source, ttl: ttl, logger: logger}
}

func identityKey(userID string) string {
	return "identity:" + userID
}

// Snapshot returns the display identity of userID. Cache failures fall through
// to the source; the source's error is returned as is.
func (c *IdentityCache) Snapshot(ctx context.Context, userID string) (models.IdentitySnapshot, error) {
	var snap models.IdentitySnapshot
	found, err := c.store.Get(ctx, identityKey(userID), &snap)
	if err != nil {
		c.logger.Warn("identity cache read failed", zap.String("user_id", userID), zap.Error(err))
	}
	if found && err == nil {
		return snap, nil
	}

	snap, err = c.source.GetIdentity(ctx, userID)
	if err != nil {
		return models.IdentitySnapshot{}, err
	}

	if err := c.store.Set(ctx, identityKey(userID), snap, c.ttl); err != nil {
		c.logger.Warn("identity cache write failed", zap.String("user_id", userID), zap.Error(err))
	}
	return snap, nil
}

// Invalidate drops the cached snapshot of userID.
func (c *IdentityCache) Invalidate(ctx context.Context, userID string) error {
	return c.store.Delete(ctx, identityKey(userID))
}
