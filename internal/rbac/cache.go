package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores effective-permission snapshots in Redis. A snapshot is
// written and deleted as a whole; there is no partial update path.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a Cache with the given snapshot TTL.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func snapshotKey(userID, orgID string) string {
	return fmt.Sprintf("rbac:eff:%s:%s", orgID, userID)
}

// Get returns the cached snapshot, or ok=false on a miss. Cache errors are
// returned so the caller can decide to recompute.
func (c *Cache) Get(ctx context.Context, userID, orgID string) (EffectivePermissions, bool, error) {
	if c == nil || c.client == nil {
		return EffectivePermissions{}, false, nil
	}
	raw, err := c.client.Get(ctx, snapshotKey(userID, orgID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return EffectivePermissions{}, false, nil
		}
		return EffectivePermissions{}, false, fmt.Errorf("rbac: cache get: %w", err)
	}
	var snapshot EffectivePermissions
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return EffectivePermissions{}, false, fmt.Errorf("rbac: cache decode: %w", err)
	}
	return snapshot, true, nil
}

// Set replaces the snapshot for the pair.
func (c *Cache) Set(ctx context.Context, userID, orgID string, snapshot EffectivePermissions) error {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("rbac: cache encode: %w", err)
	}
	if err := c.client.Set(ctx, snapshotKey(userID, orgID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("rbac: cache set: %w", err)
	}
	return nil
}

// Delete drops the snapshot for the pair.
func (c *Cache) Delete(ctx context.Context, userID, orgID string) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Del(ctx, snapshotKey(userID, orgID)).Err(); err != nil {
		return fmt.Errorf("rbac: cache delete: %w", err)
	}
	return nil
}
