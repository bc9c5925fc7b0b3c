package redis

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"poolvault/internal/adapters/redis"
	"poolvault/internal/domain/pool"
	"poolvault/pkg/errors"
)

const viewKey = "pool:view"

// Compile-time check
var _ pool.SnapshotStore = (*SnapshotStore)(nil)

// SnapshotStore caches the last resolved pool view with a short TTL.
// It sits in front of the valuation tiers so bursts of read traffic
// do not translate into ledger RPC bursts.
type SnapshotStore struct {
	client *redis.Client
}

// NewSnapshotStore creates a snapshot store backed by Redis
func NewSnapshotStore(client *redis.Client) *SnapshotStore {
	return &SnapshotStore{client: client}
}

// GetView returns the cached view, or ErrNotFound after TTL expiry
func (s *SnapshotStore) GetView(ctx context.Context) (*pool.View, error) {
	var v pool.View
	if err := s.client.Get(ctx, viewKey, &v); err != nil {
		if err == goredis.Nil {
			return nil, errors.ErrNotFound
		}
		return nil, errors.Wrap(err, "get pool view snapshot")
	}
	return &v, nil
}

// SaveView stores the view with the given TTL
func (s *SnapshotStore) SaveView(ctx context.Context, v *pool.View, ttl time.Duration) error {
	return errors.Wrap(s.client.Set(ctx, viewKey, v, ttl), "save pool view snapshot")
}
