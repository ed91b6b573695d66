package cache

import (
	"context"
	"time"
)

// Cache is the TTL key/value abstraction backing user-context and decision
// caching. Two implementations exist: an in-memory instance-local store
// (the default; no cross-instance coherency) and a Redis-backed store for
// deployments that want a shared staleness window. The TTL passed to Set is
// a first-class design parameter; ttl <= 0 selects the backend's default.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	HealthCheck(ctx context.Context) error
}
