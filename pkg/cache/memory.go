package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/KenIjiwoye/immune-me-sub004/internal/monitoring"
)

// memoryCache is the default instance-local backend. Entries carry their own
// expiry so per-call TTLs work; the expirable LRU underneath bounds memory
// and garbage-collects anything older than the longest TTL the cache will
// honor. Two concurrently-running engine instances using this backend may
// observe different staleness windows for the same key; that trade-off is
// accepted, see the design notes.
type memoryCache struct {
	lru *expirable.LRU[string, memoryEntry]
	ttl time.Duration
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// maxEntryTTL caps per-call TTLs and sets the LRU's hard expiry.
const maxEntryTTL = time.Hour

func NewMemory(maxEntries int, defaultTTL time.Duration) Cache {
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	if defaultTTL <= 0 || defaultTTL > maxEntryTTL {
		defaultTTL = 5 * time.Minute
	}
	return &memoryCache{
		lru: expirable.NewLRU[string, memoryEntry](maxEntries, nil, maxEntryTTL),
		ttl: defaultTTL,
	}
}

func (m *memoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	entry, ok := m.lru.Get(key)
	if !ok || time.Now().After(entry.expiresAt) {
		if ok {
			m.lru.Remove(key)
		}
		monitoring.RecordCacheOperation("get", "miss")
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	monitoring.RecordCacheOperation("get", "hit")
	return entry.data, nil
}

func (m *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := encode(value)
	if err != nil {
		monitoring.RecordCacheOperation("set", "error")
		return fmt.Errorf("marshal value for key %s: %w", key, err)
	}
	if ttl <= 0 || ttl > maxEntryTTL {
		ttl = m.ttl
	}
	m.lru.Add(key, memoryEntry{data: data, expiresAt: time.Now().Add(ttl)})
	monitoring.RecordCacheOperation("set", "success")
	return nil
}

func (m *memoryCache) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		m.lru.Remove(key)
	}
	monitoring.RecordCacheOperation("delete", "success")
	return nil
}

func (m *memoryCache) HealthCheck(ctx context.Context) error {
	return nil
}
