package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache implements Backend using sync.Map with TTL entries.
// A background loop sweeps expired entries; when the cache exceeds
// maxSize the sweep also evicts the entries closest to expiry.
type MemoryCache struct {
	data            sync.Map
	maxSize         int
	cleanupInterval time.Duration
	stopCh          chan struct{}
	stopOnce        sync.Once
}

type memoryCacheEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache(maxSize int, cleanupInterval time.Duration) *MemoryCache {
	mc := &MemoryCache{
		maxSize:         maxSize,
		cleanupInterval: cleanupInterval,
		stopCh:          make(chan struct{}),
	}
	go mc.cleanupLoop()
	return mc
}

func (m *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, ok := m.data.Load(key)
	if !ok {
		return nil, false, nil
	}
	entry := val.(*memoryCacheEntry)
	if time.Now().After(entry.expiresAt) {
		m.data.Delete(key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (m *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.data.Store(key, &memoryCacheEntry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	})
	return nil
}

func (m *MemoryCache) Delete(ctx context.Context, key string) error {
	m.data.Delete(key)
	return nil
}

func (m *MemoryCache) GetMultiple(ctx context.Context, keys []string) (map[string][]byte, error) {
	result := make(map[string][]byte)
	now := time.Now()
	for _, key := range keys {
		val, ok := m.data.Load(key)
		if !ok {
			continue
		}
		entry := val.(*memoryCacheEntry)
		if now.After(entry.expiresAt) {
			m.data.Delete(key)
			continue
		}
		result[key] = entry.value
	}
	return result, nil
}

func (m *MemoryCache) SetMultiple(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	expiresAt := time.Now().Add(ttl)
	for key, value := range items {
		m.data.Store(key, &memoryCacheEntry{
			value:     value,
			expiresAt: expiresAt,
		})
	}
	return nil
}

func (m *MemoryCache) Close() error {
	m.stopOnce.Do(func() { close(m.stopCh) })
	return nil
}

func (m *MemoryCache) cleanupLoop() {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.cleanup()
		}
	}
}

func (m *MemoryCache) cleanup() {
	now := time.Now()
	size := 0
	type keyed struct {
		key       string
		expiresAt time.Time
	}
	var entries []keyed

	m.data.Range(func(key, val interface{}) bool {
		entry := val.(*memoryCacheEntry)
		if now.After(entry.expiresAt) {
			m.data.Delete(key)
			return true
		}
		size++
		entries = append(entries, keyed{key.(string), entry.expiresAt})
		return true
	})

	if m.maxSize <= 0 || size <= m.maxSize {
		return
	}

	// Over budget: drop the entries expiring soonest
	toDrop := size - m.maxSize
	for i := 0; i < len(entries) && toDrop > 0; i++ {
		soonest := i
		for j := i + 1; j < len(entries); j++ {
			if entries[j].expiresAt.Before(entries[soonest].expiresAt) {
				soonest = j
			}
		}
		entries[i], entries[soonest] = entries[soonest], entries[i]
		m.data.Delete(entries[i].key)
		toDrop--
	}
}
