// Package batch provides request coalescing: a time-window batcher for
// merging overlapping key sets, and a stable key builder for
// singleflight groups.
package batch

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// Batcher collects requests over a time window and executes them in one
// batch. Unlike singleflight, overlapping (not just identical) key sets
// are merged: concurrent requests for [a,b,c], [a,d] and [b,e] produce a
// single fetch for [a,b,c,d,e].
type Batcher[V any] struct {
	name     string
	batchFn  func(keys []string) map[string]V
	window   time.Duration
	maxBatch int

	mu       sync.Mutex
	pending  map[string][]*batchWaiter[V]
	timer    *time.Timer
	timerSet bool
}

// batchWaiter represents a caller waiting for results
type batchWaiter[V any] struct {
	keys   []string
	result chan map[string]V
}

// NewBatcher creates a batcher. The window is how long to collect
// requests before executing (e.g. 50ms); maxBatch caps keys per batch
// (0 = unlimited).
func NewBatcher[V any](name string, batchFn func(keys []string) map[string]V, window time.Duration, maxBatch int) *Batcher[V] {
	return &Batcher[V]{
		name:     name,
		batchFn:  batchFn,
		window:   window,
		maxBatch: maxBatch,
		pending:  make(map[string][]*batchWaiter[V]),
	}
}

// Get fetches a single value, batching with other concurrent requests.
func (b *Batcher[V]) Get(key string) V {
	result := b.GetMultiple([]string{key})
	return result[key]
}

// GetMultiple fetches multiple values, batching with other concurrent
// requests. The result maps key to value for the keys that resolved.
func (b *Batcher[V]) GetMultiple(keys []string) map[string]V {
	if len(keys) == 0 {
		return nil
	}

	waiter := &batchWaiter[V]{
		keys:   keys,
		result: make(chan map[string]V, 1),
	}

	b.mu.Lock()

	for _, key := range keys {
		b.pending[key] = append(b.pending[key], waiter)
	}

	if !b.timerSet {
		b.timerSet = true
		b.timer = time.AfterFunc(b.window, b.executeBatch)
	}

	if b.maxBatch > 0 && len(b.pending) >= b.maxBatch {
		b.timer.Stop()
		b.mu.Unlock()
		b.executeBatch()
	} else {
		b.mu.Unlock()
	}

	return <-waiter.result
}

// executeBatch runs the batch function and distributes results to waiters.
func (b *Batcher[V]) executeBatch() {
	b.mu.Lock()

	keys := make([]string, 0, len(b.pending))
	for key := range b.pending {
		keys = append(keys, key)
	}

	waiterSet := make(map[*batchWaiter[V]]bool)
	for _, waiters := range b.pending {
		for _, w := range waiters {
			waiterSet[w] = true
		}
	}

	b.pending = make(map[string][]*batchWaiter[V])
	b.timerSet = false

	b.mu.Unlock()

	if len(keys) == 0 {
		return
	}

	slog.Debug("batcher: executing batch",
		"name", b.name,
		"keys", len(keys),
		"waiters", len(waiterSet))

	results := b.batchFn(keys)

	// Each waiter only sees the keys it asked for
	for waiter := range waiterSet {
		waiterResult := make(map[string]V, len(waiter.keys))
		for _, key := range waiter.keys {
			if val, ok := results[key]; ok {
				waiterResult[key] = val
			}
		}
		waiter.result <- waiterResult
	}
}

// Stats returns current pending key and waiter counts.
func (b *Batcher[V]) Stats() (pendingKeys int, pendingWaiters int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	waiterSet := make(map[*batchWaiter[V]]bool)
	for _, waiters := range b.pending {
		for _, w := range waiters {
			waiterSet[w] = true
		}
	}

	return len(b.pending), len(waiterSet)
}

// Key builds a stable singleflight key from a prefix and key sets.
// Both slices are sorted so identical batches produce identical keys.
func Key(prefix string, relays, ids []string) string {
	sortedRelays := sortedCopy(relays)
	sortedIDs := sortedCopy(ids)
	return prefix + ":" + strings.Join(sortedRelays, "|") + ":" + strings.Join(sortedIDs, ",")
}

func sortedCopy(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}
