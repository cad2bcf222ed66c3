package batch

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatcherMergesOverlappingRequests(t *testing.T) {
	var calls atomic.Int64
	var mu sync.Mutex
	var seenKeys []string

	b := NewBatcher("test", func(keys []string) map[string]int {
		calls.Add(1)
		mu.Lock()
		seenKeys = append(seenKeys, keys...)
		mu.Unlock()

		result := make(map[string]int, len(keys))
		for _, k := range keys {
			result[k] = len(k)
		}
		return result
	}, 30*time.Millisecond, 0)

	var wg sync.WaitGroup
	results := make([]map[string]int, 3)
	requests := [][]string{
		{"a", "bb", "ccc"},
		{"a", "dddd"},
		{"bb", "eeeee"},
	}

	for i, keys := range requests {
		wg.Add(1)
		go func(i int, keys []string) {
			defer wg.Done()
			results[i] = b.GetMultiple(keys)
		}(i, keys)
	}
	wg.Wait()

	// One batch fetch for all three overlapping requests
	assert.Equal(t, int64(1), calls.Load())

	mu.Lock()
	assert.Len(t, seenKeys, 5)
	mu.Unlock()

	// Each caller only sees its own keys
	assert.Equal(t, map[string]int{"a": 1, "bb": 2, "ccc": 3}, results[0])
	assert.Equal(t, map[string]int{"a": 1, "dddd": 4}, results[1])
	assert.Equal(t, map[string]int{"bb": 2, "eeeee": 5}, results[2])
}

func TestBatcherGetSingle(t *testing.T) {
	b := NewBatcher("single", func(keys []string) map[string]string {
		result := make(map[string]string)
		for _, k := range keys {
			result[k] = "value-" + k
		}
		return result
	}, 10*time.Millisecond, 0)

	assert.Equal(t, "value-x", b.Get("x"))
}

func TestBatcherOmitsUnresolvedKeys(t *testing.T) {
	b := NewBatcher("partial", func(keys []string) map[string]int {
		// Only resolve "found"
		return map[string]int{"found": 1}
	}, 10*time.Millisecond, 0)

	result := b.GetMultiple([]string{"found", "missing"})
	require.Contains(t, result, "found")
	assert.NotContains(t, result, "missing")
}

func TestBatcherMaxBatchTriggersEarly(t *testing.T) {
	var calls atomic.Int64
	b := NewBatcher("early", func(keys []string) map[string]bool {
		calls.Add(1)
		result := make(map[string]bool)
		for _, k := range keys {
			result[k] = true
		}
		return result
	}, time.Hour, 2) // window far too long to rely on

	result := b.GetMultiple([]string{"k1", "k2"})
	assert.Len(t, result, 2)
	assert.Equal(t, int64(1), calls.Load())
}

func TestBatcherEmptyKeys(t *testing.T) {
	b := NewBatcher("empty", func(keys []string) map[string]int {
		t.Fatal("batch function should not run for empty requests")
		return nil
	}, 10*time.Millisecond, 0)

	assert.Nil(t, b.GetMultiple(nil))
}

func TestKeyStableAcrossOrdering(t *testing.T) {
	key1 := Key("reactions", []string{"r1", "r2"}, []string{"a", "b"})
	key2 := Key("reactions", []string{"r2", "r1"}, []string{"b", "a"})
	assert.Equal(t, key1, key2)

	key3 := Key("replies", []string{"r1", "r2"}, []string{"a", "b"})
	assert.NotEqual(t, key1, key3)
}
