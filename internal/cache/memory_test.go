package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *MemoryCache {
	t.Helper()
	mc := NewMemoryCache(100, 10*time.Millisecond)
	t.Cleanup(func() { mc.Close() })
	return mc
}

func TestMemoryCacheSetGet(t *testing.T) {
	mc := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "key", []byte("value"), time.Minute))

	val, found, err := mc.Get(ctx, "key")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("value"), val)

	_, found, err = mc.Get(ctx, "absent")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryCacheExpiry(t *testing.T) {
	mc := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "ephemeral", []byte("x"), 10*time.Millisecond))

	_, found, _ := mc.Get(ctx, "ephemeral")
	assert.True(t, found)

	time.Sleep(30 * time.Millisecond)

	_, found, _ = mc.Get(ctx, "ephemeral")
	assert.False(t, found)
}

func TestMemoryCacheDelete(t *testing.T) {
	mc := newTestCache(t)
	ctx := context.Background()

	mc.Set(ctx, "key", []byte("value"), time.Minute)
	require.NoError(t, mc.Delete(ctx, "key"))

	_, found, _ := mc.Get(ctx, "key")
	assert.False(t, found)
}

func TestMemoryCacheGetSetMultiple(t *testing.T) {
	mc := newTestCache(t)
	ctx := context.Background()

	items := map[string][]byte{
		"a": []byte("1"),
		"b": []byte("2"),
	}
	require.NoError(t, mc.SetMultiple(ctx, items, time.Minute))

	found, err := mc.GetMultiple(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Len(t, found, 2)
	assert.Equal(t, []byte("1"), found["a"])
	assert.Equal(t, []byte("2"), found["b"])
}

func TestMemoryCacheCleanupEvictsOverBudget(t *testing.T) {
	mc := NewMemoryCache(10, time.Hour)
	defer mc.Close()
	ctx := context.Background()

	// Entries with staggered expiries; the soonest-expiring must go first
	for i := 0; i < 20; i++ {
		key := fmt.Sprintf("key-%02d", i)
		mc.Set(ctx, key, []byte("v"), time.Duration(i+1)*time.Minute)
	}

	mc.cleanup()

	remaining := 0
	mc.data.Range(func(_, _ interface{}) bool {
		remaining++
		return true
	})
	assert.Equal(t, 10, remaining)

	// The longest-lived entry survived
	_, found, _ := mc.Get(ctx, "key-19")
	assert.True(t, found)
	// The soonest-expiring entry did not
	_, found, _ = mc.Get(ctx, "key-00")
	assert.False(t, found)
}
