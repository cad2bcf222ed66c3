package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quirze62/nodus/internal/nostr"
	"github.com/quirze62/nodus/internal/types"
)

func newTestAggregator(t *testing.T, relays []string) *Aggregator {
	t.Helper()
	return NewAggregator(testPool(t), relays, []int{1, 6})
}

func TestAggregatorAddEventKeepsSortedOrder(t *testing.T) {
	agg := newTestAggregator(t, nil)

	agg.addEvent(types.Event{ID: "bb", Kind: 1, CreatedAt: 200})
	agg.addEvent(types.Event{ID: "aa", Kind: 1, CreatedAt: 100})
	agg.addEvent(types.Event{ID: "cc", Kind: 1, CreatedAt: 300})

	events, ok := agg.GetEvents(types.Filter{Kinds: []int{1}, Limit: 3}, false)
	require.True(t, ok)
	require.Len(t, events, 3)
	assert.Equal(t, "cc", events[0].ID)
	assert.Equal(t, "bb", events[1].ID)
	assert.Equal(t, "aa", events[2].ID)
}

func TestAggregatorDeduplicates(t *testing.T) {
	agg := newTestAggregator(t, nil)

	evt := types.Event{ID: "same", Kind: 1, CreatedAt: 100}
	agg.addEvent(evt)
	agg.addEvent(evt)
	agg.addEvent(evt)

	assert.Equal(t, 1, agg.BufferedCount())
}

func TestAggregatorEvictsOldestWhenFull(t *testing.T) {
	agg := newTestAggregator(t, nil)

	for i := 0; i < aggregatorBufferSize+10; i++ {
		agg.addEvent(types.Event{ID: testEventID(i), Kind: 1, CreatedAt: int64(i)})
	}

	assert.Equal(t, aggregatorBufferSize, agg.BufferedCount())

	// The newest must have survived eviction
	events, ok := agg.GetEvents(types.Filter{Kinds: []int{1}, Limit: 1}, false)
	require.True(t, ok)
	assert.Equal(t, int64(aggregatorBufferSize+9), events[0].CreatedAt)
}

func TestAggregatorIgnoresStaleEventWhenFull(t *testing.T) {
	agg := newTestAggregator(t, nil)

	for i := 0; i < aggregatorBufferSize; i++ {
		agg.addEvent(types.Event{ID: testEventID(i + 1000), Kind: 1, CreatedAt: int64(i + 1000)})
	}

	agg.addEvent(types.Event{ID: testEventID(1), Kind: 1, CreatedAt: 1})
	assert.Equal(t, aggregatorBufferSize, agg.BufferedCount())

	// The stale event must not have displaced anything
	events, ok := agg.GetEvents(types.Filter{Kinds: []int{1}, Limit: aggregatorBufferSize}, false)
	require.True(t, ok)
	assert.Equal(t, int64(1000), events[len(events)-1].CreatedAt)
}

func TestAggregatorFilterMatching(t *testing.T) {
	agg := newTestAggregator(t, nil)

	agg.addEvent(types.Event{ID: "n1", Kind: 1, PubKey: "alice", CreatedAt: 100})
	agg.addEvent(types.Event{ID: "n2", Kind: 1, PubKey: "bob", CreatedAt: 200})
	agg.addEvent(types.Event{ID: "r1", Kind: 6, PubKey: "alice", CreatedAt: 300})

	events, ok := agg.GetEvents(types.Filter{
		Kinds:   []int{1},
		Authors: []string{"alice"},
		Limit:   1,
	}, false)
	require.True(t, ok)
	require.Len(t, events, 1)
	assert.Equal(t, "n1", events[0].ID)
}

func TestAggregatorSkipsReplies(t *testing.T) {
	agg := newTestAggregator(t, nil)

	agg.addEvent(types.Event{ID: "top", Kind: 1, CreatedAt: 200, Tags: [][]string{}})
	agg.addEvent(types.Event{
		ID: "reply", Kind: 1, CreatedAt: 300,
		Tags: [][]string{{"e", "top", "", "root"}},
	})

	events, ok := agg.GetEvents(types.Filter{Kinds: []int{1}, Limit: 1}, true)
	require.True(t, ok)
	require.Len(t, events, 1)
	assert.Equal(t, "top", events[0].ID)
}

func TestAggregatorRefusesUnservableFilters(t *testing.T) {
	agg := newTestAggregator(t, nil)
	agg.addEvent(types.Event{ID: "n1", Kind: 1, CreatedAt: 100})

	// ID and tag queries always go to the relays
	_, ok := agg.GetEvents(types.Filter{IDs: []string{"n1"}}, false)
	assert.False(t, ok)
	_, ok = agg.GetEvents(types.Filter{ETags: []string{"n1"}}, false)
	assert.False(t, ok)

	// Kinds outside the firehose subscription too
	_, ok = agg.GetEvents(types.Filter{Kinds: []int{4}, Limit: 1}, false)
	assert.False(t, ok)
}

func TestAggregatorReportsShortPage(t *testing.T) {
	agg := newTestAggregator(t, nil)
	agg.addEvent(types.Event{ID: "only", Kind: 1, CreatedAt: 100})

	// Buffer cannot fill a 10-event page, caller must fan out
	_, ok := agg.GetEvents(types.Filter{Kinds: []int{1}, Limit: 10}, false)
	assert.False(t, ok)
}

func TestAggregatorStreamsFromRelay(t *testing.T) {
	privKey, err := nostr.GeneratePrivateKey()
	require.NoError(t, err)

	fr := newFakeRelay(t)
	fr.addEvent(signedEvent(t, privKey, 1, "streamed", nil, 1000))

	agg := newTestAggregator(t, []string{fr.url()})
	agg.Start()
	defer agg.Stop()

	require.Eventually(t, func() bool {
		return agg.BufferedCount() == 1
	}, 5*time.Second, 20*time.Millisecond)

	events, ok := agg.GetEvents(types.Filter{Kinds: []int{1}, Limit: 1}, false)
	require.True(t, ok)
	assert.Equal(t, "streamed", events[0].Content)
}

// testEventID builds a distinct fake 8-char ID from an int.
func testEventID(i int) string {
	const digits = "0123456789abcdef"
	id := make([]byte, 8)
	for j := 7; j >= 0; j-- {
		id[j] = digits[i&0xf]
		i >>= 4
	}
	return string(id)
}
