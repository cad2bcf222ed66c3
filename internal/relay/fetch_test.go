package relay

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quirze62/nodus/internal/nostr"
	"github.com/quirze62/nodus/internal/types"
)

func testFetcher(t *testing.T) *Fetcher {
	t.Helper()
	return NewFetcher(testPool(t), nil)
}

func pubkeyHex(t *testing.T, privKey []byte) string {
	t.Helper()
	evt := types.Event{Kind: 1, Content: "x"}
	require.NoError(t, nostr.Finalize(&evt, privKey))
	return evt.PubKey
}

func TestFetchEventsDeduplicatesAcrossRelays(t *testing.T) {
	privKey, err := nostr.GeneratePrivateKey()
	require.NoError(t, err)

	shared := signedEvent(t, privKey, 1, "on both relays", nil, 2000)
	only1 := signedEvent(t, privKey, 1, "only on relay one", nil, 1000)

	fr1 := newFakeRelay(t)
	fr1.addEvent(shared)
	fr1.addEvent(only1)
	fr2 := newFakeRelay(t)
	fr2.addEvent(shared)

	fetcher := testFetcher(t)

	events, eose := fetcher.FetchEvents(context.Background(),
		[]string{fr1.url(), fr2.url()}, types.Filter{Limit: 10})

	assert.True(t, eose)
	require.Len(t, events, 2)
	// Sorted newest first
	assert.Equal(t, "on both relays", events[0].Content)
	assert.Equal(t, "only on relay one", events[1].Content)
}

func TestFetchEventsAppliesLimit(t *testing.T) {
	privKey, err := nostr.GeneratePrivateKey()
	require.NoError(t, err)

	fr := newFakeRelay(t)
	for i := 0; i < 10; i++ {
		fr.addEvent(signedEvent(t, privKey, 1, "note", nil, int64(1000+i)))
	}

	fetcher := testFetcher(t)

	events, _ := fetcher.FetchEvents(context.Background(),
		[]string{fr.url()}, types.Filter{Limit: 3})

	assert.Len(t, events, 3)
	// Sorted newest first within the collected batch
	assert.GreaterOrEqual(t, events[0].CreatedAt, events[1].CreatedAt)
	assert.GreaterOrEqual(t, events[1].CreatedAt, events[2].CreatedAt)
}

func TestFetchEventsToleratesDeadRelay(t *testing.T) {
	privKey, err := nostr.GeneratePrivateKey()
	require.NoError(t, err)

	fr := newFakeRelay(t)
	fr.addEvent(signedEvent(t, privKey, 1, "survivor", nil, 1000))

	fetcher := testFetcher(t)

	events, eose := fetcher.FetchEventsWithTimeout(context.Background(),
		[]string{fr.url(), "ws://127.0.0.1:1"}, types.Filter{Limit: 5}, 2*time.Second)

	require.Len(t, events, 1)
	assert.Equal(t, "survivor", events[0].Content)
	// The dead relay never reached EOSE
	assert.False(t, eose)
}

func TestFetchEventByID(t *testing.T) {
	privKey, err := nostr.GeneratePrivateKey()
	require.NoError(t, err)

	target := signedEvent(t, privKey, 1, "findable", nil, 1000)
	fr := newFakeRelay(t)
	fr.addEvent(target)

	fetcher := testFetcher(t)

	found := fetcher.FetchEventByID(context.Background(), []string{fr.url()}, target.ID)
	require.NotNil(t, found)
	assert.Equal(t, target.Content, found.Content)

	missing := fetcher.FetchEventByID(context.Background(), []string{fr.url()},
		"0000000000000000000000000000000000000000000000000000000000000000")
	assert.Nil(t, missing)
}

func TestFetchProfiles(t *testing.T) {
	privKey, err := nostr.GeneratePrivateKey()
	require.NoError(t, err)
	author := pubkeyHex(t, privKey)

	profile := types.ProfileInfo{Name: "alice", About: "test profile"}
	content, err := json.Marshal(profile)
	require.NoError(t, err)

	fr := newFakeRelay(t)
	fr.addEvent(signedEvent(t, privKey, 0, string(content), nil, 1000))

	fetcher := testFetcher(t)

	unknown := "1111111111111111111111111111111111111111111111111111111111111111"
	profiles := fetcher.FetchProfiles(context.Background(), []string{fr.url()},
		[]string{author, unknown})

	require.NotNil(t, profiles[author])
	assert.Equal(t, "alice", profiles[author].Name)
	// Unknown pubkeys come back nil so callers can cache the miss
	_, present := profiles[unknown]
	assert.True(t, present)
	assert.Nil(t, profiles[unknown])
}

func TestFetchProfilesNewestWins(t *testing.T) {
	privKey, err := nostr.GeneratePrivateKey()
	require.NoError(t, err)
	author := pubkeyHex(t, privKey)

	old, err := json.Marshal(types.ProfileInfo{Name: "old name"})
	require.NoError(t, err)
	current, err := json.Marshal(types.ProfileInfo{Name: "new name"})
	require.NoError(t, err)

	fr := newFakeRelay(t)
	fr.addEvent(signedEvent(t, privKey, 0, string(old), nil, 1000))
	fr.addEvent(signedEvent(t, privKey, 0, string(current), nil, 2000))

	fetcher := testFetcher(t)

	profiles := fetcher.FetchProfiles(context.Background(), []string{fr.url()}, []string{author})
	require.NotNil(t, profiles[author])
	assert.Equal(t, "new name", profiles[author].Name)
}

func TestFetchReactions(t *testing.T) {
	privKey, err := nostr.GeneratePrivateKey()
	require.NoError(t, err)

	target := signedEvent(t, privKey, 1, "popular note", nil, 1000)

	fr := newFakeRelay(t)
	fr.addEvent(signedEvent(t, privKey, 7, "+", [][]string{{"e", target.ID}, {"p", target.PubKey}}, 1001))
	fr.addEvent(signedEvent(t, privKey, 7, "", [][]string{{"e", target.ID}, {"p", target.PubKey}}, 1002))
	fr.addEvent(signedEvent(t, privKey, 7, "🔥", [][]string{{"e", target.ID}, {"p", target.PubKey}}, 1003))
	// Reaction to something else must not count
	fr.addEvent(signedEvent(t, privKey, 7, "+", [][]string{{"e", "ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"}}, 1004))

	fetcher := testFetcher(t)

	reactions := fetcher.FetchReactions(context.Background(), []string{fr.url()}, []string{target.ID})
	require.NotNil(t, reactions[target.ID])
	assert.Equal(t, 3, reactions[target.ID].Total)
	assert.Equal(t, 2, reactions[target.ID].ByType["+"])
	assert.Equal(t, 1, reactions[target.ID].ByType["🔥"])
}

func TestFetchReplyCounts(t *testing.T) {
	privKey, err := nostr.GeneratePrivateKey()
	require.NoError(t, err)

	root := signedEvent(t, privKey, 1, "root note", nil, 1000)

	fr := newFakeRelay(t)
	fr.addEvent(signedEvent(t, privKey, 1, "reply one", [][]string{{"e", root.ID, "", "root"}}, 1001))
	fr.addEvent(signedEvent(t, privKey, 1, "reply two", [][]string{{"e", root.ID, "", "root"}}, 1002))

	fetcher := testFetcher(t)

	counts := fetcher.FetchReplyCounts(context.Background(), []string{fr.url()}, []string{root.ID})
	assert.Equal(t, 2, counts[root.ID])
}

func TestFetchContactList(t *testing.T) {
	privKey, err := nostr.GeneratePrivateKey()
	require.NoError(t, err)
	author := pubkeyHex(t, privKey)

	followed1 := "1111111111111111111111111111111111111111111111111111111111111111"
	followed2 := "2222222222222222222222222222222222222222222222222222222222222222"

	fr := newFakeRelay(t)
	fr.addEvent(signedEvent(t, privKey, 3, "", [][]string{{"p", followed1}, {"p", followed2}}, 1000))

	fetcher := testFetcher(t)

	contacts := fetcher.FetchContactList(context.Background(), []string{fr.url()}, author)
	assert.Equal(t, []string{followed1, followed2}, contacts)
}

func TestFetchRelayList(t *testing.T) {
	privKey, err := nostr.GeneratePrivateKey()
	require.NoError(t, err)
	author := pubkeyHex(t, privKey)

	fr := newFakeRelay(t)
	fr.addEvent(signedEvent(t, privKey, 10002, "", [][]string{
		{"r", "wss://both.example.com"},
		{"r", "wss://reads.example.com", "read"},
		{"r", "wss://writes.example.com", "write"},
	}, 1000))

	fetcher := testFetcher(t)

	relayList := fetcher.FetchRelayList(context.Background(), []string{fr.url()}, author)
	require.NotNil(t, relayList)
	assert.Equal(t, []string{"wss://both.example.com", "wss://reads.example.com"}, relayList.Read)
	assert.Equal(t, []string{"wss://both.example.com", "wss://writes.example.com"}, relayList.Write)
}

func TestSortEvents(t *testing.T) {
	events := []types.Event{
		{ID: "aa", CreatedAt: 100},
		{ID: "cc", CreatedAt: 300},
		{ID: "bb", CreatedAt: 200},
		{ID: "dd", CreatedAt: 200},
	}

	SortEvents(events)

	assert.Equal(t, "cc", events[0].ID)
	// Equal timestamps tie-break on ID, descending
	assert.Equal(t, "dd", events[1].ID)
	assert.Equal(t, "bb", events[2].ID)
	assert.Equal(t, "aa", events[3].ID)
}
