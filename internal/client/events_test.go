package client

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quirze62/nodus/internal/nostr"
	"github.com/quirze62/nodus/internal/types"
)

func TestBuildNote(t *testing.T) {
	evt := BuildNote("hello world")
	assert.Equal(t, nostr.KindNote, evt.Kind)
	assert.Equal(t, "hello world", evt.Content)
	assert.Empty(t, evt.Tags)
	assert.NotNil(t, evt.Tags)
}

func TestBuildReplyToRoot(t *testing.T) {
	root := &types.Event{
		ID:     "rootid",
		PubKey: "rootauthor",
		Kind:   nostr.KindNote,
		Tags:   [][]string{},
	}

	reply := BuildReply(root, "direct reply")

	require.Len(t, reply.Tags, 2)
	assert.Equal(t, []string{"e", "rootid", "", "root"}, reply.Tags[0])
	assert.Equal(t, []string{"p", "rootauthor"}, reply.Tags[1])
}

func TestBuildReplyNested(t *testing.T) {
	parent := &types.Event{
		ID:     "parentid",
		PubKey: "parentauthor",
		Kind:   nostr.KindNote,
		Tags: [][]string{
			{"e", "rootid", "", "root"},
			{"p", "rootauthor"},
		},
	}

	reply := BuildReply(parent, "nested reply")

	assert.Equal(t, []string{"e", "rootid", "", "root"}, reply.Tags[0])
	assert.Equal(t, []string{"e", "parentid", "", "reply"}, reply.Tags[1])

	// Parent author and everyone the parent tagged get notified, once each
	pTags := reply.TagValues("p")
	assert.ElementsMatch(t, []string{"parentauthor", "rootauthor"}, pTags)
}

func TestBuildReplyPositionalRootFallback(t *testing.T) {
	// Older events mark the root as a bare first e tag
	parent := &types.Event{
		ID:     "parentid",
		PubKey: "parentauthor",
		Kind:   nostr.KindNote,
		Tags:   [][]string{{"e", "rootid"}},
	}

	reply := BuildReply(parent, "reply to old-style event")

	assert.Equal(t, []string{"e", "rootid", "", "root"}, reply.Tags[0])
	assert.Equal(t, []string{"e", "parentid", "", "reply"}, reply.Tags[1])
}

func TestBuildReaction(t *testing.T) {
	target := &types.Event{ID: "targetid", PubKey: "author", Kind: nostr.KindNote}

	evt := BuildReaction(target, "🔥")
	assert.Equal(t, nostr.KindReaction, evt.Kind)
	assert.Equal(t, "🔥", evt.Content)
	assert.Equal(t, "targetid", evt.TagValue("e"))
	assert.Equal(t, "author", evt.TagValue("p"))
	assert.Equal(t, "1", evt.TagValue("k"))

	// Empty content defaults to a plain like
	like := BuildReaction(target, "")
	assert.Equal(t, "+", like.Content)
}

func TestBuildRepostEmbedsTarget(t *testing.T) {
	target := &types.Event{
		ID:         "targetid",
		PubKey:     "author",
		Kind:       nostr.KindNote,
		Content:    "worth sharing",
		RelaysSeen: []string{"wss://origin.example.com"},
	}

	evt := BuildRepost(target)
	assert.Equal(t, nostr.KindRepost, evt.Kind)
	assert.Equal(t, []string{"e", "targetid", "wss://origin.example.com"}, evt.Tags[0])
	assert.Equal(t, []string{"p", "author"}, evt.Tags[1])

	var embedded types.Event
	require.NoError(t, json.Unmarshal([]byte(evt.Content), &embedded))
	assert.Equal(t, "worth sharing", embedded.Content)
}

func TestBuildQuote(t *testing.T) {
	target := &types.Event{ID: "targetid", PubKey: "author", Kind: nostr.KindNote}

	evt := BuildQuote(target, "look at this")
	assert.Equal(t, nostr.KindNote, evt.Kind)
	assert.Equal(t, "look at this", evt.Content)
	assert.Equal(t, "targetid", evt.TagValue("q"))
	assert.Equal(t, "author", evt.TagValue("p"))
}

func TestBuildDeletion(t *testing.T) {
	evt := BuildDeletion([]string{"id1", "id2"}, "posted by mistake")
	assert.Equal(t, nostr.KindDeletion, evt.Kind)
	assert.Equal(t, "posted by mistake", evt.Content)
	assert.Equal(t, []string{"id1", "id2"}, evt.TagValues("e"))
}

func TestBuildProfile(t *testing.T) {
	profile := &types.ProfileInfo{Name: "alice", About: "hi"}

	evt, err := BuildProfile(profile)
	require.NoError(t, err)
	assert.Equal(t, nostr.KindMetadata, evt.Kind)

	var decoded types.ProfileInfo
	require.NoError(t, json.Unmarshal([]byte(evt.Content), &decoded))
	assert.Equal(t, "alice", decoded.Name)
}

func TestBuildContactListDeduplicates(t *testing.T) {
	evt := BuildContactList([]string{"pk1", "pk2", "pk1"})
	assert.Equal(t, nostr.KindContacts, evt.Kind)
	assert.Equal(t, []string{"pk1", "pk2"}, evt.TagValues("p"))
}

func TestBuildRelayListMarkers(t *testing.T) {
	evt := BuildRelayList(&types.RelayList{
		Read:  []string{"wss://both.example.com", "wss://reads.example.com"},
		Write: []string{"wss://both.example.com", "wss://writes.example.com"},
	})

	assert.Equal(t, nostr.KindRelayList, evt.Kind)
	require.Len(t, evt.Tags, 3)
	assert.Equal(t, []string{"r", "wss://both.example.com"}, evt.Tags[0])
	assert.Equal(t, []string{"r", "wss://reads.example.com", "read"}, evt.Tags[1])
	assert.Equal(t, []string{"r", "wss://writes.example.com", "write"}, evt.Tags[2])
}
