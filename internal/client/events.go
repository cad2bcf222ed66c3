package client

import (
	"encoding/json"
	"strconv"

	"github.com/samber/lo"

	"github.com/quirze62/nodus/internal/nostr"
	"github.com/quirze62/nodus/internal/types"
)

// Builders for the event kinds the client publishes. Each returns an
// unsigned event; Finalize stamps created_at, computes the ID and signs.

// BuildNote creates a kind 1 text note.
func BuildNote(content string) types.Event {
	return types.Event{
		Kind:    nostr.KindNote,
		Content: content,
		Tags:    [][]string{},
	}
}

// BuildReply creates a kind 1 reply to parent. Tag markers follow the
// threading convention: a "root" e tag for the thread root and a
// "reply" e tag for the direct parent. Replying directly to a root
// produces a single "root" marker. The parent author plus everyone the
// parent tagged are carried as p tags so the whole thread is notified.
func BuildReply(parent *types.Event, content string) types.Event {
	tags := [][]string{}

	rootID := ""
	for _, tag := range parent.Tags {
		if len(tag) >= 4 && tag[0] == "e" && tag[3] == "root" {
			rootID = tag[1]
			break
		}
	}
	if rootID == "" {
		// Older events mark the root positionally as the first e tag
		for _, tag := range parent.Tags {
			if len(tag) >= 2 && tag[0] == "e" {
				rootID = tag[1]
				break
			}
		}
	}

	if rootID != "" && rootID != parent.ID {
		tags = append(tags,
			[]string{"e", rootID, "", "root"},
			[]string{"e", parent.ID, "", "reply"})
	} else {
		tags = append(tags, []string{"e", parent.ID, "", "root"})
	}

	pubkeys := append([]string{parent.PubKey}, parent.TagValues("p")...)
	for _, pk := range lo.Uniq(pubkeys) {
		tags = append(tags, []string{"p", pk})
	}

	return types.Event{
		Kind:    nostr.KindNote,
		Content: content,
		Tags:    tags,
	}
}

// BuildReaction creates a kind 7 reaction to target. An empty content
// defaults to "+", the plain like.
func BuildReaction(target *types.Event, content string) types.Event {
	if content == "" {
		content = "+"
	}
	return types.Event{
		Kind:    nostr.KindReaction,
		Content: content,
		Tags: [][]string{
			{"e", target.ID},
			{"p", target.PubKey},
			{"k", strconv.Itoa(target.Kind)},
		},
	}
}

// BuildRepost creates a kind 6 repost of target. The content embeds the
// reposted event as JSON and the e tag carries a relay hint when known.
func BuildRepost(target *types.Event) types.Event {
	relayHint := ""
	if len(target.RelaysSeen) > 0 {
		relayHint = target.RelaysSeen[0]
	}

	embedded, err := json.Marshal(target)
	if err != nil {
		embedded = []byte("")
	}

	return types.Event{
		Kind:    nostr.KindRepost,
		Content: string(embedded),
		Tags: [][]string{
			{"e", target.ID, relayHint},
			{"p", target.PubKey},
		},
	}
}

// BuildQuote creates a kind 1 note quoting target via a q tag.
func BuildQuote(target *types.Event, content string) types.Event {
	relayHint := ""
	if len(target.RelaysSeen) > 0 {
		relayHint = target.RelaysSeen[0]
	}
	return types.Event{
		Kind:    nostr.KindNote,
		Content: content,
		Tags: [][]string{
			{"q", target.ID, relayHint},
			{"p", target.PubKey},
		},
	}
}

// BuildDeletion creates a kind 5 deletion request for the given event IDs.
func BuildDeletion(eventIDs []string, reason string) types.Event {
	tags := make([][]string, 0, len(eventIDs))
	for _, id := range eventIDs {
		tags = append(tags, []string{"e", id})
	}
	return types.Event{
		Kind:    nostr.KindDeletion,
		Content: reason,
		Tags:    tags,
	}
}

// BuildProfile creates a kind 0 metadata event from the profile fields.
func BuildProfile(profile *types.ProfileInfo) (types.Event, error) {
	content, err := json.Marshal(profile)
	if err != nil {
		return types.Event{}, err
	}
	return types.Event{
		Kind:    nostr.KindMetadata,
		Content: string(content),
		Tags:    [][]string{},
	}, nil
}

// BuildContactList creates a kind 3 contact list from followed pubkeys.
func BuildContactList(pubkeys []string) types.Event {
	tags := make([][]string, 0, len(pubkeys))
	for _, pk := range lo.Uniq(pubkeys) {
		tags = append(tags, []string{"p", pk})
	}
	return types.Event{
		Kind:    nostr.KindContacts,
		Content: "",
		Tags:    tags,
	}
}

// BuildRelayList creates a kind 10002 relay list. Relays in both sets
// get a bare r tag, the rest get a read or write marker.
func BuildRelayList(relayList *types.RelayList) types.Event {
	writeSet := make(map[string]bool, len(relayList.Write))
	for _, r := range relayList.Write {
		writeSet[r] = true
	}

	tags := [][]string{}
	seen := make(map[string]bool)

	for _, r := range relayList.Read {
		seen[r] = true
		if writeSet[r] {
			tags = append(tags, []string{"r", r})
		} else {
			tags = append(tags, []string{"r", r, "read"})
		}
	}
	for _, r := range relayList.Write {
		if !seen[r] {
			tags = append(tags, []string{"r", r, "write"})
		}
	}

	return types.Event{
		Kind:    nostr.KindRelayList,
		Content: "",
		Tags:    tags,
	}
}
