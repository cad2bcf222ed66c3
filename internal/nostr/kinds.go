package nostr

import "github.com/quirze62/nodus/internal/types"

// Standard event kinds handled by the client
const (
	KindMetadata      = 0
	KindNote          = 1
	KindContacts      = 3
	KindDirectMessage = 4
	KindDeletion      = 5
	KindRepost        = 6
	KindReaction      = 7
	KindRelayList     = 10002
)

// KindDefinition describes how a specific Nostr event kind behaves.
// This is the single source of truth for kind-specific handling.
type KindDefinition struct {
	Kind int
	Name string

	IsRepost      bool // This kind wraps another event (kind 6)
	IsReplaceable bool // Newer events replace older ones per author
	SkipContent   bool // Content is not user text (reposts embed JSON)

	ShowInTimeline bool // Show in main timeline feeds
	ShowReplyCount bool

	// Don't filter this kind when removing replies (e.g. reposts carry e-tags)
	ExcludeFromReplyFilter bool
}

// KindRegistry maps kind numbers to their definitions.
// Add new kinds here to support them throughout the application.
var KindRegistry = map[int]*KindDefinition{
	KindMetadata: {
		Kind:          KindMetadata,
		Name:          "metadata",
		IsReplaceable: true,
	},
	KindNote: {
		Kind:           KindNote,
		Name:           "note",
		ShowInTimeline: true,
		ShowReplyCount: true,
	},
	KindContacts: {
		Kind:          KindContacts,
		Name:          "contacts",
		IsReplaceable: true,
	},
	KindDirectMessage: {
		Kind: KindDirectMessage,
		Name: "dm",
	},
	KindDeletion: {
		Kind: KindDeletion,
		Name: "deletion",
	},
	KindRepost: {
		Kind:                   KindRepost,
		Name:                   "repost",
		IsRepost:               true,
		SkipContent:            true,
		ShowInTimeline:         true,
		ExcludeFromReplyFilter: true,
	},
	KindReaction: {
		Kind: KindReaction,
		Name: "reaction",
	},
	KindRelayList: {
		Kind:          KindRelayList,
		Name:          "relay_list",
		IsReplaceable: true,
	},
}

// IsReply reports whether a note references a parent event. Kinds exempt
// from the reply filter (reposts) always return false.
func IsReply(evt types.Event) bool {
	if def, ok := KindRegistry[evt.Kind]; ok && def.ExcludeFromReplyFilter {
		return false
	}
	return evt.HasTag("e")
}
