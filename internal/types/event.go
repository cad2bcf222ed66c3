// Package types provides shared type definitions used across internal packages.
package types

// Event represents a Nostr event (NIP-01)
type Event struct {
	ID         string     `json:"id"`
	PubKey     string     `json:"pubkey"`
	CreatedAt  int64      `json:"created_at"`
	Kind       int        `json:"kind"`
	Tags       [][]string `json:"tags"`
	Content    string     `json:"content"`
	Sig        string     `json:"sig"`
	RelaysSeen []string   `json:"-"`
}

// Filter represents a Nostr subscription filter (NIP-01)
type Filter struct {
	IDs     []string
	Authors []string
	Kinds   []int
	Limit   int
	Since   *int64
	Until   *int64
	ETags   []string // #e tag filter (referenced events)
	PTags   []string // #p tag filter (mentions, DM recipients)
}

// WireMessage represents a raw Nostr protocol message
type WireMessage []interface{}

// TagValue returns the first value for the given tag name, or "" if absent.
func (e *Event) TagValue(name string) string {
	for _, tag := range e.Tags {
		if len(tag) >= 2 && tag[0] == name {
			return tag[1]
		}
	}
	return ""
}

// LastTagValue returns the last value for the given tag name.
// For "e" tags in replies the last one is conventionally the direct parent.
func (e *Event) LastTagValue(name string) string {
	var result string
	for _, tag := range e.Tags {
		if len(tag) >= 2 && tag[0] == name {
			result = tag[1]
		}
	}
	return result
}

// TagValues returns all values for the given tag name.
func (e *Event) TagValues(name string) []string {
	var results []string
	for _, tag := range e.Tags {
		if len(tag) >= 2 && tag[0] == name {
			results = append(results, tag[1])
		}
	}
	return results
}

// HasTag returns true if the given tag name exists, even with an empty value.
func (e *Event) HasTag(name string) bool {
	for _, tag := range e.Tags {
		if len(tag) >= 1 && tag[0] == name {
			return true
		}
	}
	return false
}
