package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"github.com/quirze62/nodus/internal/types"
)

// Typed stores layered over a Backend. Values are JSON; negative results
// (profile not found) are cached too, with a shorter TTL.

// CachedProfile wraps a profile with fetch metadata
type CachedProfile struct {
	Profile   *types.ProfileInfo `json:"profile"`
	FetchedAt int64              `json:"fetched_at"`
	NotFound  bool               `json:"not_found"`
}

// ProfileStore provides typed access to the profile cache
type ProfileStore struct {
	backend Backend
	config  Config
}

func NewProfileStore(backend Backend, config Config) *ProfileStore {
	return &ProfileStore{backend: backend, config: config}
}

// Get retrieves a profile from cache if it exists and isn't expired.
// Returns (profile, notFound, inCache): inCache true with notFound true
// means we know the profile does not exist.
func (c *ProfileStore) Get(pubkey string) (*types.ProfileInfo, bool, bool) {
	ctx := context.Background()
	data, found, err := c.backend.Get(ctx, "profile:"+pubkey)
	if err != nil || !found {
		return nil, false, false
	}

	var cached CachedProfile
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, false, false
	}

	return cached.Profile, cached.NotFound, true
}

// GetMultiple returns cached profiles and the list of pubkeys not in cache.
func (c *ProfileStore) GetMultiple(pubkeys []string) (map[string]*types.ProfileInfo, []string) {
	ctx := context.Background()

	keys := make([]string, len(pubkeys))
	for i, pk := range pubkeys {
		keys[i] = "profile:" + pk
	}

	found, err := c.backend.GetMultiple(ctx, keys)
	if err != nil {
		return nil, pubkeys
	}

	cached := make(map[string]*types.ProfileInfo)
	var missing []string
	for _, pk := range pubkeys {
		data, ok := found["profile:"+pk]
		if !ok {
			missing = append(missing, pk)
			continue
		}
		var cp CachedProfile
		if err := json.Unmarshal(data, &cp); err != nil {
			missing = append(missing, pk)
			continue
		}
		if cp.NotFound {
			continue // known-missing, don't refetch
		}
		cached[pk] = cp.Profile
	}

	return cached, missing
}

// SetMultiple stores multiple profiles at once (nil profiles are stored as "not found")
func (c *ProfileStore) SetMultiple(profiles map[string]*types.ProfileInfo) {
	ctx := context.Background()
	now := time.Now().Unix()

	positive := make(map[string][]byte)
	negative := make(map[string][]byte)

	for pubkey, profile := range profiles {
		cached := CachedProfile{
			Profile:   profile,
			FetchedAt: now,
			NotFound:  profile == nil,
		}
		data, err := json.Marshal(cached)
		if err != nil {
			continue
		}
		if cached.NotFound {
			negative["profile:"+pubkey] = data
		} else {
			positive["profile:"+pubkey] = data
		}
	}

	c.backend.SetMultiple(ctx, positive, c.config.ProfileTTL)
	c.backend.SetMultiple(ctx, negative, c.config.ProfileNotFoundTTL)
}

// Delete removes a profile from the cache
func (c *ProfileStore) Delete(pubkey string) {
	c.backend.Delete(context.Background(), "profile:"+pubkey)
}

// ContactStore caches kind 3 contact lists per pubkey
type ContactStore struct {
	backend Backend
	config  Config
}

func NewContactStore(backend Backend, config Config) *ContactStore {
	return &ContactStore{backend: backend, config: config}
}

func (c *ContactStore) Get(pubkey string) ([]string, bool) {
	data, found, err := c.backend.Get(context.Background(), "contacts:"+pubkey)
	if err != nil || !found {
		return nil, false
	}
	var contacts []string
	if err := json.Unmarshal(data, &contacts); err != nil {
		return nil, false
	}
	return contacts, true
}

func (c *ContactStore) Set(pubkey string, contacts []string) {
	data, err := json.Marshal(contacts)
	if err != nil {
		return
	}
	c.backend.Set(context.Background(), "contacts:"+pubkey, data, c.config.ContactsTTL)
}

func (c *ContactStore) Delete(pubkey string) {
	c.backend.Delete(context.Background(), "contacts:"+pubkey)
}

// RelayListStore caches kind 10002 relay lists per pubkey, with negative entries.
type RelayListStore struct {
	backend Backend
	config  Config
}

type cachedRelayList struct {
	RelayList *types.RelayList `json:"relay_list"`
	NotFound  bool             `json:"not_found"`
}

func NewRelayListStore(backend Backend, config Config) *RelayListStore {
	return &RelayListStore{backend: backend, config: config}
}

func (c *RelayListStore) Get(pubkey string) (*types.RelayList, bool, bool) {
	data, found, err := c.backend.Get(context.Background(), "relaylist:"+pubkey)
	if err != nil || !found {
		return nil, false, false
	}
	var cached cachedRelayList
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, false, false
	}
	return cached.RelayList, cached.NotFound, true
}

func (c *RelayListStore) Set(pubkey string, list *types.RelayList) {
	data, err := json.Marshal(cachedRelayList{RelayList: list, NotFound: list == nil})
	if err != nil {
		return
	}
	c.backend.Set(context.Background(), "relaylist:"+pubkey, data, c.config.RelayListTTL)
}

// EventQueryStore caches fan-out query results keyed by a canonical hash
// of the relay set and filter.
type EventQueryStore struct {
	backend Backend
	config  Config
}

type cachedQuery struct {
	Events []types.Event `json:"events"`
	EOSE   bool          `json:"eose"`
}

func NewEventQueryStore(backend Backend, config Config) *EventQueryStore {
	return &EventQueryStore{backend: backend, config: config}
}

func (c *EventQueryStore) Get(relays []string, filter types.Filter) ([]types.Event, bool, bool) {
	data, found, err := c.backend.Get(context.Background(), queryKey(relays, filter))
	if err != nil || !found {
		return nil, false, false
	}
	var cached cachedQuery
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, false, false
	}
	return cached.Events, cached.EOSE, true
}

func (c *EventQueryStore) Set(relays []string, filter types.Filter, events []types.Event, eose bool) {
	data, err := json.Marshal(cachedQuery{Events: events, EOSE: eose})
	if err != nil {
		return
	}
	c.backend.Set(context.Background(), queryKey(relays, filter), data, c.config.EventQueryTTL)
}

// queryKey builds a stable key: identical relay sets and filters hash
// identically regardless of slice order.
func queryKey(relays []string, filter types.Filter) string {
	canonical := struct {
		Relays  []string `json:"relays"`
		IDs     []string `json:"ids,omitempty"`
		Authors []string `json:"authors,omitempty"`
		Kinds   []int    `json:"kinds,omitempty"`
		Limit   int      `json:"limit,omitempty"`
		Since   *int64   `json:"since,omitempty"`
		Until   *int64   `json:"until,omitempty"`
		ETags   []string `json:"e,omitempty"`
		PTags   []string `json:"p,omitempty"`
	}{
		Relays:  sortedCopy(relays),
		IDs:     sortedCopy(filter.IDs),
		Authors: sortedCopy(filter.Authors),
		Kinds:   sortedInts(filter.Kinds),
		Limit:   filter.Limit,
		Since:   filter.Since,
		Until:   filter.Until,
		ETags:   sortedCopy(filter.ETags),
		PTags:   sortedCopy(filter.PTags),
	}

	data, _ := json.Marshal(canonical)
	hash := sha256.Sum256(data)
	return "query:" + hex.EncodeToString(hash[:])
}

func sortedCopy(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	sort.Strings(out)
	return out
}

func sortedInts(values []int) []int {
	if len(values) == 0 {
		return nil
	}
	out := make([]int, len(values))
	copy(out, values)
	sort.Ints(out)
	return out
}
