package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quirze62/nodus/internal/cache"
	"github.com/quirze62/nodus/internal/nostr"
	"github.com/quirze62/nodus/internal/types"
)

// Default deadlines for one-shot queries. Profiles and reactions can be
// slow to answer on busy relays, so they get more room.
const (
	DefaultFetchTimeout   = 1500 * time.Millisecond
	ProfileFetchTimeout   = 2500 * time.Millisecond
	ReactionsFetchTimeout = 3 * time.Second
	RepliesFetchTimeout   = 5 * time.Second
)

// Fetcher performs one-shot fan-out queries over the pool: a filter is
// sent to every relay concurrently and results are merged, deduplicated,
// sorted and truncated.
type Fetcher struct {
	pool    *Pool
	queries *cache.EventQueryStore // optional
}

// NewFetcher creates a fetcher. The query store may be nil to disable
// result caching.
func NewFetcher(pool *Pool, queries *cache.EventQueryStore) *Fetcher {
	return &Fetcher{pool: pool, queries: queries}
}

// FetchEvents queries all relays with the default timeout.
// The bool result reports whether every relay reached EOSE.
func (f *Fetcher) FetchEvents(ctx context.Context, relays []string, filter types.Filter) ([]types.Event, bool) {
	return f.FetchEventsWithTimeout(ctx, relays, filter, DefaultFetchTimeout)
}

// FetchEventsCached checks the query cache first, then fetches from relays.
func (f *Fetcher) FetchEventsCached(ctx context.Context, relays []string, filter types.Filter) ([]types.Event, bool) {
	if f.queries != nil {
		if events, eose, ok := f.queries.Get(relays, filter); ok {
			cache.RecordHit()
			slog.Debug("query cache hit", "limit", filter.Limit, "authors", len(filter.Authors))
			return events, eose
		}
		cache.RecordMiss()
	}

	events, eose := f.FetchEvents(ctx, relays, filter)

	if f.queries != nil {
		f.queries.Set(relays, filter, events, eose)
	}

	return events, eose
}

// FetchEventsWithTimeout runs the fan-out with an explicit deadline.
func (f *Fetcher) FetchEventsWithTimeout(parent context.Context, relays []string, filter types.Filter, timeout time.Duration) ([]types.Event, bool) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	var wg sync.WaitGroup
	eventChan := make(chan types.Event, 1000)
	eoseChan := make(chan bool, len(relays))

	for _, relay := range relays {
		wg.Add(1)
		go func(relayURL string) {
			defer wg.Done()
			f.fetchFromRelay(ctx, relayURL, filter, eventChan, eoseChan)
		}(relay)
	}

	go func() {
		wg.Wait()
		close(eventChan)
		close(eoseChan)
	}()

	// Collect 2x limit distinct events to leave room for post-sort
	// truncation, then stop early.
	seenIDs := make(map[string]bool)
	events := []types.Event{}
	targetCount := filter.Limit * 2

collectLoop:
	for {
		select {
		case evt, ok := <-eventChan:
			if !ok {
				break collectLoop
			}
			if !seenIDs[evt.ID] {
				seenIDs[evt.ID] = true
				events = append(events, evt)
				if targetCount > 0 && len(events) >= targetCount {
					slog.Debug("got enough events, returning early", "count", len(events))
					cancel()
					break collectLoop
				}
			}
		case <-ctx.Done():
			slog.Debug("fetch deadline reached", "count", len(events))
			break collectLoop
		}
	}

	// Non-blocking drain of EOSE signals
	eoseCount := 0
drainLoop:
	for {
		select {
		case _, ok := <-eoseChan:
			if !ok {
				break drainLoop
			}
			eoseCount++
		default:
			break drainLoop
		}
	}

	SortEvents(events)

	if filter.Limit > 0 && len(events) > filter.Limit {
		events = events[:filter.Limit]
	}

	return events, eoseCount == len(relays)
}

// fetchFromRelay runs one ephemeral subscription until EOSE or deadline.
func (f *Fetcher) fetchFromRelay(ctx context.Context, relayURL string, filter types.Filter, eventChan chan<- types.Event, eoseChan chan<- bool) {
	subID := "sub-" + uuid.NewString()[:8]

	start := time.Now()
	sub, err := f.pool.Subscribe(ctx, relayURL, subID, filter)
	if err != nil {
		slog.Debug("failed to subscribe", "relay", relayURL, "error", err)
		return
	}
	defer f.pool.Unsubscribe(relayURL, sub)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done:
			return
		case evt := <-sub.EventChan:
			select {
			case eventChan <- evt:
			case <-ctx.Done():
				return
			}
		case <-sub.EOSEChan:
			if f.pool.health != nil {
				f.pool.health.Record(relayURL, time.Since(start), true)
			}
			eoseChan <- true
			return
		}
	}
}

// SortEvents orders by created_at desc, event ID desc tie-break.
func SortEvents(events []types.Event) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].CreatedAt != events[j].CreatedAt {
			return events[i].CreatedAt > events[j].CreatedAt
		}
		return events[i].ID > events[j].ID
	})
}

// FetchEventByID fetches a specific event by its ID, or nil if no relay has it.
func (f *Fetcher) FetchEventByID(ctx context.Context, relays []string, eventID string) *types.Event {
	events, _ := f.FetchEventsWithTimeout(ctx, relays, types.Filter{
		IDs:   []string{eventID},
		Limit: 1,
	}, 2*time.Second)

	for i := range events {
		if events[i].ID == eventID {
			return &events[i]
		}
	}
	return nil
}

// FetchProfiles fetches kind 0 metadata for the given pubkeys.
// Only the newest event per pubkey wins. Pubkeys with no profile are
// present in the result with a nil value so callers can cache the miss.
func (f *Fetcher) FetchProfiles(ctx context.Context, relays []string, pubkeys []string) map[string]*types.ProfileInfo {
	if len(pubkeys) == 0 {
		return nil
	}

	events, _ := f.FetchEventsWithTimeout(ctx, relays, types.Filter{
		Authors: pubkeys,
		Kinds:   []int{nostr.KindMetadata},
		Limit:   len(pubkeys),
	}, ProfileFetchTimeout)

	profiles := make(map[string]*types.ProfileInfo, len(pubkeys))
	for _, pk := range pubkeys {
		profiles[pk] = nil
	}

	for _, evt := range events {
		if evt.Kind != nostr.KindMetadata {
			continue
		}
		// Results are newest-first, so the first hit per pubkey wins
		if profiles[evt.PubKey] != nil {
			continue
		}

		var profile types.ProfileInfo
		if err := json.Unmarshal([]byte(evt.Content), &profile); err != nil {
			continue
		}
		profiles[evt.PubKey] = &profile
	}

	return profiles
}

// FetchReactions fetches kind 7 events referencing the given event IDs
// and aggregates them into per-event summaries.
func (f *Fetcher) FetchReactions(ctx context.Context, relays []string, eventIDs []string) map[string]*types.ReactionsSummary {
	if len(eventIDs) == 0 {
		return nil
	}

	events, _ := f.FetchEventsWithTimeout(ctx, relays, types.Filter{
		Kinds: []int{nostr.KindReaction},
		ETags: eventIDs,
		Limit: 500,
	}, ReactionsFetchTimeout)

	targets := make(map[string]bool, len(eventIDs))
	for _, id := range eventIDs {
		targets[id] = true
	}

	reactions := make(map[string]*types.ReactionsSummary)
	for _, evt := range events {
		if evt.Kind != nostr.KindReaction {
			continue
		}

		// The reacted-to event is the last e tag
		targetEventID := evt.LastTagValue("e")
		if targetEventID == "" || !targets[targetEventID] {
			continue
		}

		summary, ok := reactions[targetEventID]
		if !ok {
			summary = &types.ReactionsSummary{ByType: make(map[string]int)}
			reactions[targetEventID] = summary
		}

		summary.Total++
		reactionType := evt.Content
		// "+" and empty both mean a plain like
		if reactionType == "" || reactionType == "+" {
			reactionType = "+"
		}
		summary.ByType[reactionType]++
	}

	return reactions
}

// FetchReplies fetches kind 1 replies to the given event IDs.
func (f *Fetcher) FetchReplies(ctx context.Context, relays []string, eventIDs []string) []types.Event {
	if len(eventIDs) == 0 {
		return nil
	}

	events, _ := f.FetchEventsWithTimeout(ctx, relays, types.Filter{
		Kinds: []int{nostr.KindNote},
		ETags: eventIDs,
		Limit: 100,
	}, RepliesFetchTimeout)

	return events
}

// FetchReplyCounts returns the number of direct replies per event ID.
func (f *Fetcher) FetchReplyCounts(ctx context.Context, relays []string, eventIDs []string) map[string]int {
	replies := f.FetchReplies(ctx, relays, eventIDs)

	replyCounts := make(map[string]int)
	for _, evt := range replies {
		if targetEventID := evt.LastTagValue("e"); targetEventID != "" {
			replyCounts[targetEventID]++
		}
	}
	return replyCounts
}

// FetchContactList fetches a user's kind 3 contact list (who they follow).
func (f *Fetcher) FetchContactList(ctx context.Context, relays []string, pubkey string) []string {
	events, _ := f.FetchEventsWithTimeout(ctx, relays, types.Filter{
		Authors: []string{pubkey},
		Kinds:   []int{nostr.KindContacts},
		Limit:   1,
	}, 3*time.Second)

	if len(events) == 0 {
		slog.Debug("no contact list found", "pubkey", nostr.ShortID(pubkey))
		return nil
	}

	return events[0].TagValues("p")
}

// FetchRelayList fetches a user's kind 10002 relay list metadata.
func (f *Fetcher) FetchRelayList(ctx context.Context, relays []string, pubkey string) *types.RelayList {
	events, _ := f.FetchEventsWithTimeout(ctx, relays, types.Filter{
		Authors: []string{pubkey},
		Kinds:   []int{nostr.KindRelayList},
		Limit:   1,
	}, 2*time.Second)

	if len(events) == 0 {
		slog.Debug("no relay list found", "pubkey", nostr.ShortID(pubkey))
		return nil
	}

	relayList := &types.RelayList{
		Read:  []string{},
		Write: []string{},
	}

	for _, tag := range events[0].Tags {
		if len(tag) < 2 || tag[0] != "r" {
			continue
		}

		relayURL := tag[1]
		marker := ""
		if len(tag) >= 3 {
			marker = tag[2]
		}

		switch marker {
		case "read":
			relayList.Read = append(relayList.Read, relayURL)
		case "write":
			relayList.Write = append(relayList.Write, relayURL)
		default:
			// No marker means both
			relayList.Read = append(relayList.Read, relayURL)
			relayList.Write = append(relayList.Write, relayURL)
		}
	}

	return relayList
}

// FetchDirectMessages fetches kind 4 events in both directions between
// two pubkeys, merged and deduplicated, oldest first.
func (f *Fetcher) FetchDirectMessages(ctx context.Context, relays []string, me, peer string) []types.Event {
	outgoing, _ := f.FetchEventsWithTimeout(ctx, relays, types.Filter{
		Authors: []string{me},
		Kinds:   []int{nostr.KindDirectMessage},
		PTags:   []string{peer},
		Limit:   100,
	}, ReactionsFetchTimeout)

	incoming, _ := f.FetchEventsWithTimeout(ctx, relays, types.Filter{
		Authors: []string{peer},
		Kinds:   []int{nostr.KindDirectMessage},
		PTags:   []string{me},
		Limit:   100,
	}, ReactionsFetchTimeout)

	seen := make(map[string]bool)
	var merged []types.Event
	for _, evt := range append(outgoing, incoming...) {
		if !seen[evt.ID] {
			seen[evt.ID] = true
			merged = append(merged, evt)
		}
	}

	// Conversations read oldest first
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].CreatedAt != merged[j].CreatedAt {
			return merged[i].CreatedAt < merged[j].CreatedAt
		}
		return merged[i].ID < merged[j].ID
	})

	return merged
}
