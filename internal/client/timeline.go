package client

import (
	"context"
	"log/slog"

	"github.com/samber/lo"

	"github.com/quirze62/nodus/internal/batch"
	"github.com/quirze62/nodus/internal/nostr"
	"github.com/quirze62/nodus/internal/types"
)

// TimelineOptions selects what a timeline read returns.
type TimelineOptions struct {
	Limit       int
	Authors     []string // empty means everyone
	FollowsOnly bool     // restrict to the client's contact list
	SkipReplies bool
	Since       *int64
	Until       *int64
}

// Timeline returns recent notes and reposts, hydrated with author
// profiles, reaction summaries and reply counts. The warm aggregator
// buffer is tried first, falling back to a cached relay fan-out.
func (c *Client) Timeline(ctx context.Context, opts TimelineOptions) ([]Note, error) {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}

	authors := opts.Authors
	if opts.FollowsOnly {
		follows := c.ContactList(ctx, c.pubKey)
		if len(follows) == 0 {
			return []Note{}, nil
		}
		authors = follows
	}

	filter := types.Filter{
		Kinds:   timelineKinds,
		Authors: authors,
		Limit:   opts.Limit,
		Since:   opts.Since,
		Until:   opts.Until,
	}

	events, served := c.agg.GetEvents(filter, opts.SkipReplies)
	if served {
		slog.Debug("timeline served from aggregator", "count", len(events))
	} else {
		events, _ = c.fetcher.FetchEventsCached(ctx, c.ReadRelays(), filter)
		if opts.SkipReplies {
			events = lo.Filter(events, func(evt types.Event, _ int) bool {
				return !nostr.IsReply(evt)
			})
		}
	}

	return c.hydrate(ctx, events), nil
}

// ThreadFor returns an event and its direct replies, replies oldest first.
func (c *Client) ThreadFor(ctx context.Context, eventID string) (*Thread, error) {
	root := c.fetcher.FetchEventByID(ctx, c.ReadRelays(), eventID)
	if root == nil {
		return nil, ErrNotFound
	}

	replies := c.fetcher.FetchReplies(ctx, c.ReadRelays(), []string{eventID})
	// Keep only direct replies; deeper descendants also carry the root e tag
	direct := lo.Filter(replies, func(evt types.Event, _ int) bool {
		return evt.LastTagValue("e") == eventID
	})

	// Oldest first reads naturally in a thread
	for i, j := 0, len(direct)-1; i < j; i, j = i+1, j-1 {
		direct[i], direct[j] = direct[j], direct[i]
	}

	hydrated := c.hydrate(ctx, append([]types.Event{*root}, direct...))

	thread := &Thread{Root: hydrated[0]}
	if len(hydrated) > 1 {
		thread.Replies = hydrated[1:]
	} else {
		thread.Replies = []Note{}
	}
	return thread, nil
}

// hydrate attaches profiles, reactions and reply counts to raw events.
// The three lookups run concurrently.
func (c *Client) hydrate(ctx context.Context, events []types.Event) []Note {
	if len(events) == 0 {
		return []Note{}
	}

	pubkeys := lo.Uniq(lo.Map(events, func(evt types.Event, _ int) string {
		return evt.PubKey
	}))
	eventIDs := lo.Map(events, func(evt types.Event, _ int) string {
		return evt.ID
	})

	var profiles map[string]*types.ProfileInfo
	var reactions map[string]*types.ReactionsSummary
	var replyCounts map[string]int

	done := make(chan struct{}, 3)

	go func() {
		profiles = c.ProfilesFor(ctx, pubkeys)
		done <- struct{}{}
	}()
	go func() {
		reactions = c.reactionsFor(ctx, eventIDs)
		done <- struct{}{}
	}()
	go func() {
		replyCounts = c.replyCountsFor(ctx, eventIDs)
		done <- struct{}{}
	}()
	for i := 0; i < 3; i++ {
		<-done
	}

	notes := make([]Note, 0, len(events))
	for _, evt := range events {
		notes = append(notes, Note{
			Event:      evt,
			Author:     profiles[evt.PubKey],
			Reactions:  reactions[evt.ID],
			ReplyCount: replyCounts[evt.ID],
		})
	}
	return notes
}

// reactionsFor fetches reaction summaries with singleflight dedup.
func (c *Client) reactionsFor(ctx context.Context, eventIDs []string) map[string]*types.ReactionsSummary {
	if len(eventIDs) == 0 {
		return nil
	}

	relays := c.ReadRelays()
	key := batch.Key("reactions", relays, eventIDs)
	result, _, shared := c.reactionsGroup.Do(key, func() (interface{}, error) {
		return c.fetcher.FetchReactions(ctx, relays, eventIDs), nil
	})
	if shared {
		slog.Debug("shared reactions fetch", "count", len(eventIDs))
	}
	return result.(map[string]*types.ReactionsSummary)
}

// replyCountsFor fetches reply counts with singleflight dedup.
func (c *Client) replyCountsFor(ctx context.Context, eventIDs []string) map[string]int {
	if len(eventIDs) == 0 {
		return nil
	}

	relays := c.ReadRelays()
	key := batch.Key("replies", relays, eventIDs)
	result, _, shared := c.repliesGroup.Do(key, func() (interface{}, error) {
		return c.fetcher.FetchReplyCounts(ctx, relays, eventIDs), nil
	})
	if shared {
		slog.Debug("shared reply counts fetch", "count", len(eventIDs))
	}
	return result.(map[string]int)
}

// BufferedEventCount exposes the aggregator buffer size for metrics.
func (c *Client) BufferedEventCount() int { return c.agg.BufferedCount() }

// ActiveConnections exposes the pool connection count for metrics.
func (c *Client) ActiveConnections() int { return c.pool.ActiveConnections() }

// HealthStats exposes relay health counters for metrics.
func (c *Client) HealthStats() (healthy, unhealthy int, avgMs int64) {
	return c.health.Stats()
}

// DroppedEvents exposes the pool's slow-consumer drop counter for metrics.
func (c *Client) DroppedEvents() int64 { return c.pool.DroppedEvents() }
