package relay

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quirze62/nodus/internal/nostr"
	"github.com/quirze62/nodus/internal/types"
)

const (
	aggregatorBufferSize   = 2000
	aggregatorRetryDelay   = 5 * time.Second
	aggregatorSubPrefix    = "agg-"
	aggregatorDefaultLimit = 500
)

// Aggregator maintains long-lived firehose subscriptions against a set
// of relays and keeps a bounded, sorted, deduplicated buffer of recent
// events. Timeline reads are served from the buffer when possible
// instead of a fresh fan-out.
type Aggregator struct {
	pool   *Pool
	relays []string
	kinds  []int

	mu         sync.RWMutex
	events     []types.Event
	eventIndex map[string]bool

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	startMu sync.Mutex
}

// NewAggregator creates an aggregator over the given relays. It does not
// connect until Start is called. Kinds limits what the firehose asks for.
func NewAggregator(pool *Pool, relays []string, kinds []int) *Aggregator {
	return &Aggregator{
		pool:       pool,
		relays:     relays,
		kinds:      kinds,
		events:     make([]types.Event, 0, aggregatorBufferSize),
		eventIndex: make(map[string]bool),
	}
}

// Start launches one subscription loop per relay.
func (a *Aggregator) Start() {
	a.startMu.Lock()
	defer a.startMu.Unlock()
	if a.started {
		return
	}
	a.started = true

	a.ctx, a.cancel = context.WithCancel(context.Background())
	for _, relay := range a.relays {
		a.wg.Add(1)
		go a.subscriptionLoop(relay)
	}
	slog.Info("aggregator: started", "relays", len(a.relays))
}

// Stop tears down all subscriptions and waits for the loops to exit.
func (a *Aggregator) Stop() {
	a.startMu.Lock()
	defer a.startMu.Unlock()
	if !a.started {
		return
	}
	a.started = false

	a.cancel()
	a.wg.Wait()
	slog.Info("aggregator: stopped")
}

// subscriptionLoop keeps one relay subscribed, reconnecting on failure.
func (a *Aggregator) subscriptionLoop(relayURL string) {
	defer a.wg.Done()

	for {
		select {
		case <-a.ctx.Done():
			return
		default:
		}

		err := a.subscribeToRelay(relayURL)
		if err != nil {
			slog.Debug("aggregator: subscription ended", "relay", relayURL, "error", err)
		}

		select {
		case <-a.ctx.Done():
			return
		case <-time.After(aggregatorRetryDelay):
		}
	}
}

// subscribeToRelay opens a firehose subscription and consumes it until
// the connection dies or the aggregator stops.
func (a *Aggregator) subscribeToRelay(relayURL string) error {
	subID := aggregatorSubPrefix + uuid.NewString()[:8]

	sub, err := a.pool.Subscribe(a.ctx, relayURL, subID, types.Filter{
		Kinds: a.kinds,
		Limit: aggregatorDefaultLimit,
	})
	if err != nil {
		return err
	}
	defer a.pool.Unsubscribe(relayURL, sub)

	for {
		select {
		case <-a.ctx.Done():
			return nil
		case <-sub.Done:
			return nil
		case evt := <-sub.EventChan:
			a.addEvent(evt)
		case <-sub.EOSEChan:
			// Stored events delivered, keep streaming live ones
		}
	}
}

// addEvent inserts an event into the sorted buffer, evicting the oldest
// when full. Duplicates across relays are merged by ID.
func (a *Aggregator) addEvent(evt types.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.eventIndex[evt.ID] {
		return
	}

	// Full buffer: drop events older than our oldest
	if len(a.events) >= aggregatorBufferSize {
		oldest := a.events[len(a.events)-1]
		if evt.CreatedAt < oldest.CreatedAt {
			return
		}
	}

	// Insert keeping created_at desc, ID desc order
	idx := sort.Search(len(a.events), func(i int) bool {
		if a.events[i].CreatedAt != evt.CreatedAt {
			return a.events[i].CreatedAt < evt.CreatedAt
		}
		return a.events[i].ID < evt.ID
	})

	a.events = append(a.events, types.Event{})
	copy(a.events[idx+1:], a.events[idx:])
	a.events[idx] = evt
	a.eventIndex[evt.ID] = true

	if len(a.events) > aggregatorBufferSize {
		evicted := a.events[len(a.events)-1]
		delete(a.eventIndex, evicted.ID)
		a.events = a.events[:len(a.events)-1]
	}
}

// GetEvents returns buffered events matching the filter, newest first.
// The bool result reports whether the buffer could satisfy the request;
// callers fall back to a relay fan-out when it could not.
func (a *Aggregator) GetEvents(filter types.Filter, skipReplies bool) ([]types.Event, bool) {
	if !a.canServe(filter) {
		return nil, false
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	authorSet := make(map[string]bool, len(filter.Authors))
	for _, author := range filter.Authors {
		authorSet[author] = true
	}
	kindSet := make(map[int]bool, len(filter.Kinds))
	for _, kind := range filter.Kinds {
		kindSet[kind] = true
	}

	var matched []types.Event
	for _, evt := range a.events {
		if len(kindSet) > 0 && !kindSet[evt.Kind] {
			continue
		}
		if len(authorSet) > 0 && !authorSet[evt.PubKey] {
			continue
		}
		if filter.Since != nil && evt.CreatedAt < *filter.Since {
			continue
		}
		if filter.Until != nil && evt.CreatedAt > *filter.Until {
			continue
		}
		if skipReplies && nostr.IsReply(evt) {
			continue
		}

		matched = append(matched, evt)
		if filter.Limit > 0 && len(matched) >= filter.Limit {
			break
		}
	}

	// A partial page means the buffer does not reach far enough back
	if filter.Limit > 0 && len(matched) < filter.Limit {
		return nil, false
	}

	return matched, true
}

// canServe reports whether the buffer can answer this filter shape at
// all. ID and tag queries always go to the relays.
func (a *Aggregator) canServe(filter types.Filter) bool {
	if len(filter.IDs) > 0 || len(filter.ETags) > 0 || len(filter.PTags) > 0 {
		return false
	}
	for _, kind := range filter.Kinds {
		found := false
		for _, k := range a.kinds {
			if k == kind {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// BufferedCount returns the number of events currently buffered.
func (a *Aggregator) BufferedCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.events)
}
