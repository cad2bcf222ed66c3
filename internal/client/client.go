// Package client ties the relay pool, caches and event builders into
// the high-level social operations: posting, reacting, reposting,
// replying, direct messages, profile and contact management.
package client

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/quirze62/nodus/internal/batch"
	"github.com/quirze62/nodus/internal/cache"
	"github.com/quirze62/nodus/internal/nips"
	"github.com/quirze62/nodus/internal/nostr"
	"github.com/quirze62/nodus/internal/relay"
	"github.com/quirze62/nodus/internal/types"
)

var (
	// ErrNoWriteRelays is returned when publishing with an empty write set.
	ErrNoWriteRelays = errors.New("no write relays configured")
	// ErrNotFound is returned when an event cannot be found on any relay.
	ErrNotFound = errors.New("event not found on any relay")
)

const publishTimeout = 10 * time.Second

// timelineKinds is what the firehose aggregator subscribes to.
var timelineKinds = []int{nostr.KindNote, nostr.KindRepost}

// Options configures a Client.
type Options struct {
	ReadRelays    []string
	WriteRelays   []string
	IndexerRelays []string

	// Backend defaults to an in-process memory cache when nil.
	Backend     cache.Backend
	CacheConfig cache.Config

	// UseNip44ForDMs switches direct messages from the AES-CBC scheme
	// to the ChaCha20 payload format. Off by default for interop.
	UseNip44ForDMs bool
}

// Note is a timeline entry hydrated with author and engagement data.
type Note struct {
	Event      types.Event             `json:"event"`
	Author     *types.ProfileInfo      `json:"author,omitempty"`
	Reactions  *types.ReactionsSummary `json:"reactions,omitempty"`
	ReplyCount int                     `json:"reply_count"`
}

// Thread is a root note plus its replies, oldest reply first.
type Thread struct {
	Root    Note   `json:"root"`
	Replies []Note `json:"replies"`
}

// PublishResult reports the per-relay outcome of one publish.
type PublishResult struct {
	EventID  string            `json:"event_id"`
	Accepted int               `json:"accepted"`
	Relays   map[string]string `json:"relays"`
}

// Client is a signed-in Nostr client bound to one keypair.
type Client struct {
	privKey []byte
	pubKey  string

	pool    *relay.Pool
	fetcher *relay.Fetcher
	agg     *relay.Aggregator
	health  *relay.HealthStore

	profiles   *cache.ProfileStore
	contacts   *cache.ContactStore
	relayLists *cache.RelayListStore

	// ownedBackend is set when the client created its own cache backend
	// and must close it; caller-supplied backends stay the caller's.
	ownedBackend cache.Backend

	profileBatcher *batch.Batcher[*types.ProfileInfo]
	contactsGroup  singleflight.Group
	relayListGroup singleflight.Group
	reactionsGroup singleflight.Group
	repliesGroup   singleflight.Group

	useNip44 bool

	mu          sync.RWMutex
	readRelays  []string
	writeRelays []string
	indexRelays []string
}

// New creates a client for the given private key (hex or bech32).
func New(privateKey string, opts Options) (*Client, error) {
	privBytes, err := nostr.ParsePrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	pubBytes, err := nostr.GetPublicKey(privBytes)
	if err != nil {
		return nil, fmt.Errorf("derive public key: %w", err)
	}

	backend := opts.Backend
	var ownedBackend cache.Backend
	if backend == nil {
		backend = cache.NewMemoryCache(10000, time.Minute)
		ownedBackend = backend
	}
	cacheCfg := opts.CacheConfig
	if cacheCfg == (cache.Config{}) {
		cacheCfg = cache.DefaultConfig()
	}

	health := relay.NewHealthStore()
	pool := relay.NewPool(health)
	fetcher := relay.NewFetcher(pool, cache.NewEventQueryStore(backend, cacheCfg))

	c := &Client{
		privKey:      privBytes,
		pubKey:       hex.EncodeToString(pubBytes),
		pool:         pool,
		fetcher:      fetcher,
		health:       health,
		profiles:     cache.NewProfileStore(backend, cacheCfg),
		contacts:     cache.NewContactStore(backend, cacheCfg),
		relayLists:   cache.NewRelayListStore(backend, cacheCfg),
		ownedBackend: ownedBackend,
		useNip44:     opts.UseNip44ForDMs,
		readRelays:   append([]string{}, opts.ReadRelays...),
		writeRelays:  append([]string{}, opts.WriteRelays...),
		indexRelays:  append([]string{}, opts.IndexerRelays...),
	}

	c.agg = relay.NewAggregator(pool, c.readRelays, timelineKinds)

	c.profileBatcher = batch.NewBatcher("profiles",
		func(keys []string) map[string]*types.ProfileInfo {
			ctx, cancel := context.WithTimeout(context.Background(), relay.ProfileFetchTimeout+time.Second)
			defer cancel()
			return c.fetcher.FetchProfiles(ctx, c.ReadRelays(), keys)
		},
		50*time.Millisecond, 100)

	return c, nil
}

// PublicKey returns the client's hex public key.
func (c *Client) PublicKey() string { return c.pubKey }

// Npub returns the client's bech32-encoded public key.
func (c *Client) Npub() string {
	npub, _ := nips.EncodePubkey(c.pubKey)
	return npub
}

// Start begins the background timeline aggregation.
func (c *Client) Start() { c.agg.Start() }

// Close stops the aggregator, tears down all relay connections, and
// closes the cache backend if the client created it.
func (c *Client) Close() {
	c.agg.Stop()
	c.pool.Close()
	if c.ownedBackend != nil {
		c.ownedBackend.Close()
	}
}

// ReadRelays returns a copy of the current read relay set.
func (c *Client) ReadRelays() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string{}, c.readRelays...)
}

// WriteRelays returns a copy of the current write relay set.
func (c *Client) WriteRelays() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string{}, c.writeRelays...)
}

// IndexerRelays returns a copy of the relay-list indexer set.
func (c *Client) IndexerRelays() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string{}, c.indexRelays...)
}

// publish signs the event and sends it to every write relay. It succeeds
// when at least one relay accepts.
func (c *Client) publish(ctx context.Context, evt *types.Event) (*PublishResult, error) {
	writeRelays := c.WriteRelays()
	if len(writeRelays) == 0 {
		return nil, ErrNoWriteRelays
	}

	if err := nostr.Finalize(evt, c.privKey); err != nil {
		return nil, fmt.Errorf("sign event: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	var wg sync.WaitGroup
	var mu sync.Mutex
	result := &PublishResult{
		EventID: evt.ID,
		Relays:  make(map[string]string, len(writeRelays)),
	}

	for _, relayURL := range writeRelays {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()

			start := time.Now()
			resp, err := c.pool.Publish(pubCtx, url, evt)
			c.health.Record(url, time.Since(start), err == nil && resp.Success)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				result.Relays[url] = "error: " + err.Error()
			case resp.Success:
				result.Accepted++
				result.Relays[url] = "ok"
			default:
				result.Relays[url] = "rejected: " + resp.Message
			}
		}(relayURL)
	}
	wg.Wait()

	if result.Accepted == 0 {
		return result, fmt.Errorf("no relay accepted event %s", nostr.ShortID(evt.ID))
	}

	slog.Info("published event",
		"id", nostr.ShortID(evt.ID),
		"kind", evt.Kind,
		"accepted", result.Accepted,
		"relays", len(writeRelays))
	return result, nil
}

// PostNote publishes a kind 1 text note.
func (c *Client) PostNote(ctx context.Context, content string) (*PublishResult, error) {
	if strings.TrimSpace(content) == "" {
		return nil, errors.New("note content is empty")
	}
	evt := BuildNote(content)
	return c.publish(ctx, &evt)
}

// Reply publishes a threaded reply to the given event.
func (c *Client) Reply(ctx context.Context, parentID, content string) (*PublishResult, error) {
	if strings.TrimSpace(content) == "" {
		return nil, errors.New("reply content is empty")
	}
	parent := c.fetcher.FetchEventByID(ctx, c.ReadRelays(), parentID)
	if parent == nil {
		return nil, ErrNotFound
	}
	evt := BuildReply(parent, content)
	return c.publish(ctx, &evt)
}

// React publishes a kind 7 reaction. Empty content means a plain like.
func (c *Client) React(ctx context.Context, targetID, content string) (*PublishResult, error) {
	target := c.fetcher.FetchEventByID(ctx, c.ReadRelays(), targetID)
	if target == nil {
		return nil, ErrNotFound
	}
	evt := BuildReaction(target, content)
	return c.publish(ctx, &evt)
}

// Repost publishes a kind 6 repost of the given event.
func (c *Client) Repost(ctx context.Context, targetID string) (*PublishResult, error) {
	target := c.fetcher.FetchEventByID(ctx, c.ReadRelays(), targetID)
	if target == nil {
		return nil, ErrNotFound
	}
	evt := BuildRepost(target)
	return c.publish(ctx, &evt)
}

// Quote publishes a kind 1 note quoting the given event.
func (c *Client) Quote(ctx context.Context, targetID, content string) (*PublishResult, error) {
	target := c.fetcher.FetchEventByID(ctx, c.ReadRelays(), targetID)
	if target == nil {
		return nil, ErrNotFound
	}
	evt := BuildQuote(target, content)
	return c.publish(ctx, &evt)
}

// Delete publishes a kind 5 deletion request for the client's own events.
func (c *Client) Delete(ctx context.Context, eventIDs []string, reason string) (*PublishResult, error) {
	if len(eventIDs) == 0 {
		return nil, errors.New("no event IDs to delete")
	}
	evt := BuildDeletion(eventIDs, reason)
	return c.publish(ctx, &evt)
}

// UpdateProfile merges the given fields over the existing profile and
// publishes the result as a fresh kind 0 event. Empty fields keep their
// current values.
func (c *Client) UpdateProfile(ctx context.Context, updates *types.ProfileInfo) (*PublishResult, error) {
	current := c.Profile(ctx, c.pubKey)
	merged := mergeProfile(current, updates)

	evt, err := BuildProfile(merged)
	if err != nil {
		return nil, fmt.Errorf("encode profile: %w", err)
	}

	result, pubErr := c.publish(ctx, &evt)
	if pubErr != nil {
		return result, pubErr
	}

	c.profiles.SetMultiple(map[string]*types.ProfileInfo{c.pubKey: merged})
	return result, nil
}

func mergeProfile(current, updates *types.ProfileInfo) *types.ProfileInfo {
	merged := types.ProfileInfo{}
	if current != nil {
		merged = *current
	}
	if updates.Name != "" {
		merged.Name = updates.Name
	}
	if updates.DisplayName != "" {
		merged.DisplayName = updates.DisplayName
	}
	if updates.About != "" {
		merged.About = updates.About
	}
	if updates.Picture != "" {
		merged.Picture = updates.Picture
	}
	if updates.Banner != "" {
		merged.Banner = updates.Banner
	}
	if updates.Nip05 != "" {
		merged.Nip05 = updates.Nip05
	}
	if updates.Lud16 != "" {
		merged.Lud16 = updates.Lud16
	}
	if updates.Website != "" {
		merged.Website = updates.Website
	}
	return &merged
}

// Profile returns the profile for a pubkey, nil when none exists.
func (c *Client) Profile(ctx context.Context, pubkey string) *types.ProfileInfo {
	profiles := c.ProfilesFor(ctx, []string{pubkey})
	return profiles[pubkey]
}

// ProfilesFor returns profiles for multiple pubkeys, using the cache and
// coalescing concurrent relay fetches. Missing profiles map to nil.
func (c *Client) ProfilesFor(ctx context.Context, pubkeys []string) map[string]*types.ProfileInfo {
	if len(pubkeys) == 0 {
		return nil
	}

	cached, missing := c.profiles.GetMultiple(pubkeys)
	if len(missing) == 0 {
		cache.RecordHit()
		return cached
	}
	cache.RecordMiss()

	fresh := c.profileBatcher.GetMultiple(missing)
	c.profiles.SetMultiple(fresh)

	result := make(map[string]*types.ProfileInfo, len(pubkeys))
	for pk, p := range cached {
		result[pk] = p
	}
	for pk, p := range fresh {
		result[pk] = p
	}
	return result
}

// Follow adds a pubkey to the contact list and republishes it.
func (c *Client) Follow(ctx context.Context, pubkey string) (*PublishResult, error) {
	pubHex, err := nostr.ParsePublicKey(pubkey)
	if err != nil {
		return nil, fmt.Errorf("parse pubkey: %w", err)
	}

	contactList := c.ContactList(ctx, c.pubKey)
	for _, pk := range contactList {
		if pk == pubHex {
			return nil, errors.New("already following")
		}
	}
	contactList = append(contactList, pubHex)

	return c.publishContacts(ctx, contactList)
}

// Unfollow removes a pubkey from the contact list and republishes it.
func (c *Client) Unfollow(ctx context.Context, pubkey string) (*PublishResult, error) {
	pubHex, err := nostr.ParsePublicKey(pubkey)
	if err != nil {
		return nil, fmt.Errorf("parse pubkey: %w", err)
	}

	contactList := c.ContactList(ctx, c.pubKey)
	kept := contactList[:0]
	for _, pk := range contactList {
		if pk != pubHex {
			kept = append(kept, pk)
		}
	}
	if len(kept) == len(contactList) {
		return nil, errors.New("not following")
	}

	return c.publishContacts(ctx, kept)
}

func (c *Client) publishContacts(ctx context.Context, contactList []string) (*PublishResult, error) {
	evt := BuildContactList(contactList)
	result, err := c.publish(ctx, &evt)
	if err != nil {
		return result, err
	}
	c.contacts.Set(c.pubKey, contactList)
	return result, nil
}

// ContactList returns who a pubkey follows, cached with singleflight.
func (c *Client) ContactList(ctx context.Context, pubkey string) []string {
	if contactList, ok := c.contacts.Get(pubkey); ok {
		cache.RecordHit()
		return contactList
	}
	cache.RecordMiss()

	result, _, _ := c.contactsGroup.Do(pubkey, func() (interface{}, error) {
		contactList := c.fetcher.FetchContactList(ctx, c.ReadRelays(), pubkey)
		if contactList == nil {
			contactList = []string{}
		}
		c.contacts.Set(pubkey, contactList)
		return contactList, nil
	})
	return result.([]string)
}

// RelayListFor returns a pubkey's published relay list, consulting the
// indexer relays. Nil when none was found.
func (c *Client) RelayListFor(ctx context.Context, pubkey string) *types.RelayList {
	if relayList, notFound, ok := c.relayLists.Get(pubkey); ok {
		cache.RecordHit()
		if notFound {
			return nil
		}
		return relayList
	}
	cache.RecordMiss()

	result, _, _ := c.relayListGroup.Do(pubkey, func() (interface{}, error) {
		relays := c.IndexerRelays()
		if len(relays) == 0 {
			relays = c.ReadRelays()
		}
		relayList := c.fetcher.FetchRelayList(ctx, relays, pubkey)
		c.relayLists.Set(pubkey, relayList)
		return relayList, nil
	})

	if result == nil {
		return nil
	}
	return result.(*types.RelayList)
}

// AddRelay adds a relay to the read and/or write sets after safety
// validation. Adding an already present relay is a no-op.
func (c *Client) AddRelay(relayURL string, read, write bool) error {
	if !relay.IsRelayURLSafe(relayURL) {
		return relay.ErrRelayBlocked
	}
	if !read && !write {
		return errors.New("relay must be read, write or both")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if read && !containsString(c.readRelays, relayURL) {
		c.readRelays = append(c.readRelays, relayURL)
	}
	if write && !containsString(c.writeRelays, relayURL) {
		c.writeRelays = append(c.writeRelays, relayURL)
	}
	return nil
}

// RemoveRelay drops a relay from both sets and closes its connection.
func (c *Client) RemoveRelay(relayURL string) {
	c.mu.Lock()
	c.readRelays = removeString(c.readRelays, relayURL)
	c.writeRelays = removeString(c.writeRelays, relayURL)
	c.mu.Unlock()

	c.pool.CloseRelay(relayURL)
}

// PublishRelayList publishes the current relay configuration as a
// kind 10002 event so other clients can discover it.
func (c *Client) PublishRelayList(ctx context.Context) (*PublishResult, error) {
	relayList := &types.RelayList{
		Read:  c.ReadRelays(),
		Write: c.WriteRelays(),
	}
	evt := BuildRelayList(relayList)
	result, err := c.publish(ctx, &evt)
	if err != nil {
		return result, err
	}
	c.relayLists.Set(c.pubKey, relayList)
	return result, nil
}

// RelayStatuses reports per-relay connection and health state.
func (c *Client) RelayStatuses() []types.RelayStatus {
	connected := make(map[string]bool)
	for _, url := range c.pool.ConnectedRelays() {
		connected[url] = true
	}

	statuses := c.health.Details()
	for i := range statuses {
		statuses[i].Connected = connected[statuses[i].URL]
	}
	return statuses
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func removeString(haystack []string, needle string) []string {
	kept := haystack[:0]
	for _, s := range haystack {
		if s != needle {
			kept = append(kept, s)
		}
	}
	return kept
}
