// Package relay implements the client side of the Nostr relay wire
// protocol: a pool of persistent WebSocket connections with multiplexed
// subscriptions, one-shot fan-out queries, and a firehose aggregator
// feeding the warm timeline cache.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/quirze62/nodus/internal/nostr"
	"github.com/quirze62/nodus/internal/types"
)

var (
	// ErrRelayBlocked is returned for relay URLs that fail safety validation.
	ErrRelayBlocked = errors.New("relay URL blocked: unsafe destination")
	// ErrPublishTimeout is returned when a relay never acknowledges an event.
	ErrPublishTimeout = errors.New("timed out waiting for relay OK")
)

// Subscription represents an active subscription on a relay connection
type Subscription struct {
	ID        string
	RelayURL  string
	EventChan chan types.Event
	EOSEChan  chan bool
	Done      chan struct{}
	closeOnce sync.Once
}

// Close safely closes the Done channel exactly once
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		close(s.Done)
	})
}

// PublishResponse is a relay's OK reply to a published event
type PublishResponse struct {
	EventID string
	Success bool
	Message string
}

// Conn manages a single websocket connection with multiple subscriptions
type Conn struct {
	conn          *websocket.Conn
	relayURL      string
	mu            sync.Mutex
	writeMu       sync.Mutex
	subscriptions map[string]*Subscription
	okWaiters     map[string]chan PublishResponse
	closed        bool
	lastActivity  time.Time
	dropped       *atomic.Int64 // pool-wide drop counter
}

// Pool manages connections to multiple relays
type Pool struct {
	connections *xsync.MapOf[string, *Conn]
	dialMu      sync.Mutex
	health      *HealthStore
	stopCh      chan struct{}
	stopOnce    sync.Once
	dropped     atomic.Int64
}

// DroppedEvents returns the number of events this pool dropped due to
// slow consumers.
func (p *Pool) DroppedEvents() int64 {
	return p.dropped.Load()
}

// NewPool creates a new connection pool
func NewPool(health *HealthStore) *Pool {
	pool := &Pool{
		connections: xsync.NewMapOf[string, *Conn](),
		health:      health,
		stopCh:      make(chan struct{}),
	}
	go pool.cleanupLoop()
	return pool
}

// getOrCreateConn gets an existing connection or creates a new one
func (p *Pool) getOrCreateConn(ctx context.Context, relayURL string) (*Conn, error) {
	if !IsRelayURLSafe(relayURL) {
		return nil, ErrRelayBlocked
	}

	if rc, ok := p.connections.Load(relayURL); ok && !rc.isClosed() {
		return rc, nil
	}

	p.dialMu.Lock()
	defer p.dialMu.Unlock()

	// Double-check after acquiring the dial lock
	if rc, ok := p.connections.Load(relayURL); ok && !rc.isClosed() {
		return rc, nil
	}

	slog.Debug("pool: creating new connection", "relay", relayURL)
	start := time.Now()
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, relayURL, nil)
	if p.health != nil {
		p.health.Record(relayURL, time.Since(start), err == nil)
	}
	if err != nil {
		return nil, err
	}

	rc := &Conn{
		conn:          conn,
		relayURL:      relayURL,
		subscriptions: make(map[string]*Subscription),
		okWaiters:     make(map[string]chan PublishResponse),
		lastActivity:  time.Now(),
		dropped:       &p.dropped,
	}

	p.connections.Store(relayURL, rc)

	go rc.readLoop()

	return rc, nil
}

func (rc *Conn) isClosed() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.closed
}

// Subscribe creates a new subscription on the relay
func (p *Pool) Subscribe(ctx context.Context, relayURL string, subID string, filter types.Filter) (*Subscription, error) {
	const maxRetries = 3

	sub := &Subscription{
		ID:        subID,
		RelayURL:  relayURL,
		EventChan: make(chan types.Event, 100),
		EOSEChan:  make(chan bool, 1),
		Done:      make(chan struct{}),
	}

	var rc *Conn
	registered := false
	for attempt := 0; attempt < maxRetries; attempt++ {
		var err error
		rc, err = p.getOrCreateConn(ctx, relayURL)
		if err != nil {
			return nil, err
		}

		rc.mu.Lock()
		if rc.closed {
			rc.mu.Unlock()
			// Connection died between lookup and use, drop it and redial
			p.connections.Delete(relayURL)
			continue
		}
		rc.subscriptions[subID] = sub
		rc.mu.Unlock()
		registered = true
		break
	}

	if !registered {
		return nil, errors.New("failed to establish connection after retries")
	}

	req := []interface{}{"REQ", subID, BuildWireFilter(filter)}
	rc.writeMu.Lock()
	err := rc.conn.WriteJSON(req)
	rc.writeMu.Unlock()

	if err != nil {
		rc.mu.Lock()
		delete(rc.subscriptions, subID)
		rc.mu.Unlock()
		rc.markClosed()
		return nil, err
	}

	rc.touch()
	return sub, nil
}

// Unsubscribe closes a subscription
func (p *Pool) Unsubscribe(relayURL string, sub *Subscription) {
	if sub == nil {
		return
	}

	rc, ok := p.connections.Load(relayURL)
	if !ok {
		sub.Close()
		return
	}

	rc.mu.Lock()
	_, exists := rc.subscriptions[sub.ID]
	shouldSendClose := !rc.closed && exists
	if exists {
		delete(rc.subscriptions, sub.ID)
	}
	rc.mu.Unlock()

	// Send CLOSE outside of the mutex, best effort
	if shouldSendClose {
		closeMsg := []interface{}{"CLOSE", sub.ID}
		rc.writeMu.Lock()
		rc.conn.WriteJSON(closeMsg)
		rc.writeMu.Unlock()
	}

	sub.Close()
}

// Publish sends an EVENT to the relay and waits for its OK acknowledgement.
func (p *Pool) Publish(ctx context.Context, relayURL string, evt *types.Event) (*PublishResponse, error) {
	rc, err := p.getOrCreateConn(ctx, relayURL)
	if err != nil {
		return nil, err
	}

	waiter := make(chan PublishResponse, 1)
	rc.mu.Lock()
	if rc.closed {
		rc.mu.Unlock()
		return nil, errors.New("connection closed")
	}
	rc.okWaiters[evt.ID] = waiter
	rc.mu.Unlock()

	defer func() {
		rc.mu.Lock()
		delete(rc.okWaiters, evt.ID)
		rc.mu.Unlock()
	}()

	eventMsg := []interface{}{"EVENT", evt}
	rc.writeMu.Lock()
	rc.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	err = rc.conn.WriteJSON(eventMsg)
	rc.conn.SetWriteDeadline(time.Time{})
	rc.writeMu.Unlock()
	if err != nil {
		rc.markClosed()
		return nil, err
	}

	rc.touch()

	select {
	case resp := <-waiter:
		return &resp, nil
	case <-ctx.Done():
		return nil, ErrPublishTimeout
	}
}

// readLoop continuously reads from the connection and routes messages
// to subscriptions and publish waiters.
func (rc *Conn) readLoop() {
	defer rc.markClosed()

	for {
		var msg []interface{}
		err := rc.conn.ReadJSON(&msg)
		if err != nil {
			if !rc.isClosed() {
				slog.Debug("pool: read error", "relay", rc.relayURL, "error", err)
			}
			return
		}

		rc.touch()

		if len(msg) < 2 {
			continue
		}

		msgType, ok := msg[0].(string)
		if !ok {
			continue
		}

		switch msgType {
		case "EVENT":
			if len(msg) < 3 {
				continue
			}
			subID, ok := msg[1].(string)
			if !ok {
				continue
			}

			evt, ok := nostr.ParseEventFromInterface(msg[2])
			if !ok {
				continue
			}
			evt.RelaysSeen = []string{rc.relayURL}

			rc.mu.Lock()
			sub := rc.subscriptions[subID]
			rc.mu.Unlock()

			if sub != nil {
				select {
				case sub.EventChan <- evt:
				case <-sub.Done:
				default:
					rc.dropped.Add(1)
				}
			}

		case "EOSE":
			subID, ok := msg[1].(string)
			if !ok {
				continue
			}

			rc.mu.Lock()
			sub := rc.subscriptions[subID]
			rc.mu.Unlock()

			if sub != nil {
				select {
				case sub.EOSEChan <- true:
				default:
				}
			}

		case "OK":
			if len(msg) < 3 {
				continue
			}
			eventID, _ := msg[1].(string)
			accepted, _ := msg[2].(bool)
			message := ""
			if len(msg) >= 4 {
				message, _ = msg[3].(string)
			}

			rc.mu.Lock()
			waiter := rc.okWaiters[eventID]
			rc.mu.Unlock()

			if waiter != nil {
				select {
				case waiter <- PublishResponse{EventID: eventID, Success: accepted, Message: message}:
				default:
				}
			}

		case "CLOSED":
			subID, _ := msg[1].(string)
			rc.mu.Lock()
			sub := rc.subscriptions[subID]
			if sub != nil {
				delete(rc.subscriptions, subID)
			}
			rc.mu.Unlock()
			if sub != nil {
				sub.Close()
			}

		case "NOTICE":
			notice, _ := msg[1].(string)
			slog.Info("pool: NOTICE", "relay", rc.relayURL, "message", notice)
		}
	}
}

func (rc *Conn) touch() {
	rc.mu.Lock()
	rc.lastActivity = time.Now()
	rc.mu.Unlock()
}

// markClosed marks the connection as closed and cleans up
func (rc *Conn) markClosed() {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.closed {
		return
	}

	rc.closed = true
	rc.conn.Close()

	for _, sub := range rc.subscriptions {
		sub.Close()
	}
	rc.subscriptions = make(map[string]*Subscription)

	for id, waiter := range rc.okWaiters {
		select {
		case waiter <- PublishResponse{EventID: id, Success: false, Message: "connection closed"}:
		default:
		}
	}
	rc.okWaiters = make(map[string]chan PublishResponse)
}

// cleanupLoop periodically removes stale connections
func (p *Pool) cleanupLoop() {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.cleanup()
		}
	}
}

// cleanup removes connections that have been idle too long
func (p *Pool) cleanup() {
	now := time.Now()
	p.connections.Range(func(url string, rc *Conn) bool {
		rc.mu.Lock()
		idle := len(rc.subscriptions) == 0 && now.Sub(rc.lastActivity) > 2*time.Minute
		closed := rc.closed
		rc.mu.Unlock()

		if closed || idle {
			if !closed {
				slog.Debug("pool: closing idle connection", "relay", url)
				rc.markClosed()
			}
			p.connections.Delete(url)
		}
		return true
	})
}

// CloseRelay closes a specific relay connection
func (p *Pool) CloseRelay(relayURL string) {
	if rc, ok := p.connections.LoadAndDelete(relayURL); ok {
		rc.markClosed()
	}
}

// Close shuts the pool down, terminating every connection.
func (p *Pool) Close() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.connections.Range(func(url string, rc *Conn) bool {
		rc.markClosed()
		p.connections.Delete(url)
		return true
	})
}

// ActiveConnections returns the number of live pooled connections.
func (p *Pool) ActiveConnections() int {
	count := 0
	p.connections.Range(func(_ string, rc *Conn) bool {
		if !rc.isClosed() {
			count++
		}
		return true
	})
	return count
}

// ConnectedRelays lists URLs with a live pooled connection.
func (p *Pool) ConnectedRelays() []string {
	var relays []string
	p.connections.Range(func(url string, rc *Conn) bool {
		if !rc.isClosed() {
			relays = append(relays, url)
		}
		return true
	})
	return relays
}
