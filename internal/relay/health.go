package relay

import (
	"sort"
	"sync"
	"time"

	"github.com/quirze62/nodus/internal/types"
)

// consecutive failures before a relay is reported unhealthy
const unhealthyThreshold = 3

// HealthStore tracks per-relay response times and failures.
type HealthStore struct {
	mu     sync.RWMutex
	relays map[string]*relayHealth
}

type relayHealth struct {
	requestCount        int64
	totalResponseMs     int64
	consecutiveFailures int
	lastSeen            time.Time
}

// NewHealthStore creates an empty health store
func NewHealthStore() *HealthStore {
	return &HealthStore{relays: make(map[string]*relayHealth)}
}

// Record notes the outcome of one relay operation.
func (h *HealthStore) Record(relayURL string, latency time.Duration, success bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rh := h.relays[relayURL]
	if rh == nil {
		rh = &relayHealth{}
		h.relays[relayURL] = rh
	}

	rh.requestCount++
	rh.lastSeen = time.Now()
	if success {
		rh.totalResponseMs += latency.Milliseconds()
		rh.consecutiveFailures = 0
	} else {
		rh.consecutiveFailures++
	}
}

// Stats returns healthy/unhealthy counts and the average response time.
func (h *HealthStore) Stats() (healthy, unhealthy int, avgMs int64) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var totalMs, totalReqs int64
	for _, rh := range h.relays {
		if rh.consecutiveFailures >= unhealthyThreshold {
			unhealthy++
		} else {
			healthy++
		}
		totalMs += rh.totalResponseMs
		totalReqs += rh.requestCount
	}
	if totalReqs > 0 {
		avgMs = totalMs / totalReqs
	}
	return healthy, unhealthy, avgMs
}

// Details returns per-relay health, sorted by URL for stable output.
func (h *HealthStore) Details() []types.RelayStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	details := make([]types.RelayStatus, 0, len(h.relays))
	for url, rh := range h.relays {
		var avg int64
		if rh.requestCount > 0 {
			avg = rh.totalResponseMs / rh.requestCount
		}
		details = append(details, types.RelayStatus{
			URL:           url,
			Healthy:       rh.consecutiveFailures < unhealthyThreshold,
			AvgResponseMs: avg,
			RequestCount:  rh.requestCount,
		})
	}

	sort.Slice(details, func(i, j int) bool { return details[i].URL < details[j].URL })
	return details
}
