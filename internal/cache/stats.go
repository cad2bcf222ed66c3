package cache

import "sync/atomic"

var (
	hitsTotal   atomic.Int64
	missesTotal atomic.Int64
)

// RecordHit increments the cache hit counter
func RecordHit() {
	hitsTotal.Add(1)
}

// RecordMiss increments the cache miss counter
func RecordMiss() {
	missesTotal.Add(1)
}

// Stats returns total hits and misses across all typed stores.
func Stats() (hits, misses int64) {
	return hitsTotal.Load(), missesTotal.Load()
}
