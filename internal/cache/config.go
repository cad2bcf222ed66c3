package cache

import "time"

// Config holds TTLs for the typed stores.
type Config struct {
	ProfileTTL         time.Duration
	ProfileNotFoundTTL time.Duration // negative entries expire faster
	ContactsTTL        time.Duration
	RelayListTTL       time.Duration
	EventQueryTTL      time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		ProfileTTL:         10 * time.Minute,
		ProfileNotFoundTTL: 2 * time.Minute,
		ContactsTTL:        5 * time.Minute,
		RelayListTTL:       15 * time.Minute,
		EventQueryTTL:      30 * time.Second,
	}
}
