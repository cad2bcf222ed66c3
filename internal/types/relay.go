package types

// RelayList represents a user's NIP-65 relay list
type RelayList struct {
	Read  []string `json:"read"`
	Write []string `json:"write"`
}

// RelayStatus describes one pooled relay connection for the management API
type RelayStatus struct {
	URL           string `json:"url"`
	Connected     bool   `json:"connected"`
	Healthy       bool   `json:"healthy"`
	AvgResponseMs int64  `json:"avg_response_ms"`
	RequestCount  int64  `json:"request_count"`
}
