package types

// DirectMessage is a decrypted kind 4 message between the local user and a peer.
type DirectMessage struct {
	EventID   string `json:"event_id"`
	Peer      string `json:"peer"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"created_at"`
	Outgoing  bool   `json:"outgoing"`
}
