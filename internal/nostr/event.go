// Package nostr implements NIP-01 event assembly: canonical serialization,
// event ID derivation, and Schnorr signing/verification. The cryptography
// itself comes from btcec; this package only does protocol plumbing.
package nostr

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"github.com/quirze62/nodus/internal/types"
)

// CalculateEventID computes the content-addressed event ID:
// sha256 of the canonical serialization [0, pubkey, created_at, kind, tags, content].
//
// The serialization must NOT escape HTML characters (<, >, &): relays
// hash the unescaped form, and json.Marshal escapes these by default,
// so an encoder with SetEscapeHTML(false) is required.
func CalculateEventID(evt *types.Event) string {
	serialized := []interface{}{
		0,
		evt.PubKey,
		evt.CreatedAt,
		evt.Kind,
		evt.Tags,
		evt.Content,
	}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.Encode(serialized)

	// Encoder.Encode adds a trailing newline, remove it
	jsonBytes := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))

	hash := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(hash[:])
}

// SignEvent signs an event ID with the given private key, returning the hex signature.
func SignEvent(privKeyBytes []byte, eventID string) (string, error) {
	if len(privKeyBytes) == 0 {
		return "", fmt.Errorf("empty private key")
	}

	privKey, _ := btcec.PrivKeyFromBytes(privKeyBytes)
	if privKey == nil {
		return "", fmt.Errorf("invalid private key")
	}

	eventIDBytes, err := hex.DecodeString(eventID)
	if err != nil {
		return "", fmt.Errorf("invalid event ID hex: %w", err)
	}

	sig, err := schnorr.Sign(privKey, eventIDBytes)
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}

	return hex.EncodeToString(sig.Serialize()), nil
}

// Finalize stamps, identifies, and signs an event in place. PubKey is
// derived from the private key; CreatedAt is set only if zero.
func Finalize(evt *types.Event, privKeyBytes []byte) error {
	pubKey, err := GetPublicKey(privKeyBytes)
	if err != nil {
		return err
	}
	evt.PubKey = hex.EncodeToString(pubKey)
	if evt.CreatedAt == 0 {
		evt.CreatedAt = time.Now().Unix()
	}
	if evt.Tags == nil {
		evt.Tags = [][]string{}
	}

	evt.ID = CalculateEventID(evt)
	evt.Sig, err = SignEvent(privKeyBytes, evt.ID)
	return err
}

// ValidateEventSignature verifies Schnorr signature for a Nostr event
func ValidateEventSignature(evt *types.Event) bool {
	if len(evt.Sig) != 128 || len(evt.PubKey) != 64 {
		return false
	}

	sigBytes, err := hex.DecodeString(evt.Sig)
	if err != nil {
		return false
	}
	pubKeyBytes, err := hex.DecodeString(evt.PubKey)
	if err != nil {
		return false
	}
	idBytes, err := hex.DecodeString(evt.ID)
	if err != nil {
		return false
	}

	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return false
	}
	pubKey, err := schnorr.ParsePubKey(pubKeyBytes)
	if err != nil {
		return false
	}

	return sig.Verify(idBytes, pubKey)
}

// ParseEventFromInterface converts raw websocket data to Event (avoids JSON re-encoding).
// Events carrying an invalid signature are rejected here so they never reach
// caches or results.
func ParseEventFromInterface(data interface{}) (types.Event, bool) {
	m, ok := data.(map[string]interface{})
	if !ok {
		return types.Event{}, false
	}

	evt := types.Event{}

	if id, ok := m["id"].(string); ok {
		evt.ID = id
	}
	if pk, ok := m["pubkey"].(string); ok {
		evt.PubKey = pk
	}
	if createdAt, ok := m["created_at"].(float64); ok {
		evt.CreatedAt = int64(createdAt)
	}
	if kind, ok := m["kind"].(float64); ok {
		evt.Kind = int(kind)
	}
	if content, ok := m["content"].(string); ok {
		evt.Content = content
	}
	if sig, ok := m["sig"].(string); ok {
		evt.Sig = sig
	}

	if tags, ok := m["tags"].([]interface{}); ok {
		evt.Tags = make([][]string, 0, len(tags))
		for _, tag := range tags {
			if tagArr, ok := tag.([]interface{}); ok {
				strTag := make([]string, 0, len(tagArr))
				for _, elem := range tagArr {
					if s, ok := elem.(string); ok {
						strTag = append(strTag, s)
					}
				}
				evt.Tags = append(evt.Tags, strTag)
			}
		}
	}

	// Unsigned events are forgeable by any relay; reject them outright
	if !ValidateEventSignature(&evt) {
		slog.Warn("event signature validation failed", "event_id", ShortID(evt.ID))
		return types.Event{}, false
	}

	return evt, evt.ID != ""
}

// ShortID truncates ID/pubkey to 12 chars for logging
func ShortID(id string) string {
	if len(id) >= 12 {
		return id[:12]
	}
	return id
}
