package client

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/quirze62/nodus/internal/nips"
	"github.com/quirze62/nodus/internal/nostr"
	"github.com/quirze62/nodus/internal/types"
)

// SendDirectMessage encrypts content for the peer and publishes it as a
// kind 4 event. The AES-CBC scheme is the default for interop; clients
// opted into the versioned payload format get that instead.
func (c *Client) SendDirectMessage(ctx context.Context, peerPubkey, content string) (*PublishResult, error) {
	if strings.TrimSpace(content) == "" {
		return nil, errors.New("message content is empty")
	}

	peerHex, err := nostr.ParsePublicKey(peerPubkey)
	if err != nil {
		return nil, fmt.Errorf("parse peer pubkey: %w", err)
	}

	ciphertext, err := c.encryptDM(peerHex, content)
	if err != nil {
		return nil, fmt.Errorf("encrypt message: %w", err)
	}

	evt := types.Event{
		Kind:    nostr.KindDirectMessage,
		Content: ciphertext,
		Tags:    [][]string{{"p", peerHex}},
	}
	return c.publish(ctx, &evt)
}

// Conversation returns the decrypted message history with a peer,
// oldest first. Messages that fail to decrypt are skipped.
func (c *Client) Conversation(ctx context.Context, peerPubkey string) ([]types.DirectMessage, error) {
	peerHex, err := nostr.ParsePublicKey(peerPubkey)
	if err != nil {
		return nil, fmt.Errorf("parse peer pubkey: %w", err)
	}

	events := c.fetcher.FetchDirectMessages(ctx, c.ReadRelays(), c.pubKey, peerHex)

	messages := make([]types.DirectMessage, 0, len(events))
	for _, evt := range events {
		plaintext, err := c.decryptDM(peerHex, evt.Content)
		if err != nil {
			slog.Debug("skipping undecryptable message",
				"id", nostr.ShortID(evt.ID), "error", err)
			continue
		}

		messages = append(messages, types.DirectMessage{
			EventID:   evt.ID,
			Peer:      peerHex,
			Content:   plaintext,
			CreatedAt: evt.CreatedAt,
			Outgoing:  evt.PubKey == c.pubKey,
		})
	}
	return messages, nil
}

func (c *Client) encryptDM(peerHex, plaintext string) (string, error) {
	privBytes, peerBytes, err := c.dmKeys(peerHex)
	if err != nil {
		return "", err
	}

	if c.useNip44 {
		conversationKey, err := nips.ConversationKey(privBytes, peerBytes)
		if err != nil {
			return "", err
		}
		return nips.Nip44Encrypt(plaintext, conversationKey)
	}

	sharedSecret, err := nips.Nip04SharedSecret(privBytes, peerBytes)
	if err != nil {
		return "", err
	}
	return nips.Nip04Encrypt(plaintext, sharedSecret)
}

// decryptDM handles both encryption schemes: the legacy payload carries
// an "?iv=" separator, the versioned one does not.
func (c *Client) decryptDM(peerHex, payload string) (string, error) {
	privBytes, peerBytes, err := c.dmKeys(peerHex)
	if err != nil {
		return "", err
	}

	if strings.Contains(payload, "?iv=") {
		sharedSecret, err := nips.Nip04SharedSecret(privBytes, peerBytes)
		if err != nil {
			return "", err
		}
		return nips.Nip04Decrypt(payload, sharedSecret)
	}

	conversationKey, err := nips.ConversationKey(privBytes, peerBytes)
	if err != nil {
		return "", err
	}
	return nips.Nip44Decrypt(payload, conversationKey)
}

func (c *Client) dmKeys(peerHex string) (privBytes, peerBytes []byte, err error) {
	peerBytes, err = hex.DecodeString(peerHex)
	if err != nil {
		return nil, nil, fmt.Errorf("decode peer pubkey: %w", err)
	}
	return c.privKey, peerBytes, nil
}
