package nostr

import (
	"encoding/hex"
	"errors"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/quirze62/nodus/internal/nips"
)

// GeneratePrivateKey generates a new random secp256k1 private key
func GeneratePrivateKey() ([]byte, error) {
	privKey, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	return privKey.Serialize(), nil
}

// GetPublicKey derives the public key from a private key (x-only, 32 bytes, BIP-340)
func GetPublicKey(privKeyBytes []byte) ([]byte, error) {
	if len(privKeyBytes) != 32 {
		return nil, errors.New("private key must be 32 bytes")
	}
	privKey, _ := btcec.PrivKeyFromBytes(privKeyBytes)
	pubKey := privKey.PubKey()
	return pubKey.SerializeCompressed()[1:], nil
}

// ParsePrivateKey accepts a hex or nsec-encoded private key and returns raw bytes.
func ParsePrivateKey(key string) ([]byte, error) {
	key = strings.TrimSpace(key)
	if strings.HasPrefix(key, "nsec1") {
		return nips.DecodeBech32Key("nsec", key)
	}

	privKeyBytes, err := hex.DecodeString(key)
	if err != nil {
		return nil, errors.New("private key is neither hex nor nsec")
	}
	if len(privKeyBytes) != 32 {
		return nil, errors.New("private key must be 32 bytes")
	}
	return privKeyBytes, nil
}

// ParsePublicKey accepts a hex or npub-encoded public key and returns hex.
func ParsePublicKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if strings.HasPrefix(key, "npub1") {
		raw, err := nips.DecodeBech32Key("npub", key)
		if err != nil {
			return "", err
		}
		return hex.EncodeToString(raw), nil
	}

	raw, err := hex.DecodeString(key)
	if err != nil || len(raw) != 32 {
		return "", errors.New("public key is neither hex nor npub")
	}
	return key, nil
}
