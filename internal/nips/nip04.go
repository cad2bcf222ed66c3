package nips

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
)

// NIP-04 direct-message encryption (kind 4): ECDH shared secret + AES-256-CBC,
// payload framed as base64(ciphertext)?iv=base64(iv).

// Nip04SharedSecret computes the shared secret for NIP-04 encryption.
// Returns the raw x coordinate per RFC 5903 section 9, zero-padded to 32 bytes.
func Nip04SharedSecret(privKeyBytes []byte, pubKeyBytes []byte) ([]byte, error) {
	privKey, _ := btcec.PrivKeyFromBytes(privKeyBytes)
	if privKey == nil {
		return nil, errors.New("invalid private key")
	}

	pubKey, err := parseXOnlyPubKey(pubKeyBytes)
	if err != nil {
		return nil, err
	}

	sharedX := btcec.GenerateSharedSecret(privKey, pubKey)

	// x.Bytes() may be short when leading bytes are zero
	if len(sharedX) < 32 {
		padded := make([]byte, 32)
		copy(padded[32-len(sharedX):], sharedX)
		return padded, nil
	}

	return sharedX, nil
}

// Nip04Encrypt encrypts plaintext using NIP-04 (AES-256-CBC)
func Nip04Encrypt(plaintext string, sharedSecret []byte) (string, error) {
	if len(sharedSecret) != 32 {
		return "", errors.New("NIP-04 shared secret must be 32 bytes")
	}

	iv := make([]byte, 16)
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}

	// PKCS7 padding
	plaintextBytes := []byte(plaintext)
	blockSize := aes.BlockSize
	padding := blockSize - (len(plaintextBytes) % blockSize)
	paddedPlaintext := make([]byte, len(plaintextBytes)+padding)
	copy(paddedPlaintext, plaintextBytes)
	for i := len(plaintextBytes); i < len(paddedPlaintext); i++ {
		paddedPlaintext[i] = byte(padding)
	}

	block, err := aes.NewCipher(sharedSecret)
	if err != nil {
		return "", err
	}

	ciphertext := make([]byte, len(paddedPlaintext))
	mode := cipher.NewCBCEncrypter(block, iv)
	mode.CryptBlocks(ciphertext, paddedPlaintext)

	return base64.StdEncoding.EncodeToString(ciphertext) + "?iv=" + base64.StdEncoding.EncodeToString(iv), nil
}

// Nip04Decrypt decrypts a NIP-04 encrypted payload
func Nip04Decrypt(payload string, sharedSecret []byte) (string, error) {
	parts := strings.Split(payload, "?iv=")
	if len(parts) != 2 {
		return "", errors.New("invalid NIP-04 payload format")
	}

	ciphertext, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", errors.New("invalid ciphertext base64")
	}

	iv, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", errors.New("invalid IV base64")
	}

	if len(iv) != 16 {
		return "", errors.New("invalid IV length")
	}

	block, err := aes.NewCipher(sharedSecret)
	if err != nil {
		return "", err
	}

	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", errors.New("ciphertext is not a multiple of block size")
	}

	plaintext := make([]byte, len(ciphertext))
	mode := cipher.NewCBCDecrypter(block, iv)
	mode.CryptBlocks(plaintext, ciphertext)

	// Remove PKCS7 padding
	if len(plaintext) == 0 {
		return "", errors.New("empty plaintext")
	}
	padding := int(plaintext[len(plaintext)-1])
	if padding > aes.BlockSize || padding == 0 {
		return "", errors.New("invalid padding")
	}
	for i := len(plaintext) - padding; i < len(plaintext); i++ {
		if plaintext[i] != byte(padding) {
			return "", errors.New("invalid padding bytes")
		}
	}

	return string(plaintext[:len(plaintext)-padding]), nil
}
