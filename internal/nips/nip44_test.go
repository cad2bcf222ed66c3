package nips

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationKeySymmetric(t *testing.T) {
	privA, pubA := testKeypair(t)
	privB, pubB := testKeypair(t)

	keyAB, err := ConversationKey(privA, pubB)
	require.NoError(t, err)
	keyBA, err := ConversationKey(privB, pubA)
	require.NoError(t, err)

	assert.Equal(t, keyAB, keyBA)
	assert.Len(t, keyAB, 32)
}

func TestConversationKeyRejectsBadPubkey(t *testing.T) {
	priv, _ := testKeypair(t)

	_, err := ConversationKey(priv, []byte{1, 2, 3})
	assert.Error(t, err)
}

func TestNip44EncryptDecryptRoundTrip(t *testing.T) {
	privA, _ := testKeypair(t)
	_, pubB := testKeypair(t)

	key, err := ConversationKey(privA, pubB)
	require.NoError(t, err)

	for _, plaintext := range []string{
		"a",
		"short message",
		strings.Repeat("long content ", 100),
		"unicode: héllo wörld 🤙",
	} {
		payload, err := Nip44Encrypt(plaintext, key)
		require.NoError(t, err)

		decrypted, err := Nip44Decrypt(payload, key)
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted)
	}
}

func TestNip44DecryptAcrossParties(t *testing.T) {
	privA, pubA := testKeypair(t)
	privB, pubB := testKeypair(t)

	keyA, err := ConversationKey(privA, pubB)
	require.NoError(t, err)
	keyB, err := ConversationKey(privB, pubA)
	require.NoError(t, err)

	payload, err := Nip44Encrypt("from A to B", keyA)
	require.NoError(t, err)

	decrypted, err := Nip44Decrypt(payload, keyB)
	require.NoError(t, err)
	assert.Equal(t, "from A to B", decrypted)
}

func TestNip44DecryptRejectsTampering(t *testing.T) {
	privA, _ := testKeypair(t)
	_, pubB := testKeypair(t)

	key, err := ConversationKey(privA, pubB)
	require.NoError(t, err)

	payload, err := Nip44Encrypt("authenticated", key)
	require.NoError(t, err)

	// Any byte flip must break the MAC
	tampered := []byte(payload)
	mid := len(tampered) / 2
	if tampered[mid] == 'A' {
		tampered[mid] = 'B'
	} else {
		tampered[mid] = 'A'
	}

	_, err = Nip44Decrypt(string(tampered), key)
	assert.Error(t, err)
}

func TestNip44DecryptRejectsWrongKey(t *testing.T) {
	privA, _ := testKeypair(t)
	_, pubB := testKeypair(t)
	privC, _ := testKeypair(t)

	key, err := ConversationKey(privA, pubB)
	require.NoError(t, err)
	wrongKey, err := ConversationKey(privC, pubB)
	require.NoError(t, err)

	payload, err := Nip44Encrypt("secret", key)
	require.NoError(t, err)

	_, err = Nip44Decrypt(payload, wrongKey)
	assert.Error(t, err)
}

func TestNip44DecryptRejectsMalformedPayload(t *testing.T) {
	priv, pub := testKeypair(t)
	key, err := ConversationKey(priv, pub)
	require.NoError(t, err)

	for _, payload := range []string{
		"",
		"#v3payload",
		"not base64!!!",
		"YWJj", // far too short
	} {
		_, err := Nip44Decrypt(payload, key)
		assert.Error(t, err, "payload %q", payload)
	}
}

func TestCalcPaddedLen(t *testing.T) {
	cases := []struct {
		unpadded int
		padded   int
	}{
		{1, 32},
		{16, 32},
		{32, 32},
		{33, 64},
		{37, 64},
		{64, 64},
		{100, 128},
		{257, 320},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.padded, calcPaddedLen(tc.unpadded), "unpadded %d", tc.unpadded)
	}
}

func TestPadUnpadRoundTrip(t *testing.T) {
	for _, size := range []int{1, 31, 32, 33, 100, 1000} {
		plaintext := []byte(strings.Repeat("x", size))
		padded, err := pad(plaintext)
		require.NoError(t, err)

		unpadded, err := unpad(padded)
		require.NoError(t, err)
		assert.Equal(t, plaintext, unpadded)
	}
}

func TestPadRejectsEmptyAndOversized(t *testing.T) {
	_, err := pad([]byte{})
	assert.Error(t, err)

	_, err = pad(make([]byte, maxPlaintextSize+1))
	assert.Error(t, err)
}
