package session

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHashPassword pins down the exact wire contract (spec.md §6):
// sha256(challenge || ':' || sha256(lower(user_id) || ':' || password)),
// with user_id lower-cased only for the inner hash and the challenge
// treated as opaque bytes, never text-decoded.
func TestHashPassword(t *testing.T) {
	challenge := []byte{0x01, 0x02, 0xff}
	inner := sha256.Sum256([]byte("alice:hunter2"))
	want := sha256.Sum256(append(append([]byte{}, challenge...), append([]byte(":"), inner[:]...)...))

	got := hashPassword(challenge, "Alice", "hunter2")
	assert.Equal(t, want[:], got)
}

func TestHashPasswordChallengeIsOpaqueBytes(t *testing.T) {
	// Bytes that are not valid UTF-8 must still hash deterministically;
	// the challenge must never be decoded as text first.
	challenge := []byte{0xff, 0xfe, 0x00, 0x80}
	got1 := hashPassword(challenge, "user", "pw")
	got2 := hashPassword(challenge, "user", "pw")
	assert.Equal(t, got1, got2)
}

func TestBuildAuthRequestUserIDNotLowercasedOnWire(t *testing.T) {
	challenge := []byte("chal")
	req, err := buildAuthRequest(challenge, map[string]string{"Username": "Alice", "Password": "hunter2"})
	require.NoError(t, err)
	assert.Equal(t, "Alice", req.UserID, "the wire user_id must preserve original case; only the hash input is lower-cased")
	require.Len(t, req.ChallengeResponse, 1)
	assert.Equal(t, "PasswordHash", req.ChallengeResponse[0].Type)
	assert.Equal(t, hashPassword(challenge, "Alice", "hunter2"), req.ChallengeResponse[0].Response)
}

func TestBuildAuthRequestMissingCredentials(t *testing.T) {
	_, err := buildAuthRequest([]byte("c"), map[string]string{"Password": "x"})
	assert.Error(t, err)

	_, err = buildAuthRequest([]byte("c"), map[string]string{"Username": "x"})
	assert.Error(t, err)
}
