package qstash

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testCurrentKey = "sig_current_0123456789abcdef"
	testNextKey    = "sig_next_0123456789abcdef"
	testURL        = "https://example.com/hookflow/workflow/charge/"
)

func signToken(t *testing.T, key string, mutate func(jwt.MapClaims)) string {
	t.Helper()

	body := []byte(`{"workflow_id":"charge","run_id":"run-1"}`)
	sum := sha256.Sum256(body)
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":  "Upstash",
		"sub":  testURL,
		"exp":  now.Add(5 * time.Minute).Unix(),
		"nbf":  now.Add(-time.Minute).Unix(),
		"iat":  now.Unix(),
		"body": hex.EncodeToString(sum[:]),
	}
	if mutate != nil {
		mutate(claims)
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return token
}

func testBody() []byte {
	return []byte(`{"workflow_id":"charge","run_id":"run-1"}`)
}

func TestVerify_CurrentKey(t *testing.T) {
	r, err := NewReceiver(testCurrentKey, testNextKey, 0)
	require.NoError(t, err)

	token := signToken(t, testCurrentKey, nil)
	assert.NoError(t, r.Verify(token, testBody(), testURL))
}

func TestVerify_NextKeyDuringRotation(t *testing.T) {
	r, _ := NewReceiver(testCurrentKey, testNextKey, 0)

	token := signToken(t, testNextKey, nil)
	assert.NoError(t, r.Verify(token, testBody(), testURL))
}

func TestVerify_UnknownKeyRejected(t *testing.T) {
	r, _ := NewReceiver(testCurrentKey, testNextKey, 0)

	token := signToken(t, "some-other-key", nil)
	assert.ErrorIs(t, r.Verify(token, testBody(), testURL), ErrInvalidSignature)
}

func TestVerify_MissingSignatureRejected(t *testing.T) {
	r, _ := NewReceiver(testCurrentKey, testNextKey, 0)
	assert.ErrorIs(t, r.Verify("", testBody(), testURL), ErrInvalidSignature)
}

func TestVerify_WrongIssuerRejected(t *testing.T) {
	r, _ := NewReceiver(testCurrentKey, testNextKey, 0)

	token := signToken(t, testCurrentKey, func(c jwt.MapClaims) {
		c["iss"] = "NotUpstash"
	})
	assert.ErrorIs(t, r.Verify(token, testBody(), testURL), ErrInvalidSignature)
}

func TestVerify_URLMismatchRejected(t *testing.T) {
	r, _ := NewReceiver(testCurrentKey, testNextKey, 0)

	token := signToken(t, testCurrentKey, nil)
	err := r.Verify(token, testBody(), "https://attacker.example/hookflow/workflow/charge/")
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerify_TamperedBodyRejected(t *testing.T) {
	r, _ := NewReceiver(testCurrentKey, testNextKey, 0)

	token := signToken(t, testCurrentKey, nil)
	err := r.Verify(token, []byte(`{"workflow_id":"charge","run_id":"run-2"}`), testURL)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerify_ExpiredTokenRejected(t *testing.T) {
	r, _ := NewReceiver(testCurrentKey, testNextKey, time.Second)

	token := signToken(t, testCurrentKey, func(c jwt.MapClaims) {
		c["exp"] = time.Now().Add(-time.Hour).Unix()
	})
	assert.ErrorIs(t, r.Verify(token, testBody(), testURL), ErrInvalidSignature)
}

func TestVerify_ClockSkewLeewayAccepted(t *testing.T) {
	// Token expired 30s ago; a 60s leeway must still accept it.
	r, _ := NewReceiver(testCurrentKey, testNextKey, 60*time.Second)

	token := signToken(t, testCurrentKey, func(c jwt.MapClaims) {
		c["exp"] = time.Now().Add(-30 * time.Second).Unix()
	})
	assert.NoError(t, r.Verify(token, testBody(), testURL))
}

func TestVerify_NotYetValidWithinLeewayAccepted(t *testing.T) {
	r, _ := NewReceiver(testCurrentKey, testNextKey, 60*time.Second)

	token := signToken(t, testCurrentKey, func(c jwt.MapClaims) {
		c["nbf"] = time.Now().Add(30 * time.Second).Unix()
	})
	assert.NoError(t, r.Verify(token, testBody(), testURL))
}

func TestNewReceiver_RequiresKeys(t *testing.T) {
	_, err := NewReceiver("", testNextKey, 0)
	assert.Error(t, err)
	_, err = NewReceiver(testCurrentKey, "", 0)
	assert.Error(t, err)
}
