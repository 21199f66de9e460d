package qstash

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultClockSkew is the leeway applied to exp/nbf validation to tolerate
// clock drift between QStash and this server.
const DefaultClockSkew = 60 * time.Second

// ErrInvalidSignature is returned when a signature fails verification
// against both signing keys.
var ErrInvalidSignature = errors.New("qstash signature verification failed")

// Receiver verifies the Upstash-Signature JWT on inbound deliveries.
// QStash rotates its signing keys, so a signature is accepted if it
// validates against either the current or the next key.
type Receiver struct {
	currentKey string
	nextKey    string
	clockSkew  time.Duration
}

// NewReceiver creates a Receiver for the given signing keys. A zero
// clockSkew falls back to DefaultClockSkew.
func NewReceiver(currentKey, nextKey string, clockSkew time.Duration) (*Receiver, error) {
	if currentKey == "" || nextKey == "" {
		return nil, fmt.Errorf("qstash signing keys are not set")
	}
	if clockSkew <= 0 {
		clockSkew = DefaultClockSkew
	}
	return &Receiver{currentKey: currentKey, nextKey: nextKey, clockSkew: clockSkew}, nil
}

// Verify checks the JWT signature over body as delivered to url. The token
// must be HS256-signed by one of the two keys and carry iss "Upstash", sub
// equal to the delivery URL, and a body claim matching the SHA-256 of the
// raw request body.
func (r *Receiver) Verify(signature string, body []byte, url string) error {
	if signature == "" {
		return fmt.Errorf("%w: missing signature", ErrInvalidSignature)
	}

	for _, key := range []string{r.currentKey, r.nextKey} {
		if r.verifyWithKey(signature, body, url, key) == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: invalid signature or claims", ErrInvalidSignature)
}

func (r *Receiver) verifyWithKey(signature string, body []byte, url, key string) error {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(signature, claims, func(t *jwt.Token) (any, error) {
		return []byte(key), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(r.clockSkew),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer("Upstash"),
	)
	if err != nil {
		return err
	}

	sub, _ := claims["sub"].(string)
	if sub != url {
		return fmt.Errorf("subject mismatch")
	}

	sum := sha256.Sum256(body)
	bodyClaim, _ := claims["body"].(string)
	if bodyClaim != hex.EncodeToString(sum[:]) {
		return fmt.Errorf("body hash mismatch")
	}
	return nil
}
