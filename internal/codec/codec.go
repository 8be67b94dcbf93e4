// Package codec implements C3 of spec.md: wrapping/unwrapping request and
// response bodies with per-message AES-256-GCM nonces, keyed by each
// registration's shared secret. Every failure collapses to Unauthorized —
// spec.md §4.3 is explicit that the codec "never leaks which step failed".
package codec

import (
	"encoding/hex"

	"github.com/hoppscotch/agent/internal/cryptoprim"
	"github.com/hoppscotch/agent/internal/registration"
	"github.com/hoppscotch/agent/internal/relayerr"
)

// NonceHeader carries the hex-encoded AEAD nonce out of band (spec.md §4.1/§4.3).
const NonceHeader = "X-Hopp-Nonce"

// Codec looks registrations up by bearer token to decrypt/encrypt payloads.
type Codec struct {
	store *registration.Store
}

func New(store *registration.Store) *Codec {
	return &Codec{store: store}
}

// Unwrap decrypts an inbound request body. On success it also returns the
// registration's shared secret so the caller can encrypt the response
// without a second store lookup. Any failure — bad token, missing/malformed
// nonce header, AEAD auth failure — returns relayerr.Unauthorized().
func (c *Codec) Unwrap(authToken, nonceHex string, ciphertext []byte) ([]byte, [cryptoprim.SharedSecretSize]byte, error) {
	var zero [cryptoprim.SharedSecretSize]byte

	reg, ok, err := c.store.Get(authToken)
	if err != nil || !ok {
		return nil, zero, relayerr.Unauthorized()
	}

	if nonceHex == "" {
		return nil, zero, relayerr.Unauthorized()
	}
	nonce, err := hex.DecodeString(nonceHex)
	if err != nil {
		return nil, zero, relayerr.Unauthorized()
	}

	plaintext, err := cryptoprim.Open(reg.SharedSecret, nonce, ciphertext)
	if err != nil {
		return nil, zero, relayerr.Unauthorized()
	}
	return plaintext, reg.SharedSecret, nil
}

// Wrap encrypts plaintext under secret with a fresh nonce, returning the
// lowercase-hex nonce (for the response header) and the ciphertext body
// (spec.md §4.3: "Content-Type: application/octet-stream").
func (c *Codec) Wrap(secret [cryptoprim.SharedSecretSize]byte, plaintext []byte) (nonceHex string, ciphertext []byte, err error) {
	nonce, ct, err := cryptoprim.Seal(secret, plaintext)
	if err != nil {
		return "", nil, err
	}
	return hex.EncodeToString(nonce), ct, nil
}
