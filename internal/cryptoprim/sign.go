package cryptoprim

import (
	"crypto/ed25519"
	"errors"
	"fmt"
)

// ErrInvalidSignature is returned by VerifySignature on a signature mismatch.
var ErrInvalidSignature = errors.New("invalid signature")

// VerifySignature checks an Ed25519 signature over message with pubKey
// (spec.md §4.1). pubKey must be 32 bytes and sig 64 bytes.
func VerifySignature(pubKey, message, sig []byte) error {
	if len(pubKey) != ed25519.PublicKeySize {
		return fmt.Errorf("invalid public key length: %d", len(pubKey))
	}
	if len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("invalid signature length: %d", len(sig))
	}
	if !ed25519.Verify(ed25519.PublicKey(pubKey), message, sig) {
		return ErrInvalidSignature
	}
	return nil
}
