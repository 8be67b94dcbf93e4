package cryptoprim

import (
	"crypto/ecdh"
	"crypto/rand"
	"fmt"
)

// SharedSecretSize is the fixed width of the AEAD key (spec.md §3/§4.1).
const SharedSecretSize = 32

// GenerateEphemeral creates the agent-side ephemeral X25519 keypair used
// during pairing (spec.md §4.1 "one side generates an ephemeral secret").
func GenerateEphemeral() (*ecdh.PrivateKey, error) {
	return ecdh.X25519().GenerateKey(rand.Reader)
}

// DeriveSharedSecret performs X25519 ECDH against the client's raw public
// key bytes. The raw ECDH output is used as the AES-256-GCM key directly,
// with no KDF in between — matching controller.rs's
// secret_key.diffie_hellman(&their_public_key) fed straight into
// Aes256Gcm::new on the browser/agent side. This call does not invalidate
// priv; single use of the server-side ephemeral secret comes from the
// pairing controller generating a fresh key for every verify-registration
// and deriving from it once.
func DeriveSharedSecret(priv *ecdh.PrivateKey, clientPubKey []byte) ([SharedSecretSize]byte, error) {
	var out [SharedSecretSize]byte

	peerPub, err := ecdh.X25519().NewPublicKey(clientPubKey)
	if err != nil {
		return out, fmt.Errorf("parse client public key: %w", err)
	}

	shared, err := priv.ECDH(peerPub)
	if err != nil {
		return out, fmt.Errorf("ecdh: %w", err)
	}
	copy(out[:], shared)
	return out, nil
}
