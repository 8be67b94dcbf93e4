package cryptoprim

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
)

// NonceSize is the AES-256-GCM nonce width (spec.md §4.1: "random 96-bit nonce").
const NonceSize = 12

// newAEAD builds an AES-256-GCM cipher.AEAD from a 32-byte key.
func newAEAD(key [SharedSecretSize]byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// Seal encrypts plaintext under key with a fresh random nonce and returns
// (nonce, ciphertext-with-tag) separately — spec.md §4.1 calls out the
// nonce is "also exposed as an out-of-band header", and §3/§4.3 want it
// carried apart from the body rather than prefixed onto it.
func Seal(key [SharedSecretSize]byte, plaintext []byte) (nonce, ciphertext []byte, err error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, nil, err
	}
	nonce = make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("generate nonce: %w", err)
	}
	ciphertext = aead.Seal(nil, nonce, plaintext, nil)
	return nonce, ciphertext, nil
}

// Open decrypts ciphertext under key using the given nonce. Any failure —
// wrong key, tampered ciphertext, wrong nonce length — returns a generic
// error; callers in the codec map this to relayerr.Unauthorized() without
// further detail (spec.md §4.3).
func Open(key [SharedSecretSize]byte, nonce, ciphertext []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("invalid nonce length: %d", len(nonce))
	}
	return aead.Open(nil, nonce, ciphertext, nil)
}
