// Package cryptoprim implements the four fixed primitives of spec.md §4.1:
// BLAKE3 hashing, Ed25519 signature verification, X25519 key agreement, and
// AES-256-GCM AEAD. Named cryptoprim (not "crypto") to avoid shadowing the
// standard library package every file here imports.
package cryptoprim

import "github.com/zeebo/blake3"

// HashSize is the fixed BLAKE3 digest length used throughout this repo.
const HashSize = 32

// Hash256 returns the 256-bit BLAKE3 digest of data (spec.md §4.1).
func Hash256(data []byte) [HashSize]byte {
	var out [HashSize]byte
	sum := blake3.Sum256(data)
	copy(out[:], sum[:])
	return out
}
