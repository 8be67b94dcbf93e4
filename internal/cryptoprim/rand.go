package cryptoprim

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// RandomUint32Below returns a value drawn uniformly from [0, n) using a
// cryptographically secure source — used to generate the pairing OTP
// (spec.md §4.12: "drawn from a uniform random distribution").
func RandomUint32Below(n uint32) (uint32, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("random uint32: %w", err)
	}
	return uint32(v.Int64()), nil
}
