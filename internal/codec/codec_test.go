package codec

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/hoppscotch/agent/internal/cryptoprim"
	"github.com/hoppscotch/agent/internal/registration"
)

func newTestStore(t *testing.T) *registration.Store {
	t.Helper()
	s, err := registration.Open(filepath.Join(t.TempDir(), "reg.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestWrapUnwrapRoundTrip(t *testing.T) {
	store := newTestStore(t)
	c := New(store)

	var secret [cryptoprim.SharedSecretSize]byte
	secret[0] = 0x42
	if err := store.Insert(registration.Registration{
		AuthToken: "tok", RegisteredAt: time.Now(), SharedSecret: secret,
	}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	payload, _ := json.Marshal(map[string]any{"id": 1, "url": "http://x"})
	nonceHex, ciphertext, err := c.Wrap(secret, payload)
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}

	got, gotSecret, err := c.Unwrap("tok", nonceHex, ciphertext)
	if err != nil {
		t.Fatalf("Unwrap: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("roundtrip mismatch: %s", got)
	}
	if gotSecret != secret {
		t.Fatal("returned secret doesn't match registration")
	}
}

func TestUnwrapUnknownTokenIsUnauthorized(t *testing.T) {
	store := newTestStore(t)
	c := New(store)
	_, _, err := c.Unwrap("no-such-token", "00", []byte("x"))
	if err == nil {
		t.Fatal("expected an error for unknown token")
	}
}

func TestUnwrapMissingNonceIsUnauthorized(t *testing.T) {
	store := newTestStore(t)
	c := New(store)
	if err := store.Insert(registration.Registration{AuthToken: "tok", RegisteredAt: time.Now()}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	_, _, err := c.Unwrap("tok", "", []byte("x"))
	if err == nil {
		t.Fatal("expected unauthorized on empty nonce")
	}
}

func TestUnwrapWrongSecretFails(t *testing.T) {
	store := newTestStore(t)
	c := New(store)

	var secretA, secretB [cryptoprim.SharedSecretSize]byte
	secretB[0] = 1
	if err := store.Insert(registration.Registration{AuthToken: "tok", RegisteredAt: time.Now(), SharedSecret: secretA}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	// Encrypt under a *different* secret than what's stored for "tok".
	nonceHex, ciphertext, err := c.Wrap(secretB, []byte("hi"))
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	if _, _, err := c.Unwrap("tok", nonceHex, ciphertext); err == nil {
		t.Fatal("expected decrypt failure under mismatched secret")
	}
}
