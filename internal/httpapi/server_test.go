package httpapi

import (
	"bytes"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/hoppscotch/agent/internal/cryptoprim"
	"github.com/hoppscotch/agent/internal/events"
	"github.com/hoppscotch/agent/internal/registration"
)

func newTestServer(t *testing.T) (*httptest.Server, *Server) {
	t.Helper()
	store, err := registration.Open(filepath.Join(t.TempDir(), "reg.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	s := New(store, events.NewBus())
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	srv := httptest.NewServer(withCORS(mux))
	t.Cleanup(srv.Close)
	return srv, s
}

// pairOnceViaEvents drives the receive/verify-registration handshake end to
// end. The OTP is never returned over HTTP (it only appears in the
// verify-registration prompt shown on the agent side), so the test observes
// it the same way the desktop shell does: via the registration-received
// event on the bus.
func pairOnceViaEvents(t *testing.T, srv *httptest.Server, s *Server) (authKey string, secret [cryptoprim.SharedSecretSize]byte) {
	t.Helper()
	ch, unsub := s.bus.Subscribe(4)
	defer unsub()

	resp, err := http.Post(srv.URL+"/receive-registration", "application/json", nil)
	if err != nil {
		t.Fatalf("receive-registration: %v", err)
	}
	resp.Body.Close()

	var otp string
	select {
	case ev := <-ch:
		if ev.Kind != "registration-received" {
			t.Fatalf("unexpected event kind %q", ev.Kind)
		}
		otp = ev.Data.(string)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for registration-received event")
	}

	clientPriv, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generating client key: %v", err)
	}
	clientPubHex := hex.EncodeToString(clientPriv.PublicKey().Bytes())

	body, _ := json.Marshal(verifyRegistrationRequest{Registration: otp, ClientPublicKeyB16: clientPubHex})
	resp, err = http.Post(srv.URL+"/verify-registration", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("verify-registration: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify-registration status = %d", resp.StatusCode)
	}

	var result struct {
		AuthKey           string `json:"auth_key"`
		AgentPublicKeyB16 string `json:"agent_public_key_b16"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decoding verify-registration response: %v", err)
	}
	if len(result.AgentPublicKeyB16) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(result.AgentPublicKeyB16))
	}

	agentPubBytes, err := hex.DecodeString(result.AgentPublicKeyB16)
	if err != nil {
		t.Fatalf("decoding agent public key: %v", err)
	}
	agentPub, err := ecdh.X25519().NewPublicKey(agentPubBytes)
	if err != nil {
		t.Fatalf("parsing agent public key: %v", err)
	}
	shared, err := clientPriv.ECDH(agentPub)
	if err != nil {
		t.Fatalf("client ecdh: %v", err)
	}

	// The raw ECDH output is the AEAD key, same as cryptoprim.DeriveSharedSecret
	// computes server-side — no KDF in between.
	copy(secret[:], shared)
	return result.AuthKey, secret
}

func TestHandshake(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/handshake")
	if err != nil {
		t.Fatalf("GET /handshake: %v", err)
	}
	defer resp.Body.Close()
	var body map[string]any
	json.NewDecoder(resp.Body).Decode(&body)
	if body["__hoppscotch__agent__"] != true {
		t.Fatalf("unexpected handshake body: %#v", body)
	}
}

func TestPairingEndToEnd(t *testing.T) {
	srv, s := newTestServer(t)
	authKey, _ := pairOnceViaEvents(t, srv, s)
	if authKey == "" {
		t.Fatal("expected a non-empty auth_key")
	}
}

func TestDeleteRegistrationRequiresMatchingToken(t *testing.T) {
	srv, s := newTestServer(t)
	authKey, _ := pairOnceViaEvents(t, srv, s)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/registration/"+authKey, nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestCancelUnknownRequestReturnsNotFound(t *testing.T) {
	srv, s := newTestServer(t)
	authKey, _ := pairOnceViaEvents(t, srv, s)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/cancel-request/999", nil)
	req.Header.Set("Authorization", "Bearer "+authKey)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST cancel: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestRequestWithoutBearerIsUnauthorized(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Post(srv.URL+"/request", "application/octet-stream", bytes.NewReader([]byte("x")))
	if err != nil {
		t.Fatalf("POST /request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestEncryptedRequestRoundTrip(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"echo":true}`))
	}))
	defer upstream.Close()

	srv, s := newTestServer(t)
	authKey, secret := pairOnceViaEvents(t, srv, s)

	payload, _ := json.Marshal(map[string]any{
		"id":     1,
		"url":    upstream.URL,
		"method": "GET",
	})
	nonceHex, ciphertext, err := s.codec.Wrap(secret, payload)
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/request", bytes.NewReader(ciphertext))
	req.Header.Set("Authorization", "Bearer "+authKey)
	req.Header.Set(NonceHeader, nonceHex)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	respNonceHex := resp.Header.Get(NonceHeader)
	respCiphertext := make([]byte, 0)
	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		respCiphertext = append(respCiphertext, buf[:n]...)
		if err != nil {
			break
		}
	}
	respNonce, _ := hex.DecodeString(respNonceHex)
	plaintext, err := cryptoprim.Open(secret, respNonce, respCiphertext)
	if err != nil {
		t.Fatalf("decrypting response: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(plaintext, &decoded); err != nil {
		t.Fatalf("unmarshaling response: %v", err)
	}
	if decoded["status"].(float64) != 200 {
		t.Fatalf("unexpected relayed status: %v", decoded["status"])
	}
}
