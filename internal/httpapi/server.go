// Package httpapi implements C6 of spec.md: the loopback-only HTTP surface
// binding every other component together — route table from spec.md §4.6,
// adapted from the teacher's internal/transport/server.go (ServeMux +
// writeJSON/writeError helpers, graceful shutdown via context).
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"

	"github.com/hoppscotch/agent/internal/cancelreg"
	"github.com/hoppscotch/agent/internal/codec"
	"github.com/hoppscotch/agent/internal/cryptoprim"
	"github.com/hoppscotch/agent/internal/events"
	"github.com/hoppscotch/agent/internal/logger"
	"github.com/hoppscotch/agent/internal/pairing"
	"github.com/hoppscotch/agent/internal/registration"
	"github.com/hoppscotch/agent/internal/relayengine"
	"github.com/hoppscotch/agent/internal/relayerr"
)

// NonceHeader is re-exported from codec for callers constructing requests.
const NonceHeader = codec.NonceHeader

// AgentVersion is surfaced in the handshake response.
const AgentVersion = "0.1.0"

// Server is the loopback HTTP surface of spec.md §4.6.
type Server struct {
	store   *registration.Store
	codec   *codec.Codec
	pairing *pairing.Controller
	cancels *cancelreg.Registry
	bus     *events.Bus
	limiter *tokenLimiter
}

// New builds the server.
func New(store *registration.Store, bus *events.Bus) *Server {
	return &Server{
		store:   store,
		codec:   codec.New(store),
		pairing: pairing.New(store, bus),
		cancels: cancelreg.New(),
		bus:     bus,
		limiter: newTokenLimiter(20, 40),
	}
}

// ListenAndServe binds loopback-only on port and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return fmt.Errorf("listen on loopback:%d: %w", port, err)
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)
	handler := withCORS(mux)

	srv := &http.Server{Handler: handler}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /handshake", s.handleHandshake)
	mux.HandleFunc("POST /receive-registration", s.handleReceiveRegistration)
	mux.HandleFunc("POST /verify-registration", s.handleVerifyRegistration)
	mux.HandleFunc("GET /registered-handshake", s.handleRegisteredHandshake)
	mux.HandleFunc("GET /registration", s.handleGetRegistration)
	mux.HandleFunc("DELETE /registration/{auth_key}", s.handleDeleteRegistration)
	mux.HandleFunc("POST /request", s.handleRequest)
	mux.HandleFunc("POST /cancel-request/{id}", s.handleCancelRequest)
	mux.HandleFunc("GET /events", s.handleEvents)
}

// withCORS implements spec.md §4.6's permissive CORS: the browser origin
// calling this agent is always external, and the channel is secured by
// per-registration encryption rather than by same-origin policy.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+NonceHeader)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- handlers ---

func (s *Server) handleHandshake(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":                "ok",
		"__hoppscotch__agent__": true,
		"agent_version":         AgentVersion,
	})
}

func (s *Server) handleReceiveRegistration(w http.ResponseWriter, r *http.Request) {
	_, alreadyActive, err := s.pairing.ReceiveRegistration()
	if err != nil {
		writeRelayError(w, err)
		return
	}
	if alreadyActive {
		writeJSON(w, http.StatusOK, map[string]string{"message": "registration already in progress"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "registration received"})
}

type verifyRegistrationRequest struct {
	Registration       string `json:"registration"`
	ClientPublicKeyB16 string `json:"client_public_key_b16"`
}

func (s *Server) handleVerifyRegistration(w http.ResponseWriter, r *http.Request) {
	var req verifyRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRelayError(w, relayerr.New(relayerr.KindBadRequest, "malformed json body"))
		return
	}
	result, err := s.pairing.VerifyRegistration(req.Registration, req.ClientPublicKeyB16)
	if err != nil {
		writeRelayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRegisteredHandshake(w http.ResponseWriter, r *http.Request) {
	secret, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	s.writeEncrypted(w, secret, true)
}

// MaskedRegistration omits the shared secret (spec.md §4.6: "encrypted
// MaskedRegistration").
type MaskedRegistration struct {
	AuthKey      string    `json:"auth_key"`
	RegisteredAt time.Time `json:"registered_at"`
}

func (s *Server) handleGetRegistration(w http.ResponseWriter, r *http.Request) {
	token, ok := extractBearer(r)
	if !ok {
		writeRelayError(w, relayerr.Unauthorized())
		return
	}
	reg, found, err := s.store.Get(token)
	if err != nil || !found {
		writeRelayError(w, relayerr.Unauthorized())
		return
	}
	s.writeEncrypted(w, reg.SharedSecret, MaskedRegistration{AuthKey: reg.AuthToken, RegisteredAt: reg.RegisteredAt})
}

func (s *Server) handleDeleteRegistration(w http.ResponseWriter, r *http.Request) {
	token, ok := extractBearer(r)
	if !ok || token != r.PathValue("auth_key") {
		writeRelayError(w, relayerr.Unauthorized())
		return
	}
	if err := s.store.Remove(token); err != nil {
		writeRelayError(w, relayerr.Wrap(relayerr.KindInternal, "removing registration", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "registration removed"})
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	token, ok := extractBearer(r)
	if !ok {
		writeRelayError(w, relayerr.Unauthorized())
		return
	}
	if !s.limiter.Allow(token) {
		writeRelayError(w, relayerr.New(relayerr.KindBadRequest, "rate limit exceeded"))
		return
	}

	nonceHex := r.Header.Get(NonceHeader)
	ciphertext, err := readAll(r)
	if err != nil {
		writeRelayError(w, relayerr.Unauthorized())
		return
	}
	plaintext, secret, err := s.codec.Unwrap(token, nonceHex, ciphertext)
	if err != nil {
		writeRelayError(w, err)
		return
	}

	req, err := relayengine.DecodeRequest(plaintext)
	if err != nil {
		s.writeEncryptedError(w, secret, err)
		return
	}

	flag := s.cancels.Register(req.ID)
	defer s.cancels.Remove(req.ID)

	resp, err := relayengine.Execute(r.Context(), flag, req, func(st relayengine.State) {
		s.bus.Publish(events.Event{Kind: "request-state", Data: map[string]any{"id": req.ID, "state": st}})
	})
	if err != nil {
		s.writeEncryptedError(w, secret, err)
		return
	}
	s.writeEncrypted(w, secret, resp)
}

func (s *Server) handleCancelRequest(w http.ResponseWriter, r *http.Request) {
	token, ok := extractBearer(r)
	if !ok {
		writeRelayError(w, relayerr.Unauthorized())
		return
	}
	if !s.limiter.Allow(token) {
		writeRelayError(w, relayerr.New(relayerr.KindBadRequest, "rate limit exceeded"))
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeRelayError(w, relayerr.New(relayerr.KindRequestNotFound, "malformed request id"))
		return
	}
	if !s.cancels.Trip(id) {
		writeRelayError(w, relayerr.New(relayerr.KindRequestNotFound, "no in-flight request with that id"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Request cancelled successfully"})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if _, ok := extractBearer(r); !ok {
		writeRelayError(w, relayerr.Unauthorized())
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	ch, unsubscribe := s.bus.Subscribe(16)
	defer unsubscribe()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				return
			}
		}
	}
}

// --- helpers ---

func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) ([cryptoprim.SharedSecretSize]byte, bool) {
	var zero [cryptoprim.SharedSecretSize]byte
	token, ok := extractBearer(r)
	if !ok {
		writeRelayError(w, relayerr.Unauthorized())
		return zero, false
	}
	reg, found, err := s.store.Get(token)
	if err != nil || !found {
		writeRelayError(w, relayerr.Unauthorized())
		return zero, false
	}
	return reg.SharedSecret, true
}

func (s *Server) writeEncrypted(w http.ResponseWriter, secret [cryptoprim.SharedSecretSize]byte, v any) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		writeRelayError(w, relayerr.Wrap(relayerr.KindInternal, "marshaling response", err))
		return
	}
	nonceHex, ciphertext, err := s.codec.Wrap(secret, plaintext)
	if err != nil {
		writeRelayError(w, relayerr.Wrap(relayerr.KindInternal, "encrypting response", err))
		return
	}
	w.Header().Set(NonceHeader, nonceHex)
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(ciphertext)
}

// writeEncryptedError encrypts a structured RelayError under secret —
// every /request failure after the body has been decrypted, except
// Unauthorized, travels this way, since the caller already holds the
// shared secret (spec.md §7). Failures before decryption (missing bearer,
// rate limit, bad nonce) are written as plaintext JSON.
func (s *Server) writeEncryptedError(w http.ResponseWriter, secret [cryptoprim.SharedSecretSize]byte, err error) {
	re, ok := relayerr.As(err)
	if !ok {
		re = relayerr.Wrap(relayerr.KindInternal, "unexpected error", err)
	}
	if re.Kind == relayerr.KindUnauthorized {
		writeRelayError(w, re)
		return
	}
	s.writeEncrypted(w, secret, map[string]any{
		"kind":    re.Kind,
		"message": re.Message,
		"feature": re.Feature,
		"relay":   re.Relay,
		"phase":   re.Phase,
	})
}

func extractBearer(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) <= len(prefix) || h[:len(prefix)] != prefix {
		return "", false
	}
	token := h[len(prefix):]
	if token == "" {
		return "", false
	}
	return token, true
}

func readAll(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeRelayError(w http.ResponseWriter, err error) {
	re, ok := relayerr.As(err)
	if !ok {
		re = relayerr.Wrap(relayerr.KindInternal, "internal error", err)
	}
	writeJSON(w, re.Kind.HTTPStatus(), map[string]string{
		"kind":    string(re.Kind),
		"message": re.Message,
	})
}
