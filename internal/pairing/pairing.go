// Package pairing implements C12 of spec.md: OTP generation, the
// receive-registration/verify-registration handshake, and the events it
// emits to the host shell.
package pairing

import (
	"crypto/ecdh"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hoppscotch/agent/internal/cryptoprim"
	"github.com/hoppscotch/agent/internal/events"
	"github.com/hoppscotch/agent/internal/registration"
	"github.com/hoppscotch/agent/internal/relayerr"
)

// VerifiedRegistration is the plaintext response of spec.md §4.12 step 8 —
// the one unencrypted message in the whole protocol that carries the
// agent's ECDH public key.
type VerifiedRegistration struct {
	AuthKey           string    `json:"auth_key"`
	CreatedAt         time.Time `json:"created_at"`
	AgentPublicKeyB16 string    `json:"agent_public_key_b16"`
}

// Controller drives the pairing handshake (spec.md §4.12).
type Controller struct {
	store *registration.Store
	bus   *events.Bus
}

func New(store *registration.Store, bus *events.Bus) *Controller {
	return &Controller{store: store, bus: bus}
}

// GenerateOTP draws a 6-digit zero-padded code uniformly from [0, 1_000_000).
func GenerateOTP() (string, error) {
	n, err := cryptoprim.RandomUint32Below(1_000_000)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n), nil
}

// ReceiveRegistration implements spec.md §4.12's "receive-registration"
// step. alreadyActive is true when a pairing was already in progress —
// the caller still returns 200 in that case (spec.md §4.6), just with a
// different message.
func (c *Controller) ReceiveRegistration() (otp string, alreadyActive bool, err error) {
	otp, err = GenerateOTP()
	if err != nil {
		return "", false, relayerr.Wrap(relayerr.KindInternal, "generating otp", err)
	}
	if setErr := c.store.SetActiveOTP(otp); setErr != nil {
		return "", true, nil
	}
	c.bus.Publish(events.Event{Kind: "registration-received", Data: otp})
	return otp, false, nil
}

// VerifyRegistration implements spec.md §4.12's "verify-registration" step.
func (c *Controller) VerifyRegistration(submittedOTP, clientPublicKeyB16 string) (VerifiedRegistration, error) {
	if !c.store.ValidateOTP(submittedOTP) {
		return VerifiedRegistration{}, relayerr.New(relayerr.KindInvalidRegistration, "OTP mismatch")
	}

	clientPub, err := hex.DecodeString(clientPublicKeyB16)
	if err != nil || len(clientPub) != cryptoprim.SharedSecretSize {
		return VerifiedRegistration{}, relayerr.New(relayerr.KindInvalidClientPublicKey, "malformed client public key")
	}

	agentPriv, err := cryptoprim.GenerateEphemeral()
	if err != nil {
		return VerifiedRegistration{}, relayerr.Wrap(relayerr.KindInternal, "generating ephemeral key", err)
	}
	sharedSecret, err := cryptoprim.DeriveSharedSecret(agentPriv, clientPub)
	if err != nil {
		return VerifiedRegistration{}, relayerr.New(relayerr.KindInvalidClientPublicKey, "malformed client public key")
	}

	authKey := uuid.NewString()
	now := time.Now().UTC()
	if err := c.store.Insert(registration.Registration{
		AuthToken:    authKey,
		RegisteredAt: now,
		SharedSecret: sharedSecret,
	}); err != nil {
		return VerifiedRegistration{}, relayerr.Wrap(relayerr.KindInternal, "persisting registration", err)
	}

	c.bus.Publish(events.Event{Kind: "authenticated", Data: map[string]any{
		"auth_key":   authKey,
		"created_at": now,
	}})
	c.store.ClearActiveOTP()

	agentPub := ecdhPublicKeyBytes(agentPriv)
	return VerifiedRegistration{
		AuthKey:           authKey,
		CreatedAt:         now,
		AgentPublicKeyB16: hex.EncodeToString(agentPub),
	}, nil
}

func ecdhPublicKeyBytes(priv *ecdh.PrivateKey) []byte {
	return priv.PublicKey().Bytes()
}
