// Package relayerr implements the error taxonomy of spec.md §7: a closed
// set of error kinds shared by the relay engine, the HTTP surface, and the
// bundle loader, each mapped to an HTTP status and a safe, generic message
// at the boundary (the agent never reveals cryptographic detail to callers).
package relayerr

import (
	"errors"
	"fmt"
)

// Kind is one of the taxonomy entries in spec.md §7.
type Kind string

const (
	KindUnauthorized           Kind = "unauthorized"
	KindInvalidRegistration    Kind = "invalid_registration"
	KindInvalidClientPublicKey Kind = "invalid_client_public_key"
	KindRequestNotFound        Kind = "request_not_found"
	KindBadRequest             Kind = "bad_request"
	KindUnsupportedFeature     Kind = "unsupported_feature"
	KindNetwork                Kind = "network"
	KindTimeout                Kind = "timeout"
	KindCertificate            Kind = "certificate"
	KindParse                  Kind = "parse"
	KindAbort                  Kind = "abort"
	KindInternal               Kind = "internal_server_error"

	KindInvalidSignature Kind = "invalid_signature"
	KindInvalidHash      Kind = "invalid_hash"
	KindInvalidKeyFormat Kind = "invalid_key_format"
	KindInvalidKeyLength Kind = "invalid_key_length"
	KindKeyValidation    Kind = "key_validation"
	KindStorageFull      Kind = "storage_full"
	KindRegistry         Kind = "registry"
)

// HTTPStatus returns the status code spec.md §7's table assigns to a kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindUnauthorized:
		return 401
	case KindInvalidRegistration, KindInvalidClientPublicKey, KindBadRequest:
		return 400
	case KindRequestNotFound:
		return 404
	case KindInternal:
		return 500
	case KindInvalidSignature, KindInvalidHash, KindInvalidKeyFormat, KindInvalidKeyLength, KindKeyValidation, KindStorageFull, KindRegistry:
		return 500
	default:
		// UnsupportedFeature/Network/Timeout/Certificate/Parse/Abort are
		// structured errors carried in an encrypted 200 response body
		// (spec.md §7 "Structured") rather than surfaced as HTTP status codes.
		return 200
	}
}

// RelayError is the concrete error type every component in this repo that
// can fail with a taxonomy kind returns or wraps.
type RelayError struct {
	Kind    Kind
	Message string
	Cause   string // preserved diagnostic detail, never echoed to the caller directly
	Phase   string // set only for KindTimeout; the relay engine always sets "execution" and does not tell connect, TLS and response timeouts apart
	Feature string // set only for KindUnsupportedFeature
	Relay   bool   // set only for KindUnsupportedFeature: true if the desktop shell must act

	// Expected/Actual are set only for the bundle verifier's InvalidHash case.
	Expected string
	Actual   string
}

func (e *RelayError) Error() string {
	if e.Cause != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func New(kind Kind, message string) *RelayError {
	return &RelayError{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *RelayError {
	re := &RelayError{Kind: kind, Message: message}
	if cause != nil {
		re.Cause = cause.Error()
	}
	return re
}

func Unauthorized() *RelayError {
	// Generic body per spec.md §7: the agent never reveals which step failed.
	return &RelayError{Kind: KindUnauthorized, Message: "unauthorized"}
}

func Timeout(message, phase string) *RelayError {
	return &RelayError{Kind: KindTimeout, Message: message, Phase: phase}
}

func UnsupportedFeature(feature, message string, relay bool) *RelayError {
	return &RelayError{Kind: KindUnsupportedFeature, Message: message, Feature: feature, Relay: relay}
}

func Abort(message string) *RelayError {
	return &RelayError{Kind: KindAbort, Message: message}
}

// InvalidHash reports a per-file BLAKE3 mismatch during bundle verification.
func InvalidHash(path, expected, actual string) *RelayError {
	return &RelayError{
		Kind:     KindInvalidHash,
		Message:  fmt.Sprintf("hash mismatch for %s", path),
		Expected: expected,
		Actual:   actual,
	}
}

// StorageFull reports insufficient disk space to persist a bundle.
func StorageFull(requiredBytes, availableBytes uint64) *RelayError {
	return &RelayError{
		Kind:    KindStorageFull,
		Message: fmt.Sprintf("need %d bytes, %d available", requiredBytes, availableBytes),
	}
}

// As reports whether err (or something it wraps) is a *RelayError, mirroring
// the errors.As contract so callers can branch on Kind.
func As(err error) (*RelayError, bool) {
	var re *RelayError
	ok := errors.As(err, &re)
	return re, ok
}
