// Package registration implements C2 of spec.md: the authoritative
// auth_token → Registration map, persisted across restarts, plus the
// transient single-slot active OTP used during pairing (spec.md §4.2).
//
// Grounded on the teacher's internal/relay/store.go (modernc.org/sqlite,
// WAL mode, embedded migrations) — the same persistence discipline, a
// different schema.
package registration

import (
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hoppscotch/agent/internal/cryptoprim"
	"github.com/hoppscotch/agent/internal/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Registration is the record spec.md §3 defines: {auth_token, registered_at,
// shared_secret}. SharedSecret never leaves the agent process over the wire.
type Registration struct {
	AuthToken    string
	RegisteredAt time.Time
	SharedSecret [cryptoprim.SharedSecretSize]byte
}

// ErrOTPAlreadyActive is returned by SetActiveOTP when a pairing is already
// in progress (spec.md §3: "at most one exists at a time").
var ErrOTPAlreadyActive = errors.New("registration already in progress")

// Store is the registration store of spec.md §4.2: a concurrent
// auth_token → Registration map (backed by sqlite so it survives restarts)
// plus a single writer-preferring-locked active-OTP slot.
type Store struct {
	db *sql.DB

	otpMu sync.RWMutex
	otp   *string
}

// Open opens (or creates) the sqlite-backed registration store at dsn and
// runs its migrations.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open registration db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	for _, name := range names {
		sqlBytes, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return err
		}
		if _, err := s.db.Exec(string(sqlBytes)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}
	return nil
}

// Get returns the registration for token, or ok=false if none exists.
func (s *Store) Get(token string) (Registration, bool, error) {
	row := s.db.QueryRow(
		"SELECT auth_token, registered_at, shared_secret_hex FROM registrations WHERE auth_token = ?",
		token,
	)
	reg, ok, err := scanRegistration(row.Scan)
	if err != nil {
		return Registration{}, false, err
	}
	return reg, ok, nil
}

// Insert atomically adds a new registration (used by the pairing controller,
// spec.md §4.12 step 5).
func (s *Store) Insert(reg Registration) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO registrations (auth_token, registered_at, shared_secret_hex) VALUES (?, ?, ?)",
		reg.AuthToken, reg.RegisteredAt.UTC().Format(time.RFC3339), hex.EncodeToString(reg.SharedSecret[:]),
	)
	if err != nil {
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

// Remove deletes a registration by token. Deleting an unknown token is not
// an error (idempotent, matching DELETE /registration/<auth_key> semantics).
func (s *Store) Remove(token string) error {
	_, err := s.db.Exec("DELETE FROM registrations WHERE auth_token = ?", token)
	if err != nil {
		return fmt.Errorf("remove registration: %w", err)
	}
	return nil
}

// ClearAll deletes every registration (spec.md §8 property 3).
func (s *Store) ClearAll() error {
	_, err := s.db.Exec("DELETE FROM registrations")
	if err != nil {
		return fmt.Errorf("clear registrations: %w", err)
	}
	return nil
}

// Count returns the number of live registrations (used by `agentd doctor`).
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM registrations").Scan(&n)
	return n, err
}

type scanFunc func(dest ...any) error

// scanRegistration decodes one row, discarding (with a logged warning) rows
// whose shared_secret_hex is malformed — spec.md §4.2: "corrupt entries are
// discarded with a warning and other entries preserved."
func scanRegistration(scan scanFunc) (Registration, bool, error) {
	var (
		token, registeredAt, secretHex string
	)
	err := scan(&token, &registeredAt, &secretHex)
	if errors.Is(err, sql.ErrNoRows) {
		return Registration{}, false, nil
	}
	if err != nil {
		return Registration{}, false, err
	}

	ts, err := time.Parse(time.RFC3339, registeredAt)
	if err != nil {
		logger.Warn("discarding corrupt registration row", "auth_token", token, "error", err)
		return Registration{}, false, nil
	}
	secretBytes, err := hex.DecodeString(strings.TrimSpace(secretHex))
	if err != nil || len(secretBytes) != cryptoprim.SharedSecretSize {
		logger.Warn("discarding corrupt registration row", "auth_token", token, "error", err)
		return Registration{}, false, nil
	}

	reg := Registration{AuthToken: token, RegisteredAt: ts}
	copy(reg.SharedSecret[:], secretBytes)
	return reg, true, nil
}

// --- Active OTP slot (spec.md §4.2, §4.12) ---

// SetActiveOTP stores otp as the single in-progress pairing code. Fails with
// ErrOTPAlreadyActive if one is already set.
func (s *Store) SetActiveOTP(otp string) error {
	s.otpMu.Lock()
	defer s.otpMu.Unlock()
	if s.otp != nil {
		return ErrOTPAlreadyActive
	}
	s.otp = &otp
	return nil
}

// ClearActiveOTP clears the slot. Idempotent.
func (s *Store) ClearActiveOTP() {
	s.otpMu.Lock()
	defer s.otpMu.Unlock()
	s.otp = nil
}

// ValidateOTP reports whether otp equals the currently active one.
func (s *Store) ValidateOTP(otp string) bool {
	s.otpMu.RLock()
	defer s.otpMu.RUnlock()
	return s.otp != nil && *s.otp == otp
}

// HasActiveOTP reports whether a pairing is currently in progress.
func (s *Store) HasActiveOTP() bool {
	s.otpMu.RLock()
	defer s.otpMu.RUnlock()
	return s.otp != nil
}
