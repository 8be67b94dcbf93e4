// Package storage implements C8 of spec.md: persisted bundle archives plus
// a registry mapping normalized origin URLs to the stored bundle they
// resolve to, grounded on tauri-plugin-appload/src/storage/{manager,registry}.rs
// and the teacher's atomic-rename update flow in cmd/wt/update.go.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/hoppscotch/agent/internal/bundle"
	"github.com/hoppscotch/agent/internal/relayerr"
)

// Store owns the on-disk layout described in spec.md §4.8:
//
//	<root>/bundles/<name>.zip
//	<root>/cache/                 (owned by C9)
//	<root>/temp/<name>.tmp
//	<root>/key/
//	<root>/registry.json
type Store struct {
	root string

	mu  sync.Mutex
	doc registryDocument
}

// Open loads (or initializes) the store rooted at root, creating the
// directory layout if absent.
func Open(root string) (*Store, error) {
	for _, dir := range []string{"bundles", "cache", "temp", "key"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	s := &Store{root: root}
	doc, err := s.loadRegistry()
	if err != nil {
		return nil, err
	}
	s.doc = doc
	return s, nil
}

func (s *Store) loadRegistry() (registryDocument, error) {
	path := filepath.Join(s.root, "registry.json")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return newRegistryDocument(), nil
	}
	if err != nil {
		return registryDocument{}, fmt.Errorf("reading registry: %w", err)
	}
	var doc registryDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return registryDocument{}, relayerr.Wrap(relayerr.KindRegistry, "malformed registry.json", err)
	}
	if doc.Servers == nil {
		doc.Servers = map[string]bundle.RegistryEntry{}
	}
	return doc, nil
}

func (s *Store) persistRegistryLocked() error {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling registry: %w", err)
	}
	path := filepath.Join(s.root, "registry.json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing registry temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing registry.json: %w", err)
	}
	return nil
}

// StoreBundle writes bundleBytes to a temp file, checks available disk
// space, atomically renames it into bundles/, and updates the registry to
// point origin at {name, version, now, now} (spec.md §4.8).
func (s *Store) StoreBundle(name, origin, version string, bundleBytes []byte) error {
	if name == "" {
		name = uuid.NewString()
	}

	tempPath := filepath.Join(s.root, "temp", name+".tmp")
	if err := os.WriteFile(tempPath, bundleBytes, 0o644); err != nil {
		return fmt.Errorf("writing temp bundle: %w", err)
	}

	available, err := availableBytes(s.root)
	if err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("checking disk space: %w", err)
	}
	required := uint64(len(bundleBytes))
	if required > available {
		os.Remove(tempPath)
		return relayerr.StorageFull(required, available)
	}

	finalPath := filepath.Join(s.root, "bundles", name+".zip")
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("moving bundle into place: %w", err)
	}

	normalized, err := NormalizeOrigin(origin)
	if err != nil {
		return fmt.Errorf("normalizing origin: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	s.doc.Servers[normalized] = touchedEntry(s.doc.Servers[normalized], name, version, now)
	return s.persistRegistryLocked()
}

// LoadBundle reads the archive bytes stored under name. The loader treats
// any returned error, a missing file included, as "proceed to download"
// (spec.md §4.10 step 2).
func (s *Store) LoadBundle(name string) ([]byte, error) {
	return os.ReadFile(filepath.Join(s.root, "bundles", name+".zip"))
}

// GetBundleEntry normalizes origin and returns its registry entry, if any.
func (s *Store) GetBundleEntry(origin string) (bundle.RegistryEntry, bool, error) {
	normalized, err := NormalizeOrigin(origin)
	if err != nil {
		return bundle.RegistryEntry{}, false, fmt.Errorf("normalizing origin: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.doc.Servers[normalized]
	return entry, ok, nil
}

// Count reports how many origins currently have a stored bundle, for the
// doctor CLI command.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.doc.Servers)
}

// DeleteBundle removes name's archive file (if present) and origin's
// registry entry.
func (s *Store) DeleteBundle(name, origin string) error {
	if name != "" {
		if err := os.Remove(filepath.Join(s.root, "bundles", name+".zip")); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing bundle archive: %w", err)
		}
	}
	normalized, err := NormalizeOrigin(origin)
	if err != nil {
		return fmt.Errorf("normalizing origin: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.doc.Servers, normalized)
	return s.persistRegistryLocked()
}

// RequiredSpaceMessage renders a StorageFull-style human-readable summary
// of a space shortfall. No caller in this repository uses it;
// relayerr.StorageFull itself reports raw byte counts.
func RequiredSpaceMessage(required, available uint64) string {
	return fmt.Sprintf("need %s, %s available", humanize.Bytes(required), humanize.Bytes(available))
}
