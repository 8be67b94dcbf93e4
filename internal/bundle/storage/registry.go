package storage

import (
	"net/url"
	"strings"
	"time"

	"github.com/hoppscotch/agent/internal/bundle"
)

// registryDocument is the on-disk shape of registry.json (spec.md §4.8:
// "a versioned JSON document `{version: 1, servers: {..}}`").
type registryDocument struct {
	Version int                            `json:"version"`
	Servers map[string]bundle.RegistryEntry `json:"servers"`
}

func newRegistryDocument() registryDocument {
	return registryDocument{Version: 1, Servers: map[string]bundle.RegistryEntry{}}
}

// NormalizeOrigin forces an https scheme when absent, strips a trailing
// slash, and lowercases the host — the last rule is adopted from
// tauri-plugin-appload/src/storage/registry.rs, which the distilled spec
// doesn't mention but the original source applies unconditionally.
func NormalizeOrigin(origin string) (string, error) {
	if !strings.Contains(origin, "://") {
		origin = "https://" + origin
	}
	u, err := url.Parse(origin)
	if err != nil {
		return "", err
	}
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String(), nil
}

func touchedEntry(prev bundle.RegistryEntry, bundleName, version string, now time.Time) bundle.RegistryEntry {
	created := prev.CreatedAt
	if created.IsZero() {
		created = now
	}
	return bundle.RegistryEntry{
		BundleName:   bundleName,
		Version:      version,
		CreatedAt:    created,
		LastAccessed: now,
	}
}
