package loader

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/hoppscotch/agent/internal/bundle"
	"github.com/hoppscotch/agent/internal/bundle/cache"
	"github.com/hoppscotch/agent/internal/bundle/storage"
	"github.com/hoppscotch/agent/internal/bundle/verify"
)

// Loader implements spec.md §4.10's load_bundle orchestration.
type Loader struct {
	store *storage.Store
	cache *cache.Cache
}

func New(store *storage.Store, c *cache.Cache) *Loader {
	return &Loader{store: store, cache: c}
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// deriveBundleName builds a deterministic storage name from an origin: the
// lowercase host with non-alphanumeric characters replaced by underscore
// and trailing underscores trimmed (spec.md §4.10 step 6).
func deriveBundleName(origin string) (string, error) {
	normalized, err := storage.NormalizeOrigin(origin)
	if err != nil {
		return "", err
	}
	host := normalized
	if idx := strings.Index(normalized, "://"); idx != -1 {
		host = normalized[idx+3:]
	}
	host = strings.ToLower(host)
	name := nonAlnum.ReplaceAllString(host, "_")
	return strings.TrimRight(name, "_"), nil
}

// LoadBundle runs spec.md §4.10's full fetch/verify/store/cache pipeline
// for origin and returns its verified files.
func (l *Loader) LoadBundle(ctx context.Context, origin string) (bundle.VerifiedBundle, error) {
	normalizedOrigin, err := storage.NormalizeOrigin(origin)
	if err != nil {
		return bundle.VerifiedBundle{}, fmt.Errorf("normalizing origin: %w", err)
	}
	client := NewClient(normalizedOrigin)

	metadata, err := client.FetchManifest(ctx)
	if err != nil {
		return bundle.VerifiedBundle{}, fmt.Errorf("fetching manifest: %w", err)
	}

	bundleName, err := deriveBundleName(origin)
	if err != nil {
		return bundle.VerifiedBundle{}, fmt.Errorf("deriving bundle name: %w", err)
	}

	var archiveBytes []byte
	entry, found, err := l.store.GetBundleEntry(origin)
	if err != nil {
		return bundle.VerifiedBundle{}, fmt.Errorf("reading storage entry: %w", err)
	}

	switch {
	case found && entry.Version == metadata.Version:
		archiveBytes, err = l.store.LoadBundle(entry.BundleName)
		if err != nil {
			archiveBytes = nil // missing on disk: fall through to download
		}
	case found:
		if err := l.store.DeleteBundle(entry.BundleName, origin); err != nil {
			return bundle.VerifiedBundle{}, fmt.Errorf("removing stale bundle: %w", err)
		}
	}

	var verified bundle.VerifiedBundle
	if archiveBytes != nil {
		// A version-matching local copy was already verified when it was
		// first downloaded (spec.md §4.10 step 2: skip straight to step 5).
		// Re-verifying here would make a cached bundle unservable whenever
		// the bundle server's /api/v1/key endpoint happens to be unreachable.
		verified, err = verify.Trust(archiveBytes, metadata)
		if err != nil {
			return bundle.VerifiedBundle{}, err
		}
	} else {
		archiveBytes, err = client.DownloadBundle(ctx)
		if err != nil {
			return bundle.VerifiedBundle{}, fmt.Errorf("downloading bundle: %w", err)
		}

		publicKey, err := client.FetchKey(ctx)
		if err != nil {
			return bundle.VerifiedBundle{}, fmt.Errorf("fetching server key: %w", err)
		}

		verified, err = verify.Verify(archiveBytes, metadata, publicKey)
		if err != nil {
			return bundle.VerifiedBundle{}, err
		}

		if err := l.store.StoreBundle(bundleName, origin, metadata.Version, archiveBytes); err != nil {
			return bundle.VerifiedBundle{}, fmt.Errorf("persisting bundle: %w", err)
		}
	}

	if err := l.cacheBundle(bundleName, verified); err != nil {
		return bundle.VerifiedBundle{}, fmt.Errorf("caching bundle files: %w", err)
	}

	return verified, nil
}

// cacheBundle clears the hot tier before inserting every file of a newly
// loaded bundle, guaranteeing old bundle contents cannot shadow new
// contents (spec.md §4.9).
func (l *Loader) cacheBundle(bundleName string, verified bundle.VerifiedBundle) error {
	if err := l.cache.Clear(); err != nil {
		return err
	}
	for path, content := range verified.Files {
		if err := l.cache.Store(cache.Key(bundleName, path), content); err != nil {
			return err
		}
	}
	return nil
}
