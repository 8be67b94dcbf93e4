package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hoppscotch/agent/internal/relayerr"
)

func TestStoreBundleThenGetEntry(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.StoreBundle("demo", "Example.com/", "1.0.0", []byte("zipbytes")); err != nil {
		t.Fatalf("StoreBundle: %v", err)
	}

	entry, ok, err := s.GetBundleEntry("example.com")
	if err != nil {
		t.Fatalf("GetBundleEntry: %v", err)
	}
	if !ok {
		t.Fatal("expected entry to exist")
	}
	if entry.BundleName != "demo" || entry.Version != "1.0.0" {
		t.Fatalf("unexpected entry: %#v", entry)
	}

	data, err := s.LoadBundle("demo")
	if err != nil {
		t.Fatalf("LoadBundle: %v", err)
	}
	if string(data) != "zipbytes" {
		t.Fatalf("unexpected bundle contents: %q", data)
	}
}

func TestStoreBundlePersistsAcrossReopen(t *testing.T) {
	root := t.TempDir()
	s, err := Open(root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.StoreBundle("demo", "https://example.com", "2.0.0", []byte("data")); err != nil {
		t.Fatalf("StoreBundle: %v", err)
	}

	s2, err := Open(root)
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	entry, ok, err := s2.GetBundleEntry("https://example.com")
	if err != nil || !ok {
		t.Fatalf("expected persisted entry: ok=%v err=%v", ok, err)
	}
	if entry.Version != "2.0.0" {
		t.Fatalf("unexpected version after reopen: %q", entry.Version)
	}
}

func TestDeleteBundleRemovesArchiveAndEntry(t *testing.T) {
	root := t.TempDir()
	s, err := Open(root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.StoreBundle("demo", "https://example.com", "1.0.0", []byte("data")); err != nil {
		t.Fatalf("StoreBundle: %v", err)
	}
	if err := s.DeleteBundle("demo", "https://example.com"); err != nil {
		t.Fatalf("DeleteBundle: %v", err)
	}
	if _, ok, _ := s.GetBundleEntry("https://example.com"); ok {
		t.Fatal("expected entry removed")
	}
	if _, err := os.Stat(filepath.Join(root, "bundles", "demo.zip")); !os.IsNotExist(err) {
		t.Fatalf("expected archive removed, stat err = %v", err)
	}
}

func TestMissingRegistryFileYieldsEmptyRegistry(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok, _ := s.GetBundleEntry("https://nothing.example"); ok {
		t.Fatal("expected no entries in a fresh store")
	}
}

func TestMalformedRegistryFileFailsWithRegistryKind(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"bundles", "cache", "temp", "key"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(root, "registry.json"), []byte("not json"), 0o644); err != nil {
		t.Fatalf("writing malformed registry: %v", err)
	}

	_, err := Open(root)
	if err == nil {
		t.Fatal("expected an error for malformed registry.json")
	}
	if re, ok := relayerr.As(err); !ok || re.Kind != relayerr.KindRegistry {
		t.Fatalf("expected KindRegistry, got %v", err)
	}
}

func TestNormalizeOriginLowercasesHostAndTrimsSlash(t *testing.T) {
	got, err := NormalizeOrigin("HTTPS://Example.COM/")
	if err != nil {
		t.Fatalf("NormalizeOrigin: %v", err)
	}
	if got != "https://example.com" {
		t.Fatalf("got %q", got)
	}
}

func TestNormalizeOriginDefaultsScheme(t *testing.T) {
	got, err := NormalizeOrigin("example.com")
	if err != nil {
		t.Fatalf("NormalizeOrigin: %v", err)
	}
	if got != "https://example.com" {
		t.Fatalf("got %q", got)
	}
}
