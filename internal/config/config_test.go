package config

import (
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	def := Defaults()
	if cfg.ListenPort != def.ListenPort {
		t.Errorf("ListenPort = %d, want %d", cfg.ListenPort, def.ListenPort)
	}
	if cfg.MaxBundleSize != def.MaxBundleSize {
		t.Errorf("MaxBundleSize = %d, want %d", cfg.MaxBundleSize, def.MaxBundleSize)
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	cfg := Defaults()
	cfg.ListenPort = 9200
	cfg.ContentSecurityPolicy = "default-src 'self'"

	if err := Save(dir, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.ListenPort != 9200 {
		t.Errorf("ListenPort = %d, want 9200", loaded.ListenPort)
	}
	if loaded.ContentSecurityPolicy != "default-src 'self'" {
		t.Errorf("ContentSecurityPolicy = %q", loaded.ContentSecurityPolicy)
	}
}

func TestLoadPartialOverlayKeepsOtherDefaults(t *testing.T) {
	dir := t.TempDir()
	// Only override log level; everything else should remain default.
	if err := Save(dir, Config{LogLevel: "debug"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.ListenPort != Defaults().ListenPort {
		// Every Config field is omitempty, so Save() wrote only log_level;
		// Load's json.Unmarshal overlay leaves the default ListenPort alone.
		t.Errorf("ListenPort = %d, want %d (absent from file, default kept)", cfg.ListenPort, Defaults().ListenPort)
	}
	_ = filepath.Join(dir, "agent.json")
}
