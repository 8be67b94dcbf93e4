package cache

import (
	"bytes"
	"testing"
)

func TestStoreThenGetFromHotTier(t *testing.T) {
	c, err := Open(t.TempDir(), 1024)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := c.Store("bundle:index.html", []byte("<html></html>")); err != nil {
		t.Fatalf("Store: %v", err)
	}
	content, ok, err := c.Get("bundle:index.html")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok || !bytes.Equal(content, []byte("<html></html>")) {
		t.Fatalf("unexpected content: ok=%v content=%q", ok, content)
	}
}

func TestGetMissingKeyReportsNotFound(t *testing.T) {
	c, err := Open(t.TempDir(), 1024)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_, ok, err := c.Get("bundle:missing.js")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected miss")
	}
}

func TestOversizedContentGoesColdOnly(t *testing.T) {
	c, err := Open(t.TempDir(), 8)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	big := bytes.Repeat([]byte("x"), 64)
	if err := c.Store("bundle:big.bin", big); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if _, hot := c.hotIndex["bundle:big.bin"]; hot {
		t.Fatal("expected oversized content to bypass the hot tier")
	}
	content, ok, err := c.Get("bundle:big.bin")
	if err != nil || !ok || !bytes.Equal(content, big) {
		t.Fatalf("expected cold hit to round-trip: ok=%v err=%v", ok, err)
	}
}

func TestEvictionMakesRoomForNewEntry(t *testing.T) {
	c, err := Open(t.TempDir(), 16)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := c.Store("bundle:a", bytes.Repeat([]byte("a"), 10)); err != nil {
		t.Fatalf("Store a: %v", err)
	}
	if err := c.Store("bundle:b", bytes.Repeat([]byte("b"), 10)); err != nil {
		t.Fatalf("Store b: %v", err)
	}
	// a should have been evicted to cold to make room for b.
	if _, ok := c.hotIndex["bundle:a"]; ok {
		t.Fatal("expected bundle:a evicted from hot tier")
	}
	content, ok, err := c.Get("bundle:a")
	if err != nil || !ok || string(content) != "aaaaaaaaaa" {
		t.Fatalf("expected evicted entry retrievable from cold tier: ok=%v err=%v", ok, err)
	}
}

func TestClearEmptiesBothTiers(t *testing.T) {
	c, err := Open(t.TempDir(), 1024)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := c.Store("bundle:x", []byte("data")); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := c.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok, _ := c.Get("bundle:x"); ok {
		t.Fatal("expected cache empty after Clear")
	}
}

func TestHotTierNeverExceedsMaxMemory(t *testing.T) {
	c, err := Open(t.TempDir(), 20)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < 5; i++ {
		key := Key("bundle", string(rune('a'+i)))
		if err := c.Store(key, bytes.Repeat([]byte("z"), 8)); err != nil {
			t.Fatalf("Store %d: %v", i, err)
		}
		if c.hotBytes > 20 {
			t.Fatalf("hot tier exceeded max_memory: %d", c.hotBytes)
		}
	}
}
