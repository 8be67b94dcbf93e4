// Package cache implements C9 of spec.md: a hot in-memory LRU over a cold
// on-disk spill tier, keyed by "<bundle>:<path>". Grounded on
// tauri-plugin-appload/src/cache/store.rs's FileStore, reimplemented over
// container/list (no LRU container is wired into this stack's dependency
// set) plus an on-disk cbor index for the cold tier so restarts don't need
// to re-stat every cached file.
package cache

import (
	"container/list"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/hoppscotch/agent/internal/cryptoprim"
)

const maxHotEntries = 1000

type hotEntry struct {
	key          string
	content      []byte
	size         int
	lastAccessed time.Time
}

// coldIndexEntry is one row of the cold tier's cbor-encoded index file.
type coldIndexEntry struct {
	Key          string    `cbor:"key"`
	Filename     string    `cbor:"filename"`
	Size         int       `cbor:"size"`
	LastAccessed time.Time `cbor:"last_accessed"`
}

// Cache is the tiered store of spec.md §4.9.
type Cache struct {
	dir       string
	maxMemory int

	mu        sync.Mutex
	hotBytes  int
	hotList   *list.List // front = most recently used
	hotIndex  map[string]*list.Element
	coldIndex map[string]coldIndexEntry
}

// Open loads (or initializes) a tiered cache rooted at dir, bounded by
// maxMemory bytes of hot-tier content.
func Open(dir string, maxMemory int) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	c := &Cache{
		dir:       dir,
		maxMemory: maxMemory,
		hotList:   list.New(),
		hotIndex:  map[string]*list.Element{},
		coldIndex: map[string]coldIndexEntry{},
	}
	if err := c.loadColdIndex(); err != nil {
		return nil, err
	}
	return c, nil
}

// Stat reports the cache's current occupancy, for the doctor CLI command.
type Stats struct {
	HotBytes    int
	MaxBytes    int
	HotEntries  int
	ColdEntries int
}

func (c *Cache) Stat() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		HotBytes:    c.hotBytes,
		MaxBytes:    c.maxMemory,
		HotEntries:  c.hotList.Len(),
		ColdEntries: len(c.coldIndex),
	}
}

func (c *Cache) indexPath() string {
	return filepath.Join(c.dir, "index.cbor")
}

func (c *Cache) loadColdIndex() error {
	data, err := os.ReadFile(c.indexPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var entries []coldIndexEntry
	if err := cbor.Unmarshal(data, &entries); err != nil {
		return err
	}
	for _, e := range entries {
		c.coldIndex[e.Key] = e
	}
	return nil
}

func (c *Cache) persistColdIndexLocked() error {
	entries := make([]coldIndexEntry, 0, len(c.coldIndex))
	for _, e := range c.coldIndex {
		entries = append(entries, e)
	}
	data, err := cbor.Marshal(entries)
	if err != nil {
		return err
	}
	tmp := c.indexPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, c.indexPath())
}

func coldFilename(key string) string {
	sum := cryptoprim.Hash256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Store implements spec.md §4.9's three-branch `store` logic.
func (c *Cache) Store(key string, content []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.storeLocked(key, content)
}

func (c *Cache) storeLocked(key string, content []byte) error {
	size := len(content)

	if el, ok := c.hotIndex[key]; ok {
		entry := el.Value.(*hotEntry)
		c.hotBytes -= entry.size
		c.hotList.Remove(el)
		delete(c.hotIndex, key)
	}

	if c.hotBytes+size <= c.maxMemory && len(c.hotIndex) < maxHotEntries {
		c.insertHotLocked(key, content)
		return nil
	}

	if size > c.maxMemory {
		return c.writeColdLocked(key, content)
	}

	for c.hotList.Len() > 0 && (c.hotBytes+size > c.maxMemory || len(c.hotIndex) >= maxHotEntries) {
		victim := c.selectEvictionVictimLocked()
		entry := victim.Value.(*hotEntry)
		c.hotList.Remove(victim)
		delete(c.hotIndex, entry.key)
		c.hotBytes -= entry.size
		if err := c.writeColdLocked(entry.key, entry.content); err != nil {
			return err
		}
	}

	c.insertHotLocked(key, content)
	return nil
}

// selectEvictionVictimLocked picks the LRU tail entry, breaking ties
// between equally-old entries by evicting the larger one first. Adopted
// from tauri-plugin-appload/src/cache/policy.rs's eviction-order guidance
// (freeing more room per eviction under pressure).
func (c *Cache) selectEvictionVictimLocked() *list.Element {
	victim := c.hotList.Back()
	oldest := victim.Value.(*hotEntry).lastAccessed
	for el := victim.Prev(); el != nil; el = el.Prev() {
		entry := el.Value.(*hotEntry)
		if entry.lastAccessed.Equal(oldest) && entry.size > victim.Value.(*hotEntry).size {
			victim = el
		} else if entry.lastAccessed.Before(oldest) {
			break
		}
	}
	return victim
}

func (c *Cache) insertHotLocked(key string, content []byte) {
	entry := &hotEntry{key: key, content: content, size: len(content), lastAccessed: time.Now()}
	el := c.hotList.PushFront(entry)
	c.hotIndex[key] = el
	c.hotBytes += entry.size
	delete(c.coldIndex, key)
}

func (c *Cache) writeColdLocked(key string, content []byte) error {
	filename := coldFilename(key)
	if err := os.WriteFile(filepath.Join(c.dir, filename), content, 0o644); err != nil {
		return err
	}
	c.coldIndex[key] = coldIndexEntry{
		Key:          key,
		Filename:     filename,
		Size:         len(content),
		LastAccessed: time.Now(),
	}
	return c.persistColdIndexLocked()
}

// Get consults the hot tier, then the cold tier. A cold hit is re-inserted
// via Store, promoting it back to hot if room exists (spec.md §4.9).
func (c *Cache) Get(key string) ([]byte, bool, error) {
	c.mu.Lock()
	if el, ok := c.hotIndex[key]; ok {
		entry := el.Value.(*hotEntry)
		entry.lastAccessed = time.Now()
		c.hotList.MoveToFront(el)
		content := entry.content
		c.mu.Unlock()
		return content, true, nil
	}

	cold, ok := c.coldIndex[key]
	c.mu.Unlock()
	if !ok {
		return nil, false, nil
	}

	content, err := os.ReadFile(filepath.Join(c.dir, cold.Filename))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	c.mu.Lock()
	delete(c.coldIndex, key)
	os.Remove(filepath.Join(c.dir, cold.Filename))
	err = c.storeLocked(key, content)
	c.persistColdIndexLocked()
	c.mu.Unlock()
	if err != nil {
		return nil, false, err
	}
	return content, true, nil
}

// Clear empties both tiers.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hotList.Init()
	c.hotIndex = map[string]*list.Element{}
	c.hotBytes = 0
	for _, entry := range c.coldIndex {
		os.Remove(filepath.Join(c.dir, entry.Filename))
	}
	c.coldIndex = map[string]coldIndexEntry{}
	return c.persistColdIndexLocked()
}

// Key builds the "<bundle>:<path>" cache key of spec.md §3.
func Key(bundleName, path string) string {
	return bundleName + ":" + path
}
