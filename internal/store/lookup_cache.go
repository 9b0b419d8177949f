package store

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"os"
)

// LookupCache is a persistent string→string map, used for lookups that are
// expensive to repeat (channel name→ID, user ID→display name). Changes stay
// in memory until Save.
type LookupCache struct {
	path    string
	entries map[string]string
	dirty   bool
}

// LoadLookupCache reads the cache at path. A missing or corrupt file starts
// an empty cache.
func LoadLookupCache(ctx context.Context, path string) *LookupCache {
	entries := map[string]string{}
	if err := ReadJSON(path, &entries); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.WarnContext(ctx, "lookup cache unreadable, starting empty", "path", path, "error", err)
		}
		entries = map[string]string{}
	}
	return &LookupCache{path: path, entries: entries}
}

// NewMemoryCache returns a cache that is never persisted.
func NewMemoryCache(entries map[string]string) *LookupCache {
	c := &LookupCache{entries: map[string]string{}}
	maps.Copy(c.entries, entries)
	return c
}

func (c *LookupCache) Get(key string) (string, bool) {
	v, ok := c.entries[key]
	return v, ok
}

func (c *LookupCache) Put(key, value string) {
	if old, ok := c.entries[key]; ok && old == value {
		return
	}
	c.entries[key] = value
	c.dirty = true
}

// Evict drops a stale entry. Reports whether the key was present.
func (c *LookupCache) Evict(key string) bool {
	if _, ok := c.entries[key]; !ok {
		return false
	}
	delete(c.entries, key)
	c.dirty = true
	return true
}

func (c *LookupCache) Len() int {
	return len(c.entries)
}

func (c *LookupCache) Snapshot() map[string]string {
	return maps.Clone(c.entries)
}

// Save persists pending changes. It is a no-op for memory caches or when
// nothing changed.
func (c *LookupCache) Save() error {
	if c.path == "" || !c.dirty {
		return nil
	}
	if err := WriteJSON(c.path, c.entries, filePerms); err != nil {
		return err
	}
	c.dirty = false
	return nil
}
