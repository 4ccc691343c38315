// Package lookupcache keeps normalized entities that were already fetched from
// the backend so later roster passes can skip the lookup.
//
// Entries never expire and are never invalidated; a cached entity is served
// until something overwrites it. The whole map is loaded at pass start and
// written back once at pass end, so concurrent processes sharing a store race
// and the last writer wins.
package lookupcache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"rollcall/internal/normalize"
)

// Store persists the cache map between passes.
type Store interface {
	Load(ctx context.Context) (map[string]normalize.Entity, error)
	Save(ctx context.Context, entries map[string]normalize.Entity) error
}

// Cache is the in-process entity cache keyed by identifier value.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]normalize.Entity
	store   Store
	logger  *slog.Logger
}

// New returns an empty cache backed by store. A nil store keeps the cache
// purely in memory.
func New(store Store, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{entries: make(map[string]normalize.Entity), store: store, logger: logger}
}

// Get returns the cached entity for id.
func (c *Cache) Get(id normalize.ID) (normalize.Entity, bool) {
	if id.IsZero() {
		return normalize.Entity{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id.Key()]
	return e, ok
}

// Put stores e under id, replacing any previous entry. Zero ids are ignored.
func (c *Cache) Put(id normalize.ID, e normalize.Entity) {
	if id.IsZero() {
		return
	}
	c.mu.Lock()
	c.entries[id.Key()] = e
	c.mu.Unlock()
}

// Len returns the number of cached entities.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Snapshot returns a copy of the cached entries.
func (c *Cache) Snapshot() map[string]normalize.Entity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]normalize.Entity, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}

// Load merges the persisted map into memory. Persisted values overwrite
// in-memory ones.
func (c *Cache) Load(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	loaded, err := c.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load lookup cache: %w", err)
	}
	c.mu.Lock()
	for k, v := range loaded {
		c.entries[k] = v
	}
	n := len(c.entries)
	c.mu.Unlock()
	c.logger.Debug("lookup cache loaded", "persisted", len(loaded), "entries", n)
	return nil
}

// Persist writes the whole map to the store.
func (c *Cache) Persist(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	snap := c.Snapshot()
	if err := c.store.Save(ctx, snap); err != nil {
		return fmt.Errorf("persist lookup cache: %w", err)
	}
	c.logger.Debug("lookup cache persisted", "entries", len(snap))
	return nil
}

// Clear drops every entry in memory and in the store.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]normalize.Entity)
	c.mu.Unlock()
	return c.Persist(ctx)
}
