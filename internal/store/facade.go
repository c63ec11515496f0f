package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Facade gives synchronous access to composites. It keeps the live entries, with
// their expression handles, in its own memory tier in front of the Store.
//
// Entries recovered from the Store carry metadata only.
type Facade struct {
	store  *Store
	logger zerolog.Logger

	mu      sync.RWMutex
	entries map[string]*CompositeEntry
}

// NewFacade wraps s.
func NewFacade(s *Store, logger zerolog.Logger) *Facade {
	return &Facade{
		store:   s,
		logger:  logger.With().Str("component", "facade").Logger(),
		entries: make(map[string]*CompositeEntry),
	}
}

// Store returns the underlying store.
func (f *Facade) Store() *Store { return f.store }

// Add records e, replacing any entry with the same key, and schedules the
// metadata write through the Store.
func (f *Facade) Add(e *CompositeEntry) error {
	if e == nil || e.Key == "" {
		return errors.New("composite entry needs a key")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	cp := *e
	f.mu.Lock()
	f.entries[e.Key] = &cp
	f.mu.Unlock()

	if err := f.store.Put(KindComposite, e.Key, &cp); err != nil {
		f.logger.Warn().Err(err).Str("key", e.Key).Msg("composite metadata not persisted")
	}
	return nil
}

// Get returns a copy of the entry for key. A facade miss falls back to the
// Store's memory tier and promotes what it finds; a full miss reports false and
// leaves the Store to backfill in the background.
func (f *Facade) Get(key string) (*CompositeEntry, bool) {
	f.mu.RLock()
	e, ok := f.entries[key]
	f.mu.RUnlock()
	if ok && f.expired(e) {
		f.mu.Lock()
		delete(f.entries, key)
		f.mu.Unlock()
		ok = false
	}
	if ok {
		cp := *e
		return &cp, true
	}

	var meta CompositeEntry
	found, err := f.store.Get(KindComposite, key, &meta)
	if err != nil {
		f.logger.Warn().Err(err).Str("key", key).Msg("stored composite unreadable")
		return nil, false
	}
	if !found || f.expired(&meta) {
		return nil, false
	}
	if meta.Key == "" {
		meta.Key = key
	}

	f.mu.Lock()
	if cur, ok := f.entries[key]; ok {
		// a concurrent Add won
		meta = *cur
	} else {
		promoted := meta
		f.entries[key] = &promoted
	}
	f.mu.Unlock()
	return &meta, true
}

// Keys lists every composite key known to either tier, sorted.
func (f *Facade) Keys() []string {
	seen := make(map[string]struct{})
	f.mu.RLock()
	for k, e := range f.entries {
		if !f.expired(e) {
			seen[k] = struct{}{}
		}
	}
	f.mu.RUnlock()
	for _, k := range f.store.ListKeys(KindComposite) {
		seen[k] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Remove drops key from every tier and reports whether either memory tier had it.
func (f *Facade) Remove(key string) bool {
	f.mu.Lock()
	_, had := f.entries[key]
	delete(f.entries, key)
	f.mu.Unlock()
	return f.store.Delete(KindComposite, key) || had
}

// expired applies the composite TTL to the facade tier.
func (f *Facade) expired(e *CompositeEntry) bool {
	ttl := f.store.TTL(KindComposite)
	return ttl > 0 && time.Since(e.CreatedAt) >= ttl
}

// Len counts entries in the facade tier.
func (f *Facade) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.entries)
}

// Wait blocks until the Store finished its scheduled background work.
func (f *Facade) Wait(ctx context.Context) error {
	return f.store.Sync(ctx)
}
