// Package cache implements the content-addressed result cache.
//
// Entries map (source identity, operation descriptor) to the artifact that
// operation produced. The whole table is persisted through a Substrate as one
// JSON document; an unreadable or corrupt document is treated as an empty cache.
package cache

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/chicogong/vidioai/pkg/schemas"
)

// DocumentKey is the substrate key the cache table is stored under
const DocumentKey = "vidioai_processing_cache"

const documentVersion = 1

// Key identifies one cache entry
type Key struct {
	SourceIdentity string `json:"source"`
	Descriptor     string `json:"descriptor"`
}

// NewKey builds a key from a source identity and an operation descriptor
func NewKey(sourceIdentity, descriptor string) Key {
	return Key{SourceIdentity: sourceIdentity, Descriptor: descriptor}
}

func (k Key) String() string {
	return k.SourceIdentity + "|" + k.Descriptor
}

// Valid reports whether both parts of the key are set
func (k Key) Valid() bool {
	return k.SourceIdentity != "" && k.Descriptor != ""
}

// Entry is one cached result
type Entry struct {
	Key      Key              `json:"key"`
	Artifact schemas.Artifact `json:"artifact"`
	StoredAt time.Time        `json:"stored_at"`
}

type document struct {
	Version int              `json:"version"`
	Entries map[string]Entry `json:"entries"`
}

// ResultCache is safe for concurrent use. Writes replace whole entries;
// concurrent writes to the same key are last-writer-wins.
type ResultCache struct {
	mu      sync.RWMutex
	entries map[string]Entry
	version uint64

	saveMu       sync.Mutex
	savedVersion uint64

	substrate Substrate
	logger    zerolog.Logger
	now       func() time.Time
}

// Option configures a ResultCache
type Option func(*ResultCache)

// WithLogger sets the logger used for substrate warnings
func WithLogger(l zerolog.Logger) Option {
	return func(c *ResultCache) {
		c.logger = l
	}
}

// WithClock overrides the time source for StoredAt
func WithClock(now func() time.Time) Option {
	return func(c *ResultCache) {
		c.now = now
	}
}

// New creates a cache backed by substrate and loads any persisted entries.
// A nil substrate keeps entries in memory only.
func New(ctx context.Context, substrate Substrate, opts ...Option) *ResultCache {
	if substrate == nil {
		substrate = NewMemorySubstrate()
	}

	c := &ResultCache{
		entries:   make(map[string]Entry),
		substrate: substrate,
		logger:    zerolog.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.load(ctx)
	return c
}

func (c *ResultCache) load(ctx context.Context) {
	data, ok, err := c.substrate.Get(ctx, DocumentKey)
	if err != nil {
		c.logger.Warn().Err(err).Msg("cache substrate unavailable, starting empty")
		return
	}
	if !ok || len(data) == 0 {
		return
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		c.logger.Warn().Err(err).Msg("cache document corrupt, starting empty")
		return
	}

	for _, e := range doc.Entries {
		if !e.Key.Valid() || e.Artifact.IsZero() {
			continue
		}
		c.entries[e.Key.String()] = e
	}

	c.logger.Debug().Int("entries", len(c.entries)).Msg("cache loaded")
}

// Get returns the artifact cached for (sourceIdentity, descriptor)
func (c *ResultCache) Get(sourceIdentity, descriptor string) (schemas.Artifact, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[NewKey(sourceIdentity, descriptor).String()]
	if !ok {
		return schemas.Artifact{}, false
	}
	return e.Artifact, true
}

// Put stores artifact under (sourceIdentity, descriptor), replacing any
// existing entry. Persistence failures are logged, never returned.
func (c *ResultCache) Put(ctx context.Context, sourceIdentity, descriptor string, artifact schemas.Artifact) {
	key := NewKey(sourceIdentity, descriptor)
	if !key.Valid() {
		c.logger.Warn().Str("key", key.String()).Msg("refusing to cache entry with incomplete key")
		return
	}

	c.mu.Lock()
	c.entries[key.String()] = Entry{Key: key, Artifact: artifact, StoredAt: c.now()}
	c.version++
	c.mu.Unlock()

	c.persist(ctx)
}

// Has reports whether key is cached
func (c *ResultCache) Has(key Key) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.entries[key.String()]
	return ok
}

// Remove deletes key. Removing an absent key is a no-op.
func (c *ResultCache) Remove(ctx context.Context, key Key) {
	c.mu.Lock()
	if _, ok := c.entries[key.String()]; !ok {
		c.mu.Unlock()
		return
	}
	delete(c.entries, key.String())
	c.version++
	c.mu.Unlock()

	c.persist(ctx)
}

// Clear deletes every entry
func (c *ResultCache) Clear(ctx context.Context) {
	c.mu.Lock()
	c.entries = make(map[string]Entry)
	c.version++
	c.mu.Unlock()

	c.persist(ctx)
}

// Len returns the number of entries
func (c *ResultCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Entries returns a copy of all entries, oldest first
func (c *ResultCache) Entries() []Entry {
	c.mu.RLock()
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StoredAt.Equal(out[j].StoredAt) {
			return out[i].Key.String() < out[j].Key.String()
		}
		return out[i].StoredAt.Before(out[j].StoredAt)
	})
	return out
}

// persist writes the current table. A snapshot is only written if no newer
// snapshot has been saved already.
func (c *ResultCache) persist(ctx context.Context) {
	c.mu.RLock()
	doc := document{Version: documentVersion, Entries: make(map[string]Entry, len(c.entries))}
	for k, e := range c.entries {
		doc.Entries[k] = e
	}
	version := c.version
	c.mu.RUnlock()

	data, err := json.Marshal(doc)
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to encode cache document")
		return
	}

	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	if version <= c.savedVersion {
		return
	}
	if err := c.substrate.Set(ctx, DocumentKey, data); err != nil {
		c.logger.Warn().Err(err).Msg("failed to persist cache")
		return
	}
	c.savedVersion = version
}
