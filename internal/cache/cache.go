// Package cache memoizes file content at a ref for a bounded time.
//
// Staleness is a correctness concern here: a prediction computed against an
// outdated branch snapshot is misleading, so no implementation ever returns
// an entry older than its TTL.
package cache

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultTTL is how long a branch snapshot stays valid.
const DefaultTTL = 5 * time.Minute

// DefaultSize caps the number of in-memory entries.
const DefaultSize = 512

// Cache stores file content keyed by (ref, path).
type Cache interface {
	// Get returns the content if present and younger than the TTL.
	Get(ref, path string) (string, bool)
	// Put stores content stamped with the current time.
	Put(ref, path, content string)
	// InvalidateAll drops every entry.
	InvalidateAll()
}

// Key identifies a snapshot.
type Key struct {
	Ref  string
	Path string
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s", k.Ref, k.Path)
}

// Entry is a cached snapshot and the time it was stored.
type Entry struct {
	Content  string
	StoredAt time.Time
}

type options struct {
	now func() time.Time
}

// Option configures a cache.
type Option func(*options)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// fresh reports whether an entry stored at storedAt may still be served.
func fresh(storedAt, now time.Time, ttl time.Duration) bool {
	return now.Sub(storedAt) < ttl
}

// tier is a cache level that can hand entries to another level without
// restamping them.
type tier interface {
	Cache
	lookup(k Key) (Entry, bool)
	store(k Key, e Entry)
}

// Memory is an in-process cache backed by an LRU. The LRU bound only
// protects memory; freshness is decided by the TTL.
type Memory struct {
	entries *lru.Cache[Key, Entry]
	ttl     time.Duration
	now     func() time.Time
}

var _ tier = (*Memory)(nil)

// NewMemory creates an in-memory cache holding up to size entries.
func NewMemory(size int, ttl time.Duration, opts ...Option) (*Memory, error) {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("cache ttl must be positive, got %s", ttl)
	}

	entries, err := lru.New[Key, Entry](size)
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}

	o := buildOptions(opts)
	return &Memory{
		entries: entries,
		ttl:     ttl,
		now:     o.now,
	}, nil
}

func (m *Memory) Get(ref, path string) (string, bool) {
	e, ok := m.lookup(Key{Ref: ref, Path: path})
	if !ok {
		return "", false
	}
	return e.Content, true
}

func (m *Memory) Put(ref, path, content string) {
	m.store(Key{Ref: ref, Path: path}, Entry{Content: content, StoredAt: m.now()})
}

func (m *Memory) InvalidateAll() {
	m.entries.Purge()
}

// Len returns the number of stored entries, expired ones not yet read included.
func (m *Memory) Len() int {
	return m.entries.Len()
}

// An expired entry is dropped on the read that finds it.
func (m *Memory) lookup(k Key) (Entry, bool) {
	e, ok := m.entries.Get(k)
	if !ok {
		return Entry{}, false
	}
	if !fresh(e.StoredAt, m.now(), m.ttl) {
		m.entries.Remove(k)
		return Entry{}, false
	}
	return e, true
}

func (m *Memory) store(k Key, e Entry) {
	m.entries.Add(k, e)
}
