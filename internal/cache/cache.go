// Package cache keeps a side index from username to the id of the latest
// ready World. It only ever short-circuits a store lookup: the store stays
// the source of truth, and callers re-validate every hit against it.
package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrMiss is returned by Get when no id is indexed for the username.
var ErrMiss = errors.New("cache: miss")

// LatestIndex maps a username to the most recent ready World id.
type LatestIndex interface {
	Get(ctx context.Context, username string) (string, error)
	Set(ctx context.Context, username, worldID string, ttl time.Duration) error
	Delete(ctx context.Context, username string) error
}

func normalize(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

type memoryEntry struct {
	worldID   string
	expiresAt time.Time
}

// MemoryIndex is the in-process fallback used when Redis is not configured
// or unreachable at startup.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *MemoryIndex) Get(_ context.Context, username string) (string, error) {
	key := normalize(username)

	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		return "", ErrMiss
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		m.mu.Lock()
		// only drop it if nobody replaced it meanwhile
		if cur, ok := m.entries[key]; ok && cur == e {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return "", ErrMiss
	}
	return e.worldID, nil
}

// Set stores the id. A non-positive ttl keeps the entry until it is replaced.
func (m *MemoryIndex) Set(_ context.Context, username, worldID string, ttl time.Duration) error {
	e := memoryEntry{worldID: worldID}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}

	m.mu.Lock()
	m.entries[normalize(username)] = e
	m.mu.Unlock()
	return nil
}

func (m *MemoryIndex) Delete(_ context.Context, username string) error {
	m.mu.Lock()
	delete(m.entries, normalize(username))
	m.mu.Unlock()
	return nil
}
