package ledger

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Ledger for tests and dry runs
type Memory struct {
	mu      sync.RWMutex
	entries map[string]time.Time
}

// NewMemory returns an empty in-memory ledger
func NewMemory(ids ...string) *Memory {
	m := &Memory{entries: make(map[string]time.Time)}
	now := time.Now().UTC()
	for _, id := range ids {
		m.entries[id] = now
	}
	return m
}

func (m *Memory) Contains(_ context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[id]
	return ok, nil
}

func (m *Memory) InsertBatch(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for _, id := range ids {
		if _, ok := m.entries[id]; !ok {
			m.entries[id] = now
		}
	}
	return nil
}

func (m *Memory) List(_ context.Context) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]Entry, 0, len(m.entries))
	for id, at := range m.entries {
		entries = append(entries, Entry{ID: id, CompletedAt: at})
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CompletedAt.Equal(entries[j].CompletedAt) {
			return entries[i].CompletedAt.Before(entries[j].CompletedAt)
		}
		return entries[i].ID < entries[j].ID
	})
	return entries, nil
}

func (m *Memory) Forget(_ context.Context, ids []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for _, id := range ids {
		if _, ok := m.entries[id]; ok {
			delete(m.entries, id)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of recorded ids
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Memory) Close() error { return nil }
