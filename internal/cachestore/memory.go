package cachestore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/weatherdash/offline-proxy/internal/fault"
	"github.com/weatherdash/offline-proxy/internal/logger"
)

// MemoryBackend keeps every container in process memory. maxBytes bounds the total body size
// across all containers (0 means unbounded).
type MemoryBackend struct {
	mu         sync.RWMutex
	maxBytes   int64
	total      int64
	containers map[string]map[string]Entry
}

func NewMemoryBackend(maxBytes int64) *MemoryBackend {
	return &MemoryBackend{maxBytes: maxBytes, containers: map[string]map[string]Entry{}}
}

func (m *MemoryBackend) Open(_ context.Context, name string) (Container, error) {
	if name == "" {
		return nil, fault.Storage("open", fmt.Errorf("empty container name"))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.containers[name]; !ok {
		logger.WithComponent("memory-store").Debugf("creating container %s", name)
		m.containers[name] = map[string]Entry{}
	}
	return &memoryContainer{backend: m, name: name}, nil
}

func (m *MemoryBackend) Delete(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries, ok := m.containers[name]
	if !ok {
		return false, nil
	}
	for _, e := range entries {
		m.total -= int64(len(e.Body))
	}
	delete(m.containers, name)
	logger.WithComponent("memory-store").Debugf("deleted container %s (%d entries)", name, len(entries))
	return true, nil
}

func (m *MemoryBackend) Names(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.containers))
	for n := range m.containers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// TotalSize returns the body bytes currently held.
func (m *MemoryBackend) TotalSize() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.total
}

func (m *MemoryBackend) Close() error { return nil }

type memoryContainer struct {
	backend *MemoryBackend
	name    string
}

func (c *memoryContainer) Name() string { return c.name }

func (c *memoryContainer) Match(_ context.Context, key string) (Entry, bool, error) {
	c.backend.mu.RLock()
	defer c.backend.mu.RUnlock()
	e, ok := c.backend.containers[c.name][key]
	if !ok {
		return Entry{}, false, nil
	}
	return e.Clone(), true, nil
}

func (c *memoryContainer) Put(_ context.Context, key string, e Entry) error {
	m := c.backend
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, ok := m.containers[c.name]
	if !ok {
		// container was deleted after Open; a write recreates it
		entries = map[string]Entry{}
		m.containers[c.name] = entries
	}
	delta := int64(len(e.Body))
	if old, ok := entries[key]; ok {
		delta -= int64(len(old.Body))
	}
	if m.maxBytes > 0 && m.total+delta > m.maxBytes {
		return fault.Storage("put", fmt.Errorf("%s %s: %w", c.name, key, ErrQuotaExceeded))
	}
	entries[key] = e.Clone()
	m.total += delta
	return nil
}

func (c *memoryContainer) Keys(_ context.Context) ([]string, error) {
	c.backend.mu.RLock()
	defer c.backend.mu.RUnlock()
	keys := make([]string, 0, len(c.backend.containers[c.name]))
	for k := range c.backend.containers[c.name] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (c *memoryContainer) Size(_ context.Context) (int64, error) {
	c.backend.mu.RLock()
	defer c.backend.mu.RUnlock()
	var total int64
	for _, e := range c.backend.containers[c.name] {
		total += int64(len(e.Body))
	}
	return total, nil
}
