package session

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryBackend keeps sessions in process memory. A positive TTL expires
// entries lazily on read.
type MemoryBackend struct {
	TTL time.Duration
	Now func() time.Time

	mu      sync.RWMutex
	entries map[string]map[string]memoryEntry
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		Now:     time.Now,
		entries: map[string]map[string]memoryEntry{},
	}
}

func (b *MemoryBackend) Get(_ context.Context, namespace, key string) ([]byte, bool, error) {
	b.mu.RLock()
	entry, ok := b.entries[namespace][key]
	b.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && !b.now().Before(entry.expiresAt) {
		b.mu.Lock()
		if current, exists := b.entries[namespace][key]; exists && current.expiresAt.Equal(entry.expiresAt) {
			delete(b.entries[namespace], key)
		}
		b.mu.Unlock()
		return nil, false, nil
	}
	return append([]byte(nil), entry.value...), true, nil
}

func (b *MemoryBackend) Set(_ context.Context, namespace, key string, value []byte) error {
	entry := memoryEntry{value: append([]byte(nil), value...)}
	if b.TTL > 0 {
		entry.expiresAt = b.now().Add(b.TTL)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.entries == nil {
		b.entries = map[string]map[string]memoryEntry{}
	}
	bucket, ok := b.entries[namespace]
	if !ok {
		bucket = map[string]memoryEntry{}
		b.entries[namespace] = bucket
	}
	bucket[key] = entry
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, namespace, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	bucket, ok := b.entries[namespace]
	if !ok {
		return nil
	}
	delete(bucket, key)
	if len(bucket) == 0 {
		delete(b.entries, namespace)
	}
	return nil
}

// Len reports the number of stored entries across namespaces.
func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	total := 0
	for _, bucket := range b.entries {
		total += len(bucket)
	}
	return total
}

func (b *MemoryBackend) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

var _ Backend = (*MemoryBackend)(nil)
