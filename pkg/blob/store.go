// Package blob stores raw event payloads in object storage under the
// deterministic key <tenant_id>/<fingerprint>.json. The relational index row
// is authoritative; blob writes are best-effort at ingress and failures are
// logged, not surfaced.
package blob

import (
	"context"
	"sync"
)

// Store writes raw payloads to object storage.
type Store interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

// MemoryStore is an in-memory Store for tests and Lite Mode.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func (m *MemoryStore) Put(_ context.Context, key string, body []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := make([]byte, len(body))
	copy(buf, body)
	m.objects[key] = buf
	return nil
}

// Get returns a stored object. Test helper; the relay itself only writes.
func (m *MemoryStore) Get(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.objects[key]
	return b, ok
}

// Len returns the number of stored objects.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
