package prefs

import (
	"bytes"
	"context"
	"maps"
	"sync"
)

// MemoryBackend keeps values in process memory. Inject simulates a write by
// another instance, which makes it the backend of choice for tests.
type MemoryBackend struct {
	mu       sync.Mutex
	data     map[string][]byte
	writeErr error
	external chan Change
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		data:     make(map[string][]byte),
		external: make(chan Change, 64),
	}
}

// LoadAll returns a copy of the stored values.
func (m *MemoryBackend) LoadAll(context.Context) (map[string][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.data), nil
}

// Put stores value, or fails with the error set by FailWrites.
func (m *MemoryBackend) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.data[key] = bytes.Clone(value)
	return nil
}

// Delete removes key, or fails with the error set by FailWrites.
func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	delete(m.data, key)
	return nil
}

// Watch delivers injected changes until ctx is cancelled.
func (m *MemoryBackend) Watch(ctx context.Context, fn func(Change)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c := <-m.external:
			fn(c)
		}
	}
}

// Close is a no-op.
func (m *MemoryBackend) Close() error { return nil }

// Value returns what is currently persisted under key.
func (m *MemoryBackend) Value(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

// FailWrites makes every later Put and Delete return err. A nil err
// restores normal behaviour.
func (m *MemoryBackend) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// Inject records a write made by another instance and queues it for Watch.
func (m *MemoryBackend) Inject(key string, value []byte) {
	m.mu.Lock()
	m.data[key] = bytes.Clone(value)
	m.mu.Unlock()
	m.external <- Change{Key: key, Value: bytes.Clone(value)}
}
