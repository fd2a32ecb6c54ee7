// Package prefs provides the persisted-preference store: small JSON values
// under string keys that survive restarts and are kept in step with other
// running instances through a pluggable backend.
package prefs

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"maps"
	"sync"
	"time"
)

// Event is broadcast to subscribers after a key changes.
type Event struct {
	Key      string
	External bool // true when the write came from another instance
}

// Change is a write observed by a backend that another instance made.
type Change struct {
	Key     string
	Value   []byte
	Deleted bool
}

// Backend persists raw values and reports writes made by other instances.
type Backend interface {
	// LoadAll returns every stored key.
	LoadAll(ctx context.Context) (map[string][]byte, error)

	// Put stores value under key.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key.
	Delete(ctx context.Context, key string) error

	// Watch calls fn for each change made by another instance. It blocks
	// until ctx is cancelled or the backend fails.
	Watch(ctx context.Context, fn func(Change)) error

	// Close releases the backend's resources.
	Close() error
}

// ioTimeout bounds a single backend call made on behalf of Get/Set.
const ioTimeout = 5 * time.Second

// Store is an in-memory view of the backend with synchronous write-through
// and pub/sub for change notifications. Storage failures are logged and
// swallowed: losing a preference is acceptable, failing the caller is not.
type Store struct {
	backend Backend
	log     *slog.Logger

	mu     sync.RWMutex
	values map[string][]byte

	subsMu    sync.Mutex
	nextSubID int
	subs      map[int]chan Event
}

// NewStore creates a Store, loading the current contents of backend.
func NewStore(ctx context.Context, backend Backend, log *slog.Logger) *Store {
	s := &Store{
		backend: backend,
		log:     log,
		values:  make(map[string][]byte),
		subs:    make(map[int]chan Event),
	}
	s.load(ctx)
	return s
}

// Get returns the raw value stored under key.
func (s *Store) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Snapshot returns a copy of every stored value.
func (s *Store) Snapshot() map[string][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.values)
}

// Set stores a value, persists it and broadcasts to subscribers.
func (s *Store) Set(key string, value []byte) {
	s.mu.Lock()
	s.values[key] = bytes.Clone(value)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
	defer cancel()
	if err := s.backend.Put(ctx, key, value); err != nil {
		s.log.Warn("persisting preference", "key", key, "error", err)
	}

	s.broadcast(Event{Key: key})
}

// Remove deletes a value, persists the deletion and broadcasts it.
func (s *Store) Remove(key string) {
	s.mu.Lock()
	delete(s.values, key)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
	defer cancel()
	if err := s.backend.Delete(ctx, key); err != nil {
		s.log.Warn("removing preference", "key", key, "error", err)
	}

	s.broadcast(Event{Key: key})
}

// Merge applies a change made by another instance. Only the changed key is
// touched, so local edits to other keys survive. Deletions are ignored: an
// instance that clears its state does not wipe the others.
func (s *Store) Merge(c Change) {
	if c.Deleted {
		return
	}
	s.mu.Lock()
	if cur, ok := s.values[c.Key]; ok && bytes.Equal(cur, c.Value) {
		s.mu.Unlock()
		return
	}
	s.values[c.Key] = bytes.Clone(c.Value)
	s.mu.Unlock()

	s.log.Debug("merged external preference", "key", c.Key)
	s.broadcast(Event{Key: c.Key, External: true})
}

// Run merges external changes until ctx is cancelled.
func (s *Store) Run(ctx context.Context) error {
	err := s.backend.Watch(ctx, s.Merge)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// Subscribe returns a channel that receives events. bufSize controls the
// channel buffer; slow consumers will have events dropped.
func (s *Store) Subscribe(bufSize int) (int, <-chan Event) {
	ch := make(chan Event, bufSize)
	s.subsMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = ch
	s.subsMu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (s *Store) Unsubscribe(id int) {
	s.subsMu.Lock()
	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
	s.subsMu.Unlock()
}

// broadcast sends an event to all subscribers non-blocking (drop on full).
func (s *Store) broadcast(e Event) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- e:
		default:
			// Slow consumer, drop event.
		}
	}
}

// load reads the backend into memory. A failure leaves the store empty.
func (s *Store) load(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, ioTimeout)
	defer cancel()
	loaded, err := s.backend.LoadAll(ctx)
	if err != nil {
		s.log.Warn("loading preferences", "error", err)
		return
	}
	s.values = loaded
	if s.values == nil {
		s.values = make(map[string][]byte)
	}
	s.log.Debug("loaded preferences", "keys", len(loaded))
}

// ---------------------------------------------------------------------------
// Typed access
// ---------------------------------------------------------------------------

// Load decodes the JSON value under key into a T. A missing or undecodable
// value yields def.
func Load[T any](s *Store, key string, def T) T {
	raw, ok := s.Get(key)
	if !ok || len(raw) == 0 {
		return def
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		s.log.Warn("decoding preference", "key", key, "error", err)
		return def
	}
	return v
}

// Save encodes v as JSON and stores it under key.
func Save[T any](s *Store, key string, v T) {
	raw, err := json.Marshal(v)
	if err != nil {
		s.log.Warn("encoding preference", "key", key, "error", err)
		return
	}
	s.Set(key, raw)
}
