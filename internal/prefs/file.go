package prefs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileBackend keeps every key in one JSON document. Other instances sharing
// the file are noticed by polling it.
type FileBackend struct {
	path     string
	interval time.Duration

	mu      sync.Mutex
	seen    map[string][]byte // last value known per key
	lastRaw []byte            // file content at the last poll
}

// NewFileBackend returns a backend stored at path, polled every interval.
func NewFileBackend(path string, interval time.Duration) *FileBackend {
	if interval <= 0 {
		interval = time.Second
	}
	return &FileBackend{
		path:     path,
		interval: interval,
		seen:     make(map[string][]byte),
	}
}

// LoadAll reads the document. A missing file is an empty store.
func (f *FileBackend) LoadAll(context.Context) (map[string][]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, doc, err := f.read()
	if err != nil {
		return nil, err
	}
	f.lastRaw = raw
	f.seen = maps.Clone(doc)
	return doc, nil
}

// Put writes key, keeping whatever other instances stored under other keys.
func (f *FileBackend) Put(_ context.Context, key string, value []byte) error {
	if !json.Valid(value) {
		return fmt.Errorf("value for %q is not valid JSON", key)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.update(key, func(doc map[string][]byte) {
		doc[key] = bytes.Clone(value)
		f.seen[key] = bytes.Clone(value)
	})
}

// Delete removes key from the document.
func (f *FileBackend) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.update(key, func(doc map[string][]byte) {
		delete(doc, key)
		delete(f.seen, key)
	})
}

// Watch polls the file and reports keys that changed since the last look.
func (f *FileBackend) Watch(ctx context.Context, fn func(Change)) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, c := range f.poll() {
				fn(c)
			}
		}
	}
}

// Close is a no-op.
func (f *FileBackend) Close() error { return nil }

func (f *FileBackend) poll() []Change {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, doc, err := f.read()
	if err != nil || bytes.Equal(raw, f.lastRaw) {
		return nil
	}
	f.lastRaw = raw
	changes := diff(f.seen, doc)
	f.seen = doc
	return changes
}

// update applies mutate to the on-disk document. Must be called with mu
// held. lastRaw is left alone so the next poll still notices keys that
// another instance wrote in between.
func (f *FileBackend) update(key string, mutate func(map[string][]byte)) error {
	_, doc, err := f.read()
	if err != nil {
		return err
	}
	mutate(doc)
	out := make(map[string]json.RawMessage, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return writeAtomic(f.path, data)
}

// read returns the raw file and its decoded keys.
func (f *FileBackend) read() ([]byte, map[string][]byte, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, map[string][]byte{}, nil
	}
	if err != nil {
		return nil, nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return raw, map[string][]byte{}, nil
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, nil, fmt.Errorf("parsing %s: %w", f.path, err)
	}
	out := make(map[string][]byte, len(doc))
	for k, v := range doc {
		out[k] = []byte(v)
	}
	return raw, out, nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".prefs-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// diff lists the keys whose value differs between prev and next.
func diff(prev, next map[string][]byte) []Change {
	var out []Change
	for k, v := range next {
		if old, ok := prev[k]; !ok || !bytes.Equal(old, v) {
			out = append(out, Change{Key: k, Value: v})
		}
	}
	for k := range prev {
		if _, ok := next[k]; !ok {
			out = append(out, Change{Key: k, Deleted: true})
		}
	}
	return out
}
