// Package cache is the local durable cache: a persisted key to JSON array
// store that keeps every memory the device has captured, whatever the
// remote store did with it.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/HrishitaRaj/smriti-ai/common/crypto"
)

// ErrCorrupt is returned when the stored value for a key cannot be opened or
// is not a JSON array.
var ErrCorrupt = errors.New("cache: stored value is corrupt")

// Backend persists raw values per key. UpdateArray must serialise concurrent
// read-modify-write calls on the same key. *store.Store satisfies it.
type Backend interface {
	LoadArray(ctx context.Context, key string) ([]byte, error)
	UpdateArray(ctx context.Context, key string, fn func(current []byte) ([]byte, error)) error
}

// Cache reads and rewrites JSON arrays on a Backend, optionally sealing them
// at rest.
type Cache struct {
	backend Backend
	sealer  *crypto.Sealer
}

// Option configures a Cache.
type Option func(*Cache)

// WithSealer encrypts stored arrays with s. Values written without a sealer
// cannot be read with one and vice versa.
func WithSealer(s *crypto.Sealer) Option {
	return func(c *Cache) { c.sealer = s }
}

// New returns a Cache over backend.
func New(backend Backend, opts ...Option) *Cache {
	c := &Cache{backend: backend}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Read returns the elements stored under key. A key that was never written
// reads as an empty array.
func (c *Cache) Read(ctx context.Context, key string) ([]json.RawMessage, error) {
	raw, err := c.backend.LoadArray(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("cache: read %q: %w", key, err)
	}
	return c.decode(key, raw)
}

// Modify rewrites the array under key. fn receives the current elements and
// returns the replacement; the whole step is atomic with respect to other
// Modify calls on the same key.
func (c *Cache) Modify(ctx context.Context, key string, fn func([]json.RawMessage) ([]json.RawMessage, error)) error {
	err := c.backend.UpdateArray(ctx, key, func(current []byte) ([]byte, error) {
		items, err := c.decode(key, current)
		if err != nil {
			return nil, err
		}
		next, err := fn(items)
		if err != nil {
			return nil, err
		}
		return c.encode(key, next)
	})
	if err != nil {
		return fmt.Errorf("cache: modify %q: %w", key, err)
	}
	return nil
}

// Overwrite replaces the array under key without reading the old value, so
// it also recovers a corrupt key.
func (c *Cache) Overwrite(ctx context.Context, key string, items []json.RawMessage) error {
	err := c.backend.UpdateArray(ctx, key, func([]byte) ([]byte, error) {
		return c.encode(key, items)
	})
	if err != nil {
		return fmt.Errorf("cache: overwrite %q: %w", key, err)
	}
	return nil
}

func (c *Cache) decode(key string, raw []byte) ([]json.RawMessage, error) {
	if len(raw) == 0 {
		return []json.RawMessage{}, nil
	}
	if c.sealer != nil {
		opened, err := c.sealer.Open(raw, key)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		raw = opened
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if items == nil {
		items = []json.RawMessage{}
	}
	return items, nil
}

func (c *Cache) encode(key string, items []json.RawMessage) ([]byte, error) {
	if items == nil {
		items = []json.RawMessage{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("marshal array: %w", err)
	}
	if c.sealer != nil {
		return c.sealer.Seal(raw, key)
	}
	return raw, nil
}
