/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package memstore implements the in-memory reference KvStore. This implementation works
// only on a single node. In order to share state across a cluster, a persistent store
// should instead be used.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/fedikit/fedikit/pkg/store/spi"
)

type entry struct {
	value   []byte
	expires time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expires.IsZero() && now.After(e.expires)
}

// Store is an in-memory KvStore with lazy TTL expiry.
type Store struct {
	entries map[string]*entry
	mutex   sync.RWMutex
	now     func() time.Time
}

// New returns a new in-memory store.
func New() *Store {
	return &Store{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Get returns the value for the given key or spi.ErrNotFound.
func (s *Store) Get(_ context.Context, key spi.Key) ([]byte, error) {
	s.mutex.RLock()
	e, ok := s.entries[key.String()]
	s.mutex.RUnlock()

	if !ok {
		return nil, spi.ErrNotFound
	}

	if e.expired(s.now()) {
		s.mutex.Lock()
		delete(s.entries, key.String())
		s.mutex.Unlock()

		return nil, spi.ErrNotFound
	}

	value := make([]byte, len(e.value))
	copy(value, e.value)

	return value, nil
}

// Set stores the value under the given key.
func (s *Store) Set(_ context.Context, key spi.Key, value []byte, opts ...spi.SetOpt) error {
	options := spi.NewSetOptions(opts...)

	e := &entry{value: make([]byte, len(value))}

	copy(e.value, value)

	if options.TTL > 0 {
		e.expires = s.now().Add(options.TTL)
	}

	s.mutex.Lock()
	s.entries[key.String()] = e
	s.mutex.Unlock()

	return nil
}

// Delete removes the value for the given key.
func (s *Store) Delete(_ context.Context, key spi.Key) error {
	s.mutex.Lock()
	delete(s.entries, key.String())
	s.mutex.Unlock()

	return nil
}
