/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package ariesstore adapts an aries storage provider to the KvStore interface, so that
// any aries-compatible backend (MongoDB, CouchDB, etc.) may hold the engine's idempotence
// and key-cache records. Since aries stores have no native TTL, the expiry is stored in a
// record envelope and enforced on read.
package ariesstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hyperledger/aries-framework-go/spi/storage"

	"github.com/fedikit/fedikit/pkg/store/spi"
)

const storeName = "fedikit"

type record struct {
	Value   []byte     `json:"value"`
	Expires *time.Time `json:"expires,omitempty"`
}

// Store is a KvStore backed by an aries storage provider.
type Store struct {
	store storage.Store
	now   func() time.Time
}

// New opens the underlying aries store and returns the adapter.
func New(provider storage.Provider) (*Store, error) {
	s, err := provider.OpenStore(storeName)
	if err != nil {
		return nil, fmt.Errorf("open store [%s]: %w", storeName, err)
	}

	return &Store{store: s, now: time.Now}, nil
}

// Get returns the value for the given key or spi.ErrNotFound.
func (s *Store) Get(_ context.Context, key spi.Key) ([]byte, error) {
	data, err := s.store.Get(key.String())
	if err != nil {
		if errors.Is(err, storage.ErrDataNotFound) {
			return nil, spi.ErrNotFound
		}

		return nil, fmt.Errorf("get [%s]: %w", key, err)
	}

	var r record

	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("unmarshal record [%s]: %w", key, err)
	}

	if r.Expires != nil && s.now().After(*r.Expires) {
		if err := s.store.Delete(key.String()); err != nil {
			return nil, fmt.Errorf("delete expired record [%s]: %w", key, err)
		}

		return nil, spi.ErrNotFound
	}

	return r.Value, nil
}

// Set stores the value under the given key.
func (s *Store) Set(_ context.Context, key spi.Key, value []byte, opts ...spi.SetOpt) error {
	options := spi.NewSetOptions(opts...)

	r := record{Value: value}

	if options.TTL > 0 {
		expires := s.now().Add(options.TTL)
		r.Expires = &expires
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal record [%s]: %w", key, err)
	}

	if err := s.store.Put(key.String(), data); err != nil {
		return fmt.Errorf("put [%s]: %w", key, err)
	}

	return nil
}

// Delete removes the value for the given key.
func (s *Store) Delete(_ context.Context, key spi.Key) error {
	if err := s.store.Delete(key.String()); err != nil {
		return fmt.Errorf("delete [%s]: %w", key, err)
	}

	return nil
}
