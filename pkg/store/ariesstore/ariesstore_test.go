/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package ariesstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hyperledger/aries-framework-go/spi/storage"
	"github.com/stretchr/testify/require"

	"github.com/fedikit/fedikit/pkg/store/spi"
)

func TestStore(t *testing.T) {
	s, err := New(&mockProvider{store: newMockStore()})
	require.NoError(t, err)

	key := spi.Key{"_fedikit", "publicKey", "https://remote.example/users/bob#main-key"}

	t.Run("Get missing -> ErrNotFound", func(t *testing.T) {
		_, err := s.Get(context.Background(), key)
		require.ErrorIs(t, err, spi.ErrNotFound)
	})

	t.Run("Set, Get, Delete", func(t *testing.T) {
		require.NoError(t, s.Set(context.Background(), key, []byte(`{"id":"x"}`)))

		value, err := s.Get(context.Background(), key)
		require.NoError(t, err)
		require.Equal(t, []byte(`{"id":"x"}`), value)

		require.NoError(t, s.Delete(context.Background(), key))

		_, err = s.Get(context.Background(), key)
		require.ErrorIs(t, err, spi.ErrNotFound)
	})

	t.Run("TTL expiry enforced on read", func(t *testing.T) {
		now := time.Now()
		s.now = func() time.Time { return now }

		require.NoError(t, s.Set(context.Background(), key, []byte(`true`), spi.WithTTL(24*time.Hour)))

		_, err := s.Get(context.Background(), key)
		require.NoError(t, err)

		now = now.Add(25 * time.Hour)

		_, err = s.Get(context.Background(), key)
		require.ErrorIs(t, err, spi.ErrNotFound)
	})

	t.Run("Open store -> error", func(t *testing.T) {
		_, err := New(&mockProvider{openErr: errors.New("injected open error")})
		require.Error(t, err)
		require.Contains(t, err.Error(), "injected open error")
	})
}

type mockProvider struct {
	storage.Provider

	store   storage.Store
	openErr error
}

func (p *mockProvider) OpenStore(string) (storage.Store, error) {
	if p.openErr != nil {
		return nil, p.openErr
	}

	return p.store, nil
}

type mockStore struct {
	storage.Store

	values map[string][]byte
}

func newMockStore() *mockStore {
	return &mockStore{values: make(map[string][]byte)}
}

func (s *mockStore) Put(key string, value []byte, _ ...storage.Tag) error {
	s.values[key] = value

	return nil
}

func (s *mockStore) Get(key string) ([]byte, error) {
	value, ok := s.values[key]
	if !ok {
		return nil, storage.ErrDataNotFound
	}

	return value, nil
}

func (s *mockStore) Delete(key string) error {
	delete(s.values, key)

	return nil
}
