/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fedikit/fedikit/pkg/store/spi"
)

func TestStore(t *testing.T) {
	s := New()

	key := spi.Key{"_fedikit", "activityIdempotence", "https://remote.example", "https://remote.example/a1"}

	t.Run("Get missing -> ErrNotFound", func(t *testing.T) {
		_, err := s.Get(context.Background(), key)
		require.ErrorIs(t, err, spi.ErrNotFound)
	})

	t.Run("Set and Get", func(t *testing.T) {
		require.NoError(t, s.Set(context.Background(), key, []byte(`true`)))

		value, err := s.Get(context.Background(), key)
		require.NoError(t, err)
		require.Equal(t, []byte(`true`), value)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, s.Delete(context.Background(), key))

		_, err := s.Get(context.Background(), key)
		require.ErrorIs(t, err, spi.ErrNotFound)

		// Deleting a missing key is not an error.
		require.NoError(t, s.Delete(context.Background(), key))
	})
}

func TestStore_TTL(t *testing.T) {
	s := New()

	now := time.Now()
	s.now = func() time.Time { return now }

	key := spi.Key{"_fedikit", "remoteDocument", "https://www.w3.org/ns/activitystreams"}

	require.NoError(t, s.Set(context.Background(), key, []byte(`{}`), spi.WithTTL(24*time.Hour)))

	_, err := s.Get(context.Background(), key)
	require.NoError(t, err)

	now = now.Add(23 * time.Hour)

	_, err = s.Get(context.Background(), key)
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)

	_, err = s.Get(context.Background(), key)
	require.ErrorIs(t, err, spi.ErrNotFound)
}

func TestKey(t *testing.T) {
	key := spi.Key{"_fedikit", "publicKey"}

	require.Equal(t, "_fedikit::publicKey", key.String())
	require.Equal(t, "_fedikit::publicKey::https://x/key#main-key",
		key.Append("https://x/key#main-key").String())

	// Append does not mutate the receiver.
	require.Len(t, key, 2)
}
