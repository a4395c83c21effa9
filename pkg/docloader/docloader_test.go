/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package docloader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/piprate/json-gold/ld"
	"github.com/stretchr/testify/require"

	fkerrors "github.com/fedikit/fedikit/pkg/errors"
	"github.com/fedikit/fedikit/pkg/store/memstore"
	"github.com/fedikit/fedikit/pkg/store/spi"
)

func TestHTTPLoader(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Contains(t, r.Header.Get("Accept"), "application/activity+json")
			require.Equal(t, "fedikit-test", r.Header.Get("User-Agent"))

			w.Header().Set("Content-Type", "application/activity+json")
			_, _ = w.Write([]byte(`{"id":"https://example.com/o/1","type":"Note"}`))
		}))
		defer server.Close()

		loader := NewHTTPLoader(WithUserAgent("fedikit-test"), WithPrivateAddresses())

		doc, err := loader.LoadDocument(server.URL + "/o/1")
		require.NoError(t, err)

		document, ok := doc.Document.(map[string]interface{})
		require.True(t, ok)
		require.Equal(t, "Note", document["type"])
	})

	t.Run("Retries server errors", func(t *testing.T) {
		var calls int32

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if atomic.AddInt32(&calls, 1) < 3 {
				w.WriteHeader(http.StatusInternalServerError)

				return
			}

			_, _ = w.Write([]byte(`{"type":"Note"}`))
		}))
		defer server.Close()

		loader := NewHTTPLoader(
			WithPrivateAddresses(),
			WithMaxRetries(5),
			WithInitialBackoff(time.Millisecond),
		)

		_, err := loader.LoadDocument(server.URL)
		require.NoError(t, err)
		require.EqualValues(t, 3, atomic.LoadInt32(&calls))
	})

	t.Run("Does not retry client errors", func(t *testing.T) {
		var calls int32

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		loader := NewHTTPLoader(
			WithPrivateAddresses(),
			WithMaxRetries(5),
			WithInitialBackoff(time.Millisecond),
		)

		_, err := loader.LoadDocument(server.URL)
		require.Error(t, err)
		require.True(t, fkerrors.IsFetch(err))
		require.EqualValues(t, 1, atomic.LoadInt32(&calls))
	})

	t.Run("Rejects private addresses by default", func(t *testing.T) {
		loader := NewHTTPLoader()

		for _, u := range []string{
			"http://127.0.0.1/actor",
			"http://localhost:8080/actor",
			"http://10.0.0.5/actor",
			"http://[::1]/actor",
		} {
			_, err := loader.LoadDocument(u)
			require.Error(t, err, u)
			require.True(t, fkerrors.IsFetch(err), u)
		}
	})
}

func TestCacheLoader(t *testing.T) {
	var calls int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`{"type":"Note"}`))
	}))
	defer server.Close()

	loader := NewCacheLoader(NewHTTPLoader(WithPrivateAddresses()), memstore.New())

	for i := 0; i < 3; i++ {
		doc, err := loader.LoadDocument(server.URL + "/o/1")
		require.NoError(t, err)
		require.NotNil(t, doc.Document)
	}

	require.EqualValues(t, 1, atomic.LoadInt32(&calls))

	t.Run("Cache entries live under the configured prefix", func(t *testing.T) {
		store := memstore.New()

		loader := NewCacheLoader(NewHTTPLoader(WithPrivateAddresses()), store,
			WithCachePrefix("custom"))

		_, err := loader.LoadDocument(server.URL + "/o/3")
		require.NoError(t, err)

		_, err = store.Get(context.Background(), spi.Key{"custom", "docloader", server.URL + "/o/3"})
		require.NoError(t, err)
	})

	t.Run("Whitelist bypasses the cache", func(t *testing.T) {
		atomic.StoreInt32(&calls, 0)

		loader := NewCacheLoader(NewHTTPLoader(WithPrivateAddresses()), memstore.New(),
			WithCacheable(func(string) bool { return false }))

		for i := 0; i < 2; i++ {
			_, err := loader.LoadDocument(server.URL + "/o/2")
			require.NoError(t, err)
		}

		require.EqualValues(t, 2, atomic.LoadInt32(&calls))
	})
}

func TestStaticLoader(t *testing.T) {
	loader := NewStaticLoader(map[string]interface{}{
		"https://www.w3.org/ns/activitystreams": map[string]interface{}{"@context": map[string]interface{}{}},
	}, nil)

	doc, err := loader.LoadDocument("https://www.w3.org/ns/activitystreams")
	require.NoError(t, err)
	require.NotNil(t, doc.Document)

	_, err = loader.LoadDocument("https://example.com/unknown")
	require.Error(t, err)
	require.True(t, fkerrors.IsFetch(err))

	var _ ld.DocumentLoader = loader
}
