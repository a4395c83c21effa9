/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fedikit/fedikit/pkg/client/transport"
	fkerrors "github.com/fedikit/fedikit/pkg/errors"
)

func TestClient(t *testing.T) {
	var actorCalls int32

	mux := http.NewServeMux()

	var serverURL string

	mux.HandleFunc("/u/alice", func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&actorCalls, 1)

		_, _ = w.Write([]byte(`{
			"type":"Person",
			"id":"` + serverURL + `/u/alice",
			"preferredUsername":"alice",
			"publicKey":{
				"id":"` + serverURL + `/u/alice#main-key",
				"owner":"` + serverURL + `/u/alice",
				"publicKeyPem":"-----BEGIN PUBLIC KEY-----"
			}
		}`))
	})

	mux.HandleFunc("/o/1", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"type":"Note","id":"` + serverURL + `/o/1"}`))
	})

	mux.HandleFunc("/o/gone", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusGone)
	})

	mux.HandleFunc("/o/broken", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	serverURL = server.URL

	c := New(transport.Default())

	t.Run("GetActor caches", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			actor, err := c.GetActor(context.Background(), mustParse(t, server.URL+"/u/alice"))
			require.NoError(t, err)
			require.Equal(t, "alice", actor.PreferredUsername())
		}

		require.EqualValues(t, 1, atomic.LoadInt32(&actorCalls))
	})

	t.Run("GetObject", func(t *testing.T) {
		obj, err := c.GetObject(context.Background(), mustParse(t, server.URL+"/o/1"))
		require.NoError(t, err)
		require.Equal(t, server.URL+"/o/1", obj.ID().String())
	})

	t.Run("Object is not an actor", func(t *testing.T) {
		_, err := c.GetActor(context.Background(), mustParse(t, server.URL+"/o/1"))
		require.Error(t, err)
	})

	t.Run("ResolveKey from actor document", func(t *testing.T) {
		key, err := c.ResolveKey(context.Background(), server.URL+"/u/alice#main-key")
		require.NoError(t, err)
		require.Equal(t, server.URL+"/u/alice", key.Owner)
	})

	t.Run("Gone is not found", func(t *testing.T) {
		_, err := c.GetObject(context.Background(), mustParse(t, server.URL+"/o/gone"))
		require.Error(t, err)
		require.True(t, fkerrors.IsFetch(err))
		require.True(t, errors.Is(err, fkerrors.ErrNotFound))
	})

	t.Run("Server error is transient", func(t *testing.T) {
		_, err := c.GetObject(context.Background(), mustParse(t, server.URL+"/o/broken"))
		require.Error(t, err)
		require.True(t, fkerrors.IsTransient(err))
	})

	t.Run("LoadDocument", func(t *testing.T) {
		doc, err := c.LoadDocument(server.URL + "/o/1")
		require.NoError(t, err)

		document, ok := doc.Document.(map[string]interface{})
		require.True(t, ok)
		require.Equal(t, "Note", document["type"])
	})
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()

	iri, err := url.Parse(raw)
	require.NoError(t, err)

	return iri
}
