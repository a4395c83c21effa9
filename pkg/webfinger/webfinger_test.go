/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package webfinger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	fkerrors "github.com/fedikit/fedikit/pkg/errors"
)

func TestParseAcct(t *testing.T) {
	t.Run("Valid forms", func(t *testing.T) {
		for _, resource := range []string{
			"acct:alice@example.com",
			"alice@example.com",
			"@alice@example.com",
		} {
			acct, err := ParseAcct(resource)
			require.NoError(t, err, resource)
			require.Equal(t, "alice", acct.Username)
			require.Equal(t, "example.com", acct.Host)
		}
	})

	t.Run("Invalid forms", func(t *testing.T) {
		for _, resource := range []string{
			"acct:alice",
			"alice",
			"acct:@example.com",
			"acct:alice@",
			"acct:alice@host/path",
		} {
			_, err := ParseAcct(resource)
			require.Error(t, err, resource)
		}
	})
}

func TestJRD_ActorLink(t *testing.T) {
	descriptor := &JRD{
		Subject: "acct:alice@example.com",
		Links: []Link{
			{Rel: "http://webfinger.net/rel/profile-page", Type: "text/html", Href: "https://example.com/@alice"},
			{Rel: RelSelf, Type: "application/activity+json", Href: "https://example.com/u/alice"},
		},
	}

	require.Equal(t, "https://example.com/u/alice", descriptor.ActorLink())

	require.Empty(t, (&JRD{}).ActorLink())
}

type mapResolver map[string]*JRD

func (r mapResolver) ResolveResource(_ context.Context, resource string) (*JRD, error) {
	descriptor, ok := r[resource]
	if !ok {
		return nil, fkerrors.ErrNotFound
	}

	return descriptor, nil
}

func TestHandler(t *testing.T) {
	handler := NewHandler(mapResolver{
		"acct:alice@example.com": {
			Subject: "acct:alice@example.com",
			Links:   []Link{{Rel: RelSelf, Type: "application/activity+json", Href: "https://example.com/u/alice"}},
		},
	})

	require.Equal(t, WebFingerPath, handler.Path())
	require.Equal(t, http.MethodGet, handler.Method())

	t.Run("Success", func(t *testing.T) {
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
			"/.well-known/webfinger?resource="+url.QueryEscape("acct:alice@example.com"), nil))

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, ContentType, rec.Header().Get("Content-Type"))

		descriptor := &JRD{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), descriptor))
		require.Equal(t, "https://example.com/u/alice", descriptor.ActorLink())
	})

	t.Run("Missing resource", func(t *testing.T) {
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/.well-known/webfinger", nil))

		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Unknown resource", func(t *testing.T) {
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
			"/.well-known/webfinger?resource="+url.QueryEscape("acct:bob@example.com"), nil))

		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		require.Equal(t, WebFingerPath, req.URL.Path)

		if req.URL.Query().Get("resource") != "acct:alice@"+req.Host {
			w.WriteHeader(http.StatusNotFound)

			return
		}

		w.Header().Set("Content-Type", ContentType)
		_, _ = w.Write([]byte(`{
			"subject":"acct:alice@` + req.Host + `",
			"links":[{"rel":"self","type":"application/activity+json","href":"https://example.com/u/alice"}]
		}`))
	}))
	defer server.Close()

	host := strings.TrimPrefix(server.URL, "http://")

	client := NewClient(http.DefaultClient, WithInsecure())

	t.Run("Success", func(t *testing.T) {
		descriptor, err := client.ResolveHandle(context.Background(), Acct{Username: "alice", Host: host})
		require.NoError(t, err)
		require.Equal(t, "https://example.com/u/alice", descriptor.ActorLink())
	})

	t.Run("Not found", func(t *testing.T) {
		_, err := client.ResolveHandle(context.Background(), Acct{Username: "bob", Host: host})
		require.Error(t, err)
		require.True(t, fkerrors.IsFetch(err))
	})
}
