/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package nodeinfo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

type testDispatcher struct{}

func (d *testDispatcher) GetNodeInfo(context.Context, Version) *NodeInfo {
	return &NodeInfo{
		Software: Software{
			Name:       "fedikit",
			Version:    "1.0.0",
			Repository: "https://github.com/fedikit/fedikit",
		},
		Usage:    Usage{Users: Users{Total: 42}, LocalPosts: 7},
		Metadata: map[string]interface{}{"nodeName": "test node"},
	}
}

func TestHandler(t *testing.T) {
	t.Run("Version 2.0 strips repository", func(t *testing.T) {
		handler := NewHandler(V2_0, &testDispatcher{})
		require.Equal(t, "/nodeinfo/2.0", handler.Path())
		require.Equal(t, http.MethodGet, handler.Method())

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nodeinfo/2.0", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Header().Get("Content-Type"), "http://nodeinfo.diaspora.software/ns/schema/2.0#")

		nodeInfo := &NodeInfo{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), nodeInfo))
		require.Equal(t, "2.0", nodeInfo.Version)
		require.Equal(t, []string{"activitypub"}, nodeInfo.Protocols)
		require.Empty(t, nodeInfo.Software.Repository)
		require.Equal(t, 42, nodeInfo.Usage.Users.Total)
		require.Equal(t, "test node", nodeInfo.Metadata["nodeName"])
	})

	t.Run("Version 2.1 keeps repository", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewHandler(V2_1, &testDispatcher{}).ServeHTTP(rec,
			httptest.NewRequest(http.MethodGet, "/nodeinfo/2.1", nil))

		nodeInfo := &NodeInfo{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), nodeInfo))
		require.Equal(t, "2.1", nodeInfo.Version)
		require.Equal(t, "https://github.com/fedikit/fedikit", nodeInfo.Software.Repository)
	})
}

func TestWellKnownHandler(t *testing.T) {
	baseURL, err := url.Parse("https://example.com")
	require.NoError(t, err)

	handler := NewWellKnownHandler(baseURL, V2_0, V2_1)
	require.Equal(t, WellKnownPath, handler.Path())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, WellKnownPath, nil))

	require.Equal(t, http.StatusOK, rec.Code)

	links := &Links{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), links))
	require.Len(t, links.Links, 2)
	require.Equal(t, "http://nodeinfo.diaspora.software/ns/schema/2.0", links.Links[0].Rel)
	require.Equal(t, "https://example.com/nodeinfo/2.0", links.Links[0].Href)
}
