/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type pingHandler struct{}

func (h *pingHandler) Path() string   { return "/ping" }
func (h *pingHandler) Method() string { return http.MethodGet }

func (h *pingHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("pong"))
}

func TestServer(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	address := listener.Addr().String()
	require.NoError(t, listener.Close())

	server := New(DefaultConfig(address), &pingHandler{})

	require.NoError(t, server.Start())

	t.Run("Double start fails", func(t *testing.T) {
		require.Error(t, server.Start())
	})

	t.Run("Serves mounted handlers", func(t *testing.T) {
		var resp *http.Response

		require.Eventually(t, func() bool {
			var err error

			resp, err = http.Get(fmt.Sprintf("http://%s/ping", address))

			return err == nil
		}, 5*time.Second, 50*time.Millisecond)

		defer func() {
			require.NoError(t, resp.Body.Close())
		}()

		require.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("Method not allowed", func(t *testing.T) {
		resp, err := http.Post(fmt.Sprintf("http://%s/ping", address), "text/plain", nil)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
		require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})

	require.NoError(t, server.Stop(context.Background()))

	t.Run("Double stop fails", func(t *testing.T) {
		require.Error(t, server.Stop(context.Background()))
	})
}
