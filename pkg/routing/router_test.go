/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package routing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRouter_Add(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		r := New()

		variables, err := r.Add("/users/{identifier}", "actor")
		require.NoError(t, err)
		require.Len(t, variables, 1)
		require.Contains(t, variables, "identifier")

		variables, err = r.Add("/users/{identifier}/followers", "followers")
		require.NoError(t, err)
		require.Contains(t, variables, "identifier")

		variables, err = r.Add("/notes/{year}/{id}", "object:Note")
		require.NoError(t, err)
		require.Len(t, variables, 2)
	})

	t.Run("Duplicate name -> error", func(t *testing.T) {
		r := New()

		_, err := r.Add("/users/{identifier}", "actor")
		require.NoError(t, err)

		_, err = r.Add("/people/{identifier}", "actor")
		require.Error(t, err)

		routerErr := &RouterError{}
		require.ErrorAs(t, err, &routerErr)
	})

	t.Run("Ambiguous template -> error", func(t *testing.T) {
		r := New()

		_, err := r.Add("/users/{identifier}", "actor")
		require.NoError(t, err)

		// Same pattern with a different variable name matches the same paths.
		_, err = r.Add("/users/{handle}", "profile")
		require.Error(t, err)
		require.Contains(t, err.Error(), "ambiguous")
	})

	t.Run("Overlapping but distinguishable templates -> success", func(t *testing.T) {
		r := New()

		_, err := r.Add("/users/{identifier}", "actor")
		require.NoError(t, err)

		_, err = r.Add("/users/me", "self")
		require.NoError(t, err)
	})

	t.Run("Not starting with / -> error", func(t *testing.T) {
		r := New()

		_, err := r.Add("users/{identifier}", "actor")
		require.Error(t, err)
	})

	t.Run("Malformed template -> error", func(t *testing.T) {
		r := New()

		_, err := r.Add("/users/{identifier", "actor")
		require.Error(t, err)

		_, err = r.Add("/users/{}", "actor")
		require.Error(t, err)

		_, err = r.Add("/users/{1dent}", "actor")
		require.Error(t, err)

		_, err = r.Add("/users//inbox", "actor")
		require.Error(t, err)

		_, err = r.Add("/users/{id}/{id}", "actor")
		require.Error(t, err)
	})
}

func TestRouter_Route(t *testing.T) {
	r := New()

	_, err := r.Add("/users/{identifier}", "actor")
	require.NoError(t, err)

	_, err = r.Add("/users/{identifier}/inbox", "inbox")
	require.NoError(t, err)

	_, err = r.Add("/inbox", "sharedInbox")
	require.NoError(t, err)

	_, err = r.Add("/users/admin", "admin")
	require.NoError(t, err)

	t.Run("Variable match", func(t *testing.T) {
		m := r.Route("/users/alice")
		require.NotNil(t, m)
		require.Equal(t, "actor", m.Name)
		require.Equal(t, map[string]string{"identifier": "alice"}, m.Values)

		m = r.Route("/users/alice/inbox")
		require.NotNil(t, m)
		require.Equal(t, "inbox", m.Name)
	})

	t.Run("Literal beats variable", func(t *testing.T) {
		m := r.Route("/users/admin")
		require.NotNil(t, m)
		require.Equal(t, "admin", m.Name)
		require.Empty(t, m.Values)
	})

	t.Run("No match -> nil", func(t *testing.T) {
		require.Nil(t, r.Route("/users"))
		require.Nil(t, r.Route("/users/alice/outbox"))
		require.Nil(t, r.Route("no-leading-slash"))
	})

	t.Run("Trailing slash sensitive by default", func(t *testing.T) {
		require.Nil(t, r.Route("/users/alice/"))
	})

	t.Run("Trailing slash insensitive", func(t *testing.T) {
		ri := New(WithTrailingSlashInsensitive())

		_, err := ri.Add("/users/{identifier}", "actor")
		require.NoError(t, err)

		m := ri.Route("/users/alice/")
		require.NotNil(t, m)
		require.Equal(t, "actor", m.Name)

		m = ri.Route("/users/alice")
		require.NotNil(t, m)
		require.Equal(t, "actor", m.Name)
	})
}

func TestRouter_Build(t *testing.T) {
	r := New()

	_, err := r.Add("/users/{identifier}/followers", "followers")
	require.NoError(t, err)

	t.Run("Success", func(t *testing.T) {
		path, ok := r.Build("followers", map[string]string{"identifier": "alice"})
		require.True(t, ok)
		require.Equal(t, "/users/alice/followers", path)
	})

	t.Run("Unknown route -> false", func(t *testing.T) {
		_, ok := r.Build("outbox", nil)
		require.False(t, ok)
	})

	t.Run("Missing value -> false", func(t *testing.T) {
		_, ok := r.Build("followers", map[string]string{})
		require.False(t, ok)
	})
}

func TestRouter_RoundTrip(t *testing.T) {
	r := New()

	_, err := r.Add("/notes/{year}/{id}", "object:Note")
	require.NoError(t, err)

	values := map[string]string{"year": "2024", "id": "abc"}

	path, ok := r.Build("object:Note", values)
	require.True(t, ok)

	m := r.Route(path)
	require.NotNil(t, m)
	require.Equal(t, "object:Note", m.Name)
	require.Equal(t, values, m.Values)
}
