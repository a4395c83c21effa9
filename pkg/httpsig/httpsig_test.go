/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package httpsig

import (
	"bytes"
	"context"
	"crypto/sha1" //nolint:gosec
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/piprate/json-gold/ld"
	"github.com/stretchr/testify/require"

	"github.com/fedikit/fedikit/pkg/keys"
	"github.com/fedikit/fedikit/pkg/store/memstore"
	"github.com/fedikit/fedikit/pkg/store/spi"
	"github.com/fedikit/fedikit/pkg/vocab"
)

type staticResolver struct {
	key *vocab.CryptographicKey
	err error
}

func (r *staticResolver) ResolveKey(context.Context, string) (*vocab.CryptographicKey, error) {
	return r.key, r.err
}

func TestSignAndVerify(t *testing.T) {
	keyID := mustParse(t, "https://example.com/u/alice#main-key")
	owner := mustParse(t, "https://example.com/u/alice")

	pair, err := keys.GenerateRSAKeyPair(keyID)
	require.NoError(t, err)

	publicKey, err := pair.CryptographicKey(owner)
	require.NoError(t, err)

	resolver := &staticResolver{key: publicKey}

	body := []byte(`{"type":"Follow"}`)

	newSignedRequest := func(t *testing.T) *http.Request {
		t.Helper()

		req, err := http.NewRequest(http.MethodPost, "https://example.com/u/bob/inbox", bytes.NewReader(body))
		require.NoError(t, err)

		require.NoError(t, NewSigner(DefaultPostSignerConfig()).SignRequest(pair.PrivateKey, keyID.String(), req, body))

		return req
	}

	t.Run("Success", func(t *testing.T) {
		key, err := NewVerifier(resolver).VerifyRequest(newSignedRequest(t), body)
		require.NoError(t, err)
		require.NotNil(t, key)
		require.Equal(t, owner.String(), key.Owner)
	})

	t.Run("Tampered body", func(t *testing.T) {
		key, err := NewVerifier(resolver).VerifyRequest(newSignedRequest(t), []byte(`{"type":"Delete"}`))
		require.NoError(t, err)
		require.Nil(t, key)
	})

	t.Run("Tampered target", func(t *testing.T) {
		req := newSignedRequest(t)
		req.URL.Path = "/u/carol/inbox"

		key, err := NewVerifier(resolver).VerifyRequest(req, body)
		require.NoError(t, err)
		require.Nil(t, key)
	})

	t.Run("Signature must cover the digest", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPost, "https://example.com/u/bob/inbox", bytes.NewReader(body))
		require.NoError(t, err)

		cfg := DefaultPostSignerConfig()
		cfg.Headers = []string{"(request-target)", "Host", "Date"}

		require.NoError(t, NewSigner(cfg).SignRequest(pair.PrivateKey, keyID.String(), req, body))

		key, err := NewVerifier(resolver).VerifyRequest(req, body)
		require.NoError(t, err)
		require.Nil(t, key)
	})

	t.Run("Stale date", func(t *testing.T) {
		verifier := NewVerifier(resolver, WithClock(func() time.Time {
			return time.Now().Add(2 * time.Hour)
		}))

		key, err := verifier.VerifyRequest(newSignedRequest(t), body)
		require.NoError(t, err)
		require.Nil(t, key)
	})

	t.Run("Date check disabled", func(t *testing.T) {
		verifier := NewVerifier(resolver,
			WithDateWindow(0),
			WithClock(func() time.Time { return time.Now().Add(24 * time.Hour) }),
		)

		key, err := verifier.VerifyRequest(newSignedRequest(t), body)
		require.NoError(t, err)
		require.NotNil(t, key)
	})

	t.Run("No signature header", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPost, "https://example.com/u/bob/inbox", bytes.NewReader(body))
		require.NoError(t, err)

		key, err := NewVerifier(resolver).VerifyRequest(req, body)
		require.NoError(t, err)
		require.Nil(t, key)
	})

	t.Run("Unresolvable key is unverified, not a server error", func(t *testing.T) {
		key, err := NewVerifier(&staticResolver{err: context.DeadlineExceeded}).VerifyRequest(newSignedRequest(t), body)
		require.NoError(t, err)
		require.Nil(t, key)
	})
}

func TestResolverCachePrefix(t *testing.T) {
	keyID := "https://example.com/u/alice#main-key"

	loader := &staticLoader{doc: map[string]interface{}{
		"id":           keyID,
		"owner":        "https://example.com/u/alice",
		"publicKeyPem": "-----BEGIN PUBLIC KEY-----",
	}}

	store := memstore.New()

	resolver := NewResolver(loader, store, WithKeyCachePrefix("custom"))

	key, err := resolver.ResolveKey(context.Background(), keyID)
	require.NoError(t, err)
	require.Equal(t, "https://example.com/u/alice", key.Owner)

	_, err = store.Get(context.Background(), spi.Key{"custom", "httpsig-key", keyID})
	require.NoError(t, err)
}

type staticLoader struct {
	doc map[string]interface{}
}

func (l *staticLoader) LoadDocument(u string) (*ld.RemoteDocument, error) {
	return &ld.RemoteDocument{DocumentURL: u, Document: l.doc}, nil
}

func TestCheckDigest(t *testing.T) {
	body := []byte("payload")

	sha256Digest := "SHA-256=" + base64.StdEncoding.EncodeToString(func() []byte {
		sum := sha256.Sum256(body)

		return sum[:]
	}())

	sha1Digest := "SHA-1=" + base64.StdEncoding.EncodeToString(func() []byte {
		sum := sha1.Sum(body) //nolint:gosec

		return sum[:]
	}())

	newRequest := func(t *testing.T, digests ...string) *http.Request {
		t.Helper()

		req, err := http.NewRequest(http.MethodPost, "https://example.com/inbox", nil)
		require.NoError(t, err)

		for _, digest := range digests {
			req.Header.Add("Digest", digest)
		}

		return req
	}

	t.Run("All digest values must match", func(t *testing.T) {
		verifier := NewVerifier(nil)

		require.True(t, verifier.checkDigest(newRequest(t, sha256Digest), body))
		require.False(t, verifier.checkDigest(newRequest(t, sha256Digest, "SHA-256=bogus"), body))
	})

	t.Run("SHA-1 rejected by default", func(t *testing.T) {
		require.False(t, NewVerifier(nil).checkDigest(newRequest(t, sha1Digest), body))
		require.True(t, NewVerifier(nil, WithLegacySHA1()).checkDigest(newRequest(t, sha1Digest), body))
	})
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()

	iri, err := url.Parse(raw)
	require.NoError(t, err)

	return iri
}
