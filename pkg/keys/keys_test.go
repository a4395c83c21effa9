/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package keys

import (
	"crypto/ed25519"
	"crypto/rsa"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fedikit/fedikit/pkg/vocab"
)

func TestRSAKeyPair(t *testing.T) {
	keyID := mustParse(t, "https://example.com/u/alice#main-key")
	owner := mustParse(t, "https://example.com/u/alice")

	pair, err := GenerateRSAKeyPair(keyID)
	require.NoError(t, err)
	require.True(t, pair.IsRSA())
	require.False(t, pair.IsEd25519())

	t.Run("CryptographicKey round trip", func(t *testing.T) {
		key, err := pair.CryptographicKey(owner)
		require.NoError(t, err)
		require.Equal(t, keyID.String(), key.ID)
		require.Equal(t, owner.String(), key.Owner)
		require.True(t, strings.HasPrefix(key.PublicKeyPem, "-----BEGIN PUBLIC KEY-----"))

		decoded, err := DecodePublicKeyPEM(key.PublicKeyPem)
		require.NoError(t, err)

		rsaKey, ok := decoded.(*rsa.PublicKey)
		require.True(t, ok)
		require.True(t, rsaKey.Equal(pair.PublicKey.(*rsa.PublicKey)))
	})

	t.Run("Multikey rejected", func(t *testing.T) {
		_, err := pair.Multikey(owner)
		require.Error(t, err)
	})

	t.Run("JWK round trip", func(t *testing.T) {
		data, err := ExportPrivateJWK(keyID, pair.PrivateKey)
		require.NoError(t, err)

		imported, err := ImportPrivateJWK(data)
		require.NoError(t, err)
		require.Equal(t, keyID.String(), imported.KeyID.String())
		require.True(t, imported.IsRSA())
	})
}

func TestEd25519KeyPair(t *testing.T) {
	keyID := mustParse(t, "https://example.com/u/alice#key-1")
	controller := mustParse(t, "https://example.com/u/alice")

	pair, err := GenerateEd25519KeyPair(keyID)
	require.NoError(t, err)
	require.True(t, pair.IsEd25519())

	t.Run("Multikey round trip", func(t *testing.T) {
		key, err := pair.Multikey(controller)
		require.NoError(t, err)
		require.Equal(t, vocab.MultikeyType, key.Type)
		require.True(t, strings.HasPrefix(key.PublicKeyMultibase, "z"))

		decoded, err := DecodeMultibase(key.PublicKeyMultibase)
		require.NoError(t, err)
		require.Equal(t, pair.PublicKey.(ed25519.PublicKey), decoded)
	})

	t.Run("Decode rejects bad prefix", func(t *testing.T) {
		_, err := DecodeMultibase("zQ3sh")
		require.Error(t, err)
	})

	t.Run("JWK round trip", func(t *testing.T) {
		data, err := ExportPrivateJWK(keyID, pair.PrivateKey)
		require.NoError(t, err)

		imported, err := ImportPrivateJWK(data)
		require.NoError(t, err)
		require.True(t, imported.IsEd25519())

		message := []byte("sign me")
		signature := ed25519.Sign(imported.PrivateKey.(ed25519.PrivateKey), message)
		require.True(t, ed25519.Verify(pair.PublicKey.(ed25519.PublicKey), message, signature))
	})
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()

	iri, err := url.Parse(raw)
	require.NoError(t, err)

	return iri
}
