/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package ldsig

import (
	"crypto/rsa"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fedikit/fedikit/pkg/docloader"
	"github.com/fedikit/fedikit/pkg/keys"
	"github.com/fedikit/fedikit/pkg/vocab"
)

func testLoader() *docloader.StaticLoader {
	return docloader.NewStaticLoader(map[string]interface{}{
		vocab.ContextActivityStreams: map[string]interface{}{
			"@context": map[string]interface{}{"@vocab": "https://www.w3.org/ns/activitystreams#"},
		},
		vocab.ContextSecurity: map[string]interface{}{
			"@context": map[string]interface{}{"@vocab": "https://w3id.org/security#"},
		},
	}, nil)
}

func TestSignAndVerify(t *testing.T) {
	creator := mustParse(t, "https://example.com/u/alice#main-key")

	pair, err := keys.GenerateRSAKeyPair(creator)
	require.NoError(t, err)

	privateKey := pair.PrivateKey.(*rsa.PrivateKey)
	publicKey := pair.PublicKey.(*rsa.PublicKey)

	signer := NewSigner(testLoader())

	newSignedActivity := func(t *testing.T) *vocab.Activity {
		t.Helper()

		activity, err := vocab.ParseActivity([]byte(`{
			"@context":"https://www.w3.org/ns/activitystreams",
			"id":"https://example.com/a/1",
			"type":"Create",
			"actor":"https://example.com/u/alice",
			"object":{"id":"https://example.com/o/1","type":"Note","content":"hello"}
		}`))
		require.NoError(t, err)

		require.NoError(t, signer.Sign(activity, privateKey, creator))

		return activity
	}

	t.Run("Round trip", func(t *testing.T) {
		activity := newSignedActivity(t)

		signature := activity.Signature()
		require.NotNil(t, signature)
		require.Equal(t, SignatureType, signature["type"])
		require.Equal(t, creator.String(), signature["creator"])

		verifiedCreator, err := signer.Verify(activity, publicKey)
		require.NoError(t, err)
		require.Equal(t, creator.String(), verifiedCreator.String())
	})

	t.Run("Round trip survives serialization", func(t *testing.T) {
		data, err := newSignedActivity(t).MarshalJSON()
		require.NoError(t, err)

		delivered, err := vocab.ParseActivity(data)
		require.NoError(t, err)

		verifiedCreator, err := signer.Verify(delivered, publicKey)
		require.NoError(t, err)
		require.Equal(t, creator.String(), verifiedCreator.String())
	})

	t.Run("Signs a constructed activity with audience options", func(t *testing.T) {
		activity := vocab.NewActivity(vocab.TypeCreate,
			vocab.WithID(mustParse(t, "https://example.com/a/2")),
			vocab.WithTo(vocab.PublicIRI, "https://example.com/u/bob"),
			vocab.WithCC("https://example.com/u/carol"))
		activity.SetActor(mustParse(t, "https://example.com/u/alice"))

		require.NoError(t, signer.Sign(activity, privateKey, creator))

		_, err := signer.Verify(activity, publicKey)
		require.NoError(t, err)
	})

	t.Run("Tampered document", func(t *testing.T) {
		activity := newSignedActivity(t)
		activity.SetProperty("actor", "https://example.com/u/mallory")

		_, err := signer.Verify(activity, publicKey)
		require.Error(t, err)
	})

	t.Run("Wrong key", func(t *testing.T) {
		otherPair, err := keys.GenerateRSAKeyPair(creator)
		require.NoError(t, err)

		_, err = signer.Verify(newSignedActivity(t), otherPair.PublicKey.(*rsa.PublicKey))
		require.Error(t, err)
	})

	t.Run("No signature", func(t *testing.T) {
		activity := vocab.NewActivity(vocab.TypeCreate)

		_, err := signer.Verify(activity, publicKey)
		require.Error(t, err)
	})

	t.Run("Unsupported signature type", func(t *testing.T) {
		activity := newSignedActivity(t)

		signature := activity.Signature()
		signature["type"] = "Ed25519Signature2020"

		_, err := signer.Verify(activity, publicKey)
		require.Error(t, err)
	})
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()

	iri, err := url.Parse(raw)
	require.NoError(t, err)

	return iri
}
