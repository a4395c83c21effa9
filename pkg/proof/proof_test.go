/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package proof

import (
	"crypto/ed25519"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fedikit/fedikit/pkg/keys"
	"github.com/fedikit/fedikit/pkg/vocab"
)

func TestAddProofAndVerify(t *testing.T) {
	verificationMethod := mustParse(t, "https://example.com/u/alice#key-1")

	pair, err := keys.GenerateEd25519KeyPair(verificationMethod)
	require.NoError(t, err)

	privateKey := pair.PrivateKey.(ed25519.PrivateKey)
	publicKey := pair.PublicKey.(ed25519.PublicKey)

	newProvenActivity := func(t *testing.T) *vocab.Activity {
		t.Helper()

		activity, err := vocab.ParseActivity([]byte(`{
			"@context":"https://www.w3.org/ns/activitystreams",
			"id":"https://example.com/a/1",
			"type":"Create",
			"actor":"https://example.com/u/alice",
			"object":{"id":"https://example.com/o/1","type":"Note","content":"hello"}
		}`))
		require.NoError(t, err)

		require.NoError(t, NewCreator().AddProof(activity, privateKey, verificationMethod))

		return activity
	}

	t.Run("Round trip", func(t *testing.T) {
		activity := newProvenActivity(t)

		proofs := activity.Proofs()
		require.Len(t, proofs, 1)
		require.Equal(t, ProofType, proofs[0]["type"])
		require.Equal(t, Cryptosuite, proofs[0]["cryptosuite"])

		method, err := VerificationMethod(proofs[0])
		require.NoError(t, err)
		require.Equal(t, verificationMethod.String(), method.String())

		require.NoError(t, Verify(activity, proofs[0], publicKey))
	})

	t.Run("Proof survives redistribution", func(t *testing.T) {
		// Re-parse from serialized form, as a forwarding recipient would.
		data, err := newProvenActivity(t).MarshalJSON()
		require.NoError(t, err)

		activity, err := vocab.ParseActivity(data)
		require.NoError(t, err)

		require.NoError(t, Verify(activity, activity.Proofs()[0], publicKey))
	})

	t.Run("Tampered document", func(t *testing.T) {
		activity := newProvenActivity(t)
		activity.SetProperty("actor", "https://example.com/u/mallory")

		require.Error(t, Verify(activity, activity.Proofs()[0], publicKey))
	})

	t.Run("Wrong key", func(t *testing.T) {
		otherPair, err := keys.GenerateEd25519KeyPair(verificationMethod)
		require.NoError(t, err)

		activity := newProvenActivity(t)

		require.Error(t, Verify(activity, activity.Proofs()[0], otherPair.PublicKey.(ed25519.PublicKey)))
	})

	t.Run("Multiple proofs verify independently", func(t *testing.T) {
		activity := newProvenActivity(t)

		secondMethod := mustParse(t, "https://example.com/u/alice#key-2")

		secondPair, err := keys.GenerateEd25519KeyPair(secondMethod)
		require.NoError(t, err)

		require.NoError(t, NewCreator().AddProof(activity, secondPair.PrivateKey.(ed25519.PrivateKey), secondMethod))
		require.Len(t, activity.Proofs(), 2)

		require.NoError(t, Verify(activity, activity.Proofs()[1], secondPair.PublicKey.(ed25519.PublicKey)))
	})

	t.Run("Unsupported cryptosuite", func(t *testing.T) {
		activity := newProvenActivity(t)

		proof := activity.Proofs()[0]
		proof["cryptosuite"] = "ecdsa-jcs-2019"

		require.Error(t, Verify(activity, proof, publicKey))
	})
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()

	iri, err := url.Parse(raw)
	require.NoError(t, err)

	return iri
}
