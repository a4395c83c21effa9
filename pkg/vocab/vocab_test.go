/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vocab

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTypeHierarchy(t *testing.T) {
	t.Run("Direct subtypes", func(t *testing.T) {
		super, ok := SuperType(TypeCreate)
		require.True(t, ok)
		require.Equal(t, TypeActivity, super)
	})

	t.Run("Deep subtypes", func(t *testing.T) {
		super, ok := SuperType(TypeTentativeAccept)
		require.True(t, ok)
		require.Equal(t, TypeAccept, super)

		super, ok = SuperType(TypeInvite)
		require.True(t, ok)
		require.Equal(t, TypeOffer, super)
	})

	t.Run("Activity is the root", func(t *testing.T) {
		_, ok := SuperType(TypeActivity)
		require.False(t, ok)
	})

	t.Run("IsActivityType", func(t *testing.T) {
		require.True(t, IsActivityType(TypeActivity))
		require.True(t, IsActivityType(TypeTentativeAccept))
		require.True(t, IsActivityType(TypeQuestion))
		require.False(t, IsActivityType(TypeNote))
		require.False(t, IsActivityType(TypePerson))
	})

	t.Run("IsActorType", func(t *testing.T) {
		require.True(t, IsActorType(TypePerson))
		require.True(t, IsActorType(TypeService))
		require.False(t, IsActorType(TypeCreate))
	})
}

func TestObject(t *testing.T) {
	t.Run("Types", func(t *testing.T) {
		obj, err := ParseObject([]byte(`{"id":"https://example.com/o/1","type":["Create","Offer"]}`))
		require.NoError(t, err)

		require.Equal(t, TypeCreate, obj.Type())
		require.True(t, obj.HasType(TypeOffer))
		require.False(t, obj.HasType(TypeNote))
		require.Equal(t, "https://example.com/o/1", obj.ID().String())
	})

	t.Run("AddContext", func(t *testing.T) {
		obj := NewObject(TypeNote)
		obj.AddContext(ContextSecurity, ContextActivityStreams)

		contexts, ok := obj.Property("@context").([]interface{})
		require.True(t, ok)
		require.Equal(t, []interface{}{ContextActivityStreams, ContextSecurity}, contexts)
	})

	t.Run("Audience options use the generic JSON shape", func(t *testing.T) {
		obj := NewObject(TypeNote,
			WithTo(PublicIRI, "https://example.com/u/bob"),
			WithCC("https://example.com/u/carol"))

		require.Equal(t, []interface{}{PublicIRI, "https://example.com/u/bob"}, obj.Property("to"))
		require.Equal(t, []interface{}{"https://example.com/u/carol"}, obj.Property("cc"))
	})

	t.Run("NodeProperty", func(t *testing.T) {
		obj, err := ParseObject([]byte(`{
			"actor":"https://example.com/u/alice",
			"object":{"id":"https://example.com/o/1","type":"Note"}
		}`))
		require.NoError(t, err)

		iri, doc := obj.NodeProperty("actor")
		require.Nil(t, doc)
		require.Equal(t, "https://example.com/u/alice", iri.String())

		iri, doc = obj.NodeProperty("object")
		require.NotNil(t, doc)
		require.Equal(t, "https://example.com/o/1", iri.String())
	})
}

func TestActivity(t *testing.T) {
	t.Run("Recipients", func(t *testing.T) {
		activity, err := ParseActivity([]byte(`{
			"type":"Create",
			"to":["https://www.w3.org/ns/activitystreams#Public","https://example.com/u/bob"],
			"cc":"https://example.com/u/carol",
			"bto":["https://example.com/u/bob"],
			"bcc":[{"id":"https://example.com/u/dave"}]
		}`))
		require.NoError(t, err)

		recipients := activity.Recipients()
		require.Len(t, recipients, 3)
		require.Equal(t, "https://example.com/u/bob", recipients[0].String())
		require.Equal(t, "https://example.com/u/carol", recipients[1].String())
		require.Equal(t, "https://example.com/u/dave", recipients[2].String())
	})

	t.Run("StripPrivateAudience", func(t *testing.T) {
		activity, err := ParseActivity([]byte(`{"type":"Create","bto":["a"],"bcc":["b"],"to":["c"]}`))
		require.NoError(t, err)

		activity.StripPrivateAudience()

		require.Nil(t, activity.Property("bto"))
		require.Nil(t, activity.Property("bcc"))
		require.Equal(t, []string{"c"}, activity.To())
	})

	t.Run("Proofs", func(t *testing.T) {
		activity := NewActivity(TypeCreate, WithID(mustParse(t, "https://example.com/a/1")))
		require.Empty(t, activity.Proofs())

		activity.AddProof(map[string]interface{}{"type": "DataIntegrityProof", "proofValue": "z1"})
		require.Len(t, activity.Proofs(), 1)

		activity.AddProof(map[string]interface{}{"type": "DataIntegrityProof", "proofValue": "z2"})
		require.Len(t, activity.Proofs(), 2)
	})

	t.Run("Unsecured strips signature and proof", func(t *testing.T) {
		activity, err := ParseActivity([]byte(`{
			"type":"Create",
			"signature":{"type":"RsaSignature2017"},
			"proof":{"type":"DataIntegrityProof"},
			"actor":"https://example.com/u/alice"
		}`))
		require.NoError(t, err)

		doc := activity.Unsecured()
		require.NotContains(t, doc, "signature")
		require.NotContains(t, doc, "proof")
		require.Contains(t, doc, "actor")

		// The original document is untouched.
		require.NotNil(t, activity.Signature())
	})
}

func TestActor(t *testing.T) {
	actor, err := ParseActor([]byte(`{
		"type":"Person",
		"id":"https://example.com/u/alice",
		"preferredUsername":"alice",
		"inbox":"https://example.com/u/alice/inbox",
		"endpoints":{"sharedInbox":"https://example.com/inbox"},
		"publicKey":{
			"id":"https://example.com/u/alice#main-key",
			"owner":"https://example.com/u/alice",
			"publicKeyPem":"-----BEGIN PUBLIC KEY-----"
		},
		"assertionMethod":[{
			"id":"https://example.com/u/alice#key-1",
			"type":"Multikey",
			"controller":"https://example.com/u/alice",
			"publicKeyMultibase":"z6Mk"
		}]
	}`))
	require.NoError(t, err)

	require.Equal(t, "alice", actor.PreferredUsername())
	require.Equal(t, "https://example.com/u/alice/inbox", actor.Inbox().String())
	require.Equal(t, "https://example.com/inbox", actor.SharedInbox().String())

	keys := actor.PublicKeys()
	require.Len(t, keys, 1)
	require.Equal(t, "https://example.com/u/alice#main-key", keys[0].ID)
	require.Equal(t, "https://example.com/u/alice", keys[0].Owner)

	methods := actor.AssertionMethods()
	require.Len(t, methods, 1)
	require.Equal(t, "z6Mk", methods[0].PublicKeyMultibase)

	require.True(t, actor.HasKey("https://example.com/u/alice#main-key"))
	require.True(t, actor.HasKey("https://example.com/u/alice#key-1"))
	require.False(t, actor.HasKey("https://example.com/u/alice#key-2"))
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()

	iri, err := url.Parse(raw)
	require.NoError(t, err)

	return iri
}
