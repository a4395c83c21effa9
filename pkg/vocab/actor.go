/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vocab

import (
	"net/url"
)

// Actor is an Object whose type is one of the actor types.
type Actor struct {
	*Object
}

// NewActor returns an Actor of the given type.
func NewActor(t Type, opts ...Opt) *Actor {
	return &Actor{Object: NewObject(t, opts...)}
}

// NewActorFromDocument wraps an existing JSON-LD document.
func NewActorFromDocument(doc map[string]interface{}) *Actor {
	return &Actor{Object: NewObjectFromDocument(doc)}
}

// ParseActor unmarshals raw JSON into an Actor.
func ParseActor(data []byte) (*Actor, error) {
	obj, err := ParseObject(data)
	if err != nil {
		return nil, err
	}

	return &Actor{Object: obj}, nil
}

// PreferredUsername returns the actor's handle.
func (a *Actor) PreferredUsername() string {
	return a.StringProperty("preferredUsername")
}

// Inbox returns the actor's inbox IRI.
func (a *Actor) Inbox() *url.URL { return a.urlProperty("inbox") }

// Outbox returns the actor's outbox IRI.
func (a *Actor) Outbox() *url.URL { return a.urlProperty("outbox") }

// Following returns the actor's following collection IRI.
func (a *Actor) Following() *url.URL { return a.urlProperty("following") }

// Followers returns the actor's followers collection IRI.
func (a *Actor) Followers() *url.URL { return a.urlProperty("followers") }

// Liked returns the actor's liked collection IRI.
func (a *Actor) Liked() *url.URL { return a.urlProperty("liked") }

// Featured returns the actor's featured collection IRI.
func (a *Actor) Featured() *url.URL { return a.urlProperty("featured") }

// FeaturedTags returns the actor's featured tags collection IRI.
func (a *Actor) FeaturedTags() *url.URL { return a.urlProperty("featuredTags") }

// SharedInbox returns the shared inbox IRI from the actor's endpoints, or nil.
func (a *Actor) SharedInbox() *url.URL {
	endpoints, ok := a.Property("endpoints").(map[string]interface{})
	if !ok {
		return nil
	}

	value, ok := endpoints["sharedInbox"].(string)
	if !ok {
		return nil
	}

	iri, err := url.Parse(value)
	if err != nil {
		return nil
	}

	return iri
}

// PublicKeys returns the actor's RSA public keys from the publicKey property,
// normalizing a single key object to a one-element slice.
func (a *Actor) PublicKeys() []*CryptographicKey {
	return parseKeyList(a.Property("publicKey"), parseCryptographicKey)
}

// AssertionMethods returns the actor's Multikeys from the assertionMethod property.
func (a *Actor) AssertionMethods() []*Multikey {
	return parseKeyList(a.Property("assertionMethod"), parseMultikey)
}

// HasKey returns true if the given key id appears in publicKey or assertionMethod.
func (a *Actor) HasKey(keyID string) bool {
	for _, key := range a.PublicKeys() {
		if key.ID == keyID {
			return true
		}
	}

	for _, key := range a.AssertionMethods() {
		if key.ID == keyID {
			return true
		}
	}

	return false
}

func parseKeyList[T any](value interface{}, parse func(map[string]interface{}) *T) []*T {
	var docs []map[string]interface{}

	switch v := value.(type) {
	case map[string]interface{}:
		docs = []map[string]interface{}{v}
	case []interface{}:
		for _, entry := range v {
			if doc, ok := entry.(map[string]interface{}); ok {
				docs = append(docs, doc)
			}
		}
	default:
		return nil
	}

	keys := make([]*T, 0, len(docs))

	for _, doc := range docs {
		if key := parse(doc); key != nil {
			keys = append(keys, key)
		}
	}

	return keys
}
