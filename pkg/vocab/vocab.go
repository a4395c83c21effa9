/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package vocab implements the slice of the Activity Streams 2.0 vocabulary that the
// federation engine needs: a map-backed JSON-LD document wrapper with typed accessors,
// actors, activities, collections, and the cryptographic key forms. The full vocabulary
// object model is intentionally out of scope; anything not covered by an accessor is
// still preserved in the underlying document.
package vocab

import (
	"encoding/json"
	"fmt"
)

// JSON-LD context IRIs.
const (
	ContextActivityStreams = "https://www.w3.org/ns/activitystreams"
	ContextSecurity        = "https://w3id.org/security/v1"
	ContextDataIntegrity   = "https://w3id.org/security/data-integrity/v1"
)

// PublicIRI is the special 'Public' collection IRI.
const PublicIRI = "https://www.w3.org/ns/activitystreams#Public"

// Type is an Activity Streams type name.
type Type string

// Object and actor types.
const (
	TypeObject       Type = "Object"
	TypeNote         Type = "Note"
	TypeArticle      Type = "Article"
	TypePerson       Type = "Person"
	TypeService      Type = "Service"
	TypeApplication  Type = "Application"
	TypeGroup        Type = "Group"
	TypeOrganization Type = "Organization"
)

// Activity types.
const (
	TypeActivity             Type = "Activity"
	TypeIntransitiveActivity Type = "IntransitiveActivity"
	TypeAccept               Type = "Accept"
	TypeAdd                  Type = "Add"
	TypeAnnounce             Type = "Announce"
	TypeArrive               Type = "Arrive"
	TypeBlock                Type = "Block"
	TypeCreate               Type = "Create"
	TypeDelete               Type = "Delete"
	TypeDislike              Type = "Dislike"
	TypeFlag                 Type = "Flag"
	TypeFollow               Type = "Follow"
	TypeIgnore               Type = "Ignore"
	TypeInvite               Type = "Invite"
	TypeJoin                 Type = "Join"
	TypeLeave                Type = "Leave"
	TypeLike                 Type = "Like"
	TypeListen               Type = "Listen"
	TypeMove                 Type = "Move"
	TypeOffer                Type = "Offer"
	TypeQuestion             Type = "Question"
	TypeRead                 Type = "Read"
	TypeReject               Type = "Reject"
	TypeRemove               Type = "Remove"
	TypeTentativeAccept      Type = "TentativeAccept"
	TypeTentativeReject      Type = "TentativeReject"
	TypeTravel               Type = "Travel"
	TypeUndo                 Type = "Undo"
	TypeUpdate               Type = "Update"
	TypeView                 Type = "View"
)

// Collection types.
const (
	TypeCollection            Type = "Collection"
	TypeOrderedCollection     Type = "OrderedCollection"
	TypeCollectionPage        Type = "CollectionPage"
	TypeOrderedCollectionPage Type = "OrderedCollectionPage"
)

// supertypes is the statically known inheritance table derived from the vocabulary
// schema. Listener dispatch walks it upward until a registered type is found or
// Activity is passed.
var supertypes = map[Type]Type{ //nolint:gochecknoglobals
	TypeAccept:               TypeActivity,
	TypeAdd:                  TypeActivity,
	TypeAnnounce:             TypeActivity,
	TypeArrive:               TypeIntransitiveActivity,
	TypeBlock:                TypeIgnore,
	TypeCreate:               TypeActivity,
	TypeDelete:               TypeActivity,
	TypeDislike:              TypeActivity,
	TypeFlag:                 TypeActivity,
	TypeFollow:               TypeActivity,
	TypeIgnore:               TypeActivity,
	TypeIntransitiveActivity: TypeActivity,
	TypeInvite:               TypeOffer,
	TypeJoin:                 TypeActivity,
	TypeLeave:                TypeActivity,
	TypeLike:                 TypeActivity,
	TypeListen:               TypeActivity,
	TypeMove:                 TypeActivity,
	TypeOffer:                TypeActivity,
	TypeQuestion:             TypeIntransitiveActivity,
	TypeRead:                 TypeActivity,
	TypeReject:               TypeActivity,
	TypeRemove:               TypeActivity,
	TypeTentativeAccept:      TypeAccept,
	TypeTentativeReject:      TypeReject,
	TypeTravel:               TypeIntransitiveActivity,
	TypeUndo:                 TypeActivity,
	TypeUpdate:               TypeActivity,
	TypeView:                 TypeActivity,
}

// SuperType returns the immediate supertype of the given activity type. It returns false
// for Activity itself and for types with no known supertype.
func SuperType(t Type) (Type, bool) {
	super, ok := supertypes[t]

	return super, ok
}

// IsActivityType returns true if the given type is Activity or one of its subtypes.
func IsActivityType(t Type) bool {
	for {
		if t == TypeActivity {
			return true
		}

		super, ok := supertypes[t]
		if !ok {
			return false
		}

		t = super
	}
}

// IsActorType returns true if the given type is one of the actor types.
func IsActorType(t Type) bool {
	switch t {
	case TypePerson, TypeService, TypeApplication, TypeGroup, TypeOrganization:
		return true
	default:
		return false
	}
}

// UnmarshalDocument unmarshals raw JSON into a JSON-LD document map.
func UnmarshalDocument(data []byte) (map[string]interface{}, error) {
	doc := make(map[string]interface{})

	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}

	return doc, nil
}

// MarshalDocument marshals the given value and unmarshals it back into a document map.
func MarshalDocument(v interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}

	return UnmarshalDocument(data)
}
