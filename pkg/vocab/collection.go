/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vocab

// OrderedCollection is the paged collection envelope served for outboxes, followers
// and the other actor collections. A collection without pagination carries the items
// inline; a paged collection carries first and last page IRIs instead.
type OrderedCollection struct {
	Context      interface{}   `json:"@context"`
	ID           string        `json:"id"`
	Type         string        `json:"type"`
	TotalItems   *int          `json:"totalItems,omitempty"`
	First        string        `json:"first,omitempty"`
	Last         string        `json:"last,omitempty"`
	OrderedItems []interface{} `json:"orderedItems,omitempty"`
}

// OrderedCollectionPage is a single page of an OrderedCollection.
type OrderedCollectionPage struct {
	Context      interface{}   `json:"@context"`
	ID           string        `json:"id"`
	Type         string        `json:"type"`
	PartOf       string        `json:"partOf,omitempty"`
	Prev         string        `json:"prev,omitempty"`
	Next         string        `json:"next,omitempty"`
	OrderedItems []interface{} `json:"orderedItems"`
}

// NewOrderedCollection returns an OrderedCollection with the Activity Streams context.
func NewOrderedCollection(id string) *OrderedCollection {
	return &OrderedCollection{
		Context: ContextActivityStreams,
		ID:      id,
		Type:    string(TypeOrderedCollection),
	}
}

// NewOrderedCollectionPage returns an OrderedCollectionPage with the Activity Streams
// context.
func NewOrderedCollectionPage(id, partOf string) *OrderedCollectionPage {
	return &OrderedCollectionPage{
		Context:      ContextActivityStreams,
		ID:           id,
		Type:         string(TypeOrderedCollectionPage),
		PartOf:       partOf,
		OrderedItems: []interface{}{},
	}
}
