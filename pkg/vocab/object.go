/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vocab

import (
	"encoding/json"
	"fmt"
	"net/url"
)

// Object wraps a JSON-LD document and provides typed accessors for the common
// Activity Streams properties. Properties without an accessor are preserved verbatim.
type Object struct {
	doc map[string]interface{}
}

// NewObject returns an Object of the given type with the Activity Streams context.
func NewObject(t Type, opts ...Opt) *Object {
	obj := &Object{doc: map[string]interface{}{
		"@context": ContextActivityStreams,
		"type":     string(t),
	}}

	for _, opt := range opts {
		opt(obj)
	}

	return obj
}

// NewObjectFromDocument wraps an existing JSON-LD document.
func NewObjectFromDocument(doc map[string]interface{}) *Object {
	return &Object{doc: doc}
}

// ParseObject unmarshals raw JSON into an Object.
func ParseObject(data []byte) (*Object, error) {
	doc, err := UnmarshalDocument(data)
	if err != nil {
		return nil, err
	}

	return &Object{doc: doc}, nil
}

// Opt populates a property on a newly constructed object.
type Opt func(obj *Object)

// WithID sets the object's id.
func WithID(id *url.URL) Opt {
	return func(obj *Object) {
		obj.SetID(id)
	}
}

// WithProperty sets an arbitrary property.
func WithProperty(name string, value interface{}) Opt {
	return func(obj *Object) {
		obj.SetProperty(name, value)
	}
}

// WithTo sets the primary audience.
func WithTo(iris ...string) Opt {
	return func(obj *Object) {
		obj.SetProperty("to", iriList(iris))
	}
}

// WithCC sets the secondary audience.
func WithCC(iris ...string) Opt {
	return func(obj *Object) {
		obj.SetProperty("cc", iriList(iris))
	}
}

// iriList widens a string slice to the generic JSON shape. Typed slices must never
// reach the document; JSON-LD processing only handles []interface{}.
func iriList(iris []string) []interface{} {
	list := make([]interface{}, len(iris))

	for i, iri := range iris {
		list[i] = iri
	}

	return list
}

// Document returns the underlying JSON-LD document. The map is shared, not copied.
func (o *Object) Document() map[string]interface{} {
	if o == nil {
		return nil
	}

	return o.doc
}

// MarshalJSON marshals the underlying document.
func (o *Object) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.doc)
}

// UnmarshalJSON unmarshals into the underlying document.
func (o *Object) UnmarshalJSON(data []byte) error {
	doc, err := UnmarshalDocument(data)
	if err != nil {
		return err
	}

	o.doc = doc

	return nil
}

// ID returns the object's id, or nil if absent or unparsable.
func (o *Object) ID() *url.URL {
	return o.urlProperty("id")
}

// SetID sets the object's id.
func (o *Object) SetID(id *url.URL) {
	o.doc["id"] = id.String()
}

// Type returns the object's primary type. For a multi-valued type property the first
// entry wins.
func (o *Object) Type() Type {
	types := o.Types()
	if len(types) == 0 {
		return ""
	}

	return types[0]
}

// Types returns all values of the type property.
func (o *Object) Types() []Type {
	switch value := o.doc["type"].(type) {
	case string:
		return []Type{Type(value)}
	case []interface{}:
		types := make([]Type, 0, len(value))

		for _, entry := range value {
			if s, ok := entry.(string); ok {
				types = append(types, Type(s))
			}
		}

		return types
	default:
		return nil
	}
}

// HasType returns true if the object carries the given type.
func (o *Object) HasType(t Type) bool {
	for _, candidate := range o.Types() {
		if candidate == t {
			return true
		}
	}

	return false
}

// Property returns the raw value of the given property.
func (o *Object) Property(name string) interface{} {
	if o == nil || o.doc == nil {
		return nil
	}

	return o.doc[name]
}

// SetProperty sets the raw value of the given property. A nil value removes it.
func (o *Object) SetProperty(name string, value interface{}) {
	if value == nil {
		delete(o.doc, name)

		return
	}

	o.doc[name] = value
}

// StringProperty returns the given property as a string, or "" if it is absent or not
// a string.
func (o *Object) StringProperty(name string) string {
	value, _ := o.Property(name).(string)

	return value
}

// NodeProperty resolves the given property to an IRI plus, when the value is embedded,
// the embedded document. A string value yields just the IRI; an object value yields
// both.
func (o *Object) NodeProperty(name string) (*url.URL, map[string]interface{}) {
	switch value := o.Property(name).(type) {
	case string:
		iri, err := url.Parse(value)
		if err != nil {
			return nil, nil
		}

		return iri, nil
	case map[string]interface{}:
		embedded := NewObjectFromDocument(value)

		return embedded.ID(), value
	default:
		return nil, nil
	}
}

// AddContext adds the given context IRIs to @context, preserving existing entries and
// skipping duplicates.
func (o *Object) AddContext(contexts ...string) {
	existing := contextList(o.doc["@context"])

	for _, ctx := range contexts {
		found := false

		for _, entry := range existing {
			if s, ok := entry.(string); ok && s == ctx {
				found = true

				break
			}
		}

		if !found {
			existing = append(existing, ctx)
		}
	}

	if len(existing) == 1 {
		o.doc["@context"] = existing[0]
	} else {
		o.doc["@context"] = existing
	}
}

func contextList(value interface{}) []interface{} {
	switch ctx := value.(type) {
	case nil:
		return nil
	case []interface{}:
		return ctx
	default:
		return []interface{}{ctx}
	}
}

func (o *Object) urlProperty(name string) *url.URL {
	value := o.StringProperty(name)
	if value == "" {
		return nil
	}

	iri, err := url.Parse(value)
	if err != nil {
		return nil
	}

	return iri
}

func (o *Object) stringList(name string) []string {
	switch value := o.Property(name).(type) {
	case string:
		return []string{value}
	case []interface{}:
		list := make([]string, 0, len(value))

		for _, entry := range value {
			switch e := entry.(type) {
			case string:
				list = append(list, e)
			case map[string]interface{}:
				if id := NewObjectFromDocument(e).ID(); id != nil {
					list = append(list, id.String())
				}
			}
		}

		return list
	default:
		return nil
	}
}

// String returns the document as compact JSON. Used in log fields.
func (o *Object) String() string {
	data, err := json.Marshal(o.doc)
	if err != nil {
		return fmt.Sprintf("marshal error: %s", err)
	}

	return string(data)
}
