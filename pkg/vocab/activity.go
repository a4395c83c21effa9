/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vocab

import (
	"net/url"
)

// Activity is an Object whose type is Activity or one of its subtypes.
type Activity struct {
	*Object
}

// NewActivity returns an Activity of the given type.
func NewActivity(t Type, opts ...Opt) *Activity {
	return &Activity{Object: NewObject(t, opts...)}
}

// NewActivityFromDocument wraps an existing JSON-LD document.
func NewActivityFromDocument(doc map[string]interface{}) *Activity {
	return &Activity{Object: NewObjectFromDocument(doc)}
}

// ParseActivity unmarshals raw JSON into an Activity.
func ParseActivity(data []byte) (*Activity, error) {
	obj, err := ParseObject(data)
	if err != nil {
		return nil, err
	}

	return &Activity{Object: obj}, nil
}

// Actor returns the actor IRI. An embedded actor object resolves to its id.
func (a *Activity) Actor() *url.URL {
	iri, _ := a.NodeProperty("actor")

	return iri
}

// SetActor sets the actor to the given IRI.
func (a *Activity) SetActor(iri *url.URL) {
	a.SetProperty("actor", iri.String())
}

// ObjectIRI returns the IRI of the activity's object, dereferencing an embedded object
// to its id.
func (a *Activity) ObjectIRI() *url.URL {
	iri, _ := a.NodeProperty("object")

	return iri
}

// EmbeddedObject returns the activity's object when it is embedded as a document, or
// nil when it is a bare IRI.
func (a *Activity) EmbeddedObject() *Object {
	_, doc := a.NodeProperty("object")
	if doc == nil {
		return nil
	}

	return NewObjectFromDocument(doc)
}

// To returns the primary audience IRIs.
func (a *Activity) To() []string { return a.stringList("to") }

// CC returns the secondary audience IRIs.
func (a *Activity) CC() []string { return a.stringList("cc") }

// BTo returns the private primary audience IRIs.
func (a *Activity) BTo() []string { return a.stringList("bto") }

// BCC returns the private secondary audience IRIs.
func (a *Activity) BCC() []string { return a.stringList("bcc") }

// Recipients returns the union of to, cc, bto, bcc and audience, excluding the Public
// IRI, with duplicates removed. Order follows first appearance.
func (a *Activity) Recipients() []*url.URL {
	seen := make(map[string]struct{})

	var recipients []*url.URL

	for _, prop := range []string{"to", "cc", "bto", "bcc", "audience"} {
		for _, entry := range a.stringList(prop) {
			if entry == PublicIRI {
				continue
			}

			if _, ok := seen[entry]; ok {
				continue
			}

			seen[entry] = struct{}{}

			iri, err := url.Parse(entry)
			if err != nil {
				continue
			}

			recipients = append(recipients, iri)
		}
	}

	return recipients
}

// StripPrivateAudience removes bto and bcc. Delivered activities must not leak the
// private audience.
func (a *Activity) StripPrivateAudience() {
	a.SetProperty("bto", nil)
	a.SetProperty("bcc", nil)
}

// Signature returns the Linked Data signature document, if present.
func (a *Activity) Signature() map[string]interface{} {
	sig, _ := a.Property("signature").(map[string]interface{})

	return sig
}

// SetSignature sets the Linked Data signature document.
func (a *Activity) SetSignature(sig map[string]interface{}) {
	a.SetProperty("signature", sig)
}

// Proofs returns the integrity proofs, normalizing a single proof object to a
// one-element slice.
func (a *Activity) Proofs() []map[string]interface{} {
	switch value := a.Property("proof").(type) {
	case map[string]interface{}:
		return []map[string]interface{}{value}
	case []interface{}:
		proofs := make([]map[string]interface{}, 0, len(value))

		for _, entry := range value {
			if doc, ok := entry.(map[string]interface{}); ok {
				proofs = append(proofs, doc)
			}
		}

		return proofs
	default:
		return nil
	}
}

// AddProof appends an integrity proof, preserving existing proofs.
func (a *Activity) AddProof(proof map[string]interface{}) {
	existing := a.Proofs()

	if len(existing) == 0 {
		a.SetProperty("proof", proof)

		return
	}

	proofs := make([]interface{}, 0, len(existing)+1)

	for _, p := range existing {
		proofs = append(proofs, p)
	}

	a.SetProperty("proof", append(proofs, proof))
}

// Unsecured returns a copy of the activity's document without signature and proof
// properties. Signing operates over the unsecured document.
func (a *Activity) Unsecured() map[string]interface{} {
	doc := make(map[string]interface{}, len(a.doc))

	for name, value := range a.doc {
		if name == "signature" || name == "proof" {
			continue
		}

		doc[name] = value
	}

	return doc
}
