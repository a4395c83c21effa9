/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vocab

// CryptographicKey is an RSA public key in the publicKeyPem form used by HTTP
// Signatures and Linked Data signatures.
type CryptographicKey struct {
	ID           string `json:"id"`
	Owner        string `json:"owner"`
	PublicKeyPem string `json:"publicKeyPem"`
}

// Multikey is an Ed25519 public key in the multibase form used by object integrity
// proofs.
type Multikey struct {
	ID                 string `json:"id"`
	Type               string `json:"type"`
	Controller         string `json:"controller"`
	PublicKeyMultibase string `json:"publicKeyMultibase"`
}

// MultikeyType is the type property value of a Multikey document.
const MultikeyType = "Multikey"

func parseCryptographicKey(doc map[string]interface{}) *CryptographicKey {
	obj := NewObjectFromDocument(doc)

	key := &CryptographicKey{
		ID:           obj.StringProperty("id"),
		Owner:        obj.StringProperty("owner"),
		PublicKeyPem: obj.StringProperty("publicKeyPem"),
	}

	if key.Owner == "" {
		// Some implementations publish controller instead of owner.
		key.Owner = obj.StringProperty("controller")
	}

	if key.ID == "" || key.PublicKeyPem == "" {
		return nil
	}

	return key
}

func parseMultikey(doc map[string]interface{}) *Multikey {
	obj := NewObjectFromDocument(doc)

	key := &Multikey{
		ID:                 obj.StringProperty("id"),
		Type:               obj.StringProperty("type"),
		Controller:         obj.StringProperty("controller"),
		PublicKeyMultibase: obj.StringProperty("publicKeyMultibase"),
	}

	if key.ID == "" || key.PublicKeyMultibase == "" {
		return nil
	}

	return key
}
