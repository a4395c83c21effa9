/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package keys provides key pair generation and the codecs used on the wire: PEM for
// RSA public keys, multibase Multikey for Ed25519 public keys, and JWK for private
// keys carried in queue messages.
package keys

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/url"

	"github.com/multiformats/go-multibase"
	"github.com/square/go-jose/v3"

	"github.com/fedikit/fedikit/pkg/vocab"
)

// DefaultRSABits is the RSA modulus size used by GenerateRSAKeyPair.
const DefaultRSABits = 2048

// KeyPair holds a private key, its public half and the key id under which the public
// half is published on the owning actor.
type KeyPair struct {
	KeyID      *url.URL
	PrivateKey crypto.PrivateKey
	PublicKey  crypto.PublicKey
}

// GenerateRSAKeyPair generates an RSA key pair for HTTP Signatures and Linked Data
// signatures.
func GenerateRSAKeyPair(keyID *url.URL) (*KeyPair, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, DefaultRSABits)
	if err != nil {
		return nil, fmt.Errorf("generate RSA key: %w", err)
	}

	return &KeyPair{
		KeyID:      keyID,
		PrivateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
	}, nil
}

// GenerateEd25519KeyPair generates an Ed25519 key pair for object integrity proofs.
func GenerateEd25519KeyPair(keyID *url.URL) (*KeyPair, error) {
	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate Ed25519 key: %w", err)
	}

	return &KeyPair{
		KeyID:      keyID,
		PrivateKey: privateKey,
		PublicKey:  publicKey,
	}, nil
}

// IsRSA returns true if the pair holds an RSA key.
func (k *KeyPair) IsRSA() bool {
	_, ok := k.PublicKey.(*rsa.PublicKey)

	return ok
}

// IsEd25519 returns true if the pair holds an Ed25519 key.
func (k *KeyPair) IsEd25519() bool {
	_, ok := k.PublicKey.(ed25519.PublicKey)

	return ok
}

// CryptographicKey renders the public half as a publicKeyPem key document owned by the
// given actor. Only valid for RSA pairs.
func (k *KeyPair) CryptographicKey(owner *url.URL) (*vocab.CryptographicKey, error) {
	pemKey, err := EncodePublicKeyPEM(k.PublicKey)
	if err != nil {
		return nil, err
	}

	return &vocab.CryptographicKey{
		ID:           k.KeyID.String(),
		Owner:        owner.String(),
		PublicKeyPem: pemKey,
	}, nil
}

// Multikey renders the public half as a multibase Multikey controlled by the given
// actor. Only valid for Ed25519 pairs.
func (k *KeyPair) Multikey(controller *url.URL) (*vocab.Multikey, error) {
	publicKey, ok := k.PublicKey.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("multikey requires an Ed25519 key, got %T", k.PublicKey)
	}

	encoded, err := EncodeMultibase(publicKey)
	if err != nil {
		return nil, err
	}

	return &vocab.Multikey{
		ID:                 k.KeyID.String(),
		Type:               vocab.MultikeyType,
		Controller:         controller.String(),
		PublicKeyMultibase: encoded,
	}, nil
}

// EncodePublicKeyPEM encodes a public key as a PKIX PEM block.
func EncodePublicKeyPEM(publicKey crypto.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(publicKey)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}

	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// DecodePublicKeyPEM decodes a PKIX or PKCS#1 PEM public key.
func DecodePublicKeyPEM(pemKey string) (crypto.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemKey))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}

	publicKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err == nil {
		return publicKey, nil
	}

	// Older implementations publish PKCS#1 blocks.
	rsaKey, rsaErr := x509.ParsePKCS1PublicKey(block.Bytes)
	if rsaErr != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}

	return rsaKey, nil
}

// ed25519-pub multicodec prefix.
var multicodecEd25519 = []byte{0xed, 0x01} //nolint:gochecknoglobals

// EncodeMultibase encodes an Ed25519 public key in the base58btc multibase form with
// the ed25519-pub multicodec prefix.
func EncodeMultibase(publicKey ed25519.PublicKey) (string, error) {
	encoded, err := multibase.Encode(multibase.Base58BTC, append(multicodecEd25519, publicKey...))
	if err != nil {
		return "", fmt.Errorf("multibase encode: %w", err)
	}

	return encoded, nil
}

// DecodeMultibase decodes a multibase Multikey value into an Ed25519 public key.
func DecodeMultibase(encoded string) (ed25519.PublicKey, error) {
	encoding, decoded, err := multibase.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("multibase decode: %w", err)
	}

	if encoding != multibase.Base58BTC {
		return nil, fmt.Errorf("unsupported multibase encoding %q", string(rune(encoding)))
	}

	if len(decoded) != len(multicodecEd25519)+ed25519.PublicKeySize ||
		decoded[0] != multicodecEd25519[0] || decoded[1] != multicodecEd25519[1] {
		return nil, fmt.Errorf("not an ed25519-pub multikey")
	}

	return ed25519.PublicKey(decoded[len(multicodecEd25519):]), nil
}

// ExportPrivateJWK serializes a private key as a JWK document.
func ExportPrivateJWK(keyID *url.URL, privateKey crypto.PrivateKey) ([]byte, error) {
	jwk := jose.JSONWebKey{Key: privateKey, KeyID: keyID.String()}

	data, err := jwk.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal JWK: %w", err)
	}

	return data, nil
}

// ImportPrivateJWK deserializes a JWK document back into a key pair.
func ImportPrivateJWK(data []byte) (*KeyPair, error) {
	var jwk jose.JSONWebKey

	if err := json.Unmarshal(data, &jwk); err != nil {
		return nil, fmt.Errorf("unmarshal JWK: %w", err)
	}

	keyID, err := url.Parse(jwk.KeyID)
	if err != nil {
		return nil, fmt.Errorf("parse JWK key id: %w", err)
	}

	switch privateKey := jwk.Key.(type) {
	case *rsa.PrivateKey:
		return &KeyPair{KeyID: keyID, PrivateKey: privateKey, PublicKey: &privateKey.PublicKey}, nil
	case ed25519.PrivateKey:
		return &KeyPair{
			KeyID:      keyID,
			PrivateKey: privateKey,
			PublicKey:  privateKey.Public().(ed25519.PublicKey),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported JWK key type %T", jwk.Key)
	}
}
