/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package ldsig creates and verifies RsaSignature2017 Linked Data signatures, the
// legacy object signing scheme still used for inbox forwarding across much of the
// fediverse.
package ldsig

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
	"time"

	"github.com/piprate/json-gold/ld"

	"github.com/fedikit/fedikit/internal/pkg/log"
	"github.com/fedikit/fedikit/pkg/vocab"
)

var logger = log.New("ldsig")

// SignatureType is the type property of the signatures this package produces.
const SignatureType = "RsaSignature2017"

// Signer creates Linked Data signatures.
type Signer struct {
	loader ld.DocumentLoader
	now    func() time.Time
}

// NewSigner returns a new Linked Data signer. Canonicalization dereferences contexts
// through the given loader.
func NewSigner(loader ld.DocumentLoader) *Signer {
	return &Signer{loader: loader, now: time.Now}
}

// Sign computes an RsaSignature2017 over the activity's unsecured document and attaches
// it as the signature property. The security context is added before hashing; the
// signed form must be the document as delivered, minus the signature itself.
func (s *Signer) Sign(activity *vocab.Activity, privateKey *rsa.PrivateKey, creator *url.URL) error {
	activity.AddContext(vocab.ContextSecurity)

	created := s.now().UTC().Format(time.RFC3339)

	options := map[string]interface{}{
		"@context": vocab.ContextSecurity,
		"creator":  creator.String(),
		"created":  created,
	}

	toBeSigned, err := s.hash(options, activity.Unsecured())
	if err != nil {
		return err
	}

	signature, err := rsa.SignPKCS1v15(rand.Reader, privateKey, crypto.SHA256, toBeSigned)
	if err != nil {
		return fmt.Errorf("sign: %w", err)
	}

	activity.SetSignature(map[string]interface{}{
		"type":           SignatureType,
		"creator":        creator.String(),
		"created":        created,
		"signatureValue": base64.StdEncoding.EncodeToString(signature),
	})

	return nil
}

// Verify checks the activity's RsaSignature2017 against the given public key.
// It returns the creator key id on success.
func (s *Signer) Verify(activity *vocab.Activity, publicKey *rsa.PublicKey) (*url.URL, error) {
	signature := activity.Signature()
	if signature == nil {
		return nil, fmt.Errorf("no signature on activity")
	}

	sigObj := vocab.NewObjectFromDocument(signature)

	if sigType := sigObj.StringProperty("type"); sigType != SignatureType {
		return nil, fmt.Errorf("unsupported signature type %q", sigType)
	}

	creator, err := url.Parse(sigObj.StringProperty("creator"))
	if err != nil || creator.String() == "" {
		return nil, fmt.Errorf("missing or invalid signature creator")
	}

	signatureValue, err := base64.StdEncoding.DecodeString(sigObj.StringProperty("signatureValue"))
	if err != nil {
		return nil, fmt.Errorf("decode signatureValue: %w", err)
	}

	options := map[string]interface{}{
		"@context": vocab.ContextSecurity,
		"creator":  sigObj.StringProperty("creator"),
		"created":  sigObj.StringProperty("created"),
	}

	toBeSigned, err := s.hash(options, activity.Unsecured())
	if err != nil {
		return nil, err
	}

	if err := rsa.VerifyPKCS1v15(publicKey, crypto.SHA256, toBeSigned, signatureValue); err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}

	logger.Debug("Verified Linked Data signature", log.WithKeyID(creator.String()))

	return creator, nil
}

// hash canonicalizes the signature options and the document with URDNA2015 and returns
// the digest of the concatenated hex hashes, per the LD signatures 1.0 scheme.
func (s *Signer) hash(options, doc map[string]interface{}) ([]byte, error) {
	optionsHash, err := s.canonicalizedHash(options)
	if err != nil {
		return nil, fmt.Errorf("canonicalize signature options: %w", err)
	}

	docHash, err := s.canonicalizedHash(doc)
	if err != nil {
		return nil, fmt.Errorf("canonicalize document: %w", err)
	}

	combined := sha256.Sum256([]byte(hex.EncodeToString(optionsHash) + hex.EncodeToString(docHash)))

	return combined[:], nil
}

func (s *Signer) canonicalizedHash(doc map[string]interface{}) ([]byte, error) {
	proc := ld.NewJsonLdProcessor()

	opts := ld.NewJsonLdOptions("")
	opts.Format = "application/n-quads"
	opts.Algorithm = "URDNA2015"
	opts.DocumentLoader = s.loader
	opts.ProduceGeneralizedRdf = true

	normalized, err := proc.Normalize(doc, opts)
	if err != nil {
		return nil, err
	}

	quads, ok := normalized.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected canonicalization result %T", normalized)
	}

	digest := sha256.Sum256([]byte(quads))

	return digest[:], nil
}
