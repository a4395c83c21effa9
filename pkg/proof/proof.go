/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package proof creates and verifies eddsa-jcs-2022 data integrity proofs. Unlike the
// legacy Linked Data signatures, proofs survive redistribution of the object and do not
// require RDF canonicalization.
package proof

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"
	"github.com/multiformats/go-multibase"

	"github.com/fedikit/fedikit/internal/pkg/log"
	"github.com/fedikit/fedikit/pkg/vocab"
)

var logger = log.New("proof")

// Proof type and cryptosuite identifiers.
const (
	ProofType   = "DataIntegrityProof"
	Cryptosuite = "eddsa-jcs-2022"
	Purpose     = "assertionMethod"
)

// Creator creates data integrity proofs.
type Creator struct {
	now func() time.Time
}

// NewCreator returns a new proof creator.
func NewCreator() *Creator {
	return &Creator{now: time.Now}
}

// AddProof computes an eddsa-jcs-2022 proof over the activity's unsecured document and
// appends it to the proof property, adding the data integrity context.
func (c *Creator) AddProof(activity *vocab.Activity, privateKey ed25519.PrivateKey, verificationMethod *url.URL) error {
	// The context must be on the document before hashing so that verification, which
	// sees the secured document, reconstructs the same bytes.
	activity.AddContext(vocab.ContextDataIntegrity)

	doc := activity.Unsecured()

	config := proofConfig(doc, verificationMethod.String(), c.now().UTC().Format(time.RFC3339))

	hashData, err := hashData(config, doc)
	if err != nil {
		return err
	}

	signature := ed25519.Sign(privateKey, hashData)

	proofValue, err := multibase.Encode(multibase.Base58BTC, signature)
	if err != nil {
		return fmt.Errorf("encode proof value: %w", err)
	}

	config["proofValue"] = proofValue
	delete(config, "@context")

	activity.AddProof(config)

	logger.Debug("Added integrity proof", log.WithKeyID(verificationMethod.String()))

	return nil
}

// Verify checks the given proof from the activity against the public key published at
// the proof's verification method.
func Verify(activity *vocab.Activity, proof map[string]interface{}, publicKey ed25519.PublicKey) error {
	proofObj := vocab.NewObjectFromDocument(proof)

	if proofType := proofObj.StringProperty("type"); proofType != ProofType {
		return fmt.Errorf("unsupported proof type %q", proofType)
	}

	if suite := proofObj.StringProperty("cryptosuite"); suite != Cryptosuite {
		return fmt.Errorf("unsupported cryptosuite %q", suite)
	}

	encoding, signature, err := multibase.Decode(proofObj.StringProperty("proofValue"))
	if err != nil {
		return fmt.Errorf("decode proof value: %w", err)
	}

	if encoding != multibase.Base58BTC {
		return fmt.Errorf("unsupported proof value encoding")
	}

	doc := activity.Unsecured()

	config := proofConfig(doc, proofObj.StringProperty("verificationMethod"), proofObj.StringProperty("created"))

	if purpose := proofObj.StringProperty("proofPurpose"); purpose != "" {
		config["proofPurpose"] = purpose
	}

	hashData, err := hashData(config, doc)
	if err != nil {
		return err
	}

	if !ed25519.Verify(publicKey, hashData, signature) {
		return fmt.Errorf("invalid proof value")
	}

	return nil
}

// VerificationMethod returns the proof's verification method IRI.
func VerificationMethod(proof map[string]interface{}) (*url.URL, error) {
	method := vocab.NewObjectFromDocument(proof).StringProperty("verificationMethod")
	if method == "" {
		return nil, fmt.Errorf("proof has no verification method")
	}

	iri, err := url.Parse(method)
	if err != nil {
		return nil, fmt.Errorf("parse verification method: %w", err)
	}

	return iri, nil
}

// proofConfig builds the proof options document that is hashed alongside the unsecured
// document. The document's context is carried into the config, as the cryptosuite
// requires.
func proofConfig(doc map[string]interface{}, verificationMethod, created string) map[string]interface{} {
	config := map[string]interface{}{
		"type":               ProofType,
		"cryptosuite":        Cryptosuite,
		"proofPurpose":       Purpose,
		"verificationMethod": verificationMethod,
		"created":            created,
	}

	if ctx, ok := doc["@context"]; ok {
		config["@context"] = ctx
	}

	return config
}

// hashData is sha256(JCS(config)) || sha256(JCS(doc)).
func hashData(config, doc map[string]interface{}) ([]byte, error) {
	configHash, err := jcsHash(config)
	if err != nil {
		return nil, fmt.Errorf("canonicalize proof config: %w", err)
	}

	docHash, err := jcsHash(doc)
	if err != nil {
		return nil, fmt.Errorf("canonicalize document: %w", err)
	}

	return append(configHash, docHash...), nil
}

func jcsHash(doc map[string]interface{}) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}

	canonical, err := jsoncanonicalizer.Transform(data)
	if err != nil {
		return nil, err
	}

	digest := sha256.Sum256(canonical)

	return digest[:], nil
}
