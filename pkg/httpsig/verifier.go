/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package httpsig

import (
	"context"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // legacy digest support is off by default
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"hash"
	"net/http"
	"strings"
	"time"

	"github.com/go-fed/httpsig"

	"github.com/fedikit/fedikit/internal/pkg/log"
	"github.com/fedikit/fedikit/pkg/vocab"
)

// KeyResolver resolves a key id from a Signature header to the published key document.
type KeyResolver interface {
	ResolveKey(ctx context.Context, keyID string) (*vocab.CryptographicKey, error)
}

// DefaultDateWindow is the maximum allowed skew between the request's Date header and
// the current time.
const DefaultDateWindow = time.Hour

type verifierOptions struct {
	dateWindow      time.Duration
	allowLegacySHA1 bool
	now             func() time.Time
}

// VerifierOption sets a verifier option.
type VerifierOption func(o *verifierOptions)

// WithDateWindow sets the allowed Date header skew. A zero window disables the check.
func WithDateWindow(window time.Duration) VerifierOption {
	return func(o *verifierOptions) {
		o.dateWindow = window
	}
}

// WithLegacySHA1 accepts SHA-1 Digest values. Some legacy servers still send them.
func WithLegacySHA1() VerifierOption {
	return func(o *verifierOptions) {
		o.allowLegacySHA1 = true
	}
}

// WithClock overrides the clock. Used by tests.
func WithClock(now func() time.Time) VerifierOption {
	return func(o *verifierOptions) {
		o.now = now
	}
}

// Verifier verifies draft-cavage signatures on incoming requests. Signature parsing
// and the cryptographic check are delegated to go-fed; the verifier layers the
// required-header, Date window and Digest policies on top.
type Verifier struct {
	verifierOptions

	resolver KeyResolver
}

// NewVerifier returns a new HTTP signature verifier.
func NewVerifier(resolver KeyResolver, opts ...VerifierOption) *Verifier {
	options := verifierOptions{
		dateWindow: DefaultDateWindow,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(&options)
	}

	return &Verifier{verifierOptions: options, resolver: resolver}
}

// VerifyRequest verifies the signature on the given request. The body must be the
// request payload that was already read by the caller.
//
// Returns the key document from the Signature header's keyId if the signature is
// valid, or nil with no error when the request is unauthenticated, the signature is
// invalid, or the key cannot be resolved. An unverifiable signature is never a server
// error.
func (v *Verifier) VerifyRequest(req *http.Request, body []byte) (*vocab.CryptographicKey, error) {
	verifier, err := httpsig.NewVerifier(req)
	if err != nil {
		logger.Debug("No usable Signature header in request", log.WithRequestURL(req.URL),
			log.WithError(err))

		return nil, nil
	}

	policy := parseSignaturePolicy(req.Header.Get("Signature"))

	if !v.checkAlgorithm(req, policy.algorithm) {
		return nil, nil
	}

	if !v.checkSignedHeaders(req, policy.headers, body) {
		return nil, nil
	}

	if !v.checkDate(req) {
		return nil, nil
	}

	if len(body) > 0 && !v.checkDigest(req, body) {
		return nil, nil
	}

	keyID := verifier.KeyId()

	key, err := v.resolver.ResolveKey(req.Context(), keyID)
	if err != nil {
		logger.Info("Error resolving signing key", log.WithKeyID(keyID), log.WithError(err))

		return nil, nil
	}

	publicKey, err := parseRSAPublicKey(key.PublicKeyPem)
	if err != nil {
		logger.Info("Key is not a usable RSA key", log.WithKeyID(keyID), log.WithError(err))

		return nil, nil
	}

	if err := verifier.Verify(publicKey, httpsig.RSA_SHA256); err != nil {
		logger.Info("Signature verification failed for request", log.WithRequestURL(req.URL),
			log.WithError(err))

		return nil, nil
	}

	logger.Debug("Successfully verified HTTP signature", log.WithKeyID(keyID))

	return key, nil
}

// signaturePolicy holds the Signature header parameters the policy checks need. The
// keyId and signature values stay with go-fed.
type signaturePolicy struct {
	algorithm string
	headers   []string
}

func parseSignaturePolicy(header string) signaturePolicy {
	policy := signaturePolicy{
		// Absent 'headers' defaults to just the Date header.
		headers: []string{"date"},
	}

	for _, kv := range strings.Split(header, ",") {
		name, value, found := strings.Cut(strings.TrimSpace(kv), "=")
		if !found {
			continue
		}

		value = strings.Trim(value, `"`)

		switch name {
		case "algorithm":
			policy.algorithm = value
		case "headers":
			policy.headers = strings.Fields(strings.ToLower(value))
		}
	}

	return policy
}

func (v *Verifier) checkAlgorithm(req *http.Request, algorithm string) bool {
	switch algorithm {
	case "", "rsa-sha256", "hs2019":
		return true
	default:
		logger.Info("Unsupported signature algorithm in request",
			log.WithRequestURL(req.URL), log.WithSignatureAlg(algorithm))

		return false
	}
}

// checkSignedHeaders ensures that the headers covered by the signature include the
// request target, a date and, for requests with a body, the digest. A signature that
// does not cover these proves nothing about the request.
func (v *Verifier) checkSignedHeaders(req *http.Request, headers []string, body []byte) bool {
	signed := make(map[string]struct{}, len(headers))

	for _, header := range headers {
		signed[header] = struct{}{}
	}

	required := []string{"(request-target)", "date"}

	if len(body) > 0 {
		required = append(required, "digest")
	}

	for _, header := range required {
		if _, ok := signed[header]; !ok {
			logger.Debug("Required header not covered by signature",
				log.WithRequestURL(req.URL), log.WithHeaders(http.Header{"missing": []string{header}}))

			return false
		}
	}

	return true
}

func (v *Verifier) checkDate(req *http.Request) bool {
	if v.dateWindow == 0 {
		return true
	}

	date, err := http.ParseTime(req.Header.Get("Date"))
	if err != nil {
		logger.Debug("Unparsable Date header in request", log.WithRequestURL(req.URL), log.WithError(err))

		return false
	}

	skew := v.now().Sub(date)
	if skew < 0 {
		skew = -skew
	}

	if skew > v.dateWindow {
		logger.Info("Date header outside the allowed window", log.WithRequestURL(req.URL),
			log.WithDelay(skew))

		return false
	}

	return true
}

// checkDigest verifies every value of the Digest header against the body. All values
// must match; a single bad digest rejects the request.
func (v *Verifier) checkDigest(req *http.Request, body []byte) bool {
	values := req.Header.Values("Digest")
	if len(values) == 0 {
		return false
	}

	for _, value := range values {
		for _, entry := range strings.Split(value, ",") {
			algorithm, digest, found := strings.Cut(strings.TrimSpace(entry), "=")
			if !found {
				return false
			}

			hasher, ok := v.newDigestHash(algorithm)
			if !ok {
				logger.Info("Unsupported digest algorithm in request",
					log.WithRequestURL(req.URL), log.WithSignatureAlg(algorithm))

				return false
			}

			hasher.Write(body)

			if base64.StdEncoding.EncodeToString(hasher.Sum(nil)) != digest {
				logger.Info("Digest mismatch in request", log.WithRequestURL(req.URL),
					log.WithSignatureAlg(algorithm))

				return false
			}
		}
	}

	return true
}

func (v *Verifier) newDigestHash(algorithm string) (hash.Hash, bool) {
	switch strings.ToUpper(algorithm) {
	case "SHA-256":
		return sha256.New(), true
	case "SHA-512":
		return sha512.New(), true
	case "SHA-1", "SHA":
		if v.allowLegacySHA1 {
			return sha1.New(), true //nolint:gosec
		}

		return nil, false
	default:
		return nil, false
	}
}

func parseRSAPublicKey(pemKey string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemKey))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}

	publicKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		if rsaKey, rsaErr := x509.ParsePKCS1PublicKey(block.Bytes); rsaErr == nil {
			return rsaKey, nil
		}

		return nil, fmt.Errorf("parse public key: %w", err)
	}

	rsaKey, ok := publicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA key: %T", publicKey)
	}

	return rsaKey, nil
}
