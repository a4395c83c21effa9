/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package httpsig signs and verifies draft-cavage HTTP signatures. Only rsa-sha256 is
// produced; verification additionally accepts hs2019 over an RSA key.
package httpsig

import (
	"crypto"
	"fmt"
	"net/http"
	"time"

	"github.com/go-fed/httpsig"

	"github.com/fedikit/fedikit/internal/pkg/log"
)

var logger = log.New("httpsig")

const (
	dateHeader        = "Date"
	hostHeader        = "Host"
	defaultExpiration = 60 * time.Second
)

// DefaultGetSignerConfig returns the configuration for signing HTTP GET requests.
func DefaultGetSignerConfig() SignerConfig {
	return SignerConfig{
		Algorithms: []httpsig.Algorithm{httpsig.RSA_SHA256},
		Headers:    []string{"(request-target)", "Host", "Date"},
	}
}

// DefaultPostSignerConfig returns the configuration for signing HTTP POST requests.
func DefaultPostSignerConfig() SignerConfig {
	return SignerConfig{
		Algorithms:      []httpsig.Algorithm{httpsig.RSA_SHA256},
		DigestAlgorithm: httpsig.DigestSha256,
		Headers:         []string{"(request-target)", "Host", "Date", "Digest"},
	}
}

// SignerConfig contains the configuration for signing HTTP requests.
type SignerConfig struct {
	Algorithms      []httpsig.Algorithm
	DigestAlgorithm httpsig.DigestAlgorithm
	Headers         []string
	Expiration      time.Duration
}

// Signer signs HTTP requests.
type Signer struct {
	SignerConfig
}

// NewSigner returns a new signer.
func NewSigner(cfg SignerConfig) *Signer {
	s := &Signer{SignerConfig: cfg}

	if s.Expiration == 0 {
		s.Expiration = defaultExpiration
	}

	return s
}

// SignRequest signs an HTTP request with the given private key, adding Date, Host and
// (for requests with a body) Digest headers.
func (s *Signer) SignRequest(privateKey crypto.PrivateKey, publicKeyID string, req *http.Request, body []byte) error {
	logger.Debug("Signing request", log.WithRequestURL(req.URL), log.WithKeyID(publicKeyID))

	signer, _, err := httpsig.NewSigner(s.Algorithms, s.DigestAlgorithm, s.Headers,
		httpsig.Signature, int64(s.Expiration.Seconds()))
	if err != nil {
		return fmt.Errorf("new signer: %w", err)
	}

	if req.Header.Get(dateHeader) == "" {
		req.Header.Set(dateHeader, date())
	}

	if req.Header.Get(hostHeader) == "" {
		req.Header.Set(hostHeader, req.URL.Host)
	}

	if err := signer.SignRequest(privateKey, publicKeyID, req, body); err != nil {
		return fmt.Errorf("sign request: %w", err)
	}

	return nil
}

func date() string {
	return fmt.Sprintf("%s GMT", time.Now().UTC().Format("Mon, 02 Jan 2006 15:04:05"))
}
