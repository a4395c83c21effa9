/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package transport implements the client-side transport that GETs and POSTs
// ActivityPub requests with HTTP signatures.
package transport

import (
	"bytes"
	"context"
	"crypto"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/fedikit/fedikit/internal/pkg/log"
	"github.com/fedikit/fedikit/pkg/keys"
)

var logger = log.New("transport")

// ContentType is the media type used for ActivityPub requests and responses.
const ContentType = `application/activity+json`

// AcceptHeader is sent on GET requests.
const AcceptHeader = `application/activity+json, application/ld+json; profile="https://www.w3.org/ns/activitystreams"`

// Signer signs an HTTP request and adds the signature to the request header.
type Signer interface {
	SignRequest(privateKey crypto.PrivateKey, publicKeyID string, req *http.Request, body []byte) error
}

type httpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Transport sends signed ActivityPub requests. Requests without a key are sent
// unsigned.
type Transport struct {
	client     httpClient
	getSigner  Signer
	postSigner Signer
	userAgent  string
}

// New returns a new transport.
func New(client httpClient, getSigner, postSigner Signer, userAgent string) *Transport {
	return &Transport{
		client:     client,
		getSigner:  getSigner,
		postSigner: postSigner,
		userAgent:  userAgent,
	}
}

// Request contains the destination URL, headers and the key pair used to sign the
// request. A nil key sends the request unsigned.
type Request struct {
	URL    *url.URL
	Header http.Header
	Key    *keys.KeyPair
}

// NewRequest returns a new request.
func NewRequest(toURL *url.URL, key *keys.KeyPair) *Request {
	return &Request{
		URL:    toURL,
		Header: make(http.Header),
		Key:    key,
	}
}

// Post sends a signed HTTP POST with the given payload.
func (t *Transport) Post(ctx context.Context, r *Request, payload []byte) (*http.Response, error) {
	var body io.Reader
	if len(payload) > 0 {
		body = bytes.NewBuffer(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("new request to %s: %w", r.URL, err)
	}

	req.Header = r.Header

	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", ContentType)
	}

	t.setUserAgent(req)

	if r.Key != nil {
		if err := t.postSigner.SignRequest(r.Key.PrivateKey, r.Key.KeyID.String(), req, payload); err != nil {
			return nil, fmt.Errorf("sign request: %w", err)
		}
	}

	logger.Debug("Sending HTTP POST", log.WithRequestURL(r.URL))

	return t.client.Do(req)
}

// Get sends a signed HTTP GET.
func (t *Transport) Get(ctx context.Context, r *Request) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("get from %s: %w", r.URL, err)
	}

	req.Header = r.Header

	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", AcceptHeader)
	}

	t.setUserAgent(req)

	if r.Key != nil {
		if err := t.getSigner.SignRequest(r.Key.PrivateKey, r.Key.KeyID.String(), req, nil); err != nil {
			return nil, fmt.Errorf("sign request: %w", err)
		}
	}

	logger.Debug("Sending HTTP GET", log.WithRequestURL(r.URL))

	return t.client.Do(req)
}

func (t *Transport) setUserAgent(req *http.Request) {
	if t.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
}

// Default returns a transport that uses the default HTTP client and no HTTP
// signatures. Intended for tests.
func Default() *Transport {
	return &Transport{
		client:     http.DefaultClient,
		getSigner:  &NoOpSigner{},
		postSigner: &NoOpSigner{},
	}
}

// NoOpSigner is a signer that does nothing. Intended for tests.
type NoOpSigner struct{}

// SignRequest does nothing.
func (s *NoOpSigner) SignRequest(crypto.PrivateKey, string, *http.Request, []byte) error {
	return nil
}
