/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package docloader provides the JSON-LD document loaders used to dereference remote
// actors, objects and contexts: an HTTP loader with backoff and a private-address
// guard, and a key-value store cache wrapper.
package docloader

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/piprate/json-gold/ld"

	"github.com/fedikit/fedikit/internal/pkg/log"
	fkerrors "github.com/fedikit/fedikit/pkg/errors"
)

var logger = log.New("docloader")

// AcceptHeader is sent when dereferencing remote documents.
const AcceptHeader = `application/activity+json, application/ld+json; profile="https://www.w3.org/ns/activitystreams"`

// DefaultUserAgent identifies this software when no user agent is configured.
const DefaultUserAgent = "fedikit"

type httpLoaderOptions struct {
	client         *http.Client
	userAgent      string
	maxRetries     uint64
	initialBackoff time.Duration
	allowPrivate   bool
}

// Option sets an HTTP loader option.
type Option func(o *httpLoaderOptions)

// WithHTTPClient sets the HTTP client used to dereference documents.
func WithHTTPClient(client *http.Client) Option {
	return func(o *httpLoaderOptions) {
		o.client = client
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(o *httpLoaderOptions) {
		o.userAgent = userAgent
	}
}

// WithMaxRetries sets the number of retries after a transient fetch failure.
func WithMaxRetries(maxRetries uint64) Option {
	return func(o *httpLoaderOptions) {
		o.maxRetries = maxRetries
	}
}

// WithInitialBackoff sets the initial backoff interval between retries.
func WithInitialBackoff(initialBackoff time.Duration) Option {
	return func(o *httpLoaderOptions) {
		o.initialBackoff = initialBackoff
	}
}

// WithPrivateAddresses allows dereferencing loopback and private-network hosts.
// Intended for tests and single-host deployments.
func WithPrivateAddresses() Option {
	return func(o *httpLoaderOptions) {
		o.allowPrivate = true
	}
}

// HTTPLoader dereferences documents over HTTP(S).
type HTTPLoader struct {
	httpLoaderOptions
}

// NewHTTPLoader returns an HTTP document loader.
func NewHTTPLoader(opts ...Option) *HTTPLoader {
	options := httpLoaderOptions{
		client:         &http.Client{Timeout: 30 * time.Second},
		userAgent:      DefaultUserAgent,
		maxRetries:     3,
		initialBackoff: 500 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(&options)
	}

	return &HTTPLoader{httpLoaderOptions: options}
}

// LoadDocument implements ld.DocumentLoader. Transient failures (network errors and
// 5xx responses) are retried with exponential backoff; 4xx responses are not.
func (l *HTTPLoader) LoadDocument(u string) (*ld.RemoteDocument, error) {
	if !l.allowPrivate {
		if err := rejectPrivateHost(u); err != nil {
			return nil, fkerrors.NewFetch(u, err)
		}
	}

	var doc *ld.RemoteDocument

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = l.initialBackoff

	err := backoff.Retry(
		func() error {
			var err error

			doc, err = l.load(u)
			if err != nil && !fkerrors.IsTransient(err) {
				return backoff.Permanent(err)
			}

			return err
		},
		backoff.WithMaxRetries(expBackoff, l.maxRetries),
	)
	if err != nil {
		return nil, fkerrors.NewFetch(u, err)
	}

	return doc, nil
}

func (l *HTTPLoader) load(u string) (*ld.RemoteDocument, error) {
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", AcceptHeader)
	req.Header.Set("User-Agent", l.userAgent)

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fkerrors.NewTransientf("get %s: %w", u, err)
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Warn("Error closing response body", log.WithError(err))
		}
	}()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fkerrors.NewTransientf("unexpected status %d from %s", resp.StatusCode, u)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, u)
	}

	document, err := ld.DocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document from %s: %w", u, err)
	}

	finalURL := u
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &ld.RemoteDocument{DocumentURL: finalURL, Document: document}, nil
}

func rejectPrivateHost(u string) error {
	parsed, err := parseHost(u)
	if err != nil {
		return err
	}

	if strings.EqualFold(parsed, "localhost") {
		return fmt.Errorf("host %q resolves to a private address", parsed)
	}

	ip := net.ParseIP(parsed)
	if ip == nil {
		return nil
	}

	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
		return fmt.Errorf("host %q resolves to a private address", parsed)
	}

	return nil
}

func parseHost(u string) (string, error) {
	withoutScheme := u

	if idx := strings.Index(u, "://"); idx >= 0 {
		withoutScheme = u[idx+3:]
	}

	host := withoutScheme

	if idx := strings.IndexAny(withoutScheme, "/?#"); idx >= 0 {
		host = withoutScheme[:idx]
	}

	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	if host == "" {
		return "", fmt.Errorf("no host in %q", u)
	}

	return strings.Trim(host, "[]"), nil
}
