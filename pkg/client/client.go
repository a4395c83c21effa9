/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package client dereferences remote ActivityPub actors, objects and keys over the
// signed transport.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bluele/gcache"
	"github.com/piprate/json-gold/ld"

	"github.com/fedikit/fedikit/internal/pkg/log"
	"github.com/fedikit/fedikit/pkg/client/transport"
	fkerrors "github.com/fedikit/fedikit/pkg/errors"
	"github.com/fedikit/fedikit/pkg/keys"
	"github.com/fedikit/fedikit/pkg/vocab"
)

var logger = log.New("client")

const (
	defaultCacheSize       = 100
	defaultCacheExpiration = 10 * time.Minute
)

// Client dereferences remote objects. Fetched actors are cached in an ARC cache.
type Client struct {
	transport  *transport.Transport
	key        *keys.KeyPair
	actorCache gcache.Cache
}

type options struct {
	key             *keys.KeyPair
	cacheSize       int
	cacheExpiration time.Duration
}

// Option sets a client option.
type Option func(o *options)

// WithInstanceKey sets the key pair used to sign fetches. Unset fetches are unsigned.
func WithInstanceKey(key *keys.KeyPair) Option {
	return func(o *options) {
		o.key = key
	}
}

// WithCacheSize sets the actor cache size.
func WithCacheSize(size int) Option {
	return func(o *options) {
		o.cacheSize = size
	}
}

// WithCacheExpiration sets the actor cache expiration.
func WithCacheExpiration(expiration time.Duration) Option {
	return func(o *options) {
		o.cacheExpiration = expiration
	}
}

// New returns a new client.
func New(t *transport.Transport, opts ...Option) *Client {
	o := options{
		cacheSize:       defaultCacheSize,
		cacheExpiration: defaultCacheExpiration,
	}

	for _, opt := range opts {
		opt(&o)
	}

	return &Client{
		transport:  t,
		key:        o.key,
		actorCache: gcache.New(o.cacheSize).ARC().Expiration(o.cacheExpiration).Build(),
	}
}

// GetObject dereferences the given IRI.
func (c *Client) GetObject(ctx context.Context, iri *url.URL) (*vocab.Object, error) {
	doc, err := c.get(ctx, iri)
	if err != nil {
		return nil, err
	}

	return vocab.NewObjectFromDocument(doc), nil
}

// GetActor dereferences the given actor IRI, consulting the cache first.
func (c *Client) GetActor(ctx context.Context, iri *url.URL) (*vocab.Actor, error) {
	if cached, err := c.actorCache.Get(iri.String()); err == nil {
		if actor, ok := cached.(*vocab.Actor); ok {
			return actor, nil
		}
	}

	doc, err := c.get(ctx, iri)
	if err != nil {
		return nil, err
	}

	actor := vocab.NewActorFromDocument(doc)

	if !vocab.IsActorType(actor.Type()) {
		return nil, fmt.Errorf("document at %s is not an actor", iri)
	}

	if err := c.actorCache.Set(iri.String(), actor); err != nil {
		logger.Warn("Error caching actor", log.WithActorIRI(iri), log.WithError(err))
	}

	return actor, nil
}

// GetPublicKey dereferences the given key IRI. The IRI may point at a bare key
// document or at the actor publishing the key.
func (c *Client) GetPublicKey(ctx context.Context, keyIRI *url.URL) (*vocab.CryptographicKey, error) {
	doc, err := c.get(ctx, keyIRI)
	if err != nil {
		return nil, err
	}

	obj := vocab.NewObjectFromDocument(doc)

	if obj.StringProperty("publicKeyPem") != "" {
		key := &vocab.CryptographicKey{
			ID:           obj.StringProperty("id"),
			Owner:        obj.StringProperty("owner"),
			PublicKeyPem: obj.StringProperty("publicKeyPem"),
		}

		if key.Owner == "" {
			key.Owner = obj.StringProperty("controller")
		}

		if key.ID == "" {
			key.ID = keyIRI.String()
		}

		return key, nil
	}

	for _, key := range vocab.NewActorFromDocument(doc).PublicKeys() {
		if key.ID == keyIRI.String() {
			return key, nil
		}
	}

	return nil, fkerrors.NewFetch(keyIRI.String(), fmt.Errorf("key not found in document"))
}

// ResolveKey implements the HTTP signature verifier's key resolver.
func (c *Client) ResolveKey(ctx context.Context, keyID string) (*vocab.CryptographicKey, error) {
	keyIRI, err := url.Parse(keyID)
	if err != nil {
		return nil, fmt.Errorf("parse key id: %w", err)
	}

	return c.GetPublicKey(ctx, keyIRI)
}

// LoadDocument implements ld.DocumentLoader over the signed transport, for servers
// that require authorized fetch.
func (c *Client) LoadDocument(u string) (*ld.RemoteDocument, error) {
	iri, err := url.Parse(u)
	if err != nil {
		return nil, fkerrors.NewFetch(u, err)
	}

	doc, err := c.get(context.Background(), iri)
	if err != nil {
		return nil, err
	}

	return &ld.RemoteDocument{DocumentURL: u, Document: doc}, nil
}

func (c *Client) get(ctx context.Context, iri *url.URL) (map[string]interface{}, error) {
	resp, err := c.transport.Get(ctx, transport.NewRequest(iri, c.key))
	if err != nil {
		return nil, fkerrors.NewFetch(iri.String(), fkerrors.NewTransient(err))
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Warn("Error closing response body", log.WithError(err))
		}
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, fkerrors.NewFetch(iri.String(), fkerrors.ErrNotFound)
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fkerrors.NewFetch(iri.String(),
			fkerrors.NewTransientf("unexpected status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, fkerrors.NewFetch(iri.String(), fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fkerrors.NewFetch(iri.String(), fkerrors.NewTransient(err))
	}

	doc, err := vocab.UnmarshalDocument(body)
	if err != nil {
		return nil, fkerrors.NewFetch(iri.String(), err)
	}

	return doc, nil
}
