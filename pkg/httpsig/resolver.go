/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package httpsig

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/piprate/json-gold/ld"

	"github.com/fedikit/fedikit/internal/pkg/log"
	fkerrors "github.com/fedikit/fedikit/pkg/errors"
	"github.com/fedikit/fedikit/pkg/store/spi"
	"github.com/fedikit/fedikit/pkg/vocab"
)

// DefaultKeyCacheTTL is how long resolved keys stay in the cache.
const DefaultKeyCacheTTL = time.Hour

// DefaultKeyCachePrefix is the key-value store prefix used when none is configured.
const DefaultKeyCachePrefix = "fedikit"

// Resolver resolves key ids by dereferencing them with a document loader. A key id may
// point at a bare key document or at an actor that publishes the key. Resolved keys are
// cached in a key-value store.
type Resolver struct {
	loader ld.DocumentLoader
	store  spi.KvStore
	ttl    time.Duration
	prefix string
}

// ResolverOption sets a resolver option.
type ResolverOption func(r *Resolver)

// WithKeyCacheTTL sets the key cache entry lifetime.
func WithKeyCacheTTL(ttl time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.ttl = ttl
	}
}

// WithKeyCachePrefix sets the key-value store prefix for cached keys.
func WithKeyCachePrefix(prefix string) ResolverOption {
	return func(r *Resolver) {
		r.prefix = prefix
	}
}

// NewResolver returns a new key resolver.
func NewResolver(loader ld.DocumentLoader, store spi.KvStore, opts ...ResolverOption) *Resolver {
	resolver := &Resolver{loader: loader, store: store, ttl: DefaultKeyCacheTTL,
		prefix: DefaultKeyCachePrefix}

	for _, opt := range opts {
		opt(resolver)
	}

	return resolver
}

// ResolveKey implements KeyResolver.
func (r *Resolver) ResolveKey(ctx context.Context, keyID string) (*vocab.CryptographicKey, error) {
	cacheKey := spi.Key{r.prefix, "httpsig-key", keyID}

	if cached, err := r.store.Get(ctx, cacheKey); err == nil {
		key := &vocab.CryptographicKey{}

		if err := json.Unmarshal(cached, key); err == nil {
			return key, nil
		}
	}

	key, err := r.resolve(keyID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(key); err == nil {
		if err := r.store.Set(ctx, cacheKey, data, spi.WithTTL(r.ttl)); err != nil {
			logger.Warn("Error caching resolved key", log.WithKeyID(keyID), log.WithError(err))
		}
	}

	return key, nil
}

func (r *Resolver) resolve(keyID string) (*vocab.CryptographicKey, error) {
	remoteDoc, err := r.loader.LoadDocument(keyID)
	if err != nil {
		return nil, err
	}

	doc, ok := remoteDoc.Document.(map[string]interface{})
	if !ok {
		return nil, fkerrors.NewFetch(keyID, fmt.Errorf("document is not a JSON object"))
	}

	obj := vocab.NewObjectFromDocument(doc)

	// A bare key document carries publicKeyPem directly.
	if obj.StringProperty("publicKeyPem") != "" {
		return keyFromDocument(keyID, doc)
	}

	// Otherwise the document is an actor publishing the key.
	for _, key := range vocab.NewActorFromDocument(doc).PublicKeys() {
		if key.ID == keyID {
			return key, nil
		}
	}

	return nil, fkerrors.NewFetch(keyID, fmt.Errorf("key not found in document"))
}

func keyFromDocument(keyID string, doc map[string]interface{}) (*vocab.CryptographicKey, error) {
	obj := vocab.NewObjectFromDocument(doc)

	key := &vocab.CryptographicKey{
		ID:           obj.StringProperty("id"),
		Owner:        obj.StringProperty("owner"),
		PublicKeyPem: obj.StringProperty("publicKeyPem"),
	}

	if key.Owner == "" {
		key.Owner = obj.StringProperty("controller")
	}

	if key.ID == "" {
		key.ID = keyID
	}

	if key.Owner == "" {
		return nil, fkerrors.NewFetch(keyID, fmt.Errorf("key document has no owner"))
	}

	return key, nil
}
