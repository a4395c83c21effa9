/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package docloader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/piprate/json-gold/ld"

	"github.com/fedikit/fedikit/internal/pkg/log"
	fkerrors "github.com/fedikit/fedikit/pkg/errors"
	"github.com/fedikit/fedikit/pkg/store/spi"
)

// DefaultCacheTTL is how long fetched documents stay in the cache.
const DefaultCacheTTL = 24 * time.Hour

// DefaultCachePrefix is the key-value store prefix used when none is configured.
const DefaultCachePrefix = "fedikit"

// CacheLoader caches documents fetched by the wrapped loader in a key-value store.
// Only IRIs accepted by the whitelist are cached; by default everything is.
type CacheLoader struct {
	next      ld.DocumentLoader
	store     spi.KvStore
	ttl       time.Duration
	prefix    string
	cacheable func(u string) bool
}

// CacheOption sets a cache loader option.
type CacheOption func(l *CacheLoader)

// WithCacheTTL sets the cache entry lifetime.
func WithCacheTTL(ttl time.Duration) CacheOption {
	return func(l *CacheLoader) {
		l.ttl = ttl
	}
}

// WithCachePrefix sets the key-value store prefix for cache entries.
func WithCachePrefix(prefix string) CacheOption {
	return func(l *CacheLoader) {
		l.prefix = prefix
	}
}

// WithCacheable restricts caching to IRIs accepted by the given predicate.
func WithCacheable(cacheable func(u string) bool) CacheOption {
	return func(l *CacheLoader) {
		l.cacheable = cacheable
	}
}

// NewCacheLoader wraps the given loader with a key-value store cache.
func NewCacheLoader(next ld.DocumentLoader, store spi.KvStore, opts ...CacheOption) *CacheLoader {
	loader := &CacheLoader{
		next:      next,
		store:     store,
		ttl:       DefaultCacheTTL,
		prefix:    DefaultCachePrefix,
		cacheable: func(string) bool { return true },
	}

	for _, opt := range opts {
		opt(loader)
	}

	return loader
}

// LoadDocument implements ld.DocumentLoader.
func (l *CacheLoader) LoadDocument(u string) (*ld.RemoteDocument, error) {
	key := spi.Key{l.prefix, "docloader", u}

	if l.cacheable(u) {
		if cached, err := l.store.Get(context.Background(), key); err == nil {
			doc := &ld.RemoteDocument{}

			if err := json.Unmarshal(cached, doc); err == nil {
				return doc, nil
			}

			logger.Warn("Discarding unparsable cache entry", log.WithURIString(u))
		} else if !errors.Is(err, spi.ErrNotFound) {
			logger.Warn("Error reading document cache", log.WithURIString(u), log.WithError(err))
		}
	}

	doc, err := l.next.LoadDocument(u)
	if err != nil {
		return nil, err
	}

	if l.cacheable(u) {
		data, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("marshal cached document: %w", err)
		}

		if err := l.store.Set(context.Background(), key, data, spi.WithTTL(l.ttl)); err != nil {
			logger.Warn("Error writing document cache", log.WithURIString(u), log.WithError(err))
		}
	}

	return doc, nil
}

// StaticLoader serves preloaded documents and delegates everything else. Used to pin
// well-known context documents and in tests.
type StaticLoader struct {
	docs map[string]*ld.RemoteDocument
	next ld.DocumentLoader
}

// NewStaticLoader returns a loader serving the given documents, falling back to next
// for unknown IRIs. A nil next makes unknown IRIs an error.
func NewStaticLoader(docs map[string]interface{}, next ld.DocumentLoader) *StaticLoader {
	preloaded := make(map[string]*ld.RemoteDocument, len(docs))

	for u, doc := range docs {
		preloaded[u] = &ld.RemoteDocument{DocumentURL: u, Document: doc}
	}

	return &StaticLoader{docs: preloaded, next: next}
}

// LoadDocument implements ld.DocumentLoader.
func (l *StaticLoader) LoadDocument(u string) (*ld.RemoteDocument, error) {
	if doc, ok := l.docs[u]; ok {
		return doc, nil
	}

	if l.next == nil {
		return nil, fkerrors.NewFetch(u, fmt.Errorf("document not preloaded"))
	}

	return l.next.LoadDocument(u)
}
