/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package federation

import (
	"net/http"
	"time"

	"github.com/piprate/json-gold/ld"
	"go.opentelemetry.io/otel/trace"

	"github.com/fedikit/fedikit/pkg/keys"
	"github.com/fedikit/fedikit/pkg/observability/metrics"
	"github.com/fedikit/fedikit/pkg/queue/spi"
	"github.com/fedikit/fedikit/pkg/retry"
	storespi "github.com/fedikit/fedikit/pkg/store/spi"
)

// DefaultKvPrefix is the first element of every key the engine writes to its store.
const DefaultKvPrefix = "fedikit"

// DefaultUserAgent identifies this software on outbound requests.
const DefaultUserAgent = "fedikit"

type options struct {
	store                 storespi.KvStore
	inboxQueue            spi.MessageQueue
	outboxQueue           spi.MessageQueue
	inboxRetryPolicy      retry.Policy
	outboxRetryPolicy     retry.Policy
	signatureTimeWindow   time.Duration
	disableSignatureTime  bool
	allowLegacySHA1       bool
	skipSignatureVerify   bool
	userAgent             string
	kvPrefix              string
	trailingSlash         bool
	tracerProvider        trace.TracerProvider
	documentLoader        ld.DocumentLoader
	contextLoader         ld.DocumentLoader
	authenticatedLoader   func(key *keys.KeyPair) ld.DocumentLoader
	metrics               metrics.Metrics
	httpClient            *http.Client
	outboxPoolSize        int
}

// Option sets a federation option.
type Option func(o *options)

// WithKvStore sets the key-value store used for idempotence records, the key cache and
// the document cache. Required.
func WithKvStore(store storespi.KvStore) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithQueue sets a single message queue used for both inbox and outbox messages.
func WithQueue(queue spi.MessageQueue) Option {
	return func(o *options) {
		o.inboxQueue = queue
		o.outboxQueue = queue
	}
}

// WithInboxQueue sets the queue for inbound activities. Without a queue the inbox
// pipeline runs inline.
func WithInboxQueue(queue spi.MessageQueue) Option {
	return func(o *options) {
		o.inboxQueue = queue
	}
}

// WithOutboxQueue sets the queue for outbound deliveries. Without a queue deliveries
// are sent immediately.
func WithOutboxQueue(queue spi.MessageQueue) Option {
	return func(o *options) {
		o.outboxQueue = queue
	}
}

// WithInboxRetryPolicy sets the retry policy for failed inbound listener invocations.
func WithInboxRetryPolicy(policy retry.Policy) Option {
	return func(o *options) {
		o.inboxRetryPolicy = policy
	}
}

// WithOutboxRetryPolicy sets the retry policy for failed outbound deliveries.
func WithOutboxRetryPolicy(policy retry.Policy) Option {
	return func(o *options) {
		o.outboxRetryPolicy = policy
	}
}

// WithSignatureTimeWindow sets the allowed skew of the Date header on signed requests.
func WithSignatureTimeWindow(window time.Duration) Option {
	return func(o *options) {
		o.signatureTimeWindow = window
	}
}

// WithoutSignatureTimeCheck disables the Date header check.
func WithoutSignatureTimeCheck() Option {
	return func(o *options) {
		o.disableSignatureTime = true
	}
}

// WithLegacySHA1 accepts SHA-1 digests on inbound requests.
func WithLegacySHA1() Option {
	return func(o *options) {
		o.allowLegacySHA1 = true
	}
}

// WithoutSignatureVerification disables all inbound signature verification. Intended
// for tests.
func WithoutSignatureVerification() Option {
	return func(o *options) {
		o.skipSignatureVerify = true
	}
}

// WithUserAgent sets the User-Agent header on outbound requests.
func WithUserAgent(userAgent string) Option {
	return func(o *options) {
		o.userAgent = userAgent
	}
}

// WithKvPrefix sets the key prefix for the engine's store records.
func WithKvPrefix(prefix string) Option {
	return func(o *options) {
		o.kvPrefix = prefix
	}
}

// WithTrailingSlashInsensitive makes route matching ignore a trailing slash.
func WithTrailingSlashInsensitive() Option {
	return func(o *options) {
		o.trailingSlash = true
	}
}

// WithTracerProvider sets the tracer provider used to propagate trace context through
// queue messages.
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = provider
	}
}

// WithDocumentLoader sets the loader used to dereference remote documents and keys.
func WithDocumentLoader(loader ld.DocumentLoader) Option {
	return func(o *options) {
		o.documentLoader = loader
	}
}

// WithContextLoader sets the loader used for JSON-LD context resolution during
// canonicalization and compaction.
func WithContextLoader(loader ld.DocumentLoader) Option {
	return func(o *options) {
		o.contextLoader = loader
	}
}

// WithAuthenticatedLoaderFactory sets the factory for loaders that sign their fetches
// with an actor key, for remotes in authorized-fetch mode.
func WithAuthenticatedLoaderFactory(factory func(key *keys.KeyPair) ld.DocumentLoader) Option {
	return func(o *options) {
		o.authenticatedLoader = factory
	}
}

// WithMetrics sets the metrics implementation.
func WithMetrics(m metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithHTTPClient sets the HTTP client used for outbound deliveries and fetches.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithOutboxPoolSize sets how many outbound deliveries are processed concurrently.
func WithOutboxPoolSize(size int) Option {
	return func(o *options) {
		o.outboxPoolSize = size
	}
}
