/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package metrics defines the metrics published by the federation engine.
package metrics

import (
	"time"
)

// Metric namespace and subsystem names.
const (
	Namespace = "fedikit"

	ActivityPub                   = "activitypub"
	ApPostTimeMetric              = "outbox_post_seconds"
	ApResolveInboxesTimeMetric    = "outbox_resolve_inboxes_seconds"
	ApInboxHandlerTimeMetric      = "inbox_handler_seconds"
	ApOutboxActivityCounterMetric = "outbox_count"

	Signature               = "signature"
	SigVerifyTimeMetric     = "verify_seconds"
	SigResolveKeyTimeMetric = "resolve_key_seconds"
)

// Provider is an interface for a metrics provider.
type Provider interface {
	// Create creates the metrics provider instance.
	Create() error
	// Destroy destroys the metrics provider instance.
	Destroy() error
	// Metrics returns the metrics.
	Metrics() Metrics
}

// Metrics is the set of metrics published by the federation engine.
type Metrics interface {
	InboxHandlerTime(activityType string, value time.Duration)
	OutboxPostTime(value time.Duration)
	OutboxResolveInboxesTime(value time.Duration)
	OutboxIncrementActivityCount(activityType string)
	SignatureVerifyTime(value time.Duration)
	ResolveKeyTime(value time.Duration)
}
