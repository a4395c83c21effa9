/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package noop provides a metrics provider that discards all metrics.
package noop

import (
	"time"

	"github.com/fedikit/fedikit/pkg/observability/metrics"
)

// Provider is a no-op metrics provider.
type Provider struct{}

// NewProvider returns a no-op metrics provider.
func NewProvider() *Provider {
	return &Provider{}
}

// Create is a no-op.
func (p *Provider) Create() error { return nil }

// Destroy is a no-op.
func (p *Provider) Destroy() error { return nil }

// Metrics returns the no-op metrics.
func (p *Provider) Metrics() metrics.Metrics {
	return &Metrics{}
}

// Metrics discards all metrics.
type Metrics struct{}

// InboxHandlerTime is a no-op.
func (m *Metrics) InboxHandlerTime(string, time.Duration) {}

// OutboxPostTime is a no-op.
func (m *Metrics) OutboxPostTime(time.Duration) {}

// OutboxResolveInboxesTime is a no-op.
func (m *Metrics) OutboxResolveInboxesTime(time.Duration) {}

// OutboxIncrementActivityCount is a no-op.
func (m *Metrics) OutboxIncrementActivityCount(string) {}

// SignatureVerifyTime is a no-op.
func (m *Metrics) SignatureVerifyTime(time.Duration) {}

// ResolveKeyTime is a no-op.
func (m *Metrics) ResolveKeyTime(time.Duration) {}
