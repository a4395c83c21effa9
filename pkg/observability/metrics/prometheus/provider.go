/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package prometheus provides a Prometheus-backed metrics provider.
package prometheus

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fedikit/fedikit/pkg/observability/metrics"
)

var (
	createOnce sync.Once       //nolint:gochecknoglobals
	instance   metrics.Metrics //nolint:gochecknoglobals
)

// Provider is a Prometheus metrics provider. Metrics are registered on the default
// registry and served by the caller's /metrics endpoint.
type Provider struct{}

// NewProvider returns a Prometheus metrics provider.
func NewProvider() *Provider {
	return &Provider{}
}

// Create is a no-op. Metrics register lazily on first use.
func (p *Provider) Create() error { return nil }

// Destroy is a no-op.
func (p *Provider) Destroy() error { return nil }

// Metrics returns the Prometheus-backed metrics. The same instance is returned on
// every call since collectors may only be registered once.
func (p *Provider) Metrics() metrics.Metrics {
	createOnce.Do(func() {
		instance = newMetrics()
	})

	return instance
}

// Metrics publishes the engine's metrics to Prometheus.
type Metrics struct {
	inboxHandlerTime     *prometheus.HistogramVec
	outboxPostTime       prometheus.Histogram
	outboxResolveTime    prometheus.Histogram
	outboxActivityCount  *prometheus.CounterVec
	signatureVerifyTime  prometheus.Histogram
	signatureResolveTime prometheus.Histogram
}

func newMetrics() *Metrics {
	m := &Metrics{
		inboxHandlerTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: metrics.ActivityPub,
			Name:      metrics.ApInboxHandlerTimeMetric,
			Help:      "The time (in seconds) that it takes to handle an activity posted to the inbox.",
		}, []string{"type"}),
		outboxPostTime: newHistogram(metrics.ActivityPub, metrics.ApPostTimeMetric,
			"The time (in seconds) that it takes to post an activity to a remote inbox."),
		outboxResolveTime: newHistogram(metrics.ActivityPub, metrics.ApResolveInboxesTimeMetric,
			"The time (in seconds) that it takes to resolve the inboxes of an activity's recipients."),
		outboxActivityCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: metrics.ActivityPub,
			Name:      metrics.ApOutboxActivityCounterMetric,
			Help:      "The number of activities posted to the outbox.",
		}, []string{"type"}),
		signatureVerifyTime: newHistogram(metrics.Signature, metrics.SigVerifyTimeMetric,
			"The time (in seconds) that it takes to verify the signatures on an incoming request."),
		signatureResolveTime: newHistogram(metrics.Signature, metrics.SigResolveKeyTimeMetric,
			"The time (in seconds) that it takes to resolve a remote public key."),
	}

	prometheus.MustRegister(
		m.inboxHandlerTime, m.outboxPostTime, m.outboxResolveTime,
		m.outboxActivityCount, m.signatureVerifyTime, m.signatureResolveTime,
	)

	return m
}

// InboxHandlerTime records the time it takes to handle an incoming activity.
func (m *Metrics) InboxHandlerTime(activityType string, value time.Duration) {
	m.inboxHandlerTime.WithLabelValues(activityType).Observe(value.Seconds())
}

// OutboxPostTime records the time it takes to deliver an activity.
func (m *Metrics) OutboxPostTime(value time.Duration) {
	m.outboxPostTime.Observe(value.Seconds())
}

// OutboxResolveInboxesTime records the time it takes to resolve recipient inboxes.
func (m *Metrics) OutboxResolveInboxesTime(value time.Duration) {
	m.outboxResolveTime.Observe(value.Seconds())
}

// OutboxIncrementActivityCount increments the count of posted activities.
func (m *Metrics) OutboxIncrementActivityCount(activityType string) {
	m.outboxActivityCount.WithLabelValues(activityType).Inc()
}

// SignatureVerifyTime records the time it takes to verify incoming signatures.
func (m *Metrics) SignatureVerifyTime(value time.Duration) {
	m.signatureVerifyTime.Observe(value.Seconds())
}

// ResolveKeyTime records the time it takes to resolve a remote key.
func (m *Metrics) ResolveKeyTime(value time.Duration) {
	m.signatureResolveTime.Observe(value.Seconds())
}

func newHistogram(subsystem, name, help string) prometheus.Histogram {
	return prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: metrics.Namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
}
