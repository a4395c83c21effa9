/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package spi defines the message queue interface consumed by the federation engine.
// Delivery is at-least-once: the engine does not require exactly-once and listeners must
// rely on the idempotence record.
package spi

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
)

// Handler processes a single message. Returning an error indicates that handling failed;
// whether the message is redelivered is up to the caller (the engine re-enqueues with its
// retry policy rather than relying on queue redelivery).
type Handler func(ctx context.Context, msg *message.Message) error

// Options contains enqueue options.
type Options struct {
	// DeliveryDelay is the time to wait before the message becomes available to
	// listeners. Note: not all backends support this option.
	DeliveryDelay time.Duration
}

// Option specifies an enqueue option.
type Option func(o *Options)

// WithDeliveryDelay sets the delivery delay.
func WithDeliveryDelay(delay time.Duration) Option {
	return func(o *Options) {
		o.DeliveryDelay = delay
	}
}

// NewOptions returns Options populated from the given options.
func NewOptions(opts ...Option) *Options {
	o := &Options{}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// MessageQueue is a pluggable message queue.
type MessageQueue interface {
	// Enqueue adds the message to the queue, optionally with a delivery delay.
	Enqueue(ctx context.Context, msg *message.Message, opts ...Option) error

	// Listen consumes messages one at a time, invoking the handler for each, until the
	// given context is cancelled. It returns nil on cancellation; in-flight handler
	// invocations are allowed to finish.
	Listen(ctx context.Context, handler Handler) error

	// Close releases the queue's resources.
	Close() error
}
