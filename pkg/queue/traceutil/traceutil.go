/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package traceutil propagates OpenTelemetry trace context through queue messages so that
// a worker's spans join the trace of the request that enqueued the message.
package traceutil

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel"
)

// NewMessage creates a new message carrying the payload and any trace context found in
// the given context.
func NewMessage(ctx context.Context, payload []byte) *message.Message {
	msg := message.NewMessage(watermill.NewUUID(), payload)

	InjectContext(ctx, msg)

	return msg
}

// InjectContext adds trace context to the message metadata (if available).
func InjectContext(ctx context.Context, msg *message.Message) {
	otel.GetTextMapPropagator().Inject(ctx, &messageCarrier{msg: msg})
}

// ContextFromMessage returns a new context that includes any trace context carried in the
// message metadata.
func ContextFromMessage(msg *message.Message) context.Context {
	return otel.GetTextMapPropagator().Extract(context.Background(), &messageCarrier{msg: msg})
}

// messageCarrier adapts watermill message metadata to the otel TextMapCarrier.
type messageCarrier struct {
	msg *message.Message
}

func (c *messageCarrier) Get(key string) string {
	return c.msg.Metadata.Get(key)
}

func (c *messageCarrier) Set(key, value string) {
	c.msg.Metadata.Set(key, value)
}

func (c *messageCarrier) Keys() []string {
	keys := make([]string, 0, len(c.msg.Metadata))

	for key := range c.msg.Metadata {
		keys = append(keys, key)
	}

	return keys
}
