/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package pooled implements a parallel-worker decorator for any MessageQueue. Messages
// are consumed one at a time from the wrapped queue but up to N handler invocations run
// concurrently; the consumer blocks while N are in flight.
package pooled

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/fedikit/fedikit/internal/pkg/log"
	"github.com/fedikit/fedikit/pkg/queue/spi"
)

var logger = log.New("queue")

const defaultPoolSize = 4

// Queue decorates a MessageQueue with a concurrent handler pool.
type Queue struct {
	inner spi.MessageQueue
	size  int
}

// New returns a pooled decorator around the given queue with the given pool size.
func New(inner spi.MessageQueue, size int) *Queue {
	if size <= 0 {
		size = defaultPoolSize
	}

	return &Queue{inner: inner, size: size}
}

// Enqueue delegates to the wrapped queue.
func (q *Queue) Enqueue(ctx context.Context, msg *message.Message, opts ...spi.Option) error {
	return q.inner.Enqueue(ctx, msg, opts...)
}

// Listen consumes from the wrapped queue and dispatches handler invocations to the pool.
// It returns when the wrapped Listen returns and all in-flight handlers have finished.
func (q *Queue) Listen(ctx context.Context, handler spi.Handler) error {
	semaphore := make(chan struct{}, q.size)

	var wg sync.WaitGroup

	err := q.inner.Listen(ctx, func(ctx context.Context, msg *message.Message) error {
		// Blocks the consumer when the pool is saturated.
		semaphore <- struct{}{}

		wg.Add(1)

		go func() {
			defer wg.Done()
			defer func() { <-semaphore }()

			if err := handler(ctx, msg); err != nil {
				logger.Warn("Error handling message", log.WithMessageID(msg.UUID), log.WithError(err))
			}
		}()

		return nil
	})

	wg.Wait()

	return err
}

// Close delegates to the wrapped queue.
func (q *Queue) Close() error {
	return q.inner.Close()
}
