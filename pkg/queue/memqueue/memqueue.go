/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package memqueue implements the in-memory reference MessageQueue. This implementation
// works only on a single node. In order to distribute the load across a cluster, a
// persistent message queue (such as RabbitMQ or Kafka) should instead be used behind the
// same interface.
package memqueue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/fedikit/fedikit/internal/pkg/log"
	"github.com/fedikit/fedikit/pkg/queue/spi"
)

var logger = log.New("queue")

const defaultPollInterval = 100 * time.Millisecond

// Config holds the configuration for the in-memory queue.
type Config struct {
	// PollInterval is the interval at which a listener checks for due messages.
	PollInterval time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{PollInterval: defaultPollInterval}
}

type entry struct {
	msg *message.Message
	due time.Time
}

// Queue is an in-memory message queue with delayed delivery.
type Queue struct {
	Config

	entries []*entry
	mutex   sync.Mutex
	notify  chan struct{}
	closed  chan struct{}
	once    sync.Once
}

// New returns a new in-memory queue.
func New(cfg Config) *Queue {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}

	return &Queue{
		Config: cfg,
		notify: make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

// Enqueue adds the message to the queue. A delivery delay holds the message back until
// the delay elapses.
func (q *Queue) Enqueue(_ context.Context, msg *message.Message, opts ...spi.Option) error {
	options := spi.NewOptions(opts...)

	e := &entry{msg: msg}

	if options.DeliveryDelay > 0 {
		e.due = time.Now().Add(options.DeliveryDelay)
	}

	q.mutex.Lock()
	q.entries = append(q.entries, e)
	q.mutex.Unlock()

	logger.Debug("Enqueued message", log.WithMessageID(msg.UUID),
		log.WithDelay(options.DeliveryDelay))

	select {
	case q.notify <- struct{}{}:
	default:
	}

	return nil
}

// Listen consumes due messages one at a time until the context is cancelled. It returns
// nil on cancellation; the in-flight handler invocation is allowed to finish.
func (q *Queue) Listen(ctx context.Context, handler spi.Handler) error {
	ticker := time.NewTicker(q.PollInterval)
	defer ticker.Stop()

	for {
		for {
			msg := q.pop()
			if msg == nil {
				break
			}

			if err := handler(ctx, msg); err != nil {
				logger.Warn("Error handling message", log.WithMessageID(msg.UUID), log.WithError(err))
			}

			select {
			case <-ctx.Done():
				return nil
			case <-q.closed:
				return nil
			default:
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-q.closed:
			return nil
		case <-q.notify:
		case <-ticker.C:
		}
	}
}

// Close stops all listeners. Pending messages are dropped.
func (q *Queue) Close() error {
	q.once.Do(func() {
		close(q.closed)
	})

	return nil
}

// pop removes and returns the earliest due message, or nil if none is due.
func (q *Queue) pop() *message.Message {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	now := time.Now()

	sort.SliceStable(q.entries, func(i, j int) bool {
		return q.entries[i].due.Before(q.entries[j].due)
	})

	for i, e := range q.entries {
		if e.due.After(now) {
			continue
		}

		q.entries = append(q.entries[:i], q.entries[i+1:]...)

		return e.msg
	}

	return nil
}
