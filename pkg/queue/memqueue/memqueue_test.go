/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package memqueue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/require"

	"github.com/fedikit/fedikit/pkg/queue/spi"
)

func TestQueue(t *testing.T) {
	q := New(Config{PollInterval: 10 * time.Millisecond})
	defer func() {
		require.NoError(t, q.Close())
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mutex sync.Mutex

	var received []string

	done := make(chan struct{})

	go func() {
		defer close(done)

		_ = q.Listen(ctx, func(_ context.Context, msg *message.Message) error {
			mutex.Lock()
			received = append(received, string(msg.Payload))
			mutex.Unlock()

			return nil
		})
	}()

	require.NoError(t, q.Enqueue(ctx, message.NewMessage(watermill.NewUUID(), []byte("one"))))
	require.NoError(t, q.Enqueue(ctx, message.NewMessage(watermill.NewUUID(), []byte("two"))))

	require.Eventually(t, func() bool {
		mutex.Lock()
		defer mutex.Unlock()

		return len(received) == 2
	}, time.Second, 10*time.Millisecond)

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("listener did not return after cancellation")
	}
}

func TestQueue_DelayedDelivery(t *testing.T) {
	q := New(DefaultConfig())
	defer func() {
		require.NoError(t, q.Close())
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mutex sync.Mutex

	var deliveredAt time.Time

	go func() {
		_ = q.Listen(ctx, func(_ context.Context, _ *message.Message) error {
			mutex.Lock()
			deliveredAt = time.Now()
			mutex.Unlock()

			return nil
		})
	}()

	start := time.Now()

	require.NoError(t, q.Enqueue(ctx, message.NewMessage(watermill.NewUUID(), []byte("later")),
		spi.WithDeliveryDelay(300*time.Millisecond)))

	require.Eventually(t, func() bool {
		mutex.Lock()
		defer mutex.Unlock()

		return !deliveredAt.IsZero()
	}, 2*time.Second, 10*time.Millisecond)

	mutex.Lock()
	elapsed := deliveredAt.Sub(start)
	mutex.Unlock()

	require.GreaterOrEqual(t, elapsed, 300*time.Millisecond)
}

func TestQueue_CloseStopsListener(t *testing.T) {
	q := New(DefaultConfig())

	done := make(chan struct{})

	go func() {
		defer close(done)

		_ = q.Listen(context.Background(), func(context.Context, *message.Message) error {
			return nil
		})
	}()

	require.NoError(t, q.Close())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("listener did not return after Close")
	}
}
