/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package pooled

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/require"

	"github.com/fedikit/fedikit/pkg/queue/memqueue"
)

func TestQueue_ConcurrencyLimit(t *testing.T) {
	const poolSize = 3

	q := New(memqueue.New(memqueue.Config{PollInterval: 5 * time.Millisecond}), poolSize)
	defer func() {
		require.NoError(t, q.Close())
	}()

	ctx, cancel := context.WithCancel(context.Background())

	var (
		inFlight    int32
		maxInFlight int32
		handled     int32
		mutex       sync.Mutex
	)

	done := make(chan struct{})

	go func() {
		defer close(done)

		_ = q.Listen(ctx, func(context.Context, *message.Message) error {
			current := atomic.AddInt32(&inFlight, 1)

			mutex.Lock()
			if current > maxInFlight {
				maxInFlight = current
			}
			mutex.Unlock()

			time.Sleep(50 * time.Millisecond)

			atomic.AddInt32(&inFlight, -1)
			atomic.AddInt32(&handled, 1)

			return nil
		})
	}()

	const total = 10

	for i := 0; i < total; i++ {
		require.NoError(t, q.Enqueue(ctx, message.NewMessage(watermill.NewUUID(), []byte("m"))))
	}

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&handled) == total
	}, 5*time.Second, 10*time.Millisecond)

	mutex.Lock()
	observedMax := maxInFlight
	mutex.Unlock()

	require.LessOrEqual(t, observedMax, int32(poolSize))
	require.Greater(t, observedMax, int32(1), "expected concurrent dispatch")

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("listener did not return after cancellation")
	}
}
