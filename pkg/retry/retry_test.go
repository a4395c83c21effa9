/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewExponential(t *testing.T) {
	// Zero jitter makes the curve deterministic.
	policy := NewExponential(WithRandom(func() float64 { return 0 }))

	t.Run("Exponential growth", func(t *testing.T) {
		delay, ok := policy(Context{Attempts: 0})
		require.True(t, ok)
		require.Equal(t, time.Second, delay)

		delay, ok = policy(Context{Attempts: 1})
		require.True(t, ok)
		require.Equal(t, 2*time.Second, delay)

		delay, ok = policy(Context{Attempts: 5})
		require.True(t, ok)
		require.Equal(t, 32*time.Second, delay)
	})

	t.Run("Capped at max delay", func(t *testing.T) {
		policy := NewExponential(
			WithInitialDelay(time.Second),
			WithFactor(10),
			WithMaxDelay(time.Minute),
			WithMaxAttempts(100),
			WithRandom(func() float64 { return 0 }),
		)

		delay, ok := policy(Context{Attempts: 50})
		require.True(t, ok)
		require.Equal(t, time.Minute, delay)
	})

	t.Run("Terminal after max attempts", func(t *testing.T) {
		_, ok := policy(Context{Attempts: 10})
		require.False(t, ok)

		_, ok = policy(Context{Attempts: 11})
		require.False(t, ok)
	})

	t.Run("Jitter multiplies and is clamped", func(t *testing.T) {
		policy := NewExponential(
			WithInitialDelay(time.Second),
			WithMaxDelay(time.Second),
			WithRandom(func() float64 { return 0.5 }),
		)

		delay, ok := policy(Context{Attempts: 0})
		require.True(t, ok)
		require.Equal(t, 1500*time.Millisecond, delay)

		// Worst-case jitter never exceeds twice the cap.
		policy = NewExponential(
			WithInitialDelay(time.Second),
			WithMaxDelay(time.Second),
			WithRandom(func() float64 { return 1 }),
		)

		delay, ok = policy(Context{Attempts: 9})
		require.True(t, ok)
		require.LessOrEqual(t, delay, 2*time.Second)
	})
}

func TestNever(t *testing.T) {
	_, ok := Never()(Context{})
	require.False(t, ok)
}

func TestConstant(t *testing.T) {
	policy := Constant(time.Second, 2)

	delay, ok := policy(Context{Attempts: 1})
	require.True(t, ok)
	require.Equal(t, time.Second, delay)

	_, ok = policy(Context{Attempts: 2})
	require.False(t, ok)
}
