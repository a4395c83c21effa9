/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package retry provides the retry policies used by the inbox and outbox pipelines.
package retry

import (
	"math/rand"
	"time"
)

// Context describes the state of a failing operation.
type Context struct {
	// ElapsedTime is the time since the first attempt started.
	ElapsedTime time.Duration
	// Attempts is the number of attempts that have failed so far.
	Attempts int
}

// Policy computes the delay before the next attempt. Returning false is terminal: the
// operation is not retried.
type Policy func(ctx Context) (time.Duration, bool)

// Defaults for the exponential policy.
const (
	DefaultInitialDelay = time.Second
	DefaultFactor       = 2.0
	DefaultMaxDelay     = 12 * time.Hour
	DefaultMaxAttempts  = 10
)

type exponentialOptions struct {
	initialDelay time.Duration
	factor       float64
	maxDelay     time.Duration
	maxAttempts  int
	random       func() float64
}

// Opt sets an exponential policy option.
type Opt func(o *exponentialOptions)

// WithInitialDelay sets the first interval between retries.
func WithInitialDelay(value time.Duration) Opt {
	return func(o *exponentialOptions) {
		o.initialDelay = value
	}
}

// WithFactor sets the factor by which the interval is multiplied between retries.
func WithFactor(value float64) Opt {
	return func(o *exponentialOptions) {
		o.factor = value
	}
}

// WithMaxDelay sets the limit for the exponential backoff. The interval (before jitter)
// is not increased beyond this value.
func WithMaxDelay(value time.Duration) Opt {
	return func(o *exponentialOptions) {
		o.maxDelay = value
	}
}

// WithMaxAttempts sets the maximum number of attempts, after which the policy is
// terminal.
func WithMaxAttempts(value int) Opt {
	return func(o *exponentialOptions) {
		o.maxAttempts = value
	}
}

// WithRandom overrides the jitter source. Used by tests.
func WithRandom(random func() float64) Opt {
	return func(o *exponentialOptions) {
		o.random = random
	}
}

// NewExponential returns an exponential backoff policy: initialDelay·factor^attempts,
// capped at maxDelay, multiplied by a (1 + rand) jitter, terminal after maxAttempts.
// The jittered delay is clamped at 2·maxDelay so the worst case cannot exceed twice
// the cap.
func NewExponential(opts ...Opt) Policy {
	o := &exponentialOptions{
		initialDelay: DefaultInitialDelay,
		factor:       DefaultFactor,
		maxDelay:     DefaultMaxDelay,
		maxAttempts:  DefaultMaxAttempts,
		random:       rand.Float64,
	}

	for _, opt := range opts {
		opt(o)
	}

	return func(ctx Context) (time.Duration, bool) {
		if ctx.Attempts >= o.maxAttempts {
			return 0, false
		}

		delay := float64(o.initialDelay)

		for i := 0; i < ctx.Attempts && delay < float64(o.maxDelay); i++ {
			delay *= o.factor
		}

		if delay > float64(o.maxDelay) {
			delay = float64(o.maxDelay)
		}

		delay *= 1 + o.random()

		if delay > 2*float64(o.maxDelay) {
			delay = 2 * float64(o.maxDelay)
		}

		return time.Duration(delay), true
	}
}

// Never returns a policy that never retries.
func Never() Policy {
	return func(Context) (time.Duration, bool) {
		return 0, false
	}
}

// Constant returns a policy that always retries after the given delay, terminal after
// maxAttempts.
func Constant(delay time.Duration, maxAttempts int) Policy {
	return func(ctx Context) (time.Duration, bool) {
		if ctx.Attempts >= maxAttempts {
			return 0, false
		}

		return delay, true
	}
}
