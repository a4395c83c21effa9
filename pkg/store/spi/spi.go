/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package spi defines the key-value store interface consumed by the federation engine.
// Implementations are pluggable; memstore provides the in-memory reference implementation
// and ariesstore adapts any aries storage provider.
package spi

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned from Get when no value exists for the given key.
var ErrNotFound = errors.New("not found in key-value store")

// Key is an ordered tuple of strings identifying a value in the store.
type Key []string

// String returns a flattened representation of the key, usable as a backend key.
func (k Key) String() string {
	return strings.Join(k, "::")
}

// Append returns a new key with the given components appended.
func (k Key) Append(components ...string) Key {
	newKey := make(Key, 0, len(k)+len(components))
	newKey = append(newKey, k...)

	return append(newKey, components...)
}

// SetOptions holds options for Set.
type SetOptions struct {
	// TTL is the time after which the value expires. Zero means no expiry.
	TTL time.Duration
}

// SetOpt sets an option for Set.
type SetOpt func(o *SetOptions)

// WithTTL sets the time-to-live of the value.
func WithTTL(ttl time.Duration) SetOpt {
	return func(o *SetOptions) {
		o.TTL = ttl
	}
}

// NewSetOptions returns SetOptions populated from the given options.
func NewSetOptions(opts ...SetOpt) *SetOptions {
	o := &SetOptions{}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// KvStore is a pluggable key-value store. Values are raw JSON.
type KvStore interface {
	// Get returns the value for the given key or ErrNotFound.
	Get(ctx context.Context, key Key) ([]byte, error)
	// Set stores the value under the given key, optionally with a TTL.
	Set(ctx context.Context, key Key, value []byte, opts ...SetOpt) error
	// Delete removes the value for the given key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key Key) error
}
