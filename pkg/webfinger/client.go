/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package webfinger

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	fkerrors "github.com/fedikit/fedikit/pkg/errors"
)

type httpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client performs WebFinger lookups.
type Client struct {
	client httpClient
	secure bool
}

// ClientOption sets a client option.
type ClientOption func(c *Client)

// WithInsecure allows lookups over plain HTTP. Intended for tests.
func WithInsecure() ClientOption {
	return func(c *Client) {
		c.secure = false
	}
}

// NewClient returns a new WebFinger client.
func NewClient(client httpClient, opts ...ClientOption) *Client {
	c := &Client{client: client, secure: true}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// ResolveHandle looks up the given acct resource on its host and returns the
// descriptor.
func (c *Client) ResolveHandle(ctx context.Context, acct Acct) (*JRD, error) {
	scheme := "https"
	if !c.secure {
		scheme = "http"
	}

	u := fmt.Sprintf("%s://%s%s?resource=%s", scheme, acct.Host, WebFingerPath,
		url.QueryEscape(acct.String()))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", ContentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fkerrors.NewFetch(u, fkerrors.NewTransient(err))
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fkerrors.NewFetch(u, fkerrors.ErrNotFound)
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fkerrors.NewFetch(u, fkerrors.NewTransientf("unexpected status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, fkerrors.NewFetch(u, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	descriptor := &JRD{}

	if err := json.NewDecoder(resp.Body).Decode(descriptor); err != nil {
		return nil, fkerrors.NewFetch(u, fmt.Errorf("decode descriptor: %w", err))
	}

	return descriptor, nil
}
