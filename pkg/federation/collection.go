/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package federation

import (
	"fmt"
	"net/url"

	"github.com/fedikit/fedikit/internal/pkg/log"
	"github.com/fedikit/fedikit/pkg/vocab"
)

// CollectionPage is what a collection dispatcher returns: the items of one page plus
// the cursors of the neighbouring pages. A nil cursor means there is no such page.
type CollectionPage struct {
	Items      []interface{}
	NextCursor *string
	PrevCursor *string
}

// CollectionFilter restricts the items of a collection page, for example to the
// followers under one origin during a synchronized partial delivery.
type CollectionFilter func(ctx *Context, item interface{}) bool

// SetFilter restricts the served items. Collections commonly filtered by origin (such
// as followers) should register one; without it a base-url query is answered with the
// whole collection.
func (s *CollectionCallbackSetters) SetFilter(filter CollectionFilter) *CollectionCallbackSetters {
	s.route.filter = filter

	return s
}

// serveCollection builds the response document for a GET on a collection route. A nil
// document (with a nil error) means the collection does not exist.
func (f *Federation) serveCollection(ctx *RequestContext, route *collectionRoute,
	identifier string, requestURL *url.URL) (interface{}, error) {
	query := requestURL.Query()

	if query.Get("base-url") != "" && route.filter == nil {
		logger.Warn("Collection has no filter but a base-url was requested, the response may be large",
			log.WithRouteName(route.name), log.WithRequestURL(requestURL))
	}

	if query.Has("cursor") {
		return f.serveCollectionPage(ctx, route, identifier, requestURL, query.Get("cursor"))
	}

	totalItems, err := f.collectionTotal(ctx, route, identifier)
	if err != nil {
		return nil, err
	}

	if route.first == nil {
		return f.serveUnpagedCollection(ctx, route, identifier, requestURL, totalItems)
	}

	collection := vocab.NewOrderedCollection(requestURL.String())
	collection.TotalItems = totalItems

	firstCursor, err := route.first(ctx.Context, identifier)
	if err != nil {
		return nil, fmt.Errorf("get first cursor: %w", err)
	}

	if firstCursor != nil {
		collection.First = withCursor(requestURL, *firstCursor)
	}

	if route.last != nil {
		lastCursor, err := route.last(ctx.Context, identifier)
		if err != nil {
			return nil, fmt.Errorf("get last cursor: %w", err)
		}

		if lastCursor != nil {
			collection.Last = withCursor(requestURL, *lastCursor)
		}
	}

	return collection, nil
}

func (f *Federation) serveUnpagedCollection(ctx *RequestContext, route *collectionRoute,
	identifier string, requestURL *url.URL, totalItems *int) (interface{}, error) {
	page, err := route.dispatcher(ctx.Context, identifier, nil)
	if err != nil {
		return nil, fmt.Errorf("dispatch collection: %w", err)
	}

	if page == nil {
		return nil, nil
	}

	collection := vocab.NewOrderedCollection(requestURL.String())
	collection.TotalItems = totalItems
	collection.OrderedItems = f.collectionItems(ctx.Context, route, page.Items)

	return collection, nil
}

func (f *Federation) serveCollectionPage(ctx *RequestContext, route *collectionRoute,
	identifier string, requestURL *url.URL, cursor string) (interface{}, error) {
	page, err := route.dispatcher(ctx.Context, identifier, &cursor)
	if err != nil {
		return nil, fmt.Errorf("dispatch collection page: %w", err)
	}

	if page == nil {
		return nil, nil
	}

	result := vocab.NewOrderedCollectionPage(requestURL.String(), withoutCursor(requestURL))
	result.OrderedItems = f.collectionItems(ctx.Context, route, page.Items)

	if page.PrevCursor != nil {
		result.Prev = withCursor(requestURL, *page.PrevCursor)
	}

	if page.NextCursor != nil {
		result.Next = withCursor(requestURL, *page.NextCursor)
	}

	return result, nil
}

func (f *Federation) collectionTotal(ctx *RequestContext, route *collectionRoute,
	identifier string) (*int, error) {
	if route.counter == nil {
		return nil, nil
	}

	count, err := route.counter(ctx.Context, identifier)
	if err != nil {
		return nil, fmt.Errorf("count collection: %w", err)
	}

	if count < 0 {
		return nil, nil
	}

	return &count, nil
}

// collectionItems normalizes dispatched items for serialization. Plain IRIs and
// objects pass through, recipients reduce to their id, recipients without an id are
// dropped.
func (f *Federation) collectionItems(ctx *Context, route *collectionRoute,
	items []interface{}) []interface{} {
	normalized := make([]interface{}, 0, len(items))

	for _, item := range items {
		if route.filter != nil && !route.filter(ctx, item) {
			continue
		}

		switch value := item.(type) {
		case *url.URL:
			normalized = append(normalized, value.String())
		case string:
			normalized = append(normalized, value)
		case *Recipient:
			if value.ID == nil {
				logger.Warn("Skipping recipient without an id", log.WithRouteName(route.name))

				continue
			}

			normalized = append(normalized, value.ID.String())
		case *vocab.Actor:
			if value.ID() == nil {
				logger.Warn("Skipping actor without an id", log.WithRouteName(route.name))

				continue
			}

			normalized = append(normalized, value.ID().String())
		case *vocab.Object:
			normalized = append(normalized, value.Document())
		default:
			normalized = append(normalized, value)
		}
	}

	return normalized
}

func withCursor(u *url.URL, cursor string) string {
	page := *u

	query := page.Query()
	query.Set("cursor", cursor)

	page.RawQuery = query.Encode()

	return page.String()
}

func withoutCursor(u *url.URL) string {
	head := *u

	query := head.Query()
	query.Del("cursor")

	head.RawQuery = query.Encode()

	return head.String()
}
