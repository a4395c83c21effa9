/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package federation

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/piprate/json-gold/ld"

	"github.com/fedikit/fedikit/internal/pkg/log"
	"github.com/fedikit/fedikit/pkg/keys"
	"github.com/fedikit/fedikit/pkg/vocab"
)

// Context is the request-independent federation context: URI construction and parsing,
// actor key retrieval, document loading and activity sending against one base URL.
type Context struct {
	context.Context

	f       *Federation
	baseURL *url.URL
}

// Context returns a federation context for the given base URL.
func (f *Federation) Context(ctx context.Context, baseURL *url.URL) *Context {
	return &Context{Context: ctx, f: f, baseURL: baseURL}
}

// BaseURL returns the base URL the context was created with.
func (c *Context) BaseURL() *url.URL {
	return c.baseURL
}

// ActorURI returns the URI of the actor with the given identifier.
func (c *Context) ActorURI(identifier string) (*url.URL, error) {
	return c.buildURI(RouteActor, map[string]string{"identifier": identifier})
}

// InboxURI returns the URI of the actor's inbox.
func (c *Context) InboxURI(identifier string) (*url.URL, error) {
	return c.buildURI(RouteInbox, map[string]string{"identifier": identifier})
}

// SharedInboxURI returns the URI of the shared inbox.
func (c *Context) SharedInboxURI() (*url.URL, error) {
	return c.buildURI(RouteSharedInbox, nil)
}

// OutboxURI returns the URI of the actor's outbox collection.
func (c *Context) OutboxURI(identifier string) (*url.URL, error) {
	return c.buildURI(RouteOutbox, map[string]string{"identifier": identifier})
}

// FollowingURI returns the URI of the actor's following collection.
func (c *Context) FollowingURI(identifier string) (*url.URL, error) {
	return c.buildURI(RouteFollowing, map[string]string{"identifier": identifier})
}

// FollowersURI returns the URI of the actor's followers collection.
func (c *Context) FollowersURI(identifier string) (*url.URL, error) {
	return c.buildURI(RouteFollowers, map[string]string{"identifier": identifier})
}

// LikedURI returns the URI of the actor's liked collection.
func (c *Context) LikedURI(identifier string) (*url.URL, error) {
	return c.buildURI(RouteLiked, map[string]string{"identifier": identifier})
}

// FeaturedURI returns the URI of the actor's featured collection.
func (c *Context) FeaturedURI(identifier string) (*url.URL, error) {
	return c.buildURI(RouteFeatured, map[string]string{"identifier": identifier})
}

// FeaturedTagsURI returns the URI of the actor's featured tags collection.
func (c *Context) FeaturedTagsURI(identifier string) (*url.URL, error) {
	return c.buildURI(RouteFeaturedTags, map[string]string{"identifier": identifier})
}

// ObjectURI returns the URI of an object of the given type with the given template
// variable values.
func (c *Context) ObjectURI(typeID vocab.Type, values map[string]string) (*url.URL, error) {
	return c.buildURI(objectRoutePrefix+string(typeID), values)
}

// NodeInfoURI returns the URI of the NodeInfo document.
func (c *Context) NodeInfoURI() (*url.URL, error) {
	return c.buildURI(RouteNodeInfo, nil)
}

func (c *Context) buildURI(name string, values map[string]string) (*url.URL, error) {
	path, ok := c.f.router.Build(name, values)
	if !ok {
		return nil, fmt.Errorf("route [%s] is not registered", name)
	}

	u := *c.baseURL
	u.Path = path

	return &u, nil
}

// ParsedURI describes a URI that matched one of the registered routes.
type ParsedURI struct {
	// Kind is one of the canonical route names, with every object route reported as
	// "object".
	Kind string
	// TypeID is the object type for object routes.
	TypeID vocab.Type
	// Identifier is the actor identifier for actor-scoped routes.
	Identifier string
	// Values holds all template variable values.
	Values map[string]string
}

// ParseURI matches the given URI against the registered routes. It returns nil when
// the URI is not under the context's base URL or matches no route.
func (c *Context) ParseURI(u *url.URL) *ParsedURI {
	if u == nil || u.Scheme != c.baseURL.Scheme || u.Host != c.baseURL.Host {
		return nil
	}

	match := c.f.router.Route(u.Path)
	if match == nil {
		return nil
	}

	parsed := &ParsedURI{
		Kind:       routeKind(match.Name),
		Identifier: identifierValue(match.Values),
		Values:     match.Values,
	}

	if parsed.Kind == "object" {
		parsed.TypeID = vocab.Type(match.Name[len(objectRoutePrefix):])
	}

	return parsed
}

// ActorKeyPairs returns the signing keys of the given local actor, with key IDs
// assigned from the actor URI: the first key gets the "#main-key" fragment, the rest
// "#key-2", "#key-3" and so on.
func (c *Context) ActorKeyPairs(identifier string) ([]*keys.KeyPair, error) {
	if c.f.keyPairsDispatcher == nil {
		return nil, nil
	}

	actorURI, err := c.ActorURI(identifier)
	if err != nil {
		return nil, err
	}

	pairs, err := c.f.keyPairsDispatcher(c, identifier)
	if err != nil {
		return nil, fmt.Errorf("get key pairs for %q: %w", identifier, err)
	}

	for i, pair := range pairs {
		keyID := *actorURI

		if i == 0 {
			keyID.Fragment = "main-key"
		} else {
			keyID.Fragment = fmt.Sprintf("key-%d", i+1)
		}

		pair.KeyID = &keyID
	}

	return pairs, nil
}

// DocumentLoader returns the engine's document loader.
func (c *Context) DocumentLoader() ld.DocumentLoader {
	return c.f.opts.documentLoader
}

// AuthenticatedDocumentLoader returns a document loader that HTTP-signs its fetches
// with the given actor's first RSA key, for remotes in authorized-fetch mode. Without
// an RSA key the plain loader is returned.
func (c *Context) AuthenticatedDocumentLoader(identifier string) (ld.DocumentLoader, error) {
	pairs, err := c.ActorKeyPairs(identifier)
	if err != nil {
		return nil, err
	}

	for _, pair := range pairs {
		if pair.IsRSA() {
			return c.f.opts.authenticatedLoader(pair), nil
		}
	}

	logger.Debug("No RSA key for authenticated document loader, using the plain loader",
		log.WithIdentifier(identifier))

	return c.f.opts.documentLoader, nil
}

// RouteActivity runs the inbound pipeline for an activity obtained outside of an HTTP
// delivery, for example from a relay subscription. A nil identifier routes it like a
// shared-inbox delivery. An activity whose actor lives on a different origin than its
// own id is rejected; the caller vouches for where the activity came from, not for a
// cross-origin attribution inside it.
func (c *Context) RouteActivity(identifier *string, activity *vocab.Activity) error {
	id := activity.ID()
	actor := activity.Actor()

	if id != nil && actor != nil && id.Host != "" && id.Host != actor.Host {
		return fmt.Errorf("activity id origin %q does not match its actor origin %q",
			id.Host, actor.Host)
	}

	data, err := activity.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal activity: %w", err)
	}

	return c.f.routeInbound(c, data, identifier)
}

// RequestContext is the context of one incoming HTTP request.
type RequestContext struct {
	*Context

	request *http.Request
	body    []byte

	signedKey      *vocab.CryptographicKey
	signedKeyErr   error
	signedKeyDone  bool
	signedKeyOwner *vocab.Actor
	ownerErr       error
	ownerDone      bool
}

func (f *Federation) requestContext(req *http.Request, body []byte) *RequestContext {
	baseURL := &url.URL{Scheme: "https", Host: req.Host}

	if req.TLS == nil {
		baseURL.Scheme = "http"
	}

	return &RequestContext{
		Context: f.Context(req.Context(), baseURL),
		request: req,
		body:    body,
	}
}

// Request returns the incoming HTTP request.
func (c *RequestContext) Request() *http.Request {
	return c.request
}

// GetObject dereferences an object by IRI.
func (c *RequestContext) GetObject(iri *url.URL) (*vocab.Object, error) {
	return c.f.client.GetObject(c, iri)
}

// GetActor dereferences an actor by IRI.
func (c *RequestContext) GetActor(iri *url.URL) (*vocab.Actor, error) {
	return c.f.client.GetActor(c, iri)
}

// SignedKey verifies the request's HTTP Signature and returns the signing key, or nil
// when the request is unsigned or the signature is invalid. The result is memoized.
func (c *RequestContext) SignedKey() (*vocab.CryptographicKey, error) {
	if !c.signedKeyDone {
		c.signedKey, c.signedKeyErr = c.f.verifier.VerifyRequest(c.request, c.body)
		c.signedKeyDone = true
	}

	return c.signedKey, c.signedKeyErr
}

// SignedKeyOwner returns the actor owning the request's signing key, or nil when the
// request is not verifiably signed. The result is memoized.
func (c *RequestContext) SignedKeyOwner() (*vocab.Actor, error) {
	if c.ownerDone {
		return c.signedKeyOwner, c.ownerErr
	}

	c.ownerDone = true

	key, err := c.SignedKey()
	if err != nil || key == nil {
		c.ownerErr = err

		return nil, err
	}

	if key.Owner == "" {
		return nil, nil
	}

	owner, err := url.Parse(key.Owner)
	if err != nil {
		return nil, nil
	}

	c.signedKeyOwner, c.ownerErr = c.f.client.GetActor(c, owner)

	return c.signedKeyOwner, c.ownerErr
}

// InboxContext is the context passed to inbox listeners.
type InboxContext struct {
	*Context

	activity   *vocab.Activity
	identifier *string
}

// Activity returns the activity that triggered the listener.
func (c *InboxContext) Activity() *vocab.Activity {
	return c.activity
}

// Identifier returns the identifier of the recipient actor. The second return is
// false for shared-inbox deliveries.
func (c *InboxContext) Identifier() (string, bool) {
	if c.identifier == nil {
		return "", false
	}

	return *c.identifier, true
}

// ForwardActivity delivers the triggering activity to the given recipients as
// received, without re-signing the document. The sender's keys sign the HTTP requests
// only; the body keeps its original proofs and signature, so inbox forwarding (for
// example of a Flag or an Announce) stays verifiable at the destination.
func (c *InboxContext) ForwardActivity(identifier string, recipients []*Recipient, opts ...SendOption) error {
	return c.f.send(c.Context, &Sender{Identifier: identifier}, recipients, c.activity,
		true, opts...)
}
