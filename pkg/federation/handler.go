/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/fedikit/fedikit/internal/pkg/log"
	fkerrors "github.com/fedikit/fedikit/pkg/errors"
	"github.com/fedikit/fedikit/pkg/nodeinfo"
	"github.com/fedikit/fedikit/pkg/vocab"
	"github.com/fedikit/fedikit/pkg/webfinger"
)

// ContentType is the media type of every ActivityPub response.
const ContentType = "application/activity+json"

// OnNotFound replaces the default 404 handler invoked when no route matches.
func (f *Federation) OnNotFound(handler http.Handler) {
	f.notFoundHandler = handler
}

// OnNotAcceptable replaces the default 406 handler invoked when content negotiation
// fails.
func (f *Federation) OnNotAcceptable(handler http.Handler) {
	f.notAcceptableHandler = handler
}

// ServeHTTP dispatches the request to the matching registered route.
func (f *Federation) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	requestID := requestID(req)

	var body []byte

	if req.Method == http.MethodPost {
		data, err := io.ReadAll(req.Body)
		if err != nil {
			logger.Warn("Error reading request body", log.WithRequestID(requestID), log.WithError(err))

			w.WriteHeader(http.StatusBadRequest)

			return
		}

		body = data
	}

	match := f.router.Route(req.URL.Path)
	if match == nil {
		f.notFound(w, req)

		return
	}

	logger.Debug("Dispatching request", log.WithRequestID(requestID),
		log.WithRouteName(match.Name), log.WithRequestURL(req.URL))

	rc := f.requestContext(req, body)

	switch kind := routeKind(match.Name); kind {
	case RouteWebFinger:
		f.requireMethod(w, req, http.MethodGet, func() {
			webfinger.NewHandler(&webfingerResolver{rc: rc}).ServeHTTP(w, req)
		})
	case RouteNodeInfoJRD:
		f.requireMethod(w, req, http.MethodGet, func() {
			f.serveNodeInfoDiscovery(w, rc)
		})
	case RouteNodeInfo:
		f.requireMethod(w, req, http.MethodGet, func() {
			if f.nodeInfoDispatcher == nil {
				f.notFound(w, req)

				return
			}

			nodeinfo.NewHandler(nodeinfo.V2_1, &nodeInfoAdapter{dispatcher: f.nodeInfoDispatcher}).
				ServeHTTP(w, req)
		})
	case RouteActor:
		f.requireMethod(w, req, http.MethodGet, func() {
			f.serveActor(w, req, rc, identifierValue(match.Values))
		})
	case RouteInbox:
		f.serveInbox(w, req, rc, identifierValue(match.Values))
	case RouteSharedInbox:
		f.requireMethod(w, req, http.MethodPost, func() {
			f.handleInboxPost(w, rc, nil)
		})
	case "object":
		f.requireMethod(w, req, http.MethodGet, func() {
			f.serveObject(w, req, rc, match.Name, match.Values)
		})
	default:
		route, ok := f.collections[kind]
		if !ok {
			f.notFound(w, req)

			return
		}

		f.requireMethod(w, req, http.MethodGet, func() {
			f.serveCollectionRoute(w, req, rc, route, identifierValue(match.Values))
		})
	}
}

// serveInbox handles the personal inbox route: POST runs the inbound pipeline, GET
// serves the inbox as a collection when an inbox dispatcher is registered.
func (f *Federation) serveInbox(w http.ResponseWriter, req *http.Request, rc *RequestContext,
	identifier string) {
	route, readable := f.collections[RouteInbox]

	switch req.Method {
	case http.MethodPost:
		f.handleInboxPost(w, rc, &identifier)
	case http.MethodGet:
		if !readable {
			w.Header().Set("Allow", http.MethodPost)
			w.WriteHeader(http.StatusMethodNotAllowed)

			return
		}

		f.serveCollectionRoute(w, req, rc, route, identifier)
	default:
		allow := http.MethodPost
		if readable {
			allow = http.MethodGet + ", " + http.MethodPost
		}

		w.Header().Set("Allow", allow)
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *Federation) requireMethod(w http.ResponseWriter, req *http.Request, method string, serve func()) {
	if req.Method != method {
		w.Header().Set("Allow", method)
		w.WriteHeader(http.StatusMethodNotAllowed)

		return
	}

	serve()
}

func (f *Federation) serveActor(w http.ResponseWriter, req *http.Request, rc *RequestContext,
	identifier string) {
	if !f.negotiate(w, req) {
		return
	}

	if !f.authorized(w, rc, f.authorizeActor, identifier) {
		return
	}

	if f.actorDispatcher == nil {
		f.notFound(w, req)

		return
	}

	actor, err := f.actorDispatcher(rc, identifier)
	if err != nil {
		f.serverError(w, "dispatch actor", err)

		return
	}

	if actor == nil {
		f.notFound(w, req)

		return
	}

	if err := f.attachActorKeys(rc, actor, identifier); err != nil {
		f.serverError(w, "attach actor keys", err)

		return
	}

	f.warnActorPropertyMismatches(rc, actor, identifier)

	f.writeDocument(w, actor.Document())
}

// warnActorPropertyMismatches logs a warning for each actor property that points
// somewhere other than the URI the engine serves for that identifier. Remotes resolve
// the actor's own properties, so a mismatched inbox or followers URI silently breaks
// delivery and follower synchronization.
func (f *Federation) warnActorPropertyMismatches(rc *RequestContext, actor *vocab.Actor,
	identifier string) {
	for _, property := range actorPropertyMismatches(rc, actor, identifier) {
		logger.Warn(fmt.Sprintf("Actor property %q does not match the URI the engine serves", property),
			log.WithIdentifier(identifier))
	}
}

func actorPropertyMismatches(rc *RequestContext, actor *vocab.Actor, identifier string) []string {
	checks := []struct {
		property string
		actual   *url.URL
		expected func() (*url.URL, error)
	}{
		{"id", actor.ID(), func() (*url.URL, error) { return rc.ActorURI(identifier) }},
		{"inbox", actor.Inbox(), func() (*url.URL, error) { return rc.InboxURI(identifier) }},
		{"outbox", actor.Outbox(), func() (*url.URL, error) { return rc.OutboxURI(identifier) }},
		{"following", actor.Following(), func() (*url.URL, error) { return rc.FollowingURI(identifier) }},
		{"followers", actor.Followers(), func() (*url.URL, error) { return rc.FollowersURI(identifier) }},
		{"liked", actor.Liked(), func() (*url.URL, error) { return rc.LikedURI(identifier) }},
		{"featured", actor.Featured(), func() (*url.URL, error) { return rc.FeaturedURI(identifier) }},
		{"featuredTags", actor.FeaturedTags(), func() (*url.URL, error) { return rc.FeaturedTagsURI(identifier) }},
		{"endpoints.sharedInbox", actor.SharedInbox(), func() (*url.URL, error) { return rc.SharedInboxURI() }},
	}

	var mismatched []string

	for _, check := range checks {
		if check.actual == nil {
			continue
		}

		expected, err := check.expected()
		if err != nil {
			// The route is not registered, so there is nothing to compare against.
			continue
		}

		if check.actual.String() != expected.String() {
			mismatched = append(mismatched, check.property)
		}
	}

	// Published key ids must live under the actor URI the engine serves; remotes
	// dereference them to the actor document.
	if actorURI, err := rc.ActorURI(identifier); err == nil {
		for _, key := range actor.PublicKeys() {
			keyID, err := url.Parse(key.ID)
			if err != nil {
				continue
			}

			base := *keyID
			base.Fragment = ""

			if base.String() != actorURI.String() {
				mismatched = append(mismatched, "publicKey")

				break
			}
		}
	}

	return mismatched
}

// attachActorKeys adds the actor's public keys to the served document: RSA keys under
// publicKey, Ed25519 keys under assertionMethod.
func (f *Federation) attachActorKeys(rc *RequestContext, actor *vocab.Actor, identifier string) error {
	pairs, err := rc.ActorKeyPairs(identifier)
	if err != nil {
		return err
	}

	if len(pairs) == 0 {
		return nil
	}

	actorURI, err := rc.ActorURI(identifier)
	if err != nil {
		return err
	}

	var publicKeys, assertionMethods []interface{}

	for _, pair := range pairs {
		switch {
		case pair.IsRSA():
			key, err := pair.CryptographicKey(actorURI)
			if err != nil {
				return err
			}

			publicKeys = append(publicKeys, keyDocument(key))
		case pair.IsEd25519():
			key, err := pair.Multikey(actorURI)
			if err != nil {
				return err
			}

			assertionMethods = append(assertionMethods, keyDocument(key))
		}
	}

	if publicKeys != nil {
		actor.SetProperty("publicKey", publicKeys)
		actor.AddContext(vocab.ContextSecurity)
	}

	if assertionMethods != nil {
		actor.SetProperty("assertionMethod", assertionMethods)
		actor.AddContext(vocab.ContextDataIntegrity)
	}

	return nil
}

func keyDocument(key interface{}) map[string]interface{} {
	data, err := json.Marshal(key)
	if err != nil {
		return nil
	}

	doc := map[string]interface{}{}

	if err := json.Unmarshal(data, &doc); err != nil {
		return nil
	}

	return doc
}

func (f *Federation) serveObject(w http.ResponseWriter, req *http.Request, rc *RequestContext,
	routeName string, values map[string]string) {
	if !f.negotiate(w, req) {
		return
	}

	dispatcher := f.objectDispatchers[routeName]
	if dispatcher == nil {
		f.notFound(w, req)

		return
	}

	object, err := dispatcher(rc, values)
	if err != nil {
		f.serverError(w, "dispatch object", err)

		return
	}

	if object == nil {
		f.notFound(w, req)

		return
	}

	f.writeDocument(w, object.Document())
}

func (f *Federation) serveCollectionRoute(w http.ResponseWriter, req *http.Request,
	rc *RequestContext, route *collectionRoute, identifier string) {
	if !f.negotiate(w, req) {
		return
	}

	if !f.authorized(w, rc, route.authorize, identifier) {
		return
	}

	// Collection and page ids must be absolute even though req.URL is usually just
	// the request target.
	requestURL := *rc.BaseURL()
	requestURL.Path = req.URL.Path
	requestURL.RawQuery = req.URL.RawQuery

	doc, err := f.serveCollection(rc, route, identifier, &requestURL)
	if err != nil {
		f.serverError(w, "serve collection", err)

		return
	}

	if doc == nil {
		f.notFound(w, req)

		return
	}

	f.writeDocument(w, doc)
}

func (f *Federation) authorized(w http.ResponseWriter, rc *RequestContext,
	predicate AuthorizePredicate, identifier string) bool {
	if predicate == nil {
		return true
	}

	ok, err := predicate(rc, identifier)
	if err != nil {
		f.serverError(w, "authorize", err)

		return false
	}

	if !ok {
		w.WriteHeader(http.StatusUnauthorized)

		return false
	}

	return true
}

// negotiate rejects requests that only accept HTML. Responses vary by Accept and, for
// authorized endpoints, by the request signature.
func (f *Federation) negotiate(w http.ResponseWriter, req *http.Request) bool {
	if acceptsActivityJSON(req.Header.Get("Accept")) {
		return true
	}

	w.Header().Set("Vary", "Accept, Signature")

	if f.notAcceptableHandler != nil {
		f.notAcceptableHandler.ServeHTTP(w, req)
	} else {
		w.WriteHeader(http.StatusNotAcceptable)
	}

	return false
}

func acceptsActivityJSON(accept string) bool {
	if accept == "" {
		return true
	}

	for _, part := range strings.Split(accept, ",") {
		mediaType := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])

		switch mediaType {
		case ContentType, "application/ld+json", "application/json", "application/*", "*/*":
			return true
		}
	}

	return false
}

func (f *Federation) writeDocument(w http.ResponseWriter, doc interface{}) {
	data, err := json.Marshal(doc)
	if err != nil {
		f.serverError(w, "marshal response", err)

		return
	}

	w.Header().Set("Content-Type", ContentType)
	w.Header().Set("Vary", "Accept")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(data); err != nil {
		logger.Warn("Error writing response", log.WithError(err))
	}
}

func (f *Federation) notFound(w http.ResponseWriter, req *http.Request) {
	if f.notFoundHandler != nil {
		f.notFoundHandler.ServeHTTP(w, req)

		return
	}

	w.WriteHeader(http.StatusNotFound)
}

func (f *Federation) serverError(w http.ResponseWriter, msg string, err error) {
	logger.Error("Error serving request", log.WithError(fmt.Errorf("%s: %w", msg, err)))

	w.WriteHeader(http.StatusInternalServerError)
}

func requestID(req *http.Request) string {
	for _, header := range []string{"X-Request-Id", "X-Correlation-Id", "Traceparent"} {
		if value := req.Header.Get(header); value != "" {
			return value
		}
	}

	return uuid.NewString()
}

func (f *Federation) serveNodeInfoDiscovery(w http.ResponseWriter, rc *RequestContext) {
	links := nodeinfo.Links{Links: []nodeinfo.DiscoveryLink{}}

	if nodeInfoURI, err := rc.NodeInfoURI(); err == nil {
		links.Links = append(links.Links, nodeinfo.DiscoveryLink{
			Rel:  fmt.Sprintf("http://nodeinfo.diaspora.software/ns/schema/%s", nodeinfo.V2_1),
			Href: nodeInfoURI.String(),
		})
	}

	data, err := json.Marshal(links)
	if err != nil {
		f.serverError(w, "marshal discovery links", err)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(data); err != nil {
		logger.Warn("Error writing response", log.WithError(err))
	}
}

// nodeInfoAdapter exposes the registered dispatcher as a nodeinfo.Dispatcher.
type nodeInfoAdapter struct {
	dispatcher NodeInfoDispatcher
}

func (a *nodeInfoAdapter) GetNodeInfo(ctx context.Context, _ nodeinfo.Version) *nodeinfo.NodeInfo {
	nodeInfo, err := a.dispatcher(ctx)
	if err != nil {
		logger.Error("Error dispatching NodeInfo", log.WithError(err))

		return nil
	}

	return nodeInfo
}

// webfingerResolver resolves WebFinger resources against the registered actor
// dispatcher.
type webfingerResolver struct {
	rc *RequestContext
}

func (r *webfingerResolver) ResolveResource(_ context.Context, resource string) (*webfinger.JRD, error) {
	identifier, subject, err := r.identify(resource)
	if err != nil {
		return nil, err
	}

	if _, err := r.dispatchActor(identifier); err != nil {
		return nil, err
	}

	actorURI, err := r.rc.ActorURI(identifier)
	if err != nil {
		return nil, err
	}

	jrd := &webfinger.JRD{
		Subject: subject,
		Aliases: []string{actorURI.String()},
		Links: []webfinger.Link{
			{
				Rel:  webfinger.RelSelf,
				Type: ContentType,
				Href: actorURI.String(),
			},
		},
	}

	return jrd, nil
}

// identify maps the resource to a local actor identifier. Both acct: resources and
// actor URIs are accepted.
func (r *webfingerResolver) identify(resource string) (identifier, subject string, err error) {
	if strings.HasPrefix(resource, "http://") || strings.HasPrefix(resource, "https://") {
		u, err := url.Parse(resource)
		if err != nil {
			return "", "", fkerrors.ErrNotFound
		}

		parsed := r.rc.ParseURI(u)
		if parsed == nil || parsed.Kind != RouteActor {
			return "", "", fkerrors.ErrNotFound
		}

		return parsed.Identifier, resource, nil
	}

	acct, err := webfinger.ParseAcct(resource)
	if err != nil {
		return "", "", fkerrors.ErrNotFound
	}

	if acct.Host != r.rc.BaseURL().Host {
		return "", "", fkerrors.ErrNotFound
	}

	identifier = acct.Username

	if r.rc.f.mapHandle != nil {
		mapped, ok := r.rc.f.mapHandle(r.rc.Context, acct.Username)
		if !ok {
			return "", "", fkerrors.ErrNotFound
		}

		identifier = mapped
	}

	return identifier, acct.String(), nil
}

func (r *webfingerResolver) dispatchActor(identifier string) (*vocab.Actor, error) {
	if r.rc.f.actorDispatcher == nil {
		return nil, fkerrors.ErrNotFound
	}

	actor, err := r.rc.f.actorDispatcher(r.rc, identifier)
	if err != nil {
		return nil, err
	}

	if actor == nil {
		return nil, fkerrors.ErrNotFound
	}

	return actor, nil
}
