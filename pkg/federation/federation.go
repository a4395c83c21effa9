/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package federation implements the server-side ActivityPub engine: dispatcher
// registration, the inbound and outbound activity pipelines, actor and collection
// serving, WebFinger and NodeInfo.
package federation

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/piprate/json-gold/ld"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/fedikit/fedikit/internal/pkg/log"
	"github.com/fedikit/fedikit/pkg/client"
	"github.com/fedikit/fedikit/pkg/client/transport"
	"github.com/fedikit/fedikit/pkg/docloader"
	"github.com/fedikit/fedikit/pkg/httpsig"
	"github.com/fedikit/fedikit/pkg/keys"
	"github.com/fedikit/fedikit/pkg/ldsig"
	"github.com/fedikit/fedikit/pkg/lifecycle"
	"github.com/fedikit/fedikit/pkg/nodeinfo"
	"github.com/fedikit/fedikit/pkg/observability/metrics"
	"github.com/fedikit/fedikit/pkg/observability/metrics/noop"
	"github.com/fedikit/fedikit/pkg/proof"
	"github.com/fedikit/fedikit/pkg/queue/pooled"
	queuespi "github.com/fedikit/fedikit/pkg/queue/spi"
	"github.com/fedikit/fedikit/pkg/retry"
	"github.com/fedikit/fedikit/pkg/routing"
	storespi "github.com/fedikit/fedikit/pkg/store/spi"
	"github.com/fedikit/fedikit/pkg/vocab"
	"github.com/fedikit/fedikit/pkg/webfinger"
)

var logger = log.New("federation")

// Canonical route names. Each dispatcher registration claims one of these; the name is
// also the key used by the Context URI builders.
const (
	RouteActor        = "actor"
	RouteInbox        = "inbox"
	RouteSharedInbox  = "sharedInbox"
	RouteOutbox       = "outbox"
	RouteFollowing    = "following"
	RouteFollowers    = "followers"
	RouteLiked        = "liked"
	RouteFeatured     = "featured"
	RouteFeaturedTags = "featuredTags"
	RouteNodeInfo     = "nodeInfo"
	RouteNodeInfoJRD  = "nodeInfoJrd"
	RouteWebFinger    = "webfinger"

	objectRoutePrefix = "object:"
)

// Dispatcher and callback types. Dispatchers returning a nil result (with a nil error)
// indicate that the requested resource does not exist.
type (
	// ActorDispatcher produces the actor document for a local identifier.
	ActorDispatcher func(ctx *RequestContext, identifier string) (*vocab.Actor, error)

	// KeyPairsDispatcher produces the signing key pairs of a local actor. The first
	// key is assigned the "#main-key" fragment, subsequent keys "#key-2", "#key-3"
	// and so on.
	KeyPairsDispatcher func(ctx *Context, identifier string) ([]*keys.KeyPair, error)

	// AuthorizePredicate gates access to an actor or collection.
	AuthorizePredicate func(ctx *RequestContext, identifier string) (bool, error)

	// HandleMapper translates a WebFinger username to the internal identifier, for
	// deployments whose identifiers are not the public handles.
	HandleMapper func(ctx *Context, username string) (string, bool)

	// ObjectDispatcher produces an object for the route's variable values.
	ObjectDispatcher func(ctx *RequestContext, values map[string]string) (*vocab.Object, error)

	// CollectionDispatcher produces one page of a collection, or the whole collection
	// when cursor is nil and no first-cursor callback is registered.
	CollectionDispatcher func(ctx *Context, identifier string, cursor *string) (*CollectionPage, error)

	// CollectionCounter reports the total number of items in a collection. A negative
	// count omits totalItems.
	CollectionCounter func(ctx *Context, identifier string) (int, error)

	// CollectionCursor returns the first or last cursor of a collection, or nil when
	// the collection is empty.
	CollectionCursor func(ctx *Context, identifier string) (*string, error)

	// NodeInfoDispatcher produces the instance metadata document.
	NodeInfoDispatcher func(ctx context.Context) (*nodeinfo.NodeInfo, error)

	// SharedInboxKeyDispatcher provides the instance key used to authenticate fetches
	// triggered by shared-inbox deliveries, where no recipient actor is known.
	SharedInboxKeyDispatcher func(ctx *Context) (*keys.KeyPair, error)

	// InboxErrorHandler is invoked when an inbox listener fails.
	InboxErrorHandler func(ctx *Context, err error)

	// OutboxErrorHandler is invoked when delivery of an outbound activity fails.
	OutboxErrorHandler func(err error, activity *vocab.Activity)
)

type collectionRoute struct {
	name       string
	dispatcher CollectionDispatcher
	counter    CollectionCounter
	first      CollectionCursor
	last       CollectionCursor
	filter     CollectionFilter
	authorize  AuthorizePredicate
}

// Federation is the engine. Register dispatchers and listeners after New, then mount
// Handler() on an HTTP server and call Start.
type Federation struct {
	*lifecycle.Lifecycle

	opts   *options
	router *routing.Router
	store  storespi.KvStore

	actorDispatcher    ActorDispatcher
	keyPairsDispatcher KeyPairsDispatcher
	authorizeActor     AuthorizePredicate
	mapHandle          HandleMapper

	objectDispatchers map[string]ObjectDispatcher
	collections       map[string]*collectionRoute

	listeners           *listenerSet
	inboxTemplate       string
	inboxErrorHandler   InboxErrorHandler
	sharedKeyDispatcher SharedInboxKeyDispatcher
	outboxErrorHandler  OutboxErrorHandler
	nodeInfoDispatcher  NodeInfoDispatcher

	transport    *transport.Transport
	client       *client.Client
	verifier     *httpsig.Verifier
	verifierOpts []httpsig.VerifierOption
	ldSigner     *ldsig.Signer
	proofCreator *proof.Creator
	metrics      metrics.Metrics
	tracer       trace.Tracer

	notFoundHandler      http.Handler
	notAcceptableHandler http.Handler

	cancelListeners context.CancelFunc
}

// New returns a new federation engine. A key-value store is required; everything else
// has a default.
func New(fopts ...Option) (*Federation, error) {
	opts := &options{
		signatureTimeWindow: httpsig.DefaultDateWindow,
		userAgent:           DefaultUserAgent,
		kvPrefix:            DefaultKvPrefix,
		inboxRetryPolicy:    retry.NewExponential(),
		outboxRetryPolicy:   retry.NewExponential(),
		httpClient:          http.DefaultClient,
		metrics:             &noop.Metrics{},
	}

	for _, opt := range fopts {
		opt(opts)
	}

	if opts.store == nil {
		return nil, fmt.Errorf("a key-value store is required")
	}

	var routerOpts []routing.Opt

	if opts.trailingSlash {
		routerOpts = append(routerOpts, routing.WithTrailingSlashInsensitive())
	}

	if opts.documentLoader == nil {
		opts.documentLoader = docloader.NewCacheLoader(
			docloader.NewHTTPLoader(
				docloader.WithHTTPClient(opts.httpClient),
				docloader.WithUserAgent(opts.userAgent),
			), opts.store,
			docloader.WithCachePrefix(opts.kvPrefix))
	}

	if opts.contextLoader == nil {
		opts.contextLoader = opts.documentLoader
	}

	tp := opts.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	tsp := transport.New(opts.httpClient,
		httpsig.NewSigner(httpsig.DefaultGetSignerConfig()),
		httpsig.NewSigner(httpsig.DefaultPostSignerConfig()),
		opts.userAgent)

	if opts.authenticatedLoader == nil {
		opts.authenticatedLoader = func(key *keys.KeyPair) ld.DocumentLoader {
			return client.New(tsp, client.WithInstanceKey(key))
		}
	}

	verifierOpts := []httpsig.VerifierOption{
		httpsig.WithDateWindow(opts.signatureTimeWindow),
	}

	if opts.disableSignatureTime {
		verifierOpts = []httpsig.VerifierOption{httpsig.WithDateWindow(0)}
	}

	if opts.allowLegacySHA1 {
		verifierOpts = append(verifierOpts, httpsig.WithLegacySHA1())
	}

	f := &Federation{
		opts:              opts,
		router:            routing.New(routerOpts...),
		store:             opts.store,
		objectDispatchers: make(map[string]ObjectDispatcher),
		collections:       make(map[string]*collectionRoute),
		listeners:         newListenerSet(),
		transport:         tsp,
		client:            client.New(tsp),
		ldSigner:          ldsig.NewSigner(opts.contextLoader),
		proofCreator:      proof.NewCreator(),
		metrics:           opts.metrics,
		tracer:            tp.Tracer("federation"),
	}

	f.verifierOpts = verifierOpts

	f.verifier = httpsig.NewVerifier(
		httpsig.NewResolver(opts.documentLoader, opts.store,
			httpsig.WithKeyCacheTTL(httpsig.DefaultKeyCacheTTL),
			httpsig.WithKeyCachePrefix(opts.kvPrefix)),
		verifierOpts...)

	f.inboxErrorHandler = func(ctx *Context, err error) {
		logger.Warn("Inbox listener error", log.WithError(err))
	}

	f.outboxErrorHandler = func(err error, activity *vocab.Activity) {
		logger.Warn("Outbox delivery error", log.WithError(err),
			log.WithActivityID(activityID(activity)))
	}

	f.Lifecycle = lifecycle.New("federation",
		lifecycle.WithStart(f.start),
		lifecycle.WithStop(f.stop),
	)

	f.mustAddRoute(webfinger.WebFingerPath, RouteWebFinger, nil)
	f.mustAddRoute(nodeinfo.WellKnownPath, RouteNodeInfoJRD, nil)

	return f, nil
}

// Handler returns the HTTP handler serving every registered route. Mount it at the
// root of the server's path space.
func (f *Federation) Handler() http.Handler {
	return f
}

// ActorCallbackSetters configures the callbacks attached to the actor dispatcher.
type ActorCallbackSetters struct {
	f *Federation
}

// SetActorDispatcher registers the actor dispatcher under the given URI template. The
// template must declare exactly one variable, {identifier} (or the deprecated
// {handle}). It panics with a *routing.RouterError on a misregistered route; route
// tables are static and a bad one is a programming error.
func (f *Federation) SetActorDispatcher(template string, dispatcher ActorDispatcher) *ActorCallbackSetters {
	f.mustAddRoute(template, RouteActor, requireIdentifierVariable)

	f.actorDispatcher = dispatcher

	return &ActorCallbackSetters{f: f}
}

// SetKeyPairsDispatcher registers the key-pairs dispatcher for local actors. Without
// it, actors are served without keys and outbound activities cannot be signed.
func (s *ActorCallbackSetters) SetKeyPairsDispatcher(dispatcher KeyPairsDispatcher) *ActorCallbackSetters {
	s.f.keyPairsDispatcher = dispatcher

	return s
}

// Authorize gates access to the actor document.
func (s *ActorCallbackSetters) Authorize(predicate AuthorizePredicate) *ActorCallbackSetters {
	s.f.authorizeActor = predicate

	return s
}

// MapHandle translates WebFinger usernames to internal identifiers.
func (s *ActorCallbackSetters) MapHandle(mapper HandleMapper) *ActorCallbackSetters {
	s.f.mapHandle = mapper

	return s
}

// SetObjectDispatcher registers a dispatcher for objects of the given type under the
// given URI template. The template may declare any set of variables; the dispatcher
// receives their values.
func (f *Federation) SetObjectDispatcher(typeID vocab.Type, template string, dispatcher ObjectDispatcher) {
	name := objectRoutePrefix + string(typeID)

	f.mustAddRoute(template, name, nil)

	f.objectDispatchers[name] = dispatcher
}

// InboxListenerSetters registers per-type inbox listeners and inbox callbacks.
type InboxListenerSetters struct {
	f *Federation
}

// SetInboxListeners registers the personal and shared inbox routes. The personal
// template must declare {identifier} (or {handle}); the shared template, when not
// empty, must declare no variables. The personal template is shared with
// SetInboxDispatcher and must match when both are called.
func (f *Federation) SetInboxListeners(inboxTemplate, sharedInboxTemplate string) *InboxListenerSetters {
	f.addInboxRoute(inboxTemplate)

	if sharedInboxTemplate != "" {
		f.mustAddRoute(sharedInboxTemplate, RouteSharedInbox, requireNoVariables)
	}

	return &InboxListenerSetters{f: f}
}

func (f *Federation) addInboxRoute(template string) {
	if f.inboxTemplate == "" {
		f.mustAddRoute(template, RouteInbox, requireIdentifierVariable)

		f.inboxTemplate = template

		return
	}

	if template != f.inboxTemplate {
		panic(routerError(RouteInbox, fmt.Sprintf("is already registered under %q", f.inboxTemplate)))
	}
}

// On registers a listener for the given activity type. An inbound activity whose exact
// type has no listener is dispatched to the nearest registered supertype. Registering
// a non-activity type or the same type twice panics.
func (s *InboxListenerSetters) On(activityType vocab.Type, listener InboxListener) *InboxListenerSetters {
	if err := s.f.listeners.register(activityType, listener); err != nil {
		panic(err)
	}

	return s
}

// OnError replaces the default inbox error handler.
func (s *InboxListenerSetters) OnError(handler InboxErrorHandler) *InboxListenerSetters {
	s.f.inboxErrorHandler = handler

	return s
}

// SetSharedKeyDispatcher provides the key used for authorized fetches during
// shared-inbox processing.
func (s *InboxListenerSetters) SetSharedKeyDispatcher(dispatcher SharedInboxKeyDispatcher) *InboxListenerSetters {
	s.f.sharedKeyDispatcher = dispatcher

	return s
}

// CollectionCallbackSetters configures the optional callbacks of a collection route.
type CollectionCallbackSetters struct {
	route *collectionRoute
}

// SetCounter provides totalItems.
func (s *CollectionCallbackSetters) SetCounter(counter CollectionCounter) *CollectionCallbackSetters {
	s.route.counter = counter

	return s
}

// SetFirstCursor enables pagination and provides the first page's cursor.
func (s *CollectionCallbackSetters) SetFirstCursor(cursor CollectionCursor) *CollectionCallbackSetters {
	s.route.first = cursor

	return s
}

// SetLastCursor provides the last page's cursor.
func (s *CollectionCallbackSetters) SetLastCursor(cursor CollectionCursor) *CollectionCallbackSetters {
	s.route.last = cursor

	return s
}

// Authorize gates access to the collection.
func (s *CollectionCallbackSetters) Authorize(predicate AuthorizePredicate) *CollectionCallbackSetters {
	s.route.authorize = predicate

	return s
}

// SetOutboxDispatcher registers the outbox collection.
func (f *Federation) SetOutboxDispatcher(template string, dispatcher CollectionDispatcher) *CollectionCallbackSetters {
	return f.setCollectionDispatcher(RouteOutbox, template, dispatcher)
}

// SetFollowingDispatcher registers the following collection.
func (f *Federation) SetFollowingDispatcher(template string, dispatcher CollectionDispatcher) *CollectionCallbackSetters {
	return f.setCollectionDispatcher(RouteFollowing, template, dispatcher)
}

// SetFollowersDispatcher registers the followers collection. Its items must be actors
// or actor IRIs; they feed follower delivery and the Collection-Synchronization
// header.
func (f *Federation) SetFollowersDispatcher(template string, dispatcher CollectionDispatcher) *CollectionCallbackSetters {
	return f.setCollectionDispatcher(RouteFollowers, template, dispatcher)
}

// SetLikedDispatcher registers the liked collection.
func (f *Federation) SetLikedDispatcher(template string, dispatcher CollectionDispatcher) *CollectionCallbackSetters {
	return f.setCollectionDispatcher(RouteLiked, template, dispatcher)
}

// SetFeaturedDispatcher registers the featured collection.
func (f *Federation) SetFeaturedDispatcher(template string, dispatcher CollectionDispatcher) *CollectionCallbackSetters {
	return f.setCollectionDispatcher(RouteFeatured, template, dispatcher)
}

// SetFeaturedTagsDispatcher registers the featured tags collection.
func (f *Federation) SetFeaturedTagsDispatcher(template string, dispatcher CollectionDispatcher) *CollectionCallbackSetters {
	return f.setCollectionDispatcher(RouteFeaturedTags, template, dispatcher)
}

func (f *Federation) setCollectionDispatcher(name, template string,
	dispatcher CollectionDispatcher) *CollectionCallbackSetters {
	f.mustAddRoute(template, name, requireIdentifierVariable)

	route := &collectionRoute{name: name, dispatcher: dispatcher}

	f.collections[name] = route

	return &CollectionCallbackSetters{route: route}
}

// SetInboxDispatcher registers the inbox as a readable collection, served on GET
// requests to the inbox route. Gate it with Authorize; an open inbox collection leaks
// every activity the actor has received.
func (f *Federation) SetInboxDispatcher(template string, dispatcher CollectionDispatcher) *CollectionCallbackSetters {
	f.addInboxRoute(template)

	route := &collectionRoute{name: RouteInbox, dispatcher: dispatcher}

	f.collections[RouteInbox] = route

	return &CollectionCallbackSetters{route: route}
}

// SetNodeInfoDispatcher registers the NodeInfo document under the given path. The
// well-known discovery document at /.well-known/nodeinfo points to it.
func (f *Federation) SetNodeInfoDispatcher(template string, dispatcher NodeInfoDispatcher) {
	f.mustAddRoute(template, RouteNodeInfo, requireNoVariables)

	f.nodeInfoDispatcher = dispatcher
}

// OnOutboxError replaces the default outbox error handler. The handler is invoked on
// each failed delivery attempt; a panic inside it is recovered and logged.
func (f *Federation) OnOutboxError(handler OutboxErrorHandler) {
	f.outboxErrorHandler = handler
}

func (f *Federation) mustAddRoute(template, name string, validate func(string, map[string]struct{}) error) {
	variables, err := f.router.Add(template, name)
	if err != nil {
		panic(err)
	}

	if _, ok := variables["handle"]; ok {
		logger.Warn("Template variable {handle} is deprecated, use {identifier}",
			log.WithRouteName(name))
	}

	if validate != nil {
		if err := validate(name, variables); err != nil {
			panic(err)
		}
	}
}

func requireIdentifierVariable(name string, variables map[string]struct{}) error {
	_, hasIdentifier := variables["identifier"]
	_, hasHandle := variables["handle"]

	if len(variables) != 1 || (!hasIdentifier && !hasHandle) {
		return routerError(name, "must declare exactly one variable, {identifier}")
	}

	return nil
}

func requireNoVariables(name string, variables map[string]struct{}) error {
	if len(variables) != 0 {
		return routerError(name, "must not declare variables")
	}

	return nil
}

func routerError(name, msg string) error {
	return fmt.Errorf("template for route [%s] %s", name, msg)
}

// identifierValue extracts the actor identifier from route match values, accepting the
// deprecated {handle} variable name.
func identifierValue(values map[string]string) string {
	if id, ok := values["identifier"]; ok {
		return id
	}

	return values["handle"]
}

func (f *Federation) start() {
	ctx, cancel := context.WithCancel(context.Background())

	f.cancelListeners = cancel

	if f.opts.inboxQueue != nil {
		go f.listen(ctx, "inbox", f.opts.inboxQueue, f.handleInboxMessage)
	}

	if f.opts.outboxQueue != nil {
		// Deliveries to distinct inboxes are independent, so the outbox listener
		// runs a worker pool.
		go f.listen(ctx, "outbox", pooled.New(f.opts.outboxQueue, f.opts.outboxPoolSize),
			f.handleOutboxMessage)
	}
}

func (f *Federation) stop() {
	if f.cancelListeners != nil {
		f.cancelListeners()
	}
}

func (f *Federation) listen(ctx context.Context, name string, queue queuespi.MessageQueue,
	handler queuespi.Handler) {
	logger.Info("Starting queue listener", log.WithTopic(name))

	if err := queue.Listen(ctx, handler); err != nil {
		logger.Error("Queue listener terminated", log.WithTopic(name), log.WithError(err))
	}
}

func activityID(activity *vocab.Activity) string {
	if activity == nil || activity.ID() == nil {
		return ""
	}

	return activity.ID().String()
}

// routeKind classifies a matched route for the HTTP handler.
func routeKind(name string) string {
	if strings.HasPrefix(name, objectRoutePrefix) {
		return "object"
	}

	return name
}
