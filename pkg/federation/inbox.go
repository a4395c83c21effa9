/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package federation

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/fedikit/fedikit/internal/pkg/log"
	"github.com/fedikit/fedikit/pkg/client"
	fkerrors "github.com/fedikit/fedikit/pkg/errors"
	"github.com/fedikit/fedikit/pkg/httpsig"
	"github.com/fedikit/fedikit/pkg/keys"
	"github.com/fedikit/fedikit/pkg/proof"
	queuespi "github.com/fedikit/fedikit/pkg/queue/spi"
	"github.com/fedikit/fedikit/pkg/queue/traceutil"
	"github.com/fedikit/fedikit/pkg/retry"
	storespi "github.com/fedikit/fedikit/pkg/store/spi"
	"github.com/fedikit/fedikit/pkg/vocab"
)

// idempotenceTTL is how long a processed activity id blocks redelivery.
const idempotenceTTL = 24 * time.Hour

func (f *Federation) handleInboxPost(w http.ResponseWriter, rc *RequestContext, identifier *string) {
	activity, err := vocab.ParseActivity(rc.body)
	if err != nil {
		f.inboxErrorHandler(rc.Context, fmt.Errorf("parse activity: %w", err))

		w.WriteHeader(http.StatusBadRequest)

		return
	}

	if !f.opts.skipSignatureVerify {
		status, err := f.verifyInbound(rc, activity, identifier)
		if err != nil {
			f.serverError(w, "verify inbound activity", err)

			return
		}

		if status != http.StatusOK {
			w.WriteHeader(status)

			return
		}
	}

	if activity.ID() != nil {
		processed, err := f.alreadyProcessed(rc.Context, activity.ID().String())
		if err != nil {
			f.serverError(w, "check idempotence record", err)

			return
		}

		if processed {
			logger.Debug("Activity already processed", log.WithActivityID(activityID(activity)))

			w.WriteHeader(http.StatusAccepted)

			return
		}
	}

	if f.opts.inboxQueue != nil {
		err := f.enqueueInbox(rc.Context, rc.body, identifier, 0, time.Now(), 0)
		if err != nil {
			f.serverError(w, "enqueue inbound activity", err)

			return
		}

		w.WriteHeader(http.StatusAccepted)

		return
	}

	ictx := &InboxContext{Context: rc.Context, activity: activity, identifier: identifier}

	if err := f.processInbound(ictx, 0, time.Now(), false); err != nil {
		f.serverError(w, "process inbound activity", err)

		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// verifyInbound authenticates the activity, preferring object-level evidence over the
// transport: an Object Integrity Proof bound to the actor wins, then a Linked Data
// signature by one of the actor's keys, otherwise the HTTP Signature must verify and
// its key must belong to the actor. The returned status is 200, 401 or 400.
func (f *Federation) verifyInbound(rc *RequestContext, activity *vocab.Activity,
	identifier *string) (int, error) {
	cli := f.inboxClient(rc.Context, identifier)

	proven, err := f.verifyProofs(rc.Context, cli, activity)
	if err != nil {
		return 0, err
	}

	if proven {
		return http.StatusOK, nil
	}

	ldSigned, err := f.verifyLDSignature(rc.Context, cli, activity)
	if err != nil {
		return 0, err
	}

	if ldSigned {
		return http.StatusOK, nil
	}

	started := time.Now()

	key, err := f.inboxVerifier(rc.Context, identifier).VerifyRequest(rc.request, rc.body)
	if err != nil {
		return 0, err
	}

	f.metrics.SignatureVerifyTime(time.Since(started))

	if key == nil {
		logger.Info("Request signature could not be verified", log.WithRequestURL(rc.request.URL))

		return http.StatusUnauthorized, nil
	}

	actorIRI := activity.Actor()
	if actorIRI == nil {
		return http.StatusBadRequest, nil
	}

	if key.Owner == actorIRI.String() {
		return http.StatusOK, nil
	}

	actor, err := cli.GetActor(rc.Context, actorIRI)
	if err != nil {
		if errors.Is(err, fkerrors.ErrNotFound) {
			return http.StatusUnauthorized, nil
		}

		return 0, err
	}

	if !actor.HasKey(key.ID) {
		logger.Info("Signing key is not owned by the activity's actor",
			log.WithKeyID(key.ID), log.WithActorIRI(actorIRI))

		return http.StatusUnauthorized, nil
	}

	return http.StatusOK, nil
}

// verifyProofs reports whether any of the activity's integrity proofs verifies with a
// key on the actor's assertionMethod list.
func (f *Federation) verifyProofs(ctx *Context, cli *client.Client, activity *vocab.Activity) (bool, error) {
	proofs := activity.Proofs()
	if len(proofs) == 0 {
		return false, nil
	}

	actorIRI := activity.Actor()
	if actorIRI == nil {
		return false, nil
	}

	actor, err := cli.GetActor(ctx, actorIRI)
	if err != nil {
		if errors.Is(err, fkerrors.ErrNotFound) {
			return false, nil
		}

		return false, err
	}

	methods := make(map[string]*vocab.Multikey)

	for _, method := range actor.AssertionMethods() {
		methods[method.ID] = method
	}

	for _, p := range proofs {
		method, err := proof.VerificationMethod(p)
		if err != nil {
			continue
		}

		multikey, ok := methods[method.String()]
		if !ok {
			logger.Debug("Proof verification method is not on the actor's assertionMethod list",
				log.WithKeyID(method.String()), log.WithActorIRI(actorIRI))

			continue
		}

		publicKey, err := keys.DecodeMultibase(multikey.PublicKeyMultibase)
		if err != nil {
			continue
		}

		if proof.Verify(activity, p, publicKey) == nil {
			return true, nil
		}
	}

	return false, nil
}

// verifyLDSignature reports whether the activity carries an RsaSignature2017 that
// verifies with one of the actor's published RSA keys.
func (f *Federation) verifyLDSignature(ctx *Context, cli *client.Client, activity *vocab.Activity) (bool, error) {
	if activity.Signature() == nil {
		return false, nil
	}

	actorIRI := activity.Actor()
	if actorIRI == nil {
		return false, nil
	}

	actor, err := cli.GetActor(ctx, actorIRI)
	if err != nil {
		if errors.Is(err, fkerrors.ErrNotFound) {
			return false, nil
		}

		return false, err
	}

	for _, key := range actor.PublicKeys() {
		publicKey, err := keys.DecodePublicKeyPEM(key.PublicKeyPem)
		if err != nil {
			continue
		}

		rsaKey, ok := publicKey.(*rsa.PublicKey)
		if !ok {
			continue
		}

		if _, err := f.ldSigner.Verify(activity, rsaKey); err == nil {
			return true, nil
		}
	}

	return false, nil
}

// inboxClient returns the client used to dereference the actor during inbound
// verification. Shared-inbox deliveries use the shared key so that lookups succeed
// against remotes in authorized-fetch mode.
func (f *Federation) inboxClient(ctx *Context, identifier *string) *client.Client {
	key := f.sharedFetchKey(ctx, identifier)
	if key == nil {
		return f.client
	}

	return client.New(f.transport, client.WithInstanceKey(key))
}

func (f *Federation) inboxVerifier(ctx *Context, identifier *string) *httpsig.Verifier {
	key := f.sharedFetchKey(ctx, identifier)
	if key == nil {
		return f.verifier
	}

	resolver := client.New(f.transport, client.WithInstanceKey(key))

	return httpsig.NewVerifier(resolver, f.verifierOpts...)
}

func (f *Federation) sharedFetchKey(ctx *Context, identifier *string) *keys.KeyPair {
	if identifier != nil || f.sharedKeyDispatcher == nil {
		return nil
	}

	key, err := f.sharedKeyDispatcher(ctx)
	if err != nil {
		logger.Warn("Error getting the shared inbox key", log.WithError(err))

		return nil
	}

	if key == nil || !key.IsRSA() {
		return nil
	}

	return key
}

func (f *Federation) alreadyProcessed(ctx *Context, activityID string) (bool, error) {
	_, err := f.store.Get(ctx, f.idempotenceKey(ctx.BaseURL(), activityID))
	if err == nil {
		return true, nil
	}

	if errors.Is(err, storespi.ErrNotFound) {
		return false, nil
	}

	return false, err
}

func (f *Federation) markProcessed(ctx *Context, activityID string) {
	err := f.store.Set(ctx, f.idempotenceKey(ctx.BaseURL(), activityID), []byte("true"),
		storespi.WithTTL(idempotenceTTL))
	if err != nil {
		logger.Warn("Error storing idempotence record", log.WithActivityID(activityID),
			log.WithError(err))
	}
}

func (f *Federation) idempotenceKey(baseURL *url.URL, activityID string) storespi.Key {
	return storespi.Key{f.opts.kvPrefix, origin(baseURL), activityID}
}

func origin(u *url.URL) string {
	return u.Scheme + "://" + u.Host
}

// routeInbound runs the inbound pipeline for an activity that arrived outside of an
// HTTP delivery. Verification is skipped: the caller vouches for the activity.
func (f *Federation) routeInbound(ctx *Context, data []byte, identifier *string) error {
	activity, err := vocab.ParseActivity(data)
	if err != nil {
		return fmt.Errorf("parse activity: %w", err)
	}

	if f.opts.inboxQueue != nil {
		return f.enqueueInbox(ctx, data, identifier, 0, time.Now(), 0)
	}

	ictx := &InboxContext{Context: ctx, activity: activity, identifier: identifier}

	return f.processInbound(ictx, 0, time.Now(), false)
}

// processInbound dispatches the activity to the registered listener. canRetry governs
// what a listener failure does: re-enqueue with the inbox retry policy, or surface the
// error to the caller.
func (f *Federation) processInbound(ictx *InboxContext, attempt int, started time.Time,
	canRetry bool) error {
	activity := ictx.activity

	listener, ok := f.listeners.lookup(activity.Type())
	if !ok {
		logger.Debug("No listener for activity type", log.WithActivityType(string(activity.Type())),
			log.WithActivityID(activityID(activity)))

		return nil
	}

	invokeStarted := time.Now()

	err := listener(ictx, activity)

	f.metrics.InboxHandlerTime(string(activity.Type()), time.Since(invokeStarted))

	if err == nil {
		if activity.ID() != nil {
			f.markProcessed(ictx.Context, activity.ID().String())
		}

		return nil
	}

	f.inboxErrorHandler(ictx.Context, err)

	if !canRetry {
		return err
	}

	delay, retryable := f.opts.inboxRetryPolicy(retry.Context{
		ElapsedTime: time.Since(started),
		Attempts:    attempt + 1,
	})

	if !retryable {
		logger.Error("Giving up on inbound activity", log.WithActivityID(activityID(activity)),
			log.WithAttempt(attempt+1), log.WithError(err))

		return nil
	}

	logger.Info("Retrying inbound activity", log.WithActivityID(activityID(activity)),
		log.WithAttempt(attempt+1), log.WithDelay(delay))

	data, marshalErr := activity.MarshalJSON()
	if marshalErr != nil {
		return fmt.Errorf("marshal activity for retry: %w", marshalErr)
	}

	return f.enqueueInbox(ictx.Context, data, ictx.identifier, attempt+1, started, delay)
}

func (f *Federation) enqueueInbox(ctx *Context, data []byte, identifier *string,
	attempt int, started time.Time, delay time.Duration) error {
	payload := &InboxMessage{
		Type:         messageTypeInbox,
		ID:           uuid.NewString(),
		BaseURL:      ctx.BaseURL().String(),
		Activity:     data,
		Identifier:   identifier,
		Started:      started.UTC().Format(timeLayout),
		Attempt:      attempt,
		TraceContext: traceCarrier(ctx),
	}

	msg, err := newQueueMessage(payload)
	if err != nil {
		return err
	}

	traceutil.InjectContext(ctx, msg)

	var opts []queuespi.Option

	if delay > 0 {
		opts = append(opts, queuespi.WithDeliveryDelay(delay))
	}

	if err := f.opts.inboxQueue.Enqueue(ctx, msg, opts...); err != nil {
		return fmt.Errorf("enqueue inbox message: %w", err)
	}

	return nil
}

// handleInboxMessage is the inbox queue worker.
func (f *Federation) handleInboxMessage(_ context.Context, msg *message.Message) error {
	payload, err := parseInboxMessage(msg)
	if err != nil {
		logger.Error("Dropping malformed inbox message", log.WithMessageID(msg.UUID),
			log.WithError(err))

		return nil
	}

	baseURL, err := url.Parse(payload.BaseURL)
	if err != nil {
		logger.Error("Dropping inbox message with malformed base URL",
			log.WithMessageID(msg.UUID), log.WithError(err))

		return nil
	}

	activity, err := vocab.ParseActivity(payload.Activity)
	if err != nil {
		logger.Error("Dropping inbox message with malformed activity",
			log.WithMessageID(msg.UUID), log.WithError(err))

		return nil
	}

	started, err := time.Parse(timeLayout, payload.Started)
	if err != nil {
		started = time.Now()
	}

	spanCtx, span := f.tracer.Start(traceutil.ContextFromMessage(msg), "inbox.process")
	defer span.End()

	ctx := f.Context(spanCtx, baseURL)

	ictx := &InboxContext{Context: ctx, activity: activity, identifier: payload.Identifier}

	return f.processInbound(ictx, payload.Attempt, started, true)
}

// traceCarrier captures the current trace context for a queue message payload, so a
// consumer in another process can continue the trace.
func traceCarrier(ctx context.Context) map[string]string {
	carrier := propagation.MapCarrier{}

	otel.GetTextMapPropagator().Inject(ctx, carrier)

	if len(carrier) == 0 {
		return nil
	}

	return carrier
}
