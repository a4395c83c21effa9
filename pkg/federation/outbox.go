/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package federation

import (
	"context"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/fedikit/fedikit/internal/pkg/log"
	"github.com/fedikit/fedikit/pkg/client/transport"
	fkerrors "github.com/fedikit/fedikit/pkg/errors"
	"github.com/fedikit/fedikit/pkg/keys"
	queuespi "github.com/fedikit/fedikit/pkg/queue/spi"
	"github.com/fedikit/fedikit/pkg/queue/traceutil"
	"github.com/fedikit/fedikit/pkg/retry"
	"github.com/fedikit/fedikit/pkg/vocab"
)

// Sender identifies whose keys sign an outbound activity: a local identifier, a
// WebFinger username, or explicit key pairs.
type Sender struct {
	Identifier string
	Username   string
	KeyPairs   []*keys.KeyPair
}

// Recipient is a delivery target. InboxID is required unless the recipient's actor
// document can be dereferenced from ID.
type Recipient struct {
	ID          *url.URL
	InboxID     *url.URL
	SharedInbox *url.URL
}

type sendOptions struct {
	immediate              bool
	preferSharedInbox      bool
	recipientsFromActivity bool
	excludeBaseURIs        []*url.URL
}

// SendOption sets a delivery option.
type SendOption func(o *sendOptions)

// WithImmediate bypasses the outbox queue and delivers synchronously.
func WithImmediate() SendOption {
	return func(o *sendOptions) {
		o.immediate = true
	}
}

// WithPreferSharedInbox delivers to a recipient's shared inbox when it has one.
func WithPreferSharedInbox() SendOption {
	return func(o *sendOptions) {
		o.preferSharedInbox = true
	}
}

// WithRecipientsFromActivity additionally delivers to the recipients named by the
// activity's to, cc, bto, bcc and audience properties, excluding the Public IRI.
func WithRecipientsFromActivity() SendOption {
	return func(o *sendOptions) {
		o.recipientsFromActivity = true
	}
}

// WithExcludeBaseURIs skips delivery to inboxes under the given origins, typically the
// server's own base URL.
func WithExcludeBaseURIs(uris ...*url.URL) SendOption {
	return func(o *sendOptions) {
		o.excludeBaseURIs = append(o.excludeBaseURIs, uris...)
	}
}

// SendActivity signs the activity with the sender's keys and delivers it to each
// recipient's inbox, through the outbox queue when one is configured.
func (c *Context) SendActivity(sender *Sender, recipients []*Recipient,
	activity *vocab.Activity, opts ...SendOption) error {
	return c.f.send(c, sender, recipients, activity, false, opts...)
}

// SendActivityToFollowers delivers the activity to every follower of the given actor,
// expanding the registered followers collection. Deliveries carry a
// Collection-Synchronization header so receivers can reconcile partial follower
// views.
func (c *Context) SendActivityToFollowers(identifier string, activity *vocab.Activity,
	opts ...SendOption) error {
	recipients, err := c.f.expandFollowers(c, identifier)
	if err != nil {
		return err
	}

	followersURI, err := c.FollowersURI(identifier)
	if err != nil {
		return err
	}

	return c.f.sendWithSync(c, &Sender{Identifier: identifier}, recipients, activity,
		followersURI, opts...)
}

func (f *Federation) send(ctx *Context, sender *Sender, recipients []*Recipient,
	activity *vocab.Activity, skipSigning bool, opts ...SendOption) error {
	return f.sendActivity(ctx, sender, recipients, activity, nil, skipSigning, opts...)
}

func (f *Federation) sendWithSync(ctx *Context, sender *Sender, recipients []*Recipient,
	activity *vocab.Activity, followersURI *url.URL, opts ...SendOption) error {
	return f.sendActivity(ctx, sender, recipients, activity, followersURI, false, opts...)
}

func (f *Federation) sendActivity(ctx *Context, sender *Sender, recipients []*Recipient,
	activity *vocab.Activity, syncCollection *url.URL, skipSigning bool,
	opts ...SendOption) error {
	options := &sendOptions{}

	for _, opt := range opts {
		opt(options)
	}

	pairs, err := f.senderKeys(ctx, sender)
	if err != nil {
		return err
	}

	if len(pairs) == 0 {
		return fmt.Errorf("the sender has no keys, register a key pairs dispatcher")
	}

	// Before signing: bto and bcc are stripped from the delivered document.
	if options.recipientsFromActivity {
		for _, iri := range activity.Recipients() {
			recipients = append(recipients, &Recipient{ID: iri})
		}
	}

	if !skipSigning {
		if err := f.signActivity(ctx, activity, pairs); err != nil {
			return err
		}
	}

	data, err := activity.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal activity: %w", err)
	}

	started := time.Now()

	targets := f.resolveInboxes(ctx, recipients, options)

	f.metrics.OutboxResolveInboxesTime(time.Since(started))
	f.metrics.OutboxIncrementActivityCount(string(activity.Type()))

	httpSigKey := firstRSAKey(pairs)

	for _, target := range targets {
		headers := map[string]string{}

		if syncCollection != nil {
			headers["Collection-Synchronization"] = collectionSyncHeader(syncCollection, target)
		}

		if options.immediate || f.opts.outboxQueue == nil {
			if err := f.deliver(ctx, httpSigKey, target.inbox, data, headers); err != nil {
				f.invokeOutboxErrorHandler(err, activity)

				return err
			}

			continue
		}

		if err := f.enqueueOutbox(ctx, pairs, activity, data, target, headers, 0, time.Now()); err != nil {
			return err
		}
	}

	return nil
}

func (f *Federation) senderKeys(ctx *Context, sender *Sender) ([]*keys.KeyPair, error) {
	if len(sender.KeyPairs) > 0 {
		return sender.KeyPairs, nil
	}

	identifier := sender.Identifier

	if identifier == "" && sender.Username != "" {
		identifier = sender.Username

		if f.mapHandle != nil {
			mapped, ok := f.mapHandle(ctx, sender.Username)
			if !ok {
				return nil, fmt.Errorf("unknown username %q", sender.Username)
			}

			identifier = mapped
		}
	}

	return ctx.ActorKeyPairs(identifier)
}

// signActivity secures the outbound activity: an id if it has none, an integrity
// proof per Ed25519 key, and a Linked Data signature with the first RSA key.
func (f *Federation) signActivity(ctx *Context, activity *vocab.Activity, pairs []*keys.KeyPair) error {
	if activity.ID() == nil {
		id := &url.URL{Scheme: "urn", Opaque: "uuid:" + uuid.NewString()}

		activity.SetID(id)

		logger.Warn("The activity has no id, assigned a temporary one. "+
			"Use a dereferenceable id instead", log.WithActivityID(id.String()))
	}

	activity.StripPrivateAudience()

	var proofed, ldSigned bool

	for _, pair := range pairs {
		if !pair.IsEd25519() {
			continue
		}

		err := f.proofCreator.AddProof(activity, pair.PrivateKey.(ed25519.PrivateKey), pair.KeyID)
		if err != nil {
			return fmt.Errorf("add integrity proof: %w", err)
		}

		proofed = true
	}

	if !proofed {
		logger.Warn("No Ed25519 key for the sender, the activity carries no integrity proof",
			log.WithActivityID(activityID(activity)))
	}

	for _, pair := range pairs {
		if !pair.IsRSA() {
			continue
		}

		err := f.ldSigner.Sign(activity, pair.PrivateKey.(*rsa.PrivateKey), pair.KeyID)
		if err != nil {
			return fmt.Errorf("add linked data signature: %w", err)
		}

		ldSigned = true

		break
	}

	if !ldSigned {
		logger.Warn("No RSA key for the sender, the activity carries no linked data signature",
			log.WithActivityID(activityID(activity)))
	}

	return nil
}

type inboxTarget struct {
	inbox    *url.URL
	shared   bool
	actorIDs []string
}

// resolveInboxes reduces the recipients to a de-duplicated inbox set, honoring the
// shared inbox preference and the excluded origins.
func (f *Federation) resolveInboxes(ctx *Context, recipients []*Recipient,
	options *sendOptions) []*inboxTarget {
	var (
		targets []*inboxTarget
		byInbox = make(map[string]*inboxTarget)
	)

	excluded := make(map[string]struct{})

	for _, u := range options.excludeBaseURIs {
		excluded[origin(u)] = struct{}{}
	}

	for _, recipient := range recipients {
		// Checked before dereferencing so that excluded actors are never fetched.
		if recipient.ID != nil {
			if _, ok := excluded[origin(recipient.ID)]; ok {
				logger.Debug("Skipping excluded recipient", log.WithActorIRI(recipient.ID))

				continue
			}
		}

		inbox, shared := recipientInbox(ctx, f, recipient, options.preferSharedInbox)
		if inbox == nil {
			continue
		}

		if _, ok := excluded[origin(inbox)]; ok {
			logger.Debug("Skipping excluded inbox", log.WithInboxIRI(inbox))

			continue
		}

		target, ok := byInbox[inbox.String()]
		if !ok {
			target = &inboxTarget{inbox: inbox, shared: shared}

			byInbox[inbox.String()] = target
			targets = append(targets, target)
		}

		if recipient.ID != nil {
			target.actorIDs = append(target.actorIDs, recipient.ID.String())
		}
	}

	return targets
}

func recipientInbox(ctx *Context, f *Federation, recipient *Recipient,
	preferShared bool) (*url.URL, bool) {
	if preferShared && recipient.SharedInbox != nil {
		return recipient.SharedInbox, true
	}

	if recipient.InboxID != nil {
		return recipient.InboxID, false
	}

	if recipient.ID == nil {
		logger.Warn("Skipping recipient without an inbox")

		return nil, false
	}

	actor, err := f.client.GetActor(ctx, recipient.ID)
	if err != nil {
		logger.Warn("Error dereferencing recipient", log.WithActorIRI(recipient.ID),
			log.WithError(err))

		return nil, false
	}

	if preferShared && actor.SharedInbox() != nil {
		return actor.SharedInbox(), true
	}

	return actor.Inbox(), false
}

// expandFollowers pages through the registered followers dispatcher and collects the
// recipients.
func (f *Federation) expandFollowers(ctx *Context, identifier string) ([]*Recipient, error) {
	route, ok := f.collections[RouteFollowers]
	if !ok {
		return nil, fmt.Errorf("no followers dispatcher is registered")
	}

	var (
		recipients []*Recipient
		cursor     *string
	)

	if route.first != nil {
		first, err := route.first(ctx, identifier)
		if err != nil {
			return nil, fmt.Errorf("get first cursor: %w", err)
		}

		if first == nil {
			return nil, nil
		}

		cursor = first
	}

	for {
		page, err := route.dispatcher(ctx, identifier, cursor)
		if err != nil {
			return nil, fmt.Errorf("dispatch followers: %w", err)
		}

		if page == nil {
			break
		}

		for _, item := range page.Items {
			if recipient := asRecipient(item); recipient != nil {
				recipients = append(recipients, recipient)
			}
		}

		if page.NextCursor == nil {
			break
		}

		cursor = page.NextCursor
	}

	return recipients, nil
}

func asRecipient(item interface{}) *Recipient {
	switch value := item.(type) {
	case *Recipient:
		return value
	case *vocab.Actor:
		return &Recipient{ID: value.ID(), InboxID: value.Inbox(), SharedInbox: value.SharedInbox()}
	case *url.URL:
		return &Recipient{ID: value}
	case string:
		if id, err := url.Parse(value); err == nil {
			return &Recipient{ID: id}
		}
	}

	logger.Warn("Skipping follower item of unsupported kind")

	return nil
}

// collectionSyncHeader formats the Collection-Synchronization header for one inbox:
// the followers collection id, a URL filtered to the inbox's origin and a digest of
// the follower ids delivered through it.
func collectionSyncHeader(collection *url.URL, target *inboxTarget) string {
	filtered := *collection

	query := filtered.Query()
	query.Set("base-url", origin(target.inbox))

	filtered.RawQuery = query.Encode()

	return fmt.Sprintf(`collectionId="%s", url="%s", digest="%s"`,
		collection, &filtered, followersDigest(target.actorIDs))
}

// CollectionSync is a parsed Collection-Synchronization header.
type CollectionSync struct {
	// CollectionID is the id of the sender's followers collection.
	CollectionID *url.URL
	// URL serves the partial collection filtered to the receiver's origin.
	URL *url.URL
	// Digest is the hex SHA-256 over the sorted ids delivered through this inbox.
	Digest string
}

// ParseCollectionSyncHeader parses a Collection-Synchronization header received with an
// inbound delivery. Hosts can compare Digest against FollowersDigest of their own view
// and re-fetch URL on mismatch.
func ParseCollectionSyncHeader(header string) (*CollectionSync, error) {
	sync := &CollectionSync{}

	for _, kv := range strings.Split(header, ",") {
		name, value, found := strings.Cut(strings.TrimSpace(kv), "=")
		if !found {
			continue
		}

		value = strings.Trim(value, `"`)

		switch name {
		case "collectionId":
			u, err := url.Parse(value)
			if err != nil {
				return nil, fmt.Errorf("parse collectionId: %w", err)
			}

			sync.CollectionID = u
		case "url":
			u, err := url.Parse(value)
			if err != nil {
				return nil, fmt.Errorf("parse url: %w", err)
			}

			sync.URL = u
		case "digest":
			sync.Digest = value
		}
	}

	if sync.CollectionID == nil || sync.URL == nil || sync.Digest == "" {
		return nil, fmt.Errorf("incomplete Collection-Synchronization header")
	}

	return sync, nil
}

// FollowersDigest hashes a set of follower ids the way the Collection-Synchronization
// header does: hex SHA-256 over the sorted, concatenated ids.
func FollowersDigest(actorIDs []string) string {
	return followersDigest(actorIDs)
}

// followersDigest hashes the sorted follower ids. Receivers compare it against their
// own view of the relationship set.
func followersDigest(actorIDs []string) string {
	sorted := make([]string, len(actorIDs))
	copy(sorted, actorIDs)

	sort.Strings(sorted)

	h := sha256.New()

	for _, id := range sorted {
		h.Write([]byte(id))
	}

	return hex.EncodeToString(h.Sum(nil))
}

func firstRSAKey(pairs []*keys.KeyPair) *keys.KeyPair {
	for _, pair := range pairs {
		if pair.IsRSA() {
			return pair
		}
	}

	return nil
}

// deliver POSTs the signed activity document to the inbox. A nil key sends the
// request unsigned.
func (f *Federation) deliver(ctx context.Context, key *keys.KeyPair, inbox *url.URL,
	data []byte, headers map[string]string) error {
	request := transport.NewRequest(inbox, key)

	for name, value := range headers {
		request.Header.Set(name, value)
	}

	started := time.Now()

	resp, err := f.transport.Post(ctx, request, data)
	if err != nil {
		return fkerrors.NewTransient(fmt.Errorf("post to %s: %w", inbox, err))
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Warn("Error closing response body", log.WithError(err))
		}
	}()

	f.metrics.OutboxPostTime(time.Since(started))

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		logger.Debug("Delivered activity", log.WithInboxIRI(inbox),
			log.WithHTTPStatus(resp.StatusCode))

		return nil
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return fkerrors.NewTransientf("post to %s: status %d", inbox, resp.StatusCode)
	}

	return fmt.Errorf("post to %s: status %d", inbox, resp.StatusCode)
}

func (f *Federation) enqueueOutbox(ctx context.Context, pairs []*keys.KeyPair,
	activity *vocab.Activity, data []byte, target *inboxTarget, headers map[string]string,
	attempt int, started time.Time) error {
	payload := &OutboxMessage{
		Type:         messageTypeOutbox,
		ID:           uuid.NewString(),
		Activity:     data,
		ActivityID:   activityID(activity),
		ActivityType: string(activity.Type()),
		Inbox:        target.inbox.String(),
		SharedInbox:  target.shared,
		Started:      started.UTC().Format(timeLayout),
		Attempt:      attempt,
		Headers:      headers,
		TraceContext: traceCarrier(ctx),
	}

	for _, pair := range pairs {
		jwk, err := keys.ExportPrivateJWK(pair.KeyID, pair.PrivateKey)
		if err != nil {
			return fmt.Errorf("export key: %w", err)
		}

		payload.Keys = append(payload.Keys, OutboxKey{
			KeyID:      pair.KeyID.String(),
			PrivateKey: jwk,
		})
	}

	msg, err := newQueueMessage(payload)
	if err != nil {
		return err
	}

	traceutil.InjectContext(ctx, msg)

	if err := f.opts.outboxQueue.Enqueue(ctx, msg); err != nil {
		return fmt.Errorf("enqueue outbox message: %w", err)
	}

	return nil
}

// handleOutboxMessage is the outbox queue worker.
func (f *Federation) handleOutboxMessage(_ context.Context, msg *message.Message) error {
	payload, err := parseOutboxMessage(msg)
	if err != nil {
		logger.Error("Dropping malformed outbox message", log.WithMessageID(msg.UUID),
			log.WithError(err))

		return nil
	}

	inbox, err := url.Parse(payload.Inbox)
	if err != nil {
		logger.Error("Dropping outbox message with malformed inbox URL",
			log.WithMessageID(msg.UUID), log.WithError(err))

		return nil
	}

	var pairs []*keys.KeyPair

	for _, key := range payload.Keys {
		pair, err := keys.ImportPrivateJWK(key.PrivateKey)
		if err != nil {
			logger.Error("Dropping outbox message with malformed key",
				log.WithMessageID(msg.UUID), log.WithKeyID(key.KeyID), log.WithError(err))

			return nil
		}

		pairs = append(pairs, pair)
	}

	ctx, span := f.tracer.Start(traceutil.ContextFromMessage(msg), "outbox.deliver")
	defer span.End()

	err = f.deliver(ctx, firstRSAKey(pairs), inbox, payload.Activity, payload.Headers)
	if err == nil {
		return nil
	}

	activity := vocab.NewActivityFromDocument(map[string]interface{}{})

	if parsed, parseErr := vocab.ParseActivity(payload.Activity); parseErr == nil {
		activity = parsed
	}

	f.invokeOutboxErrorHandler(err, activity)

	started, timeErr := time.Parse(timeLayout, payload.Started)
	if timeErr != nil {
		started = time.Now()
	}

	delay, retryable := f.opts.outboxRetryPolicy(retry.Context{
		ElapsedTime: time.Since(started),
		Attempts:    payload.Attempt + 1,
	})

	if !retryable {
		logger.Error("Giving up on outbound delivery", log.WithInboxIRI(inbox),
			log.WithAttempt(payload.Attempt+1), log.WithError(err))

		return nil
	}

	logger.Info("Retrying outbound delivery", log.WithInboxIRI(inbox),
		log.WithAttempt(payload.Attempt+1), log.WithDelay(delay))

	return f.requeueOutbox(ctx, payload, delay)
}

func (f *Federation) requeueOutbox(ctx context.Context, payload *OutboxMessage, delay time.Duration) error {
	payload.ID = uuid.NewString()
	payload.Attempt++

	msg, err := newQueueMessage(payload)
	if err != nil {
		return err
	}

	traceutil.InjectContext(ctx, msg)

	var opts []queuespi.Option

	if delay > 0 {
		opts = append(opts, queuespi.WithDeliveryDelay(delay))
	}

	if err := f.opts.outboxQueue.Enqueue(ctx, msg, opts...); err != nil {
		return fmt.Errorf("re-enqueue outbox message: %w", err)
	}

	return nil
}

// invokeOutboxErrorHandler calls the user's error handler, containing any panic.
func (f *Federation) invokeOutboxErrorHandler(err error, activity *vocab.Activity) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Outbox error handler panicked", log.WithError(fmt.Errorf("%v", r)))
		}
	}()

	f.outboxErrorHandler(err, activity)
}
