/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package log

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// Log fields.
const (
	FieldURI             = "uri"
	FieldActorIRI        = "actor-iri"
	FieldActivityID      = "activity-id"
	FieldActivityType    = "activity-type"
	FieldInboxIRI        = "inbox-iri"
	FieldKeyID           = "key-id"
	FieldKeyOwner        = "key-owner"
	FieldMessageID       = "message-id"
	FieldRequestID       = "request-id"
	FieldRequestURL      = "request-url"
	FieldRouteName       = "route"
	FieldIdentifier      = "identifier"
	FieldAttempt         = "attempt"
	FieldDelay           = "delay"
	FieldHTTPStatus      = "http-status"
	FieldTopic           = "topic"
	FieldTotalItems      = "total"
	FieldCursor          = "cursor"
	FieldOrigin          = "origin"
	FieldHeaders         = "headers"
	FieldPayload         = "payload"
	FieldSignatureAlg    = "signature-alg"
	FieldAddress         = "address"
	FieldServiceEndpoint = "service-endpoint"
)

// WithError sets the error field.
func WithError(err error) zap.Field {
	return zap.Error(err)
}

// WithURI sets the uri field.
func WithURI(value fmt.Stringer) zap.Field {
	return zap.Stringer(FieldURI, value)
}

// WithURIString sets the uri field from a string.
func WithURIString(value string) zap.Field {
	return zap.String(FieldURI, value)
}

// WithActorIRI sets the actor-iri field.
func WithActorIRI(value fmt.Stringer) zap.Field {
	return zap.Stringer(FieldActorIRI, value)
}

// WithActivityID sets the activity-id field.
func WithActivityID(value string) zap.Field {
	return zap.String(FieldActivityID, value)
}

// WithActivityType sets the activity-type field.
func WithActivityType(value string) zap.Field {
	return zap.String(FieldActivityType, value)
}

// WithInboxIRI sets the inbox-iri field.
func WithInboxIRI(value fmt.Stringer) zap.Field {
	return zap.Stringer(FieldInboxIRI, value)
}

// WithKeyID sets the key-id field.
func WithKeyID(value string) zap.Field {
	return zap.String(FieldKeyID, value)
}

// WithKeyOwner sets the key-owner field.
func WithKeyOwner(value string) zap.Field {
	return zap.String(FieldKeyOwner, value)
}

// WithMessageID sets the message-id field.
func WithMessageID(value string) zap.Field {
	return zap.String(FieldMessageID, value)
}

// WithRequestID sets the request-id field.
func WithRequestID(value string) zap.Field {
	return zap.String(FieldRequestID, value)
}

// WithRequestURL sets the request-url field.
func WithRequestURL(value *url.URL) zap.Field {
	return zap.Stringer(FieldRequestURL, value)
}

// WithRouteName sets the route field.
func WithRouteName(value string) zap.Field {
	return zap.String(FieldRouteName, value)
}

// WithIdentifier sets the identifier field.
func WithIdentifier(value string) zap.Field {
	return zap.String(FieldIdentifier, value)
}

// WithAttempt sets the attempt field.
func WithAttempt(value int) zap.Field {
	return zap.Int(FieldAttempt, value)
}

// WithDelay sets the delay field.
func WithDelay(value time.Duration) zap.Field {
	return zap.Duration(FieldDelay, value)
}

// WithHTTPStatus sets the http-status field.
func WithHTTPStatus(value int) zap.Field {
	return zap.Int(FieldHTTPStatus, value)
}

// WithTopic sets the topic field.
func WithTopic(value string) zap.Field {
	return zap.String(FieldTopic, value)
}

// WithTotalItems sets the total field.
func WithTotalItems(value int) zap.Field {
	return zap.Int(FieldTotalItems, value)
}

// WithCursor sets the cursor field.
func WithCursor(value string) zap.Field {
	return zap.String(FieldCursor, value)
}

// WithOrigin sets the origin field.
func WithOrigin(value string) zap.Field {
	return zap.String(FieldOrigin, value)
}

// WithHeaders sets the headers field.
func WithHeaders(value http.Header) zap.Field {
	return zap.Any(FieldHeaders, value)
}

// WithPayload sets the payload field.
func WithPayload(value []byte) zap.Field {
	return zap.ByteString(FieldPayload, value)
}

// WithAddress sets the address field.
func WithAddress(value string) zap.Field {
	return zap.String(FieldAddress, value)
}

// WithServiceEndpoint sets the service-endpoint field.
func WithServiceEndpoint(value string) zap.Field {
	return zap.String(FieldServiceEndpoint, value)
}

// WithSignatureAlg sets the signature-alg field.
func WithSignatureAlg(value string) zap.Field {
	return zap.String(FieldSignatureAlg, value)
}
