/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package federation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
)

// Queue message types.
const (
	messageTypeInbox  = "inbox"
	messageTypeOutbox = "outbox"
)

const timeLayout = time.RFC3339

// OutboxMessage is the JSON payload of a queued outbound delivery. The schema is
// stable across restarts: messages enqueued by one process may be consumed by another.
type OutboxMessage struct {
	Type         string            `json:"type"`
	ID           string            `json:"id"`
	Keys         []OutboxKey       `json:"keys"`
	Activity     json.RawMessage   `json:"activity"`
	ActivityID   string            `json:"activityId,omitempty"`
	ActivityType string            `json:"activityType"`
	Inbox        string            `json:"inbox"`
	SharedInbox  bool              `json:"sharedInbox"`
	Started      string            `json:"started"`
	Attempt      int               `json:"attempt"`
	Headers      map[string]string `json:"headers,omitempty"`
	TraceContext map[string]string `json:"traceContext,omitempty"`
}

// OutboxKey carries a signing key in a queue message as a JWK.
type OutboxKey struct {
	KeyID      string          `json:"keyId"`
	PrivateKey json.RawMessage `json:"privateKey"`
}

// InboxMessage is the JSON payload of a queued inbound activity. A nil Identifier
// denotes a shared-inbox delivery.
type InboxMessage struct {
	Type         string            `json:"type"`
	ID           string            `json:"id"`
	BaseURL      string            `json:"baseUrl"`
	Activity     json.RawMessage   `json:"activity"`
	Identifier   *string           `json:"identifier"`
	Started      string            `json:"started"`
	Attempt      int               `json:"attempt"`
	TraceContext map[string]string `json:"traceContext,omitempty"`
}

func newQueueMessage(payload interface{}) (*message.Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal queue message: %w", err)
	}

	return message.NewMessage(uuid.NewString(), data), nil
}

func parseInboxMessage(msg *message.Message) (*InboxMessage, error) {
	payload := &InboxMessage{}

	if err := json.Unmarshal(msg.Payload, payload); err != nil {
		return nil, fmt.Errorf("unmarshal inbox message: %w", err)
	}

	if payload.Type != messageTypeInbox {
		return nil, fmt.Errorf("unexpected message type %q", payload.Type)
	}

	return payload, nil
}

func parseOutboxMessage(msg *message.Message) (*OutboxMessage, error) {
	payload := &OutboxMessage{}

	if err := json.Unmarshal(msg.Payload, payload); err != nil {
		return nil, fmt.Errorf("unmarshal outbox message: %w", err)
	}

	if payload.Type != messageTypeOutbox {
		return nil, fmt.Errorf("unexpected message type %q", payload.Type)
	}

	return payload, nil
}
