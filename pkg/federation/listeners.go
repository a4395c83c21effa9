/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package federation

import (
	"fmt"

	"github.com/fedikit/fedikit/pkg/vocab"
)

// InboxListener handles an inbound activity.
type InboxListener func(ctx *InboxContext, activity *vocab.Activity) error

// listenerSet dispatches inbound activities by type, walking the static supertype
// table upward until a listener matches.
type listenerSet struct {
	listeners map[vocab.Type]InboxListener
}

func newListenerSet() *listenerSet {
	return &listenerSet{listeners: make(map[vocab.Type]InboxListener)}
}

// register adds a listener for the given activity type. Registering twice for the same
// type is an error.
func (s *listenerSet) register(activityType vocab.Type, listener InboxListener) error {
	if !vocab.IsActivityType(activityType) {
		return fmt.Errorf("type %q is not an activity type", activityType)
	}

	if _, ok := s.listeners[activityType]; ok {
		return fmt.Errorf("listener already registered for type %q", activityType)
	}

	s.listeners[activityType] = listener

	return nil
}

// lookup finds the listener for the given type or the nearest registered supertype.
// The second return is false when no listener matches anywhere up the chain.
func (s *listenerSet) lookup(activityType vocab.Type) (InboxListener, bool) {
	for {
		if listener, ok := s.listeners[activityType]; ok {
			return listener, true
		}

		super, ok := vocab.SuperType(activityType)
		if !ok {
			return nil, false
		}

		activityType = super
	}
}
