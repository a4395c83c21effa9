/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package webfinger implements the WebFinger (RFC 7033) endpoint and lookup client
// used for mapping fediverse handles to actor IRIs.
package webfinger

import (
	"fmt"
	"strings"
)

// ContentType is the JRD media type.
const ContentType = "application/jrd+json"

// RelSelf is the link relation of the actor document link.
const RelSelf = "self"

// WebFingerPath is the well-known WebFinger path.
const WebFingerPath = "/.well-known/webfinger"

// JRD is a JSON Resource Descriptor.
type JRD struct {
	Subject string   `json:"subject"`
	Aliases []string `json:"aliases,omitempty"`
	Links   []Link   `json:"links,omitempty"`
}

// Link is a JRD link.
type Link struct {
	Rel      string            `json:"rel"`
	Type     string            `json:"type,omitempty"`
	Href     string            `json:"href,omitempty"`
	Template string            `json:"template,omitempty"`
	Titles   map[string]string `json:"titles,omitempty"`
}

// ActorLink returns the href of the self link pointing at an ActivityPub actor, or "".
func (d *JRD) ActorLink() string {
	for _, link := range d.Links {
		if link.Rel != RelSelf {
			continue
		}

		if strings.HasPrefix(link.Type, "application/activity+json") ||
			strings.Contains(link.Type, "profile=\"https://www.w3.org/ns/activitystreams\"") {
			return link.Href
		}
	}

	return ""
}

// Acct holds the parts of an acct: resource.
type Acct struct {
	Username string
	Host     string
}

// String formats the acct: URI.
func (a Acct) String() string {
	return fmt.Sprintf("acct:%s@%s", a.Username, a.Host)
}

// ParseAcct parses an acct: resource. The scheme is optional.
func ParseAcct(resource string) (Acct, error) {
	trimmed := strings.TrimPrefix(resource, "acct:")
	trimmed = strings.TrimPrefix(trimmed, "@")

	username, host, found := strings.Cut(trimmed, "@")
	if !found || username == "" || host == "" {
		return Acct{}, fmt.Errorf("invalid acct resource %q", resource)
	}

	if strings.Contains(host, "/") {
		return Acct{}, fmt.Errorf("invalid acct host %q", host)
	}

	return Acct{Username: username, Host: host}, nil
}
