/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package nodeinfo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/fedikit/fedikit/internal/pkg/log"
)

var logger = log.New("nodeinfo")

// WellKnownPath is the NodeInfo discovery path.
const WellKnownPath = "/.well-known/nodeinfo"

const internalServerErrorResponse = "Internal Server Error.\n"

// Dispatcher produces the NodeInfo data for a request. The version 2.0 renderer strips
// the 2.1-only software fields.
type Dispatcher interface {
	GetNodeInfo(ctx context.Context, version Version) *NodeInfo
}

// Handler serves a NodeInfo document at /nodeinfo/<version>.
type Handler struct {
	version     Version
	dispatcher  Dispatcher
	contentType string
}

// NewHandler returns a NodeInfo handler for the given schema version.
func NewHandler(version Version, dispatcher Dispatcher) *Handler {
	return &Handler{
		version:    version,
		dispatcher: dispatcher,
		contentType: fmt.Sprintf(`application/json; profile="http://nodeinfo.diaspora.software/ns/schema/%s#"`,
			version),
	}
}

// Path returns the HTTP endpoint of the handler.
func (h *Handler) Path() string {
	return fmt.Sprintf("/nodeinfo/%s", h.version)
}

// Method returns the HTTP method of the handler.
func (h *Handler) Method() string {
	return http.MethodGet
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	nodeInfo := h.dispatcher.GetNodeInfo(req.Context(), h.version)
	if nodeInfo == nil {
		writeResponse(w, http.StatusInternalServerError, []byte(internalServerErrorResponse))

		return
	}

	sanitize(nodeInfo, h.version)

	nodeInfoBytes, err := json.Marshal(nodeInfo)
	if err != nil {
		logger.Error("Error marshalling node info", log.WithError(err))

		writeResponse(w, http.StatusInternalServerError, []byte(internalServerErrorResponse))

		return
	}

	w.Header().Set("Content-Type", h.contentType)
	w.Header().Set("Access-Control-Allow-Origin", "*")

	writeResponse(w, http.StatusOK, nodeInfoBytes)
}

func sanitize(nodeInfo *NodeInfo, version Version) {
	nodeInfo.Version = version

	if len(nodeInfo.Protocols) == 0 {
		nodeInfo.Protocols = []string{activityPubProtocol}
	}

	if nodeInfo.Services.Inbound == nil {
		nodeInfo.Services.Inbound = []string{}
	}

	if nodeInfo.Services.Outbound == nil {
		nodeInfo.Services.Outbound = []string{}
	}

	// Repository and homepage are 2.1 fields.
	if version == V2_0 {
		nodeInfo.Software.Repository = ""
		nodeInfo.Software.HomePage = ""
	}
}

// WellKnownHandler serves the NodeInfo discovery document.
type WellKnownHandler struct {
	links Links
}

// NewWellKnownHandler returns the discovery handler. The given base URL is where the
// NodeInfo handlers are mounted.
func NewWellKnownHandler(baseURL *url.URL, versions ...Version) *WellKnownHandler {
	handler := &WellKnownHandler{}

	for _, version := range versions {
		handler.links.Links = append(handler.links.Links, DiscoveryLink{
			Rel:  fmt.Sprintf("http://nodeinfo.diaspora.software/ns/schema/%s", version),
			Href: baseURL.JoinPath("nodeinfo", version).String(),
		})
	}

	return handler
}

// Path returns the HTTP endpoint of the handler.
func (h *WellKnownHandler) Path() string {
	return WellKnownPath
}

// Method returns the HTTP method of the handler.
func (h *WellKnownHandler) Method() string {
	return http.MethodGet
}

// ServeHTTP implements http.Handler.
func (h *WellKnownHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	linkBytes, err := json.Marshal(h.links)
	if err != nil {
		logger.Error("Error marshalling discovery links", log.WithError(err))

		writeResponse(w, http.StatusInternalServerError, []byte(internalServerErrorResponse))

		return
	}

	w.Header().Set("Content-Type", "application/json")

	writeResponse(w, http.StatusOK, linkBytes)
}

func writeResponse(w http.ResponseWriter, status int, body []byte) {
	w.WriteHeader(status)

	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			logger.Warn("Unable to write response", log.WithError(err))
		}
	}
}
