/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package webfinger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fedikit/fedikit/internal/pkg/log"
	fkerrors "github.com/fedikit/fedikit/pkg/errors"
)

var logger = log.New("webfinger")

// Resolver resolves a WebFinger resource to its descriptor. Implementations return
// ErrNotFound for unknown resources.
type Resolver interface {
	ResolveResource(ctx context.Context, resource string) (*JRD, error)
}

// Handler serves the WebFinger endpoint.
type Handler struct {
	resolver Resolver
}

// NewHandler returns a new WebFinger handler.
func NewHandler(resolver Resolver) *Handler {
	return &Handler{resolver: resolver}
}

// Path returns the well-known path of the endpoint.
func (h *Handler) Path() string {
	return WebFingerPath
}

// Method returns the HTTP method of the endpoint.
func (h *Handler) Method() string {
	return http.MethodGet
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	resource := req.URL.Query().Get("resource")
	if resource == "" {
		writeError(w, http.StatusBadRequest, "resource query parameter is required")

		return
	}

	descriptor, err := h.resolver.ResolveResource(req.Context(), resource)
	if err != nil {
		if errors.Is(err, fkerrors.ErrNotFound) {
			writeError(w, http.StatusNotFound, "resource not found")

			return
		}

		logger.Error("Error resolving WebFinger resource",
			log.WithIdentifier(resource), log.WithError(err))

		writeError(w, http.StatusInternalServerError, "internal server error")

		return
	}

	w.Header().Set("Content-Type", ContentType)
	w.Header().Set("Access-Control-Allow-Origin", "*")

	if err := json.NewEncoder(w).Encode(descriptor); err != nil {
		logger.Error("Error writing WebFinger response", log.WithError(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	http.Error(w, message, status)
}
