/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package httpserver provides the HTTP server shell that mounts the federation
// endpoints.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/fedikit/fedikit/internal/pkg/log"
)

var logger = log.New("httpserver")

// Handler is an endpoint that can be mounted on the server.
type Handler interface {
	http.Handler

	Path() string
	Method() string
}

// Server implements an HTTP server.
type Server struct {
	httpServer *http.Server
	started    uint32
	certFile   string
	keyFile    string
}

// Config contains the server configuration.
type Config struct {
	Address           string
	CertFile          string
	KeyFile           string
	IdleTimeout       time.Duration
	ReadHeaderTimeout time.Duration
}

// DefaultConfig returns the default server configuration.
func DefaultConfig(address string) Config {
	return Config{
		Address:           address,
		IdleTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// New returns a new HTTP server with the given handlers mounted.
func New(cfg Config, handlers ...Handler) *Server {
	router := mux.NewRouter()

	for _, handler := range handlers {
		logger.Info("Registering handler", log.WithServiceEndpoint(handler.Path()))

		router.Handle(handler.Path(), handler).Methods(handler.Method())
	}

	corsHandler := cors.New(
		cors.Options{
			AllowedMethods: []string{
				http.MethodGet, http.MethodPost, http.MethodOptions,
			},
			AllowedHeaders: []string{"*"},
		},
	).Handler(router)

	http2Server := &http2.Server{
		IdleTimeout: cfg.IdleTimeout,
		CountError: func(errType string) {
			logger.Error("HTTP2 server error", log.WithError(errors.New(errType)))
		},
	}

	return &Server{
		certFile: cfg.CertFile,
		keyFile:  cfg.KeyFile,
		httpServer: &http.Server{
			Addr:              cfg.Address,
			Handler:           h2c.NewHandler(corsHandler, http2Server),
			IdleTimeout:       cfg.IdleTimeout,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		},
	}
}

// Start starts the HTTP server in a separate goroutine.
func (s *Server) Start() error {
	if !atomic.CompareAndSwapUint32(&s.started, 0, 1) {
		return fmt.Errorf("server already started")
	}

	go func() {
		logger.Info("Listening for requests", log.WithAddress(s.httpServer.Addr))

		var err error
		if s.keyFile != "" && s.certFile != "" {
			err = s.httpServer.ListenAndServeTLS(s.certFile, s.keyFile)
		} else {
			err = s.httpServer.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			panic(fmt.Sprintf("Failed to start server on [%s]: %s", s.httpServer.Addr, err))
		}

		atomic.StoreUint32(&s.started, 0)

		logger.Info("Server has stopped")
	}()

	return nil
}

// Stop stops the server.
func (s *Server) Stop(ctx context.Context) error {
	if !atomic.CompareAndSwapUint32(&s.started, 1, 0) {
		return fmt.Errorf("cannot stop HTTP server since it hasn't been started")
	}

	return s.httpServer.Shutdown(ctx)
}
