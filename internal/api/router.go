// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/tailscale/tscert"

	"github.com/groupsio/claudegw/internal/api/handlers"
	"github.com/groupsio/claudegw/internal/api/middleware"
	"github.com/groupsio/claudegw/internal/api/version"
	"github.com/groupsio/claudegw/internal/events"
	"github.com/groupsio/claudegw/internal/gateway"
)

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	Host         string
	Port         int
	TLSCert      string // Path to TLS certificate file
	TLSKey       string // Path to TLS private key file
	TLSTailscale bool   // Provision certs automatically via the tailnet
}

// Dependencies are the wired components a router needs to build its route
// table. Engine carries everything the Messages API touches; the rest are
// the pieces a couple of routes need directly.
type Dependencies struct {
	Engine        *gateway.Engine
	Bus           events.EventBus
	Version       string
	ImageTempDir  string
	WebhookSecret string
	DeployScript  string
	DeployBranch  string
}

// NewRouter builds the gateway's HTTP route table: the Messages API and
// its supporting operator/monitor endpoints.
func NewRouter(deps Dependencies) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Logging)
	r.Use(middleware.Recovery)
	r.Use(middleware.CORS)
	r.Use(version.Middleware)

	eventHandler := handlers.NewEventHandler(deps.Bus)
	healthHandler := handlers.NewHealthHandler(deps.Version, eventHandler)
	messagesHandler := handlers.NewMessagesHandler(deps.Engine, deps.ImageTempDir)
	debugHandler := handlers.NewDebugHandler(deps.Engine)
	deployHandler := handlers.NewDeployHandler(deps.WebhookSecret, deps.DeployScript, deps.DeployBranch)

	r.HandleFunc("/health", healthHandler.Health).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/v1/messages", messagesHandler.ServeHTTP).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/v1/models", handlers.Models).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/events", eventHandler.Stream).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/events/history", eventHandler.History).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/v1/debug/stream", debugHandler.ServeHTTP).Methods(http.MethodGet)
	r.HandleFunc("/deploy", deployHandler.ServeHTTP).Methods(http.MethodPost, http.MethodOptions)

	r.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlers.WriteError(w, http.StatusNotFound, handlers.ErrNotFound, "no such route")
	})

	return r
}

// Server wraps the router with the underlying http.Server and its
// TLS/lifecycle concerns.
type Server struct {
	router *mux.Router
	cfg    ServerConfig
	server *http.Server
}

// NewServer creates a new API server.
func NewServer(cfg ServerConfig, deps Dependencies) *Server {
	return &Server{
		router: NewRouter(deps),
		cfg:    cfg,
	}
}

// Router returns the underlying router.
func (s *Server) Router() *mux.Router {
	return s.router
}

// ListenAndServe starts the server. TLS is enabled either by a tailnet
// cert obtained automatically via tscert, or by an explicit cert/key pair;
// otherwise the server listens in plaintext.
func (s *Server) ListenAndServe() error {
	addr := s.cfg.Host + ":" + strconv.Itoa(s.cfg.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	if s.cfg.TLSTailscale {
		s.server.TLSConfig = &tls.Config{
			GetCertificate: tscert.GetCertificate,
		}
		log.Printf("API server listening on https://%s (tailnet TLS)", addr)
		return s.server.ListenAndServeTLS("", "")
	}

	tlsEnabled, err := CheckTLSConfig(s.cfg.TLSCert, s.cfg.TLSKey)
	if err != nil {
		return fmt.Errorf("TLS configuration error: %w", err)
	}

	if tlsEnabled {
		certPath := expandPath(s.cfg.TLSCert)
		keyPath := expandPath(s.cfg.TLSKey)
		log.Printf("API server listening on https://%s (TLS enabled)", addr)
		return s.server.ListenAndServeTLS(certPath, keyPath)
	}

	log.Printf("API server listening on http://%s", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	log.Println("Shutting down API server...")

	shutdownCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
	}

	return s.server.Shutdown(shutdownCtx)
}
