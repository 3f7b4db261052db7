// Package api provides HTTP handlers and the main API server logic for QuickReach.
//
// It exposes the USSD gateway webhook plus JSON endpoints for dispatcher and
// hospital tooling. The API integrates with the dialogue, store and
// escalation modules.
package api

import (
	"log/slog"
	"net/http"

	"github.com/QuickReach/QuickReach/internal/store"
	"github.com/QuickReach/QuickReach/internal/ussd"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":8080"

// EscalationCanceller disarms the acknowledgment timer when a dispatcher
// moves an incident out of Pending.
type EscalationCanceller interface {
	Cancel(incidentID string)
}

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// Server wires the HTTP surface to the core modules.
type Server struct {
	store       store.Store
	dialogue    *ussd.Handler
	escalations EscalationCanceller
	addr        string
	mux         *http.ServeMux
}

// NewServer creates the API server and registers its routes.
func NewServer(st store.Store, dialogue *ussd.Handler, escalations EscalationCanceller, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}

	s := &Server{
		store:       st,
		dialogue:    dialogue,
		escalations: escalations,
		addr:        cfg.Addr,
		mux:         http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /{$}", s.rootHandler)
	s.mux.HandleFunc("GET /health", s.healthHandler)
	s.mux.HandleFunc("POST /ussd", s.ussdHandler)
	s.mux.HandleFunc("GET /incidents", s.listIncidentsHandler)
	s.mux.HandleFunc("POST /incidents/{id}/status", s.updateStatusHandler)
	s.mux.HandleFunc("GET /hospitals", s.listHospitalsHandler)
}

// Handler exposes the route table, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run starts the HTTP server and blocks until it exits.
func (s *Server) Run() error {
	slog.Info("QuickReach API running", "addr", s.addr)
	return http.ListenAndServe(s.addr, s.mux)
}
