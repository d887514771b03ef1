// Package api exposes the scan pipeline over HTTP: a stdlib
// http.ServeMux registered with one HandleFunc per route and
// encoding/json request/response bodies.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/standardbeagle/gatekeeper/internal/debug"
	"github.com/standardbeagle/gatekeeper/internal/jobregistry"
	"github.com/standardbeagle/gatekeeper/internal/patternlib"
	"github.com/standardbeagle/gatekeeper/internal/pipeline"
	"github.com/standardbeagle/gatekeeper/internal/store"
)

// Server holds the components an HTTP request needs: the pipeline to
// submit/cancel scans, the registry for live job status, the store for
// historical lookups once a job ages out of the registry, and the
// pattern library for the read-only /gates listing.
type Server struct {
	pipeline *pipeline.Pipeline
	registry *jobregistry.Registry
	results  store.Store
	library  *patternlib.Library

	mux *http.ServeMux
}

// New builds a Server with every route registered and ready to serve.
func New(p *pipeline.Pipeline, registry *jobregistry.Registry, results store.Store, library *patternlib.Library) *Server {
	s := &Server{pipeline: p, registry: registry, results: results, library: library}
	s.mux = http.NewServeMux()
	s.registerHandlers(s.mux)
	return s
}

// Handler returns the server's http.Handler, ready to pass to
// http.ListenAndServe or httptest.NewServer.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerHandlers(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/scan", s.handleCreateScan)
	mux.HandleFunc("GET /api/v1/scan/{id}", s.handleGetScan)
	mux.HandleFunc("POST /api/v1/scan/{id}/cancel", s.handleCancelScan)
	mux.HandleFunc("GET /api/v1/scan/{id}/report/{format}", s.handleGetReport)
	mux.HandleFunc("GET /api/v1/scan", s.handleListScans)
	mux.HandleFunc("GET /api/v1/gates", s.handleListGates)
	mux.HandleFunc("GET /api/v1/health", s.handleHealth)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		debug.LogAPI("write response failed: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
