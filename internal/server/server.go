// Package server provides the HTTP API for async grab operations.
//
// Endpoints:
//
//	POST /grabs        — enqueue a new grab; returns operation ID immediately
//	GET  /grabs/{id}   — poll operation status and retrieve artefact URLs
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tomasbasham/grab-engine/internal/grab/config"
	"github.com/tomasbasham/grab-engine/internal/operation"
	"github.com/tomasbasham/grab-engine/internal/storage"
)

// Server holds the dependencies shared across HTTP handlers.
type Server struct {
	store    operation.Store
	uploader storage.Uploader
	mux      *http.ServeMux

	// defaultGrabOptions are used as a base for every grab; request
	// fields may override individual values.
	defaultGrabOptions config.GrabOptions
}

// New creates a Server wired to the given store and uploader.
func New(store operation.Store, uploader storage.Uploader, defaults config.GrabOptions) *Server {
	s := &Server{
		store:              store,
		uploader:           uploader,
		defaultGrabOptions: defaults,
	}

	s.mux = http.NewServeMux()
	s.mux.HandleFunc("POST /grabs", s.handleCreateGrab)
	s.mux.HandleFunc("GET /grabs/{id}", s.handleGetGrab)

	return s
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return srv.ListenAndServe()
}

// createGrabRequest is the JSON body for POST /grabs.
type createGrabRequest struct {
	URL         string   `json:"url"`
	IdleTimeout string   `json:"idle_timeout,omitempty"`
	Timeout     string   `json:"timeout,omitempty"`
	Behaviors   []string `json:"behaviors,omitempty"`
	Insecure    bool     `json:"insecure,omitempty"`
}

// createGrabResponse is returned immediately from POST /grabs.
type createGrabResponse struct {
	OperationID string `json:"operation_id"`
	Status      string `json:"status"`
}

func (s *Server) handleCreateGrab(w http.ResponseWriter, r *http.Request) {
	var req createGrabRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	opts := s.defaultGrabOptions
	opts.URL = req.URL
	opts.Behaviors = req.Behaviors
	opts.Insecure = req.Insecure

	if req.IdleTimeout != "" {
		d, err := time.ParseDuration(req.IdleTimeout)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid idle_timeout %q: %s", req.IdleTimeout, err))
			return
		}
		opts.IdleTimeout = d
	}
	if req.Timeout != "" {
		d, err := time.ParseDuration(req.Timeout)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid timeout %q: %s", req.Timeout, err))
			return
		}
		opts.Timeout = d
	}
	if err := opts.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	op, err := s.store.Create(req.URL, req.Behaviors)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create operation: "+err.Error())
		return
	}

	// Run the grab in the background against its own context: the
	// request's context ends when the HTTP connection closes, but a
	// grab enqueued here must keep running regardless of whether the
	// client that enqueued it is still listening.
	go operation.Run(context.Background(), operation.WorkerOptions{
		OperationID: op.ID,
		Store:       s.store,
		Uploader:    s.uploader,
		GrabOptions: opts,
	})

	writeJSON(w, http.StatusAccepted, createGrabResponse{
		OperationID: op.ID,
		Status:      string(operation.StatusPending),
	})
}

func (s *Server) handleGetGrab(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "operation id is required")
		return
	}

	op, err := s.store.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("operation %q not found", id))
		return
	}

	writeJSON(w, http.StatusOK, op)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
