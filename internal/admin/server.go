// Package admin exposes the owner-only administrative surface over HTTP.
// Every mutating route requires a capability issued against the owner's TOTP
// secret; the capability check happens here, at the caller boundary, so the
// engine and controller stay free of authorization concerns.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"treasury-systemv1/internal/auth"
	"treasury-systemv1/internal/controller"
	"treasury-systemv1/internal/indicator"
	"treasury-systemv1/internal/journal"
)

const capabilityHeader = "X-Capability"

// Server routes admin requests to the engine and controller.
type Server struct {
	keeper *auth.Keeper
	engine *indicator.Engine
	ctrl   *controller.Controller
	jrnl   *journal.Journal
	srv    *http.Server
}

// New creates an admin server. jrnl may be nil (decision queries disabled).
func New(addr string, keeper *auth.Keeper, engine *indicator.Engine, ctrl *controller.Controller, jrnl *journal.Journal) *Server {
	s := &Server{keeper: keeper, engine: engine, ctrl: ctrl, jrnl: jrnl}

	mux := http.NewServeMux()
	mux.HandleFunc("/admin/login", s.handleLogin)
	mux.HandleFunc("/admin/engine/initialize", s.gated(s.handleInitialize))
	mux.HandleFunc("/admin/engine/duration", s.gated(s.handleDuration))
	mux.HandleFunc("/admin/engine/frequency", s.gated(s.handleFrequency))
	mux.HandleFunc("/admin/controller/epoch", s.gated(s.handleEpoch))
	mux.HandleFunc("/admin/controller/bid-capacity", s.gated(s.handleBidCapacity))
	mux.HandleFunc("/admin/controller/ask-capacity", s.gated(s.handleAskCapacity))
	mux.HandleFunc("/admin/controller/band-multiple", s.gated(s.handleBandMultiple))
	mux.HandleFunc("/admin/controller/threshold", s.gated(s.handleThreshold))
	mux.HandleFunc("/admin/decisions", s.handleDecisions)

	s.srv = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Start launches the admin server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[admin] server listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[admin] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the admin server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}

// gated wraps a handler with the capability check.
func (s *Server) gated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		c := auth.Capability{Token: r.Header.Get(capabilityHeader)}
		if err := s.keeper.Verify(c); err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Passcode string `json:"passcode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	c, err := s.keeper.Issue(req.Passcode)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, map[string]string{"capability": c.Token})
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Seed                []float64 `json:"seed"`
		LastObservationTime time.Time `json:"last_observation_time"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	s.respond(w, s.engine.Initialize(req.Seed, req.LastObservationTime))
}

func (s *Server) handleDuration(w http.ResponseWriter, r *http.Request) {
	d, ok := decodeDuration(w, r)
	if !ok {
		return
	}
	s.respond(w, s.engine.SetMovingAverageDuration(d))
}

func (s *Server) handleFrequency(w http.ResponseWriter, r *http.Request) {
	d, ok := decodeDuration(w, r)
	if !ok {
		return
	}
	s.respond(w, s.engine.SetObservationFrequency(d))
}

func (s *Server) handleEpoch(w http.ResponseWriter, r *http.Request) {
	d, ok := decodeDuration(w, r)
	if !ok {
		return
	}
	s.respond(w, s.ctrl.SetEpochDuration(d))
}

func (s *Server) handleBidCapacity(w http.ResponseWriter, r *http.Request) {
	v, ok := decodeValue(w, r)
	if !ok {
		return
	}
	s.ctrl.SetBidCapacity(v)
	s.respond(w, nil)
}

func (s *Server) handleAskCapacity(w http.ResponseWriter, r *http.Request) {
	v, ok := decodeValue(w, r)
	if !ok {
		return
	}
	s.ctrl.SetAskCapacity(v)
	s.respond(w, nil)
}

func (s *Server) handleBandMultiple(w http.ResponseWriter, r *http.Request) {
	v, ok := decodeValue(w, r)
	if !ok {
		return
	}
	s.respond(w, s.ctrl.SetMaxBandMultiple(v))
}

func (s *Server) handleThreshold(w http.ResponseWriter, r *http.Request) {
	v, ok := decodeValue(w, r)
	if !ok {
		return
	}
	s.respond(w, s.ctrl.SetMinPctThreshold(v))
}

func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.jrnl == nil {
		http.Error(w, "journal disabled", http.StatusNotFound)
		return
	}
	limit := 50
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			limit = n
		}
	}
	recs, err := s.jrnl.Recent(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, recs)
}

// respond maps domain errors to HTTP statuses.
func (s *Server) respond(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSON(w, map[string]string{"status": "ok"})
	case errors.Is(err, indicator.ErrInvalidParams), errors.Is(err, controller.ErrInvalidParams):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, indicator.ErrAlreadyInitialized):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, indicator.ErrNotInitialized):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func decodeDuration(w http.ResponseWriter, r *http.Request) (time.Duration, bool) {
	var req struct {
		Duration string `json:"duration"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return 0, false
	}
	d, err := time.ParseDuration(req.Duration)
	if err != nil {
		http.Error(w, "bad duration", http.StatusBadRequest)
		return 0, false
	}
	return d, true
}

func decodeValue(w http.ResponseWriter, r *http.Request) (float64, bool) {
	var req struct {
		Value float64 `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return 0, false
	}
	return req.Value, true
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
