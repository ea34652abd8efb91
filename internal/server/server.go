// Package server exposes the scheduler and memory over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/lazypower/attention/internal/channel"
	"github.com/lazypower/attention/internal/engine"
	"github.com/lazypower/attention/internal/scheduler"
)

// Options wires a Server to a running reasoner.
type Options struct {
	Scheduler *scheduler.Scheduler
	Memory    *engine.Memory
	// Input receives POST /api/input lines while the loop is running.
	Input *channel.Queue
	// Output backs GET /api/output.
	Output  *channel.Ring
	Version string
	// Context is the parent of the loop started by POST /api/start.
	Context context.Context
	// Ping reports the overflow store's health, when there is one.
	Ping func(ctx context.Context) error
}

// Server is the attention HTTP API server.
type Server struct {
	sched   *scheduler.Scheduler
	mem     *engine.Memory
	input   *channel.Queue
	output  *channel.Ring
	ping    func(ctx context.Context) error
	ctx     context.Context
	router  chi.Router
	version string
	id      string
	started time.Time
}

// New creates a Server.
func New(opts Options) *Server {
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	s := &Server{
		sched:   opts.Scheduler,
		mem:     opts.Memory,
		input:   opts.Input,
		output:  opts.Output,
		ping:    opts.Ping,
		ctx:     opts.Context,
		version: opts.Version,
		id:      uuid.NewString(),
		started: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)

		r.Post("/start", s.handleStart)
		r.Post("/stop", s.handleStop)
		r.Post("/pause", s.handlePause)
		r.Post("/resume", s.handleResume)
		r.Post("/reset", s.handleReset)
		r.Post("/walk", s.handleWalk)

		r.Post("/input", s.handleInput)
		r.Get("/output", s.handleOutput)

		r.Get("/concepts", s.handleConcepts)
		r.Get("/concepts/{term}", s.handleConcept)

		r.Get("/params", s.handleGetParams)
		r.Put("/params", s.handlePutParams)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	storeOK := true
	if s.ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		storeOK = s.ping(ctx) == nil
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"version":  s.version,
		"instance": s.id,
		"uptime":   time.Since(s.started).Seconds(),
		"state":    s.sched.State().String(),
		"store":    storeOK,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
