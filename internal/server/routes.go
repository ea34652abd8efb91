package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lazypower/attention/internal/config"
	"github.com/lazypower/attention/internal/engine"
	"github.com/lazypower/attention/internal/scheduler"
)

// maxWalk bounds a single walk request.
const maxWalk = 100000

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Scheduler scheduler.Status `json:"scheduler"`
	Memory    engine.Stats     `json:"memory"`
	Output    int64            `json:"output_lines"`
}

func (s *Server) status() StatusResponse {
	resp := StatusResponse{Scheduler: s.sched.Status()}
	s.sched.Inspect(func() { resp.Memory = s.mem.Stats() })
	if s.output != nil {
		resp.Output = s.output.Total()
	}
	return resp
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.sched.Start(s.ctx)
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.sched.Stop()
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.sched.Pause()
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.sched.Resume()
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.sched.Reset()
	writeJSON(w, http.StatusOK, s.status())
}

// handleWalk queues cycles on a running loop. A stopped scheduler has no
// loop to drain the walk, so the cycles run before the response.
func (s *Server) handleWalk(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Cycles int `json:"cycles"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Cycles < 1 || req.Cycles > maxWalk {
		writeError(w, http.StatusBadRequest, "cycles must be between 1 and "+strconv.Itoa(maxWalk))
		return
	}

	if s.sched.State() == scheduler.Stopped {
		ran := s.sched.RunCycles(r.Context(), req.Cycles)
		writeJSON(w, http.StatusOK, map[string]any{"ran": ran, "status": s.status()})
		return
	}
	s.sched.Walk(req.Cycles)
	writeJSON(w, http.StatusAccepted, map[string]any{"queued": req.Cycles, "status": s.status()})
}

// handleInput accepts one perception per line of text. While the loop runs
// the lines are queued for the worker; a stopped scheduler perceives them
// immediately.
func (s *Server) handleInput(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	var lines []string
	for _, line := range strings.Split(req.Text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		writeError(w, http.StatusBadRequest, "text required")
		return
	}

	if s.sched.State() != scheduler.Stopped && s.input != nil {
		if err := s.input.Push(lines...); err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"queued": len(lines)})
		return
	}

	var rejected []string
	s.sched.Inspect(func() {
		for _, line := range lines {
			if err := s.mem.Perceive(line); err != nil {
				rejected = append(rejected, err.Error())
			}
		}
	})
	s.sched.Flush()
	writeJSON(w, http.StatusOK, map[string]any{
		"accepted": len(lines) - len(rejected),
		"rejected": rejected,
	})
}

func (s *Server) handleOutput(w http.ResponseWriter, r *http.Request) {
	if s.output == nil {
		writeError(w, http.StatusNotFound, "output not recorded")
		return
	}
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"lines": s.output.Lines(limit),
		"total": s.output.Total(),
	})
}

func (s *Server) handleConcepts(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	var concepts []engine.ConceptSummary
	s.sched.Inspect(func() { concepts = s.mem.Concepts(limit) })
	writeJSON(w, http.StatusOK, map[string]any{
		"concepts": concepts,
		"count":    len(concepts),
	})
}

func (s *Server) handleConcept(w http.ResponseWriter, r *http.Request) {
	term, err := url.PathUnescape(chi.URLParam(r, "term"))
	if err != nil || term == "" {
		writeError(w, http.StatusBadRequest, "invalid term")
		return
	}

	var (
		detail *engine.ConceptDetail
		lookup error
	)
	s.sched.Inspect(func() { detail, lookup = s.mem.Concept(r.Context(), term) })
	if lookup != nil {
		writeError(w, http.StatusBadGateway, lookup.Error())
		return
	}
	if detail == nil {
		writeError(w, http.StatusNotFound, "concept not found")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleGetParams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sched.Params())
}

// handlePutParams overlays the body on the current parameters, so a
// partial document changes only the fields it names.
func (s *Server) handlePutParams(w http.ResponseWriter, r *http.Request) {
	p := s.sched.Params()
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if err := s.sched.SetParams(p); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, config.ErrInvalid) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func queryLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return 0, false
	}
	return limit, true
}
