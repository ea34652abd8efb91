package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lazypower/attention/internal/channel"
	"github.com/lazypower/attention/internal/clock"
	"github.com/lazypower/attention/internal/config"
	"github.com/lazypower/attention/internal/engine"
	"github.com/lazypower/attention/internal/event"
	"github.com/lazypower/attention/internal/scheduler"
)

type harness struct {
	srv   *Server
	sched *scheduler.Scheduler
	mem   *engine.Memory
	ring  *channel.Ring
}

func testServer(t *testing.T, opts Options) *harness {
	t.Helper()
	p := config.DefaultParams()
	p.ConceptBagSize = 16
	p.Seed = 1

	clk := clock.NewCycleClock()
	bus := event.NewBus()
	mem := engine.New(engine.Options{Params: p, Clock: clk, Bus: bus})
	sched := scheduler.New(scheduler.Options{Params: p, Reasoner: mem, Clock: clk, Bus: bus})
	ring := channel.NewRing(100)
	sched.AddOutput(ring)
	q := channel.NewQueue(mem)
	sched.AddInput(q)
	t.Cleanup(sched.Stop)

	opts.Scheduler = sched
	opts.Memory = mem
	opts.Input = q
	opts.Output = ring
	opts.Version = "test-version"
	return &harness{srv: New(opts), sched: sched, mem: mem, ring: ring}
}

func (h *harness) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.srv.ServeHTTP(w, req)

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("%s %s: decode body %q: %v", method, path, w.Body.String(), err)
	}
	return w, resp
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHealthEndpoint(t *testing.T) {
	h := testServer(t, Options{})

	w, body := h.do(t, "GET", "/api/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	if body["version"] != "test-version" {
		t.Errorf("version = %v, want test-version", body["version"])
	}
	if body["state"] != "stopped" {
		t.Errorf("state = %v, want stopped", body["state"])
	}
	if body["store"] != true {
		t.Errorf("store = %v, want true", body["store"])
	}
	if id, _ := body["instance"].(string); id == "" {
		t.Error("instance id missing")
	}
}

func TestHealthReportsStoreFailure(t *testing.T) {
	h := testServer(t, Options{Ping: func(context.Context) error { return errors.New("down") }})

	_, body := h.do(t, "GET", "/api/health", "")
	if body["store"] != false {
		t.Errorf("store = %v, want false", body["store"])
	}
}

func TestInputWalkAndConcepts(t *testing.T) {
	h := testServer(t, Options{})

	w, body := h.do(t, "POST", "/api/input", `{"text":"bird & flyer\nbad 2.0\n"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("input status = %d; body: %s", w.Code, w.Body.String())
	}
	if body["accepted"] != float64(1) {
		t.Errorf("accepted = %v, want 1", body["accepted"])
	}
	if rejected, _ := body["rejected"].([]any); len(rejected) != 1 {
		t.Errorf("rejected = %v, want one entry", body["rejected"])
	}

	w, body = h.do(t, "POST", "/api/walk", `{"cycles":2}`)
	if w.Code != http.StatusOK {
		t.Fatalf("walk status = %d; body: %s", w.Code, w.Body.String())
	}
	if body["ran"] != float64(2) {
		t.Errorf("ran = %v, want 2", body["ran"])
	}

	_, body = h.do(t, "GET", "/api/concepts", "")
	concepts, _ := body["concepts"].([]any)
	found := false
	for _, c := range concepts {
		if c.(map[string]any)["term"] == "bird & flyer" {
			found = true
		}
	}
	if !found {
		t.Errorf("concepts = %v, want bird & flyer", concepts)
	}

	w, body = h.do(t, "GET", "/api/concepts/bird%20%26%20flyer", "")
	if w.Code != http.StatusOK {
		t.Fatalf("concept status = %d; body: %s", w.Code, w.Body.String())
	}
	if body["term"] != "bird & flyer" {
		t.Errorf("term = %v", body["term"])
	}
	if tasks, _ := body["tasks"].([]any); len(tasks) == 0 {
		t.Errorf("tasks = %v, want at least one task link", body["tasks"])
	}

	w, _ = h.do(t, "GET", "/api/concepts/nothing", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown concept status = %d, want 404", w.Code)
	}

	_, body = h.do(t, "GET", "/api/output?limit=100", "")
	lines, _ := body["lines"].([]any)
	var sawIn, sawErr, sawOut bool
	for _, l := range lines {
		s := l.(string)
		sawIn = sawIn || strings.HasPrefix(s, "IN: bird & flyer")
		sawErr = sawErr || strings.HasPrefix(s, "ERROR: ")
		sawOut = sawOut || strings.HasPrefix(s, "OUT: ")
	}
	if !sawIn || !sawErr || !sawOut {
		t.Errorf("output = %v, want IN, ERROR and OUT lines", lines)
	}

	_, body = h.do(t, "GET", "/api/status", "")
	sched := body["scheduler"].(map[string]any)
	if sched["time"] != float64(2) {
		t.Errorf("time = %v, want 2", sched["time"])
	}
}

func TestRequestValidation(t *testing.T) {
	h := testServer(t, Options{})

	tests := []struct {
		method, path, body string
	}{
		{"POST", "/api/walk", `{"cycles":0}`},
		{"POST", "/api/walk", `{"cycles":1000001}`},
		{"POST", "/api/walk", `not json`},
		{"POST", "/api/input", `{"text":"  \n "}`},
		{"POST", "/api/input", `{`},
		{"GET", "/api/output?limit=-1", ""},
		{"GET", "/api/concepts?limit=x", ""},
		{"PUT", "/api/params", `{"duration":0}`},
		{"PUT", "/api/params", `{"merge":"sideways"}`},
	}
	for _, tt := range tests {
		w, body := h.do(t, tt.method, tt.path, tt.body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s %s %s: status = %d, want 400", tt.method, tt.path, tt.body, w.Code)
		}
		if body["error"] == "" || body["error"] == nil {
			t.Errorf("%s %s: expected error message in body", tt.method, tt.path)
		}
	}
}

func TestParams(t *testing.T) {
	h := testServer(t, Options{})

	_, body := h.do(t, "GET", "/api/params", "")
	if body["duration"] != float64(5) {
		t.Errorf("duration = %v, want 5", body["duration"])
	}
	if body["merge"] != "plus" {
		t.Errorf("merge = %v, want plus", body["merge"])
	}

	w, body := h.do(t, "PUT", "/api/params", `{"silence_level":50,"merge":"max"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("put status = %d; body: %s", w.Code, w.Body.String())
	}
	if body["silence_level"] != float64(50) || body["duration"] != float64(5) {
		t.Errorf("put body = %v", body)
	}
	if got := h.sched.Params().SilenceLevel; got != 50 {
		t.Errorf("scheduler silence_level = %d, want 50", got)
	}
}

func TestLifecycle(t *testing.T) {
	h := testServer(t, Options{})

	_, body := h.do(t, "POST", "/api/start", "")
	if got := body["scheduler"].(map[string]any)["state"]; got != "running" {
		t.Fatalf("state after start = %v", got)
	}

	_, body = h.do(t, "POST", "/api/pause", "")
	if got := body["scheduler"].(map[string]any)["state"]; got != "paused" {
		t.Errorf("state after pause = %v", got)
	}
	_, body = h.do(t, "POST", "/api/resume", "")
	if got := body["scheduler"].(map[string]any)["state"]; got != "running" {
		t.Errorf("state after resume = %v", got)
	}

	w, body := h.do(t, "POST", "/api/input", `{"text":"cat 0.9"}`)
	if w.Code != http.StatusAccepted || body["queued"] != float64(1) {
		t.Fatalf("queued input: status %d body %v", w.Code, body)
	}
	eventually(t, func() bool {
		for _, l := range h.ring.Lines(0) {
			if strings.HasPrefix(l, "IN: cat") {
				return true
			}
		}
		return false
	})

	w, _ = h.do(t, "POST", "/api/walk", `{"cycles":3}`)
	if w.Code != http.StatusAccepted {
		t.Errorf("walk on running loop status = %d, want 202", w.Code)
	}

	_, body = h.do(t, "POST", "/api/stop", "")
	if got := body["scheduler"].(map[string]any)["state"]; got != "stopped" {
		t.Errorf("state after stop = %v", got)
	}

	_, body = h.do(t, "POST", "/api/reset", "")
	st := body["scheduler"].(map[string]any)
	if st["time"] != float64(0) || st["walk"] != float64(0) {
		t.Errorf("status after reset = %v", st)
	}
	if body["memory"].(map[string]any)["concepts"] != float64(0) {
		t.Errorf("memory after reset = %v", body["memory"])
	}
}
