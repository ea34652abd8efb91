// Package scheduler drives the reasoning memory: one worker goroutine polls
// inputs, flushes output and runs cycles, with everything else talking to
// it through atomics and snapshot registries.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/lazypower/attention/internal/clock"
	"github.com/lazypower/attention/internal/config"
	"github.com/lazypower/attention/internal/event"
)

// Input produces work. NextInput reports whether it produced anything on
// this call; Closed reports that it is closed and fully drained.
type Input interface {
	NextInput() bool
	Closed() bool
}

// Output receives the lines buffered since the previous flush. It is never
// called with an empty batch.
type Output interface {
	NextOutput(lines []string)
}

// Reasoner is the per-cycle work. engine.Memory implements it.
type Reasoner interface {
	Cycle(ctx context.Context) error
	TakeOutput() []string
	Print(line string)
	Report(err error)
	Apply(p config.Params)
	Reset()
}

// State is the lifecycle state of the worker loop.
type State int

const (
	Stopped State = iota
	Running
	Paused
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Paused:
		return "paused"
	default:
		return "stopped"
	}
}

// idlePeriod is how long the loop waits when an iteration did nothing.
const idlePeriod = 10 * time.Millisecond

// Options configures a Scheduler.
type Options struct {
	Params   config.Params
	Reasoner Reasoner
	// Clock defaults to NewClock(Params, Bus).
	Clock  clock.Clock
	Bus    *event.Bus
	Logger *slog.Logger
	Meter  metric.Meter
	Tracer trace.Tracer
}

// Scheduler runs reasoning cycles on a single worker. Tick, Inspect, Reset
// and Flush serialize on the tick lock, so they are safe from any goroutine.
type Scheduler struct {
	reasoner Reasoner
	clock    clock.Clock
	bus      *event.Bus
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *schedulerMetrics

	params  atomic.Pointer[config.Params]
	applied *config.Params

	inputs  event.List[Input]
	outputs event.List[Output]

	tickMu sync.Mutex

	walk     atomic.Int64
	paused   atomic.Bool
	running  atomic.Bool
	finished atomic.Bool
	now      atomic.Int64
	cycles   atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	wake   chan struct{}
}

// New creates a stopped Scheduler. It can be stepped with Tick and
// RunCycles before, or instead of, Start.
func New(opts Options) *Scheduler {
	if opts.Bus == nil {
		opts.Bus = event.NewBus()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Meter == nil {
		opts.Meter = noop.NewMeterProvider().Meter("attention")
	}
	if opts.Tracer == nil {
		opts.Tracer = tracenoop.NewTracerProvider().Tracer("attention")
	}
	if opts.Clock == nil {
		opts.Clock = NewClock(opts.Params, opts.Bus)
	}
	metrics, err := newSchedulerMetrics(opts.Meter)
	if err != nil {
		opts.Logger.Warn("scheduler: metrics disabled", "error", err)
		metrics, _ = newSchedulerMetrics(noop.NewMeterProvider().Meter("attention"))
	}

	s := &Scheduler{
		reasoner: opts.Reasoner,
		clock:    opts.Clock,
		bus:      opts.Bus,
		logger:   opts.Logger,
		tracer:   opts.Tracer,
		metrics:  metrics,
		wake:     make(chan struct{}, 1),
	}
	p := opts.Params
	s.params.Store(&p)
	s.applied = &p

	s.bus.On(event.Lag, func(e event.Event) {
		s.metrics.lags.Add(context.Background(), 1)
		s.logger.Warn("scheduler: lag", "detail", fmt.Sprint(e.Payload))
	})
	return s
}

// NewClock returns a realtime clock when p asks for one, otherwise a cycle
// clock. Lag on the realtime clock is emitted on bus.
func NewClock(p config.Params, bus *event.Bus) clock.Clock {
	if !p.Realtime {
		return clock.NewCycleClock()
	}
	var rt *clock.RealtimeClock
	rt = clock.NewRealtimeClock(clock.RealtimeOptions{
		LagThreshold: p.LagThreshold(),
		OnLag: func(l clock.Lag) {
			bus.Emit(event.Event{Kind: event.Lag, Time: rt.Time(), Payload: l})
		},
	})
	return rt
}

// Clock returns the scheduler's clock. Read it under Inspect.
func (s *Scheduler) Clock() clock.Clock { return s.clock }

// Bus returns the event bus.
func (s *Scheduler) Bus() *event.Bus { return s.bus }

// Params returns the current parameter snapshot.
func (s *Scheduler) Params() config.Params { return *s.params.Load() }

// SetParams validates and publishes p. The worker applies it at the start
// of its next iteration.
func (s *Scheduler) SetParams(p config.Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.params.Store(&p)
	s.signal()
	return nil
}

// AddInput registers an input and returns its handle.
func (s *Scheduler) AddInput(in Input) string {
	id := uuid.NewString()
	s.inputs.Add(id, in)
	s.finished.Store(false)
	s.signal()
	return id
}

// RemoveInput unregisters an input.
func (s *Scheduler) RemoveInput(id string) bool { return s.inputs.Remove(id) }

// AddOutput registers an output and returns its handle.
func (s *Scheduler) AddOutput(out Output) string {
	id := uuid.NewString()
	s.outputs.Add(id, out)
	return id
}

// RemoveOutput unregisters an output.
func (s *Scheduler) RemoveOutput(id string) bool { return s.outputs.Remove(id) }

// Walk requests n more cycles, run even when the scheduler is not started.
func (s *Scheduler) Walk(n int) {
	if n <= 0 {
		return
	}
	s.walk.Add(int64(n))
	s.signal()
}

func (s *Scheduler) Pause() {
	s.paused.Store(true)
}

func (s *Scheduler) Resume() {
	s.paused.Store(false)
	s.signal()
}

// State reports the worker state.
func (s *Scheduler) State() State {
	switch {
	case !s.running.Load():
		return Stopped
	case s.paused.Load():
		return Paused
	default:
		return Running
	}
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	State          string `json:"state"`
	Time           int64  `json:"time"`
	Cycles         int64  `json:"cycles"`
	Walk           int64  `json:"walk"`
	Inputs         int    `json:"inputs"`
	Outputs        int    `json:"outputs"`
	FinishedInputs bool   `json:"finished_inputs"`
}

func (s *Scheduler) Status() Status {
	return Status{
		State:          s.State().String(),
		Time:           s.now.Load(),
		Cycles:         s.cycles.Load(),
		Walk:           s.walk.Load(),
		Inputs:         s.inputs.Len(),
		Outputs:        s.outputs.Len(),
		FinishedInputs: s.finished.Load(),
	}
}

// Inspect runs fn while holding the tick lock, so fn may read the reasoner
// and clock without racing the worker.
func (s *Scheduler) Inspect(fn func()) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	fn()
}

// Tick runs one loop iteration and reports whether a cycle ran.
func (s *Scheduler) Tick() bool {
	return s.tick(context.Background())
}

// RunCycles walks n cycles synchronously on the calling goroutine, then
// flushes output. It stops early when paused or when ctx is done and
// returns the number of cycles run.
func (s *Scheduler) RunCycles(ctx context.Context, n int) int {
	s.Walk(n)
	ran := 0
	for ran < n && s.walk.Load() > 0 && !s.paused.Load() && ctx.Err() == nil {
		if s.tick(ctx) {
			ran++
		}
	}
	if ran < n {
		s.unwalk(n - ran)
	}
	s.Flush()
	return ran
}

// unwalk cancels up to n pending walk steps.
func (s *Scheduler) unwalk(n int) {
	for {
		w := s.walk.Load()
		next := max(w-int64(n), 0)
		if w == next || s.walk.CompareAndSwap(w, next) {
			return
		}
	}
}

// Flush hands buffered output to the outputs now.
func (s *Scheduler) Flush() {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	s.flush()
}

// Reset clears the reasoner, zeroes the clock and cancels pending walks.
func (s *Scheduler) Reset() {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	s.reasoner.Reset()
	s.clock.Reset()
	s.walk.Store(0)
	s.now.Store(0)
	s.emit(context.Background(), event.Event{Kind: event.Reset})
	s.reasoner.Print("OUT: reset")
	s.logger.Info("scheduler: reset")
}

func (s *Scheduler) tick(ctx context.Context) bool {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	p := s.params.Load()
	if p != s.applied {
		s.apply(p)
	}
	s.clock.PreFrame()

	s.inputs.RemoveFunc(func(in Input) bool {
		var closed bool
		if err := safely(func() error { closed = in.Closed(); return nil }); err != nil {
			s.fail(ctx, fmt.Errorf("input closed check: %w", err))
			return true
		}
		return closed
	})
	if s.walk.Load() == 0 {
		s.pollInputs(ctx, p.InputsMaxPerCycle)
	}
	s.flush()

	if (!s.running.Load() && s.walk.Load() == 0) || s.paused.Load() {
		return false
	}
	s.cycle(ctx)
	s.unwalk(1)
	return true
}

func (s *Scheduler) apply(p *config.Params) {
	s.reasoner.Apply(*p)
	if rt, ok := s.clock.(*clock.RealtimeClock); ok {
		rt.SetLagThreshold(p.LagThreshold())
	}
	s.applied = p
	s.logger.Debug("scheduler: params applied")
}

func (s *Scheduler) pollInputs(ctx context.Context, limit int) {
	produced := false
	remaining := limit
	for _, in := range s.inputs.Snapshot() {
		for remaining > 0 {
			var got bool
			if err := safely(func() error { got = in.NextInput(); return nil }); err != nil {
				s.fail(ctx, fmt.Errorf("input: %w", err))
				break
			}
			if !got {
				break
			}
			produced = true
			remaining--
		}
		if remaining <= 0 {
			break
		}
	}
	s.finished.Store(!produced)
}

func (s *Scheduler) flush() {
	lines := s.reasoner.TakeOutput()
	if len(lines) == 0 {
		return
	}
	for _, out := range s.outputs.Snapshot() {
		if err := safely(func() error { out.NextOutput(lines); return nil }); err != nil {
			s.logger.Error("scheduler: output failed", "error", err)
		}
	}
	s.emit(context.Background(), event.Event{Kind: event.Output, Time: s.now.Load(), Payload: lines})
}

func (s *Scheduler) cycle(ctx context.Context) {
	start := time.Now()
	ctx, span := s.tracer.Start(context.WithoutCancel(ctx), "scheduler.cycle")
	defer span.End()

	s.clock.PreCycle()
	s.clock.Advance()
	now := s.clock.Time()
	s.now.Store(now)
	span.SetAttributes(attribute.Int64("cycle.time", now))
	s.emit(ctx, event.Event{Kind: event.CycleStart, Time: now})

	if err := safely(func() error { return s.reasoner.Cycle(ctx) }); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.fail(ctx, err)
	}

	s.cycles.Add(1)
	s.metrics.cycles.Add(ctx, 1)
	s.metrics.duration.Record(ctx, float64(time.Since(start).Microseconds())/1000)
	s.emit(ctx, event.Event{Kind: event.CycleEnd, Time: now})
}

// emit publishes e and reports listener failures like cycle failures.
func (s *Scheduler) emit(ctx context.Context, e event.Event) {
	if err := s.bus.Emit(e); err != nil {
		s.fail(ctx, err)
	}
}

// fail reports err through the reasoner and counts it. A reasoner that
// panics while reporting is logged and otherwise ignored.
func (s *Scheduler) fail(ctx context.Context, err error) {
	s.metrics.errors.Add(ctx, 1)
	s.logger.Error("scheduler: cycle error", "time", s.now.Load(), "error", err)
	if perr := safely(func() error { s.reasoner.Report(err); return nil }); perr != nil {
		s.logger.Error("scheduler: report failed", "error", perr)
	}
}

// safely calls fn, converting a panic into an error.
func safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// Start launches the worker loop. It does nothing when already started.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)
	go s.loop(ctx, cancel, s.done)
	s.logger.Info("scheduler: started")
}

// Stop ends the worker loop and waits for it. The cycle in flight, if
// any, completes first.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.running.Store(false)
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("scheduler: stopped")
}

// Wait blocks until the loop exits or ctx is done.
func (s *Scheduler) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) loop(ctx context.Context, cancel context.CancelFunc, done chan struct{}) {
	defer close(done)
	defer s.exited(cancel, done)
	for ctx.Err() == nil {
		start := time.Now()
		ran := s.tick(ctx)

		period := s.params.Load().MinTickPeriod.Std()
		switch {
		case period > 0:
			s.sleep(ctx, period-time.Since(start))
		case !ran:
			s.sleep(ctx, idlePeriod)
		}
	}
}

// exited marks the scheduler stopped when the loop ending is still the
// current one. A loop that Stop already detached leaves the state alone, so
// a Start racing with Stop keeps its own loop running.
func (s *Scheduler) exited(cancel context.CancelFunc, done chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cancel()
	if s.done != done {
		return
	}
	s.cancel, s.done = nil, nil
	s.running.Store(false)
}

// sleep waits for d, returning early on Stop, Walk, Resume or new input.
func (s *Scheduler) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	case <-s.wake:
	}
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
