package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/lazypower/attention/internal/bag"
	"github.com/lazypower/attention/internal/budget"
	"github.com/lazypower/attention/internal/config"
	"github.com/lazypower/attention/internal/event"
)

// Options configures a Memory.
type Options struct {
	Params config.Params
	// Deriver defaults to DefaultRules.
	Deriver Deriver
	// Clock must be the clock the scheduler advances.
	Clock bag.Clock
	Bus   *event.Bus
	// Overflow, when set, turns the concept bag into a CacheBag that parks
	// forgotten concepts in this store instead of dropping them.
	Overflow        bag.KV
	OverflowTimeout time.Duration
	Logger          *slog.Logger
	Meter           metric.Meter
}

// conceptBag is what Memory needs from either bag flavour.
type conceptBag interface {
	bag.Bag[string, *Concept]
	SetForgetting(budget.Forgetting)
	SetMerge(budget.MergePolicy)
	Relevel(key string) bool
	LevelSizes() []int
}

// Memory is the reasoning working memory. Every method must be called from
// the scheduler's worker, or under Scheduler.Inspect.
type Memory struct {
	params  config.Params
	deriver Deriver
	clock   bag.Clock
	bus     *event.Bus
	logger  *slog.Logger
	metrics *memoryMetrics

	overflow bag.KV
	timeout  time.Duration
	concepts conceptBag
	novel    *bag.Accumulator[string, *Task]

	out []string
}

// New creates a Memory.
func New(opts Options) *Memory {
	if opts.Deriver == nil {
		opts.Deriver = DefaultRules()
	}
	if opts.Clock == nil {
		opts.Clock = stoppedClock{}
	}
	if opts.Bus == nil {
		opts.Bus = event.NewBus()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Meter == nil {
		opts.Meter = noop.NewMeterProvider().Meter("attention")
	}
	metrics, err := newMemoryMetrics(opts.Meter)
	if err != nil {
		opts.Logger.Warn("memory: metrics disabled", "error", err)
		metrics, _ = newMemoryMetrics(noop.NewMeterProvider().Meter("attention"))
	}

	m := &Memory{
		params:   opts.Params,
		deriver:  opts.Deriver,
		clock:    opts.Clock,
		bus:      opts.Bus,
		logger:   opts.Logger,
		metrics:  metrics,
		overflow: opts.Overflow,
		timeout:  opts.OverflowTimeout,
	}
	m.concepts = m.newConceptBag()
	m.novel = bag.NewAccumulator[string, *Task](m.params.Merge)
	return m
}

type stoppedClock struct{}

func (stoppedClock) Time() int64 { return 0 }

func (m *Memory) newConceptBag() conceptBag {
	p := &m.params
	opts := bag.Options{
		Capacity: p.ConceptBagSize,
		Levels:   p.ConceptBagLevels,
		Merge:    p.Merge,
		Forget:   p.Forgetting(p.ConceptForgetDurations),
		Clock:    m.clock,
		Seed:     p.Seed,
	}
	if m.overflow == nil {
		return bag.NewLevelBag[string, *Concept](opts)
	}
	store := &bag.KVStore[string, *Concept]{KV: m.overflow, Codec: conceptCodec{m: m}}
	return bag.NewCacheBag[string, *Concept](store, bag.CacheOptions{
		Options: opts,
		Timeout: m.timeout,
		OnError: func(err error) {
			m.logger.Warn("memory: overflow store", "error", err)
			m.Report(err)
		},
	})
}

func (m *Memory) newConcept(term string, b budget.Budget) *Concept {
	p := &m.params
	// link bags get their own seeds so they do not roll in lockstep
	seed := p.Seed ^ uint64(len(term))<<32
	c := &Concept{
		Term:    term,
		Created: m.clock.Time(),
		TaskLinks: bag.NewLevelBag[string, *TaskLink](bag.Options{
			Capacity: p.TaskLinkBagSize,
			Levels:   p.TaskLinkBagLevels,
			Merge:    p.Merge,
			Forget:   p.Forgetting(p.TaskLinkForgetDurations),
			Clock:    m.clock,
			Seed:     seed + 1,
		}),
		TermLinks: bag.NewLevelBag[string, *TermLink](bag.Options{
			Capacity: p.TermLinkBagSize,
			Levels:   p.TermLinkBagLevels,
			Merge:    p.Merge,
			Forget:   p.Forgetting(p.TermLinkForgetDurations),
			Clock:    m.clock,
			Seed:     seed + 2,
		}),
		b: b,
	}
	c.b.Clamp()
	return c
}

// Params returns the parameters in effect.
func (m *Memory) Params() config.Params { return m.params }

// Apply switches to new parameters. Forgetting and merge policy take effect
// immediately on every bag and concepts are re-leveled; capacities and
// levels take effect on Reset.
func (m *Memory) Apply(p config.Params) {
	m.params = p
	m.concepts.SetForgetting(p.Forgetting(p.ConceptForgetDurations))
	m.concepts.SetMerge(p.Merge)
	m.concepts.ForEach(func(c *Concept) {
		c.TaskLinks.SetForgetting(p.Forgetting(p.TaskLinkForgetDurations))
		c.TaskLinks.SetMerge(p.Merge)
		c.TermLinks.SetForgetting(p.Forgetting(p.TermLinkForgetDurations))
		c.TermLinks.SetMerge(p.Merge)
	})
	next := bag.NewAccumulator[string, *Task](p.Merge)
	for _, t := range m.novel.HighestFirst() {
		next.Add(t)
	}
	m.novel = next
	m.Relevel()
}

// Perceive parses a perception line and queues the task for the next
// cycle. Blank lines and comments are ignored. Malformed lines are reported
// on the output and returned.
func (m *Memory) Perceive(line string) error {
	task, ok, err := ParseTask(line)
	if err != nil {
		m.Report(err)
		return err
	}
	if ok {
		m.Accept(task)
	}
	return nil
}

// Accept queues task for the next cycle.
func (m *Memory) Accept(task *Task) {
	task.Created = m.clock.Time()
	m.novel.Add(task)
	m.emit(event.Input, task)
	m.Print("IN: " + task.String())
}

// Cycle runs one reasoning cycle: novel tasks become task links in their
// concepts, then up to ConceptsFiredPerCycle concepts are fired. A deriver
// failure ends the cycle early; the fired concept is put back either way.
func (m *Memory) Cycle(ctx context.Context) error {
	if dropped := m.novel.Limit(m.params.NovelTaskBagSize); dropped > 0 {
		m.metrics.dropped.Add(ctx, int64(dropped))
	}
	for _, t := range m.novel.HighestFirst() {
		m.activate(t)
	}
	m.novel.Clear()

	for i := 0; i < m.params.ConceptsFiredPerCycle; i++ {
		c, ok := m.concepts.TakeOut()
		if !ok {
			break
		}
		if err := m.fire(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) activate(t *Task) {
	c := m.conceptFor(t.Term, t.b)
	if c == nil {
		return
	}
	c.TaskLinks.PutIn(newTaskLink(t))
	if t.Parent == "" || t.Parent == t.Term {
		return
	}
	c.TermLinks.PutIn(newTermLink(t.Parent, t.b))
	if parent, ok := m.concepts.Get(t.Parent); ok {
		parent.TermLinks.PutIn(newTermLink(t.Term, t.b))
	}
}

// conceptFor returns the concept for term, creating it when there is room.
// It returns nil when the bag turns the new concept away.
func (m *Memory) conceptFor(term string, b budget.Budget) *Concept {
	if c, ok := m.concepts.Get(term); ok {
		budget.Merge(c.Budget(), b, m.params.Merge)
		m.concepts.Relevel(term)
		return c
	}
	c := m.newConcept(term, b)
	evicted, ok := m.concepts.PutIn(c)
	if ok {
		if evicted == c {
			m.logger.Debug("memory: concept rejected", "term", term)
			return nil
		}
		m.forgotten(evicted)
	}
	m.metrics.created.Add(context.Background(), 1)
	m.emit(event.ConceptCreated, c)
	return c
}

func (m *Memory) fire(ctx context.Context, c *Concept) error {
	defer m.restore(c)

	link, ok := c.TaskLinks.TakeOut()
	if !ok {
		return nil
	}
	defer c.TaskLinks.PutIn(link)

	p := Premise{Concept: c, TaskLink: link, Time: m.clock.Time()}
	if tl, ok := c.TermLinks.PeekNext(); ok {
		p.TermLink = tl
	}
	m.metrics.fired.Add(ctx, 1)

	tasks, err := m.deriver.Derive(ctx, p)
	if err != nil {
		return fmt.Errorf("derive %s: %w", c.Term, err)
	}
	for t := range tasks {
		m.derived(ctx, t)
	}
	return nil
}

func (m *Memory) restore(c *Concept) {
	if evicted, ok := m.concepts.PutIn(c); ok {
		m.forgotten(evicted)
	}
}

func (m *Memory) derived(ctx context.Context, t *Task) {
	t.Created = m.clock.Time()
	m.novel.Add(t)
	m.metrics.derived.Add(ctx, 1)
	if t.b.AboveThreshold(float64(m.params.SilenceLevel) / 100) {
		m.Print("OUT: " + t.String())
	}
}

func (m *Memory) forgotten(c *Concept) {
	m.metrics.forgotten.Add(context.Background(), 1)
	m.logger.Debug("memory: concept forgotten", "term", c.Term)
	m.emit(event.ConceptForgotten, c)
}

func (m *Memory) emit(kind event.Kind, payload any) {
	if err := m.bus.Emit(event.Event{Kind: kind, Time: m.clock.Time(), Payload: payload}); err != nil {
		m.logger.Warn("memory: listener failed", "error", err)
	}
}

// Print buffers an output line.
func (m *Memory) Print(line string) {
	m.out = append(m.out, line)
}

// Report buffers an ERROR line for err and emits an Error event.
func (m *Memory) Report(err error) {
	m.emit(event.Error, err)
	m.Print("ERROR: " + err.Error())
}

// TakeOutput returns the buffered output lines and empties the buffer.
func (m *Memory) TakeOutput() []string {
	out := m.out
	m.out = nil
	return out
}

// Reset forgets everything, including overflowed concepts, and rebuilds
// the bags with the current capacities.
func (m *Memory) Reset() {
	m.concepts.Clear()
	m.concepts = m.newConceptBag()
	m.novel = bag.NewAccumulator[string, *Task](m.params.Merge)
	m.out = nil
}
