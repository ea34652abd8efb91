package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/attention/internal/channel"
	"github.com/lazypower/attention/internal/clock"
	"github.com/lazypower/attention/internal/config"
	"github.com/lazypower/attention/internal/engine"
	"github.com/lazypower/attention/internal/event"
	"github.com/lazypower/attention/internal/scheduler"
	"github.com/lazypower/attention/internal/server"
)

func setup(t *testing.T) *Client {
	t.Helper()
	p := config.DefaultParams()
	p.Seed = 1
	clk := clock.NewCycleClock()
	bus := event.NewBus()
	mem := engine.New(engine.Options{Params: p, Clock: clk, Bus: bus})
	sched := scheduler.New(scheduler.Options{Params: p, Reasoner: mem, Clock: clk, Bus: bus})
	ring := channel.NewRing(50)
	sched.AddOutput(ring)
	t.Cleanup(sched.Stop)

	ts := httptest.NewServer(server.New(server.Options{
		Scheduler: sched,
		Memory:    mem,
		Output:    ring,
		Version:   "test",
	}))
	t.Cleanup(ts.Close)
	return New(ts.URL)
}

func TestClientRoundTrip(t *testing.T) {
	c := setup(t)
	ctx := context.Background()

	assert.True(t, c.Healthy(ctx))

	in, err := c.Say(ctx, "sun & moon 0.9\nstar")
	require.NoError(t, err)
	assert.Equal(t, 2, in.Accepted)
	assert.Empty(t, in.Rejected)

	walk, err := c.Walk(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, walk.Ran)
	assert.Equal(t, int64(2), walk.Status.Scheduler.Time)

	concepts, err := c.Concepts(ctx, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, concepts)

	d, err := c.Concept(ctx, "sun & moon")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "sun & moon", d.Term)

	d, err = c.Concept(ctx, "nowhere")
	require.NoError(t, err)
	assert.Nil(t, d)

	lines, err := c.Output(ctx, 10)
	require.NoError(t, err)
	assert.Contains(t, lines, "IN: star $0.80;0.50;0.50$")

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "stopped", st.Scheduler.State)
}

func TestClientControlAndParams(t *testing.T) {
	c := setup(t)
	ctx := context.Background()

	st, err := c.Control(ctx, "pause")
	require.NoError(t, err)
	assert.Equal(t, "stopped", st.Scheduler.State, "pause does not start the loop")

	p, err := c.SetParams(ctx, map[string]any{"concepts_fired_per_cycle": 3})
	require.NoError(t, err)
	assert.Equal(t, 3, p.ConceptsFiredPerCycle)

	got, err := c.Params(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, got.ConceptsFiredPerCycle)

	_, err = c.SetParams(ctx, map[string]any{"duration": 0})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.Contains(t, se.Message, "duration")

	_, err = c.Control(ctx, "explode")
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Code)
}

func TestClientUnreachable(t *testing.T) {
	c := New("http://127.0.0.1:1")
	assert.False(t, c.Healthy(context.Background()))
	_, err := c.Status(context.Background())
	assert.Error(t, err)
}
