package scheduler

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

type schedulerMetrics struct {
	cycles   metric.Int64Counter
	errors   metric.Int64Counter
	lags     metric.Int64Counter
	duration metric.Float64Histogram
}

func newSchedulerMetrics(meter metric.Meter) (*schedulerMetrics, error) {
	m := &schedulerMetrics{}
	var err error

	m.cycles, err = meter.Int64Counter("attention.cycles",
		metric.WithDescription("Reasoning cycles run"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, fmt.Errorf("create cycles counter: %w", err)
	}

	m.errors, err = meter.Int64Counter("attention.cycle.errors",
		metric.WithDescription("Failures caught by the worker loop"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, fmt.Errorf("create errors counter: %w", err)
	}

	m.lags, err = meter.Int64Counter("attention.lags",
		metric.WithDescription("Frames that overran the realtime threshold"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, fmt.Errorf("create lags counter: %w", err)
	}

	m.duration, err = meter.Float64Histogram("attention.cycle.duration",
		metric.WithDescription("Wall time of one reasoning cycle"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}
	return m, nil
}
