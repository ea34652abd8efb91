package engine

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

type memoryMetrics struct {
	created   metric.Int64Counter
	forgotten metric.Int64Counter
	fired     metric.Int64Counter
	derived   metric.Int64Counter
	dropped   metric.Int64Counter
}

func newMemoryMetrics(meter metric.Meter) (*memoryMetrics, error) {
	m := &memoryMetrics{}
	var err error
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.created, "attention.concepts.created", "Concepts admitted to memory"},
		{&m.forgotten, "attention.concepts.forgotten", "Concepts evicted from memory"},
		{&m.fired, "attention.concepts.fired", "Concepts fired with a task link"},
		{&m.derived, "attention.tasks.derived", "Tasks produced by the deriver"},
		{&m.dropped, "attention.tasks.dropped", "Novel tasks trimmed before activation"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit("1"))
		if err != nil {
			return nil, fmt.Errorf("create %s counter: %w", c.name, err)
		}
	}
	return m, nil
}
