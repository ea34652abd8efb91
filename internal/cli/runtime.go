package cli

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"

	"github.com/lazypower/attention/internal/config"
	"github.com/lazypower/attention/internal/engine"
	"github.com/lazypower/attention/internal/event"
	"github.com/lazypower/attention/internal/scheduler"
	"github.com/lazypower/attention/internal/store"
)

const instrumentation = "github.com/lazypower/attention"

// runtime is an in-process memory and scheduler over the configured
// overflow store.
type runtime struct {
	mem     *engine.Memory
	sched   *scheduler.Scheduler
	backend store.Backend
}

func newRuntime(cfg config.Config, logger *slog.Logger) (*runtime, error) {
	backend, err := store.OpenBackend(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	bus := event.NewBus()
	clk := scheduler.NewClock(cfg.Params, bus)
	opts := engine.Options{
		Params:          cfg.Params,
		Clock:           clk,
		Bus:             bus,
		OverflowTimeout: cfg.Store.Timeout.Std(),
		Logger:          logger,
		Meter:           otel.Meter(instrumentation),
	}
	if backend != nil {
		opts.Overflow = backend
	}
	mem := engine.New(opts)
	sched := scheduler.New(scheduler.Options{
		Params:   cfg.Params,
		Reasoner: mem,
		Clock:    clk,
		Bus:      bus,
		Logger:   logger,
		Meter:    otel.Meter(instrumentation),
		Tracer:   otel.Tracer(instrumentation),
	})
	return &runtime{mem: mem, sched: sched, backend: backend}, nil
}

// ping checks the overflow store with a read of a key nobody writes.
func (r *runtime) ping(ctx context.Context) error {
	if r.backend == nil {
		return nil
	}
	_, err := r.backend.Get(ctx, "health-check")
	return err
}

func (r *runtime) Close() error {
	r.sched.Stop()
	if r.backend == nil {
		return nil
	}
	return r.backend.Close()
}

func backendName(cfg config.StoreConfig) string {
	switch cfg.Backend {
	case "":
		return "none (forgotten concepts are dropped)"
	case "sqlite":
		if cfg.Path == "" {
			return "sqlite (default path)"
		}
		return "sqlite " + cfg.Path
	case "redis":
		return "redis " + cfg.RedisURL
	case "etcd":
		return fmt.Sprintf("etcd %v", cfg.Endpoints)
	default:
		return cfg.Backend
	}
}
