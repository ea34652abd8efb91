package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lazypower/attention/internal/channel"
	"github.com/lazypower/attention/internal/server"
)

var (
	serveInput  string
	servePaused bool
	serveLines  int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and the HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveInput, "input", "", "perceive this file as an input channel")
	serveCmd.Flags().BoolVar(&servePaused, "stopped", false, "do not start the cycle loop; drive it with walk")
	serveCmd.Flags().IntVar(&serveLines, "output-lines", 1000, "output lines kept for /api/output")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rt, err := newRuntime(cfg, newLogger())
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ring := channel.NewRing(serveLines)
	rt.sched.AddOutput(ring)
	queue := channel.NewQueue(rt.mem)
	rt.sched.AddInput(queue)
	if serveInput != "" {
		in, err := channel.OpenFile(serveInput, rt.mem)
		if err != nil {
			return err
		}
		rt.sched.AddInput(in)
	}

	srv := server.New(server.Options{
		Scheduler: rt.sched,
		Memory:    rt.mem,
		Input:     queue,
		Output:    ring,
		Version:   VersionString(),
		Context:   ctx,
		Ping:      rt.ping,
	})
	addr := cfg.ListenAddr()
	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "attention serving on %s\n", addr)
		fmt.Fprintf(os.Stderr, "  store: %s\n", backendName(cfg.Store))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	if !servePaused {
		rt.sched.Start(ctx)
		fmt.Fprintf(os.Stderr, "  scheduler: running\n")
	}
	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "\nshutting down...")
		queue.Close()
		rt.sched.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
