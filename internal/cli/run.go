package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/lazypower/attention/internal/channel"
	"github.com/lazypower/attention/internal/config"
	"github.com/lazypower/attention/internal/scheduler"
)

var (
	runCycles  int
	runPerLine int
)

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Perceive a file (or stdin) and run cycles in-process",
	Long: "Run reads perception lines from file, or stdin when file is omitted or \"-\", " +
		"runs --steps cycles after each line, then --cycles more, printing output as it goes.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		path := "-"
		if len(args) == 1 {
			path = args[0]
		}
		ran, err := runBatch(ctx, cfg, path, cmd.InOrStdin(), cmd.OutOrStdout(), batchOptions{
			steps:  runPerLine,
			cycles: runCycles,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "ran %d cycles\n", ran)
		return nil
	},
}

func init() {
	runCmd.Flags().IntVarP(&runCycles, "cycles", "n", 100, "cycles to run after the input is drained")
	runCmd.Flags().IntVar(&runPerLine, "steps", 1, "cycles to run after each input line")
}

type batchOptions struct {
	steps  int
	cycles int
}

// runBatch drives a stopped scheduler by hand: each tick polls the inputs,
// then a short walk lets the memory digest what arrived.
func runBatch(ctx context.Context, cfg config.Config, path string, stdin io.Reader, out io.Writer, opts batchOptions) (int, error) {
	if cfg.Params.InputsMaxPerCycle == 0 {
		return 0, fmt.Errorf("run: inputs_max_per_cycle is 0, no input would be read")
	}
	rt, err := newRuntime(cfg, newLogger())
	if err != nil {
		return 0, err
	}
	defer rt.Close()

	writer := channel.NewWriter(out)
	rt.sched.AddOutput(writer)

	var input scheduler.Input
	if path == "-" {
		q := channel.NewQueue(rt.mem)
		if err := channel.Pump(ctx, stdin, q); err != nil {
			return 0, err
		}
		input = q
	} else {
		r, err := channel.OpenFile(path, rt.mem)
		if err != nil {
			return 0, err
		}
		defer r.Close()
		input = r
	}
	rt.sched.AddInput(input)

	ran := 0
	for ctx.Err() == nil {
		rt.sched.Tick()
		if st := rt.sched.Status(); st.Inputs == 0 && st.FinishedInputs {
			break
		}
		if opts.steps > 0 {
			ran += rt.sched.RunCycles(ctx, opts.steps)
		}
	}
	if r, ok := input.(*channel.Reader); ok && r.Err() != nil {
		return ran, r.Err()
	}
	if opts.cycles > 0 {
		ran += rt.sched.RunCycles(ctx, opts.cycles)
	}
	rt.sched.Flush()
	return ran, writer.Err()
}
