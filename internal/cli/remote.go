package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/lazypower/attention/internal/server"
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

func printStatus(w io.Writer, st *server.StatusResponse) {
	t := newTable(w)
	t.AppendHeader(table.Row{"State", "Time", "Cycles", "Walk", "Inputs", "Outputs", "Concepts", "Capacity", "Overflowed", "Novel"})
	t.AppendRow(table.Row{
		st.Scheduler.State, st.Scheduler.Time, st.Scheduler.Cycles, st.Scheduler.Walk,
		st.Scheduler.Inputs, st.Scheduler.Outputs,
		st.Memory.Concepts, st.Memory.Capacity, st.Memory.Overflowed, st.Memory.NovelTasks,
	})
	t.Render()
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show scheduler and memory status of a running server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		st, err := c.Status(cmd.Context())
		if err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), st)
		return nil
	},
}

func controlCmds() []*cobra.Command {
	short := map[string]string{
		"start":  "Start the server's cycle loop",
		"stop":   "Stop the server's cycle loop",
		"pause":  "Pause cycles without stopping the loop",
		"resume": "Resume a paused loop",
		"reset":  "Forget everything and zero the clock",
	}
	var cmds []*cobra.Command
	for _, action := range []string{"start", "stop", "pause", "resume", "reset"} {
		cmds = append(cmds, &cobra.Command{
			Use:   action,
			Short: short[action],
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := newClient()
				if err != nil {
					return err
				}
				st, err := c.Control(cmd.Context(), action)
				if err != nil {
					return err
				}
				printStatus(cmd.OutOrStdout(), st)
				return nil
			},
		})
	}
	return cmds
}

var walkCmd = &cobra.Command{
	Use:   "walk N",
	Short: "Run N cycles on the server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("walk: N must be a positive integer, got %q", args[0])
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		res, err := c.Walk(cmd.Context(), n)
		if err != nil {
			return err
		}
		if res.Queued > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "queued %d cycles\n", res.Queued)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "ran %d cycles\n", res.Ran)
		}
		printStatus(cmd.OutOrStdout(), &res.Status)
		return nil
	},
}

var sayCmd = &cobra.Command{
	Use:   "say TEXT...",
	Short: "Send a perception line to the server (\"-\" reads stdin)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		if text == "-" {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			text = string(data)
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		res, err := c.Say(cmd.Context(), text)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if res.Queued > 0 {
			fmt.Fprintf(out, "queued %d\n", res.Queued)
		} else {
			fmt.Fprintf(out, "accepted %d\n", res.Accepted)
		}
		for _, r := range res.Rejected {
			fmt.Fprintf(os.Stderr, "rejected: %s\n", r)
		}
		return nil
	},
}

var conceptsLimit int

var conceptsCmd = &cobra.Command{
	Use:   "concepts [TERM]",
	Short: "List concepts in memory, or show one with its links",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		if len(args) == 1 {
			d, err := c.Concept(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if d == nil {
				return fmt.Errorf("concept %q not found", args[0])
			}
			fmt.Fprintf(out, "%s %s (created at %d)\n", d.Term, d.Budget, d.Created)
			t := newTable(out)
			t.AppendHeader(table.Row{"Kind", "Term", "Parent", "Budget"})
			for _, l := range d.Tasks {
				t.AppendRow(table.Row{"task", l.Term, l.Parent, l.Budget})
			}
			for _, l := range d.Links {
				t.AppendRow(table.Row{"term", l.Term, "", l.Budget})
			}
			t.Render()
			return nil
		}

		concepts, err := c.Concepts(cmd.Context(), conceptsLimit)
		if err != nil {
			return err
		}
		t := newTable(out)
		t.AppendHeader(table.Row{"Term", "Priority", "Durability", "Quality", "Tasks", "Links"})
		t.SetColumnConfigs([]table.ColumnConfig{
			{Number: 2, Align: text.AlignRight},
			{Number: 3, Align: text.AlignRight},
			{Number: 4, Align: text.AlignRight},
		})
		for _, s := range concepts {
			t.AppendRow(table.Row{
				s.Term,
				fmt.Sprintf("%.3f", s.Budget.Priority),
				fmt.Sprintf("%.3f", s.Budget.Durability),
				fmt.Sprintf("%.3f", s.Budget.Quality),
				s.TaskLinks, s.TermLinks,
			})
		}
		t.AppendFooter(table.Row{fmt.Sprintf("%d concepts", len(concepts))})
		t.Render()
		return nil
	},
}

var paramsSet []string

var paramsCmd = &cobra.Command{
	Use:   "params",
	Short: "Show or change the server's runtime parameters",
	Long:  "Without --set, prints the parameters as JSON. --set name=value (repeatable) changes them.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		var result any
		if len(paramsSet) == 0 {
			result, err = c.Params(cmd.Context())
		} else {
			patch := make(map[string]any, len(paramsSet))
			for _, kv := range paramsSet {
				name, raw, ok := strings.Cut(kv, "=")
				if !ok {
					return fmt.Errorf("params: %q is not name=value", kv)
				}
				patch[name] = parseValue(raw)
			}
			result, err = c.SetParams(cmd.Context(), patch)
		}
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	conceptsCmd.Flags().IntVarP(&conceptsLimit, "limit", "n", 50, "maximum concepts to list (0 for all)")
	paramsCmd.Flags().StringArrayVar(&paramsSet, "set", nil, "name=value to change")
}

// parseValue turns a flag value into the JSON type it most likely means.
func parseValue(raw string) any {
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return v
	}
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		return v
	}
	if v, err := strconv.ParseBool(raw); err == nil {
		return v
	}
	return raw
}
