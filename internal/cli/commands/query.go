package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapquery/internal/cli/output"
	"github.com/leapstack-labs/leapquery/internal/descriptor"
	"github.com/leapstack-labs/leapquery/pkg/core"
)

// QueryOptions holds options for the query command.
type QueryOptions struct {
	Where   string
	Range   string
	Name    string
	Indices string
}

// NewQueryCommand creates the query command.
func NewQueryCommand() *cobra.Command {
	opts := &QueryOptions{}

	cmd := &cobra.Command{
		Use:   "query <database> <table>",
		Short: "Filter a table into a new result table",
		Long: `Run a filter condition over the rows of a table and store the matching
rows in a new table of the results store.

The condition is a Starlark expression over the columns listed by
'leapquery fields'. Rows are selected from start (inclusive) to stop
(exclusive) every step rows. The result table keeps the source columns and,
with --indices, an extra column holding the source row of every match.

Without --where on a terminal the query is collected interactively, with the
previous condition on the same table pre-filled. Ctrl-C while the query runs
cancels it.`,
		Example: `  # Rows where a is greater than 5
  leapquery query data/sensors.db /readings --where "a > 5"

  # Every 10th row of the first 1000, into a named table
  leapquery query sensors /readings -w "temp > 30.5" --range 0:1000:10 --name hot

  # Columns with spaces in their names are used through their alias
  leapquery query sensors /readings -w "col0 < 1 and a != 3"

  # Prompt for the query
  leapquery query sensors /readings`,
		Args:              cobra.ExactArgs(2),
		ValidArgsFunction: sourceCompletion,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, args[0], args[1], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Where, "where", "w", "", "Filter condition")
	cmd.Flags().StringVarP(&opts.Range, "range", "r", "", "Rows to scan as start:stop:step (default: all rows)")
	cmd.Flags().StringVarP(&opts.Name, "name", "n", "", "Result table name (default: Filtered_<table><n>)")
	cmd.Flags().StringVar(&opts.Indices, "indices", "", "Add a column with this name holding the source row of every match")

	return cmd
}

func runQuery(cmd *cobra.Command, database, table string, opts *QueryOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	src, err := openSource(ctx, cmdCtx, database)
	if err != nil {
		return err
	}

	input, closeInput, err := queryInput(cmdCtx.Renderer, opts)
	if err != nil {
		return err
	}
	defer closeInput()

	h, err := cmdCtx.Engine.NewQuery(ctx, src, table, input)
	if errors.Is(err, core.ErrCancelled) {
		return nil
	}
	if err != nil {
		return err
	}

	c, err := h.Wait(context.Background())
	if err != nil {
		return err
	}
	clean := c.Completed || errors.Is(c.Err, core.ErrCancelled)
	if clean || cmdCtx.Renderer.EffectiveMode() == output.ModeJSON {
		renderCompletion(cmdCtx.Renderer, c)
	}
	if clean {
		return nil
	}
	return c.Err
}

// queryInput builds the input from flags, or an interactive prompt when
// no condition was given on a terminal.
func queryInput(r *output.Renderer, opts *QueryOptions) (core.Input, func(), error) {
	if opts.Where != "" {
		start, stop, step, err := ParseRange(opts.Range)
		if err != nil {
			return nil, nil, err
		}
		return descriptor.StaticInput{
			Condition:     opts.Where,
			Start:         start,
			Stop:          stop,
			Step:          step,
			ResultName:    opts.Name,
			IndicesColumn: opts.Indices,
		}, func() {}, nil
	}

	if !output.IsTerminal(os.Stdin) {
		return nil, nil, fmt.Errorf("no condition given\nHint: pass one with --where or run on a terminal to be prompted")
	}
	rl, err := readline.NewEx(&readline.Config{InterruptPrompt: "^C", EOFPrompt: "exit"})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize prompt: %w", err)
	}
	return NewPromptInput(rl, r), func() { _ = rl.Close() }, nil
}

// renderCompletion prints the outcome of one query.
func renderCompletion(r *output.Renderer, c core.Completion) {
	if r.EffectiveMode() == output.ModeJSON {
		out := output.QueryOutput{
			ID:         c.QueryID,
			Source:     c.Source.String(),
			Status:     string(c.Status()),
			Scanned:    c.Scanned,
			Matched:    c.Matched,
			Indices:    c.Coordinates,
			DurationMS: c.Duration.Milliseconds(),
		}
		if c.Result != nil {
			out.Result = c.Result.Name
			out.Title = c.Result.Title
		}
		if c.Err != nil {
			out.Error = c.Err.Error()
		}
		_ = r.JSON(out)
		return
	}

	styles := r.Styles()
	switch {
	case c.Completed:
		r.Printf("%s %s: %d of %d rows matched in %s\n",
			styles.StatusCompleted.Render("✓"),
			styles.Bold.Render(c.Result.Name),
			c.Matched, c.Scanned, c.Duration.Round(time.Millisecond))
		r.Println(styles.Muted.Render("  " + c.Result.Title))
	case errors.Is(c.Err, core.ErrCancelled):
		r.Println(styles.Muted.Render(fmt.Sprintf("query on %s cancelled", c.Source)))
	default:
		r.Errorf("✗ query on %s failed: %v", c.Source, c.Err)
	}
}
