package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapquery/internal/cli/output"
	"github.com/leapstack-labs/leapquery/pkg/core"
)

// NewResultsCommand creates the results command group.
func NewResultsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Manage result tables",
		Long: `List, inspect and delete the tables produced by queries.

Result tables live in the results store configured under results in
leapquery.yaml. Each one records the condition and source table it was
filtered from.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEngine(cmd, runResultsList)
		},
	}

	cmd.AddCommand(newResultsListCommand())
	cmd.AddCommand(newResultsShowCommand())
	cmd.AddCommand(newResultsDeleteCommand())
	cmd.AddCommand(newResultsClearCommand())
	return cmd
}

// withEngine runs fn with a command context and cleans up after it.
func withEngine(cmd *cobra.Command, fn func(context.Context, *CommandContext) error) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()
	return fn(cmd.Context(), cmdCtx)
}

func newResultsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List result tables",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEngine(cmd, runResultsList)
		},
	}
}

func runResultsList(ctx context.Context, cmdCtx *CommandContext) error {
	results, err := cmdCtx.Engine.Results(ctx)
	if err != nil {
		return err
	}

	infos := make([]output.ResultInfo, len(results))
	for i, res := range results {
		infos[i] = resultInfo(res)
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(infos)
	}
	rows := make([][]any, len(infos))
	for i, info := range infos {
		rows[i] = []any{info.Name, info.Rows, output.Truncate(info.Condition, 40), info.Source, info.CreatedAt.Format("2006-01-02 15:04:05")}
	}
	r.Table([]string{"name", "rows", "condition", "source", "created"}, rows)
	return nil
}

func resultInfo(res core.ResultTable) output.ResultInfo {
	return output.ResultInfo{
		Name:      res.Name,
		Title:     res.Title,
		Condition: res.Provenance.Condition,
		Source:    res.Provenance.Source.String(),
		Rows:      res.Rows,
		CreatedAt: res.CreatedAt,
	}
}

func newResultsShowCommand() *cobra.Command {
	var limit int64
	cmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Show the provenance and first rows of a result table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, cmdCtx *CommandContext) error {
				return runResultsShow(ctx, cmdCtx, args[0], limit)
			})
		},
	}
	cmd.Flags().Int64VarP(&limit, "limit", "l", 20, "Number of rows to show")
	return cmd
}

func runResultsShow(ctx context.Context, cmdCtx *CommandContext, name string, limit int64) error {
	results, err := cmdCtx.Engine.Results(ctx)
	if err != nil {
		return err
	}
	var res *core.ResultTable
	for i := range results {
		if results[i].Name == name {
			res = &results[i]
			break
		}
	}
	if res == nil {
		return core.NewError(core.ErrTableNotFound, "show", name, nil)
	}

	header, rows, err := readRows(ctx, cmdCtx.Engine.ResultsSource(), "/"+name, limit)
	if err != nil {
		return err
	}

	r := cmdCtx.Renderer
	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(struct {
			output.ResultInfo
			Columns []string `json:"columns"`
			Rows    [][]any  `json:"rows"`
		}{resultInfo(*res), header, rows})
	case output.ModeMarkdown:
		r.Println(output.FormatHeader(2, res.Name))
		r.Println("")
		r.Println(output.FormatKeyValue("Title", res.Title))
		r.Println(output.FormatKeyValue("Condition", res.Provenance.Condition))
		r.Println(output.FormatKeyValue("Source", res.Provenance.Source.String()))
		r.Println(output.FormatKeyValue("Rows", fmt.Sprint(res.Rows)))
		r.Println("")
	default:
		styles := r.Styles()
		r.Println(styles.Header.Render(res.Name))
		r.Printf("  %s %s\n", styles.Muted.Render("title:    "), res.Title)
		r.Printf("  %s %s\n", styles.Muted.Render("source:   "), res.Provenance.Source)
		r.Printf("  %s %d\n", styles.Muted.Render("rows:     "), res.Rows)
		r.Printf("  %s %s\n", styles.Muted.Render("created:  "), res.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	r.Table(header, rows)
	if int64(len(rows)) < res.Rows {
		r.Println(r.Styles().Muted.Render(fmt.Sprintf("... %d more rows", res.Rows-int64(len(rows)))))
	}
	return nil
}

// readRows reads up to limit rows of a table.
func readRows(ctx context.Context, src core.Source, nodepath string, limit int64) ([]string, [][]any, error) {
	info, err := src.Describe(ctx, nodepath)
	if err != nil {
		return nil, nil, err
	}
	stop := min(limit, info.RowCount)
	if stop <= 0 {
		return info.Schema.Names, nil, nil
	}
	it, err := src.ReadRows(ctx, nodepath, core.RowRange{Start: 0, Stop: stop, Step: 1})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = it.Close() }()

	var rows [][]any
	for it.Next() {
		rows = append(rows, []any(it.Row()))
	}
	if err := it.Err(); err != nil {
		return nil, nil, err
	}
	return info.Schema.Names, rows, nil
}

func newResultsDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <name>...",
		Aliases: []string{"rm"},
		Short:   "Delete result tables",
		Long: `Delete result tables and free their names.

A result table that is itself being queried cannot be deleted.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, cmdCtx *CommandContext) error {
				for _, name := range args {
					if err := cmdCtx.Engine.DeleteResult(ctx, name); err != nil {
						return err
					}
					cmdCtx.Renderer.Printf("Deleted %s\n", name)
				}
				return nil
			})
		},
	}
}

func newResultsClearCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every result table",
		Long: `Delete every result table and restart result name numbering.

Asks for confirmation unless --yes is given. Refused while any query is
running.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEngine(cmd, func(ctx context.Context, cmdCtx *CommandContext) error {
				confirm := func() bool {
					return yes || askConfirm(cmd.InOrStdin(), cmd.OutOrStdout(), "Delete all result tables?")
				}
				n, err := cmdCtx.Engine.DeleteAllResults(ctx, confirm)
				if err != nil {
					return err
				}
				cmdCtx.Renderer.Printf("Deleted %d result tables\n", n)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

// askConfirm asks a yes/no question; anything but y or yes is no.
func askConfirm(in io.Reader, out io.Writer, question string) bool {
	_, _ = fmt.Fprintf(out, "%s [y/N] ", question)
	sc := bufio.NewScanner(in)
	if !sc.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(sc.Text()))
	return answer == "y" || answer == "yes"
}
