package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapquery/internal/cli/output"
	"github.com/leapstack-labs/leapquery/pkg/core"
)

// NewTablesCommand creates the tables command.
func NewTablesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tables <database>",
		Short: "List the tables of a database",
		Long: `List the tables of a SQLite, DuckDB, PostgreSQL or YAML fixture database
with their row and column counts.

The database is a file path, a postgres:// URL or a name from the sources
section of leapquery.yaml. Use "results" for the results store.`,
		Example: `  leapquery tables data/sensors.db
  leapquery tables postgres://analyst@db.example.com/lab
  leapquery tables results --output json`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: sourceCompletion,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			return runTables(cmd.Context(), cmdCtx, args[0])
		},
	}
}

func runTables(ctx context.Context, cmdCtx *CommandContext, name string) error {
	src, err := openSource(ctx, cmdCtx, name)
	if err != nil {
		return err
	}
	infos, err := describeTables(ctx, src)
	if err != nil {
		return err
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(infos)
	}
	rows := make([][]any, len(infos))
	for i, info := range infos {
		rows[i] = []any{info.Path, info.Rows, info.Columns, info.Title}
	}
	r.Table([]string{"table", "rows", "columns", "title"}, rows)
	return nil
}

func describeTables(ctx context.Context, src core.Source) ([]output.TableInfo, error) {
	paths, err := src.Tables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	infos := make([]output.TableInfo, 0, len(paths))
	for _, p := range paths {
		info, err := src.Describe(ctx, p)
		if err != nil {
			return nil, err
		}
		infos = append(infos, output.TableInfo{
			Path:    p,
			Title:   info.Title,
			Rows:    info.RowCount,
			Columns: len(info.Schema.Names),
		})
	}
	return infos, nil
}
