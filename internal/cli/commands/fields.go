package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapquery/internal/classify"
	"github.com/leapstack-labs/leapquery/internal/cli/output"
	"github.com/leapstack-labs/leapquery/pkg/core"
)

// NewFieldsCommand creates the fields command.
func NewFieldsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "fields <database> <table>",
		Short: "Show which columns a condition can use",
		Long: `Show the columns of a table that can appear in a query condition.

Columns whose names contain whitespace are given an alias (col0, col1, ...)
which is the name to use in conditions. Nested, multidimensional and
complex columns cannot be queried and are listed as excluded.`,
		Example:           `  leapquery fields data/sensors.db /readings`,
		Args:              cobra.ExactArgs(2),
		ValidArgsFunction: sourceCompletion,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			src, err := openSource(cmd.Context(), cmdCtx, args[0])
			if err != nil {
				return err
			}
			return runFields(cmd.Context(), cmdCtx, src, args[1])
		},
	}
}

func runFields(ctx context.Context, cmdCtx *CommandContext, src core.Source, nodepath string) error {
	info, fields, err := cmdCtx.Engine.Classify(ctx, src, nodepath)
	if err != nil && !errors.Is(err, core.ErrNoQueryableColumns) {
		return err
	}

	out := output.FieldsOutput{Table: info.Ref.String(), Rows: info.RowCount}
	if fields != nil {
		for _, f := range fields.Fields {
			desc, _ := info.Schema.Desc(f.Name)
			out.Fields = append(out.Fields, output.FieldInfo{Name: f.Name, Alias: f.Alias, Type: desc.Type})
		}
	}
	excluded := info.Schema.Names
	if fields != nil {
		excluded = fields.Excluded
	}
	for _, name := range excluded {
		desc, _ := info.Schema.Desc(name)
		out.Fields = append(out.Fields, output.FieldInfo{
			Name:     name,
			Type:     desc.Type,
			Excluded: true,
			Reason:   classify.Reason(info.Schema, name),
		})
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(out)
	}

	styles := r.Styles()
	r.Println(styles.Header.Render(out.Table) + styles.Muted.Render(formatRows(out.Rows)))
	rows := make([][]any, len(out.Fields))
	for i, f := range out.Fields {
		use := f.Name
		if f.Alias != "" {
			use = f.Alias
		}
		if f.Excluded {
			use = styles.Muted.Render("excluded: " + f.Reason)
		}
		rows[i] = []any{f.Name, f.Type, use}
	}
	r.Table([]string{"column", "type", "use as"}, rows)
	if err != nil {
		r.Println(styles.Warning.Render("No column of this table can be queried."))
	}
	return nil
}

func formatRows(n int64) string {
	if n == 1 {
		return " (1 row)"
	}
	return fmt.Sprintf(" (%d rows)", n)
}
