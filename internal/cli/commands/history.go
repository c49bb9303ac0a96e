package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapquery/internal/cli/config"
	"github.com/leapstack-labs/leapquery/internal/cli/output"
	"github.com/leapstack-labs/leapquery/pkg/core"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent queries",
		Long: `Show the most recent queries with their outcome, newest first.

The history is kept in the state database and also provides the condition
pre-filled when a table is queried again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEngine(cmd, func(_ context.Context, cmdCtx *CommandContext) error {
				return runHistory(cmdCtx, limit)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", config.DefaultHistoryLimit, "Number of runs to show (0 for all)")
	return cmd
}

func runHistory(cmdCtx *CommandContext, limit int) error {
	runs, err := cmdCtx.Engine.History(limit)
	if err != nil {
		return err
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		infos := make([]output.RunInfo, len(runs))
		for i, run := range runs {
			infos[i] = output.RunInfo{
				ID:          run.ID,
				Source:      run.Source.String(),
				Condition:   run.Condition,
				Result:      run.ResultName,
				Status:      string(run.Status),
				Scanned:     run.RowsScanned,
				Matched:     run.RowsMatched,
				StartedAt:   run.StartedAt,
				CompletedAt: run.CompletedAt,
				Error:       run.Error,
			}
		}
		return r.JSON(infos)
	}

	rows := make([][]any, len(runs))
	for i, run := range runs {
		rows[i] = []any{
			run.StartedAt.Format("2006-01-02 15:04:05"),
			run.Source.String(),
			output.Truncate(run.Condition, 40),
			run.ResultName,
			statusLabel(r.Styles(), run.Status),
			run.RowsMatched,
		}
	}
	r.Table([]string{"started", "source", "condition", "result", "status", "matched"}, rows)
	return nil
}

func statusLabel(styles *output.Styles, s core.QueryStatus) string {
	switch s {
	case core.QueryStatusCompleted:
		return styles.StatusCompleted.Render(string(s))
	case core.QueryStatusFailed:
		return styles.StatusFailed.Render(string(s))
	case core.QueryStatusRunning:
		return styles.StatusRunning.Render(string(s))
	}
	return string(s)
}
