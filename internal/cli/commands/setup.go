// Package commands implements the leapquery CLI commands.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapquery/internal/cli/config"
	"github.com/leapstack-labs/leapquery/internal/cli/output"
	"github.com/leapstack-labs/leapquery/internal/engine"
	"github.com/leapstack-labs/leapquery/pkg/core"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Engine   *engine.Engine
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext with a restored engine and a
// renderer. Returns the context and a cleanup function that must be called
// (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	return newCommandContext(cmd, nil)
}

func newCommandContext(cmd *cobra.Command, sink core.Sink) (*CommandContext, func(), error) {
	cmdCtx := NewCommandContextWithoutEngine(cmd)

	eng, err := createEngine(cmdCtx.Cfg, cmdCtx.Logger, sink)
	if err != nil {
		return nil, nil, err
	}
	if err := eng.Restore(cmd.Context()); err != nil {
		_ = eng.Close()
		return nil, nil, err
	}
	cmdCtx.Engine = eng

	cleanup := func() {
		if err := eng.Close(); err != nil {
			cmdCtx.Logger.Warn("failed to close engine", slog.Any("error", err))
		}
	}
	return cmdCtx, cleanup, nil
}

// NewCommandContextWithoutEngine creates a CommandContext without an engine.
func NewCommandContextWithoutEngine(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat)),
	}
}

// getConfig returns the current configuration, or defaults when none was
// loaded.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	return &config.Config{
		Results:      config.StoreConfig{Type: config.DefaultResultsType, Path: config.DefaultResultsFile},
		StatePath:    config.DefaultStateFile,
		BatchSize:    config.DefaultBatchSize,
		SpoolRows:    config.DefaultSpoolRows,
		OutputFormat: config.DefaultOutput,
	}
}

func ensureParentDir(path string) error {
	if path == "" || path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0750)
}

func createEngine(cfg *config.Config, logger *slog.Logger, sink core.Sink) (*engine.Engine, error) {
	for _, p := range []string{cfg.StatePath, cfg.Results.Path} {
		if err := ensureParentDir(p); err != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", p, err)
		}
	}

	return engine.New(engine.Config{
		Results:      cfg.Results.AdapterConfig(),
		StatePath:    cfg.StatePath,
		Workers:      cfg.Workers,
		BatchSize:    cfg.BatchSize,
		SpoolRows:    cfg.SpoolRows,
		QueryTimeout: cfg.QueryTimeout,
		Sink:         sink,
		Logger:       logger,
	})
}

// openSource opens a database named in the sources section of the config,
// or a path. The special name "results" is the results store.
func openSource(ctx context.Context, cmdCtx *CommandContext, name string) (core.Source, error) {
	if name == "results" {
		return cmdCtx.Engine.ResultsSource(), nil
	}
	if sc, ok := cmdCtx.Cfg.Sources[name]; ok {
		return cmdCtx.Engine.OpenSource(ctx, sc.AdapterConfig())
	}
	if strings.Contains(name, "://") {
		return cmdCtx.Engine.OpenSource(ctx, core.AdapterConfig{Path: name})
	}
	if _, err := os.Stat(name); err != nil {
		return nil, fmt.Errorf("database %s: %w\nHint: use a file path or a name from the sources section of leapquery.yaml", name, err)
	}
	return cmdCtx.Engine.OpenSource(ctx, core.AdapterConfig{Path: name})
}

// sourceCompletion completes database arguments with configured source names.
func sourceCompletion(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	names := []string{"results"}
	for name := range getConfig().Sources {
		names = append(names, name)
	}
	return names, cobra.ShellCompDirectiveDefault
}
