// Package engine runs the table query flow: classify a table, collect and
// validate a query, reserve its result name, execute it in the background
// and record the outcome.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/leapstack-labs/leapquery/internal/classify"
	"github.com/leapstack-labs/leapquery/internal/descriptor"
	"github.com/leapstack-labs/leapquery/internal/executor"
	"github.com/leapstack-labs/leapquery/internal/session"
	"github.com/leapstack-labs/leapquery/internal/state"
	"github.com/leapstack-labs/leapquery/pkg/adapter"
	"github.com/leapstack-labs/leapquery/pkg/core"
)

// Config holds engine configuration.
type Config struct {
	// Results is the store result tables are written to.
	Results core.AdapterConfig
	// StatePath is the path to the SQLite run history database.
	StatePath string
	// Workers bounds the number of queries running at once.
	Workers int
	// BatchSize is the number of rows read between cancellation checks.
	BatchSize int
	// SpoolRows is the number of matched rows per query held in memory
	// before spilling to disk.
	SpoolRows int
	// QueryTimeout bounds each query. Zero means no timeout.
	QueryTimeout time.Duration
	// Sink receives every completion after the engine has processed it.
	Sink core.Sink
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// Engine owns the session state and the stores of one query session.
type Engine struct {
	logger     *slog.Logger
	results    core.Store
	runs       core.RunStore
	tracker    *session.Tracker
	classifier *classify.Classifier
	builder    *descriptor.Builder
	exec       *executor.Executor
	sink       core.Sink

	mu      sync.Mutex
	sources map[string]core.Source // filepath -> open source
}

// New opens the results store and the run history.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Results.Type == "" {
		cfg.Results.Type = DetectType(cfg.Results.Path)
	}
	if cfg.StatePath == "" {
		cfg.StatePath = ":memory:"
	}

	logger.Debug("initializing engine",
		"results_type", cfg.Results.Type,
		"results_path", cfg.Results.Path,
		"state_path", cfg.StatePath)

	runs := state.NewSQLiteStore(logger)
	if err := runs.Open(cfg.StatePath); err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	if err := runs.InitSchema(); err != nil {
		_ = runs.Close()
		return nil, fmt.Errorf("failed to initialize state schema: %w", err)
	}

	results, err := adapter.NewStore(cfg.Results, logger)
	if err != nil {
		_ = runs.Close()
		return nil, fmt.Errorf("failed to create results store: %w", err)
	}
	if err := results.Connect(context.Background(), cfg.Results); err != nil {
		_ = runs.Close()
		return nil, fmt.Errorf("failed to open results store: %w", err)
	}

	exec, err := executor.New(executor.Config{
		Destination: results,
		Workers:     cfg.Workers,
		BatchSize:   cfg.BatchSize,
		SpoolRows:   cfg.SpoolRows,
		Timeout:     cfg.QueryTimeout,
		Logger:      logger,
	})
	if err != nil {
		_ = results.Close()
		_ = runs.Close()
		return nil, err
	}

	return &Engine{
		logger:     logger,
		results:    results,
		runs:       runs,
		tracker:    session.NewTracker(logger),
		classifier: classify.New(logger),
		builder:    descriptor.NewBuilder(logger),
		exec:       exec,
		sink:       cfg.Sink,
		sources:    map[string]core.Source{results.Filepath(): results},
	}, nil
}

// DetectType guesses the adapter type from a file extension.
func DetectType(path string) string {
	lower := strings.ToLower(path)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return "postgres"
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "memory"
	case ".duckdb", ".ddb":
		return "duckdb"
	}
	if path == "" {
		return "memory"
	}
	return "sqlite"
}

// Restore seeds the session from persisted state: the result names from
// the results catalog and the last query from the run history.
func (e *Engine) Restore(ctx context.Context) error {
	results, err := e.results.ListResults(ctx)
	if err != nil {
		return fmt.Errorf("failed to list results: %w", err)
	}
	names := make([]string, len(results))
	for i, r := range results {
		names[i] = r.Name
	}

	var last core.LastQuery
	run, err := e.runs.GetLatestRun()
	if err != nil {
		return fmt.Errorf("failed to read run history: %w", err)
	}
	if run != nil {
		last = core.LastQuery{Source: run.Source, Condition: run.Condition}
	}

	e.tracker.Restore(names, last)
	e.logger.Debug("session restored", slog.Int("results", len(names)), slog.String("last_condition", last.Condition))
	return nil
}

// OpenSource opens a table database for querying. Sources are opened
// read-only and shared by path.
func (e *Engine) OpenSource(ctx context.Context, cfg core.AdapterConfig) (core.Source, error) {
	if cfg.Type == "" {
		cfg.Type = DetectType(cfg.Path)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if src, ok := e.sources[cfg.Path]; ok {
		return src, nil
	}
	if abs, err := filepath.Abs(cfg.Path); err == nil {
		if src, ok := e.sources[abs]; ok {
			return src, nil
		}
	}

	src, err := adapter.NewSource(cfg, e.logger)
	if err != nil {
		return nil, err
	}
	cfg.ReadOnly = true
	if err := src.Connect(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", cfg.Path, err)
	}
	// Sources opened from params are known by a path only after Connect.
	if open, ok := e.sources[src.Filepath()]; ok {
		_ = src.Close()
		return open, nil
	}
	e.sources[src.Filepath()] = src
	e.logger.Debug("source opened", slog.String("path", src.Filepath()), slog.String("type", cfg.Type))
	return src, nil
}

// CloseSource closes an open source. It is rejected while one of its
// tables is being queried.
func (e *Engine) CloseSource(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	src, ok := e.sources[path]
	if !ok {
		return core.NewError(core.ErrTableNotFound, "close", path, nil)
	}
	if src == core.Source(e.results) {
		return fmt.Errorf("close %s: the results store stays open", path)
	}
	for _, ref := range e.tracker.Busy() {
		if ref.Filepath == path {
			return core.NewError(core.ErrConcurrency, "close", ref.String(), nil)
		}
	}
	delete(e.sources, path)
	return src.Close()
}

// ResultsSource returns the results store, so result tables can be queried
// like any other table.
func (e *Engine) ResultsSource() core.Source {
	return e.results
}

// Classify describes a table and returns its queryable fields.
func (e *Engine) Classify(ctx context.Context, src core.Source, nodepath string) (*core.TableInfo, *core.FieldSet, error) {
	info, err := src.Describe(ctx, nodepath)
	if err != nil {
		return nil, nil, err
	}
	fields, err := e.classifier.Classify(info.Ref.String(), info.Schema, info.RowCount)
	if err != nil {
		return info, nil, err
	}
	return info, fields, nil
}

// NewQuery runs the full query flow against one table and returns the
// handle of the running query.
//
// It returns ErrCancelled when input came back empty, ErrConcurrency when
// the table already has a query in flight, and classification or
// validation errors as they are. The name counter is left unchanged by
// every unsuccessful attempt.
func (e *Engine) NewQuery(ctx context.Context, src core.Source, nodepath string, input core.Input) (*executor.Handle, error) {
	info, fields, err := e.Classify(ctx, src, nodepath)
	if err != nil {
		e.logger.Warn("table cannot be queried", slog.String("table", nodepath), slog.Any("error", err))
		return nil, err
	}
	ref := info.Ref

	if e.tracker.IsBusy(ref) {
		return nil, core.NewError(core.ErrConcurrency, "query", ref.String(), nil)
	}

	counter := e.tracker.BeginAttempt()
	d, err := e.builder.Build(ctx, descriptor.Request{
		Table:   info,
		Fields:  fields,
		Last:    e.tracker.LastQuery(),
		Counter: counter,
		Used:    e.tracker.UsedNames(),
	}, input)
	if err != nil {
		e.tracker.AbortAttempt()
		return nil, err
	}
	if d == nil {
		e.tracker.AbortAttempt()
		return nil, core.NewError(core.ErrCancelled, "query", ref.String(), nil)
	}

	if err := e.tracker.Commit(*d); err != nil {
		e.tracker.AbortAttempt()
		return nil, err
	}

	if _, err := e.runs.CreateRun(*d); err != nil {
		e.logger.Warn("failed to record run", slog.String("query_id", d.ID), slog.Any("error", err))
	}

	e.logger.Info("query submitted",
		slog.String("query_id", d.ID),
		slog.String("source", ref.String()),
		slog.String("condition", d.Condition),
		slog.String("result", d.ResultName))

	return e.exec.Submit(ctx, executor.Job{
		Descriptor: *d,
		Source:     src,
		Fields:     fields,
		Schema:     info.Schema,
	}, e.finish(*d)), nil
}

// finish returns the sink that settles session state for one query before
// the caller hears about it.
func (e *Engine) finish(d core.QueryDescriptor) core.Sink {
	return core.SinkFunc(func(c core.Completion) {
		e.tracker.Finish(d.Source)
		// A collision at the destination means the name belongs to an
		// existing table, so it stays reserved.
		if !c.Completed && !errors.Is(c.Err, core.ErrNameCollision) {
			e.tracker.Release(d.ResultName)
		}
		if err := e.runs.CompleteRun(d.ID, c); err != nil {
			e.logger.Warn("failed to complete run", slog.String("query_id", d.ID), slog.Any("error", err))
		}
		if e.sink != nil {
			e.sink.Notify(c)
		}
	})
}

// DeleteResult drops one result table and frees its name. The name
// counter is not rewound.
func (e *Engine) DeleteResult(ctx context.Context, name string) error {
	ref := core.TableRef{Filepath: e.results.Filepath(), Nodepath: "/" + name}
	if e.tracker.IsBusy(ref) {
		return core.NewError(core.ErrConcurrency, "delete", ref.String(), nil)
	}
	if err := e.results.DropTable(ctx, name); err != nil {
		return err
	}
	e.tracker.Release(name)
	e.logger.Info("result deleted", slog.String("name", name))
	return nil
}

// DeleteAllResults drops every result table and resets the name counter.
// Nothing happens unless confirm returns true. It is rejected while any
// query is in flight, and no query can be committed until it returns. It
// returns the number of tables dropped.
func (e *Engine) DeleteAllResults(ctx context.Context, confirm func() bool) (int, error) {
	if err := e.tracker.BeginReset(); err != nil {
		return 0, err
	}
	if confirm == nil || !confirm() {
		e.tracker.AbortReset()
		return 0, nil
	}

	results, err := e.results.ListResults(ctx)
	if err != nil {
		e.tracker.AbortReset()
		return 0, fmt.Errorf("failed to list results: %w", err)
	}

	var (
		errs []error
		kept []string
	)
	for _, r := range results {
		if err := e.results.DropTable(ctx, r.Name); err != nil {
			errs = append(errs, err)
			kept = append(kept, r.Name)
		}
	}
	e.tracker.FinishReset(kept)

	dropped := len(results) - len(kept)
	if len(errs) > 0 {
		return dropped, errors.Join(errs...)
	}
	e.logger.Info("all results deleted", slog.Int("count", dropped))
	return dropped, nil
}

// Results lists the result tables.
func (e *Engine) Results(ctx context.Context) ([]core.ResultTable, error) {
	return e.results.ListResults(ctx)
}

// History returns the most recent query runs first.
func (e *Engine) History(limit int) ([]*core.QueryRun, error) {
	return e.runs.ListRuns(limit)
}

// LastQuery returns the most recent successfully built query.
func (e *Engine) LastQuery() core.LastQuery { return e.tracker.LastQuery() }

// Counter returns the current result name counter.
func (e *Engine) Counter() int { return e.tracker.Counter() }

// UsedNames returns the reserved result names.
func (e *Engine) UsedNames() []string { return e.tracker.UsedNames() }

// Busy returns the tables with a query in flight.
func (e *Engine) Busy() []core.TableRef { return e.tracker.Busy() }

// Close waits for running queries and releases all resources.
func (e *Engine) Close() error {
	e.logger.Debug("closing engine")

	var errs []error
	if err := e.exec.Close(); err != nil {
		errs = append(errs, err)
	}

	e.mu.Lock()
	for path, src := range e.sources {
		if err := src.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", path, err))
		}
	}
	e.sources = map[string]core.Source{}
	e.mu.Unlock()

	if err := e.runs.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing engine: %w", errors.Join(errs...))
	}
	return nil
}
