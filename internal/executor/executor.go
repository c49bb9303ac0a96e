// Package executor runs filter queries in the background. A query reads
// the selected rows of its source table, evaluates the condition on each
// row and materializes the matches as a new table in the results store.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	lqstarlark "github.com/leapstack-labs/leapquery/internal/starlark"
	"github.com/leapstack-labs/leapquery/pkg/core"
)

// DefaultBatchSize is the number of rows read between cancellation checks.
const DefaultBatchSize = 1024

// Config holds executor configuration.
type Config struct {
	// Destination receives the result tables.
	Destination core.Destination
	// Workers bounds the number of queries running at once.
	// Defaults to runtime.NumCPU().
	Workers int
	// BatchSize is the number of rows per batch. Defaults to DefaultBatchSize.
	BatchSize int
	// SpoolRows is the number of matched rows held in memory per query
	// before the rest are spilled to disk. Defaults to DefaultSpoolRows.
	SpoolRows int
	// SpoolDir holds spill files. Defaults to os.TempDir().
	SpoolDir string
	// Timeout bounds each query. Zero means no timeout.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Job is one query to execute.
type Job struct {
	Descriptor core.QueryDescriptor
	Source     core.Source
	Fields     *core.FieldSet
	Schema     core.TableSchema
}

// Executor runs queries on a bounded worker pool.
type Executor struct {
	dest      core.Destination
	sem       *semaphore.Weighted
	workers   int
	batchSize int
	spoolRows int
	spoolDir  string
	timeout   time.Duration
	threads   *lqstarlark.ThreadPool
	logger    *slog.Logger

	// writeMu serializes materialization into the destination.
	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New creates an executor.
func New(cfg Config) (*Executor, error) {
	if cfg.Destination == nil {
		return nil, fmt.Errorf("executor: destination is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.SpoolRows <= 0 {
		cfg.SpoolRows = DefaultSpoolRows
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Executor{
		dest:      cfg.Destination,
		sem:       semaphore.NewWeighted(int64(cfg.Workers)),
		workers:   cfg.Workers,
		batchSize: cfg.BatchSize,
		spoolRows: cfg.SpoolRows,
		spoolDir:  cfg.SpoolDir,
		timeout:   cfg.Timeout,
		threads:   lqstarlark.NewThreadPool(cfg.Workers),
		logger:    cfg.Logger,
	}, nil
}

// Workers returns the size of the worker pool.
func (e *Executor) Workers() int { return e.workers }

// Submit starts a query and returns immediately. The sink is notified
// exactly once, before the handle's Done channel is closed.
func (e *Executor) Submit(ctx context.Context, job Job, sink core.Sink) *Handle {
	qctx, cancel := context.WithCancel(ctx)
	if e.timeout > 0 {
		var tcancel context.CancelFunc
		qctx, tcancel = context.WithTimeout(qctx, e.timeout)
		parent := cancel
		cancel = func() { tcancel(); parent() }
	}
	h := newHandle(job.Descriptor.ID, cancel)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		h.finish(failed(job.Descriptor, core.Errorf(core.ErrStorage, "submit", job.Descriptor.ResultName, "executor is closed")), sink)
		return h
	}
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		start := time.Now()
		c := e.run(qctx, h, job)
		c.Duration = time.Since(start)

		level := slog.LevelInfo
		if !c.Completed {
			level = slog.LevelWarn
		}
		e.logger.Log(context.Background(), level, "query finished",
			slog.String("query_id", c.QueryID),
			slog.String("source", c.Source.String()),
			slog.String("result", c.ResultName),
			slog.String("status", string(c.Status())),
			slog.Int64("scanned", c.Scanned),
			slog.Int64("matched", c.Matched),
			slog.Duration("duration", c.Duration),
			slog.Any("error", c.Err))

		h.finish(c, sink)
	}()
	return h
}

// Close stops accepting queries and waits for running ones.
func (e *Executor) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.wg.Wait()
	return nil
}

type match struct {
	coord int64
	row   core.Row
}

func (e *Executor) run(ctx context.Context, h *Handle, job Job) core.Completion {
	d := job.Descriptor
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return failed(d, cancelled(d, err))
	}
	defer e.sem.Release(1)
	h.setRunning()

	e.logger.Debug("query started",
		slog.String("query_id", d.ID),
		slog.String("source", d.Source.String()),
		slog.String("condition", d.Condition))

	matches := newSpool(e.spoolDir, e.spoolRows)
	defer func() {
		if err := matches.Close(); err != nil {
			e.logger.Warn("failed to remove spool file", slog.String("query_id", d.ID), slog.Any("error", err))
		}
	}()

	scanned, err := e.filter(ctx, job, matches)
	if err != nil {
		c := failed(d, err)
		c.Scanned = scanned
		return c
	}
	if matches.Spilled() {
		e.logger.Debug("matches spilled to disk",
			slog.String("query_id", d.ID),
			slog.Int("matched", matches.Len()))
	}

	res, err := e.materialize(ctx, job, matches)
	if err != nil {
		c := failed(d, err)
		c.Scanned = scanned
		return c
	}

	return core.Completion{
		QueryID:     d.ID,
		Source:      d.Source,
		ResultName:  d.ResultName,
		Completed:   true,
		Result:      res,
		Scanned:     scanned,
		Matched:     int64(matches.Len()),
		Coordinates: matches.Coords(),
	}
}

// filter reads the selected rows and adds the ones the condition accepts
// to out. A producer reads batches and checks ctx between them; the
// consumer evaluates the condition.
func (e *Executor) filter(ctx context.Context, job Job, out *spool) (int64, error) {
	d := job.Descriptor
	table := d.Source.String()

	thread, release := e.threads.Acquire(ctx, d.ID)
	defer release()

	cond, err := lqstarlark.Compile(thread, d.Condition, job.Fields.Idents())
	if err != nil {
		return 0, core.NewError(core.ErrEvaluation, "compile", table, err)
	}

	accessors := make([]func(core.Row) any, len(cond.Params))
	for i, ident := range cond.Params {
		col, ok := job.Fields.Column(ident)
		if !ok {
			return 0, core.Errorf(core.ErrEvaluation, "bind", table, "unknown identifier %q", ident)
		}
		acc, err := job.Schema.Accessor(col)
		if err != nil {
			return 0, core.NewError(core.ErrEvaluation, "bind", table, err)
		}
		accessors[i] = acc
	}

	rows, err := job.Source.ReadRows(ctx, d.Source.Nodepath, d.Range())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, cancelled(d, ctxErr)
		}
		return 0, core.NewError(core.ErrStorage, "read", table, err)
	}
	defer func() { _ = rows.Close() }()

	g, gctx := errgroup.WithContext(ctx)
	batches := make(chan []match, 2)

	g.Go(func() error {
		defer close(batches)
		for {
			if err := gctx.Err(); err != nil {
				return err
			}
			batch := make([]match, 0, e.batchSize)
			for len(batch) < e.batchSize && rows.Next() {
				batch = append(batch, match{coord: rows.Coord(), row: rows.Row()})
			}
			if err := rows.Err(); err != nil {
				return core.NewError(core.ErrStorage, "read", table, err)
			}
			if len(batch) == 0 {
				return nil
			}
			select {
			case batches <- batch:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	var scanned int64
	g.Go(func() error {
		values := make([]any, len(accessors))
		for batch := range batches {
			for _, m := range batch {
				scanned++
				for i, acc := range accessors {
					values[i] = acc(m.row)
				}
				ok, err := cond.EvalValues(thread, values)
				if err != nil {
					if ctxErr := gctx.Err(); ctxErr != nil {
						return ctxErr
					}
					return core.Errorf(core.ErrEvaluation, "evaluate", table, "row %d: %w", m.coord, err)
				}
				if ok {
					if err := out.add(m); err != nil {
						return core.NewError(core.ErrStorage, "spool", table, err)
					}
				}
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return scanned, cancelled(d, err)
		}
		return scanned, err
	}
	if err := ctx.Err(); err != nil {
		return scanned, cancelled(d, err)
	}
	return scanned, nil
}

// materialize writes the matches into a new result table. Materialization
// is serialized so the existence check and the commit cannot interleave
// with another query's.
func (e *Executor) materialize(ctx context.Context, job Job, matches *spool) (*core.ResultTable, error) {
	d := job.Descriptor

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	exists, err := e.dest.Exists(ctx, d.ResultName)
	if err != nil {
		return nil, core.NewError(core.ErrStorage, "materialize", d.ResultName, err)
	}
	if exists {
		return nil, core.NewError(core.ErrNameCollision, "materialize", d.ResultName, nil)
	}

	schema := job.Schema
	if d.IndicesColumn != "" {
		schema = schema.WithColumn(core.ColumnDesc{Name: d.IndicesColumn, Type: core.TypeInt64})
	}
	w, err := e.dest.CreateTable(ctx, core.ResultSpec{
		Name:   d.ResultName,
		Title:  d.Title,
		Schema: schema,
		Provenance: core.Provenance{
			Condition: d.Condition,
			Source:    d.Source,
		},
	})
	if err != nil {
		if errors.Is(err, core.ErrNameCollision) {
			return nil, err
		}
		return nil, core.NewError(core.ErrStorage, "create", d.ResultName, err)
	}

	err = matches.each(func(m match) error {
		if err := ctx.Err(); err != nil {
			return cancelled(d, err)
		}
		row := m.row
		if d.IndicesColumn != "" {
			row = append(slices.Clone(row), m.coord)
		}
		if err := w.WriteRow(ctx, row); err != nil {
			return core.NewError(core.ErrStorage, "write", d.ResultName, err)
		}
		return nil
	})
	if err != nil {
		_ = w.Abort()
		if !errors.Is(err, core.ErrCancelled) && !errors.Is(err, core.ErrStorage) {
			err = core.NewError(core.ErrStorage, "write", d.ResultName, err)
		}
		return nil, err
	}

	res, err := w.Commit(ctx)
	if err != nil {
		_ = w.Abort()
		if errors.Is(err, core.ErrNameCollision) {
			return nil, err
		}
		return nil, core.NewError(core.ErrStorage, "commit", d.ResultName, err)
	}
	return res, nil
}

func failed(d core.QueryDescriptor, err error) core.Completion {
	return core.Completion{
		QueryID:    d.ID,
		Source:     d.Source,
		ResultName: d.ResultName,
		Err:        err,
	}
}

func cancelled(d core.QueryDescriptor, err error) error {
	return core.NewError(core.ErrCancelled, "execute", d.Source.String(), err)
}
