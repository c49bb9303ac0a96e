package memory

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/leapstack-labs/leapquery/pkg/core"
)

// ResultsGroup is the group result tables are created in.
const ResultsGroup = "/"

type table struct {
	info   core.TableInfo
	rows   []core.Row
	result *core.ResultTable
}

// Store keeps tables in memory. When connected to a fixture file that is
// not read-only, result tables are written back to it on Close.
type Store struct {
	mu     sync.RWMutex
	tables map[string]*table // nodepath -> table
	path   string
	cfg    core.AdapterConfig
	dirty  bool
	logger *slog.Logger
}

// New creates an empty store. A nil logger uses a discard logger.
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{tables: make(map[string]*table), logger: logger}
}

// Connect loads the fixture at cfg.Path. A missing file, an empty path or
// ":memory:" yields an empty store.
func (s *Store) Connect(_ context.Context, cfg core.AdapterConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg = cfg
	s.path = cfg.Path
	if s.path == "" {
		s.path = ":memory:"
	}
	if s.path == ":memory:" {
		return nil
	}

	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Debug("fixture not found, starting empty", slog.String("path", s.path))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open fixture: %w", err)
	}
	defer func() { _ = f.Close() }()

	fx, err := DecodeFixture(f)
	if err != nil {
		return err
	}
	for _, ft := range fx.Tables {
		if err := s.load(ft); err != nil {
			return fmt.Errorf("fixture %s: %w", s.path, err)
		}
	}
	s.logger.Debug("fixture loaded", slog.String("path", s.path), slog.Int("tables", len(fx.Tables)))
	return nil
}

func (s *Store) load(ft FixtureTable) error {
	np := core.NormalizeNodepath(ft.Path)
	schema := ft.schema()
	if err := schema.Validate(); err != nil {
		return fmt.Errorf("table %s: %w", np, err)
	}
	rows := make([]core.Row, 0, len(ft.Rows))
	for i, raw := range ft.Rows {
		row, err := convertRow(schema, raw)
		if err != nil {
			return fmt.Errorf("table %s row %d: %w", np, i, err)
		}
		rows = append(rows, row)
	}
	t := &table{
		info: core.TableInfo{
			Ref:    core.TableRef{Filepath: s.path, Nodepath: np},
			Name:   core.TableName(np),
			Title:  ft.Title,
			Schema: schema,
		},
		rows: rows,
	}
	if fr := ft.Result; fr != nil {
		t.result = &core.ResultTable{
			Name:  t.info.Name,
			Title: ft.Title,
			Provenance: core.Provenance{
				Condition: fr.Condition,
				Source:    core.TableRef{Filepath: fr.SourceFilepath, Nodepath: fr.SourceNodepath},
			},
			Rows:      int64(len(rows)),
			CreatedAt: fr.CreatedAt,
		}
	}
	s.tables[np] = t
	return nil
}

// Close writes result tables back to the fixture file when needed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty || s.cfg.ReadOnly || s.path == ":memory:" {
		return nil
	}
	s.dirty = false
	return s.save()
}

func (s *Store) save() error {
	paths := make([]string, 0, len(s.tables))
	for p := range s.tables {
		paths = append(paths, p)
	}
	slices.Sort(paths)

	fx := &Fixture{}
	for _, p := range paths {
		t := s.tables[p]
		ft := FixtureTable{Path: p, Title: t.info.Title, Columns: fixtureColumns(t.info.Schema)}
		for _, r := range t.rows {
			ft.Rows = append(ft.Rows, plainRow(r))
		}
		if res := t.result; res != nil {
			ft.Result = &FixtureResult{
				Condition:      res.Provenance.Condition,
				SourceFilepath: res.Provenance.Source.Filepath,
				SourceNodepath: res.Provenance.Source.Nodepath,
				CreatedAt:      res.CreatedAt,
			}
		}
		fx.Tables = append(fx.Tables, ft)
	}

	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("failed to write fixture: %w", err)
	}
	if err := EncodeFixture(f, fx); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Filepath returns the fixture path, ":memory:" when there is none.
func (s *Store) Filepath() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.path
}

// AddTable stores a table directly. Rows must be aligned with schema.
func (s *Store) AddTable(nodepath, title string, schema core.TableSchema, rows []core.Row) error {
	if err := schema.Validate(); err != nil {
		return err
	}
	np := core.NormalizeNodepath(nodepath)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.path == "" {
		s.path = ":memory:"
	}
	s.tables[np] = &table{
		info: core.TableInfo{
			Ref:    core.TableRef{Filepath: s.path, Nodepath: np},
			Name:   core.TableName(np),
			Title:  title,
			Schema: schema,
		},
		rows: rows,
	}
	return nil
}

// RemoveTable drops any table, result or not.
func (s *Store) RemoveTable(nodepath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tables, core.NormalizeNodepath(nodepath))
}

// Tables lists all nodepaths, sorted.
func (s *Store) Tables(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.tables))
	for p := range s.tables {
		out = append(out, p)
	}
	slices.Sort(out)
	return out, nil
}

// Describe returns schema and row count of a table.
func (s *Store) Describe(_ context.Context, nodepath string) (*core.TableInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[core.NormalizeNodepath(nodepath)]
	if !ok {
		return nil, core.NewError(core.ErrTableNotFound, "describe", nodepath, nil)
	}
	info := t.info
	info.RowCount = int64(len(t.rows))
	return &info, nil
}

// ReadRows returns the selected rows. The rows are captured when called;
// later writes do not show up in the iterator.
func (s *Store) ReadRows(_ context.Context, nodepath string, r core.RowRange) (core.Rows, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[core.NormalizeNodepath(nodepath)]
	if !ok {
		return nil, core.NewError(core.ErrTableNotFound, "read", nodepath, nil)
	}
	if r.Step <= 0 {
		r.Step = 1
	}
	return &rows{rows: t.rows, next: r.Start, rng: r, coord: -1}, nil
}

// Exists reports whether a result table name is taken.
func (s *Store) Exists(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tables[resultPath(name)]
	return ok, nil
}

// CreateTable starts a result table. It becomes visible on Commit.
func (s *Store) CreateTable(ctx context.Context, spec core.ResultSpec) (core.TableWriter, error) {
	if err := spec.Schema.Validate(); err != nil {
		return nil, fmt.Errorf("invalid result schema: %w", err)
	}
	if s.cfg.ReadOnly {
		return nil, fmt.Errorf("store %s is read-only", s.Filepath())
	}
	exists, err := s.Exists(ctx, spec.Name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, core.NewError(core.ErrNameCollision, "create", spec.Name, nil)
	}
	return &writer{store: s, spec: spec}, nil
}

// DropTable deletes a result table.
func (s *Store) DropTable(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := resultPath(name)
	t, ok := s.tables[p]
	if !ok || t.result == nil {
		return core.NewError(core.ErrTableNotFound, "drop", name, nil)
	}
	delete(s.tables, p)
	s.dirty = true
	return nil
}

// ListResults returns the result tables ordered by creation time.
func (s *Store) ListResults(_ context.Context) ([]core.ResultTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.ResultTable
	for _, t := range s.tables {
		if t.result != nil {
			out = append(out, *t.result)
		}
	}
	slices.SortFunc(out, func(a, b core.ResultTable) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return out, nil
}

func resultPath(name string) string {
	return ResultsGroup + name
}

type writer struct {
	store *Store
	spec  core.ResultSpec
	rows  []core.Row
	done  bool
}

func (w *writer) WriteRow(_ context.Context, row core.Row) error {
	if w.done {
		return fmt.Errorf("writer for %s is closed", w.spec.Name)
	}
	if len(row) != len(w.spec.Schema.Names) {
		return fmt.Errorf("row has %d values, want %d", len(row), len(w.spec.Schema.Names))
	}
	w.rows = append(w.rows, slices.Clone(row))
	return nil
}

func (w *writer) Commit(_ context.Context) (*core.ResultTable, error) {
	if w.done {
		return nil, fmt.Errorf("writer for %s is closed", w.spec.Name)
	}
	w.done = true

	s := w.store
	s.mu.Lock()
	defer s.mu.Unlock()

	p := resultPath(w.spec.Name)
	if _, ok := s.tables[p]; ok {
		return nil, core.NewError(core.ErrNameCollision, "commit", w.spec.Name, nil)
	}
	res := &core.ResultTable{
		Name:       w.spec.Name,
		Title:      w.spec.Title,
		Provenance: w.spec.Provenance,
		Rows:       int64(len(w.rows)),
		CreatedAt:  time.Now().UTC(),
	}
	s.tables[p] = &table{
		info: core.TableInfo{
			Ref:    core.TableRef{Filepath: s.path, Nodepath: p},
			Name:   w.spec.Name,
			Title:  w.spec.Title,
			Schema: w.spec.Schema,
		},
		rows:   w.rows,
		result: res,
	}
	s.dirty = true
	out := *res
	return &out, nil
}

func (w *writer) Abort() error {
	w.done = true
	w.rows = nil
	return nil
}

type rows struct {
	rows  []core.Row
	rng   core.RowRange
	next  int64
	coord int64
}

func (r *rows) Next() bool {
	for r.next < r.rng.Stop && r.next < int64(len(r.rows)) {
		c := r.next
		r.next += r.rng.Step
		if c >= r.rng.Start {
			r.coord = c
			return true
		}
	}
	return false
}

func (r *rows) Coord() int64  { return r.coord }
func (r *rows) Row() core.Row { return r.rows[r.coord] }
func (r *rows) Err() error    { return nil }
func (r *rows) Close() error  { return nil }

var _ core.Store = (*Store)(nil)
