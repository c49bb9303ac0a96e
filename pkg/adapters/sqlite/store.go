package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/leapstack-labs/leapquery/pkg/adapter"
	"github.com/leapstack-labs/leapquery/pkg/core"

	_ "modernc.org/sqlite" // sqlite driver
)

// Store implements core.Store for SQLite files.
type Store struct {
	adapter.BaseSQLStore
	params Params
}

// New creates a new SQLite store instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		BaseSQLStore: adapter.BaseSQLStore{Logger: logger},
	}
}

// Connect opens the SQLite file at cfg.Path.
// Use ":memory:" (or an empty path) for an in-memory database.
func (s *Store) Connect(ctx context.Context, cfg core.AdapterConfig) error {
	params := Params{BusyTimeout: defaultBusyTimeout}
	if err := adapter.DecodeParams(cfg.Params, &params); err != nil {
		return err
	}

	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}
	dsn := path
	if cfg.ReadOnly && path != ":memory:" {
		dsn = path + "?mode=ro"
	}

	s.Logger.Debug("connecting to sqlite", slog.String("path", path), slog.Bool("read_only", cfg.ReadOnly))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite connection: %w", err)
	}
	if path == ":memory:" {
		// Every connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite: %w", err)
	}

	pragmas := append([]string{fmt.Sprintf("busy_timeout = %d", params.BusyTimeout)}, params.Pragmas...)
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, "PRAGMA "+p); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to apply pragma %q: %w", p, err)
		}
	}

	if !cfg.ReadOnly {
		if _, err := db.ExecContext(ctx, catalogDDL); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to create catalog: %w", err)
		}
	}

	cfg.Path = path
	s.DB = db
	s.Cfg = cfg
	s.params = params
	return nil
}

// Tables lists user tables as root-level nodepaths.
func (s *Store) Tables(ctx context.Context) ([]string, error) {
	db, err := s.Conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite\_%' ESCAPE '\' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		if strings.HasPrefix(name, core.ReservedPrefix) {
			continue
		}
		out = append(out, "/"+name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}
	return out, nil
}

// Describe returns schema and row count of a table. Tables created by this
// store carry their typed descriptors; others get types from their declared
// SQL column types.
func (s *Store) Describe(ctx context.Context, nodepath string) (*core.TableInfo, error) {
	db, err := s.Conn()
	if err != nil {
		return nil, err
	}
	name, err := adapter.TableName(nodepath)
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(name, core.ReservedPrefix) {
		return nil, core.NewError(core.ErrTableNotFound, "describe", nodepath, nil)
	}
	exists, err := tableExists(ctx, db, name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, core.NewError(core.ErrTableNotFound, "describe", nodepath, nil)
	}

	schema, err := s.schema(ctx, db, name)
	if err != nil {
		return nil, err
	}
	count, err := s.CountRows(ctx, adapter.QuoteIdent(name))
	if err != nil {
		return nil, err
	}

	info := &core.TableInfo{
		Ref:      core.TableRef{Filepath: s.Filepath(), Nodepath: "/" + name},
		Name:     name,
		RowCount: count,
		Schema:   schema,
	}
	if s.hasCatalog(ctx, db) {
		var title string
		err := db.QueryRowContext(ctx, `SELECT title FROM `+resultsTable+` WHERE name = ?`, name).Scan(&title)
		if err == nil {
			info.Title = title
		}
	}
	return info, nil
}

func (s *Store) schema(ctx context.Context, q querier, name string) (core.TableSchema, error) {
	if s.hasCatalog(ctx, q) {
		schema, ok, err := catalogSchema(ctx, q, name)
		if err != nil {
			return schema, err
		}
		if ok {
			return schema, nil
		}
	}
	return inferredSchema(ctx, q, name)
}

func (s *Store) hasCatalog(ctx context.Context, q querier) bool {
	ok, err := tableExists(ctx, q, columnsTable)
	return err == nil && ok
}

// ReadRows returns the rows of r in rowid order, typed by the table schema.
func (s *Store) ReadRows(ctx context.Context, nodepath string, r core.RowRange) (core.Rows, error) {
	info, err := s.Describe(ctx, nodepath)
	if err != nil {
		return nil, err
	}
	schema := info.Schema
	convert := func(raw core.Row) (core.Row, error) {
		for i, n := range schema.Names {
			raw[i] = convertCell(schema, n, raw[i])
		}
		return raw, nil
	}
	return s.ReadRange(ctx, adapter.QuoteIdent(info.Name), schema.Names, "rowid", r, convert)
}

// convertCell types a stored value by its column descriptor. SQLite accepts
// any value in any column, so a value whose storage class does not fit the
// column is returned as stored.
func convertCell(schema core.TableSchema, name string, v any) any {
	var (
		out any
		err error
	)
	if d, ok := schema.Desc(name); ok {
		out, err = core.ConvertCell(d, v)
	} else {
		out, err = decodeNested(v)
	}
	if err != nil {
		return v
	}
	return out
}

func decodeNested(v any) (any, error) {
	var text string
	switch x := v.(type) {
	case string:
		text = x
	case []byte:
		text = string(x)
	default:
		return v, nil
	}
	var out any
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Exists reports whether any table of that name exists.
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	db, err := s.Conn()
	if err != nil {
		return false, err
	}
	return tableExists(ctx, db, name)
}

// CreateTable starts a result table inside a transaction. Nothing is
// visible until the writer commits.
func (s *Store) CreateTable(ctx context.Context, spec core.ResultSpec) (core.TableWriter, error) {
	db, err := s.Conn()
	if err != nil {
		return nil, err
	}
	if s.Cfg.ReadOnly {
		return nil, fmt.Errorf("store %s is read-only", s.Filepath())
	}
	if err := spec.Schema.Validate(); err != nil {
		return nil, fmt.Errorf("invalid result schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	w := &writer{store: s, tx: tx, spec: spec}

	exists, err := tableExists(ctx, tx, spec.Name)
	if err != nil {
		_ = w.Abort()
		return nil, err
	}
	if exists {
		_ = w.Abort()
		return nil, core.NewError(core.ErrNameCollision, "create", spec.Name, nil)
	}

	cols := make([]string, len(spec.Schema.Names))
	marks := make([]string, len(spec.Schema.Names))
	for i, n := range spec.Schema.Names {
		d, ok := spec.Schema.Desc(n)
		cols[i] = strings.TrimSpace(adapter.QuoteIdent(n) + " " + declaredType(d, ok))
		marks[i] = "?"
	}
	ddl := "CREATE TABLE " + adapter.QuoteIdent(spec.Name) + " (" + strings.Join(cols, ", ") + ")"
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		_ = w.Abort()
		return nil, fmt.Errorf("failed to create table %s: %w", spec.Name, err)
	}

	//nolint:gosec // identifiers are quoted
	w.insert, err = tx.PrepareContext(ctx,
		"INSERT INTO "+adapter.QuoteIdent(spec.Name)+" VALUES ("+strings.Join(marks, ", ")+")")
	if err != nil {
		_ = w.Abort()
		return nil, fmt.Errorf("failed to prepare insert: %w", err)
	}
	return w, nil
}

// DropTable deletes a result table and its catalog entries.
func (s *Store) DropTable(ctx context.Context, name string) error {
	db, err := s.Conn()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM `+resultsTable+` WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to drop %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NewError(core.ErrTableNotFound, "drop", name, nil)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM `+columnsTable+` WHERE tbl = ?`, name); err != nil {
		return fmt.Errorf("failed to drop %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+adapter.QuoteIdent(name)); err != nil {
		return fmt.Errorf("failed to drop %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit drop of %s: %w", name, err)
	}
	s.Logger.Debug("result table dropped", slog.String("name", name))
	return nil
}

// ListResults returns the result tables ordered by creation time.
func (s *Store) ListResults(ctx context.Context) ([]core.ResultTable, error) {
	db, err := s.Conn()
	if err != nil {
		return nil, err
	}
	if !s.hasCatalog(ctx, db) {
		return nil, nil
	}
	rows, err := db.QueryContext(ctx,
		`SELECT name, title, condition, source_filepath, source_nodepath, rows, created_at
		 FROM `+resultsTable+` ORDER BY created_at, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []core.ResultTable
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating results: %w", err)
	}
	return out, nil
}

type writer struct {
	store  *Store
	tx     *sql.Tx
	insert *sql.Stmt
	spec   core.ResultSpec
	rows   int64
	done   bool
}

func (w *writer) WriteRow(ctx context.Context, row core.Row) error {
	if w.done {
		return fmt.Errorf("writer for %s is closed", w.spec.Name)
	}
	if len(row) != len(w.spec.Schema.Names) {
		return fmt.Errorf("row has %d values, want %d", len(row), len(w.spec.Schema.Names))
	}
	args := make([]any, len(row))
	for i, v := range row {
		enc, err := encode(v)
		if err != nil {
			return fmt.Errorf("column %s: %w", w.spec.Schema.Names[i], err)
		}
		args[i] = enc
	}
	if _, err := w.insert.ExecContext(ctx, args...); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", w.spec.Name, err)
	}
	w.rows++
	return nil
}

func encode(v any) (any, error) {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339Nano), nil
	}
	return core.EncodeCell(v)
}

func (w *writer) Commit(ctx context.Context) (*core.ResultTable, error) {
	if w.done {
		return nil, fmt.Errorf("writer for %s is closed", w.spec.Name)
	}
	created := time.Now().UTC()
	if err := writeCatalog(ctx, w.tx, w.spec, w.rows, created); err != nil {
		_ = w.Abort()
		return nil, err
	}
	if w.insert != nil {
		_ = w.insert.Close()
	}
	w.done = true
	if err := w.tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit %s: %w", w.spec.Name, err)
	}
	w.store.Logger.Debug("result table committed",
		slog.String("name", w.spec.Name), slog.Int64("rows", w.rows))
	return &core.ResultTable{
		Name:       w.spec.Name,
		Title:      w.spec.Title,
		Provenance: w.spec.Provenance,
		Rows:       w.rows,
		CreatedAt:  time.Unix(0, created.UnixNano()).UTC(),
	}, nil
}

func (w *writer) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	if w.insert != nil {
		_ = w.insert.Close()
	}
	if err := w.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return fmt.Errorf("failed to roll back %s: %w", w.spec.Name, err)
	}
	return nil
}

var _ core.Store = (*Store)(nil)
