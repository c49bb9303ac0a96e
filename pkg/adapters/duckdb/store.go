package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/leapquery/pkg/adapter"
	"github.com/leapstack-labs/leapquery/pkg/core"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

const defaultSchema = "main"

// Source reads tables from a DuckDB database. Nodepath "/T" addresses
// main.T and "/s/T" addresses s.T.
type Source struct {
	adapter.BaseSQLStore
}

// New creates a new DuckDB source instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Source{
		BaseSQLStore: adapter.BaseSQLStore{Logger: logger},
	}
}

// Connect opens the DuckDB file at cfg.Path.
// Use ":memory:" (or an empty path) for an in-memory database.
func (s *Source) Connect(ctx context.Context, cfg core.AdapterConfig) error {
	params, err := ParseParams(cfg.Params)
	if err != nil {
		return err
	}

	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}
	dsn := path
	if cfg.ReadOnly && path != ":memory:" {
		dsn = path + "?access_mode=read_only"
	}

	s.Logger.Debug("connecting to duckdb", slog.String("path", path))

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return fmt.Errorf("failed to open duckdb connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping duckdb: %w", err)
	}

	for _, ext := range params.Extensions {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("INSTALL %s; LOAD %s;", ext, ext)); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to load extension %s: %w", ext, err)
		}
	}
	for k, v := range params.Settings {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("SET %s = '%s'", k, strings.ReplaceAll(v, "'", "''"))); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to apply setting %s: %w", k, err)
		}
	}

	cfg.Path = path
	s.DB = db
	s.Cfg = cfg
	return nil
}

// Tables lists base tables as nodepaths.
func (s *Source) Tables(ctx context.Context) ([]string, error) {
	db, err := s.Conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT table_schema, table_name
		FROM information_schema.tables
		WHERE table_type = 'BASE TABLE'
		ORDER BY table_schema, table_name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var schema, name string
		if err := rows.Scan(&schema, &name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		out = append(out, nodepath(schema, name))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}
	return out, nil
}

func nodepath(schema, name string) string {
	if schema == defaultSchema {
		return "/" + name
	}
	return "/" + schema + "/" + name
}

// splitNodepath resolves a nodepath to schema and table name.
func splitNodepath(np string) (schema, name string, err error) {
	p := strings.TrimPrefix(core.NormalizeNodepath(np), "/")
	parts := strings.Split(p, "/")
	switch {
	case p == "":
		return "", "", core.Errorf(core.ErrTableNotFound, "resolve", np, "no such table")
	case len(parts) == 1:
		return defaultSchema, parts[0], nil
	case len(parts) == 2:
		return parts[0], parts[1], nil
	}
	return "", "", core.Errorf(core.ErrTableNotFound, "resolve", np, "no such table")
}

type column struct {
	name     string
	dataType string
}

func (s *Source) columns(ctx context.Context, db *sql.DB, schema, name string) ([]column, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ordinal_position
	`, schema, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query column metadata: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var cols []column
	for rows.Next() {
		var c column
		if err := rows.Scan(&c.name, &c.dataType); err != nil {
			return nil, fmt.Errorf("failed to scan column metadata: %w", err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating column metadata: %w", err)
	}
	return cols, nil
}

// Describe returns schema and row count of a table.
func (s *Source) Describe(ctx context.Context, np string) (*core.TableInfo, error) {
	info, _, err := s.describe(ctx, np)
	return info, err
}

func (s *Source) describe(ctx context.Context, np string) (*core.TableInfo, []column, error) {
	db, err := s.Conn()
	if err != nil {
		return nil, nil, err
	}
	schemaName, name, err := splitNodepath(np)
	if err != nil {
		return nil, nil, err
	}
	cols, err := s.columns(ctx, db, schemaName, name)
	if err != nil {
		return nil, nil, err
	}
	if len(cols) == 0 {
		return nil, nil, core.NewError(core.ErrTableNotFound, "describe", np, nil)
	}

	schema := core.TableSchema{Descs: make(map[string]core.ColumnDesc, len(cols))}
	for _, c := range cols {
		schema.Names = append(schema.Names, c.name)
		if d, ok := columnDesc(c.name, c.dataType); ok {
			schema.Descs[c.name] = d
		}
	}

	count, err := s.CountRows(ctx, adapter.QuoteQualified(schemaName, name))
	if err != nil {
		return nil, nil, err
	}

	return &core.TableInfo{
		Ref:      core.TableRef{Filepath: s.Filepath(), Nodepath: nodepath(schemaName, name)},
		Name:     name,
		RowCount: count,
		Schema:   schema,
	}, cols, nil
}

// ReadRows returns the rows of r in rowid order.
func (s *Source) ReadRows(ctx context.Context, np string, r core.RowRange) (core.Rows, error) {
	info, cols, err := s.describe(ctx, np)
	if err != nil {
		return nil, err
	}
	schemaName, name, _ := splitNodepath(np)

	schema := info.Schema
	convert := func(raw core.Row) (core.Row, error) {
		for i, n := range schema.Names {
			v := plain(raw[i])
			if strings.EqualFold(cols[i].dataType, "UUID") {
				v = uuidText(v)
			}
			d, ok := schema.Desc(n)
			if !ok {
				raw[i] = v
				continue
			}
			c, err := core.ConvertCell(d, v)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", n, err)
			}
			raw[i] = c
		}
		return raw, nil
	}
	return s.ReadRange(ctx, adapter.QuoteQualified(schemaName, name), schema.Names, "rowid", r, convert)
}

var _ core.Source = (*Source)(nil)
