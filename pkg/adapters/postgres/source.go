package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/leapstack-labs/leapquery/pkg/adapter"
	"github.com/leapstack-labs/leapquery/pkg/core"
)

const defaultSchema = "public"

// Source reads tables from a PostgreSQL database. Nodepath "/T" addresses
// public.T and "/s/T" addresses s.T. Rows are read in physical (ctid)
// order, which is stable as long as the table is not written to.
type Source struct {
	adapter.BaseSQLStore
}

// New creates a new PostgreSQL source instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Source{
		BaseSQLStore: adapter.BaseSQLStore{Logger: logger, Placeholder: adapter.DollarPlaceholder},
	}
}

// Connect opens a connection. cfg.Path is a postgres:// URL or a key=value
// connection string; when empty the connection is built from cfg.Params.
func (s *Source) Connect(ctx context.Context, cfg core.AdapterConfig) error {
	dsn, display := cfg.Path, redact(cfg.Path)
	if dsn == "" {
		params, err := ParseParams(cfg.Params)
		if err != nil {
			return err
		}
		dsn, display = buildPostgresDSN(params), displayPath(params)
	}

	s.Logger.Debug("connecting to postgres", slog.String("path", display))

	pcfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return fmt.Errorf("invalid postgres connection string: %w", err)
	}
	if cfg.ReadOnly {
		pcfg.RuntimeParams["default_transaction_read_only"] = "on"
	}

	db := stdlib.OpenDB(*pcfg)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping postgres: %w", err)
	}

	cfg.Path = display
	s.DB = db
	s.Cfg = cfg
	return nil
}

// Tables lists base tables outside the system schemas as nodepaths.
func (s *Source) Tables(ctx context.Context) ([]string, error) {
	db, err := s.Conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT table_schema, table_name
		FROM information_schema.tables
		WHERE table_type = 'BASE TABLE'
		  AND table_schema NOT IN ('pg_catalog', 'information_schema')
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

// Describe returns schema and row count of a table.
func (s *Source) Describe(ctx context.Context, np string) (*core.TableInfo, error) {
	db, err := s.Conn()
	if err != nil {
		return nil, err
	}
	schemaName, name, err := splitNodepath(np)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position
	`, schemaName, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query column metadata: %w", err)
	}
	defer func() { _ = rows.Close() }()

	schema := core.TableSchema{Descs: make(map[string]core.ColumnDesc)}
	for rows.Next() {
		var col, dataType string
		if err := rows.Scan(&col, &dataType); err != nil {
			return nil, fmt.Errorf("failed to scan column metadata: %w", err)
		}
		schema.Names = append(schema.Names, col)
		if tag, ok := scalarType(dataType); ok {
			schema.Descs[col] = core.ColumnDesc{Name: col, Type: tag}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating column metadata: %w", err)
	}
	if len(schema.Names) == 0 {
		return nil, core.NewError(core.ErrTableNotFound, "describe", np, nil)
	}

	count, err := s.CountRows(ctx, adapter.QuoteQualified(schemaName, name))
	if err != nil {
		return nil, err
	}

	return &core.TableInfo{
		Ref:      core.TableRef{Filepath: s.Filepath(), Nodepath: nodepath(schemaName, name)},
		Name:     name,
		RowCount: count,
		Schema:   schema,
	}, nil
}

// ReadRows returns the rows of r in ctid order.
func (s *Source) ReadRows(ctx context.Context, np string, r core.RowRange) (core.Rows, error) {
	info, err := s.Describe(ctx, np)
	if err != nil {
		return nil, err
	}
	schemaName, name, _ := splitNodepath(np)

	schema := info.Schema
	convert := func(raw core.Row) (core.Row, error) {
		for i, n := range schema.Names {
			d, ok := schema.Desc(n)
			if !ok {
				continue
			}
			v, err := core.ConvertCell(d, raw[i])
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", n, err)
			}
			raw[i] = v
		}
		return raw, nil
	}
	return s.ReadRange(ctx, adapter.QuoteQualified(schemaName, name), schema.Names, "ctid", r, convert)
}

// scalarType maps an information_schema data type onto a type tag. ok is
// false for arrays, json and composite types, which have no flat
// descriptor and are kept as their text form.
func scalarType(dataType string) (string, bool) {
	t := strings.ToLower(strings.TrimSpace(dataType))
	switch {
	case t == "boolean":
		return core.TypeBool, true
	case t == "smallint":
		return core.TypeInt16, true
	case t == "integer":
		return core.TypeInt32, true
	case t == "bigint":
		return core.TypeInt64, true
	case t == "real":
		return core.TypeFloat32, true
	case t == "double precision", t == "numeric", t == "decimal":
		return core.TypeFloat64, true
	case t == "bytea":
		return core.TypeBytes, true
	case t == "date", strings.HasPrefix(t, "timestamp"):
		return core.TypeTime, true
	case t == "array", t == "user-defined", t == "json", t == "jsonb":
		return "", false
	}
	return core.TypeString, true
}

var _ core.Source = (*Source)(nil)
