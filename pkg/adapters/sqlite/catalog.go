package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/leapstack-labs/leapquery/pkg/core"
)

const (
	columnsTable = core.ReservedPrefix + "_columns"
	resultsTable = core.ReservedPrefix + "_results"
)

const catalogDDL = `
CREATE TABLE IF NOT EXISTS ` + columnsTable + ` (
	tbl   TEXT NOT NULL,
	pos   INTEGER NOT NULL,
	name  TEXT NOT NULL,
	type  TEXT,
	shape TEXT,
	PRIMARY KEY (tbl, pos)
);
CREATE TABLE IF NOT EXISTS ` + resultsTable + ` (
	name            TEXT PRIMARY KEY,
	title           TEXT NOT NULL DEFAULT '',
	condition       TEXT NOT NULL,
	source_filepath TEXT NOT NULL,
	source_nodepath TEXT NOT NULL,
	rows            INTEGER NOT NULL,
	created_at      INTEGER NOT NULL
);
`

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func tableExists(ctx context.Context, q querier, name string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to look up table %s: %w", name, err)
	}
	return n > 0, nil
}

// catalogSchema reads the typed descriptors of a table. ok is false when
// the table has no catalog entry.
func catalogSchema(ctx context.Context, q querier, table string) (schema core.TableSchema, ok bool, err error) {
	rows, err := q.QueryContext(ctx,
		`SELECT name, type, shape FROM `+columnsTable+` WHERE tbl = ? ORDER BY pos`, table)
	if err != nil {
		return schema, false, fmt.Errorf("failed to read column catalog: %w", err)
	}
	defer func() { _ = rows.Close() }()

	schema.Descs = make(map[string]core.ColumnDesc)
	for rows.Next() {
		var name string
		var typ, shape sql.NullString
		if err := rows.Scan(&name, &typ, &shape); err != nil {
			return schema, false, fmt.Errorf("failed to scan column catalog: %w", err)
		}
		schema.Names = append(schema.Names, name)
		if !typ.Valid {
			continue // nested
		}
		d := core.ColumnDesc{Name: name, Type: typ.String}
		if shape.Valid && shape.String != "" {
			if err := json.Unmarshal([]byte(shape.String), &d.Shape); err != nil {
				return schema, false, fmt.Errorf("column %s: bad shape %q: %w", name, shape.String, err)
			}
		}
		schema.Descs[name] = d
	}
	if err := rows.Err(); err != nil {
		return schema, false, fmt.Errorf("error iterating column catalog: %w", err)
	}
	return schema, len(schema.Names) > 0, nil
}

// inferredSchema builds descriptors from declared SQL column types.
func inferredSchema(ctx context.Context, q querier, table string) (core.TableSchema, error) {
	rows, err := q.QueryContext(ctx, `SELECT name, type FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		return core.TableSchema{}, fmt.Errorf("failed to read table info: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var cols []core.ColumnDesc
	for rows.Next() {
		var name, declared string
		if err := rows.Scan(&name, &declared); err != nil {
			return core.TableSchema{}, fmt.Errorf("failed to scan table info: %w", err)
		}
		cols = append(cols, core.ColumnDesc{Name: name, Type: typeFromDeclared(declared)})
	}
	if err := rows.Err(); err != nil {
		return core.TableSchema{}, fmt.Errorf("error iterating table info: %w", err)
	}
	return core.NewSchema(cols...), nil
}

// typeFromDeclared follows SQLite's column affinity rules.
func typeFromDeclared(declared string) string {
	t := strings.ToUpper(declared)
	switch {
	case strings.Contains(t, "BOOL"):
		return core.TypeBool
	case strings.Contains(t, "INT"):
		return core.TypeInt64
	case strings.Contains(t, "DATE"), strings.Contains(t, "TIME"):
		return core.TypeTime
	case strings.Contains(t, "CHAR"), strings.Contains(t, "CLOB"), strings.Contains(t, "TEXT"):
		return core.TypeString
	case t == "":
		return core.TypeAny
	case strings.Contains(t, "BLOB"):
		return core.TypeBytes
	case strings.Contains(t, "REAL"), strings.Contains(t, "FLOA"), strings.Contains(t, "DOUB"):
		return core.TypeFloat64
	}
	return core.TypeFloat64
}

// declaredType is the SQL type a column with descriptor d is created with.
// ok is false for nested columns. Untyped columns get no declared type so
// SQLite keeps each value's storage class.
func declaredType(d core.ColumnDesc, ok bool) string {
	if !ok || !d.IsScalar() || d.IsComplex() {
		return "TEXT"
	}
	switch d.Type {
	case core.TypeAny:
		return ""
	case core.TypeBool:
		return "BOOLEAN"
	case core.TypeInt8, core.TypeInt16, core.TypeInt32, core.TypeInt64,
		core.TypeUint8, core.TypeUint16, core.TypeUint32, core.TypeUint64:
		return "INTEGER"
	case core.TypeFloat32, core.TypeFloat64:
		return "REAL"
	case core.TypeBytes:
		return "BLOB"
	case core.TypeTime:
		return "TIMESTAMP"
	}
	return "TEXT"
}

func writeCatalog(ctx context.Context, q querier, spec core.ResultSpec, rows int64, created time.Time) error {
	for pos, name := range spec.Schema.Names {
		var typ, shape any
		if d, ok := spec.Schema.Desc(name); ok {
			typ = d.Type
			if len(d.Shape) > 0 {
				b, err := json.Marshal(d.Shape)
				if err != nil {
					return err
				}
				shape = string(b)
			}
		}
		if _, err := q.ExecContext(ctx,
			`INSERT INTO `+columnsTable+` (tbl, pos, name, type, shape) VALUES (?, ?, ?, ?, ?)`,
			spec.Name, pos, name, typ, shape,
		); err != nil {
			return fmt.Errorf("failed to write column catalog: %w", err)
		}
	}
	if _, err := q.ExecContext(ctx,
		`INSERT INTO `+resultsTable+` (name, title, condition, source_filepath, source_nodepath, rows, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		spec.Name, spec.Title, spec.Provenance.Condition,
		spec.Provenance.Source.Filepath, spec.Provenance.Source.Nodepath,
		rows, created.UnixNano(),
	); err != nil {
		return fmt.Errorf("failed to write result catalog: %w", err)
	}
	return nil
}

func scanResult(rows *sql.Rows) (core.ResultTable, error) {
	var r core.ResultTable
	var created int64
	err := rows.Scan(&r.Name, &r.Title, &r.Provenance.Condition,
		&r.Provenance.Source.Filepath, &r.Provenance.Source.Nodepath, &r.Rows, &created)
	if err != nil {
		return r, fmt.Errorf("failed to scan result catalog: %w", err)
	}
	r.CreatedAt = time.Unix(0, created).UTC()
	return r, nil
}
