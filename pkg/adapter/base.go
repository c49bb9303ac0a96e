package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"github.com/leapstack-labs/leapquery/pkg/core"
)

// BaseSQLStore provides common database/sql functionality for stores.
// Embed this struct in concrete implementations to get standard Close,
// Filepath and row reading.
type BaseSQLStore struct {
	DB     *sql.DB
	Cfg    Config
	Logger *slog.Logger
	// Placeholder renders the n-th query parameter, counting from 1.
	// Nil means "?".
	Placeholder func(n int) string
}

// Close closes the database connection.
func (b *BaseSQLStore) Close() error {
	if b.DB != nil {
		if b.Logger != nil {
			b.Logger.Debug("closing database connection", slog.String("path", b.Cfg.Path))
		}
		err := b.DB.Close()
		b.DB = nil
		return err
	}
	return nil
}

// Filepath returns the path the store was connected with.
func (b *BaseSQLStore) Filepath() string {
	return b.Cfg.Path
}

// IsConnected returns true if the database connection is established.
func (b *BaseSQLStore) IsConnected() bool {
	return b.DB != nil
}

// Conn returns the connection or an error when Connect was not called.
func (b *BaseSQLStore) Conn() (*sql.DB, error) {
	if b.DB == nil {
		return nil, fmt.Errorf("database connection not established")
	}
	return b.DB, nil
}

// CountRows returns the number of rows of a relation. The relation must be
// quoted already, see QuoteIdent.
func (b *BaseSQLStore) CountRows(ctx context.Context, relation string) (int64, error) {
	db, err := b.Conn()
	if err != nil {
		return 0, err
	}
	var n int64
	//nolint:gosec // relation is quoted by the caller
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+relation).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count rows of %s: %w", relation, err)
	}
	return n, nil
}

// ReadRange selects the rows of r from a quoted relation. Rows are fetched
// with LIMIT/OFFSET in the given order and thinned to r.Step on the client.
// convert, when set, maps each scanned row to typed values.
func (b *BaseSQLStore) ReadRange(ctx context.Context, relation string, cols []string, orderBy string, r core.RowRange, convert func(core.Row) (core.Row, error)) (core.Rows, error) {
	db, err := b.Conn()
	if err != nil {
		return nil, err
	}
	if r.Step <= 0 {
		r.Step = 1
	}

	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = QuoteIdent(c)
	}
	query := "SELECT " + strings.Join(quoted, ", ") + " FROM " + relation
	if orderBy != "" {
		query += " ORDER BY " + orderBy
	}
	query += " LIMIT " + b.param(1) + " OFFSET " + b.param(2)

	limit := r.Stop - r.Start
	if limit < 0 {
		limit = 0
	}
	//nolint:rowserrcheck // Err is surfaced through SQLRows.Err
	rows, err := db.QueryContext(ctx, query, limit, r.Start)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", relation, err)
	}
	return &SQLRows{rows: rows, width: len(cols), rng: r, next: r.Start, convert: convert}, nil
}

func (b *BaseSQLStore) param(n int) string {
	if b.Placeholder == nil {
		return "?"
	}
	return b.Placeholder(n)
}

// DollarPlaceholder renders PostgreSQL style parameters ($1, $2, ...).
func DollarPlaceholder(n int) string {
	return "$" + strconv.Itoa(n)
}

// SQLRows adapts *sql.Rows to core.Rows.
type SQLRows struct {
	rows    *sql.Rows
	width   int
	rng     core.RowRange
	next    int64
	coord   int64
	row     core.Row
	convert func(core.Row) (core.Row, error)
	err     error
}

// Next advances to the next selected row.
func (s *SQLRows) Next() bool {
	if s.err != nil {
		return false
	}
	for s.rows.Next() {
		coord := s.next
		s.next++
		if !s.rng.Contains(coord) {
			continue
		}

		vals := make(core.Row, s.width)
		ptrs := make([]any, s.width)
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := s.rows.Scan(ptrs...); err != nil {
			s.err = fmt.Errorf("failed to scan row %d: %w", coord, err)
			return false
		}
		if s.convert != nil {
			conv, err := s.convert(vals)
			if err != nil {
				s.err = fmt.Errorf("row %d: %w", coord, err)
				return false
			}
			vals = conv
		}
		s.coord, s.row = coord, vals
		return true
	}
	return false
}

// Coord returns the source coordinate of the current row.
func (s *SQLRows) Coord() int64 { return s.coord }

// Row returns the current row.
func (s *SQLRows) Row() core.Row { return s.row }

// Err returns the first error met while iterating.
func (s *SQLRows) Err() error {
	if s.err != nil {
		return s.err
	}
	return s.rows.Err()
}

// Close releases the result set.
func (s *SQLRows) Close() error {
	return s.rows.Close()
}

// QuoteIdent quotes a SQL identifier.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteQualified quotes a dotted name such as schema.table.
func QuoteQualified(parts ...string) string {
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = QuoteIdent(p)
	}
	return strings.Join(quoted, ".")
}

// TableName maps a nodepath onto a flat SQL table name. SQL stores have no
// groups, so only root-level nodepaths resolve.
func TableName(nodepath string) (string, error) {
	p := core.NormalizeNodepath(nodepath)
	name := strings.TrimPrefix(p, "/")
	if name == "" || strings.Contains(name, "/") {
		return "", core.Errorf(core.ErrTableNotFound, "resolve", p, "no such table")
	}
	return name, nil
}

// DecodeParams decodes adapter params into out, which must be a pointer
// to a struct with mapstructure tags.
func DecodeParams(params map[string]any, out any) error {
	if len(params) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return fmt.Errorf("failed to create params decoder: %w", err)
	}
	if err := dec.Decode(params); err != nil {
		return fmt.Errorf("invalid adapter params: %w", err)
	}
	return nil
}
