// Package classify decides which columns of a table can take part in a
// filter condition and maps the names that cannot be written literally
// onto generated aliases.
package classify

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode"

	"github.com/leapstack-labs/leapquery/pkg/core"
)

// AliasPrefix is the prefix of generated aliases: col0, col1, ...
const AliasPrefix = "col"

// Classifier inspects table schemas.
type Classifier struct {
	logger *slog.Logger
}

// New creates a classifier. A nil logger discards diagnostics.
func New(logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Classifier{logger: logger}
}

// Classify returns the queryable fields of a table.
//
// A column is queryable when it has a flat descriptor, is scalar and is not
// complex. Columns whose names contain whitespace are given the lowest free
// alias, skipping any alias that is also a literal column name.
func (c *Classifier) Classify(table string, schema core.TableSchema, rowCount int64) (*core.FieldSet, error) {
	if rowCount <= 0 {
		c.logger.Warn("table is empty, nothing to query", slog.String("table", table))
		return nil, core.NewError(core.ErrEmptyTable, "classify", table, nil)
	}

	literal := make(map[string]struct{}, len(schema.Names))
	for _, name := range schema.Names {
		literal[name] = struct{}{}
	}

	fs := &core.FieldSet{Condvars: make(map[string]string)}
	next := 0
	for _, name := range schema.Names {
		desc, ok := schema.Descs[name]
		if !ok || !desc.IsScalar() || desc.IsComplex() {
			fs.Excluded = append(fs.Excluded, name)
			continue
		}
		if !NeedsAlias(name) {
			fs.Fields = append(fs.Fields, core.Field{Name: name})
			continue
		}
		alias := AliasPrefix + strconv.Itoa(next)
		for {
			if _, taken := literal[alias]; !taken {
				break
			}
			next++
			alias = AliasPrefix + strconv.Itoa(next)
		}
		next++
		fs.Fields = append(fs.Fields, core.Field{Name: name, Alias: alias})
		fs.Condvars[alias] = name
	}

	if len(fs.Fields) == 0 {
		c.logger.Error("table has no columns suitable to be queried; all columns are nested, multidimensional or complex",
			slog.String("table", table))
		return nil, core.Errorf(core.ErrNoQueryableColumns, "classify", table,
			"excluded %d column(s)", len(fs.Excluded))
	}
	if len(fs.Excluded) > 0 {
		c.logger.Info("some columns contain nested, multidimensional or complex data and cannot be queried",
			slog.String("table", table),
			slog.String("excluded", strings.Join(fs.Excluded, ", ")))
	}
	return fs, nil
}

// NeedsAlias reports whether a column name contains whitespace.
func NeedsAlias(name string) bool {
	return strings.ContainsFunc(name, unicode.IsSpace)
}

// Reason explains why a column is not queryable, or returns "" when it is.
func Reason(schema core.TableSchema, name string) string {
	desc, ok := schema.Descs[name]
	switch {
	case !ok:
		return "nested"
	case !desc.IsScalar():
		return fmt.Sprintf("shape %s", desc.ShapeString())
	case desc.IsComplex():
		return "complex"
	}
	return ""
}
