// Package duckdb provides a read-only DuckDB table source.
//
// Import this package with a blank identifier to register the source:
//
//	import _ "github.com/leapstack-labs/leapquery/pkg/adapters/duckdb"
package duckdb

import (
	"log/slog"

	"github.com/leapstack-labs/leapquery/pkg/adapter"
)

func init() {
	adapter.Register("duckdb", func(logger *slog.Logger) adapter.Source { return New(logger) })
}
