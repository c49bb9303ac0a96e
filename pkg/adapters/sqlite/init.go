// Package sqlite provides a SQLite table store. It reads any SQLite file
// and keeps typed column descriptors and result provenance in catalog
// tables, so result tables round-trip arrays, complex numbers and nested
// values.
//
// Import this package with a blank identifier to register the store:
//
//	import _ "github.com/leapstack-labs/leapquery/pkg/adapters/sqlite"
package sqlite

import (
	"log/slog"

	"github.com/leapstack-labs/leapquery/pkg/adapter"
)

func init() {
	adapter.Register("sqlite", func(logger *slog.Logger) adapter.Source { return New(logger) })
}
