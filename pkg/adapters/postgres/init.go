// Package postgres provides a read-only PostgreSQL table source.
//
// Import this package with a blank identifier to register the source:
//
//	import _ "github.com/leapstack-labs/leapquery/pkg/adapters/postgres"
package postgres

import (
	"log/slog"

	"github.com/leapstack-labs/leapquery/pkg/adapter"
)

func init() {
	adapter.Register("postgres", func(logger *slog.Logger) adapter.Source { return New(logger) })
}
