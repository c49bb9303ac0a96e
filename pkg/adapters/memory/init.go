// Package memory provides an in-memory table store, optionally seeded from
// a YAML fixture document.
//
// Import this package with a blank identifier to register the store:
//
//	import _ "github.com/leapstack-labs/leapquery/pkg/adapters/memory"
package memory

import (
	"log/slog"

	"github.com/leapstack-labs/leapquery/pkg/adapter"
)

func init() {
	adapter.Register("memory", func(logger *slog.Logger) adapter.Source { return New(logger) })
}
