// Package adapter holds the registry of table store implementations and
// the database/sql plumbing they share.
//
// Concrete stores live in pkg/adapters/ subdirectories and register
// themselves from init(). Import them with a blank identifier:
//
//	import _ "github.com/leapstack-labs/leapquery/pkg/adapters/sqlite"
package adapter

import (
	"github.com/leapstack-labs/leapquery/pkg/core"
)

// Type aliases for the store contracts defined in pkg/core.
type (
	// Config is an alias for core.AdapterConfig.
	Config = core.AdapterConfig

	// Source is an alias for core.Source.
	Source = core.Source

	// Store is an alias for core.Store.
	Store = core.Store
)
