// Package config provides configuration management for the leapquery CLI.
package config

import (
	"time"

	"github.com/leapstack-labs/leapquery/pkg/core"
)

// Default configuration values.
const (
	DefaultResultsType  = "sqlite"
	DefaultResultsFile  = ".leapquery/results.db"
	DefaultStateFile    = ".leapquery/state.db"
	DefaultBatchSize    = 1024
	DefaultSpoolRows    = 100000
	DefaultOutput       = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	DefaultHistoryLimit = 20
)

// Config holds all CLI configuration options.
type Config struct {
	Results      StoreConfig            `koanf:"results"`
	Sources      map[string]StoreConfig `koanf:"sources"`
	StatePath    string                 `koanf:"state_path"`
	Workers      int                    `koanf:"workers"`
	BatchSize    int                    `koanf:"batch_size"`
	SpoolRows    int                    `koanf:"spool_rows"`
	QueryTimeout time.Duration          `koanf:"query_timeout"`
	Verbose      bool                   `koanf:"verbose"`
	OutputFormat string                 `koanf:"output"`

	// ProjectRoot is the directory relative paths are resolved against.
	ProjectRoot string `koanf:"-"`
}

// StoreConfig describes one table database.
type StoreConfig struct {
	Type   string         `koanf:"type"` // sqlite, duckdb, memory
	Path   string         `koanf:"path"`
	Params map[string]any `koanf:"params"`
}

// AdapterConfig converts the store configuration for the adapter registry.
func (s StoreConfig) AdapterConfig() core.AdapterConfig {
	return core.AdapterConfig{
		Type:   s.Type,
		Path:   s.Path,
		Params: s.Params,
	}
}
